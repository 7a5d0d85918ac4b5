// Package reconcile applies decoded transfer memos to the off-chain records
// they settle. Every branch is idempotent: unique keys absorb duplicate
// inserts and status changes are conditional updates, so the same transfer
// may be dispatched any number of times.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"MemoLedger/internal/memo"
	"MemoLedger/internal/models"
	"MemoLedger/internal/pricing"
	"MemoLedger/internal/store"
)

// Store is the persistence the dispatcher mutates.
type Store interface {
	store.InvoiceStore
	store.ExpenseStore
	store.SplitStore
	store.MarketStore
}

// Dispatcher routes a decoded memo to the state transition for its kind.
type Dispatcher struct {
	store   Store
	pricing *pricing.Engine
	logger  zerolog.Logger
	now     func() time.Time
}

type Option func(*Dispatcher)

func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func WithPricing(e *pricing.Engine) Option {
	return func(d *Dispatcher) { d.pricing = e }
}

func NewDispatcher(s Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:   s,
		pricing: pricing.NewEngine(),
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch applies m to the store. A missing or already-settled target is a
// skipped Outcome, not an error; only store failures are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, tr Transfer, m memo.Memo) (Outcome, error) {
	tr.From = models.NormalizeAddress(tr.From)
	tr.To = models.NormalizeAddress(tr.To)
	if tr.ObservedAt.IsZero() {
		tr.ObservedAt = d.now().UTC()
	}

	var (
		out Outcome
		err error
	)
	switch m.Kind {
	case memo.KindInvoice:
		out, err = d.invoice(ctx, tr, m)
	case memo.KindExpense:
		out, err = d.expense(ctx, tr, m)
	case memo.KindSplit:
		out, err = d.split(ctx, tr, m)
	case memo.KindBet:
		out, err = d.bet(ctx, tr, m)
	default:
		out, err = d.payment(ctx, tr, m)
	}
	out.TxHash, out.LogIndex, out.Kind = tr.TxHash, tr.LogIndex, m.Kind
	if err != nil {
		return out, err
	}

	d.logger.Debug().
		Str("tx_hash", tr.TxHash).
		Uint("log_index", tr.LogIndex).
		Str("kind", string(m.Kind)).
		Str("action", string(out.Action)).
		Str("target", out.Target).
		Str("reason", out.Reason).
		Msg("transfer dispatched")
	return out, nil
}

func (d *Dispatcher) invoice(ctx context.Context, tr Transfer, m memo.Memo) (Outcome, error) {
	raw := m.String()
	_, err := d.store.PayInvoice(ctx, m.Payload, tr.TxHash, tr.ObservedAt, func(inv *models.Invoice) []models.Expense {
		return []models.Expense{
			expenseRow(tr, tr.From, tr.To, models.DirectionOut, models.CategoryBills, raw, inv.Description),
			expenseRow(tr, tr.To, tr.From, models.DirectionIn, models.CategoryBills, raw, inv.Description),
		}
	})
	if errors.Is(err, store.ErrNotFound) {
		return skipped(m.Payload, "no pending invoice"), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("invoice %s: %w", m.Payload, err)
	}
	return Outcome{Action: ActionInvoicePaid, Target: m.Payload}, nil
}

func (d *Dispatcher) expense(ctx context.Context, tr Transfer, m memo.Memo) (Outcome, error) {
	row := expenseRow(tr, tr.From, tr.To, models.DirectionOut, Categorize(m.Payload), m.String(), m.Payload)
	n, err := d.store.InsertExpenses(ctx, row)
	if err != nil {
		return Outcome{}, fmt.Errorf("expense: %w", err)
	}
	if n == 0 {
		return skipped("", "already recorded"), nil
	}
	return Outcome{Action: ActionExpenseRecorded}, nil
}

// split settles the sender's member row. When the payload names a known
// split the lookup is scoped to it; otherwise any unpaid row of the sender
// is used.
func (d *Dispatcher) split(ctx context.Context, tr Transfer, m memo.Memo) (Outcome, error) {
	scope := ""
	sp, err := d.store.GetSplitBySplitID(ctx, m.Payload)
	switch {
	case err == nil:
		scope = sp.ID
	case !errors.Is(err, store.ErrNotFound):
		return Outcome{}, fmt.Errorf("split %s: %w", m.Payload, err)
	}

	member, err := d.store.FindUnpaidMember(ctx, tr.From, scope)
	if errors.Is(err, store.ErrNotFound) {
		return skipped(m.Payload, "no unpaid member for sender"), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("split %s member: %w", m.Payload, err)
	}

	paid, settled, err := d.store.PaySplitMember(ctx, member.ID, tr.TxHash)
	if err != nil {
		return Outcome{}, fmt.Errorf("split %s pay: %w", m.Payload, err)
	}
	switch {
	case !paid:
		return skipped(m.Payload, "member already paid"), nil
	case settled:
		return Outcome{Action: ActionSplitSettled, Target: m.Payload}, nil
	}
	return Outcome{Action: ActionSplitMemberPaid, Target: m.Payload}, nil
}

// bet records the stake without checking the market is still open; the
// transfer already happened.
func (d *Dispatcher) bet(ctx context.Context, tr Transfer, m memo.Memo) (Outcome, error) {
	marketID, position, err := memo.ParseBetPayload(m.Payload)
	if err != nil {
		return skipped(m.Payload, "bad bet payload"), nil
	}

	market, err := d.store.GetMarket(ctx, marketID)
	if errors.Is(err, store.ErrNotFound) {
		return skipped(marketID, "market not found"), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("bet %s market: %w", marketID, err)
	}
	bets, err := d.store.ListBets(ctx, marketID)
	if err != nil {
		return Outcome{}, fmt.Errorf("bet %s pool: %w", marketID, err)
	}

	prob := d.pricing.Probability(market, bets, position)
	price := pricing.SharePrice(prob)
	shares := pricing.Shares(tr.Amount.InexactFloat64(), prob)

	recorded, err := d.store.RecordBet(ctx, &models.MarketBet{
		MarketID:      marketID,
		UserAddress:   tr.From,
		Position:      position,
		Amount:        tr.Amount,
		Shares:        &shares,
		PurchasePrice: &price,
		TxHash:        tr.TxHash,
		LogIndex:      tr.LogIndex,
		CreatedAt:     tr.ObservedAt,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("bet %s: %w", marketID, err)
	}
	if !recorded {
		return skipped(marketID, "already recorded"), nil
	}
	return Outcome{Action: ActionBetRecorded, Target: marketID}, nil
}

func (d *Dispatcher) payment(ctx context.Context, tr Transfer, m memo.Memo) (Outcome, error) {
	n, err := d.store.InsertExpenses(ctx,
		expenseRow(tr, tr.From, tr.To, models.DirectionOut, Categorize(m.Payload), m.Payload, m.Payload),
		expenseRow(tr, tr.To, tr.From, models.DirectionIn, models.CategoryOther, m.Payload, m.Payload),
	)
	if err != nil {
		return Outcome{}, fmt.Errorf("payment: %w", err)
	}
	if n == 0 {
		return skipped("", "already recorded"), nil
	}
	return Outcome{Action: ActionPaymentRecorded}, nil
}

func expenseRow(tr Transfer, user, counterparty string, dir models.Direction, category, raw, description string) models.Expense {
	return models.Expense{
		UserAddress:  user,
		TxHash:       tr.TxHash,
		LogIndex:     tr.LogIndex,
		Amount:       tr.Amount,
		Token:        tr.Token,
		Category:     category,
		MemoRaw:      raw,
		Description:  description,
		Direction:    dir,
		Counterparty: counterparty,
		CreatedAt:    tr.ObservedAt,
	}
}

func skipped(target, reason string) Outcome {
	return Outcome{Action: ActionSkipped, Target: target, Reason: reason}
}
