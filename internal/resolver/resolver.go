// Package resolver moves prediction markets from open to resolved and pays
// out every outstanding bet exactly once.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"MemoLedger/internal/models"
	"MemoLedger/internal/pricing"
	"MemoLedger/internal/store"
)

// AutoResolver is the resolvedBy identity of sweep resolutions.
const AutoResolver = "auto_resolver"

var (
	ErrMarketNotFound    = errors.New("market not found")
	ErrMarketNotOpen     = errors.New("market is not open")
	ErrUpdateFailed      = errors.New("failed to update market")
	ErrInvalidResolution = errors.New("resolution must be 0 (yes) or 1 (no)")
	ErrResolverRequired  = errors.New("resolvedBy is required")
)

// Result is the outcome of a resolution and its payout pass.
type Result struct {
	Success      bool            `json:"success"`
	MarketID     string          `json:"marketId"`
	Resolution   models.Position `json:"resolution"`
	WinnersCount int             `json:"winnersCount"`
	LosersCount  int             `json:"losersCount"`
	TotalPayout  decimal.Decimal `json:"totalPayout"`
}

type Resolver struct {
	store      store.MarketStore
	logger     zerolog.Logger
	now        func() time.Time
	onResolved func(Result, string)
}

type Option func(*Resolver)

func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithOnResolved registers fn to run after every successful Resolve,
// including those made by SweepExpired.
func WithOnResolved(fn func(res Result, resolvedBy string)) Option {
	return func(r *Resolver) { r.onResolved = fn }
}

func New(s store.MarketStore, opts ...Option) *Resolver {
	r := &Resolver{store: s, logger: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve transitions marketID to resolved with the given outcome and then
// settles its bets. The transition is a conditional update, so of two
// concurrent calls exactly one succeeds and the other gets ErrMarketNotOpen.
func (r *Resolver) Resolve(ctx context.Context, marketID string, resolution models.Position, resolvedBy string) (Result, error) {
	res := Result{MarketID: marketID, Resolution: resolution, TotalPayout: decimal.Zero}
	if !resolution.Valid() {
		return res, ErrInvalidResolution
	}
	if resolvedBy == "" {
		return res, ErrResolverRequired
	}

	m, err := r.store.GetMarket(ctx, marketID)
	if errors.Is(err, store.ErrNotFound) {
		return res, ErrMarketNotFound
	}
	if err != nil {
		return res, fmt.Errorf("get market %s: %w", marketID, err)
	}
	if m.Status != models.MarketOpen {
		return res, ErrMarketNotOpen
	}

	ok, err := r.store.ResolveMarket(ctx, marketID, resolution, resolvedBy, r.now().UTC())
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}
	if !ok {
		return res, ErrMarketNotOpen
	}

	r.logger.Info().
		Str("market_id", marketID).
		Str("resolution", resolution.String()).
		Str("resolved_by", resolvedBy).
		Msg("market resolved")

	res, err = r.SettlePayouts(ctx, marketID, resolution)
	if err == nil && r.onResolved != nil {
		r.onResolved(res, resolvedBy)
	}
	return res, err
}

// SettlePayouts settles every unsettled bet of marketID. Winners are paid
// shares (or their stake when shares were never priced) at $1 each and get
// a payout row, committed together with the bet's settled flag. A bet
// settled by a concurrent pass is not counted here, so a second run over
// the same market reports zero and writes nothing.
func (r *Resolver) SettlePayouts(ctx context.Context, marketID string, resolution models.Position) (Result, error) {
	return r.settle(ctx, marketID, resolution, time.Time{})
}

// settle skips bets created after cutoff unless cutoff is zero.
func (r *Resolver) settle(ctx context.Context, marketID string, resolution models.Position, cutoff time.Time) (Result, error) {
	res := Result{MarketID: marketID, Resolution: resolution, TotalPayout: decimal.Zero}

	bets, err := r.store.ListUnsettledBets(ctx, marketID)
	if err != nil {
		return res, fmt.Errorf("list unsettled bets %s: %w", marketID, err)
	}

	for _, bet := range bets {
		if !cutoff.IsZero() && bet.CreatedAt.After(cutoff) {
			continue
		}
		payout := decimal.Zero
		winner := bet.Position == resolution
		if winner {
			payout = Payout(bet)
		}

		var row *models.MarketPayout
		if winner && payout.IsPositive() {
			row = &models.MarketPayout{
				MarketID:    marketID,
				UserAddress: bet.UserAddress,
				Amount:      payout,
				CreatedAt:   r.now().UTC(),
			}
		}

		ok, err := r.store.SettleBet(ctx, bet.ID, payout, row)
		if err != nil {
			return res, fmt.Errorf("settle bet %s: %w", bet.ID, err)
		}
		if !ok {
			continue
		}

		if row != nil {
			res.WinnersCount++
			res.TotalPayout = res.TotalPayout.Add(payout)
		} else {
			res.LosersCount++
		}
	}

	res.Success = true
	r.logger.Info().
		Str("market_id", marketID).
		Int("winners", res.WinnersCount).
		Int("losers", res.LosersCount).
		Str("total_payout", res.TotalPayout.String()).
		Msg("payouts settled")
	return res, nil
}

// SweepExpired first finishes payout passes that stopped partway, then
// auto-resolves expired price-feed markets as No. Manually resolved markets
// stay open past their end date. It returns the ids of the markets it
// resolved.
func (r *Resolver) SweepExpired(ctx context.Context, now time.Time) ([]string, error) {
	if _, err := r.SettleUnfinished(ctx); err != nil {
		return nil, err
	}

	expired, err := r.store.ListExpiredOpenMarkets(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list expired markets: %w", err)
	}

	resolved := []string{}
	for _, m := range expired {
		if m.Type != models.MarketPrice || m.ResolutionSource != models.SourcePriceFeed {
			continue
		}
		// No price oracle yet; expired price markets resolve No.
		_, err := r.Resolve(ctx, m.MarketID, models.PositionNo, AutoResolver)
		if errors.Is(err, ErrMarketNotOpen) {
			continue
		}
		if err != nil {
			return resolved, err
		}
		resolved = append(resolved, m.MarketID)
	}
	return resolved, nil
}

// SettleUnfinished re-runs the payout pass of every resolved market that
// still has unsettled bets, using the stored resolution. Bets placed after
// the resolution are left alone. The resolution hook fires for each market
// completed here, since the Resolve that left it unfinished returned an
// error instead.
func (r *Resolver) SettleUnfinished(ctx context.Context) ([]Result, error) {
	markets, err := r.store.ListUnsettledResolvedMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unfinished markets: %w", err)
	}

	var out []Result
	for _, m := range markets {
		if m.Resolution == nil || m.ResolvedAt == nil {
			continue
		}
		res, err := r.settle(ctx, m.MarketID, *m.Resolution, *m.ResolvedAt)
		if err != nil {
			return out, err
		}
		resolvedBy := AutoResolver
		if m.ResolvedBy != nil {
			resolvedBy = *m.ResolvedBy
		}
		r.logger.Warn().
			Str("market_id", m.MarketID).
			Int("settled", res.WinnersCount+res.LosersCount).
			Msg("finished interrupted payout pass")
		if r.onResolved != nil {
			r.onResolved(res, resolvedBy)
		}
		out = append(out, res)
	}
	return out, nil
}

// Payout is what a winning bet is owed: one dollar per share, or the stake
// when the bet carries no share count.
func Payout(bet models.MarketBet) decimal.Decimal {
	if bet.Shares == nil {
		return bet.Amount.Mul(decimal.NewFromFloat(pricing.PayoutPerShare))
	}
	return decimal.NewFromFloat(pricing.PotentialPayout(*bet.Shares)).Round(6)
}
