// Package store defines the persistence contract the reconciliation core
// depends on. Every mutation that guards a state transition is a single
// conditional update, so concurrent callers race safely: the loser observes
// "nothing changed" rather than overwriting.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"MemoLedger/internal/models"
)

var (
	// ErrNotFound is returned when a lookup or conditional update matched no row.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicate is returned when an insert violates a uniqueness constraint.
	ErrDuplicate = errors.New("store: duplicate")
)

// InvoiceFilter narrows ListInvoices. Creator and Recipient are exclusive;
// an empty Status matches every status.
type InvoiceFilter struct {
	CreatorAddress   string
	RecipientAddress string
	Status           models.InvoiceStatus
	Limit            int
}

// ExpenseFilter narrows ListExpenses.
type ExpenseFilter struct {
	UserAddress string
	Category    string
	Since       time.Time
}

type InvoiceStore interface {
	// CreateInvoice inserts inv, assigning ID and CreatedAt when empty.
	// Returns ErrDuplicate when the memo hash is already taken.
	CreateInvoice(ctx context.Context, inv *models.Invoice) error

	GetInvoiceByMemoHash(ctx context.Context, memoHash string) (*models.Invoice, error)

	ListInvoices(ctx context.Context, f InvoiceFilter) ([]models.Invoice, error)

	// PayInvoice moves the pending invoice with memoHash to paid and, in the
	// same transaction, writes the expense rows ledger builds from it.
	// Returns ErrNotFound when no pending invoice matched.
	PayInvoice(ctx context.Context, memoHash, txHash string, paidAt time.Time, ledger func(*models.Invoice) []models.Expense) (*models.Invoice, error)
}

type ExpenseStore interface {
	// InsertExpenses writes rows, silently skipping any whose
	// (tx_hash, log_index, direction) already exists. Returns rows written.
	InsertExpenses(ctx context.Context, rows ...models.Expense) (int, error)

	ListExpenses(ctx context.Context, f ExpenseFilter) ([]models.Expense, error)
}

type SplitStore interface {
	// CreateSplit inserts the split and its members in one transaction.
	CreateSplit(ctx context.Context, s *models.Split, members []models.SplitMember) error

	GetSplitBySplitID(ctx context.Context, splitID string) (*models.Split, error)

	// ListSplitsForAddress returns splits created by address or having it as
	// a member, newest first, with members attached.
	ListSplitsForAddress(ctx context.Context, address string) ([]models.Split, error)

	// FindUnpaidMember returns an unpaid member row for address. When
	// splitRowID is empty any split matches and the oldest row wins.
	FindUnpaidMember(ctx context.Context, address, splitRowID string) (*models.SplitMember, error)

	// PaySplitMember flips paid false -> true and settles the split in the
	// same transaction once no member is unpaid. Reports whether each
	// transition happened.
	PaySplitMember(ctx context.Context, memberID, txHash string) (paid, settled bool, err error)

	ListSplitMembers(ctx context.Context, splitRowID string) ([]models.SplitMember, error)

	// SettleSplit moves an active split to settled, but only while no member
	// is unpaid. Reports whether it did.
	SettleSplit(ctx context.Context, splitRowID string) (bool, error)
}

type MarketStore interface {
	CreateMarket(ctx context.Context, m *models.Market) error

	GetMarket(ctx context.Context, marketID string) (*models.Market, error)

	// ListMarkets returns markets with the given status, or all when empty.
	ListMarkets(ctx context.Context, status models.MarketStatus) ([]models.Market, error)

	// ListExpiredOpenMarkets returns open markets whose end date is not after now.
	ListExpiredOpenMarkets(ctx context.Context, now time.Time) ([]models.Market, error)

	ListBets(ctx context.Context, marketID string) ([]models.MarketBet, error)

	ListUnsettledBets(ctx context.Context, marketID string) ([]models.MarketBet, error)

	// RecordBet inserts the bet and adds its amount to the market pool in
	// one transaction. A bet already recorded for the same (tx_hash,
	// log_index) is skipped and reported as false.
	RecordBet(ctx context.Context, bet *models.MarketBet) (bool, error)

	// ResolveMarket moves an open market to resolved. Reports false when the
	// market was not open (or does not exist).
	ResolveMarket(ctx context.Context, marketID string, resolution models.Position, resolvedBy string, at time.Time) (bool, error)

	// SettleBet flips settled false -> true and stores payout. When p is
	// non-nil its payout row is written in the same transaction. Reports
	// whether the bet was settled by this call.
	SettleBet(ctx context.Context, betID string, payout decimal.Decimal, p *models.MarketPayout) (bool, error)

	// ListUnsettledResolvedMarkets returns resolved markets that still have
	// unsettled bets placed at or before their resolution.
	ListUnsettledResolvedMarkets(ctx context.Context) ([]models.Market, error)

	ListPayouts(ctx context.Context, marketID string) ([]models.MarketPayout, error)
}

// CursorStore keeps the high-water mark of a ledger poller.
type CursorStore interface {
	// GetCursor returns the last processed height for source. ok is false
	// when no cursor was stored yet.
	GetCursor(ctx context.Context, source string) (height uint64, ok bool, err error)

	SetCursor(ctx context.Context, source string, height uint64) error
}

// Store is the full persistence surface.
type Store interface {
	InvoiceStore
	ExpenseStore
	SplitStore
	MarketStore
	CursorStore

	Ping(ctx context.Context) error
	Close() error
}
