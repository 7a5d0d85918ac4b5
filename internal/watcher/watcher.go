// Package watcher runs one bounded pass over recent ledger transfers and
// hands every memo-bearing event to the reconciliation dispatcher.
//
// A pass is triggered externally. Without a cursor the only protection
// against gaps is the lookback window: an event older than Lookback blocks
// at the time of the next pass is never seen again.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"MemoLedger/internal/memo"
	"MemoLedger/internal/reconcile"
	"MemoLedger/internal/store"
)

// DefaultLookback is the number of blocks scanned behind the current height.
const DefaultLookback = 100

// ErrLedger wraps every ledger read failure. A pass that returns it has not
// mutated the store.
var ErrLedger = errors.New("watcher: ledger failure")

// LedgerClient reads transfer-with-memo events from the ledger.
type LedgerClient interface {
	CurrentHeight(ctx context.Context) (uint64, error)
	// TransferEvents returns events of token within [from, to], inclusive,
	// in ledger order.
	TransferEvents(ctx context.Context, token string, from, to uint64) ([]reconcile.Transfer, error)
}

// Dispatcher applies one decoded transfer.
type Dispatcher interface {
	Dispatch(ctx context.Context, tr reconcile.Transfer, m memo.Memo) (reconcile.Outcome, error)
}

// Recorder receives pass statistics. *observability.Metrics implements it.
type Recorder interface {
	ObservePoll(s Summary, elapsed time.Duration, err error)
}

type BlockRange struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// Summary describes one pass. EventsFound counts every fetched event,
// Processed only those whose dispatch changed a record.
type Summary struct {
	Processed   int                 `json:"processed"`
	EventsFound int                 `json:"eventsFound"`
	Malformed   int                 `json:"malformed"`
	BlockRange  BlockRange          `json:"blockRange"`
	Outcomes    []reconcile.Outcome `json:"outcomes,omitempty"`
}

type Watcher struct {
	ledger     LedgerClient
	dispatcher Dispatcher
	token      string
	lookback   uint64
	source     string

	cursors store.CursorStore
	maxSpan uint64

	recorder Recorder
	logger   zerolog.Logger
}

type Option func(*Watcher)

// WithToken sets the token contract whose transfers are watched.
func WithToken(token string) Option {
	return func(w *Watcher) { w.token = token }
}

func WithLookback(blocks uint64) Option {
	return func(w *Watcher) {
		if blocks > 0 {
			w.lookback = blocks
		}
	}
}

// WithCursor makes passes resume from the last fully processed height kept
// in cs under source. maxSpan caps how far back a resumed pass reaches; zero
// means no cap.
func WithCursor(cs store.CursorStore, source string, maxSpan uint64) Option {
	return func(w *Watcher) {
		w.cursors = cs
		w.source = source
		w.maxSpan = maxSpan
	}
}

func WithRecorder(r Recorder) Option {
	return func(w *Watcher) { w.recorder = r }
}

func WithLogger(l zerolog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

func New(ledger LedgerClient, dispatcher Dispatcher, opts ...Option) *Watcher {
	w := &Watcher{
		ledger:     ledger,
		dispatcher: dispatcher,
		lookback:   DefaultLookback,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Poll runs one pass. Ledger failures abort before any dispatch. A store
// failure aborts the remaining events; events already dispatched stay
// applied and the cursor, if any, is not advanced.
func (w *Watcher) Poll(ctx context.Context) (summary Summary, err error) {
	start := time.Now()
	defer func() {
		if w.recorder != nil {
			w.recorder.ObservePoll(summary, time.Since(start), err)
		}
	}()

	current, err := w.ledger.CurrentHeight(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: current height: %w", ErrLedger, err)
	}

	from, err := w.fromHeight(ctx, current)
	if err != nil {
		return Summary{}, err
	}
	summary.BlockRange = BlockRange{From: from, To: current}

	events, err := w.ledger.TransferEvents(ctx, w.token, from, current)
	if err != nil {
		return summary, fmt.Errorf("%w: transfer events [%d, %d]: %w", ErrLedger, from, current, err)
	}
	summary.EventsFound = len(events)

	for _, ev := range events {
		if memo.IsZero(ev.Memo) {
			continue
		}
		m, err := memo.Decode(ev.Memo)
		if err != nil {
			summary.Malformed++
			w.logger.Warn().
				Str("tx_hash", ev.TxHash).
				Uint("log_index", ev.LogIndex).
				Str("memo", memo.Hex(ev.Memo)).
				Msg("skipping undecodable memo")
			continue
		}

		out, err := w.dispatcher.Dispatch(ctx, ev, m)
		if err != nil {
			return summary, fmt.Errorf("dispatch %s/%d: %w", ev.TxHash, ev.LogIndex, err)
		}
		summary.Outcomes = append(summary.Outcomes, out)
		if out.Applied() {
			summary.Processed++
		}
	}

	if w.cursors != nil {
		if err := w.cursors.SetCursor(ctx, w.source, current); err != nil {
			return summary, fmt.Errorf("advance cursor: %w", err)
		}
	}

	w.logger.Info().
		Uint64("from", from).
		Uint64("to", current).
		Int("events", summary.EventsFound).
		Int("processed", summary.Processed).
		Int("malformed", summary.Malformed).
		Dur("elapsed", time.Since(start)).
		Msg("watch pass complete")
	return summary, nil
}

// fromHeight is current-lookback, or with a cursor the block after the
// last processed one when that is older, bounded by maxSpan.
func (w *Watcher) fromHeight(ctx context.Context, current uint64) (uint64, error) {
	from := saturatingSub(current, w.lookback)
	if w.cursors == nil {
		return from, nil
	}

	last, ok, err := w.cursors.GetCursor(ctx, w.source)
	if err != nil {
		return 0, fmt.Errorf("read cursor: %w", err)
	}
	if ok && last+1 < from {
		from = last + 1
	}
	if w.maxSpan > 0 {
		if floor := saturatingSub(current, w.maxSpan); from < floor {
			from = floor
		}
	}
	return from, nil
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}
