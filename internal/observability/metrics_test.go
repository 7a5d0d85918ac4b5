package observability_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"MemoLedger/internal/memo"
	"MemoLedger/internal/models"
	"MemoLedger/internal/observability"
	"MemoLedger/internal/reconcile"
	"MemoLedger/internal/resolver"
	"MemoLedger/internal/watcher"
)

func newMetrics(t *testing.T) *observability.Metrics {
	t.Helper()
	return observability.NewMetrics(prometheus.NewRegistry())
}

func TestObservePoll(t *testing.T) {
	m := newMetrics(t)

	m.ObservePoll(watcher.Summary{
		Processed:   1,
		EventsFound: 3,
		Malformed:   1,
		BlockRange:  watcher.BlockRange{From: 900, To: 1000},
		Outcomes: []reconcile.Outcome{
			{Kind: memo.KindInvoice, Action: reconcile.ActionInvoicePaid},
			{Kind: memo.KindInvoice, Action: reconcile.ActionSkipped},
		},
	}, 20*time.Millisecond, nil)
	m.ObservePoll(watcher.Summary{}, time.Millisecond, errors.New("rpc down"))

	if got := testutil.ToFloat64(m.WatchPolls.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok polls: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.WatchPolls.WithLabelValues("error")); got != 1 {
		t.Errorf("error polls: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.WatchEventsFound); got != 3 {
		t.Errorf("events found: got %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.WatchMalformed); got != 1 {
		t.Errorf("malformed: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.WatchLastBlock); got != 1000 {
		t.Errorf("last block: got %v, want 1000", got)
	}
	if got := testutil.ToFloat64(m.DispatchOutcomes.WithLabelValues("watch", "INV", "invoice_paid")); got != 1 {
		t.Errorf("invoice_paid outcomes: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DispatchOutcomes.WithLabelValues("watch", "INV", "skipped")); got != 1 {
		t.Errorf("skipped outcomes: got %v, want 1", got)
	}
}

func TestObserveDispatch(t *testing.T) {
	m := newMetrics(t)

	m.ObserveDispatch("nats", reconcile.Outcome{Kind: memo.KindExpense, Action: reconcile.ActionExpenseRecorded}, nil)
	m.ObserveDispatch("nats", reconcile.Outcome{}, errors.New("db down"))

	if got := testutil.ToFloat64(m.DispatchOutcomes.WithLabelValues("nats", "EXP", "expense_recorded")); got != 1 {
		t.Errorf("outcomes: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DispatchErrors.WithLabelValues("nats")); got != 1 {
		t.Errorf("errors: got %v, want 1", got)
	}
}

func TestObserveResolution(t *testing.T) {
	m := newMetrics(t)

	m.ObserveResolution(resolver.Result{
		Success:      true,
		MarketID:     "m1",
		Resolution:   models.PositionYes,
		WinnersCount: 2,
		LosersCount:  1,
		TotalPayout:  decimal.RequireFromString("27"),
	})

	if got := testutil.ToFloat64(m.MarketsResolved.WithLabelValues(models.PositionYes.String())); got != 1 {
		t.Errorf("resolved: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PayoutsSettled); got != 2 {
		t.Errorf("payouts: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.PayoutAmount); got != 27 {
		t.Errorf("payout amount: got %v, want 27", got)
	}
}

func TestObserveRequest(t *testing.T) {
	m := newMetrics(t)
	m.ObserveRequest("/api/invoices", 200, 5*time.Millisecond)
	m.ObserveRequest("/api/invoices", 400, time.Millisecond)

	if got := testutil.ToFloat64(m.QueryRequests.WithLabelValues("/api/invoices", "200")); got != 1 {
		t.Errorf("200s: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.QueryRequests.WithLabelValues("/api/invoices", "400")); got != 1 {
		t.Errorf("400s: got %v, want 1", got)
	}
}
