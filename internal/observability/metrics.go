package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"MemoLedger/internal/reconcile"
	"MemoLedger/internal/resolver"
	"MemoLedger/internal/watcher"
)

// Metrics holds all Prometheus metrics for MemoLedger.
type Metrics struct {
	// --- Watcher ---
	WatchPolls        *prometheus.CounterVec
	WatchPollDuration prometheus.Histogram
	WatchEventsFound  prometheus.Counter
	WatchMalformed    prometheus.Counter
	WatchLastBlock    prometheus.Gauge

	// --- Reconciliation ---
	DispatchOutcomes *prometheus.CounterVec
	DispatchErrors   *prometheus.CounterVec

	// --- Markets ---
	MarketsResolved *prometheus.CounterVec
	PayoutsSettled  prometheus.Counter
	PayoutAmount    prometheus.Counter

	// --- Outbound ---
	PublishDrops prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// registers with the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	pollBuckets := []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

	return &Metrics{
		WatchPolls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "memo_watch_polls_total",
			Help: "Watch passes by result (ok, error)",
		}, []string{"result"}),

		WatchPollDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "memo_watch_poll_duration_seconds",
			Help:    "Wall time of one watch pass",
			Buckets: pollBuckets,
		}),

		WatchEventsFound: f.NewCounter(prometheus.CounterOpts{
			Name: "memo_watch_events_found_total",
			Help: "Transfer events fetched from the ledger",
		}),

		WatchMalformed: f.NewCounter(prometheus.CounterOpts{
			Name: "memo_watch_malformed_memos_total",
			Help: "Events whose memo could not be decoded",
		}),

		WatchLastBlock: f.NewGauge(prometheus.GaugeOpts{
			Name: "memo_watch_last_block",
			Help: "Upper bound of the last successful scan range",
		}),

		DispatchOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "memo_dispatch_outcomes_total",
			Help: "Dispatched transfers by source, memo kind and action",
		}, []string{"source", "kind", "action"}),

		DispatchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "memo_dispatch_errors_total",
			Help: "Dispatches that failed with a store error",
		}, []string{"source"}),

		MarketsResolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "memo_markets_resolved_total",
			Help: "Markets resolved by outcome",
		}, []string{"resolution"}),

		PayoutsSettled: f.NewCounter(prometheus.CounterOpts{
			Name: "memo_payouts_settled_total",
			Help: "Winning bets paid out",
		}),

		PayoutAmount: f.NewCounter(prometheus.CounterOpts{
			Name: "memo_payout_amount_dollars_total",
			Help: "Sum of payouts in dollars",
		}),

		PublishDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "memo_publish_drops_total",
			Help: "Outbound events dropped because the queue was full",
		}),

		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "memo_query_requests_total",
			Help: "HTTP API requests by route and status code",
		}, []string{"route", "code"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "memo_query_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// ObservePoll records one watch pass.
func (m *Metrics) ObservePoll(s watcher.Summary, elapsed time.Duration, err error) {
	m.WatchPollDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.WatchPolls.WithLabelValues("error").Inc()
		return
	}
	m.WatchPolls.WithLabelValues("ok").Inc()
	m.WatchEventsFound.Add(float64(s.EventsFound))
	m.WatchMalformed.Add(float64(s.Malformed))
	if s.BlockRange.To > 0 {
		m.WatchLastBlock.Set(float64(s.BlockRange.To))
	}
	for _, out := range s.Outcomes {
		m.DispatchOutcomes.WithLabelValues("watch", string(out.Kind), string(out.Action)).Inc()
	}
}

// ObserveDispatch records one pushed transfer.
func (m *Metrics) ObserveDispatch(source string, out reconcile.Outcome, err error) {
	if err != nil {
		m.DispatchErrors.WithLabelValues(source).Inc()
		return
	}
	m.DispatchOutcomes.WithLabelValues(source, string(out.Kind), string(out.Action)).Inc()
}

// ObserveResolution records a resolution and its payout pass.
func (m *Metrics) ObserveResolution(r resolver.Result) {
	m.MarketsResolved.WithLabelValues(r.Resolution.String()).Inc()
	m.PayoutsSettled.Add(float64(r.WinnersCount))
	f, _ := r.TotalPayout.Float64()
	m.PayoutAmount.Add(f)
}

// ObserveRequest records one HTTP API request.
func (m *Metrics) ObserveRequest(route string, code int, elapsed time.Duration) {
	m.QueryRequests.WithLabelValues(route, httpCode(code)).Inc()
	m.QueryDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
