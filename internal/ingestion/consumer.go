package ingestion

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"MemoLedger/internal/event"
	"MemoLedger/internal/math"
	"MemoLedger/internal/memo"
	"MemoLedger/internal/reconcile"
)

// Dispatcher applies one decoded transfer.
type Dispatcher interface {
	Dispatch(ctx context.Context, tr reconcile.Transfer, m memo.Memo) (reconcile.Outcome, error)
}

// Notifier receives events produced by the consumer.
type Notifier interface {
	Enqueue(evt event.Event) bool
}

// Recorder observes every dispatch attempt.
type Recorder interface {
	ObserveDispatch(source string, out reconcile.Outcome, err error)
}

// Consumer turns pushed RawEvents into dispatches. Transfers are acked once
// the store write commits and nakked on store failure; redelivery is safe
// because every dispatch is idempotent.
type Consumer struct {
	dispatcher    Dispatcher
	token         math.TokenConfig
	subjectToType map[string]string
	notifier      Notifier
	recorder      Recorder
	seen          *seenCache
	logger        zerolog.Logger
}

type ConsumerOption func(*Consumer)

func WithNotifier(n Notifier) ConsumerOption {
	return func(c *Consumer) { c.notifier = n }
}

func WithDispatchRecorder(r Recorder) ConsumerOption {
	return func(c *Consumer) { c.recorder = r }
}

func WithConsumerLogger(l zerolog.Logger) ConsumerOption {
	return func(c *Consumer) { c.logger = l }
}

func WithTokenConfig(cfg math.TokenConfig) ConsumerOption {
	return func(c *Consumer) { c.token = cfg }
}

// WithSeenCache remembers the last capacity applied transfers so their
// redeliveries skip the store.
func WithSeenCache(capacity int) ConsumerOption {
	return func(c *Consumer) {
		if capacity > 0 {
			c.seen = newSeenCache(capacity)
		}
	}
}

func NewConsumer(d Dispatcher, subjects []SubjectConfig, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		dispatcher:    d,
		token:         math.StableConfig,
		subjectToType: make(map[string]string, len(subjects)),
		logger:        zerolog.Nop(),
	}
	for _, cfg := range subjects {
		prefix := strings.TrimSuffix(cfg.Subject, ">")
		c.subjectToType[prefix] = cfg.EventType
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes events until ctx is cancelled or events is closed.
func (c *Consumer) Run(ctx context.Context, events <-chan RawEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-events:
			if !ok {
				return nil
			}
			if err := c.Handle(ctx, raw); err != nil && errors.Is(err, context.Canceled) {
				return err
			}
		}
	}
}

// Handle processes one event and acks or naks it. The returned error is the
// store failure, if any.
func (c *Consumer) Handle(ctx context.Context, raw RawEvent) error {
	eventType := resolveEventType(raw.Subject, c.subjectToType)
	if eventType == "" {
		c.logger.Warn().Str("subject", raw.Subject).Msg("unknown NATS subject")
		ack(raw) // Ack invalid events to avoid a redelivery loop
		return nil
	}

	evt, err := ParseRawEvent(raw, eventType)
	if err != nil {
		c.logger.Warn().Err(err).Str("subject", raw.Subject).Msg("parse event failed")
		ack(raw)
		return nil
	}

	obs, ok := evt.(*event.TransferObserved)
	if !ok {
		ack(raw)
		return nil
	}
	if memo.IsZero(obs.Memo) {
		ack(raw)
		return nil
	}
	key := obs.IdempotencyKey()
	if c.seen != nil && c.seen.Contains(key) {
		c.logger.Debug().Str("key", key).Msg("redelivered transfer already applied")
		ack(raw)
		return nil
	}

	m, err := memo.Decode(obs.Memo)
	if err != nil {
		c.logger.Warn().Err(err).
			Str("tx_hash", obs.TxHash).
			Uint("log_index", obs.LogIndex).
			Str("memo", memo.Hex(obs.Memo)).
			Msg("malformed memo")
		ack(raw)
		return nil
	}

	out, err := c.dispatcher.Dispatch(ctx, obs.Transfer(c.token), m)
	if c.recorder != nil {
		c.recorder.ObserveDispatch("nats", out, err)
	}
	if err != nil {
		c.logger.Error().Err(err).
			Str("tx_hash", obs.TxHash).
			Uint("log_index", obs.LogIndex).
			Msg("dispatch failed")
		nak(raw)
		return err
	}

	ack(raw)
	if !out.Applied() {
		return nil
	}
	if c.seen != nil {
		c.seen.Add(key)
	}
	if c.notifier != nil {
		c.notifier.Enqueue(&event.TransferReconciled{Outcome: out})
	}
	return nil
}

func ack(raw RawEvent) {
	if raw.AckFunc != nil {
		raw.AckFunc()
	}
}

func nak(raw RawEvent) {
	if raw.NakFunc != nil {
		raw.NakFunc()
	}
}

// resolveEventType finds the event type for a NATS subject by matching the longest prefix.
func resolveEventType(subject string, prefixMap map[string]string) string {
	bestMatch := ""
	bestType := ""
	for prefix, evtType := range prefixMap {
		if strings.HasPrefix(subject, prefix) && len(prefix) > len(bestMatch) {
			bestMatch = prefix
			bestType = evtType
		}
	}
	return bestType
}
