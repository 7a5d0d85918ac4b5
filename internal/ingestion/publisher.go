package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"MemoLedger/internal/event"
)

const (
	OutboundStream = "MEMO_LEDGER_EVENTS"
	outboundRoot   = "memo.ledger.events"
)

// StreamPublisher is the subset of jetstream.JetStream the publisher needs.
type StreamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// OutboundPublisher publishes ledger events to NATS for downstream consumers.
// Events are published after the store write they describe has committed.
// Subjects follow the pattern memo.ledger.events.{event_type}[.{market_id}].
type OutboundPublisher struct {
	js     StreamPublisher
	queue  chan PublishableEvent
	logger zerolog.Logger
	onDrop func()
}

// PublishableEvent is the JSON body of an outbound message.
type PublishableEvent struct {
	EventType      string      `json:"event_type"`
	IdempotencyKey string      `json:"idempotency_key"`
	MarketID       *string     `json:"market_id,omitempty"`
	Payload        interface{} `json:"payload"`
	Timestamp      time.Time   `json:"timestamp"`
}

// FromEnvelope flattens env into its wire form.
func FromEnvelope(env event.EventEnvelope) PublishableEvent {
	return PublishableEvent{
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		MarketID:       env.MarketID,
		Payload:        env.Payload,
		Timestamp:      env.Timestamp,
	}
}

// Subject returns the NATS subject evt is published on.
func (evt PublishableEvent) Subject() string {
	subject := fmt.Sprintf("%s.%s", outboundRoot, evt.EventType)
	if evt.MarketID != nil && *evt.MarketID != "" {
		subject = fmt.Sprintf("%s.%s", subject, *evt.MarketID)
	}
	return subject
}

// NewOutboundPublisher creates a publisher with a queue of the given size.
// onDrop is called for every event discarded because the queue is full; it
// may be nil.
func NewOutboundPublisher(js StreamPublisher, size int, logger zerolog.Logger, onDrop func()) *OutboundPublisher {
	if size <= 0 {
		size = 1024
	}
	return &OutboundPublisher{
		js:     js,
		queue:  make(chan PublishableEvent, size),
		logger: logger,
		onDrop: onDrop,
	}
}

// Enqueue schedules evt for publishing without blocking. It reports false if
// the queue was full and the event was dropped.
func (op *OutboundPublisher) Enqueue(evt event.Event) bool {
	select {
	case op.queue <- FromEnvelope(event.Wrap(evt, time.Now().UTC())):
		return true
	default:
		if op.onDrop != nil {
			op.onDrop()
		}
		op.logger.Warn().
			Str("event_type", evt.EventType().String()).
			Str("key", evt.IdempotencyKey()).
			Msg("outbound queue full, event dropped")
		return false
	}
}

// Run drains the queue until ctx is cancelled.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt := <-op.queue:
			if err := op.publish(ctx, evt); err != nil {
				// Non-fatal: the store remains the source of truth
				op.logger.Warn().Err(err).
					Str("subject", evt.Subject()).
					Str("key", evt.IdempotencyKey).
					Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, evt PublishableEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// Msg-Id lets JetStream dedupe republished events
	_, err = op.js.Publish(ctx, evt.Subject(), data,
		jetstream.WithMsgID(evt.EventType+":"+evt.IdempotencyKey))
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       OutboundStream,
		Subjects:   []string{outboundRoot + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Duplicates: 10 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	logger.Info().Str("stream", OutboundStream).Msg("ensured outbound stream")
	return nil
}
