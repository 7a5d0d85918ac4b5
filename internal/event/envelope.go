package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeTransferObserved
	EventTypeTransferReconciled
	EventTypeMarketResolved
)

// EventEnvelope wraps every event published downstream.
type EventEnvelope struct {
	// Event type discriminator
	EventType EventType `json:"-"`

	// Stable idempotency key so consumers can dedupe redeliveries
	IdempotencyKey string `json:"idempotency_key"`

	// Market context (nil for non-market events)
	MarketID *string `json:"market_id,omitempty"`

	// Wall-clock time the event was produced
	Timestamp time.Time `json:"timestamp"`

	Payload Event `json:"payload"`
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// MarketID returns the market context (nil for other events)
	MarketID() *string
}

// Wrap builds the envelope for evt.
func Wrap(evt Event, at time.Time) EventEnvelope {
	return EventEnvelope{
		EventType:      evt.EventType(),
		IdempotencyKey: evt.IdempotencyKey(),
		MarketID:       evt.MarketID(),
		Timestamp:      at,
		Payload:        evt,
	}
}

func (et EventType) String() string {
	switch et {
	case EventTypeTransferObserved:
		return "TransferObserved"
	case EventTypeTransferReconciled:
		return "TransferReconciled"
	case EventTypeMarketResolved:
		return "MarketResolved"
	default:
		return "Unknown"
	}
}
