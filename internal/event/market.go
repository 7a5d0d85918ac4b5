package event

import (
	"MemoLedger/internal/resolver"
)

// MarketResolved is emitted once per successful resolution.
type MarketResolved struct {
	Result     resolver.Result `json:"result"`
	ResolvedBy string          `json:"resolvedBy"`
}

func (m *MarketResolved) IdempotencyKey() string {
	return m.Result.MarketID
}

func (m *MarketResolved) EventType() EventType {
	return EventTypeMarketResolved
}

func (m *MarketResolved) MarketID() *string {
	id := m.Result.MarketID
	return &id
}
