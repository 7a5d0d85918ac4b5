package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MarketStatus is the lifecycle state of a prediction market.
type MarketStatus string

const (
	MarketOpen      MarketStatus = "open"
	MarketResolved  MarketStatus = "resolved"
	MarketCancelled MarketStatus = "cancelled"
)

// MarketType selects the pricing model.
type MarketType string

const (
	MarketBinary MarketType = "binary"
	MarketPrice  MarketType = "price"
)

// ResolutionSource says who resolves a market once it expires.
type ResolutionSource string

const (
	SourceManual    ResolutionSource = "manual"
	SourcePriceFeed ResolutionSource = "price_feed"
)

// Position is a side of a binary market. The numeric values are stored.
type Position int

const (
	PositionYes Position = 0
	PositionNo  Position = 1
)

func (p Position) String() string {
	switch p {
	case PositionYes:
		return "yes"
	case PositionNo:
		return "no"
	default:
		return fmt.Sprintf("Position(%d)", int(p))
	}
}

// Valid reports whether p is Yes or No.
func (p Position) Valid() bool {
	return p == PositionYes || p == PositionNo
}

// ParsePosition accepts "yes"/"no" (any case), "y"/"n" and "0"/"1".
func ParsePosition(s string) (Position, error) {
	switch s {
	case "yes", "Yes", "YES", "y", "Y", "0":
		return PositionYes, nil
	case "no", "No", "NO", "n", "N", "1":
		return PositionNo, nil
	}
	return 0, fmt.Errorf("invalid position %q", s)
}

// Market is a yes/no question that accepts bets until it is resolved.
// Resolution is immutable once set.
type Market struct {
	ID               string           `json:"id"`
	CreatorAddress   string           `json:"creatorAddress"`
	Question         string           `json:"question"`
	MarketID         string           `json:"marketId"`
	Type             MarketType       `json:"marketType"`
	ResolutionSource ResolutionSource `json:"resolutionSource"`
	EndDate          time.Time        `json:"endDate"`
	CreatedAt        time.Time        `json:"createdAt"`
	Status           MarketStatus     `json:"status"`
	Resolution       *Position        `json:"resolution,omitempty"`
	ResolvedAt       *time.Time       `json:"resolvedAt,omitempty"`
	ResolvedBy       *string          `json:"resolvedBy,omitempty"`
	TotalPool        decimal.Decimal  `json:"totalPool"`
	Token            string           `json:"token"`
}

// MarketBet is a stake on one side of a market. Settled flips false -> true
// exactly once.
type MarketBet struct {
	ID            string           `json:"id"`
	MarketID      string           `json:"marketId"`
	UserAddress   string           `json:"userAddress"`
	Position      Position         `json:"position"`
	Amount        decimal.Decimal  `json:"amount"`
	Shares        *float64         `json:"shares,omitempty"`
	PurchasePrice *float64         `json:"purchasePrice,omitempty"`
	Settled       bool             `json:"settled"`
	Payout        *decimal.Decimal `json:"payout,omitempty"`
	TxHash        string           `json:"txHash"`
	LogIndex      uint             `json:"logIndex"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// MarketPayout records what a winning bet is owed. One row per bet.
type MarketPayout struct {
	ID          string          `json:"id"`
	MarketID    string          `json:"marketId"`
	BetID       string          `json:"betId"`
	UserAddress string          `json:"userAddress"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   time.Time       `json:"createdAt"`
}
