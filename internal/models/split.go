package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SplitStatus is the lifecycle state of a bill split.
type SplitStatus string

const (
	SplitActive    SplitStatus = "active"
	SplitSettled   SplitStatus = "settled"
	SplitCancelled SplitStatus = "cancelled"
)

// Split is a bill shared between members. It becomes settled the moment
// every member row is paid.
type Split struct {
	ID             string          `json:"id"`
	CreatorAddress string          `json:"creatorAddress"`
	Title          string          `json:"title"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	Token          string          `json:"token"`
	SplitID        string          `json:"splitId"`
	Status         SplitStatus     `json:"status"`
	CreatedAt      time.Time       `json:"createdAt"`

	Members []SplitMember `json:"members,omitempty"`
}

// SplitMember is one participant's share of a split. SplitID references
// Split.ID (the row key), not the public Split.SplitID.
type SplitMember struct {
	ID         string          `json:"id"`
	SplitID    string          `json:"splitId"`
	Address    string          `json:"address"`
	Identifier string          `json:"identifier"`
	Amount     decimal.Decimal `json:"amount"`
	Paid       bool            `json:"paid"`
	TxHash     *string         `json:"txHash,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// AllPaid reports whether every member has paid. An empty member list is
// not considered paid.
func AllPaid(members []SplitMember) bool {
	if len(members) == 0 {
		return false
	}
	for _, m := range members {
		if !m.Paid {
			return false
		}
	}
	return true
}
