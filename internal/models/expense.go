package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a transfer an expense row records.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Spending categories assigned to expense rows.
const (
	CategoryFood          = "Food"
	CategoryTransport     = "Transport"
	CategoryShopping      = "Shopping"
	CategoryEntertainment = "Entertainment"
	CategoryBills         = "Bills"
	CategoryHealth        = "Health"
	CategoryEducation     = "Education"
	CategoryTravel        = "Travel"
	CategoryOther         = "Other"
)

// Expense is one side of a transfer as seen by one user. A payment between
// two parties yields two rows sharing TxHash and LogIndex with opposite
// Direction.
type Expense struct {
	ID           string          `json:"id"`
	UserAddress  string          `json:"userAddress"`
	TxHash       string          `json:"txHash"`
	LogIndex     uint            `json:"logIndex"`
	Amount       decimal.Decimal `json:"amount"`
	Token        string          `json:"token"`
	Category     string          `json:"category"`
	MemoRaw      string          `json:"memoRaw"`
	Description  string          `json:"description"`
	Direction    Direction       `json:"direction"`
	Counterparty string          `json:"counterparty"`
	CreatedAt    time.Time       `json:"createdAt"`
}
