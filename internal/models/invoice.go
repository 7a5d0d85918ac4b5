package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "pending"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceOverdue InvoiceStatus = "overdue"
)

// Invoice is a payment request settled by a transfer carrying INV:{MemoHash}.
// Status moves pending -> paid once and never back.
type Invoice struct {
	ID                  string          `json:"id"`
	CreatorAddress      string          `json:"creatorAddress"`
	RecipientIdentifier string          `json:"recipientIdentifier"`
	RecipientAddress    *string         `json:"recipientAddress,omitempty"`
	Amount              decimal.Decimal `json:"amount"`
	Token               string          `json:"token"`
	MemoHash            string          `json:"memoHash"`
	Description         string          `json:"description"`
	Status              InvoiceStatus   `json:"status"`
	PaidTxHash          *string         `json:"paidTxHash,omitempty"`
	PaidAt              *time.Time      `json:"paidAt,omitempty"`
	DueDate             *time.Time      `json:"dueDate,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
}

// NormalizeAddress returns the canonical stored form of a ledger address.
// Lookups compare addresses exactly, so every write path normalizes first.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
