package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"MemoLedger/internal/memo"
	"MemoLedger/internal/models"
	"MemoLedger/internal/store"
)

type CreateInvoiceRequest struct {
	CreatorAddress string          `json:"creatorAddress"`
	Recipient      string          `json:"recipient"` // address, email or phone
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	DueDate        *time.Time      `json:"dueDate,omitempty"`
}

type InvoiceCreated struct {
	Invoice     *models.Invoice `json:"invoice"`
	MemoHash    string          `json:"memoHash"`
	PaymentMemo PaymentMemo     `json:"paymentMemo"`
}

// CreateInvoice records a pending invoice under a fresh memo hash. The
// recipient is resolved to an address when possible; an unresolved
// recipient is kept as an identifier only.
func (s *Service) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*InvoiceCreated, error) {
	creator, err := s.address(ctx, "creatorAddress", req.CreatorAddress)
	if err != nil {
		return nil, err
	}
	recipient := strings.TrimSpace(req.Recipient)
	if recipient == "" {
		return nil, invalid("recipient is required")
	}
	if !req.Amount.IsPositive() {
		return nil, invalid("amount must be positive")
	}

	inv := &models.Invoice{
		CreatorAddress:      creator,
		RecipientIdentifier: recipient,
		Amount:              req.Amount,
		Token:               s.token,
		Description:         strings.TrimSpace(req.Description),
		Status:              models.InvoicePending,
		DueDate:             req.DueDate,
		CreatedAt:           s.now().UTC(),
	}
	if addr, ok := s.resolveHandle(ctx, recipient); ok {
		inv.RecipientAddress = &addr
	}

	for attempt := 0; ; attempt++ {
		hash, err := memo.GenerateInvoiceHash()
		if err != nil {
			return nil, fmt.Errorf("generate memo hash: %w", err)
		}
		inv.ID = ""
		inv.MemoHash = hash

		err = s.store.CreateInvoice(ctx, inv)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrDuplicate) || attempt+1 >= maxHashAttempts {
			return nil, fmt.Errorf("create invoice: %w", err)
		}
	}

	s.logger.Info().
		Str("memo_hash", inv.MemoHash).
		Str("creator", creator).
		Str("amount", inv.Amount.String()).
		Msg("invoice created")

	return &InvoiceCreated{
		Invoice:     inv,
		MemoHash:    inv.MemoHash,
		PaymentMemo: newPaymentMemo(memo.KindInvoice, inv.MemoHash),
	}, nil
}

// ListInvoices returns invoices address sent ("sent", the default) or
// received ("received"). status "" or "all" matches every status.
func (s *Service) ListInvoices(ctx context.Context, address, direction, status string) ([]models.Invoice, error) {
	addr, err := s.address(ctx, "address", address)
	if err != nil {
		return nil, err
	}

	var f store.InvoiceFilter
	switch direction {
	case "", "sent":
		f.CreatorAddress = addr
	case "received":
		f.RecipientAddress = addr
	default:
		return nil, invalid("direction must be sent or received")
	}

	switch models.InvoiceStatus(status) {
	case "", "all":
	case models.InvoicePending, models.InvoicePaid, models.InvoiceOverdue:
		f.Status = models.InvoiceStatus(status)
	default:
		return nil, invalid("status must be pending, paid, overdue or all")
	}

	invoices, err := s.store.ListInvoices(ctx, f)
	if err != nil {
		return nil, err
	}
	if invoices == nil {
		invoices = []models.Invoice{}
	}
	return invoices, nil
}
