package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"MemoLedger/internal/models"
	"MemoLedger/internal/store"
)

const defaultExpenseDays = 30

type ExpenseReport struct {
	Expenses   []models.Expense           `json:"expenses"`
	Total      decimal.Decimal            `json:"total"`
	ByCategory map[string]decimal.Decimal `json:"byCategory"`
}

type Insights struct {
	Period           string                     `json:"period"`
	TotalSpent       decimal.Decimal            `json:"totalSpent"`
	TotalReceived    decimal.Decimal            `json:"totalReceived"`
	NetFlow          decimal.Decimal            `json:"netFlow"`
	ByCategory       map[string]decimal.Decimal `json:"byCategory"`
	TransactionCount int                        `json:"transactionCount"`
	PendingInvoices  int                        `json:"pendingInvoices"`
	TopCategory      string                     `json:"topCategory"`
}

// ListExpenses returns address's expense rows from the last days days
// (30 when days <= 0), optionally narrowed to one category, with the total
// and per-category sums.
func (s *Service) ListExpenses(ctx context.Context, address, category string, days int) (*ExpenseReport, error) {
	addr, err := s.address(ctx, "address", address)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = defaultExpenseDays
	}

	rows, err := s.store.ListExpenses(ctx, store.ExpenseFilter{
		UserAddress: addr,
		Category:    category,
		Since:       s.now().UTC().AddDate(0, 0, -days),
	})
	if err != nil {
		return nil, err
	}

	report := &ExpenseReport{
		Expenses:   rows,
		Total:      decimal.Zero,
		ByCategory: map[string]decimal.Decimal{},
	}
	if report.Expenses == nil {
		report.Expenses = []models.Expense{}
	}
	for _, e := range rows {
		report.Total = report.Total.Add(e.Amount)
		report.ByCategory[e.Category] = report.ByCategory[e.Category].Add(e.Amount)
	}
	return report, nil
}

// periodDays maps an insights period to its window. Unknown periods are a
// month.
func periodDays(period string) (string, int) {
	switch period {
	case "week":
		return period, 7
	case "quarter":
		return period, 90
	default:
		return "month", 30
	}
}

// Insights summarizes address's cash flow over period (week, month or
// quarter). Categories count outgoing rows only.
func (s *Service) Insights(ctx context.Context, address, period string) (*Insights, error) {
	addr, err := s.address(ctx, "address", address)
	if err != nil {
		return nil, err
	}
	period, days := periodDays(period)
	since := s.now().UTC().AddDate(0, 0, -days)

	rows, err := s.store.ListExpenses(ctx, store.ExpenseFilter{UserAddress: addr, Since: since})
	if err != nil {
		return nil, err
	}
	pending, err := s.store.ListInvoices(ctx, store.InvoiceFilter{
		CreatorAddress: addr,
		Status:         models.InvoicePending,
	})
	if err != nil {
		return nil, err
	}

	out := &Insights{
		Period:           period,
		TotalSpent:       decimal.Zero,
		TotalReceived:    decimal.Zero,
		ByCategory:       map[string]decimal.Decimal{},
		TransactionCount: len(rows),
		TopCategory:      "None",
	}
	for _, e := range rows {
		if e.Direction == models.DirectionIn {
			out.TotalReceived = out.TotalReceived.Add(e.Amount)
			continue
		}
		out.TotalSpent = out.TotalSpent.Add(e.Amount)
		out.ByCategory[e.Category] = out.ByCategory[e.Category].Add(e.Amount)
	}
	out.NetFlow = out.TotalReceived.Sub(out.TotalSpent)
	out.PendingInvoices = countSince(pending, since)
	out.TopCategory = topCategory(out.ByCategory)
	return out, nil
}

func countSince(invoices []models.Invoice, since time.Time) int {
	n := 0
	for _, inv := range invoices {
		if !inv.CreatedAt.Before(since) {
			n++
		}
	}
	return n
}

// topCategory returns the largest category; ties go to the name that sorts
// first.
func topCategory(byCategory map[string]decimal.Decimal) string {
	names := make([]string, 0, len(byCategory))
	for name := range byCategory {
		names = append(names, name)
	}
	if len(names) == 0 {
		return "None"
	}
	sort.Strings(names)

	top := names[0]
	for _, name := range names[1:] {
		if byCategory[name].GreaterThan(byCategory[top]) {
			top = name
		}
	}
	return top
}
