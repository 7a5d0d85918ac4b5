package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"MemoLedger/internal/models"
	"MemoLedger/internal/store"
)

const invoiceColumns = `id, creator_address, recipient_identifier, recipient_address, amount, token,
	memo_hash, description, status, paid_tx_hash, paid_at, due_date, created_at`

func (s *SQLStore) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	ensureID(&inv.ID)
	ensureCreated(&inv.CreatedAt)
	if inv.Status == "" {
		inv.Status = models.InvoicePending
	}

	_, err := s.exec(ctx, s.db, `INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.CreatorAddress, inv.RecipientIdentifier, nullString(inv.RecipientAddress),
		inv.Amount, inv.Token, inv.MemoHash, inv.Description, string(inv.Status),
		nullString(inv.PaidTxHash), nullMicros(inv.PaidAt), nullMicros(inv.DueDate),
		toMicros(inv.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert invoice %s: %w", inv.MemoHash, store.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

func (s *SQLStore) GetInvoiceByMemoHash(ctx context.Context, memoHash string) (*models.Invoice, error) {
	return s.getInvoice(ctx, s.db, memoHash)
}

func (s *SQLStore) getInvoice(ctx context.Context, q queryRower, memoHash string) (*models.Invoice, error) {
	row := s.queryRow(ctx, q, `SELECT `+invoiceColumns+` FROM invoices WHERE memo_hash = ?`, memoHash)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice %s: %w", memoHash, err)
	}
	return inv, nil
}

func (s *SQLStore) ListInvoices(ctx context.Context, f store.InvoiceFilter) ([]models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE 1 = 1`
	var args []any
	if f.CreatorAddress != "" {
		query += ` AND creator_address = ?`
		args = append(args, f.CreatorAddress)
	}
	if f.RecipientAddress != "" {
		query += ` AND recipient_address = ?`
		args = append(args, f.RecipientAddress)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var out []models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// PayInvoice moves the pending invoice to paid and writes the ledger rows
// built from it in the same transaction.
func (s *SQLStore) PayInvoice(ctx context.Context, memoHash, txHash string, paidAt time.Time, ledger func(*models.Invoice) []models.Expense) (*models.Invoice, error) {
	var inv *models.Invoice
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, `UPDATE invoices
			SET status = ?, paid_tx_hash = ?, paid_at = ?
			WHERE memo_hash = ? AND status = ?`,
			string(models.InvoicePaid), txHash, toMicros(paidAt),
			memoHash, string(models.InvoicePending),
		)
		if err != nil {
			return fmt.Errorf("mark invoice paid: %w", err)
		}
		changed, err := rowsChanged(res)
		if err != nil {
			return err
		}
		if !changed {
			return store.ErrNotFound
		}
		if inv, err = s.getInvoice(ctx, tx, memoHash); err != nil {
			return err
		}
		if ledger == nil {
			return nil
		}
		_, err = s.insertExpenses(ctx, tx, ledger(inv)...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func scanInvoice(r scanner) (*models.Invoice, error) {
	var (
		inv               models.Invoice
		status            string
		recipient, paidTx sql.NullString
		paidAt, due       sql.NullInt64
		createdAt         int64
	)
	err := r.Scan(&inv.ID, &inv.CreatorAddress, &inv.RecipientIdentifier, &recipient,
		&inv.Amount, &inv.Token, &inv.MemoHash, &inv.Description, &status,
		&paidTx, &paidAt, &due, &createdAt)
	if err != nil {
		return nil, err
	}
	inv.Status = models.InvoiceStatus(status)
	inv.RecipientAddress = stringPtr(recipient)
	inv.PaidTxHash = stringPtr(paidTx)
	inv.PaidAt = timePtr(paidAt)
	inv.DueDate = timePtr(due)
	inv.CreatedAt = fromMicros(createdAt)
	return &inv, nil
}
