package persistence

import (
	"context"
	"fmt"
	"strings"

	"MemoLedger/internal/models"
	"MemoLedger/internal/store"
)

const expenseColumns = `id, user_address, tx_hash, log_index, amount, token, category,
	memo_raw, description, direction, counterparty, created_at`

// InsertExpenses writes all rows with one multi-row INSERT.
func (s *SQLStore) InsertExpenses(ctx context.Context, rows ...models.Expense) (int, error) {
	return s.insertExpenses(ctx, s.db, rows...)
}

func (s *SQLStore) insertExpenses(ctx context.Context, ex execer, rows ...models.Expense) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*12)
	for i := range rows {
		e := &rows[i]
		ensureID(&e.ID)
		ensureCreated(&e.CreatedAt)
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			e.ID, e.UserAddress, e.TxHash, int64(e.LogIndex), e.Amount, e.Token, e.Category,
			e.MemoRaw, e.Description, string(e.Direction), e.Counterparty, toMicros(e.CreatedAt),
		)
	}

	query := `INSERT INTO expenses (` + expenseColumns + `) VALUES ` + strings.Join(values, ", ")
	query += ` ON CONFLICT (tx_hash, log_index, direction) DO NOTHING` // Idempotent writes

	res, err := s.exec(ctx, ex, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert expenses: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func (s *SQLStore) ListExpenses(ctx context.Context, f store.ExpenseFilter) ([]models.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE 1 = 1`
	var args []any
	if f.UserAddress != "" {
		query += ` AND user_address = ?`
		args = append(args, f.UserAddress)
	}
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if !f.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, toMicros(f.Since))
	}
	query += ` ORDER BY created_at DESC, log_index`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []models.Expense
	for rows.Next() {
		var (
			e         models.Expense
			logIndex  int64
			direction string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.UserAddress, &e.TxHash, &logIndex, &e.Amount, &e.Token,
			&e.Category, &e.MemoRaw, &e.Description, &direction, &e.Counterparty, &createdAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.LogIndex = uint(logIndex)
		e.Direction = models.Direction(direction)
		e.CreatedAt = fromMicros(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
