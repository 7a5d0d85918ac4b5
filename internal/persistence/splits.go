package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"MemoLedger/internal/models"
	"MemoLedger/internal/store"
)

const (
	splitColumns  = `id, creator_address, title, total_amount, token, split_id, status, created_at`
	memberColumns = `id, split_id, address, identifier, amount, paid, tx_hash, created_at`
)

func (s *SQLStore) CreateSplit(ctx context.Context, sp *models.Split, members []models.SplitMember) error {
	ensureID(&sp.ID)
	ensureCreated(&sp.CreatedAt)
	if sp.Status == "" {
		sp.Status = models.SplitActive
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := s.exec(ctx, tx, `INSERT INTO splits (`+splitColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sp.ID, sp.CreatorAddress, sp.Title, sp.TotalAmount, sp.Token, sp.SplitID,
			string(sp.Status), toMicros(sp.CreatedAt),
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("insert split %s: %w", sp.SplitID, store.ErrDuplicate)
		}
		if err != nil {
			return fmt.Errorf("insert split: %w", err)
		}

		for i := range members {
			m := &members[i]
			ensureID(&m.ID)
			if m.CreatedAt.IsZero() {
				m.CreatedAt = sp.CreatedAt
			}
			m.SplitID = sp.ID
			if _, err := s.exec(ctx, tx, `INSERT INTO split_members (`+memberColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				m.ID, m.SplitID, m.Address, m.Identifier, m.Amount, m.Paid,
				nullString(m.TxHash), toMicros(m.CreatedAt),
			); err != nil {
				return fmt.Errorf("insert split member %s: %w", m.Address, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	sp.Members = members
	return nil
}

func (s *SQLStore) GetSplitBySplitID(ctx context.Context, splitID string) (*models.Split, error) {
	row := s.queryRow(ctx, s.db, `SELECT `+splitColumns+` FROM splits WHERE split_id = ?`, splitID)
	sp, err := scanSplit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get split %s: %w", splitID, err)
	}
	return sp, nil
}

func (s *SQLStore) ListSplitsForAddress(ctx context.Context, address string) ([]models.Split, error) {
	rows, err := s.query(ctx, `SELECT `+splitColumns+` FROM splits
		WHERE creator_address = ?
		   OR id IN (SELECT split_id FROM split_members WHERE address = ?)
		ORDER BY created_at DESC`, address, address)
	if err != nil {
		return nil, fmt.Errorf("list splits: %w", err)
	}

	var out []models.Split
	for rows.Next() {
		sp, err := scanSplit(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan split: %w", err)
		}
		out = append(out, *sp)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range out {
		members, err := s.ListSplitMembers(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Members = members
	}
	return out, nil
}

func (s *SQLStore) FindUnpaidMember(ctx context.Context, address, splitRowID string) (*models.SplitMember, error) {
	query := `SELECT ` + memberColumns + ` FROM split_members WHERE address = ? AND paid = FALSE`
	args := []any{address}
	if splitRowID != "" {
		query += ` AND split_id = ?`
		args = append(args, splitRowID)
	}
	query += ` ORDER BY created_at, id LIMIT 1`

	m, err := scanMember(s.queryRow(ctx, s.db, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find unpaid member %s: %w", address, err)
	}
	return m, nil
}

// PaySplitMember marks the member paid and, in the same transaction,
// settles its split when no member is left unpaid.
func (s *SQLStore) PaySplitMember(ctx context.Context, memberID, txHash string) (paid, settled bool, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx,
			`UPDATE split_members SET paid = TRUE, tx_hash = ? WHERE id = ? AND paid = FALSE`,
			txHash, memberID,
		)
		if err != nil {
			return fmt.Errorf("mark member paid: %w", err)
		}
		if paid, err = rowsChanged(res); err != nil || !paid {
			return err
		}

		var splitRowID string
		if err := s.queryRow(ctx, tx, `SELECT split_id FROM split_members WHERE id = ?`, memberID).
			Scan(&splitRowID); err != nil {
			return fmt.Errorf("member split: %w", err)
		}
		settled, err = s.settleSplit(ctx, tx, splitRowID)
		return err
	})
	if err != nil {
		return false, false, err
	}
	return paid, settled, nil
}

func (s *SQLStore) ListSplitMembers(ctx context.Context, splitRowID string) ([]models.SplitMember, error) {
	rows, err := s.query(ctx, `SELECT `+memberColumns+` FROM split_members
		WHERE split_id = ? ORDER BY created_at, id`, splitRowID)
	if err != nil {
		return nil, fmt.Errorf("list split members: %w", err)
	}
	defer rows.Close()

	var out []models.SplitMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan split member: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// SettleSplit re-checks the member rows inside the update, so whichever
// payment commits last settles the split.
func (s *SQLStore) SettleSplit(ctx context.Context, splitRowID string) (bool, error) {
	return s.settleSplit(ctx, s.db, splitRowID)
}

func (s *SQLStore) settleSplit(ctx context.Context, ex execer, splitRowID string) (bool, error) {
	res, err := s.exec(ctx, ex, `UPDATE splits SET status = ?
		WHERE id = ? AND status = ?
		  AND EXISTS (SELECT 1 FROM split_members WHERE split_id = ?)
		  AND NOT EXISTS (SELECT 1 FROM split_members WHERE split_id = ? AND paid = FALSE)`,
		string(models.SplitSettled), splitRowID, string(models.SplitActive), splitRowID, splitRowID,
	)
	if err != nil {
		return false, fmt.Errorf("settle split: %w", err)
	}
	return rowsChanged(res)
}

func scanSplit(r scanner) (*models.Split, error) {
	var (
		sp        models.Split
		status    string
		createdAt int64
	)
	if err := r.Scan(&sp.ID, &sp.CreatorAddress, &sp.Title, &sp.TotalAmount, &sp.Token,
		&sp.SplitID, &status, &createdAt); err != nil {
		return nil, err
	}
	sp.Status = models.SplitStatus(status)
	sp.CreatedAt = fromMicros(createdAt)
	return &sp, nil
}

func scanMember(r scanner) (*models.SplitMember, error) {
	var (
		m         models.SplitMember
		txHash    sql.NullString
		createdAt int64
	)
	if err := r.Scan(&m.ID, &m.SplitID, &m.Address, &m.Identifier, &m.Amount, &m.Paid,
		&txHash, &createdAt); err != nil {
		return nil, err
	}
	m.TxHash = stringPtr(txHash)
	m.CreatedAt = fromMicros(createdAt)
	return &m, nil
}
