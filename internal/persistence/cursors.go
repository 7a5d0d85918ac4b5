package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (s *SQLStore) GetCursor(ctx context.Context, source string) (uint64, bool, error) {
	var height int64
	err := s.queryRow(ctx, s.db, `SELECT height FROM watch_cursors WHERE source = ?`, source).Scan(&height)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get cursor %s: %w", source, err)
	}
	return uint64(height), true, nil
}

func (s *SQLStore) SetCursor(ctx context.Context, source string, height uint64) error {
	_, err := s.exec(ctx, s.db, `INSERT INTO watch_cursors (source, height, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (source) DO UPDATE SET height = excluded.height, updated_at = excluded.updated_at`,
		source, int64(height), toMicros(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("set cursor %s: %w", source, err)
	}
	return nil
}
