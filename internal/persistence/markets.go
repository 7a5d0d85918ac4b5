package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"MemoLedger/internal/models"
	"MemoLedger/internal/store"
)

const (
	marketColumns = `id, creator_address, question, market_id, market_type, resolution_source,
	end_date, status, resolution, resolved_at, resolved_by, total_pool, token, created_at`
	betColumns = `id, market_id, user_address, position, amount, shares, purchase_price,
	settled, payout, tx_hash, log_index, created_at`
	payoutColumns = `id, market_id, bet_id, user_address, amount, created_at`
)

func (s *SQLStore) CreateMarket(ctx context.Context, m *models.Market) error {
	ensureID(&m.ID)
	ensureCreated(&m.CreatedAt)
	if m.Status == "" {
		m.Status = models.MarketOpen
	}
	if m.Type == "" {
		m.Type = models.MarketBinary
	}
	if m.ResolutionSource == "" {
		m.ResolutionSource = models.SourceManual
	}

	var resolution sql.NullInt64
	if m.Resolution != nil {
		resolution = sql.NullInt64{Int64: int64(*m.Resolution), Valid: true}
	}
	_, err := s.exec(ctx, s.db, `INSERT INTO markets (`+marketColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.CreatorAddress, m.Question, m.MarketID, string(m.Type), string(m.ResolutionSource),
		toMicros(m.EndDate), string(m.Status), resolution, nullMicros(m.ResolvedAt),
		nullString(m.ResolvedBy), m.TotalPool, m.Token, toMicros(m.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert market %s: %w", m.MarketID, store.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert market: %w", err)
	}
	return nil
}

func (s *SQLStore) GetMarket(ctx context.Context, marketID string) (*models.Market, error) {
	row := s.queryRow(ctx, s.db, `SELECT `+marketColumns+` FROM markets WHERE market_id = ?`, marketID)
	m, err := scanMarket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", marketID, err)
	}
	return m, nil
}

func (s *SQLStore) ListMarkets(ctx context.Context, status models.MarketStatus) ([]models.Market, error) {
	if status == "" {
		return s.listMarkets(ctx, `SELECT `+marketColumns+` FROM markets ORDER BY created_at DESC`)
	}
	return s.listMarkets(ctx, `SELECT `+marketColumns+` FROM markets
		WHERE status = ? ORDER BY created_at DESC`, string(status))
}

func (s *SQLStore) ListExpiredOpenMarkets(ctx context.Context, now time.Time) ([]models.Market, error) {
	return s.listMarkets(ctx, `SELECT `+marketColumns+` FROM markets
		WHERE status = ? AND end_date <= ? ORDER BY end_date`,
		string(models.MarketOpen), toMicros(now))
}

// ListUnsettledResolvedMarkets returns resolved markets that still carry
// unsettled bets placed no later than the resolution, i.e. payout passes
// that stopped partway.
func (s *SQLStore) ListUnsettledResolvedMarkets(ctx context.Context) ([]models.Market, error) {
	return s.listMarkets(ctx, `SELECT `+marketColumns+` FROM markets
		WHERE status = ?
		  AND EXISTS (SELECT 1 FROM market_bets b
		      WHERE b.market_id = markets.market_id AND b.settled = FALSE
		        AND b.created_at <= markets.resolved_at)
		ORDER BY resolved_at, market_id`,
		string(models.MarketResolved))
}

func (s *SQLStore) listMarkets(ctx context.Context, query string, args ...any) ([]models.Market, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	defer rows.Close()

	var out []models.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan market: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListBets(ctx context.Context, marketID string) ([]models.MarketBet, error) {
	return s.listBets(ctx, `SELECT `+betColumns+` FROM market_bets
		WHERE market_id = ? ORDER BY created_at, id`, marketID)
}

func (s *SQLStore) ListUnsettledBets(ctx context.Context, marketID string) ([]models.MarketBet, error) {
	return s.listBets(ctx, `SELECT `+betColumns+` FROM market_bets
		WHERE market_id = ? AND settled = FALSE ORDER BY created_at, id`, marketID)
}

func (s *SQLStore) listBets(ctx context.Context, query string, args ...any) ([]models.MarketBet, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bets: %w", err)
	}
	defer rows.Close()

	var out []models.MarketBet
	for rows.Next() {
		var (
			b                   models.MarketBet
			position            int64
			shares, price       sql.NullFloat64
			payout              decimal.NullDecimal
			logIndex, createdAt int64
		)
		if err := rows.Scan(&b.ID, &b.MarketID, &b.UserAddress, &position, &b.Amount,
			&shares, &price, &b.Settled, &payout, &b.TxHash, &logIndex, &createdAt); err != nil {
			return nil, fmt.Errorf("scan bet: %w", err)
		}
		b.Position = models.Position(position)
		if shares.Valid {
			v := shares.Float64
			b.Shares = &v
		}
		if price.Valid {
			v := price.Float64
			b.PurchasePrice = &v
		}
		if payout.Valid {
			v := payout.Decimal
			b.Payout = &v
		}
		b.LogIndex = uint(logIndex)
		b.CreatedAt = fromMicros(createdAt)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLStore) RecordBet(ctx context.Context, b *models.MarketBet) (bool, error) {
	ensureID(&b.ID)
	ensureCreated(&b.CreatedAt)

	var inserted bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, `INSERT INTO market_bets (`+betColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (tx_hash, log_index) DO NOTHING`,
			b.ID, b.MarketID, b.UserAddress, int64(b.Position), b.Amount,
			nullFloat(b.Shares), nullFloat(b.PurchasePrice), b.Settled, nullDecimal(b.Payout),
			b.TxHash, int64(b.LogIndex), toMicros(b.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert bet: %w", err)
		}
		if inserted, err = rowsChanged(res); err != nil || !inserted {
			return err
		}

		if _, err := s.exec(ctx, tx,
			`UPDATE markets SET total_pool = total_pool + ? WHERE market_id = ?`,
			b.Amount, b.MarketID,
		); err != nil {
			return fmt.Errorf("increment pool: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (s *SQLStore) ResolveMarket(ctx context.Context, marketID string, resolution models.Position, resolvedBy string, at time.Time) (bool, error) {
	res, err := s.exec(ctx, s.db, `UPDATE markets
		SET status = ?, resolution = ?, resolved_at = ?, resolved_by = ?
		WHERE market_id = ? AND status = ?`,
		string(models.MarketResolved), int64(resolution), toMicros(at), resolvedBy,
		marketID, string(models.MarketOpen),
	)
	if err != nil {
		return false, fmt.Errorf("resolve market %s: %w", marketID, err)
	}
	return rowsChanged(res)
}

// SettleBet flips the bet to settled and, when p is set, writes its payout
// row in the same transaction.
func (s *SQLStore) SettleBet(ctx context.Context, betID string, payout decimal.Decimal, p *models.MarketPayout) (bool, error) {
	var settled bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx,
			`UPDATE market_bets SET settled = TRUE, payout = ? WHERE id = ? AND settled = FALSE`,
			payout, betID,
		)
		if err != nil {
			return fmt.Errorf("settle bet %s: %w", betID, err)
		}
		if settled, err = rowsChanged(res); err != nil || !settled || p == nil {
			return err
		}

		ensureID(&p.ID)
		ensureCreated(&p.CreatedAt)
		p.BetID = betID
		if _, err := s.exec(ctx, tx, `INSERT INTO market_payouts (`+payoutColumns+`)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (bet_id) DO NOTHING`,
			p.ID, p.MarketID, p.BetID, p.UserAddress, p.Amount, toMicros(p.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert payout for bet %s: %w", betID, err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return settled, nil
}

func (s *SQLStore) ListPayouts(ctx context.Context, marketID string) ([]models.MarketPayout, error) {
	rows, err := s.query(ctx, `SELECT `+payoutColumns+` FROM market_payouts
		WHERE market_id = ? ORDER BY created_at, id`, marketID)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	defer rows.Close()

	var out []models.MarketPayout
	for rows.Next() {
		var (
			p         models.MarketPayout
			createdAt int64
		)
		if err := rows.Scan(&p.ID, &p.MarketID, &p.BetID, &p.UserAddress, &p.Amount, &createdAt); err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		p.CreatedAt = fromMicros(createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanMarket(r scanner) (*models.Market, error) {
	var (
		m                    models.Market
		typ, source, status  string
		endDate, createdAt   int64
		resolution, resolved sql.NullInt64
		resolvedBy           sql.NullString
	)
	if err := r.Scan(&m.ID, &m.CreatorAddress, &m.Question, &m.MarketID, &typ, &source,
		&endDate, &status, &resolution, &resolved, &resolvedBy, &m.TotalPool, &m.Token,
		&createdAt); err != nil {
		return nil, err
	}
	m.Type = models.MarketType(typ)
	m.ResolutionSource = models.ResolutionSource(source)
	m.Status = models.MarketStatus(status)
	m.EndDate = fromMicros(endDate)
	m.CreatedAt = fromMicros(createdAt)
	if resolution.Valid {
		p := models.Position(resolution.Int64)
		m.Resolution = &p
	}
	m.ResolvedAt = timePtr(resolved)
	m.ResolvedBy = stringPtr(resolvedBy)
	return &m, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
