// Package postgres implements storage.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/storage"
	"github.com/wonny/canslim/pkg/database"
)

// Store is the PostgreSQL storage.Store
// ⭐ SSOT: 시세/스캔/백테스트 영속 계층 (PostgreSQL)
type Store struct {
	db *database.DB
}

// New creates a store over an open pool. Run migrations.RunPostgres first.
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the pool
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

// === bars ===

const upsertBarSQL = `
	INSERT INTO daily_bars (symbol, bar_date, open, high, low, close, volume, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	ON CONFLICT (symbol, bar_date) DO UPDATE SET
		open = EXCLUDED.open,
		high = EXCLUDED.high,
		low = EXCLUDED.low,
		close = EXCLUDED.close,
		volume = EXCLUDED.volume,
		updated_at = NOW()
`

// UpsertBars writes bars in one batch
func (s *Store) UpsertBars(ctx context.Context, symbol string, bars []contracts.Bar) error {
	if symbol == "" {
		return storage.ErrInvalidInput
	}
	if len(bars) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(upsertBarSQL, symbol, contracts.Day(b.Date), b.Open, b.High, b.Low, b.Close, b.Volume)
	}
	if err := s.db.Pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert bars %s: %w", symbol, err)
	}
	return nil
}

// GetBars returns bars in [from, to] ascending; zero bounds are open
func (s *Store) GetBars(ctx context.Context, symbol string, from, to time.Time) ([]contracts.Bar, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT bar_date, open, high, low, close, volume
		FROM daily_bars
		WHERE symbol = $1
		  AND ($2::date IS NULL OR bar_date >= $2)
		  AND ($3::date IS NULL OR bar_date <= $3)
		ORDER BY bar_date ASC
	`

	rows, err := s.db.Pool.Query(ctx, query, symbol, nullDate(from), nullDate(to))
	if err != nil {
		return nil, fmt.Errorf("query bars %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []contracts.Bar
	for rows.Next() {
		var b contracts.Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Date = contracts.Day(b.Date)
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// LatestBarDates returns the newest bar date per symbol
func (s *Store) LatestBarDates(ctx context.Context, symbols []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	query := `
		SELECT symbol, MAX(bar_date)
		FROM daily_bars
		WHERE symbol = ANY($1)
		GROUP BY symbol
	`

	rows, err := s.db.Pool.Query(ctx, query, symbols)
	if err != nil {
		return nil, fmt.Errorf("query latest bar dates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sym string
		var d time.Time
		if err := rows.Scan(&sym, &d); err != nil {
			return nil, fmt.Errorf("scan latest bar date: %w", err)
		}
		out[sym] = contracts.Day(d)
	}
	return out, rows.Err()
}

// BarRange returns the earliest and latest stored bar dates
func (s *Store) BarRange(ctx context.Context) (time.Time, time.Time, error) {
	var from, to *time.Time
	err := s.db.Pool.QueryRow(ctx, `SELECT MIN(bar_date), MAX(bar_date) FROM daily_bars`).Scan(&from, &to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("query bar range: %w", err)
	}
	if from == nil || to == nil {
		return time.Time{}, time.Time{}, storage.ErrNotFound
	}
	return contracts.Day(*from), contracts.Day(*to), nil
}

// === fundamentals ===

// UpsertEarnings writes quarterly records in one batch
func (s *Store) UpsertEarnings(ctx context.Context, symbol string, records []contracts.EarningsRecord) error {
	if symbol == "" {
		return storage.ErrInvalidInput
	}
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO quarterly_earnings (symbol, quarter_end, eps, revenue, net_income, equity, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (symbol, quarter_end) DO UPDATE SET
			eps = EXCLUDED.eps,
			revenue = COALESCE(EXCLUDED.revenue, quarterly_earnings.revenue),
			net_income = COALESCE(EXCLUDED.net_income, quarterly_earnings.net_income),
			equity = COALESCE(EXCLUDED.equity, quarterly_earnings.equity),
			updated_at = NOW()
	`

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(query, symbol, contracts.Day(r.QuarterEnd), r.EPS, r.Revenue, r.NetIncome, r.Equity)
	}
	if err := s.db.Pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert earnings %s: %w", symbol, err)
	}
	return nil
}

// GetEarnings returns records ascending by quarter end
func (s *Store) GetEarnings(ctx context.Context, symbol string) ([]contracts.EarningsRecord, error) {
	query := `
		SELECT quarter_end, eps, revenue, net_income, equity
		FROM quarterly_earnings
		WHERE symbol = $1
		ORDER BY quarter_end ASC
	`

	rows, err := s.db.Pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("query earnings %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []contracts.EarningsRecord
	for rows.Next() {
		r := contracts.EarningsRecord{Symbol: symbol}
		if err := rows.Scan(&r.QuarterEnd, &r.EPS, &r.Revenue, &r.NetIncome, &r.Equity); err != nil {
			return nil, fmt.Errorf("scan earnings: %w", err)
		}
		r.QuarterEnd = contracts.Day(r.QuarterEnd)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertOwnership writes ownership observations in one batch
func (s *Store) UpsertOwnership(ctx context.Context, symbol string, records []contracts.OwnershipRecord) error {
	if symbol == "" {
		return storage.ErrInvalidInput
	}
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO institutional_ownership (symbol, obs_date, institutional_pct, filers_added)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol, obs_date) DO UPDATE SET
			institutional_pct = EXCLUDED.institutional_pct,
			filers_added = EXCLUDED.filers_added
	`

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(query, symbol, contracts.Day(r.Date), r.InstitutionalPct, r.FilersAdded)
	}
	if err := s.db.Pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert ownership %s: %w", symbol, err)
	}
	return nil
}

// GetOwnership returns observations ascending by date
func (s *Store) GetOwnership(ctx context.Context, symbol string) ([]contracts.OwnershipRecord, error) {
	query := `
		SELECT obs_date, institutional_pct, filers_added
		FROM institutional_ownership
		WHERE symbol = $1
		ORDER BY obs_date ASC
	`

	rows, err := s.db.Pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("query ownership %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []contracts.OwnershipRecord
	for rows.Next() {
		r := contracts.OwnershipRecord{Symbol: symbol}
		if err := rows.Scan(&r.Date, &r.InstitutionalPct, &r.FilersAdded); err != nil {
			return nil, fmt.Errorf("scan ownership: %w", err)
		}
		r.Date = contracts.Day(r.Date)
		out = append(out, r)
	}
	return out, rows.Err()
}

// === universe ===

// ReplaceSymbols swaps the universe inside one transaction
func (s *Store) ReplaceSymbols(ctx context.Context, symbols []contracts.SymbolMeta) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM symbols`); err != nil {
			return fmt.Errorf("clear symbols: %w", err)
		}
		if len(symbols) == 0 {
			return nil
		}

		rows := make([][]any, 0, len(symbols))
		seen := make(map[string]bool, len(symbols))
		for _, m := range symbols {
			if m.Symbol == "" || seen[m.Symbol] {
				continue
			}
			seen[m.Symbol] = true
			rows = append(rows, []any{m.Symbol, m.Name, m.Sector, m.Industry, m.Exchange})
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"symbols"},
			[]string{"symbol", "name", "sector", "industry", "exchange"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy symbols: %w", err)
		}
		return nil
	})
}

// ListSymbols returns the universe sorted by symbol
func (s *Store) ListSymbols(ctx context.Context) ([]contracts.SymbolMeta, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT symbol, name, sector, industry, exchange
		FROM symbols
		ORDER BY symbol ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var out []contracts.SymbolMeta
	for rows.Next() {
		var m contracts.SymbolMeta
		if err := rows.Scan(&m.Symbol, &m.Name, &m.Sector, &m.Industry, &m.Exchange); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// nullDate maps a zero time to SQL NULL
func nullDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	d := contracts.Day(t)
	return &d
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}
