package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/storage"
)

const pgErrUniqueViolation = "23505"

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}

const runColumns = `
	id, started_at, universe, provider, mode, config_version, config_hash, config_json,
	symbol_count, gate_open, gate_reason, status, finished_at, result_count, error
`

// CreateRun inserts a new run
func (s *Store) CreateRun(ctx context.Context, run contracts.ScanRun) error {
	if run.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `INSERT INTO scan_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	var cfgJSON []byte
	if len(run.ConfigJSON) > 0 {
		cfgJSON = run.ConfigJSON
	}

	_, err := s.db.Pool.Exec(ctx, query,
		run.ID, run.StartedAt, run.Universe, run.Provider, string(run.Mode),
		run.ConfigVersion, run.ConfigHash, cfgJSON,
		run.SymbolCount, run.GateOpen, run.GateReason, run.Status,
		run.FinishedAt, run.ResultCount, run.Error,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("run %s already exists: %w", run.ID, storage.ErrInvalidInput)
		}
		return fmt.Errorf("insert scan run: %w", err)
	}
	return nil
}

// FinishRun writes the lifecycle fields
func (s *Store) FinishRun(ctx context.Context, id string, outcome contracts.RunOutcome) error {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE scan_runs
		SET status = $2, finished_at = $3, result_count = $4, error = $5
		WHERE id = $1
	`, id, outcome.Status, outcome.FinishedAt, outcome.ResultCount, outcome.Error)
	if err != nil {
		return fmt.Errorf("finish scan run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetRun returns one run
func (s *Store) GetRun(ctx context.Context, id string) (*contracts.ScanRun, error) {
	row := s.db.Pool.QueryRow(ctx, `SELECT `+runColumns+` FROM scan_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		return nil, notFound(err)
	}
	return run, nil
}

// ListRuns returns runs newest first
func (s *Store) ListRuns(ctx context.Context, limit int) ([]contracts.ScanRun, error) {
	query := `SELECT ` + runColumns + ` FROM scan_runs ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scan runs: %w", err)
	}
	defer rows.Close()

	var out []contracts.ScanRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func scanRun(row pgx.Row) (*contracts.ScanRun, error) {
	var run contracts.ScanRun
	var mode string
	var cfgJSON []byte
	err := row.Scan(
		&run.ID, &run.StartedAt, &run.Universe, &run.Provider, &mode,
		&run.ConfigVersion, &run.ConfigHash, &cfgJSON,
		&run.SymbolCount, &run.GateOpen, &run.GateReason, &run.Status,
		&run.FinishedAt, &run.ResultCount, &run.Error,
	)
	if err != nil {
		return nil, err
	}
	run.Mode = contracts.ScanMode(mode)
	if len(cfgJSON) > 0 {
		run.ConfigJSON = json.RawMessage(cfgJSON)
	}
	return &run, nil
}

// ReplaceLiveResults swaps the live set inside one transaction
func (s *Store) ReplaceLiveResults(ctx context.Context, runID string, results []contracts.ScoreResult) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM live_results`); err != nil {
			return fmt.Errorf("clear live results: %w", err)
		}
		if err := insertResults(ctx, tx, "live_results", runID, results); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO live_state (id, run_id, updated_at) VALUES (1, $1, NOW())
			ON CONFLICT (id) DO UPDATE SET run_id = EXCLUDED.run_id, updated_at = NOW()
		`, runID)
		if err != nil {
			return fmt.Errorf("update live state: %w", err)
		}
		return nil
	})
}

// GetLiveResults returns the live set; an empty store yields an empty run id
func (s *Store) GetLiveResults(ctx context.Context) (string, []contracts.ScoreResult, error) {
	var runID string
	var results []contracts.ScoreResult

	// REPEATABLE READ keeps the run id and rows consistent with one replace
	err := pgx.BeginTxFunc(ctx, s.db.Pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT run_id FROM live_state WHERE id = 1`).Scan(&runID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("query live state: %w", err)
		}
		results, err = queryResults(ctx, tx, `SELECT payload FROM live_results ORDER BY position ASC`)
		return err
	})
	if err != nil {
		return "", nil, err
	}
	return runID, results, nil
}

// SaveRunResults stores the final results of a run, replacing earlier ones
func (s *Store) SaveRunResults(ctx context.Context, runID string, results []contracts.ScoreResult) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM scan_runs WHERE id = $1)`, runID).Scan(&exists); err != nil {
			return fmt.Errorf("check run: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM scan_results WHERE run_id = $1`, runID); err != nil {
			return fmt.Errorf("clear run results: %w", err)
		}
		return insertResults(ctx, tx, "scan_results", runID, results)
	})
}

// GetRunResults returns the stored results of a run in saved order
func (s *Store) GetRunResults(ctx context.Context, runID string) ([]contracts.ScoreResult, error) {
	var exists bool
	if err := s.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM scan_runs WHERE id = $1)`, runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check run: %w", err)
	}
	if !exists {
		return nil, storage.ErrNotFound
	}
	return queryResults(ctx, s.db.Pool, `SELECT payload FROM scan_results WHERE run_id = $1 ORDER BY position ASC`, runID)
}

// DeleteRunsBefore removes old runs; results cascade
func (s *Store) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM scan_runs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old runs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func insertResults(ctx context.Context, tx pgx.Tx, table, runID string, results []contracts.ScoreResult) error {
	if len(results) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(results))
	for i, r := range results {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode result %s: %w", r.Symbol, err)
		}
		rows = append(rows, []any{runID, r.Symbol, r.Score, r.Qualified, i, payload})
	}

	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{table},
		[]string{"run_id", "symbol", "score", "qualified", "position", "payload"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy %s: %w", table, err)
	}
	return nil
}

func queryResults(ctx context.Context, q querier, sql string, args ...any) ([]contracts.ScoreResult, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	out := []contracts.ScoreResult{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		var r contracts.ScoreResult
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// === backtests ===

// SaveBacktest appends a report
func (s *Store) SaveBacktest(ctx context.Context, report *contracts.BacktestReport) error {
	if report == nil || report.ID == "" {
		return storage.ErrInvalidInput
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode backtest: %w", err)
	}

	_, err = s.db.Pool.Exec(ctx, `
		INSERT INTO backtests (id, created_at, config_hash, date_from, date_to, final_equity, total_return, total_trades, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, report.ID, report.CreatedAt, report.ConfigHash, report.EffectiveFrom, report.EffectiveTo,
		report.FinalEquity, report.Stats.TotalReturn, report.Stats.TotalTrades, payload)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("backtest %s already exists: %w", report.ID, storage.ErrInvalidInput)
		}
		return fmt.Errorf("insert backtest: %w", err)
	}
	return nil
}

// GetBacktest returns one full report
func (s *Store) GetBacktest(ctx context.Context, id string) (*contracts.BacktestReport, error) {
	var payload []byte
	if err := s.db.Pool.QueryRow(ctx, `SELECT report FROM backtests WHERE id = $1`, id).Scan(&payload); err != nil {
		return nil, notFound(err)
	}

	var report contracts.BacktestReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("decode backtest: %w", err)
	}
	return &report, nil
}

// ListBacktests returns report headers newest first
func (s *Store) ListBacktests(ctx context.Context, limit int) ([]contracts.BacktestReport, error) {
	// trades and equity curve are stripped server-side
	query := `
		SELECT report - 'trades' - 'equity_curve' - 'per_symbol'
		FROM backtests
		ORDER BY created_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query backtests: %w", err)
	}
	defer rows.Close()

	var out []contracts.BacktestReport
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan backtest: %w", err)
		}
		var r contracts.BacktestReport
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("decode backtest: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
