package backtest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Logarithm-Labs/curator-agent/internal/vault"

	_ "modernc.org/sqlite"
)

// ResultStore manages the backtest_runs/records/trades tables.
type ResultStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func NewResultStore(root string) (*ResultStore, error) {
	if root == "" {
		return nil, fmt.Errorf("result store root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, "runs.db")
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureResultSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &ResultStore{db: db, path: path}, nil
}

func (s *ResultStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureResultSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS backtest_runs (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			starting_capital REAL NOT NULL,
			final_equity REAL NOT NULL DEFAULT 0,
			profit REAL NOT NULL DEFAULT 0,
			return_pct REAL NOT NULL DEFAULT 0,
			max_drawdown REAL NOT NULL DEFAULT 0,
			trades INTEGER NOT NULL DEFAULT 0,
			steps INTEGER NOT NULL DEFAULT 0,
			config_json TEXT NOT NULL,
			stats_json TEXT,
			message TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			completed_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS backtest_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			holdings_json TEXT NOT NULL,
			cash REAL NOT NULL,
			total_equity REAL NOT NULL,
			period_return REAL NOT NULL,
			cumulative_return REAL NOT NULL,
			fees REAL NOT NULL,
			slippage REAL NOT NULL,
			decided INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY(run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS backtest_trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			vault_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			delta REAL NOT NULL,
			fee REAL NOT NULL,
			slippage REAL NOT NULL,
			FOREIGN KEY(run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_records_run ON backtest_records(run_id, step);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON backtest_trades(run_id, step);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRun writes one run row.
func (s *ResultStore) InsertRun(ctx context.Context, run Run) error {
	cfgJSON, err := run.MarshalConfig()
	if err != nil {
		return err
	}
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO backtest_runs
			(id, label, status, starting_capital, final_equity, profit, return_pct,
			max_drawdown, trades, steps, config_json, stats_json, message,
			created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Label, run.Status, run.Config.StartingCapital, run.Stats.FinalEquity,
		run.Stats.Profit, run.Stats.ReturnPct, run.Stats.MaxDrawdownPct, run.Stats.Trades,
		run.Stats.Steps, string(cfgJSON), bytesOrNil(statsJSON), run.Message,
		now, now, nullableTime(run.CompletedAt))
	return err
}

func bytesOrNil(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

// UpdateRunSummary writes status plus final metrics in one statement.
func (s *ResultStore) UpdateRunSummary(ctx context.Context, id string, status string, stats RunStats, message string) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	var completed interface{}
	if status == RunStatusDone || status == RunStatusFailed {
		completed = now
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE backtest_runs
		SET status=?, final_equity=?, profit=?, return_pct=?, max_drawdown=?,
		    trades=?, steps=?, stats_json=?, message=?, updated_at=?,
		    completed_at=CASE WHEN ? IS NULL THEN completed_at ELSE ? END
		WHERE id=?`,
		status, stats.FinalEquity, stats.Profit, stats.ReturnPct, stats.MaxDrawdownPct,
		stats.Trades, stats.Steps, string(statsJSON), message, now,
		completed, completed, id)
	return err
}

// UpdateRunStatus updates status and message only.
func (s *ResultStore) UpdateRunStatus(ctx context.Context, id, status, message string) error {
	now := time.Now().UnixMilli()
	var completed interface{}
	if status == RunStatusDone || status == RunStatusFailed {
		completed = now
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE backtest_runs
		SET status=?, message=?, updated_at=?, completed_at=CASE WHEN ? IS NULL THEN completed_at ELSE ? END
		WHERE id=?`, status, message, now, completed, completed, id)
	return err
}

// InsertRecord appends one timestep to the run's result log. Trades are
// persisted alongside in their own table.
func (s *ResultStore) InsertRecord(ctx context.Context, runID string, rec ResultRecord) (int64, error) {
	holdingsJSON, err := json.Marshal(rec.Holdings)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO backtest_records
			(run_id, step, ts, holdings_json, cash, total_equity, period_return,
			 cumulative_return, fees, slippage, decided)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Step, rec.Timestamp.UnixMilli(), string(holdingsJSON), rec.Cash,
		rec.TotalEquity, rec.PeriodReturn, rec.CumulativeReturn, rec.Fees, rec.Slippage,
		boolToInt(rec.Decided))
	if err != nil {
		return 0, err
	}
	for _, t := range rec.Trades {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO backtest_trades (run_id, step, vault_id, ts, delta, fee, slippage)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, rec.Step, t.VaultID, t.Timestamp.UnixMilli(), t.Delta, t.Fee, t.Slippage); err != nil {
			return 0, err
		}
	}
	return res.LastInsertId()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *ResultStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, status, starting_capital, final_equity, profit, return_pct,
		       max_drawdown, trades, steps, config_json, stats_json, message,
		       created_at, updated_at, completed_at
		FROM backtest_runs
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, run)
	}
	return list, rows.Err()
}

func (s *ResultStore) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, label, status, starting_capital, final_equity, profit, return_pct,
		       max_drawdown, trades, steps, config_json, stats_json, message,
		       created_at, updated_at, completed_at
		FROM backtest_runs WHERE id=?`, id)
	return scanRun(row)
}

func (s *ResultStore) ListRecords(ctx context.Context, runID string, limit int) ([]ResultRecord, error) {
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT step, ts, holdings_json, cash, total_equity, period_return,
		       cumulative_return, fees, slippage, decided
		FROM backtest_records
		WHERE run_id=?
		ORDER BY step ASC
		LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ResultRecord
	for rows.Next() {
		var rec ResultRecord
		var ts int64
		var holdingsStr string
		var decided int
		if err := rows.Scan(&rec.Step, &ts, &holdingsStr, &rec.Cash, &rec.TotalEquity,
			&rec.PeriodReturn, &rec.CumulativeReturn, &rec.Fees, &rec.Slippage, &decided); err != nil {
			return nil, err
		}
		rec.Timestamp = timeFromMillis(ts)
		rec.Decided = decided != 0
		if holdingsStr != "" {
			if err := json.Unmarshal([]byte(holdingsStr), &rec.Holdings); err != nil {
				return nil, err
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *ResultStore) ListTrades(ctx context.Context, runID string, limit int) ([]vault.TradeRecord, error) {
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT vault_id, ts, delta, fee, slippage
		FROM backtest_trades
		WHERE run_id=?
		ORDER BY id ASC
		LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []vault.TradeRecord
	for rows.Next() {
		var t vault.TradeRecord
		var ts int64
		if err := rows.Scan(&t.VaultID, &ts, &t.Delta, &t.Fee, &t.Slippage); err != nil {
			return nil, err
		}
		t.Timestamp = timeFromMillis(ts)
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var cfgStr string
	var statsStr sql.NullString
	var startingCapital float64
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64
	if err := row.Scan(&run.ID, &run.Label, &run.Status, &startingCapital,
		&run.Stats.FinalEquity, &run.Stats.Profit, &run.Stats.ReturnPct,
		&run.Stats.MaxDrawdownPct, &run.Stats.Trades, &run.Stats.Steps,
		&cfgStr, &statsStr, &run.Message, &createdAt, &updatedAt, &completedAt); err != nil {
		return Run{}, err
	}
	run.CreatedAt = timeFromMillis(createdAt)
	run.UpdatedAt = timeFromMillis(updatedAt)
	if completedAt.Valid {
		run.CompletedAt = timeFromMillis(completedAt.Int64)
	}
	if err := json.Unmarshal([]byte(cfgStr), &run.Config); err != nil {
		return Run{}, err
	}
	if statsStr.Valid && statsStr.String != "" {
		if err := json.Unmarshal([]byte(statsStr.String), &run.Stats); err != nil {
			return Run{}, err
		}
	}
	return run, nil
}

func timeFromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.Unix(0, ms*int64(time.Millisecond))
}
