package experiment

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ResultStore 管理 experiment_runs/policies/curves 表。
type ResultStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func NewResultStore(root string) (*ResultStore, error) {
	if root == "" {
		return nil, fmt.Errorf("result store root cannot be empty")
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
		`CREATE TABLE IF NOT EXISTS experiment_runs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			n_actions INTEGER NOT NULL,
			dim_context INTEGER NOT NULL,
			rounds_train INTEGER NOT NULL,
			rounds_test INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			behavior_value REAL NOT NULL DEFAULT 0,
			best_policy TEXT,
			best_value REAL NOT NULL DEFAULT 0,
			config_json TEXT NOT NULL,
			stats_json TEXT,
			message TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			completed_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS experiment_policies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			policy TEXT NOT NULL,
			value REAL NOT NULL,
			lift REAL NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			FOREIGN KEY(run_id) REFERENCES experiment_runs(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS experiment_curves (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			policy TEXT NOT NULL,
			epoch INTEGER NOT NULL,
			loss REAL NOT NULL,
			FOREIGN KEY(run_id) REFERENCES experiment_runs(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_policies_run ON experiment_policies(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_curves_run ON experiment_curves(run_id, policy, epoch);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRun 写入一条 run 记录。
func (s *ResultStore) InsertRun(ctx context.Context, run Run) error {
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return err
	}
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO experiment_runs
			(id, name, status, n_actions, dim_context, rounds_train, rounds_test, seed,
			behavior_value, best_policy, best_value, config_json, stats_json, message,
			created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.Status, run.Config.NActions, run.Config.DimContext,
		run.Config.RoundsTrain, run.Config.RoundsTest, run.Config.Seed,
		run.Stats.BehaviorValue, run.Stats.BestPolicy, run.Stats.BestValue,
		string(cfgJSON), bytesOrNil(statsJSON), run.Message, now, now, nullableTime(run.CompletedAt))
	return err
}

// UpdateRunStatus 仅更新状态与提示。
func (s *ResultStore) UpdateRunStatus(ctx context.Context, id, status, message string) error {
	now := time.Now().UnixMilli()
	var completed interface{}
	if status == RunStatusDone || status == RunStatusFailed {
		completed = now
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE experiment_runs
		SET status=?, message=?, updated_at=?, completed_at=CASE WHEN ? IS NULL THEN completed_at ELSE ? END
		WHERE id=?`, status, message, now, completed, completed, id)
	return err
}

// UpdateRunSummary 更新状态与汇总指标。
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
		UPDATE experiment_runs
		SET status=?, behavior_value=?, best_policy=?, best_value=?, stats_json=?, message=?, updated_at=?,
		    completed_at=CASE WHEN ? IS NULL THEN completed_at ELSE ? END
		WHERE id=?`,
		status, stats.BehaviorValue, stats.BestPolicy, stats.BestValue,
		string(statsJSON), message, now, completed, completed, id)
	return err
}

// InsertPolicyResult 写入一个策略的成绩与损失曲线。
func (s *ResultStore) InsertPolicyResult(ctx context.Context, runID string, pr PolicyResult) (int64, error) {
	if runID == "" {
		return 0, fmt.Errorf("run id cannot be empty")
	}
	now := time.Now().UnixMilli()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO experiment_policies (run_id, policy, value, lift, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		runID, pr.Policy, pr.Value, pr.Lift, now)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for epoch, loss := range pr.LossCurve {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO experiment_curves (run_id, policy, epoch, loss)
			VALUES (?, ?, ?, ?)`, runID, pr.Policy, epoch, loss); err != nil {
			return id, err
		}
	}
	return id, nil
}

func (s *ResultStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, status, config_json, stats_json, message, created_at, updated_at, completed_at
		FROM experiment_runs
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
		SELECT id, name, status, config_json, stats_json, message, created_at, updated_at, completed_at
		FROM experiment_runs WHERE id=?`, id)
	return scanRun(row)
}

// ListPolicies 返回某次 run 的各策略成绩（不含曲线）。
func (s *ResultStore) ListPolicies(ctx context.Context, runID string) ([]PolicyResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT policy, value, lift
		FROM experiment_policies
		WHERE run_id=?
		ORDER BY value DESC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PolicyResult
	for rows.Next() {
		var pr PolicyResult
		if err := rows.Scan(&pr.Policy, &pr.Value, &pr.Lift); err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

// ListCurve 返回某个策略的损失曲线。
func (s *ResultStore) ListCurve(ctx context.Context, runID, policy string, limit int) ([]float64, error) {
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT loss FROM experiment_curves
		WHERE run_id=? AND policy=?
		ORDER BY epoch ASC
		LIMIT ?`, runID, policy, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []float64
	for rows.Next() {
		var loss float64
		if err := rows.Scan(&loss); err != nil {
			return nil, err
		}
		out = append(out, loss)
	}
	return out, rows.Err()
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

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var cfgStr string
	var statsStr sql.NullString
	var message sql.NullString
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64
	if err := row.Scan(&run.ID, &run.Name, &run.Status, &cfgStr, &statsStr, &message,
		&createdAt, &updatedAt, &completedAt); err != nil {
		return Run{}, err
	}
	run.CreatedAt = timeFromMillis(createdAt)
	run.UpdatedAt = timeFromMillis(updatedAt)
	if completedAt.Valid {
		run.CompletedAt = timeFromMillis(completedAt.Int64)
	}
	if message.Valid {
		run.Message = message.String
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
