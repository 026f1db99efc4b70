// Package sqlite persists simulation runs: one row per run plus the
// per-day logs and disruption events produced while it executed.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailiangshang/team-work/internal/domain"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	status TEXT NOT NULL,
	total_days INTEGER NOT NULL,
	days_used INTEGER NOT NULL DEFAULT 0,
	overlay TEXT NOT NULL DEFAULT '{}',
	result TEXT NULL,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project_id, started_at);

CREATE TABLE IF NOT EXISTS run_days (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	day INTEGER NOT NULL,
	payload TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE(run_id, day),
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS run_disruptions (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	day INTEGER NOT NULL,
	category TEXT NOT NULL,
	severity TEXT NOT NULL,
	description TEXT NOT NULL,
	delay_days INTEGER NOT NULL,
	affected TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_run_disruptions_run ON run_disruptions(run_id, day);
`

// RunRecord is the persisted view of one run. Result is populated once the
// run reaches a terminal state.
type RunRecord struct {
	ID         string                   `json:"id"`
	ProjectID  string                   `json:"project_id"`
	Status     domain.RunStatus         `json:"status"`
	TotalDays  int                      `json:"total_days"`
	DaysUsed   int                      `json:"days_used"`
	Overlay    json.RawMessage          `json:"overlay,omitempty"`
	Result     *domain.SimulationResult `json:"result,omitempty"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt *time.Time               `json:"finished_at,omitempty"`
}

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// CreateRun records a run the moment it starts.
func (s *Store) CreateRun(ctx context.Context, runID, projectID string, totalDays int, overlay any) error {
	blob, err := json.Marshal(overlay)
	if err != nil {
		return fmt.Errorf("marshal overlay: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO runs (id, project_id, status, total_days, overlay, started_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		runID, projectID, string(domain.RunStatusRunning), totalDays, string(blob), time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// AppendDay persists one finished day along with its disruption events.
func (s *Store) AppendDay(ctx context.Context, runID string, day domain.DayLog) error {
	blob, err := json.Marshal(day)
	if err != nil {
		return fmt.Errorf("marshal day log: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO run_days (run_id, day, payload, created_at)
VALUES (?, ?, ?, ?)`,
		runID, day.Day, string(blob), time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("append day %d: %w", day.Day, err)
	}
	for _, ev := range day.Disruptions {
		if err := s.recordDisruption(ctx, runID, ev); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) recordDisruption(ctx context.Context, runID string, ev domain.DisruptionEvent) error {
	affected, err := json.Marshal(ev.AffectedIDs)
	if err != nil {
		return fmt.Errorf("marshal affected tasks: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO run_disruptions (id, run_id, day, category, severity, description, delay_days, affected, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, runID, ev.Day, string(ev.Category), string(ev.Severity), ev.Description, ev.DelayDays, string(affected), time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record disruption: %w", err)
	}
	return nil
}

// FinishRun stores the terminal result and closes the run row.
func (s *Store) FinishRun(ctx context.Context, result *domain.SimulationResult) error {
	blob, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE runs SET status = ?, days_used = ?, result = ?, finished_at = ?
WHERE id = ?`,
		string(result.Status), result.DaysUsed, string(blob), time.Now().UTC().Unix(), result.RunID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun loads one run row.
func (s *Store) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, project_id, status, total_days, days_used, overlay, result, started_at, finished_at
FROM runs WHERE id = ?`, runID)
	return scanRun(row)
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, project_id, status, total_days, days_used, overlay, result, started_at, finished_at
FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListDays returns a run's day logs in day order.
func (s *Store) ListDays(ctx context.Context, runID string) ([]domain.DayLog, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT payload FROM run_days WHERE run_id = ? ORDER BY day ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list days: %w", err)
	}
	defer rows.Close()

	var out []domain.DayLog
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		var day domain.DayLog
		if err := json.Unmarshal([]byte(payload), &day); err != nil {
			return nil, fmt.Errorf("decode day payload: %w", err)
		}
		out = append(out, day)
	}
	return out, rows.Err()
}

// ListDisruptions returns a run's injected events in day order.
func (s *Store) ListDisruptions(ctx context.Context, runID string) ([]domain.DisruptionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, day, category, severity, description, delay_days, affected
FROM run_disruptions WHERE run_id = ? ORDER BY day ASC, id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list disruptions: %w", err)
	}
	defer rows.Close()

	var out []domain.DisruptionEvent
	for rows.Next() {
		var (
			ev       domain.DisruptionEvent
			category string
			severity string
			affected string
		)
		if err := rows.Scan(&ev.ID, &ev.Day, &category, &severity, &ev.Description, &ev.DelayDays, &affected); err != nil {
			return nil, fmt.Errorf("scan disruption: %w", err)
		}
		ev.Category = domain.DisruptionCategory(category)
		ev.Severity = domain.DisruptionSeverity(severity)
		if err := json.Unmarshal([]byte(affected), &ev.AffectedIDs); err != nil {
			return nil, fmt.Errorf("decode affected tasks: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var (
		rec      RunRecord
		status   string
		overlay  string
		result   sql.NullString
		started  int64
		finished sql.NullInt64
	)
	err := row.Scan(&rec.ID, &rec.ProjectID, &status, &rec.TotalDays, &rec.DaysUsed, &overlay, &result, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, ErrNotFound
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("scan run: %w", err)
	}
	rec.Status = domain.RunStatus(status)
	rec.Overlay = json.RawMessage(overlay)
	if result.Valid && result.String != "" {
		var sr domain.SimulationResult
		if err := json.Unmarshal([]byte(result.String), &sr); err != nil {
			return RunRecord{}, fmt.Errorf("decode run result: %w", err)
		}
		rec.Result = &sr
	}
	rec.StartedAt = unixToTime(started)
	if finished.Valid {
		t := unixToTime(finished.Int64)
		rec.FinishedAt = &t
	}
	return rec, nil
}

func unixToTime(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}
