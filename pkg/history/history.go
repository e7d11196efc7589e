// Package history records served requests in SQLite so the stats command,
// the HTTP API and MCP tools can report on past runs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/workyterm/workyterm/pkg/models"
)

// Recorder stores and queries run records.
type Recorder interface {
	// Record stores one run.
	Record(ctx context.Context, rec models.RunRecord) error
	// Recent returns the newest runs first, at most limit of them.
	Recent(ctx context.Context, limit int) ([]models.RunRecord, error)
	// Summary aggregates runs per provider since the given time.
	Summary(ctx context.Context, since time.Time) ([]models.RunSummary, error)
	// Close releases resources.
	Close() error
}

// SQLiteRecorder implements Recorder with a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
}

var _ Recorder = (*SQLiteRecorder)(nil)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	category TEXT NOT NULL,
	cached INTEGER NOT NULL DEFAULT 0,
	council INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	elapsed_ms INTEGER NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
`

// New creates a SQLiteRecorder and runs auto-migration.
func New(dbPath string) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(createRunsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &SQLiteRecorder{db: db}, nil
}

// Record stores a run record.
func (h *SQLiteRecorder) Record(ctx context.Context, rec models.RunRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, provider, category, cached, council, status, elapsed_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Provider), string(rec.Category), rec.Cached, rec.Council, rec.Status,
		rec.Elapsed.Milliseconds(), rec.Error, rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Recent returns the newest runs first.
func (h *SQLiteRecorder) Recent(ctx context.Context, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, provider, category, cached, council, status, elapsed_ms, error, created_at
		 FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunRecord
	for rows.Next() {
		var (
			r                    models.RunRecord
			provider, category   string
			elapsedMs, createdMs int64
		)
		if err := rows.Scan(&r.ID, &provider, &category, &r.Cached, &r.Council, &r.Status, &elapsedMs, &r.Error, &createdMs); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Provider = models.ProviderID(provider)
		r.Category = models.TaskCategory(category)
		r.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		r.CreatedAt = time.UnixMilli(createdMs).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Summary returns aggregated runs grouped by provider.
func (h *SQLiteRecorder) Summary(ctx context.Context, since time.Time) ([]models.RunSummary, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT provider, COUNT(*), SUM(cached), SUM(CASE WHEN status = 'success' THEN 0 ELSE 1 END), AVG(elapsed_ms)
		 FROM runs WHERE created_at >= ? GROUP BY provider ORDER BY COUNT(*) DESC, provider`,
		since.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.RunSummary
	for rows.Next() {
		var (
			s        models.RunSummary
			provider string
			avgMs    float64
		)
		if err := rows.Scan(&provider, &s.Runs, &s.Cached, &s.Failed, &avgMs); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.Provider = models.ProviderID(provider)
		s.AvgElapsed = time.Duration(avgMs * float64(time.Millisecond))
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Close releases the database connection.
func (h *SQLiteRecorder) Close() error {
	return h.db.Close()
}
