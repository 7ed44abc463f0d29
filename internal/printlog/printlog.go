// Package printlog records finished and cancelled prints in a local SQLite
// database. Rows are only ever inserted.
package printlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Status is how a print ended.
type Status string

const (
	Completed Status = "completed"
	Cancelled Status = "cancelled"
)

// Entry is one recorded print.
type Entry struct {
	ID           int64
	Filename     string
	Duration     time.Duration
	FilamentUsed float64 // millimetres
	Status       Status
	RecordedAt   time.Time
}

// Log is the print-history database.
type Log struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS prints (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	filename TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	filament_mm REAL NOT NULL,
	status TEXT NOT NULL,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_prints_recorded_at ON prints(recorded_at);
`

// Open creates or opens the database at path.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create print log dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open print log: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init print log schema: %w", err)
	}
	return &Log{db: db, path: path}, nil
}

// Path returns the database file.
func (l *Log) Path() string {
	return l.path
}

// Close closes the database.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Append inserts e. A zero RecordedAt is set to now.
func (l *Log) Append(ctx context.Context, e Entry) error {
	if l == nil {
		return fmt.Errorf("print log is nil")
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO prints (filename, duration_ms, filament_mm, status, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		e.Filename, e.Duration.Milliseconds(), e.FilamentUsed, string(e.Status), e.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert print: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (l *Log) Recent(ctx context.Context, n int) ([]Entry, error) {
	if l == nil {
		return nil, fmt.Errorf("print log is nil")
	}
	if n <= 0 {
		n = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, filename, duration_ms, filament_mm, status, recorded_at FROM prints ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query prints: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			durationMS int64
			status     string
			recordedAt string
		)
		if err := rows.Scan(&e.ID, &e.Filename, &durationMS, &e.FilamentUsed, &status, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan print: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.Status = Status(status)
		e.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read prints: %w", err)
	}
	return out, nil
}
