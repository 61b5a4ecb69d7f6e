// Package offlinequeue provides the durable local queue that holds alert jobs
// created while the device is offline. Jobs are replayed oldest-first when
// connectivity returns, surviving process restarts in between.
package offlinequeue

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Queue wraps the SQLite database holding pending offline jobs.
type Queue struct {
	db *sql.DB
}

// Entry is one queued job reference.
type Entry struct {
	JobID    string
	QueuedAt time.Time
}

// Open initializes the queue database, creating directories as needed.
func Open(path string) (*Queue, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create queue directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	q := &Queue{db: db}
	if err := q.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return q, nil
}

// OpenInMemory opens a throwaway in-memory queue for tests.
func OpenInMemory() (*Queue, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps the single in-memory database alive and shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	q := &Queue{db: db}
	if err := q.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return q, nil
}

// Close releases the underlying database handle.
func (q *Queue) Close() error {
	if q.db == nil {
		return nil
	}
	return q.db.Close()
}

func (q *Queue) initSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS offline_jobs (
		job_id TEXT PRIMARY KEY,
		queued_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	);`

	if _, err := q.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("init queue schema: %w", err)
	}
	return nil
}

// Enqueue adds a job to the queue. Re-enqueueing an already queued job is a
// no-op, so a failed drain pass can safely push remainders back.
func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO offline_jobs (job_id) VALUES (?)`, jobID)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Oldest returns up to limit entries in queued order.
func (q *Queue) Oldest(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT job_id, queued_at FROM offline_jobs ORDER BY queued_at, job_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list queued jobs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var queuedAt string
		if err := rows.Scan(&e.JobID, &queuedAt); err != nil {
			return nil, fmt.Errorf("scan queued job: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, queuedAt); err == nil {
			e.QueuedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Remove deletes a job from the queue once it has been re-attempted.
func (q *Queue) Remove(ctx context.Context, jobID string) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM offline_jobs WHERE job_id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("remove queued job: %w", err)
	}
	return nil
}

// Len returns the number of queued jobs.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM offline_jobs`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count queued jobs: %w", err)
	}
	return n, nil
}
