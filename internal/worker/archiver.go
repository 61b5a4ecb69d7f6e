// Package worker archives alert job state transitions published by the
// dispatch pipeline into long-term storage for audit and reporting.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/aegis-safety/aegis/internal/history"
)

// Store persists archived history events.
type Store interface {
	InsertEvent(ctx context.Context, event history.Event) error
}

// Archiver validates and persists history events.
type Archiver struct {
	store  Store
	logger zerolog.Logger

	metrics *ArchiveMetrics
}

// ArchiveMetrics tracks archiver statistics.
type ArchiveMetrics struct {
	mu sync.RWMutex

	TotalEvents    int64
	ArchivedEvents int64
	SkippedEvents  int64
	FailedEvents   int64

	LastEventAt         time.Time
	LastArchiveDuration time.Duration
}

// ArchiverConfig holds configuration for creating an Archiver.
type ArchiverConfig struct {
	Store  Store
	Logger zerolog.Logger
}

// NewArchiver creates a new history event archiver.
func NewArchiver(cfg ArchiverConfig) *Archiver {
	return &Archiver{
		store:   cfg.Store,
		logger:  cfg.Logger,
		metrics: &ArchiveMetrics{},
	}
}

// Archive persists one event. Events missing a job id or target status carry
// nothing worth archiving and are dropped with a warning.
func (a *Archiver) Archive(ctx context.Context, event history.Event) error {
	start := time.Now()

	a.metrics.mu.Lock()
	a.metrics.TotalEvents++
	a.metrics.mu.Unlock()

	if event.JobID == "" || event.ToStatus == "" {
		a.logger.Warn().
			Str("job_id", event.JobID).
			Str("to_status", event.ToStatus).
			Msg("dropping incomplete history event")

		a.metrics.mu.Lock()
		a.metrics.SkippedEvents++
		a.metrics.mu.Unlock()
		return nil
	}

	if err := a.store.InsertEvent(ctx, event); err != nil {
		a.metrics.mu.Lock()
		a.metrics.FailedEvents++
		a.metrics.mu.Unlock()
		return fmt.Errorf("archiving event for job %s: %w", event.JobID, err)
	}

	a.metrics.mu.Lock()
	a.metrics.ArchivedEvents++
	a.metrics.LastEventAt = event.At
	a.metrics.LastArchiveDuration = time.Since(start)
	a.metrics.mu.Unlock()

	a.logger.Debug().
		Str("job_id", event.JobID).
		Str("from_status", event.FromStatus).
		Str("to_status", event.ToStatus).
		Msg("archived history event")

	return nil
}

// GetMetrics returns a copy of the current metrics.
func (a *Archiver) GetMetrics() ArchiveMetrics {
	a.metrics.mu.RLock()
	defer a.metrics.mu.RUnlock()

	return ArchiveMetrics{
		TotalEvents:         a.metrics.TotalEvents,
		ArchivedEvents:      a.metrics.ArchivedEvents,
		SkippedEvents:       a.metrics.SkippedEvents,
		FailedEvents:        a.metrics.FailedEvents,
		LastEventAt:         a.metrics.LastEventAt,
		LastArchiveDuration: a.metrics.LastArchiveDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (a *Archiver) MetricsSnapshot() map[string]interface{} {
	m := a.GetMetrics()
	return map[string]interface{}{
		"total_events":          m.TotalEvents,
		"archived_events":       m.ArchivedEvents,
		"skipped_events":        m.SkippedEvents,
		"failed_events":         m.FailedEvents,
		"last_event_at":         m.LastEventAt,
		"last_archive_duration": m.LastArchiveDuration.String(),
	}
}

// PostgresStore persists history events in the alert_history table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed event store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InsertEvent inserts the event. Redelivered events hit the uniqueness
// constraint and are ignored, so archiving stays idempotent.
func (s *PostgresStore) InsertEvent(ctx context.Context, event history.Event) error {
	query := `
		INSERT INTO alert_history (
			job_id, user_id, trigger_kind,
			from_status, to_status, attempt_count, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (job_id, to_status, occurred_at) DO NOTHING
	`

	_, err := s.pool.Exec(ctx, query,
		event.JobID, event.UserID, event.TriggerKind,
		event.FromStatus, event.ToStatus, event.AttemptCount, event.At,
	)
	return err
}

var _ Store = (*PostgresStore)(nil)
