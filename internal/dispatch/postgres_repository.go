package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
// Recipient outcomes are stored as a JSONB document alongside the job row.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL job repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const jobColumns = `
	id, user_id, trigger_kind, zone_id,
	position_lat, position_lon, position_accuracy_m, position_captured_at,
	message, recipients, status, attempt_count,
	created_at, updated_at
`

// Get retrieves a job by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM alert_jobs WHERE id = $1`
	return r.scanJob(r.pool.QueryRow(ctx, query, id))
}

// ListByUser retrieves jobs for a user, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, opts ListOptions) ([]*Job, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + jobColumns + ` FROM alert_jobs WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := r.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Create persists a new job.
func (r *PostgresRepository) Create(ctx context.Context, j *Job) error {
	recipients, err := json.Marshal(j.Recipients)
	if err != nil {
		return fmt.Errorf("marshal recipients: %w", err)
	}

	query := `
		INSERT INTO alert_jobs (
			id, user_id, trigger_kind, zone_id,
			position_lat, position_lon, position_accuracy_m, position_captured_at,
			message, recipients, status, attempt_count,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = r.pool.Exec(ctx, query,
		j.ID, j.UserID, string(j.Kind), j.ZoneID,
		j.Position.Lat, j.Position.Lon, j.Position.AccuracyMeters, j.Position.CapturedAt,
		j.Message, recipients, string(j.Status), j.AttemptCount,
		j.CreatedAt, j.UpdatedAt,
	)
	return err
}

// Update persists job mutations.
func (r *PostgresRepository) Update(ctx context.Context, j *Job) error {
	recipients, err := json.Marshal(j.Recipients)
	if err != nil {
		return fmt.Errorf("marshal recipients: %w", err)
	}

	query := `
		UPDATE alert_jobs SET
			recipients = $2, status = $3, attempt_count = $4, updated_at = $5
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query,
		j.ID, recipients, string(j.Status), j.AttemptCount, j.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *PostgresRepository) scanJob(row rowScanner) (*Job, error) {
	var (
		j          Job
		kind       string
		status     string
		recipients []byte
	)

	err := row.Scan(
		&j.ID, &j.UserID, &kind, &j.ZoneID,
		&j.Position.Lat, &j.Position.Lon, &j.Position.AccuracyMeters, &j.Position.CapturedAt,
		&j.Message, &recipients, &status, &j.AttemptCount,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	j.Kind = TriggerKind(kind)
	j.Status = JobStatus(status)
	if err := json.Unmarshal(recipients, &j.Recipients); err != nil {
		return nil, fmt.Errorf("unmarshal recipients: %w", err)
	}

	return &j, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
