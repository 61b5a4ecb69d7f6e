package share

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-safety/aegis/internal/location"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL share session repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const sessionColumns = `
	id, user_id, access_code,
	max_views, view_count, active,
	last_lat, last_lon, last_accuracy, last_captured_at,
	created_at, expires_at, updated_at
`

// Get retrieves a session by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM share_sessions WHERE id = $1`
	return r.scanSession(r.pool.QueryRow(ctx, query, id))
}

// ListActiveByUser retrieves a user's active sessions.
func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM share_sessions WHERE user_id = $1 AND active ORDER BY created_at`
	return r.querySessions(ctx, query, userID)
}

// ListActive retrieves all active sessions.
func (r *PostgresRepository) ListActive(ctx context.Context) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM share_sessions WHERE active ORDER BY created_at`
	return r.querySessions(ctx, query)
}

// Create creates a new session.
func (r *PostgresRepository) Create(ctx context.Context, s *Session) error {
	query := `
		INSERT INTO share_sessions (
			id, user_id, access_code,
			max_views, view_count, active,
			last_lat, last_lon, last_accuracy, last_captured_at,
			created_at, expires_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	lat, lon, acc, capturedAt := flattenPosition(s.LastPosition)
	_, err := r.pool.Exec(ctx, query,
		s.ID, s.UserID, s.AccessCode,
		s.MaxViews, s.ViewCount, s.Active,
		lat, lon, acc, capturedAt,
		s.CreatedAt, s.ExpiresAt, s.UpdatedAt,
	)
	return err
}

// UpdateLastPosition writes a newer position into an active session. The
// statement never touches view_count or active, so a concurrent ResolveView
// is never undone.
func (r *PostgresRepository) UpdateLastPosition(ctx context.Context, id string, pos location.Position, now time.Time) error {
	query := `
		UPDATE share_sessions SET
			last_lat = $2, last_lon = $3, last_accuracy = $4, last_captured_at = $5,
			updated_at = $6
		WHERE id = $1 AND active
			AND (last_captured_at IS NULL OR last_captured_at < $5)
	`

	_, err := r.pool.Exec(ctx, query,
		id, pos.Lat, pos.Lon, pos.AccuracyMeters, pos.CapturedAt, now,
	)
	return err
}

// SetExpiry moves an active session's expiry.
func (r *PostgresRepository) SetExpiry(ctx context.Context, id string, expiresAt, now time.Time) error {
	query := `UPDATE share_sessions SET expires_at = $2, updated_at = $3 WHERE id = $1 AND active`

	tag, err := r.pool.Exec(ctx, query, id, expiresAt, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Deactivate stops a session. Missing and already-inactive sessions are a
// no-op.
func (r *PostgresRepository) Deactivate(ctx context.Context, id string, now time.Time) error {
	query := `UPDATE share_sessions SET active = FALSE, updated_at = $2 WHERE id = $1 AND active`

	_, err := r.pool.Exec(ctx, query, id, now)
	return err
}

// ResolveView performs the validate-and-increment as one conditional UPDATE,
// so concurrent viewers of a quota-limited session consume exactly the quota.
// When the UPDATE matches nothing, the session is re-read to classify the
// refusal.
func (r *PostgresRepository) ResolveView(ctx context.Context, id, code string, now time.Time) (*Session, error) {
	query := `
		UPDATE share_sessions SET
			view_count = view_count + 1,
			active = CASE
				WHEN max_views IS NOT NULL AND view_count + 1 >= max_views THEN FALSE
				ELSE active
			END,
			updated_at = $3
		WHERE id = $1 AND access_code = $2 AND active
			AND expires_at > $3
			AND (max_views IS NULL OR view_count < max_views)
		RETURNING ` + sessionColumns

	s, err := r.scanSession(r.pool.QueryRow(ctx, query, id, code, now))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}
	return nil, r.classifyRefusal(ctx, id, code, now)
}

func (r *PostgresRepository) classifyRefusal(ctx context.Context, id, code string, now time.Time) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return &AccessError{Reason: AccessNotFound}
		}
		return err
	}
	if s.AccessCode != code {
		return &AccessError{Reason: AccessBadCode}
	}
	if s.Expired(now) {
		// The view is the authoritative expiry check; deactivate here
		// rather than waiting for the sweep.
		_, err := r.pool.Exec(ctx,
			`UPDATE share_sessions SET active = FALSE, updated_at = $2 WHERE id = $1 AND active`,
			id, now)
		if err != nil {
			return err
		}
		return &AccessError{Reason: AccessExpired}
	}
	if s.MaxViews != nil && s.ViewCount >= *s.MaxViews {
		return &AccessError{Reason: AccessQuotaExhausted}
	}
	if !s.Active {
		return &AccessError{Reason: AccessStopped}
	}
	// The session became viewable between the UPDATE and the re-read;
	// report it as stopped rather than looping.
	return &AccessError{Reason: AccessStopped}
}

func (r *PostgresRepository) querySessions(ctx context.Context, query string, args ...any) ([]*Session, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := r.scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scanSession(row rowScanner) (*Session, error) {
	var s Session
	var lat, lon, acc *float64
	var capturedAt *time.Time

	err := row.Scan(
		&s.ID, &s.UserID, &s.AccessCode,
		&s.MaxViews, &s.ViewCount, &s.Active,
		&lat, &lon, &acc, &capturedAt,
		&s.CreatedAt, &s.ExpiresAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if lat != nil && lon != nil {
		pos := location.Position{Lat: *lat, Lon: *lon}
		if acc != nil {
			pos.AccuracyMeters = *acc
		}
		if capturedAt != nil {
			pos.CapturedAt = *capturedAt
		}
		s.LastPosition = &pos
	}
	return &s, nil
}

func flattenPosition(p *location.Position) (lat, lon, acc *float64, capturedAt *time.Time) {
	if p == nil {
		return nil, nil, nil, nil
	}
	return &p.Lat, &p.Lon, &p.AccuracyMeters, &p.CapturedAt
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
