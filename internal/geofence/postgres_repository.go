package geofence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL zone repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const zoneColumns = `
	id, user_id, name,
	center_lat, center_lon, radius_meters,
	alert_on_enter, alert_on_exit, enabled,
	created_at, updated_at
`

// Get retrieves a zone by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Zone, error) {
	query := `SELECT ` + zoneColumns + ` FROM zones WHERE id = $1`
	return r.scanZone(r.pool.QueryRow(ctx, query, id))
}

// GetByUserAndID retrieves a zone scoped to its owning user.
func (r *PostgresRepository) GetByUserAndID(ctx context.Context, userID, zoneID string) (*Zone, error) {
	query := `SELECT ` + zoneColumns + ` FROM zones WHERE id = $1 AND user_id = $2`
	return r.scanZone(r.pool.QueryRow(ctx, query, zoneID, userID))
}

// ListByUser retrieves all zones for a user.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*Zone, error) {
	query := `SELECT ` + zoneColumns + ` FROM zones WHERE user_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zones []*Zone
	for rows.Next() {
		z, err := r.scanZone(rows)
		if err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// Create creates a new zone.
func (r *PostgresRepository) Create(ctx context.Context, z *Zone) error {
	query := `
		INSERT INTO zones (
			id, user_id, name,
			center_lat, center_lon, radius_meters,
			alert_on_enter, alert_on_exit, enabled,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.pool.Exec(ctx, query,
		z.ID, z.UserID, z.Name,
		z.CenterLat, z.CenterLon, z.RadiusMeters,
		z.AlertOnEnter, z.AlertOnExit, z.Enabled,
		z.CreatedAt, z.UpdatedAt,
	)
	return err
}

// Update updates an existing zone.
func (r *PostgresRepository) Update(ctx context.Context, z *Zone) error {
	query := `
		UPDATE zones SET
			name = $2,
			center_lat = $3, center_lon = $4, radius_meters = $5,
			alert_on_enter = $6, alert_on_exit = $7, enabled = $8,
			updated_at = $9
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query,
		z.ID, z.Name,
		z.CenterLat, z.CenterLon, z.RadiusMeters,
		z.AlertOnEnter, z.AlertOnExit, z.Enabled,
		z.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrZoneNotFound
	}
	return nil
}

// Delete deletes a zone by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM zones WHERE id = $1`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scanZone(row rowScanner) (*Zone, error) {
	var z Zone
	err := row.Scan(
		&z.ID, &z.UserID, &z.Name,
		&z.CenterLat, &z.CenterLon, &z.RadiusMeters,
		&z.AlertOnEnter, &z.AlertOnExit, &z.Enabled,
		&z.CreatedAt, &z.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrZoneNotFound
		}
		return nil, err
	}
	return &z, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
