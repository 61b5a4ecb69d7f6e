package geofence

import "context"

// Repository defines the interface for zone persistence in the remote store.
type Repository interface {
	// Get retrieves a zone by ID.
	Get(ctx context.Context, id string) (*Zone, error)

	// GetByUserAndID retrieves a zone scoped to its owning user.
	// Returns ErrZoneNotFound if the zone doesn't exist or belongs to
	// another user.
	GetByUserAndID(ctx context.Context, userID, zoneID string) (*Zone, error)

	// ListByUser retrieves all zones for a user.
	ListByUser(ctx context.Context, userID string) ([]*Zone, error)

	// Create creates a new zone.
	Create(ctx context.Context, zone *Zone) error

	// Update updates an existing zone.
	Update(ctx context.Context, zone *Zone) error

	// Delete deletes a zone by ID.
	Delete(ctx context.Context, id string) error
}
