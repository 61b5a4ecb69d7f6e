package share

import (
	"context"
	"time"

	"github.com/aegis-safety/aegis/internal/location"
)

// Repository defines the interface for share session persistence.
type Repository interface {
	// Get retrieves a session by ID.
	Get(ctx context.Context, id string) (*Session, error)

	// ListActiveByUser retrieves a user's active sessions.
	ListActiveByUser(ctx context.Context, userID string) ([]*Session, error)

	// ListActive retrieves all active sessions, for the refresher and the
	// expiry sweep.
	ListActive(ctx context.Context) ([]*Session, error)

	// Create persists a new session.
	Create(ctx context.Context, session *Session) error

	// UpdateLastPosition writes a newer position into an active session
	// without touching the view bookkeeping. Inactive sessions and samples
	// no newer than the stored one are left untouched.
	UpdateLastPosition(ctx context.Context, id string, pos location.Position, now time.Time) error

	// SetExpiry moves an active session's expiry without touching the view
	// bookkeeping. Inactive or missing sessions report ErrSessionNotFound.
	SetExpiry(ctx context.Context, id string, expiresAt, now time.Time) error

	// Deactivate stops a session. Missing and already-inactive sessions
	// are a no-op.
	Deactivate(ctx context.Context, id string, now time.Time) error

	// ResolveView atomically validates the access code, active flag, expiry
	// and view quota at now, increments the view count (deactivating the
	// session when the quota is reached) and returns the post-increment
	// session. Refusals are reported as *AccessError. The check and the
	// increment are indivisible under concurrent callers.
	ResolveView(ctx context.Context, id, code string, now time.Time) (*Session, error)
}
