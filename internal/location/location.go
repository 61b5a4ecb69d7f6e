// Package location defines the device positioning capability consumed by the
// tracking session manager, and the position sample type shared by all
// downstream components.
package location

import (
	"context"
	"errors"
	"time"
)

// Capability errors.
var (
	// ErrPermissionDenied is returned when location permission is missing or
	// has been revoked. Callers must not retry; a new grant is required.
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrUnavailable is returned when the positioning hardware cannot produce
	// a fix right now (transient).
	ErrUnavailable = errors.New("location temporarily unavailable")
)

// PermissionStatus represents the device location permission state.
type PermissionStatus string

const (
	PermissionGranted      PermissionStatus = "granted"
	PermissionDenied       PermissionStatus = "denied"
	PermissionUndetermined PermissionStatus = "undetermined"
)

// Position is a single timestamped position sample. Immutable once created;
// consumers retain copies, never shared references.
type Position struct {
	Lat            float64
	Lon            float64
	AccuracyMeters float64
	CapturedAt     time.Time
}

// WatchOptions configures a position watch subscription.
type WatchOptions struct {
	// Interval is the requested cadence between samples.
	Interval time.Duration

	// HighAccuracy requests the most precise positioning mode available,
	// at higher power cost.
	HighAccuracy bool
}

// Subscription is a handle to an active position watch. Cancel releases the
// underlying hardware polling; it is safe to call more than once.
type Subscription interface {
	Cancel()
}

// Capability abstracts the device's positioning hardware. It is the only
// interface in the engine that touches the OS; everything downstream consumes
// Position values.
type Capability interface {
	// CurrentPosition blocks until a fix is available or ctx is done.
	CurrentPosition(ctx context.Context) (Position, error)

	// WatchPosition starts delivering samples to fn at the configured cadence
	// until the returned subscription is cancelled. fn must not be invoked
	// after Cancel returns.
	WatchPosition(fn func(Position), opts WatchOptions) (Subscription, error)

	// PermissionStatus reports the current permission state without
	// triggering a prompt.
	PermissionStatus() PermissionStatus
}
