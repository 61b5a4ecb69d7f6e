// Package geofence provides safe zone management and the per-zone containment
// state machine that turns position samples into enter/exit transition events.
package geofence

import (
	"errors"
	"time"
)

// Repository errors.
var (
	ErrZoneNotFound = errors.New("zone not found")
)

// Zone radius bounds in meters.
const (
	MinRadiusMeters = 10
	MaxRadiusMeters = 10000
)

// Zone represents a safe zone: a circular geographic region with enter/exit
// alerting flags. Zones are owned by the user and edited through the zone
// management surface; the evaluator only ever reads them.
type Zone struct {
	ID           string
	UserID       string
	Name         string
	CenterLat    float64
	CenterLon    float64
	RadiusMeters float64
	AlertOnEnter bool
	AlertOnExit  bool
	Enabled      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TransitionKind identifies the direction of a containment transition.
type TransitionKind string

const (
	TransitionEntered TransitionKind = "entered"
	TransitionExited  TransitionKind = "exited"
)

// Event is an edge-triggered containment transition for a zone.
type Event struct {
	Kind TransitionKind
	Zone Zone
	Lat  float64
	Lon  float64
	At   time.Time
}

// ContainmentState tracks whether the device is inside a zone. Created lazily
// on a zone's first evaluation; owned exclusively by the Evaluator.
type ContainmentState struct {
	ZoneID           string
	Inside           bool
	LastTransitionAt time.Time
}
