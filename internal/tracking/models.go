// Package tracking provides the tracking session manager: it owns the
// position polling lifecycle and fans filtered samples out to downstream
// consumers.
package tracking

import (
	"errors"
	"time"
)

// Manager errors.
var (
	// ErrCapabilityDenied is returned when location permission is missing or
	// revoked. The manager suspends itself and will not retry; Resume must be
	// called after a new permission grant.
	ErrCapabilityDenied = errors.New("location capability denied")

	// ErrSessionNotFound is returned when stopping a handle that is not active.
	ErrSessionNotFound = errors.New("tracking session not found")
)

// Mode represents a tracking session mode.
type Mode string

const (
	ModeForeground Mode = "foreground"
	ModeBackground Mode = "background"
)

// CadencePolicy controls how often samples are accepted.
type CadencePolicy struct {
	// MinInterval is the minimum time between accepted samples.
	MinInterval time.Duration

	// MinDisplacementMeters is the minimum movement since the last accepted
	// sample before a new one is forwarded.
	MinDisplacementMeters float64
}

// ForegroundPolicy returns the default foreground cadence (5s / 10m).
func ForegroundPolicy() CadencePolicy {
	return CadencePolicy{MinInterval: 5 * time.Second, MinDisplacementMeters: 10}
}

// BackgroundPolicy returns the default background cadence (15s / 50m),
// looser to conserve power.
func BackgroundPolicy() CadencePolicy {
	return CadencePolicy{MinInterval: 15 * time.Second, MinDisplacementMeters: 50}
}

// PolicyForMode returns the default cadence policy for a mode.
func PolicyForMode(mode Mode) CadencePolicy {
	if mode == ModeBackground {
		return BackgroundPolicy()
	}
	return ForegroundPolicy()
}

// SessionHandle identifies an active tracking session.
type SessionHandle struct {
	ID        string
	Mode      Mode
	StartedAt time.Time
}

// FilterConfig controls sample quality filtering.
type FilterConfig struct {
	// MaxSampleAge is the staleness threshold; older samples are discarded.
	// Default: 30 seconds.
	MaxSampleAge time.Duration

	// MaxAccuracyMeters is the accuracy ceiling; samples with a worse
	// (larger) reported accuracy are discarded. Default: 100.
	MaxAccuracyMeters float64
}

// DefaultFilterConfig returns the default sample filter configuration.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MaxSampleAge:      30 * time.Second,
		MaxAccuracyMeters: 100,
	}
}
