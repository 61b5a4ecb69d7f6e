// Package sim provides a simulated location capability for local development
// and tests. It generates a random walk around a configured origin at the
// requested cadence.
package sim

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/aegis-safety/aegis/internal/location"
	"github.com/aegis-safety/aegis/pkg/geo"
)

// Config holds configuration for the simulated capability.
type Config struct {
	// Origin is the starting point of the walk.
	Origin geo.Point

	// StepMeters is the maximum displacement per sample. Default: 25.
	StepMeters float64

	// AccuracyMeters is the reported horizontal accuracy. Default: 8.
	AccuracyMeters float64

	// Permission is the reported permission status. Default: granted.
	Permission location.PermissionStatus
}

// Capability is a simulated location source.
type Capability struct {
	cfg Config

	mu      sync.Mutex
	current geo.Point
	rng     *rand.Rand
}

// New creates a simulated capability.
func New(cfg Config) *Capability {
	if cfg.StepMeters <= 0 {
		cfg.StepMeters = 25
	}
	if cfg.AccuracyMeters <= 0 {
		cfg.AccuracyMeters = 8
	}
	if cfg.Permission == "" {
		cfg.Permission = location.PermissionGranted
	}

	return &Capability{
		cfg:     cfg,
		current: cfg.Origin,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CurrentPosition returns the next sample of the walk.
func (c *Capability) CurrentPosition(_ context.Context) (location.Position, error) {
	if c.cfg.Permission != location.PermissionGranted {
		return location.Position{}, location.ErrPermissionDenied
	}
	return c.step(), nil
}

// WatchPosition delivers samples to fn at the configured interval until the
// subscription is cancelled.
func (c *Capability) WatchPosition(fn func(location.Position), opts location.WatchOptions) (location.Subscription, error) {
	if c.cfg.Permission != location.PermissionGranted {
		return nil, location.ErrPermissionDenied
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	done := make(chan struct{})
	sub := &subscription{done: done}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				// Re-check after the tick so a cancel during delivery wins.
				select {
				case <-done:
					return
				default:
				}
				fn(c.step())
			}
		}
	}()

	return sub, nil
}

// PermissionStatus reports the configured permission state.
func (c *Capability) PermissionStatus() location.PermissionStatus {
	return c.cfg.Permission
}

func (c *Capability) step() location.Position {
	c.mu.Lock()
	defer c.mu.Unlock()

	bearing := c.rng.Float64() * 360
	dist := c.rng.Float64() * c.cfg.StepMeters
	c.current = geo.DestinationPoint(c.current, bearing, dist)

	return location.Position{
		Lat:            c.current.Lat,
		Lon:            c.current.Lon,
		AccuracyMeters: c.cfg.AccuracyMeters,
		CapturedAt:     time.Now().UTC(),
	}
}

type subscription struct {
	once sync.Once
	done chan struct{}
}

func (s *subscription) Cancel() {
	s.once.Do(func() { close(s.done) })
}

var _ location.Capability = (*Capability)(nil)
