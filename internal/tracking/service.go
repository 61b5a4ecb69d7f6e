package tracking

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aegis-safety/aegis/internal/location"
	"github.com/aegis-safety/aegis/pkg/geo"
)

// ManagerConfig holds configuration for creating a Manager.
type ManagerConfig struct {
	Capability location.Capability
	Logger     zerolog.Logger
	Filter     FilterConfig

	// Now is the clock used for staleness checks. Defaults to time.Now.
	Now func() time.Time
}

// Manager owns the position polling lifecycle. At most one foreground and one
// background session may be active; Start is idempotent per mode. Samples are
// filtered for staleness, accuracy and cadence, then fanned out to subscribers
// in non-decreasing capturedAt order. Cadence and displacement filtering is
// manager-global: an accepted sample from either session advances the shared
// last-accepted state, so the fan-out is one ordered stream, not one per mode.
type Manager struct {
	capability location.Capability
	logger     zerolog.Logger
	filter     FilterConfig
	now        func() time.Time

	mu           sync.Mutex
	sessions     map[Mode]*session
	subscribers  []func(location.Position)
	lastPosition *location.Position
	lastAccepted time.Time
	suspended    bool
}

type session struct {
	handle SessionHandle
	policy CadencePolicy
	sub    location.Subscription
	// stopped is closed on Stop so an in-flight delivery never mutates
	// state after the session is gone.
	stopped chan struct{}
}

// NewManager creates a tracking session manager.
func NewManager(cfg ManagerConfig) *Manager {
	filter := cfg.Filter
	if filter.MaxSampleAge == 0 {
		filter = DefaultFilterConfig()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{
		capability: cfg.Capability,
		logger:     cfg.Logger,
		filter:     filter,
		now:        now,
		sessions:   make(map[Mode]*session),
	}
}

// Subscribe registers a consumer for accepted position samples. Subscribers
// receive copies and must not block for long; delivery is serialized so each
// subscriber observes samples in non-decreasing capturedAt order.
func (m *Manager) Subscribe(fn func(location.Position)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Start begins a tracking session for the given mode. Calling Start while a
// session for that mode is active returns the existing handle without creating
// a second polling subscription. Returns ErrCapabilityDenied (and suspends the
// manager) if location permission is not granted.
func (m *Manager) Start(mode Mode, policy CadencePolicy) (SessionHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.suspended {
		return SessionHandle{}, ErrCapabilityDenied
	}

	if existing, ok := m.sessions[mode]; ok {
		return existing.handle, nil
	}

	if m.capability.PermissionStatus() != location.PermissionGranted {
		m.suspended = true
		m.logger.Warn().Str("mode", string(mode)).Msg("location permission not granted, tracking suspended")
		return SessionHandle{}, ErrCapabilityDenied
	}

	if policy.MinInterval == 0 && policy.MinDisplacementMeters == 0 {
		policy = PolicyForMode(mode)
	}

	s := &session{
		handle: SessionHandle{
			ID:        "trk_" + uuid.New().String()[:22],
			Mode:      mode,
			StartedAt: m.now(),
		},
		policy:  policy,
		stopped: make(chan struct{}),
	}

	sub, err := m.capability.WatchPosition(func(p location.Position) {
		m.deliver(s, p)
	}, location.WatchOptions{
		Interval:     policy.MinInterval,
		HighAccuracy: mode == ModeForeground,
	})
	if err != nil {
		if errors.Is(err, location.ErrPermissionDenied) {
			m.suspended = true
			m.logger.Warn().Str("mode", string(mode)).Msg("location permission revoked, tracking suspended")
			return SessionHandle{}, ErrCapabilityDenied
		}
		return SessionHandle{}, err
	}

	s.sub = sub
	m.sessions[mode] = s

	m.logger.Info().
		Str("session_id", s.handle.ID).
		Str("mode", string(mode)).
		Dur("min_interval", policy.MinInterval).
		Float64("min_displacement_m", policy.MinDisplacementMeters).
		Msg("tracking session started")

	return s.handle, nil
}

// Stop ends the session identified by handle and releases the underlying
// polling subscription. Safe to call during an in-flight sample delivery;
// no state is mutated after Stop returns.
func (m *Manager) Stop(handle SessionHandle) error {
	m.mu.Lock()
	s, ok := m.sessions[handle.Mode]
	if !ok || s.handle.ID != handle.ID {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, handle.Mode)
	close(s.stopped)
	m.mu.Unlock()

	// Cancel outside the lock: the subscription may be waiting on an
	// in-flight delivery that needs the lock to observe the stop.
	s.sub.Cancel()

	m.logger.Info().
		Str("session_id", s.handle.ID).
		Str("mode", string(handle.Mode)).
		Msg("tracking session stopped")
	return nil
}

// StopMode ends the active session for the given mode, if any.
func (m *Manager) StopMode(mode Mode) error {
	m.mu.Lock()
	s, ok := m.sessions[mode]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	handle := s.handle
	m.mu.Unlock()
	return m.Stop(handle)
}

// Sessions returns handles for every active session.
func (m *Manager) Sessions() []SessionHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SessionHandle, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.handle)
	}
	return out
}

// StopAll ends every active session.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for mode, s := range m.sessions {
		delete(m.sessions, mode)
		close(s.stopped)
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.sub.Cancel()
	}
}

// IsActive reports whether any tracking session is active.
func (m *Manager) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions) > 0
}

// Suspended reports whether the manager is suspended after a permission
// revocation.
func (m *Manager) Suspended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspended
}

// Resume clears the suspended state after an explicit permission grant.
// Returns ErrCapabilityDenied if permission is still not granted.
func (m *Manager) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.capability.PermissionStatus() != location.PermissionGranted {
		return ErrCapabilityDenied
	}
	m.suspended = false
	m.logger.Info().Msg("tracking resumed after permission grant")
	return nil
}

// LastPosition returns a copy of the most recently accepted sample.
func (m *Manager) LastPosition() (location.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastPosition == nil {
		return location.Position{}, false
	}
	return *m.lastPosition, true
}

// deliver filters an incoming sample and fans it out. Runs on the adapter's
// delivery goroutine; serialization through m.mu preserves sample order.
func (m *Manager) deliver(s *session, p location.Position) {
	m.mu.Lock()

	select {
	case <-s.stopped:
		m.mu.Unlock()
		return
	default:
	}

	if m.capability.PermissionStatus() == location.PermissionDenied {
		m.mu.Unlock()
		m.suspend(s)
		return
	}

	if !m.accept(s, p) {
		m.mu.Unlock()
		return
	}

	cpy := p
	m.lastPosition = &cpy
	m.lastAccepted = p.CapturedAt
	subscribers := make([]func(location.Position), len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.Unlock()

	for _, fn := range subscribers {
		fn(p)
	}
}

// accept applies staleness, accuracy, ordering and cadence filters.
// Caller holds m.mu.
func (m *Manager) accept(s *session, p location.Position) bool {
	now := m.now()

	if now.Sub(p.CapturedAt) > m.filter.MaxSampleAge {
		m.logger.Debug().
			Time("captured_at", p.CapturedAt).
			Msg("discarding stale sample")
		return false
	}

	if p.AccuracyMeters > m.filter.MaxAccuracyMeters {
		m.logger.Debug().
			Float64("accuracy_m", p.AccuracyMeters).
			Msg("discarding low-accuracy sample")
		return false
	}

	// Out-of-order or duplicate samples (adapter replay) are dropped so
	// downstream consumers observe strictly advancing timestamps.
	if m.lastPosition != nil && !p.CapturedAt.After(m.lastAccepted) {
		return false
	}

	if m.lastPosition != nil {
		if p.CapturedAt.Sub(m.lastAccepted) < s.policy.MinInterval {
			return false
		}
		moved := geo.Distance(
			geo.Point{Lat: m.lastPosition.Lat, Lon: m.lastPosition.Lon},
			geo.Point{Lat: p.Lat, Lon: p.Lon},
		)
		if moved < s.policy.MinDisplacementMeters {
			return false
		}
	}

	return true
}

// suspend stops all sessions after a permission revocation.
func (m *Manager) suspend(trigger *session) {
	m.mu.Lock()
	if m.suspended {
		m.mu.Unlock()
		return
	}
	m.suspended = true
	sessions := make([]*session, 0, len(m.sessions))
	for mode, s := range m.sessions {
		delete(m.sessions, mode)
		close(s.stopped)
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		if s != trigger {
			s.sub.Cancel()
		}
	}
	// The triggering session's cancel happens last; its delivery goroutine
	// is the one running this method.
	if trigger != nil && trigger.sub != nil {
		trigger.sub.Cancel()
	}

	m.logger.Warn().Msg("location permission revoked, all tracking sessions stopped")
}
