package tracking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aegis-safety/aegis/internal/location"
	"github.com/aegis-safety/aegis/internal/tracking"
)

// fakeCapability lets tests push samples through the watch callback directly.
type fakeCapability struct {
	mu         sync.Mutex
	permission location.PermissionStatus
	watchFn    func(location.Position)
	watchCount int
	cancels    int
}

func newFakeCapability() *fakeCapability {
	return &fakeCapability{permission: location.PermissionGranted}
}

func (f *fakeCapability) CurrentPosition(_ context.Context) (location.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.permission != location.PermissionGranted {
		return location.Position{}, location.ErrPermissionDenied
	}
	return location.Position{}, location.ErrUnavailable
}

func (f *fakeCapability) WatchPosition(fn func(location.Position), _ location.WatchOptions) (location.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.permission != location.PermissionGranted {
		return nil, location.ErrPermissionDenied
	}
	f.watchFn = fn
	f.watchCount++
	return fakeSubscription{f}, nil
}

func (f *fakeCapability) PermissionStatus() location.PermissionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.permission
}

func (f *fakeCapability) setPermission(p location.PermissionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permission = p
}

func (f *fakeCapability) emit(p location.Position) {
	f.mu.Lock()
	fn := f.watchFn
	f.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

type fakeSubscription struct{ f *fakeCapability }

func (s fakeSubscription) Cancel() {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	s.f.cancels++
}

func sample(lat, lon float64, at time.Time) location.Position {
	return location.Position{Lat: lat, Lon: lon, AccuracyMeters: 5, CapturedAt: at}
}

func newTestManager(cap *fakeCapability, now func() time.Time) *tracking.Manager {
	return tracking.NewManager(tracking.ManagerConfig{
		Capability: cap,
		Logger:     zerolog.Nop(),
		Filter:     tracking.DefaultFilterConfig(),
		Now:        now,
	})
}

func TestManager_StartIsIdempotent(t *testing.T) {
	cap := newFakeCapability()
	m := newTestManager(cap, time.Now)

	h1, err := m.Start(tracking.ModeForeground, tracking.ForegroundPolicy())
	if err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	h2, err := m.Start(tracking.ModeForeground, tracking.ForegroundPolicy())
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}

	if h1.ID != h2.ID {
		t.Errorf("expected same handle, got %q and %q", h1.ID, h2.ID)
	}
	if cap.watchCount != 1 {
		t.Errorf("expected one polling subscription, got %d", cap.watchCount)
	}
}

func TestManager_ForegroundAndBackgroundCoexist(t *testing.T) {
	cap := newFakeCapability()
	m := newTestManager(cap, time.Now)

	fg, err := m.Start(tracking.ModeForeground, tracking.ForegroundPolicy())
	if err != nil {
		t.Fatalf("foreground start failed: %v", err)
	}
	bg, err := m.Start(tracking.ModeBackground, tracking.BackgroundPolicy())
	if err != nil {
		t.Fatalf("background start failed: %v", err)
	}

	if fg.ID == bg.ID {
		t.Error("expected distinct sessions per mode")
	}
	if !m.IsActive() {
		t.Error("expected manager to be active")
	}
}

func TestManager_StopReleasesSubscription(t *testing.T) {
	cap := newFakeCapability()
	m := newTestManager(cap, time.Now)

	h, err := m.Start(tracking.ModeForeground, tracking.ForegroundPolicy())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := m.Stop(h); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if cap.cancels != 1 {
		t.Errorf("expected subscription cancel, got %d", cap.cancels)
	}
	if m.IsActive() {
		t.Error("expected manager to be inactive after stop")
	}

	if err := m.Stop(h); !errors.Is(err, tracking.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound on double stop, got %v", err)
	}
}

func TestManager_NoDeliveryAfterStop(t *testing.T) {
	cap := newFakeCapability()
	m := newTestManager(cap, time.Now)

	var mu sync.Mutex
	var delivered int
	m.Subscribe(func(location.Position) {
		mu.Lock()
		delivered++
		mu.Unlock()
	})

	h, _ := m.Start(tracking.ModeForeground, tracking.CadencePolicy{MinInterval: time.Millisecond})
	cap.emit(sample(52.0, 4.0, time.Now()))

	if err := m.Stop(h); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	cap.emit(sample(52.1, 4.1, time.Now()))

	mu.Lock()
	defer mu.Unlock()
	if delivered != 1 {
		t.Errorf("expected 1 delivery, got %d", delivered)
	}
}

func TestManager_SampleFiltering(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	cap := newFakeCapability()
	m := newTestManager(cap, func() time.Time { return now })

	var mu sync.Mutex
	var got []location.Position
	m.Subscribe(func(p location.Position) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})

	_, err := m.Start(tracking.ModeForeground, tracking.CadencePolicy{
		MinInterval:           5 * time.Second,
		MinDisplacementMeters: 10,
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// First sample accepted.
	cap.emit(sample(52.0, 4.0, base))

	// Stale sample discarded.
	cap.emit(sample(52.1, 4.0, base.Add(-2*time.Minute)))

	// Low accuracy discarded.
	bad := sample(52.1, 4.0, base.Add(10*time.Second))
	bad.AccuracyMeters = 500
	now = base.Add(10 * time.Second)
	cap.emit(bad)

	// Duplicate timestamp discarded.
	cap.emit(sample(52.2, 4.0, base))

	// Too soon after last accepted sample discarded.
	now = base.Add(2 * time.Second)
	cap.emit(sample(52.2, 4.0, base.Add(2*time.Second)))

	// Displacement below minimum discarded (~1m move).
	now = base.Add(20 * time.Second)
	cap.emit(sample(52.00001, 4.0, base.Add(20*time.Second)))

	// Valid sample accepted.
	now = base.Add(30 * time.Second)
	cap.emit(sample(52.1, 4.1, base.Add(30*time.Second)))

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 accepted samples, got %d", len(got))
	}
	if !got[1].CapturedAt.After(got[0].CapturedAt) {
		t.Error("samples delivered out of order")
	}
}

func TestManager_LastPositionReturnsCopy(t *testing.T) {
	cap := newFakeCapability()
	m := newTestManager(cap, time.Now)

	if _, ok := m.LastPosition(); ok {
		t.Error("expected no position before any sample")
	}

	_, _ = m.Start(tracking.ModeForeground, tracking.CadencePolicy{MinInterval: time.Millisecond})
	at := time.Now()
	cap.emit(sample(37.0, -122.0, at))

	p, ok := m.LastPosition()
	if !ok {
		t.Fatal("expected last position")
	}
	if p.Lat != 37.0 || p.Lon != -122.0 {
		t.Errorf("unexpected position %v", p)
	}
}

func TestManager_SuspendsOnPermissionDenied(t *testing.T) {
	cap := newFakeCapability()
	cap.setPermission(location.PermissionDenied)
	m := newTestManager(cap, time.Now)

	_, err := m.Start(tracking.ModeForeground, tracking.ForegroundPolicy())
	if !errors.Is(err, tracking.ErrCapabilityDenied) {
		t.Fatalf("expected ErrCapabilityDenied, got %v", err)
	}
	if !m.Suspended() {
		t.Error("expected manager to be suspended")
	}

	// Still suspended: no automatic retry even if permission comes back.
	cap.setPermission(location.PermissionGranted)
	if _, err := m.Start(tracking.ModeForeground, tracking.ForegroundPolicy()); !errors.Is(err, tracking.ErrCapabilityDenied) {
		t.Errorf("expected suspended manager to reject start, got %v", err)
	}

	// Explicit resume restores operation.
	if err := m.Resume(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if _, err := m.Start(tracking.ModeForeground, tracking.ForegroundPolicy()); err != nil {
		t.Errorf("expected start to succeed after resume, got %v", err)
	}
}

func TestManager_RevocationMidSessionSuspends(t *testing.T) {
	cap := newFakeCapability()
	m := newTestManager(cap, time.Now)

	_, err := m.Start(tracking.ModeForeground, tracking.CadencePolicy{MinInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	cap.setPermission(location.PermissionDenied)
	cap.emit(sample(52.0, 4.0, time.Now()))

	if !m.Suspended() {
		t.Error("expected suspension after revocation mid-session")
	}
	if m.IsActive() {
		t.Error("expected sessions to be stopped after revocation")
	}
}
