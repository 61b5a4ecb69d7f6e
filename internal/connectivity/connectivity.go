// Package connectivity tracks whether the device is online and notifies
// subscribers on changes. The dispatch pipeline uses it to gate offline-queue
// draining.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Signal reports online/offline state with change notification.
type Signal interface {
	// Online reports the current connectivity state.
	Online() bool

	// Subscribe registers fn to be called on every state change with the
	// new state. fn is invoked from the monitor's own goroutine.
	Subscribe(fn func(online bool))
}

// ManualSignal is a Signal driven by explicit Set calls. Used in tests and
// where the host platform delivers its own reachability callbacks.
type ManualSignal struct {
	mu          sync.Mutex
	online      bool
	subscribers []func(bool)
}

// NewManualSignal creates a manual signal with the given initial state.
func NewManualSignal(online bool) *ManualSignal {
	return &ManualSignal{online: online}
}

// Online reports the current state.
func (s *ManualSignal) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Subscribe registers a change callback.
func (s *ManualSignal) Subscribe(fn func(bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Set updates the state, notifying subscribers if it changed.
func (s *ManualSignal) Set(online bool) {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return
	}
	s.online = online
	subscribers := make([]func(bool), len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.mu.Unlock()

	for _, fn := range subscribers {
		fn(online)
	}
}

// ProbeConfig holds configuration for the probing monitor.
type ProbeConfig struct {
	// URL is probed with a HEAD request. Any response means online.
	URL string

	// Interval between probes. Default: 15 seconds.
	Interval time.Duration

	// Timeout per probe. Default: 5 seconds.
	Timeout time.Duration

	Logger zerolog.Logger
}

// ProbeMonitor determines connectivity by periodically probing an HTTP
// endpoint. It embeds a ManualSignal for state and subscriber management.
type ProbeMonitor struct {
	ManualSignal

	cfg    ProbeConfig
	client *http.Client
}

// NewProbeMonitor creates a probing monitor. Call Run to start probing.
func NewProbeMonitor(cfg ProbeConfig) *ProbeMonitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &ProbeMonitor{
		ManualSignal: ManualSignal{online: true},
		cfg:          cfg,
		client:       &http.Client{Timeout: cfg.Timeout},
	}
}

// Run probes until ctx is done.
func (m *ProbeMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			online := m.probe(ctx)
			if online != m.Online() {
				m.cfg.Logger.Info().Bool("online", online).Msg("connectivity changed")
			}
			m.Set(online)
		}
	}
}

func (m *ProbeMonitor) probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, m.cfg.URL, http.NoBody)
	if err != nil {
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

var (
	_ Signal = (*ManualSignal)(nil)
	_ Signal = (*ProbeMonitor)(nil)
)
