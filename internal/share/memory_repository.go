package share

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/aegis-safety/aegis/internal/location"
)

// InMemoryRepository is an in-memory implementation of Repository for testing
// and local development.
type InMemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewInMemoryRepository creates a new in-memory share session repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{sessions: make(map[string]*Session)}
}

// Get retrieves a session by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

// ListActiveByUser retrieves a user's active sessions.
func (r *InMemoryRepository) ListActiveByUser(_ context.Context, userID string) ([]*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Session
	for _, s := range r.sessions {
		if s.UserID == userID && s.Active {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

// ListActive retrieves all active sessions.
func (r *InMemoryRepository) ListActive(_ context.Context) ([]*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Session
	for _, s := range r.sessions {
		if s.Active {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

// Create persists a new session.
func (r *InMemoryRepository) Create(_ context.Context, session *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[session.ID] = session.Clone()
	return nil
}

// UpdateLastPosition writes a newer position into an active session. Only the
// position fields are mutated, so a concurrent ResolveView is never undone.
func (r *InMemoryRepository) UpdateLastPosition(_ context.Context, id string, pos location.Position, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if !s.Active {
		return nil
	}
	if s.LastPosition != nil && !s.LastPosition.CapturedAt.Before(pos.CapturedAt) {
		return nil
	}
	p := pos
	s.LastPosition = &p
	s.UpdatedAt = now
	return nil
}

// SetExpiry moves an active session's expiry.
func (r *InMemoryRepository) SetExpiry(_ context.Context, id string, expiresAt, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || !s.Active {
		return ErrSessionNotFound
	}
	s.ExpiresAt = expiresAt
	s.UpdatedAt = now
	return nil
}

// Deactivate stops a session. Missing and already-inactive sessions are a
// no-op.
func (r *InMemoryRepository) Deactivate(_ context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || !s.Active {
		return nil
	}
	s.Active = false
	s.UpdatedAt = now
	return nil
}

// ResolveView validates and increments under a single mutex section, so
// concurrent viewers of a quota-limited session consume exactly the quota.
func (r *InMemoryRepository) ResolveView(_ context.Context, id, code string, now time.Time) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, &AccessError{Reason: AccessNotFound}
	}
	if subtle.ConstantTimeCompare([]byte(s.AccessCode), []byte(code)) != 1 {
		return nil, &AccessError{Reason: AccessBadCode}
	}
	if s.Expired(now) {
		// The view is the authoritative expiry check; a sweep may not
		// have run yet.
		s.Active = false
		s.UpdatedAt = now
		return nil, &AccessError{Reason: AccessExpired}
	}
	if s.MaxViews != nil && s.ViewCount >= *s.MaxViews {
		return nil, &AccessError{Reason: AccessQuotaExhausted}
	}
	if !s.Active {
		return nil, &AccessError{Reason: AccessStopped}
	}

	s.ViewCount++
	if s.MaxViews != nil && s.ViewCount >= *s.MaxViews {
		s.Active = false
	}
	s.UpdatedAt = now
	return s.Clone(), nil
}

var _ Repository = (*InMemoryRepository)(nil)
