// Package share manages ephemeral live-location share sessions: time-boxed,
// optionally view-limited links that let a contact see the user's latest
// position without an account.
package share

import (
	"errors"
	"fmt"
	"time"

	"github.com/aegis-safety/aegis/internal/location"
)

// ErrSessionNotFound indicates the session does not exist or is not owned by
// the caller.
var ErrSessionNotFound = errors.New("share session not found")

// AccessReason classifies why a view was refused.
type AccessReason string

const (
	AccessNotFound       AccessReason = "notFound"
	AccessBadCode        AccessReason = "badCode"
	AccessExpired        AccessReason = "expired"
	AccessStopped        AccessReason = "stopped"
	AccessQuotaExhausted AccessReason = "quotaExhausted"
)

// AccessError is returned from ResolveView when the session cannot be viewed.
type AccessError struct {
	Reason AccessReason
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("share access denied: %s", e.Reason)
}

// AsAccessError unwraps err into an AccessError if it is one.
func AsAccessError(err error) (*AccessError, bool) {
	var ae *AccessError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Session is one live-location share.
type Session struct {
	ID         string
	UserID     string
	AccessCode string

	// MaxViews is the optional view quota. Nil means unlimited.
	MaxViews  *int
	ViewCount int
	Active    bool

	// LastPosition is the most recent position copied in by the refresher.
	// Nil until the first position arrives.
	LastPosition *location.Position

	CreatedAt time.Time
	ExpiresAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the session's expiry has passed at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ViewsRemaining returns the remaining quota, or nil for unlimited sessions.
func (s *Session) ViewsRemaining() *int {
	if s.MaxViews == nil {
		return nil
	}
	remaining := *s.MaxViews - s.ViewCount
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	cpy := *s
	if s.MaxViews != nil {
		v := *s.MaxViews
		cpy.MaxViews = &v
	}
	if s.LastPosition != nil {
		p := *s.LastPosition
		cpy.LastPosition = &p
	}
	return &cpy
}

// ViewResult is what a successful public view returns.
type ViewResult struct {
	Position       *location.Position
	ExpiresAt      time.Time
	ViewsRemaining *int
}
