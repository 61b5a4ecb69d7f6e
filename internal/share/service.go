package share

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aegis-safety/aegis/internal/api/models"
	"github.com/aegis-safety/aegis/internal/location"
)

// PositionSource supplies the latest known position for the refresher.
type PositionSource interface {
	LastPosition() (location.Position, bool)
}

// Defaults and limits for share sessions.
const (
	DefaultRefreshInterval = 10 * time.Second
	MinDuration            = time.Minute
	MaxDuration            = 24 * time.Hour
)

// ServiceConfig holds configuration for the share service.
type ServiceConfig struct {
	Repository Repository
	Positions  PositionSource
	Logger     zerolog.Logger

	// UserID scopes owner operations to the device owner.
	UserID string

	// RefreshInterval is how often active sessions receive the latest
	// position. Default: 10 seconds.
	RefreshInterval time.Duration

	// Now is overridable for tests.
	Now func() time.Time
}

// Service manages ephemeral live-location share sessions.
type Service struct {
	repo            Repository
	positions       PositionSource
	logger          zerolog.Logger
	userID          string
	refreshInterval time.Duration
	now             func() time.Time
}

// NewService creates a share service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		repo:            cfg.Repository,
		positions:       cfg.Positions,
		logger:          cfg.Logger.With().Str("component", "share").Logger(),
		userID:          cfg.UserID,
		refreshInterval: cfg.RefreshInterval,
		now:             cfg.Now,
	}
}

// Create starts a new share session. The returned session carries the access
// code; it is the only time the code is handed out together with the id.
func (s *Service) Create(ctx context.Context, duration time.Duration, maxViews *int) (*Session, error) {
	var fieldErrors []models.FieldError
	if duration < MinDuration || duration > MaxDuration {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field:   "duration",
			Message: fmt.Sprintf("must be between %s and %s", MinDuration, MaxDuration),
		})
	}
	if maxViews != nil && *maxViews < 1 {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field:   "maxViews",
			Message: "must be at least 1 when set",
		})
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	code, err := generateAccessCode()
	if err != nil {
		return nil, fmt.Errorf("generate access code: %w", err)
	}

	now := s.now()
	session := &Session{
		ID:         "shr_" + uuid.New().String()[:22],
		UserID:     s.userID,
		AccessCode: code,
		Active:     true,
		CreatedAt:  now,
		ExpiresAt:  now.Add(duration),
		UpdatedAt:  now,
	}
	if maxViews != nil {
		v := *maxViews
		session.MaxViews = &v
	}
	if s.positions != nil {
		if pos, ok := s.positions.LastPosition(); ok {
			session.LastPosition = &pos
		}
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("persist share session: %w", err)
	}

	s.logger.Info().
		Str("share_id", session.ID).
		Time("expires_at", session.ExpiresAt).
		Msg("Share session created")
	return session, nil
}

// Extend pushes the session's expiry out by extra, measured from the current
// expiry or from now when the session has already lapsed past it.
func (s *Service) Extend(ctx context.Context, id string, extra time.Duration) (*Session, error) {
	if extra <= 0 || extra > MaxDuration {
		return nil, &ValidationError{Errors: []models.FieldError{{
			Field:   "duration",
			Message: fmt.Sprintf("must be positive and at most %s", MaxDuration),
		}}}
	}

	session, err := s.ownedSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.Active {
		return nil, ErrSessionNotFound
	}

	now := s.now()
	base := session.ExpiresAt
	if base.Before(now) {
		base = now
	}
	session.ExpiresAt = base.Add(extra)
	session.UpdatedAt = now

	if err := s.repo.SetExpiry(ctx, session.ID, session.ExpiresAt, now); err != nil {
		return nil, fmt.Errorf("persist share extension: %w", err)
	}

	s.logger.Info().
		Str("share_id", session.ID).
		Time("expires_at", session.ExpiresAt).
		Msg("Share session extended")
	return session, nil
}

// Stop deactivates the session. Stopped sessions refuse all further views.
func (s *Service) Stop(ctx context.Context, id string) error {
	session, err := s.ownedSession(ctx, id)
	if err != nil {
		return err
	}
	if !session.Active {
		return nil
	}

	if err := s.repo.Deactivate(ctx, session.ID, s.now()); err != nil {
		return fmt.Errorf("persist share stop: %w", err)
	}

	s.logger.Info().Str("share_id", session.ID).Msg("Share session stopped")
	return nil
}

// ActiveSessions returns the owner's active, unexpired sessions.
func (s *Service) ActiveSessions(ctx context.Context) ([]*Session, error) {
	sessions, err := s.repo.ListActiveByUser(ctx, s.userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := sessions[:0]
	for _, session := range sessions {
		if !session.Expired(now) {
			out = append(out, session)
		}
	}
	return out, nil
}

// ResolveView serves a public view of the session. The repository check is
// atomic; expiry here is authoritative even when the sweep has not run yet.
func (s *Service) ResolveView(ctx context.Context, id, code string) (*ViewResult, error) {
	session, err := s.repo.ResolveView(ctx, id, code, s.now())
	if err != nil {
		return nil, err
	}

	return &ViewResult{
		Position:       session.LastPosition,
		ExpiresAt:      session.ExpiresAt,
		ViewsRemaining: session.ViewsRemaining(),
	}, nil
}

// RefreshPositions copies the latest tracked position into every active
// session. One pass; RunRefresher drives it on a ticker.
func (s *Service) RefreshPositions(ctx context.Context) error {
	if s.positions == nil {
		return nil
	}
	pos, ok := s.positions.LastPosition()
	if !ok {
		return nil
	}

	sessions, err := s.repo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active sessions: %w", err)
	}

	now := s.now()
	for _, session := range sessions {
		if session.Expired(now) {
			continue
		}
		// The scoped update carries the position only; view bookkeeping
		// changed by a concurrent ResolveView stays intact.
		if err := s.repo.UpdateLastPosition(ctx, session.ID, pos, now); err != nil {
			s.logger.Error().Err(err).Str("share_id", session.ID).Msg("Failed to refresh share position")
		}
	}
	return nil
}

// SweepExpired deactivates sessions whose expiry has passed and returns how
// many were swept. Scheduled from the engine; the reactive check in
// ResolveView remains authoritative between passes.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	sessions, err := s.repo.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active sessions: %w", err)
	}

	now := s.now()
	swept := 0
	for _, session := range sessions {
		if !session.Expired(now) {
			continue
		}
		if err := s.repo.Deactivate(ctx, session.ID, now); err != nil {
			s.logger.Error().Err(err).Str("share_id", session.ID).Msg("Failed to sweep expired share")
			continue
		}
		swept++
	}

	if swept > 0 {
		s.logger.Info().Int("swept", swept).Msg("Expired share sessions deactivated")
	}
	return swept, nil
}

// RunRefresher drives RefreshPositions until ctx is cancelled.
func (s *Service) RunRefresher(ctx context.Context) {
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RefreshPositions(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Share position refresh failed")
			}
		}
	}
}

func (s *Service) ownedSession(ctx context.Context, id string) (*Session, error) {
	session, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.UserID != s.userID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// generateAccessCode returns a random code unrelated to the session id.
func generateAccessCode() (string, error) {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

// ValidationError represents share input validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "share validation failed"
}

// AsValidationError unwraps a *ValidationError if err is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
