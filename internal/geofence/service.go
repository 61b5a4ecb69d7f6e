package geofence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aegis-safety/aegis/internal/api/models"
)

// ServiceConfig holds configuration for the zone service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger

	// UserID scopes all zone operations to the device owner.
	UserID string

	// CacheTTL is how long the zone cache is considered fresh.
	// Default: 1 minute.
	CacheTTL time.Duration
}

// Service provides zone management with a read-mostly cache. The evaluator
// reads zones through the cache so a slow or unreachable remote store never
// blocks an evaluation cycle; staleness is observable through LastSyncAt.
type Service struct {
	repo     Repository
	logger   zerolog.Logger
	userID   string
	cacheTTL time.Duration

	mu          sync.RWMutex
	cache       []*Zone
	cacheExpiry time.Time
	lastSyncAt  time.Time
}

// NewService creates a new zone service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 1 * time.Minute
	}

	return &Service{
		repo:     cfg.Repository,
		logger:   cfg.Logger,
		userID:   cfg.UserID,
		cacheTTL: cacheTTL,
	}
}

// Zones returns copies of the user's zones, served from cache when fresh.
// On a remote store error the last known snapshot is returned, so the
// evaluator keeps running on stale-but-known zones.
func (s *Service) Zones(ctx context.Context) []Zone {
	s.mu.RLock()
	if time.Now().Before(s.cacheExpiry) {
		zones := copyZones(s.cache)
		s.mu.RUnlock()
		return zones
	}
	s.mu.RUnlock()

	return s.reload(ctx)
}

// LastSyncAt returns when the cache was last refreshed from the remote store.
// Zero time means no successful sync yet.
func (s *Service) LastSyncAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSyncAt
}

// Invalidate discards the cache so the next evaluation cycle reloads.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheExpiry = time.Time{}
}

// Reload forces a cache refresh. Scheduled periodically so external edits to
// the zone set are picked up even without a change notification.
func (s *Service) Reload(ctx context.Context) {
	s.reload(ctx)
}

func (s *Service) reload(ctx context.Context) []Zone {
	zones, err := s.repo.ListByUser(ctx, s.userID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("zone reload failed, serving stale cache")
		s.mu.RLock()
		defer s.mu.RUnlock()
		return copyZones(s.cache)
	}

	s.mu.Lock()
	s.cache = zones
	s.lastSyncAt = time.Now()
	s.cacheExpiry = s.lastSyncAt.Add(s.cacheTTL)
	result := copyZones(s.cache)
	s.mu.Unlock()

	return result
}

// List retrieves all zones for the owner.
func (s *Service) List(ctx context.Context) ([]models.Zone, error) {
	zones, err := s.repo.ListByUser(ctx, s.userID)
	if err != nil {
		return nil, err
	}

	items := make([]models.Zone, 0, len(zones))
	for _, z := range zones {
		items = append(items, toAPIZone(z))
	}
	return items, nil
}

// Get retrieves a zone by ID for the owner.
func (s *Service) Get(ctx context.Context, zoneID string) (*models.Zone, error) {
	z, err := s.repo.GetByUserAndID(ctx, s.userID, zoneID)
	if err != nil {
		return nil, err
	}
	result := toAPIZone(z)
	return &result, nil
}

// Create creates a new zone and invalidates the evaluator cache.
func (s *Service) Create(ctx context.Context, input *models.ZoneCreateRequest) (*models.Zone, error) {
	if fieldErrors := validateZoneInput(input.Name, input.CenterLat, input.CenterLon, input.RadiusMeters); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	now := time.Now()
	z := &Zone{
		ID:           "zone_" + uuid.New().String()[:22],
		UserID:       s.userID,
		Name:         input.Name,
		CenterLat:    input.CenterLat,
		CenterLon:    input.CenterLon,
		RadiusMeters: input.RadiusMeters,
		AlertOnEnter: input.AlertOnEnter,
		AlertOnExit:  input.AlertOnExit,
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, z); err != nil {
		return nil, err
	}
	s.Invalidate()

	s.logger.Info().
		Str("zone_id", z.ID).
		Str("name", z.Name).
		Float64("radius_m", z.RadiusMeters).
		Msg("zone created")

	result := toAPIZone(z)
	return &result, nil
}

// Update updates an existing zone and invalidates the evaluator cache.
func (s *Service) Update(ctx context.Context, zoneID string, input *models.ZoneUpdateRequest) (*models.Zone, error) {
	z, err := s.repo.GetByUserAndID(ctx, s.userID, zoneID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		z.Name = *input.Name
	}
	if input.CenterLat != nil {
		z.CenterLat = *input.CenterLat
	}
	if input.CenterLon != nil {
		z.CenterLon = *input.CenterLon
	}
	if input.RadiusMeters != nil {
		z.RadiusMeters = *input.RadiusMeters
	}
	if input.AlertOnEnter != nil {
		z.AlertOnEnter = *input.AlertOnEnter
	}
	if input.AlertOnExit != nil {
		z.AlertOnExit = *input.AlertOnExit
	}

	if fieldErrors := validateZoneInput(z.Name, z.CenterLat, z.CenterLon, z.RadiusMeters); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	z.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, z); err != nil {
		return nil, err
	}
	s.Invalidate()

	result := toAPIZone(z)
	return &result, nil
}

// Toggle enables or disables a zone and invalidates the evaluator cache.
func (s *Service) Toggle(ctx context.Context, zoneID string, enabled bool) (*models.Zone, error) {
	z, err := s.repo.GetByUserAndID(ctx, s.userID, zoneID)
	if err != nil {
		return nil, err
	}

	z.Enabled = enabled
	z.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, z); err != nil {
		return nil, err
	}
	s.Invalidate()

	result := toAPIZone(z)
	return &result, nil
}

// Delete deletes a zone and invalidates the evaluator cache. The evaluator
// discards the zone's containment state on its next cycle.
func (s *Service) Delete(ctx context.Context, zoneID string) error {
	if _, err := s.repo.GetByUserAndID(ctx, s.userID, zoneID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, zoneID); err != nil {
		return err
	}
	s.Invalidate()
	return nil
}

func validateZoneInput(name string, lat, lon, radius float64) []models.FieldError {
	var errs []models.FieldError

	if name == "" {
		errs = append(errs, models.FieldError{Field: "name", Message: "is required"})
	}
	if lat < -90 || lat > 90 {
		errs = append(errs, models.FieldError{Field: "centerLat", Message: "must be between -90 and 90"})
	}
	if lon < -180 || lon > 180 {
		errs = append(errs, models.FieldError{Field: "centerLon", Message: "must be between -180 and 180"})
	}
	if radius < MinRadiusMeters || radius > MaxRadiusMeters {
		errs = append(errs, models.FieldError{Field: "radiusMeters", Message: "must be between 10 and 10000"})
	}

	return errs
}

func copyZones(zones []*Zone) []Zone {
	out := make([]Zone, 0, len(zones))
	for _, z := range zones {
		out = append(out, *z)
	}
	return out
}

func toAPIZone(z *Zone) models.Zone {
	return models.Zone{
		ID:           z.ID,
		Name:         z.Name,
		CenterLat:    z.CenterLat,
		CenterLon:    z.CenterLon,
		RadiusMeters: z.RadiusMeters,
		AlertOnEnter: z.AlertOnEnter,
		AlertOnExit:  z.AlertOnExit,
		Enabled:      z.Enabled,
		CreatedAt:    models.Timestamp(z.CreatedAt),
		UpdatedAt:    models.Timestamp(z.UpdatedAt),
	}
}

// ValidationError represents zone validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

// AsValidationError unwraps a *ValidationError if err is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
