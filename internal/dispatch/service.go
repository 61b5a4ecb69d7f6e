package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aegis-safety/aegis/internal/connectivity"
	"github.com/aegis-safety/aegis/internal/dispatch/offlinequeue"
	"github.com/aegis-safety/aegis/internal/history"
	"github.com/aegis-safety/aegis/internal/location"
	"github.com/aegis-safety/aegis/internal/notify"
)

// ContactSource supplies the trusted contacts that receive alerts.
type ContactSource interface {
	Contacts(ctx context.Context) ([]notify.Recipient, error)
}

// StaticContacts is a fixed contact list.
type StaticContacts []notify.Recipient

// Contacts returns the list.
func (c StaticContacts) Contacts(context.Context) ([]notify.Recipient, error) {
	return c, nil
}

// Defaults for the delivery policy.
const (
	DefaultMaxAttempts    = 3
	DefaultAttemptTimeout = 10 * time.Second
	DefaultCooldown       = 60 * time.Second
	DefaultRetryInterval  = 2 * time.Second
)

// ServiceConfig holds configuration for the dispatch service.
type ServiceConfig struct {
	Repository Repository
	Notifier   notify.Notifier
	Contacts   ContactSource
	Logger     zerolog.Logger

	// Queue holds jobs created while offline. Optional; without it
	// offline triggers are still persisted via Repository but are only
	// retried on the next explicit drain.
	Queue *offlinequeue.Queue

	// Signal reports connectivity. Optional; nil means always online.
	Signal connectivity.Signal

	// History receives job state transitions. Optional.
	History history.Recorder

	// Geocoder enriches alert messages with a street address. Optional.
	Geocoder Geocoder

	UserID   string
	UserName string

	// MaxAttempts is per-recipient delivery attempts before marking the
	// recipient failed.
	MaxAttempts int

	// AttemptTimeout bounds a single delivery attempt.
	AttemptTimeout time.Duration

	// Cooldown is the per-zone suppression window for geofence triggers.
	Cooldown time.Duration

	// RetryInterval is the initial backoff between delivery attempts.
	RetryInterval time.Duration

	// Now is overridable for tests.
	Now func() time.Time
}

type cooldownEntry struct {
	jobID string
	at    time.Time
}

// Service runs the alert dispatch pipeline: composing messages, delivering
// them with retry, queuing while offline and draining on reconnect.
type Service struct {
	repo     Repository
	notifier notify.Notifier
	contacts ContactSource
	queue    *offlinequeue.Queue
	signal   connectivity.Signal
	history  history.Recorder
	geocoder Geocoder
	logger   zerolog.Logger

	userID   string
	userName string

	maxAttempts    int
	attemptTimeout time.Duration
	cooldown       time.Duration
	retryInterval  time.Duration
	now            func() time.Time

	mu          sync.Mutex
	cooldowns   map[string]cooldownEntry
	subscribers []func(*Job)

	wg sync.WaitGroup
}

// NewService creates a dispatch service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.History == nil {
		cfg.History = history.NopRecorder{}
	}
	if cfg.UserName == "" {
		cfg.UserName = "The user"
	}

	s := &Service{
		repo:           cfg.Repository,
		notifier:       cfg.Notifier,
		contacts:       cfg.Contacts,
		queue:          cfg.Queue,
		signal:         cfg.Signal,
		history:        cfg.History,
		geocoder:       cfg.Geocoder,
		logger:         cfg.Logger.With().Str("component", "dispatch").Logger(),
		userID:         cfg.UserID,
		userName:       cfg.UserName,
		maxAttempts:    cfg.MaxAttempts,
		attemptTimeout: cfg.AttemptTimeout,
		cooldown:       cfg.Cooldown,
		retryInterval:  cfg.RetryInterval,
		now:            cfg.Now,
		cooldowns:      make(map[string]cooldownEntry),
	}

	if s.signal != nil {
		s.signal.Subscribe(func(online bool) {
			if online {
				s.drainQueue(context.Background())
			}
		})
	}
	return s
}

// Subscribe registers fn to receive a snapshot of the job after every status
// change. fn must not block.
func (s *Service) Subscribe(fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Trigger creates and dispatches an alert job. Zone-transition triggers
// falling inside the per-zone cooldown window coalesce into the previous job
// rather than creating a new one; user-initiated triggers always dispatch.
func (s *Service) Trigger(ctx context.Context, kind TriggerKind, zoneID *string, pos location.Position) (TriggerResult, error) {
	recipients, err := s.contacts.Contacts(ctx)
	if err != nil {
		return TriggerResult{}, fmt.Errorf("load contacts: %w", err)
	}
	if len(recipients) == 0 {
		return TriggerResult{}, ErrNoRecipients
	}

	now := s.now()
	jobID := "job_" + uuid.New().String()[:22]

	// The cooldown check and the reservation share one critical section;
	// concurrent triggers for the same zone resolve to a single job.
	var cooldownKey string
	if zoneID != nil && !kind.BypassesCooldown() {
		cooldownKey = *zoneID + "|" + string(kind)
		s.mu.Lock()
		if entry, ok := s.cooldowns[cooldownKey]; ok && now.Sub(entry.at) < s.cooldown {
			s.mu.Unlock()
			s.logger.Debug().
				Str("zone_id", *zoneID).
				Str("kind", string(kind)).
				Str("job_id", entry.jobID).
				Msg("Trigger coalesced into cooldown window")
			return TriggerResult{JobID: entry.jobID, Coalesced: true}, nil
		}
		s.cooldowns[cooldownKey] = cooldownEntry{jobID: jobID, at: now}
		s.mu.Unlock()
	}

	job := &Job{
		ID:        jobID,
		UserID:    s.userID,
		Kind:      kind,
		ZoneID:    zoneID,
		Position:  pos,
		Message:   composeMessage(ctx, s.geocoder, kind, s.userName, pos),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	job.Recipients = make([]RecipientOutcome, len(recipients))
	for i, r := range recipients {
		job.Recipients[i] = RecipientOutcome{Recipient: r, Status: RecipientPending}
	}

	if err := s.repo.Create(ctx, job); err != nil {
		s.releaseCooldown(cooldownKey, jobID)
		return TriggerResult{}, fmt.Errorf("persist alert job: %w", err)
	}
	s.record(ctx, job, "")

	s.logger.Info().
		Str("job_id", job.ID).
		Str("kind", string(kind)).
		Int("recipients", len(job.Recipients)).
		Msg("Alert job created")

	if s.signal != nil && !s.signal.Online() {
		if err := s.transition(ctx, job, StatusQueuedOffline); err != nil {
			return TriggerResult{}, err
		}
		if s.queue != nil {
			if err := s.queue.Enqueue(ctx, job.ID); err != nil {
				s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to enqueue offline job")
			}
		}
		return TriggerResult{JobID: job.ID}, nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliver(context.WithoutCancel(ctx), job)
	}()
	return TriggerResult{JobID: job.ID}, nil
}

// releaseCooldown drops a reservation whose job never got persisted.
func (s *Service) releaseCooldown(key, jobID string) {
	if key == "" {
		return
	}
	s.mu.Lock()
	if entry, ok := s.cooldowns[key]; ok && entry.jobID == jobID {
		delete(s.cooldowns, key)
	}
	s.mu.Unlock()
}

// Get returns a job by id.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.Get(ctx, id)
}

// List returns the user's jobs, newest first.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]*Job, error) {
	return s.repo.ListByUser(ctx, s.userID, opts)
}

// Drain re-attempts queued offline jobs, oldest first. It stops early if
// connectivity drops mid-pass. Normally invoked via the connectivity signal;
// exposed for the ops surface.
func (s *Service) Drain(ctx context.Context) error {
	return s.drainQueue(ctx)
}

// Wait blocks until all in-flight deliveries finish. Used on shutdown.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) drainQueue(ctx context.Context) error {
	if s.queue == nil {
		return nil
	}

	entries, err := s.queue.Oldest(ctx, 100)
	if err != nil {
		return fmt.Errorf("list offline queue: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	s.logger.Info().Int("queued", len(entries)).Msg("Draining offline alert queue")

	for _, entry := range entries {
		if s.signal != nil && !s.signal.Online() {
			s.logger.Warn().Msg("Connectivity lost mid-drain, stopping")
			return nil
		}

		job, err := s.repo.Get(ctx, entry.JobID)
		if err != nil {
			if errors.Is(err, ErrJobNotFound) {
				s.queue.Remove(ctx, entry.JobID)
				continue
			}
			return fmt.Errorf("load queued job %s: %w", entry.JobID, err)
		}

		if err := s.queue.Remove(ctx, entry.JobID); err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to dequeue job")
		}
		if job.Status.Terminal() {
			continue
		}
		s.deliver(ctx, job)
	}
	return nil
}

// deliver runs the delivery attempt cycle for every pending recipient and
// settles the job into a terminal status.
func (s *Service) deliver(ctx context.Context, job *Job) {
	if err := s.transition(ctx, job, StatusInFlight); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark job in flight")
		return
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := range job.Recipients {
		if job.Recipients[i].Status == RecipientDelivered {
			continue
		}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			outcome := s.deliverToRecipient(ctx, job, job.Recipients[idx])
			mu.Lock()
			job.Recipients[idx] = outcome
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	job.AttemptCount++

	delivered := false
	for _, r := range job.Recipients {
		if r.Status == RecipientDelivered {
			delivered = true
			break
		}
	}

	final := StatusFailed
	if delivered {
		final = StatusDelivered
	}
	if err := s.transition(ctx, job, final); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to finalize job")
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("status", string(final)).
		Int("attempt", job.AttemptCount).
		Msg("Alert job settled")
}

// deliverToRecipient attempts delivery with exponential backoff. Invalid
// recipients fail immediately; transient gateway errors are retried.
func (s *Service) deliverToRecipient(ctx context.Context, job *Job, outcome RecipientOutcome) RecipientOutcome {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryInterval
	policy.MaxElapsedTime = 0

	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
		defer cancel()

		outcome.Attempts++
		deliveryID, err := s.notifier.Send(attemptCtx, outcome.Recipient, job.Message)
		if err != nil {
			if errors.Is(err, notify.ErrInvalidRecipient) {
				return backoff.Permanent(err)
			}
			return err
		}
		outcome.DeliveryID = deliveryID
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(s.maxAttempts-1)), ctx))
	if err != nil {
		outcome.Status = RecipientFailed
		outcome.Error = err.Error()
		s.logger.Warn().
			Str("job_id", job.ID).
			Str("recipient", outcome.Recipient.Address).
			Int("attempts", outcome.Attempts).
			Err(err).
			Msg("Recipient delivery failed")
		return outcome
	}

	outcome.Status = RecipientDelivered
	outcome.Error = ""
	return outcome
}

// transition moves the job to the next status, persists it and notifies
// history and subscribers.
func (s *Service) transition(ctx context.Context, job *Job, to JobStatus) error {
	from := job.Status
	job.Status = to
	job.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, job); err != nil {
		job.Status = from
		return fmt.Errorf("persist status %s: %w", to, err)
	}

	s.record(ctx, job, from)
	s.notifyUpdate(job)
	return nil
}

func (s *Service) record(ctx context.Context, job *Job, from JobStatus) {
	err := s.history.Record(ctx, history.Event{
		JobID:        job.ID,
		UserID:       job.UserID,
		TriggerKind:  string(job.Kind),
		FromStatus:   string(from),
		ToStatus:     string(job.Status),
		AttemptCount: job.AttemptCount,
		At:           s.now(),
	})
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to record job transition")
	}
}

func (s *Service) notifyUpdate(job *Job) {
	s.mu.Lock()
	subscribers := make([]func(*Job), len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.mu.Unlock()

	snapshot := job.Clone()
	for _, fn := range subscribers {
		fn(snapshot)
	}
}
