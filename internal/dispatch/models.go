// Package dispatch provides the alert dispatch pipeline: it composes
// emergency messages and delivers them to trusted contacts with retry,
// offline queuing and delivery-status tracking.
package dispatch

import (
	"errors"
	"time"

	"github.com/aegis-safety/aegis/internal/location"
	"github.com/aegis-safety/aegis/internal/notify"
)

// Pipeline errors.
var (
	ErrJobNotFound  = errors.New("alert job not found")
	ErrNoRecipients = errors.New("alert requires at least one recipient")
)

// TriggerKind identifies what caused an alert.
type TriggerKind string

const (
	TriggerManual    TriggerKind = "manual"
	TriggerShake     TriggerKind = "shake"
	TriggerSilent    TriggerKind = "silent"
	TriggerZoneEnter TriggerKind = "zoneEnter"
	TriggerZoneExit  TriggerKind = "zoneExit"
)

// BypassesCooldown reports whether this trigger kind ignores the per-zone
// cooldown. User-initiated triggers always dispatch; only zone transitions
// are subject to storm suppression.
func (k TriggerKind) BypassesCooldown() bool {
	switch k {
	case TriggerManual, TriggerShake, TriggerSilent:
		return true
	default:
		return false
	}
}

// JobStatus is the lifecycle state of an alert job.
type JobStatus string

const (
	StatusPending       JobStatus = "pending"
	StatusQueuedOffline JobStatus = "queuedOffline"
	StatusInFlight      JobStatus = "inFlight"
	StatusDelivered     JobStatus = "delivered"
	StatusFailed        JobStatus = "failed"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// RecipientStatus is the delivery state for a single recipient.
type RecipientStatus string

const (
	RecipientPending   RecipientStatus = "pending"
	RecipientDelivered RecipientStatus = "delivered"
	RecipientFailed    RecipientStatus = "failed"
)

// RecipientOutcome tracks delivery to one recipient of a job.
type RecipientOutcome struct {
	Recipient  notify.Recipient
	Status     RecipientStatus
	DeliveryID string
	Error      string
	Attempts   int
}

// Job is one emergency-notification dispatch across one or more recipients.
// Jobs are never deleted; terminal jobs are retained for history reporting.
type Job struct {
	ID           string
	UserID       string
	Kind         TriggerKind
	ZoneID       *string
	Position     location.Position
	Message      string
	Recipients   []RecipientOutcome
	Status       JobStatus
	AttemptCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	cpy := *j
	cpy.Recipients = make([]RecipientOutcome, len(j.Recipients))
	copy(cpy.Recipients, j.Recipients)
	if j.ZoneID != nil {
		z := *j.ZoneID
		cpy.ZoneID = &z
	}
	return &cpy
}

// TriggerResult is returned from Trigger.
type TriggerResult struct {
	JobID string

	// Coalesced is true when the trigger fell inside the per-zone cooldown
	// window and was folded into the previous job instead of creating a
	// new one.
	Coalesced bool
}
