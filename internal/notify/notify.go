// Package notify defines the notification channel used to deliver emergency
// messages to trusted contacts.
package notify

import (
	"context"
	"errors"
)

// Channel errors.
var (
	// ErrChannelUnavailable is returned when the notification gateway is
	// unreachable or its circuit breaker is open. Retryable.
	ErrChannelUnavailable = errors.New("notification channel unavailable")

	// ErrInvalidRecipient is returned for malformed recipient addresses.
	// Not retryable.
	ErrInvalidRecipient = errors.New("invalid recipient address")
)

// RecipientKind identifies how a recipient is addressed.
type RecipientKind string

const (
	RecipientSMS  RecipientKind = "sms"  // address is a phone number
	RecipientPush RecipientKind = "push" // address is a push token
)

// Recipient is a single delivery target for an alert.
type Recipient struct {
	Kind    RecipientKind
	Address string
	// Name is the contact's display name, included in logs and history.
	Name string
}

// Notifier delivers a message to a single recipient. Implementations must
// honor ctx cancellation and return within its deadline.
type Notifier interface {
	Send(ctx context.Context, recipient Recipient, message string) (deliveryID string, err error)
}
