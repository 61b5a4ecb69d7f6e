package notify

import (
	"context"
	"fmt"
	"sync"
)

// FakeNotifier is a scriptable Notifier for tests and local development.
// Outcomes can be set per recipient address; unscripted addresses succeed.
type FakeNotifier struct {
	mu       sync.Mutex
	failures map[string]error
	sent     []SentMessage
	seq      int
}

// SentMessage records a delivery attempt made through the fake.
type SentMessage struct {
	Recipient Recipient
	Message   string
}

// NewFakeNotifier creates a fake notifier where every send succeeds.
func NewFakeNotifier() *FakeNotifier {
	return &FakeNotifier{failures: make(map[string]error)}
}

// FailAddress scripts err for every send to the given address.
// Passing nil clears the script.
func (f *FakeNotifier) FailAddress(address string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, address)
		return
	}
	f.failures[address] = err
}

// Send records the attempt and returns the scripted outcome.
func (f *FakeNotifier) Send(ctx context.Context, recipient Recipient, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, SentMessage{Recipient: recipient, Message: message})
	if err, ok := f.failures[recipient.Address]; ok {
		return "", err
	}

	f.seq++
	return fmt.Sprintf("dlv_%06d", f.seq), nil
}

// Sent returns a copy of all recorded delivery attempts.
func (f *FakeNotifier) Sent() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

// SentTo returns the number of attempts made to the given address.
func (f *FakeNotifier) SentTo(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.sent {
		if m.Recipient.Address == address {
			n++
		}
	}
	return n
}

var _ Notifier = (*FakeNotifier)(nil)
