package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubRecorder publishes job state transitions to a Pub/Sub topic, where
// the archive worker persists them for reporting.
type PubSubRecorder struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	logger    zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub recorder.
type PubSubConfig struct {
	ProjectID string
	TopicName string
	Logger    zerolog.Logger
}

// NewPubSubRecorder creates a Pub/Sub-backed recorder.
func NewPubSubRecorder(ctx context.Context, cfg PubSubConfig) (*PubSubRecorder, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &PubSubRecorder{
		client:    client,
		publisher: client.Publisher(cfg.TopicName),
		logger:    cfg.Logger,
	}, nil
}

// Record publishes the event without waiting for the server acknowledgement.
// Publish failures are logged, never propagated: history is an audit trail,
// not part of the dispatch contract.
func (r *PubSubRecorder) Record(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		r.logger.Error().Err(err).Str("job_id", event.JobID).Msg("failed to marshal history event")
		return nil
	}

	result := r.publisher.Publish(ctx, &pubsub.Message{Data: data})

	go func() {
		ackCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := result.Get(ackCtx); err != nil {
			r.logger.Warn().
				Err(err).
				Str("job_id", event.JobID).
				Str("to_status", event.ToStatus).
				Msg("failed to publish history event")
		}
	}()

	return nil
}

// Close flushes pending publishes and closes the client.
func (r *PubSubRecorder) Close() error {
	r.publisher.Stop()
	return r.client.Close()
}

var _ Recorder = (*PubSubRecorder)(nil)
