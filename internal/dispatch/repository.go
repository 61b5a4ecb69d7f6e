package dispatch

import "context"

// ListOptions contains options for listing alert jobs.
type ListOptions struct {
	Limit int
}

// Repository defines the interface for alert job persistence.
type Repository interface {
	// Get retrieves a job by ID.
	Get(ctx context.Context, id string) (*Job, error)

	// ListByUser retrieves jobs for a user, newest first.
	ListByUser(ctx context.Context, userID string, opts ListOptions) ([]*Job, error)

	// Create persists a new job.
	Create(ctx context.Context, job *Job) error

	// Update persists job mutations (status, recipient outcomes, attempts).
	Update(ctx context.Context, job *Job) error
}
