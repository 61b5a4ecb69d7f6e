package dispatch

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewInMemoryRepository creates a new in-memory job repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		jobs: make(map[string]*Job),
	}
}

// Get retrieves a job by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j.Clone(), nil
}

// ListByUser retrieves jobs for a user, newest first.
func (r *InMemoryRepository) ListByUser(_ context.Context, userID string, opts ListOptions) ([]*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var jobs []*Job
	for _, j := range r.jobs {
		if j.UserID == userID {
			jobs = append(jobs, j.Clone())
		}
	}

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}

	return jobs, nil
}

// Create persists a new job.
func (r *InMemoryRepository) Create(_ context.Context, j *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs[j.ID] = j.Clone()
	return nil
}

// Update persists job mutations.
func (r *InMemoryRepository) Update(_ context.Context, j *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[j.ID]; !ok {
		return ErrJobNotFound
	}
	r.jobs[j.ID] = j.Clone()
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
