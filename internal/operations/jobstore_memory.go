package operations

import (
	"slices"
	"sync"

	"licensecore/pkg/contracts/domain"
)

// MemoryJobStore is an in-memory job store. Jobs go in and come out as
// copies so callers never share state with the store.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

// NewMemoryJobStore creates a new in-memory job store
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*domain.Job)}
}

func copyJob(job *domain.Job) *domain.Job {
	c := *job
	c.Payload = slices.Clone(job.Payload)
	if job.StartedAt != nil {
		t := *job.StartedAt
		c.StartedAt = &t
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// CreateJob stores a new job
func (s *MemoryJobStore) CreateJob(job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return NewInvalidStateError(job.ID, "job already exists")
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

// GetJob retrieves a job by ID
func (s *MemoryJobStore) GetJob(id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return nil, NewNotFoundError(id)
	}
	return copyJob(job), nil
}

// UpdateJob replaces an existing job
func (s *MemoryJobStore) UpdateJob(job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; !exists {
		return NewNotFoundError(job.ID)
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

// DeleteJob removes a job from the store
func (s *MemoryJobStore) DeleteJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; !exists {
		return NewNotFoundError(id)
	}
	delete(s.jobs, id)
	return nil
}

// ListJobs returns jobs matching the filter in dequeue order: highest
// priority first, then by sequence.
func (s *MemoryJobStore) ListJobs(filter JobFilter) []*domain.Job {
	s.mu.RLock()
	var result []*domain.Job
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.Type != "" && job.Type != filter.Type {
			continue
		}
		if !filter.Since.IsZero() && job.CreatedAt.Before(filter.Since) {
			continue
		}
		result = append(result, copyJob(job))
	}
	s.mu.RUnlock()

	slices.SortFunc(result, compareDequeueOrder)
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result
}

// NextPending returns the pending job that should run next, or nil
func (s *MemoryJobStore) NextPending() *domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var next *domain.Job
	for _, job := range s.jobs {
		if job.Status != domain.JobStatusPending {
			continue
		}
		if next == nil || compareDequeueOrder(job, next) < 0 {
			next = job
		}
	}
	if next == nil {
		return nil
	}
	return copyJob(next)
}

// Len returns the number of stored jobs
func (s *MemoryJobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func compareDequeueOrder(a, b *domain.Job) int {
	if a.Priority != b.Priority {
		if a.Priority > b.Priority {
			return -1
		}
		return 1
	}
	switch {
	case a.Sequence < b.Sequence:
		return -1
	case a.Sequence > b.Sequence:
		return 1
	}
	return 0
}
