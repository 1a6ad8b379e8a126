package jobs

import (
	"context"
	"fmt"
	"sync"
)

// Store persists job records. The Manager serializes all read-modify-write
// sequences, so implementations only need to be safe for concurrent calls.
type Store interface {
	Get(ctx context.Context, id string) (ImportJob, error)
	Put(ctx context.Context, job ImportJob) error
	List(ctx context.Context) ([]ImportJob, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps jobs in a map. State is lost when the process exits.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]ImportJob
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]ImportJob)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return ImportJob{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job.clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, job ImportJob) error {
	s.mu.Lock()
	s.jobs[job.ID] = job.clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ImportJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.clone())
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
	return nil
}
