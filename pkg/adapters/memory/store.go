package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/ports"
)

type job struct {
	record   ports.JobRecord
	progress []domain.ProgressSnapshot
	result   []byte
}

// Store implements ports.JobStore in memory.
// Safe for concurrent use.
type Store struct {
	jobs map[string]*job
	mu   sync.RWMutex
	now  func() time.Time
}

var _ ports.JobStore = (*Store)(nil)

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*job),
		now:  time.Now,
	}
}

// Create registers a running job, replacing any previous job with the same id.
func (s *Store) Create(ctx context.Context, id string) error {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id] = &job{record: ports.JobRecord{
		ID:        id,
		Status:    ports.StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	return nil
}

// AppendProgress records one progress report.
func (s *Store) AppendProgress(ctx context.Context, id string, p domain.ProgressSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	j.progress = append(j.progress, p)
	j.record.ProgressCount = len(j.progress)
	j.record.UpdatedAt = s.now()
	return nil
}

// ProgressSince returns a copy of the reports after offset.
func (s *Store) ProgressSince(ctx context.Context, id string, offset int) ([]domain.ProgressSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(j.progress) {
		return nil, nil
	}
	out := make([]domain.ProgressSnapshot, len(j.progress)-offset)
	copy(out, j.progress[offset:])
	return out, nil
}

// Complete stores the result and marks the job complete.
func (s *Store) Complete(ctx context.Context, id string, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	j.result = append([]byte(nil), result...)
	j.record.Status = ports.StatusComplete
	j.record.UpdatedAt = s.now()
	return nil
}

// Fail marks the job failed.
func (s *Store) Fail(ctx context.Context, id string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	j.record.Status = ports.StatusFailed
	j.record.ErrorMessage = message
	j.record.UpdatedAt = s.now()
	return nil
}

// Get returns a copy of the record.
func (s *Store) Get(ctx context.Context, id string) (*ports.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	rec := j.record
	return &rec, nil
}

// Result returns the stored result once the job is complete.
func (s *Store) Result(ctx context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if j.record.Status != ports.StatusComplete {
		return nil, domain.ErrResultNotReady
	}
	return append([]byte(nil), j.result...), nil
}

// Delete removes the job.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

// List returns the ids of stored jobs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	return ids, nil
}
