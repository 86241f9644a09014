package jobstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/storyreel/api/internal/model"
)

type memoryEntry struct {
	mu  sync.Mutex
	job *model.Job
}

// MemoryStore keeps job records in process memory
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*memoryEntry)}
}

func (s *MemoryStore) Create(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, job.ID)
	}
	s.jobs[job.ID] = &memoryEntry{job: job.Clone()}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Job, error) {
	e := s.entry(id)
	if e == nil {
		return nil, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), nil
}

func (s *MemoryStore) Mutate(ctx context.Context, id string, fn MutateFunc) (*model.Job, error) {
	e := s.entry(id)
	if e == nil {
		return nil, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	draft := e.job.Clone()
	if err := fn(draft); err != nil {
		return nil, err
	}
	e.job = draft
	return draft.Clone(), nil
}

// Prune removes terminal jobs last updated before the cutoff and returns
// them.
func (s *MemoryStore) Prune(before time.Time) []*model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []*model.Job
	for id, e := range s.jobs {
		e.mu.Lock()
		stale := e.job.Status.Terminal() && e.job.UpdatedAt.Before(before)
		job := e.job
		e.mu.Unlock()
		if stale {
			delete(s.jobs, id)
			removed = append(removed, job.Clone())
		}
	}
	return removed
}

// Reclaimer releases whatever a pruned job still holds
type Reclaimer func(ctx context.Context, job *model.Job) error

// RunJanitor prunes terminal jobs older than retention every interval until
// ctx is done. reclaim, if set, runs for every pruned job.
func (s *MemoryStore) RunJanitor(ctx context.Context, retention, interval time.Duration, reclaim Reclaimer) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			pruned := s.Prune(now.Add(-retention))
			if len(pruned) == 0 {
				continue
			}
			log.WithField("removed", len(pruned)).Debug("Pruned expired jobs")
			if reclaim == nil {
				continue
			}
			for _, job := range pruned {
				if err := reclaim(ctx, job); err != nil {
					log.WithError(err).WithField("job_id", job.ID).Warn("Failed to reclaim pruned job")
				}
			}
		}
	}
}

func (s *MemoryStore) entry(id string) *memoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[id]
}
