package jobstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyreel/api/internal/model"
)

func newJob(id string) *model.Job {
	now := time.Now().UTC()
	return &model.Job{
		ID:        id,
		Status:    model.JobStatusQueued,
		Stages:    []model.StageState{{Name: model.StageScript, Status: model.StageStatusPending}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemoryStore_CreateGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newJob("a")))
	assert.ErrorIs(t, s.Create(ctx, newJob("a")), ErrExists)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newJob("a")))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	got.Status = model.JobStatusFailed
	got.Stages[0].Status = model.StageStatusFailed

	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, again.Status)
	assert.Equal(t, model.StageStatusPending, again.Stages[0].Status)
}

func TestMemoryStore_MutateErrorDiscardsEdit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newJob("a")))

	boom := errors.New("boom")
	_, err := s.Mutate(ctx, "a", func(job *model.Job) error {
		job.Progress = 50
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, _ := s.Get(ctx, "a")
	assert.Equal(t, 0, got.Progress)

	_, err = s.Mutate(ctx, "missing", func(*model.Job) error { return nil })
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMemoryStore_MutateIsSerialized(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newJob("a")))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Mutate(ctx, "a", func(job *model.Job) error {
				job.Progress++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, _ := s.Get(ctx, "a")
	assert.Equal(t, 100, got.Progress)
}

func TestMemoryStore_Prune(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	old := newJob("old")
	old.Status = model.JobStatusCompleted
	old.UpdatedAt = time.Now().Add(-48 * time.Hour)
	running := newJob("running")
	running.Status = model.JobStatusProcessing
	running.UpdatedAt = time.Now().Add(-48 * time.Hour)
	fresh := newJob("fresh")
	fresh.Status = model.JobStatusFailed

	for _, j := range []*model.Job{old, running, fresh} {
		require.NoError(t, s.Create(ctx, j))
	}

	pruned := s.Prune(time.Now().Add(-24 * time.Hour))
	require.Len(t, pruned, 1)
	assert.Equal(t, "old", pruned[0].ID)
	_, err := s.Get(ctx, "old")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.Get(ctx, "running")
	assert.NoError(t, err)
	_, err = s.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestMemoryStore_RunJanitor(t *testing.T) {
	s := NewMemoryStore()
	old := newJob("old")
	old.Status = model.JobStatusFailed
	old.UpdatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, s.Create(context.Background(), old))

	reclaimed := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.RunJanitor(ctx, time.Minute, 10*time.Millisecond, func(ctx context.Context, job *model.Job) error {
		reclaimed <- job.ID
		return nil
	})

	select {
	case id := <-reclaimed:
		assert.Equal(t, "old", id)
	case <-time.After(time.Second):
		t.Fatal("pruned job was never reclaimed")
	}
	_, err := s.Get(context.Background(), "old")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMemoryStore_RunJanitorKeepsGoingAfterReclaimError(t *testing.T) {
	s := NewMemoryStore()
	for _, id := range []string{"a", "b"} {
		j := newJob(id)
		j.Status = model.JobStatusCompleted
		j.UpdatedAt = time.Now().Add(-time.Hour)
		require.NoError(t, s.Create(context.Background(), j))
	}

	var mu sync.Mutex
	var seen []string
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.RunJanitor(ctx, time.Minute, 10*time.Millisecond, func(ctx context.Context, job *model.Job) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, job.ID)
		return errors.New("storage offline")
	})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, 10*time.Millisecond)
}
