package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyreel/api/internal/artifact"
	"github.com/storyreel/api/internal/catalog"
	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/jobstore"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/pipeline"
	"github.com/storyreel/api/internal/queue"
	"github.com/storyreel/api/internal/worker"
)

// flakyImages fails scene 2 permanently, or transiently on first try
type flakyImages struct {
	inner     client.ImageGenerator
	permanent bool
	calls     atomic.Int32
}

func (f *flakyImages) GenerateImage(ctx context.Context, scene model.Scene, res model.Resolution, short bool) ([]byte, error) {
	if scene.Number == 2 {
		n := f.calls.Add(1)
		if f.permanent {
			return nil, model.Permanent(errors.New("prompt rejected"))
		}
		if n == 1 {
			return nil, model.Transient(errors.New("rate limited"))
		}
	}
	return f.inner.GenerateImage(ctx, scene, res, short)
}

type stack struct {
	orch      *Orchestrator
	artifacts *artifact.MemoryStore
	notifier  *recordingNotifier
}

func newStack(t *testing.T, ex client.Executors) *stack {
	t.Helper()
	q := queue.NewLocalQueue(4)
	t.Cleanup(q.Close)

	artifacts := artifact.NewMemoryStore()
	n := &recordingNotifier{}
	orch := NewOrchestrator(jobstore.NewMemoryStore(), q, catalog.Default(), Options{
		Retry:       pipeline.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2},
		MinDuration: 10,
		MaxDuration: 25,
		Notifier:    n,
	})
	runner := worker.NewRunner(ex, artifacts, catalog.Default(), worker.Timeouts{Script: 5 * time.Second, Image: 5 * time.Second, Narration: 5 * time.Second, Composition: 5 * time.Second})
	q.Start(runner.Handler(orch))
	return &stack{orch: orch, artifacts: artifacts, notifier: n}
}

func (s *stack) wait(t *testing.T, id string) *model.JobSnapshot {
	t.Helper()
	var snap *model.JobSnapshot
	prev, regressed := 0, false
	require.Eventually(t, func() bool {
		cur, err := s.orch.GetStatus(context.Background(), id)
		if err != nil {
			return false
		}
		if cur.Progress < prev {
			regressed = true
		}
		prev = cur.Progress
		snap = cur
		return cur.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	assert.False(t, regressed, "progress went backwards")
	return snap
}

func TestIntegration_CreationStory(t *testing.T) {
	s := newStack(t, client.MockExecutors())
	ctx := context.Background()

	created, err := s.orch.Submit(ctx, creationRequest)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, created.Status)

	snap := s.wait(t, created.JobID)
	require.Equal(t, model.JobStatusCompleted, snap.Status, snap.Error)
	assert.Equal(t, 100, snap.Progress)

	ref, err := s.orch.GetArtifact(ctx, created.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.ArtifactVideo, ref.Kind)
	video, err := s.artifacts.Get(ctx, *ref)
	require.NoError(t, err)
	assert.Contains(t, string(video), "1920x1080:3-scenes")

	progress := s.notifier.progress(created.JobID)
	assert.IsNonDecreasing(t, progress)
	assert.Greater(t, len(progress), 3)
}

func TestIntegration_TransientImageFailureRecovers(t *testing.T) {
	ex := client.MockExecutors()
	flaky := &flakyImages{inner: ex.Image}
	ex.Image = flaky
	s := newStack(t, ex)

	created, err := s.orch.Submit(context.Background(), creationRequest)
	require.NoError(t, err)

	snap := s.wait(t, created.JobID)
	assert.Equal(t, model.JobStatusCompleted, snap.Status)
	assert.Equal(t, int32(2), flaky.calls.Load())
	assert.Equal(t, 1, snap.Stages[1].RetryCount)
}

func TestIntegration_PermanentImageFailure(t *testing.T) {
	ex := client.MockExecutors()
	flaky := &flakyImages{inner: ex.Image, permanent: true}
	ex.Image = flaky
	s := newStack(t, ex)

	created, err := s.orch.Submit(context.Background(), creationRequest)
	require.NoError(t, err)

	snap := s.wait(t, created.JobID)
	assert.Equal(t, model.JobStatusFailed, snap.Status)
	assert.Contains(t, snap.Error, "images stage failed: scene 2 (item 1)")
	assert.Equal(t, int32(1), flaky.calls.Load())
	assert.Nil(t, snap.ResultRef)
	assert.Equal(t, model.StageStatusPending, snap.Stages[3].Status)
}

func TestIntegration_ConcurrentJobs(t *testing.T) {
	s := newStack(t, client.MockExecutors())
	ctx := context.Background()

	var ids []string
	for _, story := range []string{"creation", "noahs-ark", "david-and-goliath", "jonah-and-the-whale"} {
		req := creationRequest
		req.StoryID = story
		snap, err := s.orch.Submit(ctx, req)
		require.NoError(t, err)
		ids = append(ids, snap.JobID)
	}
	for _, id := range ids {
		snap := s.wait(t, id)
		assert.Equal(t, model.JobStatusCompleted, snap.Status)
	}
}
