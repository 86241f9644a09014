package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyreel/api/internal/artifact"
	"github.com/storyreel/api/internal/catalog"
	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/model"
)

var request = model.JobRequest{StoryID: "creation", DurationMinutes: 15, Resolution: model.ResolutionHD}

type slowImages struct{}

func (slowImages) GenerateImage(ctx context.Context, scene model.Scene, res model.Resolution, short bool) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type failingNarration struct{ err error }

func (f failingNarration) GenerateNarration(ctx context.Context, scene model.Scene) ([]byte, error) {
	return nil, f.err
}

type captureSink struct{ outcomes []model.Outcome }

func (s *captureSink) HandleOutcome(ctx context.Context, o model.Outcome) error {
	s.outcomes = append(s.outcomes, o)
	return nil
}

func newRunner(t *testing.T, ex client.Executors) (*Runner, *artifact.MemoryStore) {
	t.Helper()
	store := artifact.NewMemoryStore()
	return NewRunner(ex, store, catalog.Default(), Timeouts{
		Script:      time.Second,
		Image:       50 * time.Millisecond,
		Narration:   time.Second,
		Composition: time.Second,
	}), store
}

func scriptTask() model.Task {
	return model.Task{ID: model.TaskID("job-1", model.StageScript, 0, 1), JobID: "job-1", Stage: model.StageScript, Attempt: 1, Request: request}
}

func TestRunner_FullPipeline(t *testing.T) {
	r, store := newRunner(t, client.MockExecutors())
	ctx := context.Background()

	out := r.Run(ctx, scriptTask())
	require.NoError(t, out.Err)
	assert.Equal(t, 3, out.SceneCount)
	require.NotNil(t, out.Result)
	assert.Equal(t, model.ArtifactText, out.Result.Kind)

	raw, err := store.Get(ctx, *out.Result)
	require.NoError(t, err)
	var script model.Script
	require.NoError(t, json.Unmarshal(raw, &script))
	assert.Len(t, script.Scenes, 3)

	var images, audio []model.ArtifactRef
	for i := 0; i < out.SceneCount; i++ {
		img := r.Run(ctx, model.Task{JobID: "job-1", Stage: model.StageImages, Item: i, Attempt: 1, Request: request, Script: out.Result})
		require.NoError(t, img.Err)
		assert.Equal(t, model.ArtifactImage, img.Result.Kind)
		images = append(images, *img.Result)

		nar := r.Run(ctx, model.Task{JobID: "job-1", Stage: model.StageNarration, Item: i, Attempt: 1, Request: request, Script: out.Result})
		require.NoError(t, nar.Err)
		audio = append(audio, *nar.Result)
	}

	video := r.Run(ctx, model.Task{JobID: "job-1", Stage: model.StageComposition, Attempt: 1, Request: request, Images: images, Audio: audio})
	require.NoError(t, video.Err)
	assert.Equal(t, model.ArtifactVideo, video.Result.Kind)

	data, err := store.Get(ctx, *video.Result)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1280x720:3-scenes")
}

func TestRunner_UnknownStoryIsPermanent(t *testing.T) {
	r, _ := newRunner(t, client.MockExecutors())
	task := scriptTask()
	task.Request.StoryID = "atlantis"

	out := r.Run(context.Background(), task)
	require.Error(t, out.Err)
	assert.True(t, model.IsPermanent(out.Err))
}

func TestRunner_TimeoutIsTransient(t *testing.T) {
	ex := client.MockExecutors()
	ex.Image = slowImages{}
	r, _ := newRunner(t, ex)
	ctx := context.Background()

	script := r.Run(ctx, scriptTask())
	require.NoError(t, script.Err)

	out := r.Run(ctx, model.Task{JobID: "job-1", Stage: model.StageImages, Attempt: 1, Request: request, Script: script.Result})
	require.Error(t, out.Err)
	assert.False(t, model.IsPermanent(out.Err))
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
	assert.Contains(t, out.Err.Error(), "timed out")
}

func TestRunner_ExecutorClassificationIsKept(t *testing.T) {
	ex := client.MockExecutors()
	ex.Narration = failingNarration{err: model.Permanent(errors.New("voice unavailable"))}
	r, _ := newRunner(t, ex)
	ctx := context.Background()

	script := r.Run(ctx, scriptTask())
	require.NoError(t, script.Err)

	out := r.Run(ctx, model.Task{JobID: "job-1", Stage: model.StageNarration, Item: 1, Attempt: 2, Request: request, Script: script.Result})
	assert.True(t, model.IsPermanent(out.Err))
	assert.Equal(t, 1, out.Item)
	assert.Equal(t, 2, out.Attempt)
}

func TestRunner_MissingInputs(t *testing.T) {
	r, _ := newRunner(t, client.MockExecutors())
	ctx := context.Background()

	out := r.Run(ctx, model.Task{JobID: "job-1", Stage: model.StageImages, Request: request})
	assert.True(t, model.IsPermanent(out.Err))

	gone := model.ArtifactRef{Store: "memory", Key: "jobs/job-1/script/000-gone.json"}
	out = r.Run(ctx, model.Task{JobID: "job-1", Stage: model.StageImages, Request: request, Script: &gone})
	assert.True(t, model.IsPermanent(out.Err))
	assert.ErrorIs(t, out.Err, model.ErrNotFound)

	script := r.Run(ctx, scriptTask())
	out = r.Run(ctx, model.Task{JobID: "job-1", Stage: model.StageImages, Item: 7, Request: request, Script: script.Result})
	assert.True(t, model.IsPermanent(out.Err))

	out = r.Run(ctx, model.Task{JobID: "job-1", Stage: model.StageComposition, Request: request, Images: []model.ArtifactRef{gone}})
	assert.True(t, model.IsPermanent(out.Err))
}

func TestHandler_ReportsOutcome(t *testing.T) {
	r, _ := newRunner(t, client.MockExecutors())
	sink := &captureSink{}

	r.Handler(sink)(context.Background(), scriptTask())
	require.Len(t, sink.outcomes, 1)
	assert.NoError(t, sink.outcomes[0].Err)
	assert.Equal(t, scriptTask().ID, sink.outcomes[0].TaskID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Handler(sink)(ctx, scriptTask())
	assert.Len(t, sink.outcomes, 1, "interrupted tasks are not reported")
}
