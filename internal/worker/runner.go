package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/storyreel/api/internal/artifact"
	"github.com/storyreel/api/internal/catalog"
	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/queue"
)

// OutcomeHandler receives the result of every executed task
type OutcomeHandler interface {
	HandleOutcome(ctx context.Context, o model.Outcome) error
}

// Timeouts bounds each external call by stage
type Timeouts struct {
	Script      time.Duration
	Image       time.Duration
	Narration   time.Duration
	Composition time.Duration
}

// TimeoutsFromConfig converts the configured seconds
func TimeoutsFromConfig(cfg config.StageTimeouts) Timeouts {
	return Timeouts{
		Script:      time.Duration(cfg.Script) * time.Second,
		Image:       time.Duration(cfg.Image) * time.Second,
		Narration:   time.Duration(cfg.Narration) * time.Second,
		Composition: time.Duration(cfg.Composition) * time.Second,
	}
}

func (t Timeouts) forStage(stage model.StageName) time.Duration {
	switch stage {
	case model.StageScript:
		return t.Script
	case model.StageImages:
		return t.Image
	case model.StageNarration:
		return t.Narration
	case model.StageComposition:
		return t.Composition
	}
	return 0
}

// Runner executes stage tasks. It never reads or writes job records: inputs
// come from the task and the artifact store, the result goes back as an
// Outcome.
type Runner struct {
	executors client.Executors
	artifacts artifact.Store
	catalog   *catalog.Catalog
	timeouts  Timeouts
}

// NewRunner creates a new stage task runner
func NewRunner(executors client.Executors, artifacts artifact.Store, cat *catalog.Catalog, timeouts Timeouts) *Runner {
	return &Runner{
		executors: executors,
		artifacts: artifacts,
		catalog:   cat,
		timeouts:  timeouts,
	}
}

// Handler runs each task and reports its outcome to sink. Tasks interrupted
// by shutdown are not reported.
func (r *Runner) Handler(sink OutcomeHandler) queue.Handler {
	return func(ctx context.Context, task model.Task) {
		outcome := r.Run(ctx, task)
		if ctx.Err() != nil {
			log.WithFields(taskFields(task)).Warn("Task interrupted by shutdown, outcome not reported")
			return
		}
		if err := sink.HandleOutcome(ctx, outcome); err != nil {
			log.WithFields(taskFields(task)).WithError(err).Error("Failed to record task outcome")
		}
	}
}

// Run executes one task and always returns an Outcome
func (r *Runner) Run(ctx context.Context, task model.Task) model.Outcome {
	logger := log.WithFields(taskFields(task))
	logger.Info("Starting stage task")
	started := time.Now()

	out := model.OutcomeFor(task)
	var err error
	switch task.Stage {
	case model.StageScript:
		out.Result, out.SceneCount, err = r.runScript(ctx, task)
	case model.StageImages:
		out.Result, err = r.runImage(ctx, task)
	case model.StageNarration:
		out.Result, err = r.runNarration(ctx, task)
	case model.StageComposition:
		out.Result, err = r.runComposition(ctx, task)
	default:
		err = model.Permanent(fmt.Errorf("unknown stage %q", task.Stage))
	}

	elapsed := time.Since(started).Round(time.Millisecond)
	if err != nil {
		out.Err = err
		logger.WithFields(log.Fields{
			"elapsed": elapsed,
			"failure": model.ClassifyFailure(err),
		}).WithError(err).Warn("Stage task failed")
		return out
	}
	logger.WithFields(log.Fields{"elapsed": elapsed, "key": out.Result.Key, "size": out.Result.Size}).Info("Stage task succeeded")
	return out
}

// execute runs fn under the stage timeout. A timeout is transient.
func (r *Runner) execute(ctx context.Context, stage model.StageName, fn func(ctx context.Context) error) error {
	if d := r.timeouts.forStage(stage); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return model.Transient(fmt.Errorf("%s timed out after %s: %w", stage, r.timeouts.forStage(stage), err))
	}
	return err
}

func (r *Runner) runScript(ctx context.Context, task model.Task) (*model.ArtifactRef, int, error) {
	story, ok := r.catalog.Lookup(task.Request.StoryID)
	if !ok {
		return nil, 0, model.Permanent(fmt.Errorf("unknown story %q", task.Request.StoryID))
	}

	var script *model.Script
	err := r.execute(ctx, task.Stage, func(ctx context.Context) error {
		var err error
		script, err = r.executors.Script.GenerateScript(ctx, story, task.Request.DurationMinutes, task.Request.ShortForm)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	if len(script.Scenes) == 0 {
		return nil, 0, model.Permanent(errors.New("script has no scenes"))
	}

	data, err := json.Marshal(script)
	if err != nil {
		return nil, 0, model.Permanent(fmt.Errorf("failed to marshal script: %w", err))
	}
	ref, err := r.put(ctx, task, data, model.ArtifactText)
	if err != nil {
		return nil, 0, err
	}
	return ref, len(script.Scenes), nil
}

func (r *Runner) runImage(ctx context.Context, task model.Task) (*model.ArtifactRef, error) {
	scene, err := r.scene(ctx, task)
	if err != nil {
		return nil, err
	}
	var img []byte
	err = r.execute(ctx, task.Stage, func(ctx context.Context) error {
		var err error
		img, err = r.executors.Image.GenerateImage(ctx, scene, task.Request.Resolution, task.Request.ShortForm)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.put(ctx, task, img, model.ArtifactImage)
}

func (r *Runner) runNarration(ctx context.Context, task model.Task) (*model.ArtifactRef, error) {
	scene, err := r.scene(ctx, task)
	if err != nil {
		return nil, err
	}
	var audio []byte
	err = r.execute(ctx, task.Stage, func(ctx context.Context) error {
		var err error
		audio, err = r.executors.Narration.GenerateNarration(ctx, scene)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.put(ctx, task, audio, model.ArtifactAudio)
}

func (r *Runner) runComposition(ctx context.Context, task model.Task) (*model.ArtifactRef, error) {
	if len(task.Images) == 0 || len(task.Images) != len(task.Audio) {
		return nil, model.Permanent(fmt.Errorf("composition needs matching inputs, got %d images and %d tracks", len(task.Images), len(task.Audio)))
	}

	in := client.CompositionInput{ShortForm: task.Request.ShortForm}
	in.Width, in.Height = task.Request.Resolution.FrameSize(task.Request.ShortForm)
	for i := range task.Images {
		img, err := r.load(ctx, task.Images[i])
		if err != nil {
			return nil, err
		}
		audio, err := r.load(ctx, task.Audio[i])
		if err != nil {
			return nil, err
		}
		in.Images = append(in.Images, img)
		in.Audio = append(in.Audio, audio)
	}

	var video []byte
	err := r.execute(ctx, task.Stage, func(ctx context.Context) error {
		var err error
		video, err = r.executors.Composer.Compose(ctx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.put(ctx, task, video, model.ArtifactVideo)
}

// scene loads the script and picks the task's scene
func (r *Runner) scene(ctx context.Context, task model.Task) (model.Scene, error) {
	if task.Script == nil {
		return model.Scene{}, model.Permanent(errors.New("task has no script reference"))
	}
	data, err := r.load(ctx, *task.Script)
	if err != nil {
		return model.Scene{}, err
	}
	var script model.Script
	if err := json.Unmarshal(data, &script); err != nil {
		return model.Scene{}, model.Permanent(fmt.Errorf("failed to decode script: %w", err))
	}
	if task.Item < 0 || task.Item >= len(script.Scenes) {
		return model.Scene{}, model.Permanent(fmt.Errorf("script has %d scenes, no scene for item %d", len(script.Scenes), task.Item))
	}
	return script.Scenes[task.Item], nil
}

// load reads an input artifact. A missing input will not appear on retry.
func (r *Runner) load(ctx context.Context, ref model.ArtifactRef) ([]byte, error) {
	data, err := r.artifacts.Get(ctx, ref)
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.Permanent(fmt.Errorf("input artifact missing: %w", err))
	}
	return data, err
}

func (r *Runner) put(ctx context.Context, task model.Task, data []byte, kind model.ArtifactKind) (*model.ArtifactRef, error) {
	ref, err := r.artifacts.Put(ctx, artifact.Key{JobID: task.JobID, Stage: task.Stage, Item: task.Item}, data, kind)
	if err != nil {
		return nil, model.Transient(fmt.Errorf("failed to store %s artifact: %w", kind, err))
	}
	return &ref, nil
}

func taskFields(task model.Task) log.Fields {
	return log.Fields{
		"job_id":  task.JobID,
		"stage":   task.Stage,
		"item":    task.Item,
		"attempt": task.Attempt,
	}
}
