package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/storyreel/api/internal/catalog"
	"github.com/storyreel/api/internal/jobstore"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/pipeline"
	"github.com/storyreel/api/internal/queue"
)

// errStale rejects an outcome that no longer matches the job record
var errStale = errors.New("stale outcome")

const maxErrorLen = 300

// Notifier is told about every committed job transition
type Notifier interface {
	Publish(ctx context.Context, snap *model.JobSnapshot)
}

// Options tune the orchestrator
type Options struct {
	Retry       pipeline.RetryPolicy
	MinDuration int
	MaxDuration int
	Notifier    Notifier
	Artifacts   ArtifactDeleter
}

// ArtifactDeleter removes stored artifacts
type ArtifactDeleter interface {
	Delete(ctx context.Context, ref model.ArtifactRef) error
}

// Orchestrator drives jobs through the stage graph. All job mutations go
// through the job store's Mutate, which serializes them per job.
type Orchestrator struct {
	jobs     jobstore.Store
	queue    queue.TaskQueue
	catalog  *catalog.Catalog
	retry    pipeline.RetryPolicy
	minDur   int
	maxDur   int
	notifier Notifier

	// artifacts, if set, receives blobs from discarded outcomes
	artifacts ArtifactDeleter
}

// NewOrchestrator creates a new pipeline orchestrator
func NewOrchestrator(jobs jobstore.Store, q queue.TaskQueue, cat *catalog.Catalog, opts Options) *Orchestrator {
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry = pipeline.DefaultRetryPolicy()
	}
	return &Orchestrator{
		jobs:      jobs,
		queue:     q,
		catalog:   cat,
		retry:     opts.Retry,
		minDur:    opts.MinDuration,
		maxDur:    opts.MaxDuration,
		notifier:  opts.Notifier,
		artifacts: opts.Artifacts,
	}
}

// Submit validates req, creates the job and dispatches the first stage.
// It returns the job as created, before any stage work has run.
func (o *Orchestrator) Submit(ctx context.Context, req model.JobRequest) (*model.JobSnapshot, error) {
	req, err := o.validate(req)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &model.Job{
		ID:        uuid.New().String(),
		Request:   req,
		Status:    model.JobStatusQueued,
		Stages:    pipeline.NewStageStates(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	created := job.Snapshot()

	var dispatch []model.Task
	committed, err := o.jobs.Mutate(ctx, job.ID, func(job *model.Job) error {
		dispatch = dispatch[:0]
		if job.Status != model.JobStatusQueued {
			return errStale
		}
		now := time.Now().UTC()
		job.Status = model.JobStatusProcessing
		job.StartedAt = &now
		job.UpdatedAt = now
		o.startReady(job, &dispatch)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start job: %w", err)
	}

	log.WithFields(log.Fields{"job_id": job.ID, "story": req.StoryID}).Info("Job submitted")
	o.publish(ctx, committed)
	o.enqueue(ctx, dispatch)
	return created, nil
}

func (o *Orchestrator) validate(req model.JobRequest) (model.JobRequest, error) {
	story, ok := o.catalog.Lookup(req.StoryID)
	if !ok {
		return req, &model.ValidationError{Field: "story", Message: fmt.Sprintf("unknown story %q", req.StoryID)}
	}
	req.StoryID = story.ID

	if o.minDur > 0 && req.DurationMinutes < o.minDur || o.maxDur > 0 && req.DurationMinutes > o.maxDur {
		return req, &model.ValidationError{
			Field:   "duration",
			Message: fmt.Sprintf("must be between %d and %d minutes", o.minDur, o.maxDur),
		}
	}
	if req.DurationMinutes < 1 {
		return req, &model.ValidationError{Field: "duration", Message: "must be positive"}
	}

	valid := false
	for _, r := range model.ValidResolutions {
		if req.Resolution == r {
			valid = true
			break
		}
	}
	if !valid {
		return req, &model.ValidationError{Field: "resolution", Message: fmt.Sprintf("must be one of %v", model.ValidResolutions)}
	}
	return req, nil
}

// GetStatus returns a read-only snapshot of the job
func (o *Orchestrator) GetStatus(ctx context.Context, jobID string) (*model.JobSnapshot, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return job.Snapshot(), nil
}

// GetArtifact returns the final video reference of a completed job
func (o *Orchestrator) GetArtifact(ctx context.Context, jobID string) (*model.ArtifactRef, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted || job.ResultRef == nil {
		return nil, fmt.Errorf("job %s is %s: %w", jobID, job.Status, model.ErrNotReady)
	}
	return job.ResultRef, nil
}

// HandleOutcome applies a task outcome to its job. Outcomes for terminal
// jobs, settled items or superseded attempts are discarded.
func (o *Orchestrator) HandleOutcome(ctx context.Context, out model.Outcome) error {
	committed, dispatch, err := o.record(ctx, out)
	if err != nil || committed == nil {
		return err
	}
	o.publish(ctx, committed)
	o.enqueue(ctx, dispatch)
	return nil
}

// record commits out and returns the job and the tasks it unlocked. A nil
// job means the outcome was stale; any artifact it carried is released.
func (o *Orchestrator) record(ctx context.Context, out model.Outcome) (*model.Job, []model.Task, error) {
	var dispatch []model.Task
	var referenced bool
	committed, err := o.jobs.Mutate(ctx, out.JobID, func(job *model.Job) error {
		dispatch, referenced = dispatch[:0], false
		err := o.apply(job, out, &dispatch)
		if errors.Is(err, errStale) && out.Result != nil {
			referenced = references(job, out.Result.Key)
		}
		return err
	})
	switch {
	case errors.Is(err, errStale):
		log.WithFields(log.Fields{"job_id": out.JobID, "task_id": out.TaskID}).Debug("Discarding stale outcome")
		if !referenced {
			o.release(ctx, out.Result)
		}
		return nil, nil, nil
	case errors.Is(err, model.ErrNotFound):
		o.release(ctx, out.Result)
		return nil, nil, err
	case err != nil:
		return nil, nil, err
	}
	return committed, dispatch, nil
}

func (o *Orchestrator) apply(job *model.Job, out model.Outcome, dispatch *[]model.Task) error {
	if job.Status.Terminal() {
		return errStale
	}
	st := job.Stage(out.Stage)
	if st == nil || st.Status != model.StageStatusRunning || out.Item < 0 || out.Item >= len(st.Items) {
		return errStale
	}
	it := &st.Items[out.Item]
	if it.Status != model.StageStatusRunning || it.Attempt != out.Attempt {
		return errStale
	}

	now := time.Now().UTC()
	job.UpdatedAt = now

	switch {
	case out.Err == nil && out.Stage == model.StageScript && out.SceneCount < 1:
		it.Status = model.StageStatusFailed
		it.LastError = "script has no scenes"
	case out.Err == nil:
		it.Status = model.StageStatusSucceeded
		it.Result = out.Result
		it.LastError = ""
		if out.Stage == model.StageScript {
			sizeFanOut(job, out.SceneCount)
		}
	case !model.IsPermanent(out.Err) && o.retry.CanRetry(it.Attempt):
		it.Attempt++
		it.LastError = out.Err.Error()
		st.RetryCount++
		task := o.newTask(job, st, out.Item)
		task.Delay = o.retry.Delay(it.Attempt)
		*dispatch = append(*dispatch, task)
		log.WithFields(log.Fields{
			"job_id":  job.ID,
			"stage":   st.Name,
			"item":    out.Item,
			"attempt": it.Attempt,
			"delay":   task.Delay,
		}).Info("Retrying stage task")
		return nil
	default:
		it.Status = model.StageStatusFailed
		it.LastError = out.Err.Error()
	}

	o.settle(job, st, now, dispatch)
	return nil
}

// settle decides a stage once none of its items is in flight. The lowest
// failed item index names the failure, whatever order items finished in.
func (o *Orchestrator) settle(job *model.Job, st *model.StageState, now time.Time, dispatch *[]model.Task) {
	if !pipeline.Settled(st) {
		job.Progress = max(job.Progress, pipeline.Progress(job.Stages))
		return
	}

	if failed := pipeline.FirstFailed(st); failed != nil {
		st.Status = model.StageStatusFailed
		st.LastError = failed.LastError
		job.Status = model.JobStatusFailed
		job.Error = stageFailure(st, failed)
		job.CompletedAt = &now
		log.WithFields(log.Fields{"job_id": job.ID, "stage": st.Name, "item": failed.Index}).
			Warnf("Job failed: %s", job.Error)
		return
	}

	st.Status = model.StageStatusSucceeded
	if st.Name == pipeline.FinalStage {
		job.Status = model.JobStatusCompleted
		job.ResultRef = st.Items[0].Result
		job.Progress = 100
		job.CompletedAt = &now
		log.WithFields(log.Fields{"job_id": job.ID}).Info("Job completed")
		return
	}

	o.startReady(job, dispatch)
	job.Progress = max(job.Progress, pipeline.Progress(job.Stages))
}

// startReady marks every stage whose dependencies succeeded as running and
// queues one task per item.
func (o *Orchestrator) startReady(job *model.Job, dispatch *[]model.Task) {
	for _, name := range pipeline.Ready(job) {
		st := job.Stage(name)
		st.Status = model.StageStatusRunning
		for i := range st.Items {
			st.Items[i].Status = model.StageStatusRunning
			st.Items[i].Attempt = 1
			*dispatch = append(*dispatch, o.newTask(job, st, i))
		}
	}
}

// sizeFanOut creates one pending item per scene in every fan-out stage
func sizeFanOut(job *model.Job, scenes int) {
	for i := range job.Stages {
		st := &job.Stages[i]
		if !st.FanOut {
			continue
		}
		st.Items = make([]model.ItemState, scenes)
		for k := range st.Items {
			st.Items[k] = model.ItemState{Index: k, Status: model.StageStatusPending}
		}
	}
}

func (o *Orchestrator) newTask(job *model.Job, st *model.StageState, item int) model.Task {
	attempt := st.Items[item].Attempt
	task := model.Task{
		ID:      model.TaskID(job.ID, st.Name, item, attempt),
		JobID:   job.ID,
		Stage:   st.Name,
		Item:    item,
		Attempt: attempt,
		Request: job.Request,
	}
	switch st.Name {
	case model.StageImages, model.StageNarration:
		task.Script = job.Stage(model.StageScript).Items[0].Result
	case model.StageComposition:
		task.Images = results(job.Stage(model.StageImages))
		task.Audio = results(job.Stage(model.StageNarration))
	}
	return task
}

func results(st *model.StageState) []model.ArtifactRef {
	refs := make([]model.ArtifactRef, 0, len(st.Items))
	for _, it := range st.Items {
		if it.Result != nil {
			refs = append(refs, *it.Result)
		}
	}
	return refs
}

// stageFailure is the user-facing job error: stage name plus cause
func stageFailure(st *model.StageState, item *model.ItemState) string {
	cause := item.LastError
	if len(cause) > maxErrorLen {
		n := maxErrorLen
		for n > 0 && !utf8.RuneStart(cause[n]) {
			n--
		}
		cause = cause[:n] + "..."
	}
	if st.FanOut {
		return fmt.Sprintf("%s stage failed: scene %d (item %d): %s", st.Name, item.Index+1, item.Index, cause)
	}
	return fmt.Sprintf("%s stage failed: %s", st.Name, cause)
}

func (o *Orchestrator) publish(ctx context.Context, job *model.Job) {
	if o.notifier == nil || job == nil {
		return
	}
	o.notifier.Publish(ctx, job.Snapshot())
}

// references reports whether the job record points at the artifact key
func references(job *model.Job, key string) bool {
	if job.ResultRef != nil && job.ResultRef.Key == key {
		return true
	}
	for _, st := range job.Stages {
		for _, it := range st.Items {
			if it.Result != nil && it.Result.Key == key {
				return true
			}
		}
	}
	return false
}

// release deletes an artifact no job record will ever reference
func (o *Orchestrator) release(ctx context.Context, ref *model.ArtifactRef) {
	if o.artifacts == nil || ref == nil {
		return
	}
	if err := o.artifacts.Delete(ctx, *ref); err != nil {
		log.WithError(err).WithField("key", ref.Key).Warn("Failed to delete discarded artifact")
	}
}

// enqueue hands tasks to the queue after their dispatch was committed. A
// task the queue refuses is recorded as a transient failure, and the retry
// that unlocks is dispatched once its backoff has elapsed.
func (o *Orchestrator) enqueue(ctx context.Context, tasks []model.Task) {
	for _, task := range tasks {
		err := o.queue.Enqueue(ctx, task)
		if err == nil {
			continue
		}
		logger := log.WithFields(log.Fields{"job_id": task.JobID, "task_id": task.ID})
		if errors.Is(err, queue.ErrClosed) {
			logger.Warn("Queue closed, task not dispatched")
			continue
		}
		logger.WithError(err).Error("Failed to enqueue task")

		out := model.OutcomeFor(task)
		out.Err = model.Transient(fmt.Errorf("dispatch failed: %w", err))
		committed, retries, err := o.record(ctx, out)
		if err != nil {
			logger.WithError(err).Error("Failed to record dispatch failure")
			continue
		}
		o.publish(ctx, committed)
		for _, retry := range retries {
			o.redispatch(ctx, retry)
		}
	}
}

// redispatch waits out the task's backoff before enqueueing it. The queue
// refused the previous attempt, so it cannot be trusted to hold the delay.
func (o *Orchestrator) redispatch(ctx context.Context, task model.Task) {
	ctx = context.WithoutCancel(ctx)
	delay := task.Delay
	task.Delay = 0
	time.AfterFunc(delay, func() {
		o.enqueue(ctx, []model.Task{task})
	})
}
