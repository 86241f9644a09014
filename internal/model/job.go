package model

import "time"

// JobRequest is the validated, immutable input of a generation job
type JobRequest struct {
	StoryID         string     `json:"story"`
	DurationMinutes int        `json:"duration"`
	Resolution      Resolution `json:"resolution"`
	ShortForm       bool       `json:"tiktok"`
}

// ArtifactRef locates a stored blob. It never carries the bytes themselves.
type ArtifactRef struct {
	Store string       `json:"store"`
	Key   string       `json:"key"`
	Kind  ArtifactKind `json:"kind"`
	Size  int64        `json:"size"`
}

// ItemState tracks one unit of work inside a stage. Stages that do not fan
// out carry exactly one item.
type ItemState struct {
	Index     int          `json:"index"`
	Status    StageStatus  `json:"status"`
	Attempt   int          `json:"attempt"`
	Result    *ArtifactRef `json:"result,omitempty"`
	LastError string       `json:"lastError,omitempty"`
}

// StageState is the per-stage bookkeeping of a job
type StageState struct {
	Name       StageName   `json:"name"`
	Status     StageStatus `json:"status"`
	DependsOn  []StageName `json:"dependsOn,omitempty"`
	FanOut     bool        `json:"fanOut"`
	Items      []ItemState `json:"items"`
	RetryCount int         `json:"retryCount"`
	LastError  string      `json:"lastError,omitempty"`
}

// Job is the durable record of one generation request
type Job struct {
	ID          string       `json:"id"`
	Request     JobRequest   `json:"request"`
	Status      JobStatus    `json:"status"`
	Progress    int          `json:"progress"`
	Stages      []StageState `json:"stages"`
	Error       string       `json:"error,omitempty"`
	ResultRef   *ArtifactRef `json:"resultRef,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	StartedAt   *time.Time   `json:"startedAt,omitempty"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
}

// Stage returns a pointer into the job's stage list, or nil.
func (j *Job) Stage(name StageName) *StageState {
	for i := range j.Stages {
		if j.Stages[i].Name == name {
			return &j.Stages[i]
		}
	}
	return nil
}

// Clone returns a deep copy that shares no mutable memory with j.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.ResultRef = cloneRef(j.ResultRef)
	out.StartedAt = cloneTime(j.StartedAt)
	out.CompletedAt = cloneTime(j.CompletedAt)
	out.Stages = make([]StageState, len(j.Stages))
	for i, s := range j.Stages {
		s.DependsOn = append([]StageName(nil), s.DependsOn...)
		items := make([]ItemState, len(s.Items))
		for k, it := range s.Items {
			it.Result = cloneRef(it.Result)
			items[k] = it
		}
		s.Items = items
		out.Stages[i] = s
	}
	return &out
}

func cloneRef(r *ArtifactRef) *ArtifactRef {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// JobSnapshot is the read-only view returned to pollers
type JobSnapshot struct {
	JobID       string       `json:"jobId"`
	Story       string       `json:"story"`
	Status      JobStatus    `json:"status"`
	Progress    int          `json:"progress"`
	Stages      []StageView  `json:"stages"`
	Error       string       `json:"error,omitempty"`
	ResultRef   *ArtifactRef `json:"resultRef,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	StartedAt   *time.Time   `json:"startedAt,omitempty"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
}

// StageView summarizes a stage for pollers without exposing item results
type StageView struct {
	Name       StageName   `json:"name"`
	Status     StageStatus `json:"status"`
	Completed  int         `json:"completed"`
	Total      int         `json:"total"`
	RetryCount int         `json:"retryCount"`
}

// Snapshot builds an immutable copy of the job's observable state.
func (j *Job) Snapshot() *JobSnapshot {
	c := j.Clone()
	snap := &JobSnapshot{
		JobID:       c.ID,
		Story:       c.Request.StoryID,
		Status:      c.Status,
		Progress:    c.Progress,
		Error:       c.Error,
		ResultRef:   c.ResultRef,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
		StartedAt:   c.StartedAt,
		CompletedAt: c.CompletedAt,
		Stages:      make([]StageView, 0, len(c.Stages)),
	}
	for _, s := range c.Stages {
		done := 0
		for _, it := range s.Items {
			if it.Status == StageStatusSucceeded {
				done++
			}
		}
		snap.Stages = append(snap.Stages, StageView{
			Name:       s.Name,
			Status:     s.Status,
			Completed:  done,
			Total:      len(s.Items),
			RetryCount: s.RetryCount,
		})
	}
	return snap
}

// Scene is one narrative unit of a generated script
type Scene struct {
	Number           int    `json:"scene_number"`
	DurationSec      int    `json:"duration"`
	Narration        string `json:"narration"`
	ImageDescription string `json:"image_description"`
}

// Script is the stored output of the script stage
type Script struct {
	Title  string  `json:"title"`
	Scenes []Scene `json:"scenes"`
}
