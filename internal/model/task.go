package model

import (
	"fmt"
	"time"
)

// Task is one dispatched unit of stage work. It carries everything the
// worker needs, so executing it never reads the job record.
type Task struct {
	ID      string        `json:"id"`
	JobID   string        `json:"jobId"`
	Stage   StageName     `json:"stage"`
	Item    int           `json:"item"`
	Attempt int           `json:"attempt"`
	Request JobRequest    `json:"request"`
	Script  *ArtifactRef  `json:"script,omitempty"`
	Images  []ArtifactRef `json:"images,omitempty"`
	Audio   []ArtifactRef `json:"audio,omitempty"`
	Delay   time.Duration `json:"delay,omitempty"`
}

// TaskID is unique per job, stage, item and attempt
func TaskID(jobID string, stage StageName, item, attempt int) string {
	return fmt.Sprintf("%s:%s:%d:%d", jobID, stage, item, attempt)
}

// Outcome is what a worker reports back after running a Task
type Outcome struct {
	TaskID  string
	JobID   string
	Stage   StageName
	Item    int
	Attempt int
	Result  *ArtifactRef
	// SceneCount is set by the script stage and sizes the fan-out stages
	SceneCount int
	Err        error
}

// OutcomeFor starts an Outcome addressed to the same work unit as t
func OutcomeFor(t Task) Outcome {
	return Outcome{TaskID: t.ID, JobID: t.JobID, Stage: t.Stage, Item: t.Item, Attempt: t.Attempt}
}
