// Package jobstore persists job records behind a Create/Get/Mutate
// capability. Every mutation of one job is serialized; different jobs never
// contend with each other.
package jobstore

import (
	"context"
	"errors"

	"github.com/storyreel/api/internal/model"
)

var ErrExists = errors.New("jobstore: job already exists")

// MutateFunc edits a private copy of a job. Returning an error discards the
// edit and is passed back to the caller of Mutate unchanged.
type MutateFunc func(job *model.Job) error

// Store is the job record capability used by the orchestrator
type Store interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	// Mutate applies fn under the job's exclusive lock and returns a copy
	// of the committed record. fn may run more than once when a
	// distributed backend detects a concurrent writer.
	Mutate(ctx context.Context, id string, fn MutateFunc) (*model.Job, error)
}
