// Package queue dispatches stage tasks to workers. The orchestrator only
// sees the TaskQueue interface, so the same pipeline runs on an in-process
// pool or on asynq backed by Redis.
package queue

import (
	"context"

	"github.com/storyreel/api/internal/model"
)

// TaskQueue accepts tasks for asynchronous execution. Enqueue must not
// block on task execution.
type TaskQueue interface {
	Enqueue(ctx context.Context, task model.Task) error
}

// Handler executes one task. It owns reporting the outcome.
type Handler func(ctx context.Context, task model.Task)
