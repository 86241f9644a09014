package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"github.com/storyreel/api/internal/model"
)

// TaskTypeStage is the asynq task type carrying a model.Task
const TaskTypeStage = "video:stage"

// AsynqQueue enqueues stage tasks on Redis through asynq. Retries belong to
// the orchestrator, so asynq's own retry is disabled, and the task id
// deduplicates repeated dispatches of the same attempt.
type AsynqQueue struct {
	client    *asynq.Client
	queue     string
	retention time.Duration
}

func NewAsynqQueue(client *asynq.Client, queueName string) *AsynqQueue {
	return &AsynqQueue{client: client, queue: queueName, retention: time.Hour}
}

func (q *AsynqQueue) Enqueue(ctx context.Context, task model.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(q.queue),
		asynq.TaskID(task.ID),
		asynq.MaxRetry(0),
		asynq.Retention(q.retention),
	}
	if task.Delay > 0 {
		opts = append(opts, asynq.ProcessIn(task.Delay))
	}

	_, err = q.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeStage, payload), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		log.WithFields(log.Fields{"task_id": task.ID}).Debug("Task already enqueued")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// AsynqHandler adapts h to asynq. Undecodable payloads are never retried.
func AsynqHandler(h Handler) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var task model.Task
		if err := json.Unmarshal(t.Payload(), &task); err != nil {
			return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
		}
		h(ctx, task)
		return nil
	}
}

// NewAsynqServer builds the worker-side server consuming queueName
func NewAsynqServer(opt asynq.RedisClientOpt, concurrency int, queueName string, logger *log.Logger) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queueName: 1},
		Logger:      logger,
		LogLevel:    asynqLogLevel(logger.GetLevel()),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.WithFields(log.Fields{"type": task.Type()}).WithError(err).Error("Asynq task failed")
		}),
	})
}

// NewServeMux registers the stage handler on a new asynq mux
func NewServeMux(h Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeStage, AsynqHandler(h))
	return mux
}

func asynqLogLevel(l log.Level) asynq.LogLevel {
	switch {
	case l >= log.DebugLevel:
		return asynq.DebugLevel
	case l == log.InfoLevel:
		return asynq.InfoLevel
	case l == log.WarnLevel:
		return asynq.WarnLevel
	default:
		return asynq.ErrorLevel
	}
}
