package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/storyreel/api/internal/model"
)

var ErrClosed = errors.New("queue: closed")

// LocalQueue runs tasks on a bounded pool of goroutines in this process.
// Delayed tasks wait on a timer without holding a worker slot.
type LocalQueue struct {
	slots   chan struct{}
	handler Handler

	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewLocalQueue(concurrency int) *LocalQueue {
	if concurrency < 1 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalQueue{
		slots:  make(chan struct{}, concurrency),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start sets the handler. Tasks enqueued before Start are rejected.
func (q *LocalQueue) Start(h Handler) {
	q.mu.Lock()
	q.handler = h
	q.mu.Unlock()
}

func (q *LocalQueue) Enqueue(ctx context.Context, task model.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.handler == nil {
		return errors.New("queue: not started")
	}
	h := q.handler
	q.wg.Add(1)
	go q.run(h, task)
	return nil
}

func (q *LocalQueue) run(h Handler, task model.Task) {
	defer q.wg.Done()

	if task.Delay > 0 {
		timer := time.NewTimer(task.Delay)
		select {
		case <-timer.C:
		case <-q.ctx.Done():
			timer.Stop()
			log.WithFields(log.Fields{"task_id": task.ID}).Warn("Dropping delayed task on shutdown")
			return
		}
	}

	select {
	case q.slots <- struct{}{}:
	case <-q.ctx.Done():
		log.WithFields(log.Fields{"task_id": task.ID}).Warn("Dropping queued task on shutdown")
		return
	}
	defer func() { <-q.slots }()

	h(q.ctx, task)
}

// Close stops accepting tasks, drops tasks that have not started, cancels
// the context of running ones and waits for them to return.
func (q *LocalQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cancel()
	q.wg.Wait()
}
