// Package executor fans out accepted runs to a fixed worker pool.
package executor

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrQueueFull reports that the run queue has no spare capacity.
var ErrQueueFull = errors.New("run queue full")

// Task identifies one accepted run awaiting execution.
type Task struct {
	RunID          string
	MessageID      string
	ConversationID string
}

// Handler executes a single run.
type Handler interface {
	Process(ctx context.Context, task Task)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, task Task)

// Process calls f.
func (f HandlerFunc) Process(ctx context.Context, task Task) {
	f(ctx, task)
}

// Pool owns a bounded task queue and the workers that drain it.
type Pool struct {
	tasks   chan Task
	handler Handler
	workers int
	logger  *zap.Logger
}

// New constructs a Pool with the given worker count and queue capacity.
func New(handler Handler, workers, queueDepth int, logger *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 1 {
		queueDepth = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		tasks:   make(chan Task, queueDepth),
		handler: handler,
		workers: workers,
		logger:  logger,
	}
}

// Submit enqueues a task without blocking. A full queue is reported to the
// caller so the inbound hook can shed load instead of stalling.
func (p *Pool) Submit(task Task) error {
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until the context finishes and all
// in-flight runs have returned.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.work(ctx, id)
		}(i)
	}
	<-ctx.Done()
	wg.Wait()
}

func (p *Pool) work(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.tasks:
			p.logger.Debug("task dequeued",
				zap.Int("worker", id),
				zap.String("run_id", task.RunID),
				zap.String("message_id", task.MessageID),
			)
			p.handler.Process(ctx, task)
		}
	}
}
