// Package jobs dispatches post-commit work to a fixed pool of goroutines.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueStopped is returned by Enqueue before Start or after Stop.
	ErrQueueStopped = errors.New("queue not running")
	// ErrQueueFull is returned when the buffer has no room; Enqueue never blocks the caller.
	ErrQueueFull = errors.New("queue full")
)

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Enqueued time.Time
}

// Handler processes a job. Failed jobs are logged and dropped.
type Handler func(context.Context, Job) error

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	// DrainTimeout bounds how long Stop keeps handling jobs that were already buffered.
	DrainTimeout time.Duration
	Logger       *zap.Logger
}

// Queue is an in-memory job dispatcher. Stop delivers what is buffered before returning.
type Queue struct {
	name         string
	handler      Handler
	workers      int
	drainTimeout time.Duration
	logger       *zap.Logger

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 64
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Queue{
		name:         name,
		handler:      handler,
		workers:      cfg.Workers,
		drainTimeout: cfg.DrainTimeout,
		logger:       cfg.Logger.With(zap.String("queue", name)),
		jobs:         make(chan Job, cfg.BufferSize),
	}
}

// Start launches the workers. Cancelling ctx does not stop them; call Stop so buffered jobs drain.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.started = true
	q.logger.Info("queue started", zap.Int("workers", q.workers))
}

// Stop refuses new jobs, handles the buffered ones within the drain timeout and waits for workers.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(q.drainTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		q.cancel()
		<-done
	}
	q.cancel()
	q.logger.Info("queue stopped")
}

// Enqueue hands a job to the workers without blocking.
func (q *Queue) Enqueue(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.started || q.stopped {
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueStopped)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueFull)
	}
}

// Pending reports how many jobs are buffered.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for job := range q.jobs {
		if q.ctx.Err() != nil {
			q.logger.Warn("job dropped after drain timeout", zap.String("job_id", job.ID), zap.String("type", job.Type))
			continue
		}
		if err := q.handler(q.ctx, job); err != nil {
			q.logger.Warn("job failed", zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Error(err))
		}
	}
}
