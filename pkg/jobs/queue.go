package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job types dispatched by the scheduler.
const (
	TypeRosterSync   = "roster_sync"
	TypeRosterDigest = "roster_digest"
)

// Enqueue failures.
var (
	ErrNotStarted = errors.New("queue not started")
	ErrFull       = errors.New("queue full")
	// ErrPending is returned for a coalesced type that is already queued, running or waiting
	// to retry.
	ErrPending = errors.New("job of this type already pending")
)

const maxBackoff = 10 * time.Minute

// Job is one unit of background work.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// QueueConfig configures the worker pool.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	// RetryDelay is the first backoff step. It doubles per attempt up to ten minutes.
	RetryDelay time.Duration
	// NoRetry lists job types that are attempted exactly once.
	NoRetry []string
	// Coalesce lists job types that may have at most one pending instance.
	Coalesce []string
	Logger   *zap.Logger
}

// Queue runs background jobs on a fixed goroutine pool.
type Queue struct {
	name    string
	handler Handler
	cfg     QueueConfig
	logger  *zap.Logger

	noRetry  map[string]bool
	coalesce map[string]bool

	jobs   chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	pending map[string]bool
}

// NewQueue builds a queue that hands every job to handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		name:     name,
		handler:  handler,
		cfg:      cfg,
		logger:   logger.With(zap.String("queue", name)),
		noRetry:  toSet(cfg.NoRetry),
		coalesce: toSet(cfg.Coalesce),
		jobs:     make(chan Job, cfg.BufferSize),
		pending:  make(map[string]bool),
	}
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// Start launches the workers. Later calls are no-ops.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 1; i <= q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.work(i)
	}
	q.started = true
	q.logger.Info("queue started", zap.Int("workers", q.cfg.Workers))
}

// Stop cancels running jobs and waits for the workers to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Info("queue stopped")
}

// Enqueue adds a job without blocking. A full buffer returns ErrFull so a stalled worker
// cannot wedge the cron goroutine.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started {
		return fmt.Errorf("%s: %w", q.name, ErrNotStarted)
	}
	if q.coalesce[job.Type] && q.pending[job.Type] {
		return fmt.Errorf("%s %s: %w", q.name, job.Type, ErrPending)
	}
	if err := q.push(job); err != nil {
		return err
	}
	if q.coalesce[job.Type] {
		q.pending[job.Type] = true
	}
	return nil
}

// push must be called with mu held.
func (q *Queue) push(job Job) error {
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	select {
	case <-q.ctx.Done():
		return fmt.Errorf("%s stopped: %w", q.name, q.ctx.Err())
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("%s (%d buffered): %w", q.name, q.cfg.BufferSize, ErrFull)
	}
}

func (q *Queue) work(workerID int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.run(workerID, job)
		}
	}
}

func (q *Queue) run(workerID int, job Job) {
	start := time.Now()
	err := q.handler(q.ctx, job)
	fields := []zap.Field{zap.Int("worker", workerID), zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Duration("elapsed", time.Since(start))}
	if err == nil {
		q.logger.Debug("job done", fields...)
		q.release(job.Type)
		return
	}

	job.Attempt++
	fields = append(fields, zap.Int("attempt", job.Attempt), zap.Error(err))
	if q.noRetry[job.Type] || job.Attempt > q.cfg.MaxRetries {
		q.logger.Error("job failed", fields...)
		q.release(job.Type)
		return
	}
	delay := q.backoff(job.Attempt)
	q.logger.Warn("job failed, retrying", append(fields, zap.Duration("retry_in", delay))...)
	go q.retryAfter(job, delay)
}

func (q *Queue) backoff(attempt int) time.Duration {
	delay := q.cfg.RetryDelay
	for i := 1; i < attempt && delay < maxBackoff; i++ {
		delay *= 2
	}
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

// retryAfter keeps the coalescing slot held while waiting.
func (q *Queue) retryAfter(job Job, delay time.Duration) {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-q.ctx.Done():
		return
	case <-timer.C:
	}
	q.mu.Lock()
	err := q.push(job)
	q.mu.Unlock()
	if err != nil {
		q.logger.Error("failed to requeue job", zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Error(err))
		q.release(job.Type)
	}
}

func (q *Queue) release(jobType string) {
	q.mu.Lock()
	delete(q.pending, jobType)
	q.mu.Unlock()
}
