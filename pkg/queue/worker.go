package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Worker pulls ready jobs from its attached queues and runs their
// handlers. One worker process typically serves several queues.
type Worker struct {
	id     uuid.UUID
	queues []*Queue
	sem    chan struct{}
	wg     sync.WaitGroup
	mu     sync.RWMutex
	stopMu sync.Mutex // serializes stop state and WaitGroup adds

	pullInterval time.Duration
	lease        time.Duration
	logger       *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

type workerOptions struct {
	pullInterval   time.Duration
	lease          time.Duration
	maxConcurrency int
	logger         *slog.Logger
}

// WorkerOption configures a Worker at construction time.
type WorkerOption func(*workerOptions)

// WithPullInterval sets how often the worker polls its queues.
func WithPullInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pullInterval = d
		}
	}
}

// WithLease sets the claim lease and handler execution timeout.
func WithLease(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.lease = d
		}
	}
}

// WithMaxConcurrency caps how many jobs run at once.
func WithMaxConcurrency(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.maxConcurrency = n
		}
	}
}

// WithWorkerLogger sets the worker's logger.
func WithWorkerLogger(log *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if log != nil {
			o.logger = log
		}
	}
}

// NewWorker creates a worker serving the given queues. At least one
// queue must be attached before Start.
func NewWorker(opts ...WorkerOption) *Worker {
	options := &workerOptions{
		pullInterval:   time.Second,
		lease:          5 * time.Minute,
		maxConcurrency: 10,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Worker{
		id:           uuid.New(),
		sem:          make(chan struct{}, options.maxConcurrency),
		pullInterval: options.pullInterval,
		lease:        options.lease,
		logger:       options.logger,
	}
}

// Attach adds a queue to the worker's pull rotation.
func (w *Worker) Attach(q *Queue) error {
	if q == nil {
		return ErrQueueNameEmpty
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queues = append(w.queues, q)
	return nil
}

// Start begins pulling jobs in the background. The attached queues are
// started first, so recurring definitions are live before processing.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return fmt.Errorf("queue: worker already started")
	}
	if len(w.queues) == 0 {
		w.mu.Unlock()
		return ErrNoHandlers
	}
	queues := w.queues
	w.ctx, w.cancel = context.WithCancel(context.WithoutCancel(ctx))
	w.mu.Unlock()

	for _, q := range queues {
		if err := q.Start(ctx); err != nil {
			return err
		}
	}

	w.stopping.Store(false)
	go w.run()

	w.logger.InfoContext(ctx, "worker started",
		slog.String("worker_id", w.id.String()),
		slog.Int("queues", len(queues)),
		slog.Int("max_concurrency", cap(w.sem)))
	return nil
}

// Stop shuts the worker down, waiting for in-flight jobs to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return fmt.Errorf("queue: worker not started")
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()

	w.logger.Info("worker stopping, waiting for active jobs",
		slog.String("worker_id", w.id.String()))
	w.wg.Wait()
	w.logger.Info("worker stopped", slog.String("worker_id", w.id.String()))
	return nil
}

// Run adapts the worker to errgroup.Go: it starts the worker, blocks on
// ctx and stops gracefully.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) run() {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			select {
			case w.sem <- struct{}{}:
				w.stopMu.Lock()
				if w.stopping.Load() {
					w.stopMu.Unlock()
					<-w.sem
					return
				}
				w.wg.Add(1)
				w.stopMu.Unlock()

				go func() {
					defer w.wg.Done()
					defer func() { <-w.sem }()

					if err := w.pullAndProcess(); err != nil && !errors.Is(err, ErrHandlerNotFound) {
						w.logger.Error("job processing failed",
							slog.String("worker_id", w.id.String()),
							slog.String("error", err.Error()))
					}
				}()
			default:
				// All slots busy, skip this tick.
			}
		}
	}
}

// pullAndProcess claims at most one job from the first attached queue
// that has work ready.
func (w *Worker) pullAndProcess() error {
	w.mu.RLock()
	queues := w.queues
	w.mu.RUnlock()

	for _, q := range queues {
		job, err := q.broker.Claim(w.ctx, q.name, w.id, w.lease)
		if err != nil {
			if errors.Is(err, ErrNoJobReady) {
				continue
			}
			return fmt.Errorf("queue: claim from %q: %w", q.name, err)
		}

		w.logger.Debug("claimed job",
			slog.String("worker_id", w.id.String()),
			slog.String("queue", q.name),
			slog.String("job_id", job.ID.String()),
			slog.String("job_type", job.Type))

		return w.processJob(q, job)
	}
	return nil
}

func (w *Worker) processJob(q *Queue, job *Job) (retErr error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("queue: panic in handler: %v", r)
			w.logger.Error("handler panicked",
				slog.String("worker_id", w.id.String()),
				slog.String("queue", q.name),
				slog.String("job_id", job.ID.String()),
				slog.String("job_type", job.Type),
				slog.Any("panic", r))
			_ = w.failJob(q, job, retErr, time.Since(start))
		}
	}()

	handler, ok := q.handler(job.Type)
	if !ok {
		return w.failMissingHandler(q, job)
	}

	// The execution context is detached from the worker lifecycle so a
	// graceful shutdown lets in-flight jobs run to completion, bounded
	// by the lease.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(w.ctx), w.lease)
	defer cancel()

	result, err := handler.Handle(ctx, &JobContext{job: job, broker: q.broker}, job.Payload)
	duration := time.Since(start)
	if err != nil {
		return w.failJob(q, job, err, duration)
	}
	return w.completeJob(q, job, result, duration)
}

// terminalCtx detaches the broker call that records a job's outcome
// from the worker lifecycle. Stop cancels w.ctx before draining, and a
// job that finishes during the drain must still land its one terminal
// signal or it would be re-executed after the lease expires.
func (w *Worker) terminalCtx() context.Context {
	return context.WithoutCancel(w.ctx)
}

func (w *Worker) completeJob(q *Queue, job *Job, result any, duration time.Duration) error {
	var raw json.RawMessage
	if result != nil {
		encoded, err := json.Marshal(result)
		if err != nil {
			return w.failJob(q, job, fmt.Errorf("queue: marshal result: %w", err), duration)
		}
		raw = encoded
	}

	if err := q.broker.Complete(w.terminalCtx(), q.name, job.ID, raw); err != nil {
		return fmt.Errorf("queue: complete job %s: %w", job.ID, err)
	}

	w.logger.Info("job completed",
		slog.String("worker_id", w.id.String()),
		slog.String("queue", q.name),
		slog.String("job_id", job.ID.String()),
		slog.String("job_type", job.Type),
		slog.Duration("duration", duration))
	return nil
}

func (w *Worker) failJob(q *Queue, job *Job, jobErr error, duration time.Duration) error {
	if err := q.broker.Fail(w.terminalCtx(), q.name, job.ID, jobErr.Error()); err != nil {
		return fmt.Errorf("queue: fail job %s: %w", job.ID, err)
	}

	attempt := job.Attempts + 1
	if attempt >= job.MaxAttempts {
		w.logger.Error("job failed permanently",
			slog.String("worker_id", w.id.String()),
			slog.String("queue", q.name),
			slog.String("job_id", job.ID.String()),
			slog.String("job_type", job.Type),
			slog.Int("attempts", int(attempt)),
			slog.Duration("duration", duration),
			slog.String("error", jobErr.Error()))
	} else {
		w.logger.Warn("job failed, will retry",
			slog.String("worker_id", w.id.String()),
			slog.String("queue", q.name),
			slog.String("job_id", job.ID.String()),
			slog.String("job_type", job.Type),
			slog.Int("attempt", int(attempt)),
			slog.Int("max_attempts", int(job.MaxAttempts)),
			slog.String("error", jobErr.Error()))
	}
	return nil
}

// failMissingHandler records a failed attempt for a job nothing can
// execute. Retries only help once the handler is deployed.
func (w *Worker) failMissingHandler(q *Queue, job *Job) error {
	w.logger.Error("no handler registered for job type",
		slog.String("worker_id", w.id.String()),
		slog.String("queue", q.name),
		slog.String("job_id", job.ID.String()),
		slog.String("job_type", job.Type))

	reason := "no handler registered for job type: " + job.Type
	if err := q.broker.Fail(w.terminalCtx(), q.name, job.ID, reason); err != nil {
		return fmt.Errorf("queue: fail job %s: %w", job.ID, err)
	}
	return ErrHandlerNotFound
}
