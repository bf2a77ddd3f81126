package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Queue is a named job channel bound to a broker. It is both the
// producer surface (Enqueue) and the handler registry a Worker pulls
// from. A Queue must be started before its recurring definitions fire.
type Queue struct {
	name   string
	broker Broker
	log    *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	repeats  []RepeatDefinition

	startOnce sync.Once
	startErr  error
}

// QueueOption configures a Queue at construction time.
type QueueOption func(*Queue)

// WithQueueLogger sets the logger used during Start and by workers
// processing this queue.
func WithQueueLogger(log *slog.Logger) QueueOption {
	return func(q *Queue) {
		if log != nil {
			q.log = log
		}
	}
}

// NewQueue creates a queue named name on the given broker.
func NewQueue(name string, broker Broker, opts ...QueueOption) (*Queue, error) {
	if name == "" {
		return nil, ErrQueueNameEmpty
	}
	if broker == nil {
		return nil, ErrBrokerNil
	}
	q := &Queue{
		name:     name,
		broker:   broker,
		log:      slog.Default(),
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Register binds a handler to its job type. At most one handler may be
// registered per type.
func (q *Queue) Register(h Handler) error {
	if h == nil {
		return ErrHandlerNil
	}
	if h.Type() == "" {
		return ErrJobTypeEmpty
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.handlers[h.Type()]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerAlreadyRegistered, h.Type())
	}
	q.handlers[h.Type()] = h
	return nil
}

// MustRegister is Register that panics on error, for wiring done at
// process startup.
func (q *Queue) MustRegister(h Handler) {
	if err := q.Register(h); err != nil {
		panic(err)
	}
}

// Repeat declares a recurring definition. Definitions are registered
// with the broker when the queue starts.
func (q *Queue) Repeat(def RepeatDefinition) error {
	if err := def.validate(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.repeats = append(q.repeats, def)
	return nil
}

// enqueueOptions carries producer overrides for a single job.
type enqueueOptions struct {
	priority    Priority
	delay       time.Duration
	runAt       time.Time
	maxAttempts int8
}

// EnqueueOption customizes a single enqueued job.
type EnqueueOption func(*enqueueOptions)

// WithPriority sets the dequeue priority of the job.
func WithPriority(p Priority) EnqueueOption {
	return func(o *enqueueOptions) { o.priority = p }
}

// WithDelay holds the job back for d before it becomes claimable.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) { o.delay = d }
}

// WithRunAt holds the job back until the given moment.
func WithRunAt(t time.Time) EnqueueOption {
	return func(o *enqueueOptions) { o.runAt = t }
}

// WithMaxAttempts overrides the retry budget of the job.
func WithMaxAttempts(n int8) EnqueueOption {
	return func(o *enqueueOptions) { o.maxAttempts = n }
}

// Enqueue persists a new job of the given type and returns it as stored
// by the broker.
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload any, opts ...EnqueueOption) (*Job, error) {
	if jobType == "" {
		return nil, ErrJobTypeEmpty
	}

	o := enqueueOptions{priority: PriorityDefault, maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.priority.Valid() {
		return nil, ErrInvalidPriority
	}
	if o.maxAttempts < 1 {
		o.maxAttempts = DefaultMaxAttempts
	}

	var raw json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("queue: marshal %q payload: %w", jobType, err)
		}
		raw = encoded
	}

	now := time.Now()
	readyAt := now
	if o.delay > 0 {
		readyAt = now.Add(o.delay)
	}
	if !o.runAt.IsZero() && o.runAt.After(readyAt) {
		readyAt = o.runAt
	}

	job := &Job{
		Queue:       q.name,
		Type:        jobType,
		Payload:     raw,
		Priority:    o.priority,
		MaxAttempts: o.maxAttempts,
		ReadyAt:     readyAt,
		CreatedAt:   now,
	}
	if err := q.broker.Enqueue(ctx, job); err != nil {
		return nil, err
	}

	q.log.DebugContext(ctx, "job enqueued",
		slog.String("queue", q.name),
		slog.String("job_type", jobType),
		slog.String("job_id", job.ID.String()),
		slog.String("status", string(job.Status)),
	)
	return job, nil
}

// Start prepares the queue for processing: it purges every delayed job
// left over from the previous run, then registers the recurring
// definitions with the broker. Start is idempotent; calls after the
// first return the first call's result.
func (q *Queue) Start(ctx context.Context) error {
	q.startOnce.Do(func() {
		q.startErr = q.start(ctx)
	})
	return q.startErr
}

func (q *Queue) start(ctx context.Context) error {
	delayed, err := q.broker.ListDelayed(ctx, q.name)
	if err != nil {
		return fmt.Errorf("queue: list delayed jobs of %q: %w", q.name, err)
	}
	for _, job := range delayed {
		if err := q.broker.Remove(ctx, q.name, job.ID); err != nil {
			return fmt.Errorf("queue: purge delayed job %s of %q: %w", job.ID, q.name, err)
		}
	}
	if len(delayed) > 0 {
		q.log.InfoContext(ctx, "purged delayed jobs", slog.String("queue", q.name), slog.Int("count", len(delayed)))
	}

	q.mu.RLock()
	repeats := make([]RepeatDefinition, len(q.repeats))
	copy(repeats, q.repeats)
	q.mu.RUnlock()

	for _, def := range repeats {
		if err := q.broker.RegisterRepeating(ctx, q.name, def); err != nil {
			return fmt.Errorf("queue: register recurring %q on %q: %w", def.Type, q.name, err)
		}
	}

	q.log.InfoContext(ctx, "queue started",
		slog.String("queue", q.name),
		slog.Int("recurring", len(repeats)),
	)
	return nil
}

// handler resolves the handler registered for jobType.
func (q *Queue) handler(jobType string) (Handler, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h, ok := q.handlers[jobType]
	return h, ok
}
