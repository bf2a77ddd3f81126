package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Handler executes jobs of a single type. Handle returns exactly one
// terminal signal per execution: a nil error completes the job with the
// returned value as its result, a non-nil error fails the attempt.
type Handler interface {
	// Type is the job type this handler is bound to.
	Type() string

	// Handle executes one claimed job.
	Handle(ctx context.Context, job *JobContext, payload json.RawMessage) (any, error)
}

// JobContext exposes the claimed job to its handler, including the
// advisory progress channel back to the broker.
type JobContext struct {
	job    *Job
	broker Broker
}

// ID returns the job id.
func (c *JobContext) ID() uuid.UUID { return c.job.ID }

// Queue returns the queue the job was claimed from.
func (c *JobContext) Queue() string { return c.job.Queue }

// Attempt returns the 1-based number of the current execution attempt.
func (c *JobContext) Attempt() int8 { return c.job.Attempts + 1 }

// MaxAttempts returns the attempt budget of the job.
func (c *JobContext) MaxAttempts() int8 { return c.job.MaxAttempts }

// Recurring reports whether the job was materialized from a recurring
// definition.
func (c *JobContext) Recurring() bool { return c.job.RepeatKey != "" }

// Progress reports advisory completion percentage (clamped to 0-100).
// It never affects the job lifecycle.
func (c *JobContext) Progress(ctx context.Context, pct int) error {
	return c.broker.ReportProgress(ctx, c.job.Queue, c.job.ID, pct)
}

type typedHandler[T any] struct {
	jobType string
	fn      func(ctx context.Context, job *JobContext, payload T) (any, error)
}

func (h *typedHandler[T]) Type() string { return h.jobType }

func (h *typedHandler[T]) Handle(ctx context.Context, job *JobContext, raw json.RawMessage) (any, error) {
	var payload T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("queue: unmarshal %q payload: %w", h.jobType, err)
		}
	}
	return h.fn(ctx, job, payload)
}

// NewHandler binds fn to jobType, decoding the raw payload into T before
// each execution. Jobs with no payload are handled with T's zero value.
func NewHandler[T any](jobType string, fn func(ctx context.Context, job *JobContext, payload T) (any, error)) Handler {
	return &typedHandler[T]{jobType: jobType, fn: fn}
}
