package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusDelayed   Status = "delayed"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Priority is an ordinal dequeue rank: lower values are claimed first
// among ready jobs of the same queue, ties broken by insertion order.
type Priority int8

const (
	PriorityCritical Priority = 1
	PriorityHigh     Priority = 2
	PriorityMedium   Priority = 3
	PriorityNormal   Priority = 4
	PriorityLow      Priority = 5

	PriorityDefault = PriorityNormal
)

// Valid checks that the priority is on the ordinal scale.
func (p Priority) Valid() bool {
	return p >= PriorityCritical && p <= PriorityLow
}

// DefaultMaxAttempts bounds retries when the producer does not say otherwise.
const DefaultMaxAttempts int8 = 3

// Job is the unit of enqueued work.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Queue       string          `json:"queue"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      Status          `json:"status"`
	Priority    Priority        `json:"priority"`
	Attempts    int8            `json:"attempts"`
	MaxAttempts int8            `json:"max_attempts"`
	Progress    int             `json:"progress"`

	// ReadyAt is the moment the job becomes eligible for claiming. For
	// delayed jobs this is the delay deadline; retries push it forward
	// by the backoff.
	ReadyAt time.Time `json:"ready_at"`

	// Seq is the broker-assigned insertion sequence, used as the FIFO
	// tiebreak within a priority band.
	Seq uint64 `json:"seq"`

	// RepeatKey is set on instances materialized from a recurring
	// definition and identifies that definition.
	RepeatKey string `json:"repeat_key,omitempty"`

	Result json.RawMessage `json:"result,omitempty"`
	Error  *string         `json:"error,omitempty"`

	LockedUntil *time.Time `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID `json:"locked_by,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// RepeatDefinition declares a recurring job. The broker keys recurring
// schedules by (queue, type, schedule), so re-registering an identical
// definition across restarts never creates a second timer.
type RepeatDefinition struct {
	Type        string
	Payload     any
	Schedule    Schedule
	Priority    Priority
	MaxAttempts int8
}

// Key derives the uniqueness key of the definition within a queue.
func (d RepeatDefinition) Key(queue string) string {
	return fmt.Sprintf("%s|%s|%s", queue, d.Type, d.Schedule.String())
}

func (d RepeatDefinition) validate() error {
	if d.Type == "" {
		return ErrJobTypeEmpty
	}
	if d.Schedule == nil {
		return ErrScheduleNil
	}
	if d.Priority != 0 && !d.Priority.Valid() {
		return ErrInvalidPriority
	}
	return nil
}

// retryBackoff spaces retry attempts out linearly so a persistently
// failing job does not spin on the broker.
func retryBackoff(attempts int8) time.Duration {
	return time.Duration(attempts) * 30 * time.Second
}
