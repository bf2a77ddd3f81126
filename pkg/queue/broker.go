package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Broker is the persistence contract the queue engine runs on: a shared,
// at-least-once message store with atomic single-claim semantics. Queue
// state is partitioned by queue name; brokers create per-queue state
// lazily on first use.
//
// Guarantees required of an implementation:
//
//   - Claim hands a ready job to at most one worker at a time, under a
//     lease; an expired lease makes the job claimable again.
//   - Ready jobs are ordered by priority, then insertion sequence.
//   - A job whose ReadyAt lies in the future is never claimable.
//   - At most one waiting-or-delayed instance exists per recurring
//     definition key, however many times it was registered.
type Broker interface {
	// Enqueue persists a new job in waiting or delayed state.
	Enqueue(ctx context.Context, job *Job) error

	// Claim atomically claims the next ready job of the queue for
	// workerID under the given lease, returning ErrNoJobReady when
	// nothing is eligible.
	Claim(ctx context.Context, queue string, workerID uuid.UUID, lease time.Duration) (*Job, error)

	// ReportProgress records advisory progress (0-100) of an active job.
	ReportProgress(ctx context.Context, queue string, jobID uuid.UUID, pct int) error

	// Complete marks an active job completed with its result.
	Complete(ctx context.Context, queue string, jobID uuid.UUID, result json.RawMessage) error

	// Fail records a failed execution. While attempts remain the job is
	// re-queued with a backoff; otherwise it becomes terminally failed.
	Fail(ctx context.Context, queue string, jobID uuid.UUID, reason string) error

	// ListDelayed returns the queue's delayed jobs.
	ListDelayed(ctx context.Context, queue string) ([]*Job, error)

	// Remove deletes a waiting or delayed job.
	Remove(ctx context.Context, queue string, jobID uuid.UUID) error

	// RegisterRepeating declares a recurring definition. Registering an
	// identical definition again is a no-op; a definition with the same
	// key but different payload is updated in place.
	RegisterRepeating(ctx context.Context, queue string, def RepeatDefinition) error
}
