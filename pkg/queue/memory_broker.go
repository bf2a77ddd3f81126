package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBroker implements Broker in process memory. It backs tests and
// local development; deployed workers use RedisBroker.
//
// Promotion work (delayed jobs becoming ready, expired leases being
// released, recurring instances being materialized) happens inline on
// Claim, which keeps tests deterministic without background tickers.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string]*memQueue
}

type memQueue struct {
	name    string
	jobs    map[uuid.UUID]*Job
	repeats map[string]*memRepeat
	seq     uint64
}

type memRepeat struct {
	def     RepeatDefinition
	payload json.RawMessage
}

// NewMemoryBroker creates an empty in-memory broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{queues: make(map[string]*memQueue)}
}

func (b *MemoryBroker) queue(name string) *memQueue {
	q, ok := b.queues[name]
	if !ok {
		q = &memQueue{
			name:    name,
			jobs:    make(map[uuid.UUID]*Job),
			repeats: make(map[string]*memRepeat),
		}
		b.queues[name] = q
	}
	return q
}

// Enqueue implements Broker.
func (b *MemoryBroker) Enqueue(ctx context.Context, job *Job) error {
	if job == nil {
		return ErrPayloadNil
	}
	if job.Queue == "" {
		return ErrQueueNameEmpty
	}
	if job.Type == "" {
		return ErrJobTypeEmpty
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queue(job.Queue)
	now := time.Now()

	stored := *job
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.Priority == 0 {
		stored.Priority = PriorityDefault
	}
	if stored.MaxAttempts == 0 {
		stored.MaxAttempts = DefaultMaxAttempts
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.ReadyAt.IsZero() {
		stored.ReadyAt = now
	}
	if stored.ReadyAt.After(now) {
		stored.Status = StatusDelayed
	} else {
		stored.Status = StatusWaiting
	}
	q.seq++
	stored.Seq = q.seq

	if _, exists := q.jobs[stored.ID]; exists {
		return fmt.Errorf("queue: job %s already exists", stored.ID)
	}
	q.jobs[stored.ID] = &stored

	job.ID = stored.ID
	job.Status = stored.Status
	job.Seq = stored.Seq
	return nil
}

// Claim implements Broker.
func (b *MemoryBroker) Claim(ctx context.Context, queue string, workerID uuid.UUID, lease time.Duration) (*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queue(queue)
	now := time.Now()
	b.promote(q, now)

	var best *Job
	for _, job := range q.jobs {
		if job.Status != StatusWaiting {
			continue
		}
		if best == nil ||
			job.Priority < best.Priority ||
			(job.Priority == best.Priority && job.Seq < best.Seq) {
			best = job
		}
	}
	if best == nil {
		return nil, ErrNoJobReady
	}

	deadline := now.Add(lease)
	best.Status = StatusActive
	best.LockedUntil = &deadline
	best.LockedBy = &workerID

	claimed := *best
	return &claimed, nil
}

// ReportProgress implements Broker.
func (b *MemoryBroker) ReportProgress(ctx context.Context, queue string, jobID uuid.UUID, pct int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, ok := b.queue(queue).jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != StatusActive {
		return ErrJobNotActive
	}
	job.Progress = min(max(pct, 0), 100)
	return nil
}

// Complete implements Broker.
func (b *MemoryBroker) Complete(ctx context.Context, queue string, jobID uuid.UUID, result json.RawMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, ok := b.queue(queue).jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != StatusActive {
		return ErrJobNotActive
	}

	now := time.Now()
	job.Status = StatusCompleted
	job.Result = result
	job.ProcessedAt = &now
	job.LockedUntil = nil
	job.LockedBy = nil
	return nil
}

// Fail implements Broker.
func (b *MemoryBroker) Fail(ctx context.Context, queue string, jobID uuid.UUID, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, ok := b.queue(queue).jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != StatusActive {
		return ErrJobNotActive
	}

	now := time.Now()
	job.Attempts++
	job.Error = &reason
	job.LockedUntil = nil
	job.LockedBy = nil

	if job.Attempts >= job.MaxAttempts {
		job.Status = StatusFailed
		job.ProcessedAt = &now
		return nil
	}

	job.Status = StatusDelayed
	job.ReadyAt = now.Add(retryBackoff(job.Attempts))
	return nil
}

// ListDelayed implements Broker.
func (b *MemoryBroker) ListDelayed(ctx context.Context, queue string) ([]*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*Job
	for _, job := range b.queue(queue).jobs {
		if job.Status == StatusDelayed {
			cp := *job
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReadyAt.Before(out[j].ReadyAt) })
	return out, nil
}

// Remove implements Broker.
func (b *MemoryBroker) Remove(ctx context.Context, queue string, jobID uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queue(queue)
	job, ok := q.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != StatusWaiting && job.Status != StatusDelayed {
		return ErrJobNotRemovable
	}
	delete(q.jobs, jobID)
	return nil
}

// RegisterRepeating implements Broker.
func (b *MemoryBroker) RegisterRepeating(ctx context.Context, queue string, def RepeatDefinition) error {
	if queue == "" {
		return ErrQueueNameEmpty
	}
	if err := def.validate(); err != nil {
		return err
	}

	var payload json.RawMessage
	if def.Payload != nil {
		raw, err := json.Marshal(def.Payload)
		if err != nil {
			return fmt.Errorf("queue: marshal recurring payload for %q: %w", def.Type, err)
		}
		payload = raw
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queue(queue)
	// Same key, possibly refreshed payload: update in place, never a
	// second schedule.
	q.repeats[def.Key(queue)] = &memRepeat{def: def, payload: payload}
	b.promote(q, time.Now())
	return nil
}

// Job returns a snapshot of a stored job, useful for inspection in
// tests and local tooling.
func (b *MemoryBroker) Job(queue string, jobID uuid.UUID) (*Job, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, ok := b.queue(queue).jobs[jobID]
	if !ok {
		return nil, false
	}
	cp := *job
	return &cp, true
}

// promote releases expired leases, moves due delayed jobs to waiting and
// keeps exactly one upcoming instance per recurring definition. Callers
// hold b.mu.
func (b *MemoryBroker) promote(q *memQueue, now time.Time) {
	for _, job := range q.jobs {
		if job.Status == StatusActive && job.LockedUntil != nil && job.LockedUntil.Before(now) {
			// Lease expired: the owning worker is presumed dead and the
			// job becomes claimable again.
			job.Status = StatusWaiting
			job.LockedUntil = nil
			job.LockedBy = nil
		}
		if job.Status == StatusDelayed && !job.ReadyAt.After(now) {
			job.Status = StatusWaiting
		}
	}

	for key, r := range q.repeats {
		if b.hasPendingInstance(q, key) {
			continue
		}
		q.seq++
		next := r.def.Schedule.Next(now)
		priority := r.def.Priority
		if priority == 0 {
			priority = PriorityDefault
		}
		maxAttempts := r.def.MaxAttempts
		if maxAttempts == 0 {
			maxAttempts = DefaultMaxAttempts
		}
		id := uuid.New()
		q.jobs[id] = &Job{
			ID:          id,
			Queue:       q.name,
			Type:        r.def.Type,
			Payload:     r.payload,
			Status:      StatusDelayed,
			Priority:    priority,
			MaxAttempts: maxAttempts,
			ReadyAt:     next,
			Seq:         q.seq,
			RepeatKey:   key,
			CreatedAt:   now,
		}
	}
}

func (b *MemoryBroker) hasPendingInstance(q *memQueue, key string) bool {
	for _, job := range q.jobs {
		if job.RepeatKey == key && (job.Status == StatusWaiting || job.Status == StatusDelayed) {
			return true
		}
	}
	return false
}
