package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// prioritySpan separates priority bands in the ready zset score:
// score = priority * prioritySpan + seq. Both factors stay well inside
// the float64 mantissa, so ordering is exact.
const prioritySpan = float64(1 << 48)

const defaultCompletedTTL = 24 * time.Hour

// RedisBroker implements Broker on Redis, sharable by any number of
// producer and worker processes.
//
// Per-queue layout under the key prefix:
//
//	<prefix>:<queue>:job:<id>   hash with the job fields
//	<prefix>:<queue>:ready      zset, score = priority band + seq
//	<prefix>:<queue>:delayed    zset, score = ReadyAt in unix ms
//	<prefix>:<queue>:active     zset, score = lease deadline in unix ms
//	<prefix>:<queue>:repeat     hash, definition key -> pending job id
//	<prefix>:<queue>:seq        insertion sequence counter
//
// Recurring definitions live in process memory and are re-registered on
// every boot; Redis only tracks the single pending instance per
// definition, so concurrent workers cannot double-materialize.
//
// Promotion (due delayed jobs, expired leases, recurring instances)
// runs inline on Claim, piggybacking on the worker poll loop.
type RedisBroker struct {
	rdb          redis.UniversalClient
	keyPrefix    string
	completedTTL time.Duration

	mu      sync.Mutex
	repeats map[string]map[string]redisRepeat
}

type redisRepeat struct {
	def     RepeatDefinition
	payload json.RawMessage
}

// RedisBrokerOption configures a RedisBroker.
type RedisBrokerOption func(*RedisBroker)

// WithKeyPrefix overrides the Redis key namespace.
func WithKeyPrefix(prefix string) RedisBrokerOption {
	return func(b *RedisBroker) {
		if prefix != "" {
			b.keyPrefix = prefix
		}
	}
}

// WithCompletedTTL sets how long terminal job hashes are retained.
func WithCompletedTTL(ttl time.Duration) RedisBrokerOption {
	return func(b *RedisBroker) {
		if ttl > 0 {
			b.completedTTL = ttl
		}
	}
}

// NewRedisBroker creates a broker on the given Redis client.
func NewRedisBroker(rdb redis.UniversalClient, opts ...RedisBrokerOption) (*RedisBroker, error) {
	if rdb == nil {
		return nil, ErrBrokerNil
	}
	b := &RedisBroker{
		rdb:          rdb,
		keyPrefix:    "stagehand:queue",
		completedTTL: defaultCompletedTTL,
		repeats:      make(map[string]map[string]redisRepeat),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *RedisBroker) key(queue string, parts ...string) string {
	key := b.keyPrefix + ":" + queue
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

func (b *RedisBroker) jobKeyPrefix(queue string) string {
	return b.key(queue, "job") + ":"
}

// promoteScript releases expired leases and moves due delayed jobs into
// the ready zset. KEYS: delayed, ready, active. ARGV: now ms, job key
// prefix.
var promoteScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local prefix = ARGV[2]
local span = 2^48

local expired = redis.call('ZRANGEBYSCORE', KEYS[3], '-inf', now)
for _, id in ipairs(expired) do
	local key = prefix .. id
	redis.call('HSET', key, 'status', 'waiting')
	redis.call('HDEL', key, 'locked_until', 'locked_by')
	local pr = tonumber(redis.call('HGET', key, 'priority'))
	local seq = tonumber(redis.call('HGET', key, 'seq'))
	redis.call('ZADD', KEYS[2], pr * span + seq, id)
	redis.call('ZREM', KEYS[3], id)
end

local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', now)
for _, id in ipairs(due) do
	local key = prefix .. id
	redis.call('HSET', key, 'status', 'waiting')
	local pr = tonumber(redis.call('HGET', key, 'priority'))
	local seq = tonumber(redis.call('HGET', key, 'seq'))
	redis.call('ZADD', KEYS[2], pr * span + seq, id)
	redis.call('ZREM', KEYS[1], id)
end
return #expired + #due
`)

// claimScript pops the lowest-scored ready job and locks it. KEYS:
// ready, active. ARGV: now ms, lease ms, worker id, job key prefix.
var claimScript = redis.NewScript(`
local popped = redis.call('ZPOPMIN', KEYS[1])
if #popped == 0 then
	return false
end
local id = popped[1]
local deadline = tonumber(ARGV[1]) + tonumber(ARGV[2])
redis.call('HSET', ARGV[4] .. id, 'status', 'active', 'locked_until', deadline, 'locked_by', ARGV[3])
redis.call('ZADD', KEYS[2], deadline, id)
return id
`)

// progressScript updates progress of an active job. KEYS: job.
// ARGV: pct.
var progressScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then return 'not_found' end
if status ~= 'active' then return 'not_active' end
redis.call('HSET', KEYS[1], 'progress', ARGV[1])
return 'ok'
`)

// completeScript finishes an active job. KEYS: job, active, repeat.
// ARGV: now ms, result json, retention seconds.
var completeScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then return 'not_found' end
if status ~= 'active' then return 'not_active' end
local id = redis.call('HGET', KEYS[1], 'id')
redis.call('HSET', KEYS[1], 'status', 'completed', 'processed_at', ARGV[1])
if ARGV[2] ~= '' then
	redis.call('HSET', KEYS[1], 'result', ARGV[2])
end
redis.call('HDEL', KEYS[1], 'locked_until', 'locked_by')
redis.call('ZREM', KEYS[2], id)
local rk = redis.call('HGET', KEYS[1], 'repeat_key')
if rk and rk ~= '' and redis.call('HGET', KEYS[3], rk) == id then
	redis.call('HDEL', KEYS[3], rk)
end
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[3]))
return 'ok'
`)

// failScript records a failed attempt: re-queues with backoff while
// attempts remain, otherwise marks terminally failed. KEYS: job,
// active, delayed, repeat. ARGV: now ms, reason, backoff step ms,
// retention seconds.
var failScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then return 'not_found' end
if status ~= 'active' then return 'not_active' end
local id = redis.call('HGET', KEYS[1], 'id')
local attempts = tonumber(redis.call('HINCRBY', KEYS[1], 'attempts', 1))
local max = tonumber(redis.call('HGET', KEYS[1], 'max_attempts'))
redis.call('HSET', KEYS[1], 'error', ARGV[2])
redis.call('HDEL', KEYS[1], 'locked_until', 'locked_by')
redis.call('ZREM', KEYS[2], id)
if attempts >= max then
	redis.call('HSET', KEYS[1], 'status', 'failed', 'processed_at', ARGV[1])
	local rk = redis.call('HGET', KEYS[1], 'repeat_key')
	if rk and rk ~= '' and redis.call('HGET', KEYS[4], rk) == id then
		redis.call('HDEL', KEYS[4], rk)
	end
	redis.call('EXPIRE', KEYS[1], tonumber(ARGV[4]))
	return 'failed'
end
local ready_at = tonumber(ARGV[1]) + attempts * tonumber(ARGV[3])
redis.call('HSET', KEYS[1], 'status', 'delayed', 'ready_at', ready_at)
redis.call('ZADD', KEYS[3], ready_at, id)
return 'retry'
`)

// removeScript deletes a waiting or delayed job. KEYS: job, ready,
// delayed, repeat.
var removeScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then return 'not_found' end
if status ~= 'waiting' and status ~= 'delayed' then return 'not_removable' end
local id = redis.call('HGET', KEYS[1], 'id')
redis.call('ZREM', KEYS[2], id)
redis.call('ZREM', KEYS[3], id)
local rk = redis.call('HGET', KEYS[1], 'repeat_key')
if rk and rk ~= '' and redis.call('HGET', KEYS[4], rk) == id then
	redis.call('HDEL', KEYS[4], rk)
end
redis.call('DEL', KEYS[1])
return 'ok'
`)

// materializeScript creates the next instance of a recurring definition
// unless one is already pending. KEYS: repeat, delayed. ARGV: definition
// key, job id, ready_at ms, job key prefix, then the job hash
// field/value pairs.
var materializeScript = redis.NewScript(`
local pending = redis.call('HGET', KEYS[1], ARGV[1])
if pending then
	local st = redis.call('HGET', ARGV[4] .. pending, 'status')
	if st == 'waiting' or st == 'delayed' then
		return 0
	end
end
local key = ARGV[4] .. ARGV[2]
for i = 5, #ARGV, 2 do
	redis.call('HSET', key, ARGV[i], ARGV[i + 1])
end
redis.call('ZADD', KEYS[2], tonumber(ARGV[3]), ARGV[2])
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// Enqueue implements Broker.
func (b *RedisBroker) Enqueue(ctx context.Context, job *Job) error {
	if job == nil {
		return ErrPayloadNil
	}
	if job.Queue == "" {
		return ErrQueueNameEmpty
	}
	if job.Type == "" {
		return ErrJobTypeEmpty
	}

	now := time.Now()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Priority == 0 {
		job.Priority = PriorityDefault
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = DefaultMaxAttempts
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.ReadyAt.IsZero() {
		job.ReadyAt = now
	}
	if job.ReadyAt.After(now) {
		job.Status = StatusDelayed
	} else {
		job.Status = StatusWaiting
	}

	seq, err := b.rdb.Incr(ctx, b.key(job.Queue, "seq")).Result()
	if err != nil {
		return fmt.Errorf("queue: next sequence: %w", err)
	}
	job.Seq = uint64(seq)

	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, b.jobKeyPrefix(job.Queue)+job.ID.String(), jobToFields(job)...)
	if job.Status == StatusDelayed {
		pipe.ZAdd(ctx, b.key(job.Queue, "delayed"), redis.Z{
			Score:  float64(job.ReadyAt.UnixMilli()),
			Member: job.ID.String(),
		})
	} else {
		pipe.ZAdd(ctx, b.key(job.Queue, "ready"), redis.Z{
			Score:  readyScore(job.Priority, job.Seq),
			Member: job.ID.String(),
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// Claim implements Broker.
func (b *RedisBroker) Claim(ctx context.Context, queue string, workerID uuid.UUID, lease time.Duration) (*Job, error) {
	now := time.Now()

	if err := promoteScript.Run(ctx, b.rdb,
		[]string{b.key(queue, "delayed"), b.key(queue, "ready"), b.key(queue, "active")},
		now.UnixMilli(), b.jobKeyPrefix(queue),
	).Err(); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("queue: promote %q: %w", queue, err)
	}

	if err := b.materialize(ctx, queue, now); err != nil {
		return nil, err
	}

	res, err := claimScript.Run(ctx, b.rdb,
		[]string{b.key(queue, "ready"), b.key(queue, "active")},
		now.UnixMilli(), lease.Milliseconds(), workerID.String(), b.jobKeyPrefix(queue),
	).Result()
	if err == redis.Nil {
		return nil, ErrNoJobReady
	}
	if err != nil {
		return nil, fmt.Errorf("queue: claim from %q: %w", queue, err)
	}
	id, ok := res.(string)
	if !ok || id == "" {
		return nil, ErrNoJobReady
	}

	fields, err := b.rdb.HGetAll(ctx, b.jobKeyPrefix(queue)+id).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: load claimed job %s: %w", id, err)
	}
	return jobFromHash(fields)
}

// ReportProgress implements Broker.
func (b *RedisBroker) ReportProgress(ctx context.Context, queue string, jobID uuid.UUID, pct int) error {
	res, err := progressScript.Run(ctx, b.rdb,
		[]string{b.jobKeyPrefix(queue) + jobID.String()},
		min(max(pct, 0), 100),
	).Text()
	if err != nil {
		return fmt.Errorf("queue: report progress of %s: %w", jobID, err)
	}
	return scriptStatusErr(res)
}

// Complete implements Broker.
func (b *RedisBroker) Complete(ctx context.Context, queue string, jobID uuid.UUID, result json.RawMessage) error {
	res, err := completeScript.Run(ctx, b.rdb,
		[]string{b.jobKeyPrefix(queue) + jobID.String(), b.key(queue, "active"), b.key(queue, "repeat")},
		time.Now().UnixMilli(), string(result), int(b.completedTTL.Seconds()),
	).Text()
	if err != nil {
		return fmt.Errorf("queue: complete job %s: %w", jobID, err)
	}
	return scriptStatusErr(res)
}

// Fail implements Broker.
func (b *RedisBroker) Fail(ctx context.Context, queue string, jobID uuid.UUID, reason string) error {
	res, err := failScript.Run(ctx, b.rdb,
		[]string{
			b.jobKeyPrefix(queue) + jobID.String(),
			b.key(queue, "active"),
			b.key(queue, "delayed"),
			b.key(queue, "repeat"),
		},
		time.Now().UnixMilli(), reason, (30 * time.Second).Milliseconds(), int(b.completedTTL.Seconds()),
	).Text()
	if err != nil {
		return fmt.Errorf("queue: fail job %s: %w", jobID, err)
	}
	if res == "failed" || res == "retry" {
		return nil
	}
	return scriptStatusErr(res)
}

// ListDelayed implements Broker.
func (b *RedisBroker) ListDelayed(ctx context.Context, queue string) ([]*Job, error) {
	ids, err := b.rdb.ZRange(ctx, b.key(queue, "delayed"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: list delayed of %q: %w", queue, err)
	}

	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		fields, err := b.rdb.HGetAll(ctx, b.jobKeyPrefix(queue)+id).Result()
		if err != nil {
			return nil, fmt.Errorf("queue: load delayed job %s: %w", id, err)
		}
		if len(fields) == 0 {
			continue
		}
		job, err := jobFromHash(fields)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Remove implements Broker.
func (b *RedisBroker) Remove(ctx context.Context, queue string, jobID uuid.UUID) error {
	res, err := removeScript.Run(ctx, b.rdb,
		[]string{
			b.jobKeyPrefix(queue) + jobID.String(),
			b.key(queue, "ready"),
			b.key(queue, "delayed"),
			b.key(queue, "repeat"),
		},
	).Text()
	if err != nil {
		return fmt.Errorf("queue: remove job %s: %w", jobID, err)
	}
	return scriptStatusErr(res)
}

// RegisterRepeating implements Broker. Definitions are held in process
// memory keyed by RepeatDefinition.Key, so re-registering on boot is
// idempotent across restarts and deployments.
func (b *RedisBroker) RegisterRepeating(ctx context.Context, queue string, def RepeatDefinition) error {
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
	if b.repeats[queue] == nil {
		b.repeats[queue] = make(map[string]redisRepeat)
	}
	b.repeats[queue][def.Key(queue)] = redisRepeat{def: def, payload: payload}
	b.mu.Unlock()

	return b.materialize(ctx, queue, time.Now())
}

// materialize ensures each recurring definition of the queue has one
// pending instance scheduled for its next occurrence.
func (b *RedisBroker) materialize(ctx context.Context, queue string, now time.Time) error {
	b.mu.Lock()
	defs := make(map[string]redisRepeat, len(b.repeats[queue]))
	for key, r := range b.repeats[queue] {
		defs[key] = r
	}
	b.mu.Unlock()

	for key, r := range defs {
		priority := r.def.Priority
		if priority == 0 {
			priority = PriorityDefault
		}
		maxAttempts := r.def.MaxAttempts
		if maxAttempts == 0 {
			maxAttempts = DefaultMaxAttempts
		}

		seq, err := b.rdb.Incr(ctx, b.key(queue, "seq")).Result()
		if err != nil {
			return fmt.Errorf("queue: next sequence: %w", err)
		}

		job := &Job{
			ID:          uuid.New(),
			Queue:       queue,
			Type:        r.def.Type,
			Payload:     r.payload,
			Status:      StatusDelayed,
			Priority:    priority,
			MaxAttempts: maxAttempts,
			ReadyAt:     r.def.Schedule.Next(now),
			Seq:         uint64(seq),
			RepeatKey:   key,
			CreatedAt:   now,
		}

		args := []any{key, job.ID.String(), job.ReadyAt.UnixMilli(), b.jobKeyPrefix(queue)}
		args = append(args, jobToFields(job)...)
		if err := materializeScript.Run(ctx, b.rdb,
			[]string{b.key(queue, "repeat"), b.key(queue, "delayed")},
			args...,
		).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("queue: materialize recurring %q: %w", r.def.Type, err)
		}
	}
	return nil
}

func readyScore(p Priority, seq uint64) float64 {
	return float64(p)*prioritySpan + float64(seq)
}

func scriptStatusErr(status string) error {
	switch status {
	case "ok":
		return nil
	case "not_found":
		return ErrJobNotFound
	case "not_active":
		return ErrJobNotActive
	case "not_removable":
		return ErrJobNotRemovable
	default:
		return fmt.Errorf("queue: unexpected script status %q", status)
	}
}

// jobToFields flattens a job into HSET field/value pairs.
func jobToFields(j *Job) []any {
	fields := []any{
		"id", j.ID.String(),
		"queue", j.Queue,
		"type", j.Type,
		"status", string(j.Status),
		"priority", int(j.Priority),
		"attempts", int(j.Attempts),
		"max_attempts", int(j.MaxAttempts),
		"progress", j.Progress,
		"ready_at", j.ReadyAt.UnixMilli(),
		"seq", j.Seq,
		"created_at", j.CreatedAt.UnixMilli(),
	}
	if len(j.Payload) > 0 {
		fields = append(fields, "payload", string(j.Payload))
	}
	if j.RepeatKey != "" {
		fields = append(fields, "repeat_key", j.RepeatKey)
	}
	return fields
}

// jobFromHash parses the HGETALL form of a job hash.
func jobFromHash(fields map[string]string) (*Job, error) {
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}

	id, err := uuid.Parse(fields["id"])
	if err != nil {
		return nil, fmt.Errorf("queue: parse job id %q: %w", fields["id"], err)
	}

	job := &Job{
		ID:        id,
		Queue:     fields["queue"],
		Type:      fields["type"],
		Status:    Status(fields["status"]),
		RepeatKey: fields["repeat_key"],
	}
	if v := fields["payload"]; v != "" {
		job.Payload = json.RawMessage(v)
	}
	if v := fields["result"]; v != "" {
		job.Result = json.RawMessage(v)
	}
	if v := fields["error"]; v != "" {
		job.Error = &v
	}

	var parseErr error
	parseInt := func(field string) int64 {
		v := fields[field]
		if v == "" {
			return 0
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil && parseErr == nil {
			parseErr = fmt.Errorf("queue: parse job field %q=%q: %w", field, v, err)
		}
		return n
	}

	job.Priority = Priority(parseInt("priority"))
	job.Attempts = int8(parseInt("attempts"))
	job.MaxAttempts = int8(parseInt("max_attempts"))
	job.Progress = int(parseInt("progress"))
	job.Seq = uint64(parseInt("seq"))
	job.ReadyAt = time.UnixMilli(parseInt("ready_at"))
	job.CreatedAt = time.UnixMilli(parseInt("created_at"))
	if v := parseInt("processed_at"); v > 0 {
		t := time.UnixMilli(v)
		job.ProcessedAt = &t
	}
	if v := parseInt("locked_until"); v > 0 {
		t := time.UnixMilli(v)
		job.LockedUntil = &t
	}
	if v := fields["locked_by"]; v != "" {
		if lockedBy, err := uuid.Parse(v); err == nil {
			job.LockedBy = &lockedBy
		}
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return job, nil
}
