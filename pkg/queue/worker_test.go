package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/stagehand/pkg/queue"
)

type doublePayload struct {
	Value int `json:"value"`
}

type doubleResult struct {
	Doubled int `json:"doubled"`
}

func newTestWorker(t *testing.T, qs ...*queue.Queue) *queue.Worker {
	t.Helper()

	w := queue.NewWorker(
		queue.WithPullInterval(5*time.Millisecond),
		queue.WithLease(time.Minute),
		queue.WithMaxConcurrency(4),
	)
	for _, q := range qs {
		require.NoError(t, w.Attach(q))
	}
	return w
}

func waitForStatus(t *testing.T, b *queue.MemoryBroker, queueName string, job *queue.Job, want queue.Status) *queue.Job {
	t.Helper()

	var stored *queue.Job
	require.Eventually(t, func() bool {
		got, ok := b.Job(queueName, job.ID)
		if !ok {
			return false
		}
		stored = got
		return got.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return stored
}

func TestWorker_ProcessesJob(t *testing.T) {
	t.Parallel()

	b := queue.NewMemoryBroker()
	q, err := queue.NewQueue("math", b)
	require.NoError(t, err)
	q.MustRegister(queue.NewHandler("double", func(ctx context.Context, job *queue.JobContext, payload doublePayload) (any, error) {
		return doubleResult{Doubled: payload.Value * 2}, nil
	}))

	w := newTestWorker(t, q)

	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Stop() })

	job, err := q.Enqueue(ctx, "double", doublePayload{Value: 21})
	require.NoError(t, err)

	stored := waitForStatus(t, b, "math", job, queue.StatusCompleted)
	assert.JSONEq(t, `{"doubled":42}`, string(stored.Result))
	assert.NotNil(t, stored.ProcessedAt)
}

func TestWorker_FailedJobIsTerminalAfterLastAttempt(t *testing.T) {
	t.Parallel()

	b := queue.NewMemoryBroker()
	q, err := queue.NewQueue("math", b)
	require.NoError(t, err)
	q.MustRegister(queue.NewHandler("always_fails", func(ctx context.Context, job *queue.JobContext, payload doublePayload) (any, error) {
		return nil, errors.New("upstream unavailable")
	}))

	w := newTestWorker(t, q)

	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Stop() })

	job, err := q.Enqueue(ctx, "always_fails", doublePayload{}, queue.WithMaxAttempts(1))
	require.NoError(t, err)

	stored := waitForStatus(t, b, "math", job, queue.StatusFailed)
	assert.Equal(t, int8(1), stored.Attempts)
	require.NotNil(t, stored.Error)
	assert.Contains(t, *stored.Error, "upstream unavailable")
}

func TestWorker_FailedJobIsDelayedForRetry(t *testing.T) {
	t.Parallel()

	b := queue.NewMemoryBroker()
	q, err := queue.NewQueue("math", b)
	require.NoError(t, err)
	q.MustRegister(queue.NewHandler("always_fails", func(ctx context.Context, job *queue.JobContext, payload doublePayload) (any, error) {
		return nil, errors.New("upstream unavailable")
	}))

	w := newTestWorker(t, q)

	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Stop() })

	job, err := q.Enqueue(ctx, "always_fails", doublePayload{})
	require.NoError(t, err)

	stored := waitForStatus(t, b, "math", job, queue.StatusDelayed)
	assert.Equal(t, int8(1), stored.Attempts)
	assert.True(t, stored.ReadyAt.After(time.Now()), "retry is scheduled with a backoff")
}

func TestWorker_PanicIsTreatedAsFailure(t *testing.T) {
	t.Parallel()

	b := queue.NewMemoryBroker()
	q, err := queue.NewQueue("math", b)
	require.NoError(t, err)
	q.MustRegister(queue.NewHandler("panics", func(ctx context.Context, job *queue.JobContext, payload doublePayload) (any, error) {
		panic("nil map write")
	}))

	w := newTestWorker(t, q)

	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Stop() })

	job, err := q.Enqueue(ctx, "panics", doublePayload{}, queue.WithMaxAttempts(1))
	require.NoError(t, err)

	stored := waitForStatus(t, b, "math", job, queue.StatusFailed)
	require.NotNil(t, stored.Error)
	assert.Contains(t, *stored.Error, "panic")
}

func TestWorker_MissingHandlerFailsAttempt(t *testing.T) {
	t.Parallel()

	b := queue.NewMemoryBroker()
	q, err := queue.NewQueue("math", b)
	require.NoError(t, err)
	q.MustRegister(queue.NewHandler("known", func(ctx context.Context, job *queue.JobContext, payload doublePayload) (any, error) {
		return nil, nil
	}))

	w := newTestWorker(t, q)

	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Stop() })

	job, err := q.Enqueue(ctx, "unknown", nil, queue.WithMaxAttempts(1))
	require.NoError(t, err)

	stored := waitForStatus(t, b, "math", job, queue.StatusFailed)
	require.NotNil(t, stored.Error)
	assert.Contains(t, *stored.Error, "no handler registered")
}

func TestWorker_ProgressIsRecorded(t *testing.T) {
	t.Parallel()

	b := queue.NewMemoryBroker()
	q, err := queue.NewQueue("math", b)
	require.NoError(t, err)
	q.MustRegister(queue.NewHandler("steps", func(ctx context.Context, job *queue.JobContext, payload doublePayload) (any, error) {
		if err := job.Progress(ctx, 50); err != nil {
			return nil, err
		}
		return nil, nil
	}))

	w := newTestWorker(t, q)

	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Stop() })

	job, err := q.Enqueue(ctx, "steps", doublePayload{})
	require.NoError(t, err)

	stored := waitForStatus(t, b, "math", job, queue.StatusCompleted)
	assert.Equal(t, 50, stored.Progress)
}

func TestWorker_ServesMultipleQueues(t *testing.T) {
	t.Parallel()

	b := queue.NewMemoryBroker()

	emails, err := queue.NewQueue("emails", b)
	require.NoError(t, err)
	emails.MustRegister(queue.NewHandler("send", func(ctx context.Context, job *queue.JobContext, payload doublePayload) (any, error) {
		return nil, nil
	}))

	users, err := queue.NewQueue("users", b)
	require.NoError(t, err)
	users.MustRegister(queue.NewHandler("activate", func(ctx context.Context, job *queue.JobContext, payload doublePayload) (any, error) {
		return nil, nil
	}))

	w := newTestWorker(t, emails, users)

	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Stop() })

	emailJob, err := emails.Enqueue(ctx, "send", doublePayload{})
	require.NoError(t, err)
	userJob, err := users.Enqueue(ctx, "activate", doublePayload{})
	require.NoError(t, err)

	waitForStatus(t, b, "emails", emailJob, queue.StatusCompleted)
	waitForStatus(t, b, "users", userJob, queue.StatusCompleted)
}

// ctxStrictBroker rejects terminal signals sent over a cancelled
// context, the way a network-backed broker would.
type ctxStrictBroker struct {
	*queue.MemoryBroker
}

func (b *ctxStrictBroker) Complete(ctx context.Context, queueName string, jobID uuid.UUID, result json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	return b.MemoryBroker.Complete(ctx, queueName, jobID, result)
}

func (b *ctxStrictBroker) Fail(ctx context.Context, queueName string, jobID uuid.UUID, reason string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("fail: %w", err)
	}
	return b.MemoryBroker.Fail(ctx, queueName, jobID, reason)
}

func TestWorker_JobFinishingDuringStopStillCompletes(t *testing.T) {
	t.Parallel()

	b := &ctxStrictBroker{MemoryBroker: queue.NewMemoryBroker()}
	q, err := queue.NewQueue("math", b)
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	q.MustRegister(queue.NewHandler("slow_double", func(ctx context.Context, job *queue.JobContext, payload doublePayload) (any, error) {
		close(started)
		<-release
		return doubleResult{Doubled: payload.Value * 2}, nil
	}))

	w := newTestWorker(t, q)

	ctx := context.Background()
	require.NoError(t, w.Start(ctx))

	job, err := q.Enqueue(ctx, "slow_double", doublePayload{Value: 21})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job was never claimed")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- w.Stop() }()

	// Let Stop cancel the worker context before the handler returns, so
	// the completion signal is sent while the worker is draining.
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	stored, ok := b.Job("math", job.ID)
	require.True(t, ok)
	assert.Equal(t, queue.StatusCompleted, stored.Status)
	assert.JSONEq(t, `{"doubled":42}`, string(stored.Result))
}

func TestWorker_Lifecycle(t *testing.T) {
	t.Parallel()

	t.Run("start without queues", func(t *testing.T) {
		t.Parallel()

		w := queue.NewWorker()
		assert.ErrorIs(t, w.Start(context.Background()), queue.ErrNoHandlers)
	})

	t.Run("double start rejected", func(t *testing.T) {
		t.Parallel()

		q, err := queue.NewQueue("q", queue.NewMemoryBroker())
		require.NoError(t, err)
		w := newTestWorker(t, q)

		require.NoError(t, w.Start(context.Background()))
		t.Cleanup(func() { _ = w.Stop() })

		assert.Error(t, w.Start(context.Background()))
	})

	t.Run("stop before start rejected", func(t *testing.T) {
		t.Parallel()

		w := queue.NewWorker()
		assert.Error(t, w.Stop())
	})

	t.Run("run stops on context cancellation", func(t *testing.T) {
		t.Parallel()

		q, err := queue.NewQueue("q", queue.NewMemoryBroker())
		require.NoError(t, err)
		w := newTestWorker(t, q)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Run(ctx)() }()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not stop after context cancellation")
		}
	})
}
