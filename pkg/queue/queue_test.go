package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/stagehand/pkg/queue"
)

type emailPayload struct {
	UserID string `json:"user_id"`
}

func TestNewQueue(t *testing.T) {
	t.Parallel()

	t.Run("successful creation", func(t *testing.T) {
		t.Parallel()

		q, err := queue.NewQueue("emails", queue.NewMemoryBroker())
		require.NoError(t, err)
		require.NotNil(t, q)
		assert.Equal(t, "emails", q.Name())
	})

	t.Run("empty name", func(t *testing.T) {
		t.Parallel()

		q, err := queue.NewQueue("", queue.NewMemoryBroker())
		assert.ErrorIs(t, err, queue.ErrQueueNameEmpty)
		assert.Nil(t, q)
	})

	t.Run("nil broker", func(t *testing.T) {
		t.Parallel()

		q, err := queue.NewQueue("emails", nil)
		assert.ErrorIs(t, err, queue.ErrBrokerNil)
		assert.Nil(t, q)
	})
}

func TestQueue_Enqueue(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		b := queue.NewMemoryBroker()
		q, err := queue.NewQueue("emails", b)
		require.NoError(t, err)

		job, err := q.Enqueue(context.Background(), "send_email", emailPayload{UserID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, "emails", job.Queue)
		assert.Equal(t, "send_email", job.Type)
		assert.Equal(t, queue.StatusWaiting, job.Status)
		assert.Equal(t, queue.PriorityNormal, job.Priority)
		assert.Equal(t, queue.DefaultMaxAttempts, job.MaxAttempts)
		assert.JSONEq(t, `{"user_id":"u1"}`, string(job.Payload))
	})

	t.Run("empty type", func(t *testing.T) {
		t.Parallel()

		q, err := queue.NewQueue("emails", queue.NewMemoryBroker())
		require.NoError(t, err)

		_, err = q.Enqueue(context.Background(), "", nil)
		assert.ErrorIs(t, err, queue.ErrJobTypeEmpty)
	})

	t.Run("invalid priority", func(t *testing.T) {
		t.Parallel()

		q, err := queue.NewQueue("emails", queue.NewMemoryBroker())
		require.NoError(t, err)

		_, err = q.Enqueue(context.Background(), "send_email", nil, queue.WithPriority(42))
		assert.ErrorIs(t, err, queue.ErrInvalidPriority)
	})

	t.Run("delay moves job to delayed", func(t *testing.T) {
		t.Parallel()

		q, err := queue.NewQueue("emails", queue.NewMemoryBroker())
		require.NoError(t, err)

		job, err := q.Enqueue(context.Background(), "send_email", nil, queue.WithDelay(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, queue.StatusDelayed, job.Status)
		assert.True(t, job.ReadyAt.After(time.Now().Add(59*time.Minute)))
	})

	t.Run("run at moves job to delayed", func(t *testing.T) {
		t.Parallel()

		q, err := queue.NewQueue("emails", queue.NewMemoryBroker())
		require.NoError(t, err)

		runAt := time.Now().Add(30 * time.Minute)
		job, err := q.Enqueue(context.Background(), "send_email", nil, queue.WithRunAt(runAt))
		require.NoError(t, err)
		assert.Equal(t, queue.StatusDelayed, job.Status)
		assert.Equal(t, runAt.Unix(), job.ReadyAt.Unix())
	})

	t.Run("max attempts override", func(t *testing.T) {
		t.Parallel()

		q, err := queue.NewQueue("emails", queue.NewMemoryBroker())
		require.NoError(t, err)

		job, err := q.Enqueue(context.Background(), "archive_user", nil, queue.WithMaxAttempts(1))
		require.NoError(t, err)
		assert.Equal(t, int8(1), job.MaxAttempts)
	})
}

func TestQueue_Register(t *testing.T) {
	t.Parallel()

	t.Run("duplicate type rejected", func(t *testing.T) {
		t.Parallel()

		q, err := queue.NewQueue("emails", queue.NewMemoryBroker())
		require.NoError(t, err)

		h := queue.NewHandler("send_email", func(ctx context.Context, job *queue.JobContext, payload emailPayload) (any, error) {
			return nil, nil
		})
		require.NoError(t, q.Register(h))
		assert.ErrorIs(t, q.Register(h), queue.ErrHandlerAlreadyRegistered)
	})

	t.Run("nil handler rejected", func(t *testing.T) {
		t.Parallel()

		q, err := queue.NewQueue("emails", queue.NewMemoryBroker())
		require.NoError(t, err)
		assert.ErrorIs(t, q.Register(nil), queue.ErrHandlerNil)
	})
}

func TestQueue_Start(t *testing.T) {
	t.Parallel()

	t.Run("purges leftover delayed jobs", func(t *testing.T) {
		t.Parallel()

		b := queue.NewMemoryBroker()
		q, err := queue.NewQueue("schedule", b)
		require.NoError(t, err)

		ctx := context.Background()
		_, err = q.Enqueue(ctx, "stale_retry", nil, queue.WithDelay(time.Hour))
		require.NoError(t, err)

		require.NoError(t, q.Start(ctx))

		delayed, err := b.ListDelayed(ctx, "schedule")
		require.NoError(t, err)
		assert.Empty(t, delayed)
	})

	t.Run("waiting jobs survive a restart", func(t *testing.T) {
		t.Parallel()

		b := queue.NewMemoryBroker()
		q, err := queue.NewQueue("schedule", b)
		require.NoError(t, err)

		ctx := context.Background()
		job, err := q.Enqueue(ctx, "publish_article", nil)
		require.NoError(t, err)

		require.NoError(t, q.Start(ctx))

		stored, ok := b.Job("schedule", job.ID)
		require.True(t, ok)
		assert.Equal(t, queue.StatusWaiting, stored.Status)
	})

	t.Run("registers recurring definitions", func(t *testing.T) {
		t.Parallel()

		b := queue.NewMemoryBroker()
		q, err := queue.NewQueue("schedule", b)
		require.NoError(t, err)
		require.NoError(t, q.Repeat(queue.RepeatDefinition{
			Type:     "refresh_view",
			Schedule: queue.EveryMinutes(2),
		}))

		ctx := context.Background()
		require.NoError(t, q.Start(ctx))

		delayed, err := b.ListDelayed(ctx, "schedule")
		require.NoError(t, err)
		require.Len(t, delayed, 1)
		assert.Equal(t, "refresh_view", delayed[0].Type)
	})

	t.Run("start is idempotent", func(t *testing.T) {
		t.Parallel()

		b := queue.NewMemoryBroker()
		q, err := queue.NewQueue("schedule", b)
		require.NoError(t, err)
		require.NoError(t, q.Repeat(queue.RepeatDefinition{
			Type:     "refresh_view",
			Schedule: queue.EveryMinutes(2),
		}))

		ctx := context.Background()
		require.NoError(t, q.Start(ctx))
		require.NoError(t, q.Start(ctx))

		delayed, err := b.ListDelayed(ctx, "schedule")
		require.NoError(t, err)
		assert.Len(t, delayed, 1)
	})

	t.Run("invalid recurring definition rejected up front", func(t *testing.T) {
		t.Parallel()

		q, err := queue.NewQueue("schedule", queue.NewMemoryBroker())
		require.NoError(t, err)

		err = q.Repeat(queue.RepeatDefinition{Type: "refresh_view"})
		assert.ErrorIs(t, err, queue.ErrScheduleNil)
	})
}
