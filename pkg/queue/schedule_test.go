package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/stagehand/pkg/queue"
)

func TestEveryInterval(t *testing.T) {
	t.Parallel()

	t.Run("next adds the period", func(t *testing.T) {
		t.Parallel()

		s := queue.EveryInterval(20 * time.Minute)
		from := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
		assert.Equal(t, from.Add(20*time.Minute), s.Next(from))
	})

	t.Run("minutes and hours helpers", func(t *testing.T) {
		t.Parallel()

		from := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
		assert.Equal(t, from.Add(2*time.Minute), queue.EveryMinutes(2).Next(from))
		assert.Equal(t, from.Add(3*time.Hour), queue.EveryHours(3).Next(from))
	})

	t.Run("string is stable", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, "every 20m0s", queue.EveryMinutes(20).String())
		assert.Equal(t, queue.EveryMinutes(66).String(), queue.EveryInterval(66*time.Minute).String())
	})
}

func TestDailyAt(t *testing.T) {
	t.Parallel()

	hongKong := time.FixedZone("HKT", 8*60*60)

	t.Run("same day when wall clock not reached", func(t *testing.T) {
		t.Parallel()

		s := queue.DailyAt(3, 0, hongKong)
		from := time.Date(2026, 1, 2, 1, 30, 0, 0, hongKong)
		next := s.Next(from)
		require.Equal(t, time.Date(2026, 1, 2, 3, 0, 0, 0, hongKong).Unix(), next.Unix())
	})

	t.Run("next day when wall clock passed", func(t *testing.T) {
		t.Parallel()

		s := queue.DailyAt(3, 0, hongKong)
		from := time.Date(2026, 1, 2, 4, 0, 0, 0, hongKong)
		next := s.Next(from)
		require.Equal(t, time.Date(2026, 1, 3, 3, 0, 0, 0, hongKong).Unix(), next.Unix())
	})

	t.Run("occurrence pinned to location not server zone", func(t *testing.T) {
		t.Parallel()

		s := queue.DailyAt(9, 0, hongKong)
		from := time.Date(2026, 1, 2, 0, 30, 0, 0, time.UTC) // 08:30 HKT
		next := s.Next(from)
		assert.Equal(t, time.Date(2026, 1, 2, 9, 0, 0, 0, hongKong).Unix(), next.Unix())
	})

	t.Run("nil location defaults to UTC", func(t *testing.T) {
		t.Parallel()

		s := queue.DailyAt(0, 0, nil)
		from := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC).Unix(), s.Next(from).Unix())
	})

	t.Run("exact occurrence rolls to next day", func(t *testing.T) {
		t.Parallel()

		s := queue.DailyAt(3, 0, hongKong)
		from := time.Date(2026, 1, 2, 3, 0, 0, 0, hongKong)
		assert.Equal(t, time.Date(2026, 1, 3, 3, 0, 0, 0, hongKong).Unix(), s.Next(from).Unix())
	})
}
