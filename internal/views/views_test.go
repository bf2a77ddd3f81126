package views_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/stagehand/internal/views"
)

type mockDB struct {
	mu       sync.Mutex
	execFunc func(sql string) error
	queries  []string
	inFlight int
	peak     int
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.mu.Lock()
	m.queries = append(m.queries, sql)
	m.inFlight++
	if m.inFlight > m.peak {
		m.peak = m.inFlight
	}
	fn := m.execFunc
	m.mu.Unlock()

	var err error
	if fn != nil {
		err = fn(sql)
	}

	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()
	return pgconn.CommandTag{}, err
}

func TestRefresher_Refresh(t *testing.T) {
	t.Parallel()

	t.Run("issues concurrent refresh statement", func(t *testing.T) {
		t.Parallel()

		db := &mockDB{}
		r, err := views.NewRefresher(db)
		require.NoError(t, err)

		require.NoError(t, r.Refresh(context.Background(), views.ViewTagCount))
		require.Len(t, db.queries, 1)
		assert.Equal(t, "REFRESH MATERIALIZED VIEW CONCURRENTLY tag_count_materialized", db.queries[0])
	})

	t.Run("unknown view rejected", func(t *testing.T) {
		t.Parallel()

		r, err := views.NewRefresher(&mockDB{})
		require.NoError(t, err)

		err = r.Refresh(context.Background(), "users; DROP TABLE users")
		assert.ErrorIs(t, err, views.ErrUnknownView)
	})

	t.Run("database error surfaces", func(t *testing.T) {
		t.Parallel()

		dbErr := errors.New("deadlock detected")
		r, err := views.NewRefresher(&mockDB{execFunc: func(string) error { return dbErr }})
		require.NoError(t, err)

		err = r.Refresh(context.Background(), views.ViewArticleCount)
		assert.ErrorIs(t, err, dbErr)
	})

	t.Run("same view never refreshes concurrently", func(t *testing.T) {
		t.Parallel()

		db := &mockDB{execFunc: func(string) error {
			time.Sleep(20 * time.Millisecond)
			return nil
		}}
		r, err := views.NewRefresher(db)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = r.Refresh(context.Background(), views.ViewArticleActivity)
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, db.peak)
		assert.Len(t, db.queries, 4)
	})

	t.Run("different views refresh in parallel", func(t *testing.T) {
		t.Parallel()

		started := make(chan struct{}, 2)
		release := make(chan struct{})
		db := &mockDB{execFunc: func(string) error {
			started <- struct{}{}
			<-release
			return nil
		}}
		r, err := views.NewRefresher(db)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); _ = r.Refresh(context.Background(), views.ViewArticleActivity) }()
		go func() { defer wg.Done(); _ = r.Refresh(context.Background(), views.ViewUserReader) }()

		for range 2 {
			select {
			case <-started:
			case <-time.After(time.Second):
				t.Fatal("refreshes did not run in parallel")
			}
		}
		close(release)
		wg.Wait()
	})

	t.Run("nil db", func(t *testing.T) {
		t.Parallel()

		r, err := views.NewRefresher(nil)
		assert.ErrorIs(t, err, views.ErrDBNil)
		assert.Nil(t, r)
	})
}

func TestView_Valid(t *testing.T) {
	t.Parallel()

	for _, v := range views.All() {
		assert.True(t, v.Valid(), v)
	}
	assert.False(t, views.View("comments").Valid())
}
