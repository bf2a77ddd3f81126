package notices_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/stagehand/internal/notices"
)

func TestService_Trigger(t *testing.T) {
	t.Parallel()

	t.Run("creates a notice", func(t *testing.T) {
		t.Parallel()

		storage := notices.NewMemoryStorage()
		svc, err := notices.NewService(storage)
		require.NoError(t, err)

		recipient := uuid.New()
		require.NoError(t, svc.Trigger(context.Background(), notices.CategoryUserUnbanned, recipient, nil))

		all := storage.All()
		require.Len(t, all, 1)
		assert.Equal(t, recipient, all[0].UserID)
		assert.Equal(t, notices.CategoryUserUnbanned, all[0].Category)
		assert.NotEqual(t, uuid.Nil, all[0].ID)
		assert.False(t, all[0].Read)
	})

	t.Run("rejects unknown category", func(t *testing.T) {
		t.Parallel()

		svc, err := notices.NewService(notices.NewMemoryStorage())
		require.NoError(t, err)

		err = svc.Trigger(context.Background(), "weekly_roundup", uuid.New(), nil)
		assert.ErrorIs(t, err, notices.ErrInvalidCategory)
	})

	t.Run("rejects empty recipient", func(t *testing.T) {
		t.Parallel()

		svc, err := notices.NewService(notices.NewMemoryStorage())
		require.NoError(t, err)

		err = svc.Trigger(context.Background(), notices.CategoryUserActivated, uuid.Nil, nil)
		assert.ErrorIs(t, err, notices.ErrInvalidRecipient)
	})

	t.Run("nil storage", func(t *testing.T) {
		t.Parallel()

		svc, err := notices.NewService(nil)
		assert.ErrorIs(t, err, notices.ErrStorageNil)
		assert.Nil(t, svc)
	})
}

func TestMemoryStorage_UnreadByUser(t *testing.T) {
	t.Parallel()

	storage := notices.NewMemoryStorage()
	ctx := context.Background()
	user := uuid.New()
	other := uuid.New()

	old := &notices.Notice{UserID: user, Category: notices.CategoryArticleNewComment, CreatedAt: time.Now().Add(-48 * time.Hour)}
	recent := &notices.Notice{UserID: user, Category: notices.CategoryUserNewFollower}
	read := &notices.Notice{UserID: user, Category: notices.CategoryCommentNewReply, Read: true}
	foreign := &notices.Notice{UserID: other, Category: notices.CategoryUserNewFollower}
	for _, n := range []*notices.Notice{old, recent, read, foreign} {
		require.NoError(t, storage.Create(ctx, n))
	}

	unread, err := storage.UnreadByUser(ctx, user, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, recent.ID, unread[0].ID)
}

func TestGroupByCategory(t *testing.T) {
	t.Parallel()

	list := []*notices.Notice{
		{Category: notices.CategoryUserNewFollower},
		{Category: notices.CategoryUserNewFollower},
		{Category: notices.CategoryCommentMentionedYou},
	}

	grouped := notices.GroupByCategory(list)
	assert.Len(t, grouped, 2)
	assert.Len(t, grouped[notices.CategoryUserNewFollower], 2)
	assert.Len(t, grouped[notices.CategoryCommentMentionedYou], 1)
	_, ok := grouped[notices.CategoryArticleNewComment]
	assert.False(t, ok)
}

func TestCategory(t *testing.T) {
	t.Parallel()

	assert.True(t, notices.CategoryArticleNewAppreciation.Valid())
	assert.False(t, notices.Category("weekly_roundup").Valid())

	assert.True(t, notices.CategoryArticleNewAppreciation.Digest())
	assert.False(t, notices.CategoryUserActivated.Digest())

	assert.Len(t, notices.DigestCategories, 8)
}
