package assets_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/stagehand/internal/assets"
)

type mockS3 struct {
	calls      []*s3.DeleteObjectsInput
	deleteFunc func(*s3.DeleteObjectsInput) (*s3.DeleteObjectsOutput, error)
}

func (m *mockS3) DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	m.calls = append(m.calls, params)
	if m.deleteFunc != nil {
		return m.deleteFunc(params)
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func TestNewStore(t *testing.T) {
	t.Parallel()

	t.Run("nil client", func(t *testing.T) {
		t.Parallel()

		store, err := assets.NewStore(nil, "uploads")
		assert.ErrorIs(t, err, assets.ErrClientNil)
		assert.Nil(t, store)
	})

	t.Run("empty bucket", func(t *testing.T) {
		t.Parallel()

		store, err := assets.NewStore(&mockS3{}, "")
		assert.ErrorIs(t, err, assets.ErrBucketEmpty)
		assert.Nil(t, store)
	})
}

func TestStore_DeletePaths(t *testing.T) {
	t.Parallel()

	t.Run("deletes the given keys", func(t *testing.T) {
		t.Parallel()

		client := &mockS3{}
		store, err := assets.NewStore(client, "uploads")
		require.NoError(t, err)

		require.NoError(t, store.DeletePaths(context.Background(), []string{"avatar/u1.png", "cover/u1.jpg"}))
		require.Len(t, client.calls, 1)
		assert.Equal(t, "uploads", aws.ToString(client.calls[0].Bucket))
		require.Len(t, client.calls[0].Delete.Objects, 2)
		assert.Equal(t, "avatar/u1.png", aws.ToString(client.calls[0].Delete.Objects[0].Key))
	})

	t.Run("empty input is a no-op", func(t *testing.T) {
		t.Parallel()

		client := &mockS3{}
		store, err := assets.NewStore(client, "uploads")
		require.NoError(t, err)

		require.NoError(t, store.DeletePaths(context.Background(), nil))
		assert.Empty(t, client.calls)
	})

	t.Run("blank paths are skipped", func(t *testing.T) {
		t.Parallel()

		client := &mockS3{}
		store, err := assets.NewStore(client, "uploads")
		require.NoError(t, err)

		require.NoError(t, store.DeletePaths(context.Background(), []string{"", ""}))
		assert.Empty(t, client.calls)
	})

	t.Run("batches above the api limit", func(t *testing.T) {
		t.Parallel()

		client := &mockS3{}
		store, err := assets.NewStore(client, "uploads")
		require.NoError(t, err)

		paths := make([]string, 1500)
		for i := range paths {
			paths[i] = "p"
		}
		require.NoError(t, store.DeletePaths(context.Background(), paths))
		require.Len(t, client.calls, 2)
		assert.Len(t, client.calls[0].Delete.Objects, 1000)
		assert.Len(t, client.calls[1].Delete.Objects, 500)
	})

	t.Run("transport error surfaces", func(t *testing.T) {
		t.Parallel()

		s3Err := errors.New("connection reset")
		client := &mockS3{deleteFunc: func(*s3.DeleteObjectsInput) (*s3.DeleteObjectsOutput, error) {
			return nil, s3Err
		}}
		store, err := assets.NewStore(client, "uploads")
		require.NoError(t, err)

		err = store.DeletePaths(context.Background(), []string{"a"})
		assert.ErrorIs(t, err, s3Err)
	})

	t.Run("rejected deletions fail the call", func(t *testing.T) {
		t.Parallel()

		client := &mockS3{deleteFunc: func(*s3.DeleteObjectsInput) (*s3.DeleteObjectsOutput, error) {
			return &s3.DeleteObjectsOutput{Errors: []types.Error{{
				Key:     aws.String("a"),
				Message: aws.String("access denied"),
			}}}, nil
		}}
		store, err := assets.NewStore(client, "uploads")
		require.NoError(t, err)

		err = store.DeletePaths(context.Background(), []string{"a"})
		assert.ErrorIs(t, err, assets.ErrPartialDelete)
	})
}
