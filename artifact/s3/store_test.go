package s3

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecquant/artifact"
)

func TestIntegration_S3Store(t *testing.T) {
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		t.Skip("Skipping S3 integration test: S3_BUCKET not set")
	}

	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx)
	require.NoError(t, err)

	client := s3.NewFromConfig(cfg)

	// Unique prefix per test run so concurrent runs don't collide.
	prefix := fmt.Sprintf("test-vecquant-%d/", time.Now().UnixNano())
	store := NewStore(client, bucket, prefix)

	t.Run("CreateAndRead", func(t *testing.T) {
		name := "codebook.vqar"
		data := make([]byte, 1<<20)
		_, _ = rand.New(rand.NewSource(1)).Read(data)

		w, err := store.Create(ctx, name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		blob, err := store.Open(ctx, name)
		require.NoError(t, err)
		defer func() { _ = blob.Close() }()

		assert.Equal(t, int64(len(data)), blob.Size())

		got := make([]byte, len(data))
		_, err = blob.ReadAt(ctx, got, 0)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(data, got))

		// Range read from the middle.
		part := make([]byte, 4096)
		_, err = blob.ReadAt(ctx, part, 512*1024)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(data[512*1024:512*1024+4096], part))

		require.NoError(t, store.Delete(ctx, name))
	})

	t.Run("OpenMissing", func(t *testing.T) {
		_, err := store.Open(ctx, "does-not-exist.vqar")
		require.ErrorIs(t, err, artifact.ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		for _, name := range []string{"v1/codebook.vqar", "v2/codebook.vqar"} {
			w, err := store.Create(ctx, name)
			require.NoError(t, err)
			_, err = w.Write([]byte("payload"))
			require.NoError(t, err)
			require.NoError(t, w.Close())
		}
		defer func() {
			_ = store.Delete(ctx, "v1/codebook.vqar")
			_ = store.Delete(ctx, "v2/codebook.vqar")
		}()

		names, err := store.List(ctx, "")
		require.NoError(t, err)
		assert.Contains(t, names, "v1/codebook.vqar")
		assert.Contains(t, names, "v2/codebook.vqar")
	})
}
