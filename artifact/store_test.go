package artifact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecquant/resource"
)

func testStoreRoundtrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Open(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	w, err := store.Create(ctx, "codebooks/v1")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	b, err := store.Open(ctx, "codebooks/v1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), b.Size())

	buf := make([]byte, 5)
	n, err := b.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
	require.NoError(t, b.Close())

	names, err := store.List(ctx, "codebooks/")
	require.NoError(t, err)
	assert.Equal(t, []string{"codebooks/v1"}, names)

	require.NoError(t, store.Delete(ctx, "codebooks/v1"))
	require.NoError(t, store.Delete(ctx, "codebooks/v1")) // idempotent
	_, err = store.Open(ctx, "codebooks/v1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore(t *testing.T) {
	testStoreRoundtrip(t, NewLocalStore(t.TempDir()))
}

func TestMemoryStore(t *testing.T) {
	testStoreRoundtrip(t, NewMemoryStore())
}

func TestPublisherCodebookRoundtrip(t *testing.T) {
	cb := trainTestCodebook(t)
	ctx := context.Background()

	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 20})
	pub := NewPublisher(NewMemoryStore(),
		WithCompression(CompressionLZ4),
		WithResourceController(rc),
	)

	require.NoError(t, pub.PublishCodebook(ctx, "codebooks/v1", cb))

	got, err := pub.FetchCodebook(ctx, "codebooks/v1")
	require.NoError(t, err)
	assert.Equal(t, cb.Scheme(), got.Scheme())
	assert.Equal(t, cb.Dimension(), got.Dimension())

	_, err = pub.FetchCodebook(ctx, "codebooks/v2")
	require.ErrorIs(t, err, ErrNotFound)
}
