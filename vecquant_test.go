package vecquant

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecquant/artifact"
	"github.com/hupe1980/vecquant/distance"
	"github.com/hupe1980/vecquant/storage"
)

// clusteredVectors generates perAnchor noisy copies of each anchor, so
// nearest-neighbor structure is known in advance.
func clusteredVectors(r *rand.Rand, anchors [][]float32, perAnchor int, noise float32) [][]float32 {
	out := make([][]float32, 0, len(anchors)*perAnchor)
	for _, a := range anchors {
		for i := 0; i < perAnchor; i++ {
			v := make([]float32, len(a))
			for d := range v {
				v[d] = a[d] + (r.Float32()*2-1)*noise
			}
			out = append(out, v)
		}
	}
	return out
}

func randomAnchors(r *rand.Rand, n, dim int, scale float32) [][]float32 {
	anchors := make([][]float32, n)
	for i := range anchors {
		a := make([]float32, dim)
		for d := range a {
			a[d] = (r.Float32()*2 - 1) * scale
		}
		anchors[i] = a
	}
	return anchors
}

func TestIndexTrainAddSearch(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(7))

	const dim = 16
	anchors := randomAnchors(r, 4, dim, 10)
	vectors := clusteredVectors(r, anchors, 50, 0.1)

	idx, err := Scalar(dim).SquaredL2().Build(WithSeed(7))
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Train(ctx, vectors))
	require.NotNil(t, idx.Codebook())

	first, err := idx.Add(ctx, vectors)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), first)
	assert.Equal(t, len(vectors), idx.Len())

	// A query sitting on an anchor must find members of its own cluster.
	results, err := idx.Search(ctx, anchors[2], 10)
	require.NoError(t, err)
	require.Len(t, results, 10)

	for i := 1; i < len(results); i++ {
		assert.False(t, idx.Metric().Better(results[i].Score, results[i-1].Score),
			"results must be ordered best first")
	}

	clusterLo, clusterHi := uint32(2*50), uint32(3*50)
	for _, res := range results {
		assert.GreaterOrEqual(t, res.Ordinal, clusterLo)
		assert.Less(t, res.Ordinal, clusterHi)
	}
}

func TestIndexRecall(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(42))

	const dim = 32
	const n = 500
	vectors := make([][]float32, n)
	for i := range vectors {
		v := make([]float32, dim)
		for d := range v {
			v[d] = r.Float32()*2 - 1
		}
		vectors[i] = v
	}

	idx, err := Scalar(dim).SquaredL2().Build()
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Train(ctx, vectors))
	_, err = idx.Add(ctx, vectors)
	require.NoError(t, err)

	const k = 10
	const queries = 20

	hits, total := 0, 0
	for qi := 0; qi < queries; qi++ {
		query := vectors[r.Intn(n)]

		exact := make([]uint32, n)
		for i := range exact {
			exact[i] = uint32(i)
		}
		dists := make([]float32, n)
		for i, v := range vectors {
			dists[i] = distance.SquaredL2(query, v)
		}
		for i := 0; i < k; i++ {
			best := i
			for j := i + 1; j < n; j++ {
				if dists[exact[j]] < dists[exact[best]] {
					best = j
				}
			}
			exact[i], exact[best] = exact[best], exact[i]
		}
		truth := make(map[uint32]bool, k)
		for _, o := range exact[:k] {
			truth[o] = true
		}

		results, err := idx.Search(ctx, query, k)
		require.NoError(t, err)

		for _, res := range results {
			if truth[res.Ordinal] {
				hits++
			}
		}
		total += k
	}

	recall := float64(hits) / float64(total)
	assert.GreaterOrEqual(t, recall, 0.8, "8-bit scalar recall@10 should stay high")
}

func TestIndexUntrained(t *testing.T) {
	ctx := context.Background()

	idx, err := Scalar(8).Build()
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.Add(ctx, [][]float32{make([]float32, 8)})
	require.ErrorIs(t, err, ErrNotTrained)

	_, err = idx.Search(ctx, make([]float32, 8), 5)
	require.ErrorIs(t, err, ErrNotTrained)

	_, err = idx.Decode(0)
	require.ErrorIs(t, err, ErrNotTrained)

	require.ErrorIs(t, idx.SaveCodes(ctx, "unused"), ErrNotTrained)
	require.ErrorIs(t, idx.SaveCodebook(ctx, "unused", artifact.CompressionNone), ErrNotTrained)

	assert.Equal(t, 0, idx.Len())
}

func TestIndexDimensionMismatch(t *testing.T) {
	ctx := context.Background()

	idx, err := Scalar(4).Build()
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Train(ctx, [][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}}))

	_, err = idx.Add(ctx, [][]float32{{1, 2, 3}})
	var dm *ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 4, dm.Expected)
	assert.Equal(t, 3, dm.Actual)
}

func TestIndexRetire(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(3))

	const dim = 8
	vectors := clusteredVectors(r, randomAnchors(r, 2, dim, 5), 20, 0.05)

	idx, err := Scalar(dim).Build()
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Train(ctx, vectors))
	_, err = idx.Add(ctx, vectors)
	require.NoError(t, err)

	results, err := idx.Search(ctx, vectors[0], 5)
	require.NoError(t, err)
	top := results[0].Ordinal

	idx.Retire(top)
	assert.True(t, idx.Retired(top))

	results, err = idx.Search(ctx, vectors[0], 5)
	require.NoError(t, err)
	for _, res := range results {
		assert.NotEqual(t, top, res.Ordinal)
	}
}

func TestIndexRetrainResetsStorage(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(11))

	const dim = 8
	vectors := clusteredVectors(r, randomAnchors(r, 2, dim, 5), 10, 0.1)

	idx, err := Scalar(dim).Build()
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Train(ctx, vectors))
	_, err = idx.Add(ctx, vectors)
	require.NoError(t, err)
	require.Equal(t, len(vectors), idx.Len())
	idx.Retire(0)

	require.NoError(t, idx.Train(ctx, vectors))
	assert.Equal(t, 0, idx.Len(), "retraining must discard stored codes")
	assert.False(t, idx.Retired(0), "retraining must reset the retired set")
}

func TestIndexSearchSnapshotSurvivesRetrain(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(17))

	const dim = 8
	vectors := clusteredVectors(r, randomAnchors(r, 2, dim, 5), 10, 0.1)

	idx, err := Scalar(dim).Build()
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Train(ctx, vectors))
	_, err = idx.Add(ctx, vectors)
	require.NoError(t, err)

	// Snapshot the codebook and codes the way an in-flight search does.
	idx.mu.RLock()
	cb, store := idx.codebook, idx.store
	idx.mu.RUnlock()

	// Retraining swaps in fresh storage and closes the old generation.
	require.NoError(t, idx.Train(ctx, vectors))
	require.Equal(t, 0, idx.Len())

	// The snapshot must still see every code it held at capture time.
	s, err := NewSearcher(cb, idx.Metric(), store)
	require.NoError(t, err)
	results, err := s.Search(ctx, vectors[3], 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Less(t, results[0].Ordinal, uint32(10), "best hit must come from the query's cluster")
}

func TestIndexTrainFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(5))

	const dim = 8
	vectors := clusteredVectors(r, randomAnchors(r, 2, dim, 5), 10, 0.1)

	idx, err := Scalar(dim).Build()
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Train(ctx, vectors))
	_, err = idx.Add(ctx, vectors)
	require.NoError(t, err)

	before := idx.Len()
	cb := idx.Codebook()

	require.Error(t, idx.Train(ctx, nil), "empty sample must fail")

	assert.Equal(t, before, idx.Len())
	assert.Same(t, cb, idx.Codebook())
}

func TestIndexDecode(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(9))

	const dim = 16
	vectors := clusteredVectors(r, randomAnchors(r, 3, dim, 5), 30, 0.2)

	idx, err := Scalar(dim).Build()
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Train(ctx, vectors))
	first, err := idx.Add(ctx, vectors)
	require.NoError(t, err)

	decoded, err := idx.Decode(first + 7)
	require.NoError(t, err)
	require.Len(t, decoded, dim)

	for d := range decoded {
		assert.InDelta(t, vectors[7][d], decoded[d], 0.2)
	}
}

func TestIndexProductScheme(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(21))

	const dim = 16
	anchors := randomAnchors(r, 3, dim, 10)
	vectors := clusteredVectors(r, anchors, 40, 0.1)

	idx, err := Product(dim, 4).Centroids(16).Build(WithSeed(21))
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Train(ctx, vectors))
	_, err = idx.Add(ctx, vectors)
	require.NoError(t, err)

	results, err := idx.Search(ctx, anchors[1], 5)
	require.NoError(t, err)
	require.Len(t, results, 5)

	clusterLo, clusterHi := uint32(40), uint32(80)
	for _, res := range results {
		assert.GreaterOrEqual(t, res.Ordinal, clusterLo)
		assert.Less(t, res.Ordinal, clusterHi)
	}
}

func TestIndexBinaryScheme(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(13))

	const dim = 64
	anchors := randomAnchors(r, 2, dim, 1)
	vectors := clusteredVectors(r, anchors, 30, 0.05)

	idx, err := Binary(dim).FixedThreshold(0).Build()
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Train(ctx, vectors))
	_, err = idx.Add(ctx, vectors)
	require.NoError(t, err)

	results, err := idx.Search(ctx, anchors[0], 5)
	require.NoError(t, err)
	require.Len(t, results, 5)

	for _, res := range results {
		assert.Less(t, res.Ordinal, uint32(30), "hits must come from the query's cluster")
	}
}

func TestIndexSaveAndServe(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(17))

	const dim = 8
	vectors := clusteredVectors(r, randomAnchors(r, 2, dim, 5), 25, 0.1)

	idx, err := Scalar(dim).Build()
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Train(ctx, vectors))
	_, err = idx.Add(ctx, vectors)
	require.NoError(t, err)

	dir := t.TempDir()
	cbPath := filepath.Join(dir, "test.vqcb")
	codesPath := filepath.Join(dir, "test.vqcs")

	require.NoError(t, idx.SaveCodebook(ctx, cbPath, artifact.CompressionZSTD))
	require.NoError(t, idx.SaveCodes(ctx, codesPath))

	cb, err := artifact.LoadFromFile(cbPath)
	require.NoError(t, err)

	codes, err := storage.Open(codesPath)
	require.NoError(t, err)
	defer codes.Close()
	require.Equal(t, idx.Len(), codes.Len())

	s, err := NewSearcher(cb, distance.MetricL2, codes)
	require.NoError(t, err)

	want, err := idx.Search(ctx, vectors[3], 5)
	require.NoError(t, err)
	got, err := s.Search(ctx, vectors[3], 5)
	require.NoError(t, err)

	assert.Equal(t, want, got, "file-served search must match in-memory search")
}

func TestIndexMetricsCollection(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(23))

	const dim = 8
	vectors := clusteredVectors(r, randomAnchors(r, 2, dim, 5), 10, 0.1)

	mc := &BasicMetricsCollector{}
	idx, err := Scalar(dim).Build(WithMetricsCollector(mc))
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Train(ctx, vectors))
	_, err = idx.Add(ctx, vectors)
	require.NoError(t, err)
	_, err = idx.Search(ctx, vectors[0], 3)
	require.NoError(t, err)

	stats := mc.GetStats()
	assert.Equal(t, int64(1), stats.TrainCount)
	assert.Equal(t, int64(0), stats.TrainErrors)
	assert.Equal(t, int64(1), stats.EncodeCount)
	assert.Equal(t, int64(len(vectors)), stats.EncodeItems)
	assert.Equal(t, int64(1), stats.SearchCount)
}

func TestBasicMetricsCollectorAverages(t *testing.T) {
	mc := &BasicMetricsCollector{}
	mc.RecordEncode(10, 40*time.Millisecond, nil)
	mc.RecordEncode(5, 20*time.Millisecond, nil)

	stats := mc.GetStats()
	assert.Equal(t, int64(2), stats.EncodeCount)
	assert.Equal(t, int64(15), stats.EncodeItems)
	assert.Equal(t, (30 * time.Millisecond).Nanoseconds(), stats.EncodeAvgNanos)
}

func TestIndexTrainingSampleSize(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(31))

	const dim = 8
	vectors := clusteredVectors(r, randomAnchors(r, 2, dim, 5), 100, 0.1)

	idx, err := Scalar(dim).Build(WithTrainingSampleSize(50), WithSeed(31))
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Train(ctx, vectors))

	// The sampled codebook must still encode the full set.
	_, err = idx.Add(ctx, vectors)
	require.NoError(t, err)
	assert.Equal(t, len(vectors), idx.Len())
}
