package vecquant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecquant/artifact"
	"github.com/hupe1980/vecquant/distance"
	"github.com/hupe1980/vecquant/quantization"
	"github.com/hupe1980/vecquant/storage"
)

// Index is a quantized vector index: a trained codebook plus the
// fixed-stride code storage it encodes into. Train replaces the
// codebook and storage atomically; a failed training leaves the
// previous state untouched.
//
// All methods are safe for concurrent use. Searches run against a
// consistent snapshot of the codebook and codes taken at call time.
type Index struct {
	dimension int
	metric    distance.Metric
	trainOpts quantization.Options
	opts      options

	mu       sync.RWMutex
	codebook quantization.Codebook
	store    *storage.CodeStore
	retired  *roaring.Bitmap
}

func newIndex(dimension int, metric distance.Metric, trainOpts quantization.Options, optFns []Option) (*Index, error) {
	if dimension <= 0 {
		return nil, &ErrInvalidDimension{Dimension: dimension}
	}
	if !metric.Valid() {
		return nil, fmt.Errorf("invalid metric: %d", metric)
	}

	o := applyOptions(optFns)
	trainOpts.Seed = o.seed

	return &Index{
		dimension: dimension,
		metric:    metric,
		trainOpts: trainOpts,
		opts:      o,
		retired:   roaring.New(),
	}, nil
}

// Dimension returns the configured vector dimension.
func (x *Index) Dimension() int { return x.dimension }

// Metric returns the configured distance metric.
func (x *Index) Metric() distance.Metric { return x.metric }

// Len returns the number of stored codes, including retired ones.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.store == nil {
		return 0
	}
	return x.store.Len()
}

// Codebook returns the current codebook, or nil before training.
func (x *Index) Codebook() quantization.Codebook {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.codebook
}

// Train fits a codebook to the given vectors and swaps it in together
// with fresh, empty code storage. Previously stored codes belong to the
// old codebook and are discarded; re-add vectors after retraining.
//
// Non-convergence within the iteration budget is not an error: the
// codebook is usable with degraded accuracy and a warning is logged.
func (x *Index) Train(ctx context.Context, vectors [][]float32) error {
	start := time.Now()

	sample := vectors
	if x.opts.sampleSize > 0 && x.opts.sampleSize < len(vectors) {
		idx := quantization.SampleIndices(len(vectors), x.opts.sampleSize, x.opts.seed)
		sample = make([][]float32, len(idx))
		for i, j := range idx {
			sample[i] = vectors[j]
		}
	}

	cb, err := quantization.Train(ctx, sample, x.trainOpts)
	x.opts.metricsCollector.RecordTrain(time.Since(start), err)
	if err != nil {
		x.opts.logger.LogTrain(ctx, x.trainOpts.Scheme.String(), len(sample), false, err)
		return translateError(err)
	}
	x.opts.logger.LogTrain(ctx, cb.Scheme().String(), len(sample), cb.Converged(), nil)

	storeOpts := []storage.StoreOption{}
	if x.opts.controller != nil {
		storeOpts = append(storeOpts, storage.WithMemoryAcquirer(x.opts.controller))
	}
	store, err := storage.NewCodeStore(cb.CodeLen(), storeOpts...)
	if err != nil {
		return err
	}

	x.mu.Lock()
	old := x.store
	x.codebook = cb
	x.store = store
	x.retired = roaring.New()
	x.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// Add encodes vectors into code storage and returns the ordinal of the
// first; the batch occupies the contiguous range [first, first+n).
// Encoding runs across the configured worker count.
func (x *Index) Add(ctx context.Context, vectors [][]float32) (uint32, error) {
	start := time.Now()

	first, err := x.add(ctx, vectors)
	x.opts.metricsCollector.RecordEncode(len(vectors), time.Since(start), err)
	x.opts.logger.LogEncode(ctx, len(vectors), err)
	return first, translateError(err)
}

func (x *Index) add(ctx context.Context, vectors [][]float32) (uint32, error) {
	if len(vectors) == 0 {
		return 0, nil
	}

	x.mu.RLock()
	cb, store := x.codebook, x.store
	x.mu.RUnlock()
	if cb == nil {
		return 0, ErrNotTrained
	}

	first, err := store.Reserve(ctx, len(vectors))
	if err != nil {
		return 0, err
	}

	workers := x.opts.workers
	if workers > len(vectors) {
		workers = len(vectors)
	}
	shard := (len(vectors) + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * shard
		hi := lo + shard
		if hi > len(vectors) {
			hi = len(vectors)
		}
		if lo >= hi {
			break
		}

		g.Go(func() error {
			if x.opts.controller != nil {
				if err := x.opts.controller.AcquireWorker(gctx); err != nil {
					return err
				}
				defer x.opts.controller.ReleaseWorker()
			}

			code := make([]byte, cb.CodeLen())
			pq, isPQ := cb.(*quantization.ProductCodebook)
			var scratch []byte
			if isPQ {
				scratch = make([]byte, pq.Subspaces())
			}

			for i := lo; i < hi; i++ {
				if i%encodeBatchSize == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				var err error
				if isPQ {
					err = pq.EncodeInto(vectors[i], scratch, code)
				} else {
					err = cb.Encode(vectors[i], code)
				}
				if err != nil {
					return fmt.Errorf("encode vector %d: %w", i, err)
				}
				if err := store.Write(first+uint32(i), code); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return first, nil
}

const encodeBatchSize = 512

// Decode reconstructs an approximation of the vector stored at ordinal.
func (x *Index) Decode(ordinal uint32) ([]float32, error) {
	x.mu.RLock()
	cb, store := x.codebook, x.store
	x.mu.RUnlock()
	if cb == nil {
		return nil, ErrNotTrained
	}

	code, err := store.Read(ordinal)
	if err != nil {
		return nil, err
	}
	out := make([]float32, cb.Dimension())
	if err := cb.Decode(code, out); err != nil {
		return nil, translateError(err)
	}
	return out, nil
}

// Retire marks ordinals so searches skip them. Storage is not
// reclaimed; retraining starts over with empty storage.
func (x *Index) Retire(ordinals ...uint32) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, o := range ordinals {
		x.retired.Add(o)
	}
}

// Retired reports whether the ordinal has been retired.
func (x *Index) Retired(ordinal uint32) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.retired.Contains(ordinal)
}

// Search scores the query against stored codes and returns up to
// k*oversampling results, best first. See Searcher for the scan
// semantics.
func (x *Index) Search(ctx context.Context, query []float32, k int, optFns ...SearchOption) ([]Result, error) {
	start := time.Now()

	x.mu.RLock()
	cb, store := x.codebook, x.store
	retired := x.retired.Clone()
	x.mu.RUnlock()

	if cb == nil {
		err := ErrNotTrained
		x.opts.metricsCollector.RecordSearch(k, time.Since(start), err)
		return nil, err
	}

	s := &Searcher{
		codebook: cb,
		metric:   x.metric,
		codes:    store,
		retired:  retired,
	}
	results, err := s.Search(ctx, query, k, optFns...)

	x.opts.metricsCollector.RecordSearch(k, time.Since(start), err)
	x.opts.logger.LogSearch(ctx, k, len(results), err)
	return results, err
}

// SaveCodes writes the code storage to path atomically.
func (x *Index) SaveCodes(ctx context.Context, path string) error {
	x.mu.RLock()
	store := x.store
	x.mu.RUnlock()
	if store == nil {
		return ErrNotTrained
	}

	err := store.Save(path)
	x.opts.logger.LogPersist(ctx, path, err)
	return err
}

// SaveCodebook writes the codebook artifact to path atomically.
func (x *Index) SaveCodebook(ctx context.Context, path string, c artifact.Compression) error {
	x.mu.RLock()
	cb := x.codebook
	x.mu.RUnlock()
	if cb == nil {
		return ErrNotTrained
	}

	err := artifact.SaveToFile(path, cb, c)
	x.opts.logger.LogPersist(ctx, path, err)
	return err
}

// Close releases code storage memory.
func (x *Index) Close() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.store != nil {
		x.store.Close()
		x.store = nil
	}
	x.codebook = nil
}
