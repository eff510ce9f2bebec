package vecquant

import (
	"container/heap"
	"context"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecquant/distance"
	"github.com/hupe1980/vecquant/quantization"
)

// CodeReader is the read side of code storage. Both the in-memory
// CodeStore and the mmap-backed FileStore satisfy it.
type CodeReader interface {
	// Read returns the code stored at ordinal.
	Read(ordinal uint32) ([]byte, error)

	// Len returns the number of stored codes.
	Len() int
}

// Result is a single search hit.
type Result struct {
	// Ordinal is the position of the code in storage.
	Ordinal uint32

	// Score is the approximate metric value between the query and the
	// stored code. Its direction follows the metric: lower is better for
	// squared L2, higher is better for dot and cosine.
	Score float32
}

// SearchOptions tunes a single search call.
type SearchOptions struct {
	// Oversampling multiplies the number of returned candidates so that a
	// caller holding raw vectors can re-rank exactly and keep the best k.
	// Defaults to 1 (no oversampling).
	Oversampling int

	// Candidates restricts scoring to the given ordinals instead of
	// scanning all stored codes. Useful when a coarse index has already
	// pre-selected a candidate set.
	Candidates []uint32
}

// SearchOption mutates SearchOptions.
type SearchOption func(*SearchOptions)

// WithOversampling sets the oversampling factor.
func WithOversampling(factor int) SearchOption {
	return func(o *SearchOptions) {
		if factor > 0 {
			o.Oversampling = factor
		}
	}
}

// WithCandidates restricts the search to the given ordinals.
func WithCandidates(ordinals []uint32) SearchOption {
	return func(o *SearchOptions) {
		o.Candidates = ordinals
	}
}

// Searcher scores queries against stored codes without decompressing
// them. It is a read-only view: the codebook, code reader and retired
// set are fixed at construction.
//
// A Searcher is safe for concurrent use; per-query scorer state is
// allocated inside Search.
type Searcher struct {
	codebook quantization.Codebook
	metric   distance.Metric
	codes    CodeReader
	retired  *roaring.Bitmap
}

// NewSearcher creates a Searcher over codes encoded by cb. This is the
// read path for serving searches from a code file without a full Index,
// for example over a FileStore opened from disk.
func NewSearcher(cb quantization.Codebook, metric distance.Metric, codes CodeReader) (*Searcher, error) {
	if cb == nil {
		return nil, ErrNotTrained
	}
	if !metric.Valid() {
		return nil, fmt.Errorf("invalid metric: %d", metric)
	}
	return &Searcher{codebook: cb, metric: metric, codes: codes}, nil
}

// searchCheckInterval is how many candidates are scored between context
// cancellation checks.
const searchCheckInterval = 512

// Search scores the query against the candidate set and returns up to
// k*oversampling results ordered best first. Retired ordinals are
// skipped. For cosine the query is normalized before scoring.
func (s *Searcher) Search(ctx context.Context, query []float32, k int, optFns ...SearchOption) ([]Result, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}

	opts := SearchOptions{Oversampling: 1}
	for _, fn := range optFns {
		if fn != nil {
			fn(&opts)
		}
	}

	q := query
	if s.metric == distance.MetricCosine {
		if normalized, ok := distance.NormalizeL2Copy(query); ok {
			q = normalized
		}
	}

	scorer, err := quantization.NewScorer(s.codebook, s.metric, q)
	if err != nil {
		return nil, translateError(err)
	}

	limit := k * opts.Oversampling
	h := &resultHeap{metric: s.metric}
	h.items = make([]Result, 0, limit)

	scanned := 0
	score := func(ordinal uint32) error {
		if scanned%searchCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		scanned++

		if s.retired != nil && s.retired.Contains(ordinal) {
			return nil
		}

		code, err := s.codes.Read(ordinal)
		if err != nil {
			return err
		}
		sc, err := scorer.Score(code)
		if err != nil {
			return err
		}

		if h.Len() < limit {
			heap.Push(h, Result{Ordinal: ordinal, Score: sc})
		} else if s.metric.Better(sc, h.items[0].Score) {
			h.items[0] = Result{Ordinal: ordinal, Score: sc}
			heap.Fix(h, 0)
		}
		return nil
	}

	if opts.Candidates != nil {
		for _, ordinal := range opts.Candidates {
			if err := score(ordinal); err != nil {
				return nil, err
			}
		}
	} else {
		n := s.codes.Len()
		for ordinal := 0; ordinal < n; ordinal++ {
			if err := score(uint32(ordinal)); err != nil {
				return nil, err
			}
		}
	}

	results := h.items
	sort.Slice(results, func(i, j int) bool {
		return s.metric.Better(results[i].Score, results[j].Score)
	})
	return results, nil
}

// resultHeap keeps the worst retained result at the root so it can be
// evicted in O(log n) when a better candidate arrives.
type resultHeap struct {
	items  []Result
	metric distance.Metric
}

func (h *resultHeap) Len() int { return len(h.items) }

func (h *resultHeap) Less(i, j int) bool {
	return h.metric.Better(h.items[j].Score, h.items[i].Score)
}

func (h *resultHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *resultHeap) Push(x any) { h.items = append(h.items, x.(Result)) }

func (h *resultHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
