package quantization

import (
	"fmt"

	"github.com/hupe1980/vecquant/distance"
	"github.com/hupe1980/vecquant/internal/simd"
)

// Scorer scores stored codes against one prepared query without
// decoding candidates back to float32. A Scorer is scoped to a single
// query and is NOT safe for concurrent use; create one per query (or
// per worker) instead of sharing.
type Scorer interface {
	// Score returns the approximate distance or similarity between the
	// prepared query and the given code, in the metric's natural
	// direction (lower is better for L2, higher for Dot and Cosine).
	Score(code []byte) (float32, error)

	// ScoreBatch scores codes into out, which must have the same length.
	// It stops at the first invalid code.
	ScoreBatch(codes [][]byte, out []float32) error

	// Metric returns the metric the scorer was prepared for.
	Metric() distance.Metric

	// CodeLen returns the code length the scorer accepts.
	CodeLen() int
}

func scoreBatch(s Scorer, codes [][]byte, out []float32) error {
	if len(codes) != len(out) {
		return fmt.Errorf("%w: %d codes for %d outputs", ErrConfig, len(codes), len(out))
	}
	for i, code := range codes {
		sc, err := s.Score(code)
		if err != nil {
			return err
		}
		out[i] = sc
	}
	return nil
}

// NewScorer prepares a scorer for one query against the given codebook.
// Preparation does the per-query work up front (distance tables, query
// transforms) so Score is a tight per-candidate loop.
func NewScorer(cb Codebook, metric distance.Metric, query []float32) (Scorer, error) {
	if !metric.Valid() {
		return nil, fmt.Errorf("%w: unknown metric %d", ErrConfig, metric)
	}
	if err := checkVector(query, cb.Dimension()); err != nil {
		return nil, err
	}

	switch b := cb.(type) {
	case *ScalarCodebook:
		return newScalarScorer(b, metric, query), nil
	case *ProductCodebook:
		return newProductScorer(b, metric, query), nil
	case *BinaryCodebook:
		return newBinaryScorer(b, metric, query), nil
	default:
		return nil, fmt.Errorf("%w: unsupported codebook type %T", ErrConfig, cb)
	}
}

// scalarScorer scores scalar codes from query-side precomputed terms.
//
// L2: each dimension contributes (q - (min + c*step))^2, which equals
// ((q-min) - c*step)^2, so only q-min and step are needed per dim.
// Dot: q*(min + c*step) = q*min + c*(q*step); the q*min part sums to a
// per-query constant and c*(q*step) folds into one multiply-add.
type scalarScorer struct {
	metric  distance.Metric
	codeLen int
	shifted []float32 // q[i] - min[i], L2 only
	steps   []float32
	weights []float32 // q[i] * step[i], dot/cosine only
	base    float32   // sum of q[i] * min[i], dot/cosine only
}

func newScalarScorer(cb *ScalarCodebook, metric distance.Metric, query []float32) *scalarScorer {
	s := &scalarScorer{metric: metric, codeLen: cb.CodeLen()}

	if metric == distance.MetricL2 {
		s.shifted = make([]float32, cb.dimension)
		for i, q := range query {
			s.shifted[i] = q - cb.mins[i]
		}
		s.steps = cb.steps
		return s
	}

	s.weights = make([]float32, cb.dimension)
	for i, q := range query {
		s.weights[i] = q * cb.steps[i]
		s.base += q * cb.mins[i]
	}
	return s
}

func (s *scalarScorer) Score(code []byte) (float32, error) {
	if err := checkCode(code, s.codeLen); err != nil {
		return 0, err
	}
	if s.metric == distance.MetricL2 {
		return simd.SQ8L2(s.shifted, s.steps, code), nil
	}
	return s.base + simd.SQ8Dot(s.weights, code), nil
}

func (s *scalarScorer) ScoreBatch(codes [][]byte, out []float32) error {
	return scoreBatch(s, codes, out)
}

func (s *scalarScorer) Metric() distance.Metric { return s.metric }
func (s *scalarScorer) CodeLen() int            { return s.codeLen }

// productScorer scores product codes by asymmetric distance
// computation: one M x K table of exact query-to-centroid distances is
// built up front, then each candidate costs M table lookups.
type productScorer struct {
	metric  distance.Metric
	codeLen int
	m       int
	k       int
	bits    int
	table   []float32 // m rows of k entries
	scratch []byte    // unpacked indices, reused across Score calls
}

func newProductScorer(cb *ProductCodebook, metric distance.Metric, query []float32) *productScorer {
	s := &productScorer{
		metric:  metric,
		codeLen: cb.codeLen,
		m:       cb.subspaces,
		k:       cb.centroids,
		bits:    cb.indexBits,
		table:   make([]float32, cb.subspaces*cb.centroids),
		scratch: make([]byte, cb.subspaces),
	}

	for m := 0; m < cb.subspaces; m++ {
		sub := query[m*cb.subDim : (m+1)*cb.subDim]
		for j := 0; j < cb.centroids; j++ {
			c := cb.Centroid(m, j)
			if metric == distance.MetricL2 {
				s.table[m*cb.centroids+j] = simd.SquaredL2(sub, c)
			} else {
				s.table[m*cb.centroids+j] = simd.Dot(sub, c)
			}
		}
	}
	return s
}

func (s *productScorer) Score(code []byte) (float32, error) {
	if err := checkCode(code, s.codeLen); err != nil {
		return 0, err
	}
	unpackIndices(code, s.m, s.bits, s.scratch)
	return simd.PQLookup(s.table, s.scratch, s.m, s.k), nil
}

func (s *productScorer) ScoreBatch(codes [][]byte, out []float32) error {
	return scoreBatch(s, codes, out)
}

func (s *productScorer) Metric() distance.Metric { return s.metric }
func (s *productScorer) CodeLen() int            { return s.codeLen }

// binaryScorer scores binary codes via Hamming distance against the
// query's own bit pattern. For L2 the raw Hamming distance is returned
// (lower is better); for Dot and Cosine it is mapped to the agreement
// score D - 2*hamming so direction matches the metric.
type binaryScorer struct {
	metric    distance.Metric
	dimension int
	codeLen   int
	pattern   []byte
}

func newBinaryScorer(cb *BinaryCodebook, metric distance.Metric, query []float32) *binaryScorer {
	s := &binaryScorer{
		metric:    metric,
		dimension: cb.dimension,
		codeLen:   cb.codeLen,
		pattern:   make([]byte, cb.codeLen),
	}
	// Same bit rule as BinaryCodebook.Encode, so identical inputs yield
	// identical patterns.
	for i, x := range query {
		if x >= cb.thresholds[i] {
			s.pattern[i>>3] |= 1 << uint(7-i&7)
		}
	}
	return s
}

func (s *binaryScorer) Score(code []byte) (float32, error) {
	if err := checkCode(code, s.codeLen); err != nil {
		return 0, err
	}
	ham := simd.Hamming(s.pattern, code)
	if s.metric == distance.MetricL2 {
		return float32(ham), nil
	}
	return float32(s.dimension - 2*ham), nil
}

func (s *binaryScorer) ScoreBatch(codes [][]byte, out []float32) error {
	return scoreBatch(s, codes, out)
}

func (s *binaryScorer) Metric() distance.Metric { return s.metric }
func (s *binaryScorer) CodeLen() int            { return s.codeLen }
