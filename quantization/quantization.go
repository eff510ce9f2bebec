// Package quantization compresses dense float32 vectors into compact
// codes so that approximate similarity search can run on a fraction of
// the memory and compute of raw vectors. Three schemes are supported:
// scalar (n-bit per dimension), product (per-subspace centroid indices)
// and binary (one bit per dimension).
//
// A Codebook is immutable once trained; retraining produces a new
// codebook object. Encoding is a pure deterministic function of
// (codebook, vector).
package quantization

import (
	"context"
	"encoding"
	"fmt"
	"math"
	"math/rand"
)

// Scheme identifies a quantization scheme.
type Scheme uint8

const (
	// SchemeScalar maps each dimension linearly to a small integer range.
	SchemeScalar Scheme = iota + 1
	// SchemeProduct approximates subspaces by trained centroids.
	SchemeProduct
	// SchemeBinary keeps one sign bit per dimension.
	SchemeBinary
)

func (s Scheme) String() string {
	switch s {
	case SchemeScalar:
		return "scalar"
	case SchemeProduct:
		return "product"
	case SchemeBinary:
		return "binary"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Codebook holds the trained parameters needed to encode and decode
// vectors for one scheme. Implementations are immutable and safe for
// unlimited concurrent readers.
type Codebook interface {
	encoding.BinaryMarshaler

	// Scheme returns the quantization scheme.
	Scheme() Scheme

	// Dimension returns the vector dimension the codebook was trained for.
	Dimension() int

	// CodeLen returns the fixed encoded length in bytes.
	CodeLen() int

	// Converged reports whether training stabilized within its iteration
	// budget. A non-converged codebook is fully usable, just with
	// degraded accuracy.
	Converged() bool

	// Encode writes the code for v into dst, which must be CodeLen()
	// bytes long.
	Encode(v []float32, dst []byte) error

	// Decode reconstructs an approximation of the original vector into
	// dst, which must be Dimension() floats long.
	Decode(code []byte, dst []float32) error
}

// Options configures codebook training.
type Options struct {
	// Scheme selects the quantization scheme.
	Scheme Scheme

	// Bits is the scalar bit width per dimension (1..8). Defaults to 8.
	Bits int

	// Quantile is the scalar clipping quantile. The (1-Quantile) mass is
	// discarded evenly from both tails before the min/max bounds are
	// taken, bounding outlier influence. Defaults to 0.99.
	Quantile float32

	// Subspaces is the product-quantization subspace count M.
	Subspaces int

	// Centroids is the product-quantization centroid count K per
	// subspace (2..256). Defaults to 256.
	Centroids int

	// MaxIterations bounds the Lloyd iterations per subspace.
	// Defaults to 25.
	MaxIterations int

	// ConvergenceThreshold is the max squared centroid movement treated
	// as converged. Defaults to 1e-6.
	ConvergenceThreshold float32

	// FixedThreshold, when non-nil, is used as the binary threshold for
	// every dimension (commonly 0). When nil, the per-dimension mean of
	// the sample is used.
	FixedThreshold *float32

	// Seed seeds centroid initialization. Zero means a fixed default,
	// keeping training reproducible unless the caller opts out.
	Seed int64
}

func (o *Options) defaults() {
	if o.Bits <= 0 || o.Bits > 8 {
		o.Bits = 8
	}
	if o.Quantile <= 0 || o.Quantile > 1 {
		o.Quantile = 0.99
	}
	if o.Centroids <= 0 {
		o.Centroids = 256
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = 25
	}
	if o.ConvergenceThreshold <= 0 {
		o.ConvergenceThreshold = 1e-6
	}
	if o.Seed == 0 {
		o.Seed = 1
	}
}

// Train builds a codebook of the requested scheme from a sample of
// vectors. The sample must be non-empty and dimensionally consistent.
// For product quantization the sample must hold at least Centroids
// vectors and the per-subspace trainings run in parallel.
func Train(ctx context.Context, sample [][]float32, opts Options) (Codebook, error) {
	opts.defaults()

	dim, err := sampleDimension(sample)
	if err != nil {
		return nil, err
	}

	switch opts.Scheme {
	case SchemeScalar:
		return trainScalar(sample, dim, opts)
	case SchemeProduct:
		return trainProduct(ctx, sample, dim, opts)
	case SchemeBinary:
		return trainBinary(sample, dim, opts)
	default:
		return nil, fmt.Errorf("%w: unknown scheme %d", ErrConfig, opts.Scheme)
	}
}

func sampleDimension(sample [][]float32) (int, error) {
	if len(sample) == 0 {
		return 0, fmt.Errorf("%w: empty training sample", ErrConfig)
	}
	dim := len(sample[0])
	if dim == 0 {
		return 0, fmt.Errorf("%w: zero-dimensional training sample", ErrConfig)
	}
	for _, v := range sample {
		if len(v) != dim {
			return 0, &ErrDimensionMismatch{Expected: dim, Actual: len(v)}
		}
	}
	return dim, nil
}

// checkVector validates dimension and finiteness before encoding.
func checkVector(v []float32, dim int) error {
	if len(v) != dim {
		return &ErrDimensionMismatch{Expected: dim, Actual: len(v)}
	}
	for i, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return &ErrNonFinite{Index: i}
		}
	}
	return nil
}

func checkCode(code []byte, codeLen int) error {
	if len(code) != codeLen {
		return &ErrCodeLengthMismatch{Expected: codeLen, Actual: len(code)}
	}
	return nil
}

// SampleIndices returns up to budget indices drawn from n points via an
// unbiased random permutation. Drawing by permutation rather than taking
// the first budget points avoids order bias in the training sample.
func SampleIndices(n, budget int, seed int64) []int {
	if budget <= 0 || budget >= n {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	r := rand.New(rand.NewSource(seed))
	return r.Perm(n)[:budget]
}
