package quantization

import (
	"context"
	"fmt"
	"math/bits"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecquant/internal/kmeans"
)

// ProductCodebook implements product quantization: vectors are split
// into M contiguous subspaces and each subspace is approximated by the
// nearest of K trained centroids. Codes hold the M centroid indices
// bit-packed at ceil(log2 K) bits each.
//
// Example: a 128-dim vector with M=8, K=256 encodes to 8 bytes, a 16x
// compression over float32.
type ProductCodebook struct {
	dimension  int
	subspaces  int // M
	centroids  int // K
	subDim     int // dimension / M
	indexBits  int // ceil(log2 K)
	codeLen    int // ceil(M*indexBits/8)
	converged  bool
	iterations int

	// flat M*K*subDim centroid matrix; centroid (m, j) starts at
	// (m*K + j) * subDim.
	matrix []float32
}

var _ Codebook = (*ProductCodebook)(nil)

func trainProduct(ctx context.Context, sample [][]float32, dim int, opts Options) (*ProductCodebook, error) {
	m := opts.Subspaces
	k := opts.Centroids

	if m <= 0 || dim%m != 0 {
		return nil, fmt.Errorf("%w: dimension %d not divisible by %d subspaces", ErrConfig, dim, m)
	}
	if k < 2 || k > 256 {
		return nil, fmt.Errorf("%w: centroid count %d out of range [2,256]", ErrConfig, k)
	}
	if len(sample) < k {
		return nil, &ErrInsufficientSample{Sample: len(sample), Required: k}
	}

	subDim := dim / m
	cb := &ProductCodebook{
		dimension: dim,
		subspaces: m,
		centroids: k,
		subDim:    subDim,
		indexBits: indexBits(k),
		matrix:    make([]float32, m*k*subDim),
	}
	cb.codeLen = (m*cb.indexBits + 7) / 8

	// Subspaces never share dimensions, so the per-subspace trainings
	// are independent: each worker owns its own slice of the centroid
	// matrix and results merge by plain concatenation.
	converged := make([]bool, m)
	iterations := make([]int, m)

	g, gctx := errgroup.WithContext(ctx)
	for sub := 0; sub < m; sub++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			slice := make([]float32, len(sample)*subDim)
			for i, v := range sample {
				copy(slice[i*subDim:(i+1)*subDim], v[sub*subDim:(sub+1)*subDim])
			}

			res, err := kmeans.Train(slice, subDim, k, kmeans.Config{
				MaxIterations: opts.MaxIterations,
				Threshold:     opts.ConvergenceThreshold,
				Rand:          rand.New(rand.NewSource(opts.Seed + int64(sub))),
			})
			if err != nil {
				return fmt.Errorf("%w: subspace %d: %w", ErrTraining, sub, err)
			}

			copy(cb.matrix[sub*k*subDim:(sub+1)*k*subDim], res.Centroids)
			converged[sub] = res.Converged
			iterations[sub] = res.Iterations
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cb.converged = true
	for sub := 0; sub < m; sub++ {
		if !converged[sub] {
			cb.converged = false
		}
		if iterations[sub] > cb.iterations {
			cb.iterations = iterations[sub]
		}
	}

	return cb, nil
}

func (cb *ProductCodebook) Scheme() Scheme  { return SchemeProduct }
func (cb *ProductCodebook) Dimension() int  { return cb.dimension }
func (cb *ProductCodebook) CodeLen() int    { return cb.codeLen }
func (cb *ProductCodebook) Converged() bool { return cb.converged }

// Subspaces returns M.
func (cb *ProductCodebook) Subspaces() int { return cb.subspaces }

// Centroids returns K.
func (cb *ProductCodebook) Centroids() int { return cb.centroids }

// Iterations returns the largest Lloyd iteration count across subspaces.
func (cb *ProductCodebook) Iterations() int { return cb.iterations }

// Centroid returns centroid j of subspace m as a read-only slice.
func (cb *ProductCodebook) Centroid(m, j int) []float32 {
	start := (m*cb.centroids + j) * cb.subDim
	return cb.matrix[start : start+cb.subDim]
}

// Encode finds the nearest centroid per subspace and bit-packs the
// resulting indices.
func (cb *ProductCodebook) Encode(v []float32, dst []byte) error {
	if err := checkVector(v, cb.dimension); err != nil {
		return err
	}
	if err := checkCode(dst, cb.codeLen); err != nil {
		return err
	}

	indices := make([]byte, cb.subspaces)
	for m := 0; m < cb.subspaces; m++ {
		sub := v[m*cb.subDim : (m+1)*cb.subDim]
		book := cb.matrix[m*cb.centroids*cb.subDim : (m+1)*cb.centroids*cb.subDim]
		indices[m] = byte(kmeans.Nearest(sub, book, cb.subDim))
	}

	packIndices(indices, cb.indexBits, dst)
	return nil
}

// EncodeInto is Encode with a caller-provided scratch index buffer of
// length M, avoiding allocation on the bulk path.
func (cb *ProductCodebook) EncodeInto(v []float32, scratch, dst []byte) error {
	if err := checkVector(v, cb.dimension); err != nil {
		return err
	}
	if err := checkCode(dst, cb.codeLen); err != nil {
		return err
	}
	for m := 0; m < cb.subspaces; m++ {
		sub := v[m*cb.subDim : (m+1)*cb.subDim]
		book := cb.matrix[m*cb.centroids*cb.subDim : (m+1)*cb.centroids*cb.subDim]
		scratch[m] = byte(kmeans.Nearest(sub, book, cb.subDim))
	}
	packIndices(scratch[:cb.subspaces], cb.indexBits, dst)
	return nil
}

// Decode concatenates the centroids addressed by the packed indices.
func (cb *ProductCodebook) Decode(code []byte, dst []float32) error {
	if err := checkCode(code, cb.codeLen); err != nil {
		return err
	}
	if len(dst) != cb.dimension {
		return &ErrDimensionMismatch{Expected: cb.dimension, Actual: len(dst)}
	}

	indices := make([]byte, cb.subspaces)
	unpackIndices(code, cb.subspaces, cb.indexBits, indices)

	for m, idx := range indices {
		if int(idx) >= cb.centroids {
			return fmt.Errorf("%w: centroid index %d out of range", ErrConfig, idx)
		}
		copy(dst[m*cb.subDim:(m+1)*cb.subDim], cb.Centroid(m, int(idx)))
	}
	return nil
}

// indexBits returns ceil(log2 k).
func indexBits(k int) int {
	return bits.Len(uint(k - 1))
}

// packIndices writes the low `width` bits of each index into dst as a
// dense bitstream, most significant bit first, crossing byte boundaries
// without padding. Fast path: byte-aligned indices copy directly.
func packIndices(indices []byte, width int, dst []byte) {
	if width == 8 {
		copy(dst, indices)
		return
	}
	for i := range dst {
		dst[i] = 0
	}
	bitPos := 0
	for _, idx := range indices {
		for b := width - 1; b >= 0; b-- {
			if idx>>uint(b)&1 == 1 {
				dst[bitPos>>3] |= 1 << uint(7-bitPos&7)
			}
			bitPos++
		}
	}
}

// unpackIndices reverses packIndices into dst, which must hold m bytes.
func unpackIndices(code []byte, m, width int, dst []byte) {
	if width == 8 {
		copy(dst, code[:m])
		return
	}
	bitPos := 0
	for i := 0; i < m; i++ {
		var idx byte
		for b := 0; b < width; b++ {
			idx <<= 1
			if code[bitPos>>3]&(1<<uint(7-bitPos&7)) != 0 {
				idx |= 1
			}
			bitPos++
		}
		dst[i] = idx
	}
}
