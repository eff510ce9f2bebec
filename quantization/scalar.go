package quantization

import (
	"sort"
)

// ScalarCodebook implements n-bit scalar quantization with per-dimension
// quantile-clipped bounds. With 8 bits it compresses float32 vectors
// 4x; per-dimension bounds significantly improve recall over a single
// global range.
type ScalarCodebook struct {
	dimension int
	bits      int
	levels    int
	mins      []float32 // Per-dimension clipped minimum
	steps     []float32 // Per-dimension level width: (max-min)/(levels-1)
}

var _ Codebook = (*ScalarCodebook)(nil)

func trainScalar(sample [][]float32, dim int, opts Options) (*ScalarCodebook, error) {
	levels := 1 << opts.Bits

	cb := &ScalarCodebook{
		dimension: dim,
		bits:      opts.Bits,
		levels:    levels,
		mins:      make([]float32, dim),
		steps:     make([]float32, dim),
	}

	// Quantile clipping: drop (1-q)/2 of the mass from each tail so a
	// handful of outliers cannot stretch the whole level range.
	n := len(sample)
	lo := int(float64(1-opts.Quantile) / 2 * float64(n-1))
	hi := n - 1 - lo

	column := make([]float32, n)
	for d := 0; d < dim; d++ {
		for i, v := range sample {
			column[i] = v[d]
		}
		sort.Slice(column, func(i, j int) bool { return column[i] < column[j] })

		minVal, maxVal := column[lo], column[hi]
		if minVal == maxVal {
			// Constant dimension: keep a tiny range so decode stays exact
			// and the step never divides by zero.
			maxVal = minVal + 1e-6
		}
		cb.mins[d] = minVal
		cb.steps[d] = (maxVal - minVal) / float32(levels-1)
	}

	return cb, nil
}

func (cb *ScalarCodebook) Scheme() Scheme  { return SchemeScalar }
func (cb *ScalarCodebook) Dimension() int  { return cb.dimension }
func (cb *ScalarCodebook) CodeLen() int    { return cb.dimension }
func (cb *ScalarCodebook) Converged() bool { return true }

// Bits returns the configured bit width per dimension.
func (cb *ScalarCodebook) Bits() int { return cb.bits }

// Levels returns the number of quantization levels (2^bits).
func (cb *ScalarCodebook) Levels() int { return cb.levels }

// Encode maps each dimension to clamp(round((v-min)/step), 0, levels-1).
// One byte per dimension regardless of bit width.
func (cb *ScalarCodebook) Encode(v []float32, dst []byte) error {
	if err := checkVector(v, cb.dimension); err != nil {
		return err
	}
	if err := checkCode(dst, cb.CodeLen()); err != nil {
		return err
	}

	maxCode := float32(cb.levels - 1)
	for i, val := range v {
		step := cb.steps[i]
		if step == 0 {
			dst[i] = 0
			continue
		}
		q := (val - cb.mins[i]) / step
		if q < 0 {
			q = 0
		} else if q > maxCode {
			q = maxCode
		}
		dst[i] = byte(q + 0.5) // Round to nearest
	}
	return nil
}

// Decode reconstructs min + code*step per dimension. The reconstruction
// error is bounded by half a level width.
func (cb *ScalarCodebook) Decode(code []byte, dst []float32) error {
	if err := checkCode(code, cb.CodeLen()); err != nil {
		return err
	}
	if len(dst) != cb.dimension {
		return &ErrDimensionMismatch{Expected: cb.dimension, Actual: len(dst)}
	}
	for i, c := range code {
		dst[i] = cb.mins[i] + float32(c)*cb.steps[i]
	}
	return nil
}

// Bounds returns the clipped per-dimension bounds for dimension d.
func (cb *ScalarCodebook) Bounds(d int) (minVal, maxVal float32) {
	return cb.mins[d], cb.mins[d] + cb.steps[d]*float32(cb.levels-1)
}

// MaxQuantizationError returns the worst-case per-dimension
// reconstruction error for in-range values: half a level width.
func (cb *ScalarCodebook) MaxQuantizationError() float32 {
	var maxStep float32
	for _, s := range cb.steps {
		if s > maxStep {
			maxStep = s
		}
	}
	return maxStep / 2
}
