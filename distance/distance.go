// Package distance provides the distance metrics supported by the
// quantization core. All float kernels are SIMD-dispatched through
// internal/simd.
package distance

import (
	"fmt"
	"slices"

	"github.com/hupe1980/vecquant/internal/simd"
)

// Metric identifies how two vectors are compared.
type Metric int

const (
	// MetricL2 is squared Euclidean distance. Lower is better.
	MetricL2 Metric = iota
	// MetricDot is the dot product. Higher is better.
	MetricDot
	// MetricCosine is cosine similarity. Higher is better. Callers are
	// expected to normalize inputs; on normalized vectors it equals dot.
	MetricCosine
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricDot:
		return "Dot"
	case MetricCosine:
		return "Cosine"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// HigherIsBetter reports the sort direction of the metric.
func (m Metric) HigherIsBetter() bool {
	return m != MetricL2
}

// Better reports whether score a beats score b under the metric.
func (m Metric) Better(a, b float32) bool {
	if m.HigherIsBetter() {
		return a > b
	}
	return a < b
}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	return m >= MetricL2 && m <= MetricCosine
}

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	return simd.Dot(a, b)
}

// SquaredL2 calculates the squared L2 distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	return simd.SquaredL2(a, b)
}

// Hamming calculates the Hamming distance between two byte slices.
// Assumes slices are the same length.
func Hamming(a, b []byte) int {
	return simd.Hamming(a, b)
}

// Exact computes the exact metric value between two float vectors.
// Used by callers that re-rank approximate results.
func Exact(m Metric, a, b []float32) float32 {
	switch m {
	case MetricL2:
		return SquaredL2(a, b)
	default:
		return Dot(a, b)
	}
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm2 := simd.Dot(v, v)
	if norm2 == 0 {
		return false
	}
	inv := 1 / sqrt32(norm2)
	simd.ScaleInPlace(v, inv)
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}
