package simd

import (
	"encoding/binary"
	"math/bits"
)

// Kernel function pointers. Generic implementations are the default;
// selectKernels swaps in the wide variants when the CPU supports them.
var (
	kernelDot       = dotGeneric
	kernelSquaredL2 = squaredL2Generic
	kernelScale     = scaleGeneric
	kernelPQLookup  = pqLookupGeneric
	kernelHamming   = hammingGeneric
	kernelPopcount  = popcountGeneric
	kernelSQ8L2     = sq8L2Generic
	kernelSQ8Dot    = sq8DotGeneric
)

// selectKernels installs the implementations for the selected ISA.
// Called exactly once from initCapabilities.
func selectKernels(isa ISA) {
	switch isa {
	case AVX2, AVX512, NEON:
		kernelDot = dotWide
		kernelSquaredL2 = squaredL2Wide
		kernelPQLookup = pqLookupWide
		kernelSQ8L2 = sq8L2Wide
		kernelSQ8Dot = sq8DotWide
	default:
		// Generic kernels stay in place.
	}
}

// Dot calculates the dot product of two vectors.
//
// SAFETY: Assumes len(a) == len(b). Caller MUST ensure lengths match.
func Dot(a, b []float32) float32 {
	return kernelDot(a, b)
}

// SquaredL2 calculates the squared L2 distance between two vectors.
//
// SAFETY: Assumes len(a) == len(b). Caller MUST ensure lengths match.
func SquaredL2(a, b []float32) float32 {
	return kernelSquaredL2(a, b)
}

// ScaleInPlace multiplies all elements of a by scalar.
func ScaleInPlace(a []float32, scalar float32) {
	kernelScale(a, scalar)
}

// PQLookup sums the precomputed table entries addressed by codes.
// table is m rows of k floats (flattened); codes holds m centroid
// indices, one byte each.
func PQLookup(table []float32, codes []byte, m, k int) float32 {
	return kernelPQLookup(table, codes, m, k)
}

// Hamming computes the Hamming distance between two equal-length byte
// slices using a population-count reduction.
func Hamming(a, b []byte) int {
	return kernelHamming(a, b)
}

// Popcount returns the number of set bits in a.
func Popcount(a []byte) int {
	return kernelPopcount(a)
}

// SQ8L2 computes the squared L2 distance between a query and an 8-bit
// scalar-quantized code without dequantizing the code to a full float
// vector. t holds the query-side terms (q[i] - min[i]) and s the
// per-dimension step widths; the residual per dimension is t[i] - c*s[i].
func SQ8L2(t, s []float32, code []byte) float32 {
	return kernelSQ8L2(t, s, code)
}

// SQ8Dot computes the weighted code sum for an 8-bit scalar-quantized
// dot product. w holds the query-side weights (q[i] * step[i]); the
// caller adds the constant base term.
func SQ8Dot(w []float32, code []byte) float32 {
	return kernelSQ8Dot(w, code)
}

// ============================================================================
// Generic implementations (portable fallbacks)
// ============================================================================

func dotGeneric(a, b []float32) float32 {
	var ret float32
	for i := range a {
		ret += a[i] * b[i]
	}
	return ret
}

func squaredL2Generic(a, b []float32) float32 {
	var distance float32
	for i := range a {
		d := a[i] - b[i]
		distance += d * d
	}
	return distance
}

func scaleGeneric(a []float32, scalar float32) {
	for i := range a {
		a[i] *= scalar
	}
}

func pqLookupGeneric(table []float32, codes []byte, m, k int) float32 {
	var sum float32
	for i := 0; i < m; i++ {
		sum += table[i*k+int(codes[i])]
	}
	return sum
}

func hammingGeneric(a, b []byte) int {
	total := 0
	i := 0
	for ; i+8 <= len(a); i += 8 {
		v1 := binary.LittleEndian.Uint64(a[i:])
		v2 := binary.LittleEndian.Uint64(b[i:])
		total += bits.OnesCount64(v1 ^ v2)
	}
	for ; i < len(a); i++ {
		total += bits.OnesCount8(a[i] ^ b[i])
	}
	return total
}

func popcountGeneric(a []byte) int {
	total := 0
	i := 0
	for ; i+8 <= len(a); i += 8 {
		total += bits.OnesCount64(binary.LittleEndian.Uint64(a[i:]))
	}
	for ; i < len(a); i++ {
		total += bits.OnesCount8(a[i])
	}
	return total
}

func sq8L2Generic(t, s []float32, code []byte) float32 {
	var sum float32
	for i := range code {
		d := t[i] - float32(code[i])*s[i]
		sum += d * d
	}
	return sum
}

func sq8DotGeneric(w []float32, code []byte) float32 {
	var sum float32
	for i := range code {
		sum += float32(code[i]) * w[i]
	}
	return sum
}
