// This file implements scheme-specific fluent builder APIs for creating
// and configuring quantized indexes. Builders are immutable - each
// method returns a new builder with the updated configuration.

package vecquant

import (
	"github.com/hupe1980/vecquant/distance"
	"github.com/hupe1980/vecquant/quantization"
)

// =============================================================================
// Scalar Builder (Immutable)
// =============================================================================

// ScalarBuilder configures a scalar-quantized index.
//
// The builder is immutable - each method returns a new builder with the
// updated configuration. This ensures thread-safety and prevents
// accidental state sharing.
type ScalarBuilder struct {
	dimension int
	metric    distance.Metric
	bits      int
	quantile  float32
}

// Scalar creates a new scalar-quantization builder for vectors of the
// specified dimension. Scalar quantization compresses each dimension to
// a small integer independently and is the cheapest scheme to train.
//
// Defaults: squared L2, 8 bits per dimension, 0.99 clipping quantile.
//
// Example:
//
//	idx, err := vecquant.Scalar(128).
//	    Cosine().
//	    Quantile(0.95).
//	    Build()
func Scalar(dimension int) ScalarBuilder {
	return ScalarBuilder{dimension: dimension, metric: distance.MetricL2}
}

// SquaredL2 selects squared Euclidean distance (lower is better).
func (b ScalarBuilder) SquaredL2() ScalarBuilder {
	b.metric = distance.MetricL2
	return b
}

// DotProduct selects dot-product similarity (higher is better).
func (b ScalarBuilder) DotProduct() ScalarBuilder {
	b.metric = distance.MetricDot
	return b
}

// Cosine selects cosine similarity (higher is better). Queries are
// normalized at search time; stored vectors should be normalized before
// Add.
func (b ScalarBuilder) Cosine() ScalarBuilder {
	b.metric = distance.MetricCosine
	return b
}

// Bits sets the per-dimension bit width (1..8). Defaults to 8.
func (b ScalarBuilder) Bits(n int) ScalarBuilder {
	b.bits = n
	return b
}

// Quantile sets the clipping quantile applied during training. The
// (1-q) outlier mass is discarded evenly from both tails before the
// value range is fixed. Defaults to 0.99.
func (b ScalarBuilder) Quantile(q float32) ScalarBuilder {
	b.quantile = q
	return b
}

// Build creates the index.
func (b ScalarBuilder) Build(optFns ...Option) (*Index, error) {
	return newIndex(b.dimension, b.metric, quantization.Options{
		Scheme:   quantization.SchemeScalar,
		Bits:     b.bits,
		Quantile: b.quantile,
	}, optFns)
}

// MustBuild is like Build but panics on error. Intended for
// initialization paths where the configuration is static.
func (b ScalarBuilder) MustBuild(optFns ...Option) *Index {
	idx, err := b.Build(optFns...)
	if err != nil {
		panic(err)
	}
	return idx
}

// =============================================================================
// Product Builder (Immutable)
// =============================================================================

// ProductBuilder configures a product-quantized index.
//
// The builder is immutable - each method returns a new builder with the
// updated configuration.
type ProductBuilder struct {
	dimension            int
	metric               distance.Metric
	subspaces            int
	centroids            int
	maxIterations        int
	convergenceThreshold float32
}

// Product creates a new product-quantization builder for vectors of the
// specified dimension, split into m subspaces. The dimension must be
// divisible by m. Product quantization gives the highest compression at
// the cost of a k-means training pass per subspace.
//
// Defaults: squared L2, 256 centroids per subspace, 25 Lloyd iterations.
//
// Example:
//
//	idx, err := vecquant.Product(128, 16).
//	    Centroids(256).
//	    Build()
func Product(dimension, m int) ProductBuilder {
	return ProductBuilder{dimension: dimension, subspaces: m, metric: distance.MetricL2}
}

// SquaredL2 selects squared Euclidean distance (lower is better).
func (b ProductBuilder) SquaredL2() ProductBuilder {
	b.metric = distance.MetricL2
	return b
}

// DotProduct selects dot-product similarity (higher is better).
func (b ProductBuilder) DotProduct() ProductBuilder {
	b.metric = distance.MetricDot
	return b
}

// Cosine selects cosine similarity (higher is better).
func (b ProductBuilder) Cosine() ProductBuilder {
	b.metric = distance.MetricCosine
	return b
}

// Centroids sets the per-subspace centroid count K (2..256).
// Defaults to 256.
func (b ProductBuilder) Centroids(k int) ProductBuilder {
	b.centroids = k
	return b
}

// MaxIterations bounds the Lloyd iterations per subspace training.
// Defaults to 25.
func (b ProductBuilder) MaxIterations(n int) ProductBuilder {
	b.maxIterations = n
	return b
}

// ConvergenceThreshold sets the maximum squared centroid movement
// treated as converged, stopping training early.
func (b ProductBuilder) ConvergenceThreshold(t float32) ProductBuilder {
	b.convergenceThreshold = t
	return b
}

// Build creates the index.
func (b ProductBuilder) Build(optFns ...Option) (*Index, error) {
	return newIndex(b.dimension, b.metric, quantization.Options{
		Scheme:               quantization.SchemeProduct,
		Subspaces:            b.subspaces,
		Centroids:            b.centroids,
		MaxIterations:        b.maxIterations,
		ConvergenceThreshold: b.convergenceThreshold,
	}, optFns)
}

// MustBuild is like Build but panics on error.
func (b ProductBuilder) MustBuild(optFns ...Option) *Index {
	idx, err := b.Build(optFns...)
	if err != nil {
		panic(err)
	}
	return idx
}

// =============================================================================
// Binary Builder (Immutable)
// =============================================================================

// BinaryBuilder configures a binary-quantized index.
//
// The builder is immutable - each method returns a new builder with the
// updated configuration.
type BinaryBuilder struct {
	dimension int
	metric    distance.Metric
	threshold *float32
}

// Binary creates a new binary-quantization builder for vectors of the
// specified dimension. Binary quantization keeps one bit per dimension
// and scores with Hamming distance, the fastest and coarsest scheme.
// By default the per-dimension mean of the training sample is the bit
// threshold.
//
// Example:
//
//	idx, err := vecquant.Binary(256).
//	    FixedThreshold(0).
//	    Build()
func Binary(dimension int) BinaryBuilder {
	return BinaryBuilder{dimension: dimension, metric: distance.MetricL2}
}

// SquaredL2 selects squared Euclidean distance (lower is better).
func (b BinaryBuilder) SquaredL2() BinaryBuilder {
	b.metric = distance.MetricL2
	return b
}

// DotProduct selects dot-product similarity (higher is better).
func (b BinaryBuilder) DotProduct() BinaryBuilder {
	b.metric = distance.MetricDot
	return b
}

// Cosine selects cosine similarity (higher is better).
func (b BinaryBuilder) Cosine() BinaryBuilder {
	b.metric = distance.MetricCosine
	return b
}

// FixedThreshold uses t as the bit threshold for every dimension
// instead of the per-dimension sample mean. Zero is the usual choice
// for centered data.
func (b BinaryBuilder) FixedThreshold(t float32) BinaryBuilder {
	b.threshold = &t
	return b
}

// Build creates the index.
func (b BinaryBuilder) Build(optFns ...Option) (*Index, error) {
	return newIndex(b.dimension, b.metric, quantization.Options{
		Scheme:         quantization.SchemeBinary,
		FixedThreshold: b.threshold,
	}, optFns)
}

// MustBuild is like Build but panics on error.
func (b BinaryBuilder) MustBuild(optFns ...Option) *Index {
	idx, err := b.Build(optFns...)
	if err != nil {
		panic(err)
	}
	return idx
}
