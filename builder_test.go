package vecquant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecquant/distance"
	"github.com/hupe1980/vecquant/quantization"
)

func TestScalarBuilder(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		idx, err := Scalar(128).Build()
		require.NoError(t, err)
		defer idx.Close()

		assert.Equal(t, 128, idx.Dimension())
		assert.Equal(t, distance.MetricL2, idx.Metric())
		assert.Equal(t, quantization.SchemeScalar, idx.trainOpts.Scheme)
	})

	t.Run("Configured", func(t *testing.T) {
		idx, err := Scalar(64).Cosine().Bits(4).Quantile(0.95).Build()
		require.NoError(t, err)
		defer idx.Close()

		assert.Equal(t, distance.MetricCosine, idx.Metric())
		assert.Equal(t, 4, idx.trainOpts.Bits)
		assert.InDelta(t, 0.95, idx.trainOpts.Quantile, 1e-6)
	})

	t.Run("Immutable", func(t *testing.T) {
		base := Scalar(32)
		withCosine := base.Cosine()

		assert.Equal(t, distance.MetricL2, base.metric)
		assert.Equal(t, distance.MetricCosine, withCosine.metric)
	})

	t.Run("InvalidDimension", func(t *testing.T) {
		_, err := Scalar(0).Build()

		var invalidDim *ErrInvalidDimension
		require.ErrorAs(t, err, &invalidDim)
		assert.Equal(t, 0, invalidDim.Dimension)
	})
}

func TestProductBuilder(t *testing.T) {
	t.Run("Configured", func(t *testing.T) {
		idx, err := Product(128, 16).
			DotProduct().
			Centroids(64).
			MaxIterations(10).
			ConvergenceThreshold(1e-4).
			Build()
		require.NoError(t, err)
		defer idx.Close()

		assert.Equal(t, distance.MetricDot, idx.Metric())
		assert.Equal(t, 16, idx.trainOpts.Subspaces)
		assert.Equal(t, 64, idx.trainOpts.Centroids)
		assert.Equal(t, 10, idx.trainOpts.MaxIterations)
	})

	t.Run("MustBuildPanics", func(t *testing.T) {
		require.Panics(t, func() {
			Product(-1, 4).MustBuild()
		})
	})
}

func TestBinaryBuilder(t *testing.T) {
	t.Run("MeanThresholdByDefault", func(t *testing.T) {
		idx, err := Binary(256).Build()
		require.NoError(t, err)
		defer idx.Close()

		assert.Nil(t, idx.trainOpts.FixedThreshold)
	})

	t.Run("FixedThreshold", func(t *testing.T) {
		idx, err := Binary(256).FixedThreshold(0).Build()
		require.NoError(t, err)
		defer idx.Close()

		require.NotNil(t, idx.trainOpts.FixedThreshold)
		assert.Equal(t, float32(0), *idx.trainOpts.FixedThreshold)
	})
}
