package quantization

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarEncodeDecode(t *testing.T) {
	sample := make([][]float32, 101)
	for i := range sample {
		sample[i] = []float32{float32(i) * 0.1} // 0.0 .. 10.0
	}

	cb, err := Train(context.Background(), sample, Options{Scheme: SchemeScalar})
	require.NoError(t, err)
	require.Equal(t, SchemeScalar, cb.Scheme())
	require.Equal(t, 1, cb.CodeLen())
	require.True(t, cb.Converged())

	code := make([]byte, cb.CodeLen())
	require.NoError(t, cb.Encode([]float32{5.0}, code))

	decoded := make([]float32, 1)
	require.NoError(t, cb.Decode(code, decoded))

	// Reconstruction error is bounded by one level width.
	assert.InDelta(t, 5.0, decoded[0], 10.0/255.0)

	// Encoding is deterministic.
	code2 := make([]byte, cb.CodeLen())
	require.NoError(t, cb.Encode([]float32{5.0}, code2))
	assert.Equal(t, code, code2)
}

func TestScalarQuantileClipping(t *testing.T) {
	sample := make([][]float32, 11)
	for i := 0; i < 10; i++ {
		sample[i] = []float32{float32(i)}
	}
	sample[10] = []float32{1000} // outlier

	cb, err := Train(context.Background(), sample, Options{
		Scheme:   SchemeScalar,
		Quantile: 0.8,
	})
	require.NoError(t, err)

	sc := cb.(*ScalarCodebook)
	_, maxVal := sc.Bounds(0)
	assert.Less(t, maxVal, float32(100), "outlier must not stretch the range")

	// Out-of-range values clamp to the boundary codes instead of failing.
	code := make([]byte, 1)
	require.NoError(t, cb.Encode([]float32{1000}, code))
	assert.Equal(t, byte(255), code[0])
	require.NoError(t, cb.Encode([]float32{-1000}, code))
	assert.Equal(t, byte(0), code[0])
}

func TestScalarConstantDimension(t *testing.T) {
	sample := [][]float32{{3, 1}, {3, 2}, {3, 3}}

	cb, err := Train(context.Background(), sample, Options{Scheme: SchemeScalar})
	require.NoError(t, err)

	code := make([]byte, 2)
	require.NoError(t, cb.Encode([]float32{3, 2}, code))

	decoded := make([]float32, 2)
	require.NoError(t, cb.Decode(code, decoded))
	assert.InDelta(t, 3.0, decoded[0], 1e-5)
}

func TestScalarInputValidation(t *testing.T) {
	_, err := Train(context.Background(), nil, Options{Scheme: SchemeScalar})
	require.ErrorIs(t, err, ErrConfig)

	_, err = Train(context.Background(), [][]float32{{1, 2}, {1}}, Options{Scheme: SchemeScalar})
	var dimErr *ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)

	cb, err := Train(context.Background(), [][]float32{{1, 2}, {3, 4}}, Options{Scheme: SchemeScalar})
	require.NoError(t, err)

	code := make([]byte, 2)
	err = cb.Encode([]float32{1}, code)
	require.ErrorIs(t, err, ErrConfig)

	err = cb.Encode([]float32{1, float32(math.NaN())}, code)
	require.ErrorIs(t, err, ErrEncoding)
	var nf *ErrNonFinite
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, 1, nf.Index)

	err = cb.Encode([]float32{1, 2}, make([]byte, 1))
	var lenErr *ErrCodeLengthMismatch
	require.ErrorAs(t, err, &lenErr)
}
