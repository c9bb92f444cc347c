package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineDistanceIdentity(t *testing.T) {
	v := []float32{1, 2, 3, 4}
	d, err := cosineDistance(v, v)
	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-6)
}

func TestCosineDistanceOrthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	d, err := cosineDistance(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-6)
}

func TestEuclideanDistanceSymmetry(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	d1, err := euclideanDistance(a, b)
	require.NoError(t, err)
	d2, err := euclideanDistance(b, a)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.InDelta(t, math.Sqrt(27), d1, 1e-4)
}

func TestDimensionMismatch(t *testing.T) {
	for _, m := range []Metric{Cosine, Euclidean, DotProduct, Hamming, Jaccard} {
		k := For(m)
		_, err := k([]float32{1, 2}, []float32{1})
		require.Error(t, err)
		var dm *DimensionMismatchError
		require.ErrorAs(t, err, &dm)
	}
}

func TestNaNPropagates(t *testing.T) {
	a := []float32{float32(math.NaN()), 1}
	b := []float32{1, 1}
	d, err := euclideanDistance(a, b)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(float64(d)))
}

func TestHammingDistance(t *testing.T) {
	a := []float32{1, -1, 1, -1}
	b := []float32{1, 1, -1, -1}
	d, err := hammingDistance(a, b)
	require.NoError(t, err)
	assert.Equal(t, float32(2), d)
}

func TestJaccardDistance(t *testing.T) {
	a := []float32{1, 0, 1, 0}
	b := []float32{1, 1, 0, 0}
	d, err := jaccardDistance(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1.0-1.0/3.0, d, 1e-6)
}

func TestPackedHamming(t *testing.T) {
	a := []byte{0b1010}
	b := []byte{0b1100}
	n, err := PackedHamming(a, b)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEuclideanAVX2MatchesScalarForOddLengths(t *testing.T) {
	a := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}
	b := []float32{9, 8, 7, 6, 5, 4, 3, 2, 1}
	scalar, err := euclideanDistance(a, b)
	require.NoError(t, err)
	avx, err := euclideanDistanceAVX2(a, b)
	require.NoError(t, err)
	assert.InDelta(t, scalar, avx, 1e-3)
}

func TestMetricIsDistance(t *testing.T) {
	assert.True(t, Euclidean.IsDistance())
	assert.True(t, Hamming.IsDistance())
	assert.False(t, Cosine.IsDistance())
	assert.False(t, DotProduct.IsDistance())
}
