package quantize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScalarQuantizerRoundTrip(t *testing.T) {
	sq, err := NewScalarQuantizer(4, 8)
	require.NoError(t, err)
	samples := [][]float32{{0, 0, 0, 0}, {1, 1, 1, 1}, {0.5, 0.5, 0.5, 0.5}}
	require.NoError(t, sq.Train(samples))

	encoded, err := sq.Encode([]float32{0.5, 0.5, 0.5, 0.5})
	require.NoError(t, err)
	decoded, err := sq.Decode(encoded)
	require.NoError(t, err)
	for _, v := range decoded {
		require.InDelta(t, 0.5, v, 0.01)
	}
}

func TestScalarQuantizerTrainIsIdempotent(t *testing.T) {
	sq, err := NewScalarQuantizer(2, 8)
	require.NoError(t, err)
	require.NoError(t, sq.Train([][]float32{{0, 0}, {1, 1}}))
	require.True(t, sq.Trained())
	// second Train call must not change bounds
	require.NoError(t, sq.Train([][]float32{{100, 100}, {200, 200}}))
	encoded, err := sq.Encode([]float32{1, 1})
	require.NoError(t, err)
	decoded, err := sq.Decode(encoded)
	require.NoError(t, err)
	require.InDelta(t, 1.0, decoded[0], 0.01)
}

func TestBinaryQuantizerSignBits(t *testing.T) {
	bq := NewBinaryQuantizer(4)
	require.NoError(t, bq.Train(nil))

	encoded, err := bq.Encode([]float32{1, -1, 2, -2})
	require.NoError(t, err)
	decoded, err := bq.Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, []float32{1, -1, 1, -1}, decoded)
}

func TestBinaryQuantizerHamming(t *testing.T) {
	bq := NewBinaryQuantizer(8)
	require.NoError(t, bq.Train(nil))
	a, err := bq.Encode([]float32{1, 1, 1, 1, 1, 1, 1, 1})
	require.NoError(t, err)
	b, err := bq.Encode([]float32{1, 1, 1, 1, -1, -1, -1, -1})
	require.NoError(t, err)
	d, err := bq.HammingDistance(a, b)
	require.NoError(t, err)
	require.Equal(t, 4, d)
}
