package snapshot

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	points := []Point{
		{ID: 1, Vector: []float32{1, 2, 3}},
		{ID: 2, Vector: []float32{4, 5, 6}, Payload: []byte(`{"tag":"a"}`)},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteAll(&buf, 3, points))

	hdr, got, err := ReadAll(&buf)
	require.NoError(t, err)
	require.Equal(t, uint32(3), hdr.Dimension)
	require.Equal(t, uint64(2), hdr.PointCount)
	require.Len(t, got, 2)
	require.Equal(t, uint64(1), got[0].ID)
	require.Equal(t, []float32{1, 2, 3}, got[0].Vector)
	require.Equal(t, []byte(`{"tag":"a"}`), got[1].Payload)
}

func TestReadRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteAll(&buf, 2, []Point{{ID: 1, Vector: []float32{1, 1}}}))
	b := buf.Bytes()
	b[0] = 'X'
	_, _, err := ReadAll(bytes.NewReader(b))
	require.Error(t, err)
}

func TestReadRejectsCorruptEntryCRC(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteAll(&buf, 2, []Point{{ID: 1, Vector: []float32{1, 1}}}))
	b := buf.Bytes()
	b[len(b)-10] ^= 0xFF // flip a byte inside the single entry (its id-length prefix)
	_, _, err := ReadAll(bytes.NewReader(b))
	require.Error(t, err)
}

func TestWriteRejectsDimensionMismatch(t *testing.T) {
	var buf bytes.Buffer
	err := WriteAll(&buf, 3, []Point{{ID: 1, Vector: []float32{1, 2}}})
	require.Error(t, err)
}

func TestPayloadEncodeDecodeRoundTrip(t *testing.T) {
	v := map[string]any{"category": "shoes", "price": 42.5}
	b, err := EncodePayload(v)
	require.NoError(t, err)
	got, err := DecodePayload(b)
	require.NoError(t, err)
	require.Equal(t, "shoes", got["category"])
}

func TestEmptyPayloadDecodesNil(t *testing.T) {
	got, err := DecodePayload(nil)
	require.NoError(t, err)
	require.Nil(t, got)
}
