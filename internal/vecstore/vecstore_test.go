package vecstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velesdb/velesdb/internal/verrors"
)

func TestAppendAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	s, err := Open(path, 4)
	require.NoError(t, err)
	defer s.Close()

	idx, err := s.Append([]float32{1, 2, 3, 4})
	require.NoError(t, err)
	require.Equal(t, 0, idx)

	g, err := s.Get(idx)
	require.NoError(t, err)
	v, err := g.Vector()
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3, 4}, v)
}

func TestAppendDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	s, err := Open(path, 4)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Append([]float32{1, 2, 3})
	require.Error(t, err)
	require.Equal(t, verrors.KindDimensionMismatch, verrors.Of(err))
}

func TestOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	s, err := Open(path, 2)
	require.NoError(t, err)
	defer s.Close()

	idx, err := s.Append([]float32{1, 1})
	require.NoError(t, err)
	require.NoError(t, s.Overwrite(idx, []float32{9, 9}))

	g, err := s.Get(idx)
	require.NoError(t, err)
	v, err := g.Vector()
	require.NoError(t, err)
	require.Equal(t, []float32{9, 9}, v)
}

func TestGrowthTriggersRemapAndGuardInvalidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	s, err := Open(path, 2)
	require.NoError(t, err)
	defer s.Close()

	idx, err := s.Append([]float32{1, 2})
	require.NoError(t, err)
	g, err := s.Get(idx)
	require.NoError(t, err)

	// Force enough appends to exceed capacity and trigger a remap.
	for i := 0; i < minCapacity+10; i++ {
		_, err := s.Append([]float32{float32(i), float32(i)})
		require.NoError(t, err)
	}

	_, err = g.Vector()
	require.Error(t, err)
	require.Equal(t, verrors.KindMmapRemapped, verrors.Of(err))
}

func TestReopenPersistsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	s, err := Open(path, 3)
	require.NoError(t, err)
	_, err = s.Append([]float32{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, s.Flush())
	require.NoError(t, s.Close())

	s2, err := Open(path, 3)
	require.NoError(t, err)
	defer s2.Close()
	require.Equal(t, 1, s2.Len())
	g, err := s2.Get(0)
	require.NoError(t, err)
	v, err := g.Vector()
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3}, v)
}
