package hnsw

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velesdb/velesdb/internal/distance"
	"github.com/velesdb/velesdb/internal/quantize"
)

func TestInsertAndSearchFindsExactMatch(t *testing.T) {
	idx := New(4, distance.Euclidean, 1)
	require.NoError(t, idx.Insert(1, []float32{0, 0, 0, 0}, false))
	require.NoError(t, idx.Insert(2, []float32{10, 10, 10, 10}, false))
	require.NoError(t, idx.Insert(3, []float32{0.1, 0.1, 0.1, 0.1}, false))

	results, err := idx.Search([]float32{0, 0, 0, 0}, 2, 64)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, uint64(1), results[0].ID)
}

func TestInsertDuplicateIDUpdatesVector(t *testing.T) {
	idx := New(3, distance.Cosine, 2)
	require.NoError(t, idx.Insert(1, []float32{1, 0, 0}, false))
	require.NoError(t, idx.Insert(2, []float32{0, 1, 0}, false))
	require.NoError(t, idx.Insert(1, []float32{0, 0, 1}, false))

	require.Equal(t, 2, idx.Len())
	results, err := idx.Search([]float32{0, 0, 1}, 1, 64)
	require.NoError(t, err)
	require.Equal(t, uint64(1), results[0].ID)
}

// TestNeighborSymmetryHoldsAfterPruning inserts enough points to force
// selectNeighborsHeuristic to re-prune already-connected neighbors' edge
// lists, then checks every remaining edge is reciprocated: for all a, b at
// layer lc, b in neighbors(a, lc) iff a in neighbors(b, lc).
func TestNeighborSymmetryHoldsAfterPruning(t *testing.T) {
	idx := New(2, distance.Euclidean, 7)
	rng := rand.New(rand.NewSource(42))
	for i := uint64(1); i <= 200; i++ {
		vec := []float32{float32(rng.Intn(100)), float32(rng.Intn(100))}
		require.NoError(t, idx.Insert(i, vec, false))
	}

	for id, n := range idx.nodes {
		for lc, neighbors := range n.neighbors {
			for _, nb := range neighbors {
				nbNode, ok := idx.nodes[nb]
				require.True(t, ok)
				require.Less(t, lc, len(nbNode.neighbors))
				require.Contains(t, nbNode.neighbors[lc], id)
			}
		}
	}
}

func TestDeleteExcludesFromSearch(t *testing.T) {
	idx := New(2, distance.Euclidean, 3)
	require.NoError(t, idx.Insert(1, []float32{0, 0}, false))
	require.NoError(t, idx.Insert(2, []float32{1, 1}, false))
	require.NoError(t, idx.Delete(1))

	results, err := idx.Search([]float32{0, 0}, 2, 64)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, uint64(2), results[0].ID)
}

func TestDeleteReassignsEntryPoint(t *testing.T) {
	idx := New(2, distance.Euclidean, 4)
	require.NoError(t, idx.Insert(1, []float32{0, 0}, false))
	require.NoError(t, idx.Insert(2, []float32{1, 1}, false))
	require.NoError(t, idx.Delete(1))
	require.NoError(t, idx.Insert(3, []float32{2, 2}, false))

	results, err := idx.Search([]float32{2, 2}, 1, 64)
	require.NoError(t, err)
	require.Equal(t, uint64(3), results[0].ID)
}

func TestShouldCompactAfterEnoughTombstones(t *testing.T) {
	idx := New(2, distance.Euclidean, 5)
	for i := uint64(1); i <= 10; i++ {
		require.NoError(t, idx.Insert(i, []float32{float32(i), float32(i)}, false))
	}
	require.False(t, idx.ShouldCompact())
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, idx.Delete(i))
	}
	require.True(t, idx.ShouldCompact())

	require.NoError(t, idx.Compact())
	require.Equal(t, 7, idx.Len())
	require.False(t, idx.ShouldCompact())
}

func TestSearchDimensionMismatch(t *testing.T) {
	idx := New(4, distance.Cosine, 6)
	_, err := idx.Search([]float32{1, 2}, 1, 64)
	require.Error(t, err)
}

func TestPerfectPresetBypassesGraphForFullScan(t *testing.T) {
	idx := New(2, distance.Euclidean, 7)
	require.NoError(t, idx.Insert(1, []float32{0, 0}, false))
	require.NoError(t, idx.Insert(2, []float32{5, 5}, false))
	require.NoError(t, idx.Insert(3, []float32{1, 1}, false))

	results, err := idx.Search([]float32{0, 0}, 3, Perfect.EfSearch(3))
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, uint64(1), results[0].ID)
}

func TestSearchWithQuantizerUsesDecodedVectors(t *testing.T) {
	idx := New(4, distance.Euclidean, 8)
	bq := quantize.NewBinaryQuantizer(4)
	require.NoError(t, bq.Train(nil))
	idx.SetQuantizer(bq)

	require.NoError(t, idx.Insert(1, []float32{1, 1, 1, 1}, false))
	require.NoError(t, idx.Insert(2, []float32{-1, -1, -1, -1}, false))

	results, err := idx.Search([]float32{1, 1, 1, 1}, 1, 64)
	require.NoError(t, err)
	require.Equal(t, uint64(1), results[0].ID)
}

func TestParamsForDimensionBands(t *testing.T) {
	require.Equal(t, Params{M: 24, MMax0: 48, EfConstruction: 300}, ParamsForDimension(128))
	require.Equal(t, Params{M: 32, MMax0: 64, EfConstruction: 400}, ParamsForDimension(768))
	require.Equal(t, Params{M: 48, MMax0: 96, EfConstruction: 600}, ParamsForDimension(1536))
	require.Equal(t, Params{M: 64, MMax0: 128, EfConstruction: 800}, ParamsForDimension(3072))
}
