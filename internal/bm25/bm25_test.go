package bm25

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSearchRanksByRelevance(t *testing.T) {
	idx := New("content")
	idx.Index(1, "rust database engine")
	idx.Index(2, "rust programming language")
	idx.Index(3, "a completely unrelated document about gardening")

	hits := idx.Search("rust database", 2)
	require.Len(t, hits, 2)
	require.Equal(t, uint64(1), hits[0].ID)
}

func TestDeleteRemovesPostings(t *testing.T) {
	idx := New("content")
	idx.Index(1, "rust database engine")
	idx.Delete(1)
	hits := idx.Search("rust", 5)
	require.Empty(t, hits)
}

func TestReindexReplaces(t *testing.T) {
	idx := New("content")
	idx.Index(1, "alpha beta")
	idx.Index(1, "gamma delta")
	require.Empty(t, idx.Search("alpha", 5))
	require.NotEmpty(t, idx.Search("gamma", 5))
}

func TestFuseRRF(t *testing.T) {
	hits := Fuse(FusionRRF, []FusionInput{
		{Ranks: []uint64{1, 2, 3}},
		{Ranks: []uint64{2, 1, 3}},
	})
	require.Equal(t, uint64(1), hits[0].ID)
}

func TestFuseWeightedOrderingMonotone(t *testing.T) {
	hits := Fuse(FusionWeighted, []FusionInput{
		{Scores: map[uint64]float64{1: 0.9, 2: 0.5}, Weight: 0.7},
		{Scores: map[uint64]float64{1: 0.2, 2: 0.8}, Weight: 0.3},
	})
	require.Len(t, hits, 2)
	for i := 1; i < len(hits); i++ {
		require.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestValidateStrategy(t *testing.T) {
	_, err := ValidateStrategy("bogus")
	require.Error(t, err)
	s, err := ValidateStrategy("RRF")
	require.NoError(t, err)
	require.Equal(t, FusionRRF, s)
}
