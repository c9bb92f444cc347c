package column

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluateEqAndRange(t *testing.T) {
	s := New()
	s.Upsert(1, map[string]any{"category": "a", "price": 10.0})
	s.Upsert(2, map[string]any{"category": "b", "price": 20.0})
	s.Upsert(3, map[string]any{"category": "a", "price": 30.0})

	pred := And(Eq("category", "a"), Range("price", OpGt, 15.0))
	bm, err := s.Evaluate(pred)
	require.NoError(t, err)
	require.Equal(t, []uint32{3}, bm.ToArray())
}

func TestEvaluateOrNot(t *testing.T) {
	s := New()
	s.Upsert(1, map[string]any{"category": "a"})
	s.Upsert(2, map[string]any{"category": "b"})
	s.Upsert(3, map[string]any{"category": "c"})

	orBM, err := s.Evaluate(Or(Eq("category", "a"), Eq("category", "c")))
	require.NoError(t, err)
	require.ElementsMatch(t, []uint32{1, 3}, orBM.ToArray())

	notBM, err := s.Evaluate(Not(Eq("category", "a")))
	require.NoError(t, err)
	require.ElementsMatch(t, []uint32{2, 3}, notBM.ToArray())
}

func TestIsNullSemantics(t *testing.T) {
	s := New()
	s.Upsert(1, map[string]any{"category": "a"})
	s.Upsert(2, map[string]any{})

	nullBM, err := s.Evaluate(IsNull("category"))
	require.NoError(t, err)
	require.Contains(t, nullBM.ToArray(), uint32(2))

	eqBM, err := s.Evaluate(Eq("category", "a"))
	require.NoError(t, err)
	require.NotContains(t, eqBM.ToArray(), uint32(2))
}

func TestLikeILike(t *testing.T) {
	s := New()
	s.Upsert(1, map[string]any{"name": "Hello World"})
	s.Upsert(2, map[string]any{"name": "goodbye"})

	bm, err := s.Evaluate(Like("name", "Hello%"))
	require.NoError(t, err)
	require.Equal(t, []uint32{1}, bm.ToArray())

	bm2, err := s.Evaluate(ILike("name", "hello%"))
	require.NoError(t, err)
	require.Equal(t, []uint32{1}, bm2.ToArray())
}

func TestDeleteRemovesFromPredicates(t *testing.T) {
	s := New()
	s.Upsert(1, map[string]any{"category": "a"})
	s.Delete(1)

	bm, err := s.Evaluate(Eq("category", "a"))
	require.NoError(t, err)
	require.Empty(t, bm.ToArray())
}

func TestPromotionCrossesColumnBoundary(t *testing.T) {
	s := New()
	for i := uint32(0); i < uint32(PromotionThreshold+5); i++ {
		s.Upsert(i, map[string]any{"tier": int64(i % 3)})
	}
	require.Contains(t, s.FieldNames(), "tier")
	bm, err := s.Evaluate(Eq("tier", int64(0)))
	require.NoError(t, err)
	require.NotEmpty(t, bm.ToArray())
}

func TestContainsArrayMembership(t *testing.T) {
	s := New()
	s.Upsert(1, map[string]any{"tags": []any{"x", "y"}})
	s.Upsert(2, map[string]any{"tags": []any{"z"}})

	bm, err := s.Evaluate(Contains("tags", "y"))
	require.NoError(t, err)
	require.Equal(t, []uint32{1}, bm.ToArray())
}
