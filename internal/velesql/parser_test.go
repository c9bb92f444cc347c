package velesql

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFilterPushdownQuery(t *testing.T) {
	q, err := Parse(`SELECT id FROM products WHERE vector NEAR $v AND category = 'a' AND price > 15 LIMIT 5`)
	require.NoError(t, err)
	require.Len(t, q.Statements, 1)
	stmt := q.Statements[0]
	require.Equal(t, "products", stmt.From)
	require.NotNil(t, stmt.Limit)
	require.Equal(t, 5, *stmt.Limit)

	and1, ok := stmt.Where.(*BinaryExpr)
	require.True(t, ok)
	require.Equal(t, "AND", and1.Op)
}

func TestParseQuotedIdentifier(t *testing.T) {
	q, err := Parse(`SELECT "order" FROM c WHERE "order" = 'early'`)
	require.NoError(t, err)
	stmt := q.Statements[0]
	require.Equal(t, "order", stmt.Select[0].Expr.(*Ident).Name)
	cmp, ok := stmt.Where.(*ComparisonExpr)
	require.True(t, ok)
	require.Equal(t, "order", cmp.Left.(*Ident).Name)
}

func TestParseAggregatesGroupByHaving(t *testing.T) {
	q, err := Parse(`SELECT category, COUNT(*), AVG(amount) FROM events GROUP BY category HAVING COUNT(*) > 100 ORDER BY COUNT(*) DESC`)
	require.NoError(t, err)
	stmt := q.Statements[0]
	require.Equal(t, []string{"category"}, stmt.GroupBy)
	require.Equal(t, "COUNT", stmt.Select[1].Aggregate)
	require.NotNil(t, stmt.Having)
	require.Len(t, stmt.OrderBy, 1)
	require.True(t, stmt.OrderBy[0].Descending)
}

func TestParseHybridFusion(t *testing.T) {
	q, err := Parse(`SELECT * FROM docs WHERE vector NEAR $v AND content MATCH 'rust database' USING FUSION(weighted, vector_weight=0.7, graph_weight=0.3) LIMIT 10`)
	require.NoError(t, err)
	stmt := q.Statements[0]
	require.NotNil(t, stmt.Fusion)
	require.Equal(t, "weighted", stmt.Fusion.Strategy)
	require.InDelta(t, 0.7, stmt.Fusion.Params["vector_weight"], 1e-9)
}

func TestParseSimilarityThreshold(t *testing.T) {
	q, err := Parse(`SELECT id FROM docs WHERE similarity(vector, $v) > 0.8 LIMIT 10`)
	require.NoError(t, err)
	stmt := q.Statements[0]
	cmp, ok := stmt.Where.(*ComparisonExpr)
	require.True(t, ok)
	_, ok = cmp.Left.(*SimilarityExpr)
	require.True(t, ok)
}

func TestParseSetOperations(t *testing.T) {
	q, err := Parse(`SELECT id FROM a UNION ALL SELECT id FROM b`)
	require.NoError(t, err)
	require.Len(t, q.Statements, 2)
	require.Equal(t, []SetOp{SetOpUnionAll}, q.SetOps)
}

func TestParseUnboundParameterIsStructural(t *testing.T) {
	q, err := Parse(`SELECT id FROM c WHERE vector NEAR $missing LIMIT 1`)
	require.NoError(t, err)
	near, ok := q.Statements[0].Where.(*NearExpr)
	require.True(t, ok)
	require.Equal(t, "missing", near.Vec.(*Param).Name)
}

func TestParseBareReservedIdentifierFails(t *testing.T) {
	// "order" collides with the ORDER BY keyword; per spec §8.4 scenario E
	// a bare `order` must be quoted to use as a field name.
	_, err := Parse(`SELECT order FROM c`)
	require.Error(t, err)
}
