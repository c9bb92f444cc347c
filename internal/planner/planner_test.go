package planner

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velesdb/velesdb/internal/bm25"
	"github.com/velesdb/velesdb/internal/column"
	"github.com/velesdb/velesdb/internal/distance"
	"github.com/velesdb/velesdb/internal/hnsw"
)

// fakeBackend is a minimal in-memory Backend for exercising the planner
// without a real collection, keyed by point id.
type fakeBackend struct {
	dim      int
	metric   distance.Metric
	vectors  map[uint64][]float32
	payloads map[uint64]map[string]any
	cols     *column.Store
	text     map[string]*bm25.Index
	edges    []Row
}

func newFakeBackend(dim int) *fakeBackend {
	return &fakeBackend{
		dim:      dim,
		metric:   distance.Cosine,
		vectors:  map[uint64][]float32{},
		payloads: map[uint64]map[string]any{},
		cols:     column.New(),
		text:     map[string]*bm25.Index{},
	}
}

func (f *fakeBackend) put(id uint64, vec []float32, payload map[string]any) {
	f.vectors[id] = vec
	f.payloads[id] = payload
	f.cols.Upsert(uint32(id), payload)
}

func (f *fakeBackend) indexText(field string, id uint64, text string) {
	idx, ok := f.text[field]
	if !ok {
		idx = bm25.New(field)
		f.text[field] = idx
	}
	idx.Index(id, text)
}

func (f *fakeBackend) Dim() int                   { return f.dim }
func (f *fakeBackend) Metric() distance.Metric    { return f.metric }
func (f *fakeBackend) Vector(id uint64) ([]float32, bool) {
	v, ok := f.vectors[id]
	return v, ok
}
func (f *fakeBackend) Payload(id uint64) (map[string]any, bool) {
	p, ok := f.payloads[id]
	return p, ok
}
func (f *fakeBackend) AllLiveIDs() []uint64 {
	ids := make([]uint64, 0, len(f.vectors))
	for id := range f.vectors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
func (f *fakeBackend) EvaluatePredicate(pred *column.Predicate) ([]uint64, error) {
	bitmap, err := f.cols.Evaluate(pred)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0)
	it := bitmap.Iterator()
	for it.HasNext() {
		ids = append(ids, uint64(it.Next()))
	}
	return ids, nil
}
func (f *fakeBackend) TextSearch(field, query string, k int) []bm25.Hit {
	idx, ok := f.text[field]
	if !ok {
		return nil
	}
	return idx.Search(query, k)
}
func (f *fakeBackend) JoinRows(table string) ([]Row, error) {
	if table != "edges" {
		return nil, nil
	}
	return f.edges, nil
}
func (f *fakeBackend) VectorSearch(query []float32, k int, ef int) ([]hnsw.Result, error) {
	kernel := distance.For(f.metric)
	var results []hnsw.Result
	for id, v := range f.vectors {
		d, err := kernel(query, v)
		if err != nil {
			continue
		}
		results = append(results, hnsw.Result{ID: id, Distance: d})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func seedBackend() *fakeBackend {
	b := newFakeBackend(3)
	b.put(1, []float32{1, 0, 0}, map[string]any{"category": "a", "price": 10.0})
	b.put(2, []float32{0.9, 0.1, 0}, map[string]any{"category": "a", "price": 25.0})
	b.put(3, []float32{0, 1, 0}, map[string]any{"category": "b", "price": 5.0})
	b.put(4, []float32{0, 0, 1}, map[string]any{"category": "b", "price": 99.0})
	b.indexText("content", 1, "the quick brown fox")
	b.indexText("content", 2, "a slow brown dog")
	b.indexText("content", 3, "rust database engine")
	return b
}

func TestExecuteVectorSearchWithFilterPushdown(t *testing.T) {
	backend := seedBackend()
	ex := NewExecutor(backend, NewCache(8))

	rows, err := ex.Execute(`SELECT id FROM points WHERE vector NEAR $v AND category = 'a' LIMIT 5`, map[string]any{
		"v": []float32{1, 0, 0},
	})
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	for _, r := range rows {
		require.Contains(t, []uint64{1, 2}, r.ID)
	}
}

func TestExecuteUnboundParameterFails(t *testing.T) {
	backend := seedBackend()
	ex := NewExecutor(backend, nil)

	_, err := ex.Execute(`SELECT id FROM points WHERE vector NEAR $missing LIMIT 5`, map[string]any{})
	require.Error(t, err)
}

func TestExecuteTextSearch(t *testing.T) {
	backend := seedBackend()
	ex := NewExecutor(backend, nil)

	rows, err := ex.Execute(`SELECT id FROM points WHERE content MATCH 'brown' LIMIT 5`, nil)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
}

func TestExecuteHybridFusion(t *testing.T) {
	backend := seedBackend()
	ex := NewExecutor(backend, nil)

	rows, err := ex.Execute(
		`SELECT id FROM points WHERE vector NEAR $v AND content MATCH 'brown' USING FUSION(rrf) LIMIT 5`,
		map[string]any{"v": []float32{1, 0, 0}},
	)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
}

func TestExecuteGroupByHaving(t *testing.T) {
	backend := seedBackend()
	ex := NewExecutor(backend, nil)

	rows, err := ex.Execute(
		`SELECT category, COUNT(*) FROM points GROUP BY category HAVING COUNT(*) >= 2`, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "a", rows[0].Fields["category"])
	require.InDelta(t, 2.0, rows[0].Fields["COUNT(*)"], 1e-9)
}

func TestExecutePredicateOnlyNoVector(t *testing.T) {
	backend := seedBackend()
	ex := NewExecutor(backend, nil)

	rows, err := ex.Execute(`SELECT id FROM points WHERE price > 20`, nil)
	require.NoError(t, err)
	ids := make([]uint64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	require.Contains(t, ids, uint64(2))
	require.Contains(t, ids, uint64(4))
}

func TestExecuteSetOperationUnion(t *testing.T) {
	backend := seedBackend()
	ex := NewExecutor(backend, nil)

	rows, err := ex.Execute(`SELECT id FROM points WHERE category = 'a' UNION SELECT id FROM points WHERE category = 'b'`, nil)
	require.NoError(t, err)
	require.Len(t, rows, 4)
}

func TestExecuteJoinMatchesOnQualifiedField(t *testing.T) {
	backend := seedBackend()
	backend.edges = []Row{
		{ID: 101, Fields: map[string]any{"id": uint64(101), "source": uint64(1), "target": uint64(3), "label": "links_to"}},
		{ID: 102, Fields: map[string]any{"id": uint64(102), "source": uint64(2), "target": uint64(4), "label": "links_to"}},
	}
	ex := NewExecutor(backend, nil)

	rows, err := ex.Execute(
		`SELECT id FROM points JOIN edges ON points.id = edges.source WHERE category = 'a'`, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		require.Contains(t, []uint64{1, 2}, r.ID)
		require.Contains(t, []any{uint64(3), uint64(4)}, r.Fields["edges.target"])
	}
}

func TestExecuteJoinUsingUnmatchedEdgeExcludesRow(t *testing.T) {
	backend := seedBackend()
	backend.edges = []Row{
		{ID: 101, Fields: map[string]any{"id": uint64(101), "source": uint64(1), "target": uint64(3), "label": "links_to"}},
	}
	ex := NewExecutor(backend, nil)

	rows, err := ex.Execute(`SELECT id FROM points JOIN edges ON points.id = edges.source`, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, uint64(1), rows[0].ID)
}

func TestPlanCacheReturnsSameAST(t *testing.T) {
	cache := NewCache(4)
	q1, err := cache.Parse(`SELECT id FROM points WHERE category = 'a'`)
	require.NoError(t, err)
	q2, err := cache.Parse(`SELECT id FROM points WHERE category = 'a'`)
	require.NoError(t, err)
	require.Same(t, q1, q2)
}
