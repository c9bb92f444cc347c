// Package hnsw implements VelesDB's Hierarchical Navigable Small World index
// (spec §4.4): adaptive per-dimension parameters, named search-quality
// presets, soft-delete tombstones with compaction, and an optional
// quantize.Quantizer for a compact-code-then-f32-rerank dual-precision path.
//
// Generalized from the teacher's (liliang-cn/sqvect) pkg/index/hnsw.go: the
// level-assignment, beam-search, and heuristic-neighbor-selection algorithms
// are kept; string ids become uint64 (spec §6.1), an explicit tombstone
// ratio trigger and compact() replace the teacher's simple Deleted flag, and
// internal/distance.Kernel / internal/quantize.Quantizer replace the
// teacher's func(a,b []float32) float32 and ad-hoc Quantizer interface.
package hnsw

import (
	"container/heap"
	"math"
	"math/rand"
	"sync"

	"github.com/velesdb/velesdb/internal/distance"
	"github.com/velesdb/velesdb/internal/quantize"
	"github.com/velesdb/velesdb/internal/verrors"
)

// Preset names a search-quality/latency tradeoff per spec §4.4.
type Preset int

const (
	Fast Preset = iota
	Balanced
	Accurate
	HighRecall
	Perfect
)

// EfSearch computes the beam width for this preset given k, per the table
// in spec §4.4. Perfect returns 0 as a sentinel meaning "bypass the graph".
func (p Preset) EfSearch(k int) int {
	switch p {
	case Fast:
		return max(64, 2*k)
	case Balanced:
		return max(128, 4*k)
	case Accurate:
		return max(256, 8*k)
	case HighRecall:
		return max(1024, 32*k)
	case Perfect:
		return 0
	default:
		return max(128, 4*k)
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Params holds the construction/search parameters auto-tuned by dimension.
type Params struct {
	M              int
	MMax0          int
	EfConstruction int
}

// ParamsForDimension returns the auto-tuned M / MMax0 / EfConstruction band
// for dimension d, per spec §4.4's table.
func ParamsForDimension(d int) Params {
	switch {
	case d <= 256:
		return Params{M: 24, MMax0: 48, EfConstruction: 300}
	case d <= 768:
		return Params{M: 32, MMax0: 64, EfConstruction: 400}
	case d <= 1536:
		return Params{M: 48, MMax0: 96, EfConstruction: 600}
	default:
		return Params{M: 64, MMax0: 128, EfConstruction: 800}
	}
}

// node is an internal HNSW construct: a point id, its vector (by value here;
// in the full collection it is backed by internal/vecstore), and per-layer
// neighbor lists.
type node struct {
	id        uint64
	vector    []float32 // nil if quantized and dropped
	quantized []byte
	level     int
	neighbors [][]uint64 // neighbors[layer] = neighbor ids
	deleted   bool
}

// Index is a hierarchical navigable small-world graph over uint64 point ids.
type Index struct {
	mu sync.RWMutex

	dim    int
	params Params
	ml     float64 // 1/ln(M), level generation factor
	rng    *rand.Rand

	kernel    distance.Kernel
	quantizer quantize.Quantizer

	nodes      map[uint64]*node
	entryPoint uint64
	hasEntry   bool

	tombstones int
}

// TombstoneCompactionRatio is the fraction of tombstoned nodes that triggers
// an implicit compaction recommendation (spec §4.4); callers check
// ShouldCompact and invoke Compact explicitly — the index never compacts
// itself mid-query.
const TombstoneCompactionRatio = 0.2

// New creates an empty HNSW index for vectors of dimension dim under metric,
// with parameters auto-tuned by ParamsForDimension.
func New(dim int, metric distance.Metric, seed int64) *Index {
	params := ParamsForDimension(dim)
	return &Index{
		dim:    dim,
		params: params,
		ml:     1.0 / math.Log(float64(params.M)),
		rng:    rand.New(rand.NewSource(seed)),
		kernel: distance.For(metric),
		nodes:  make(map[uint64]*node),
	}
}

// SetQuantizer installs a quantizer; subsequent inserts store the compact
// code and drop the raw f32 vector unless the caller passes keepOriginal to
// Insert.
func (idx *Index) SetQuantizer(q quantize.Quantizer) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.quantizer = q
}

// Len returns the number of live (non-tombstoned) nodes.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.nodes) - idx.tombstones
}

// ShouldCompact reports whether the tombstone ratio has crossed
// TombstoneCompactionRatio.
func (idx *Index) ShouldCompact() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if len(idx.nodes) == 0 {
		return false
	}
	return float64(idx.tombstones)/float64(len(idx.nodes)) >= TombstoneCompactionRatio
}

func (idx *Index) selectLevel() int {
	level := 0
	for idx.rng.Float64() < 1.0/math.E && level < 16 {
		// Geometric distribution with parameter 1/ln(M): repeatedly climb
		// with probability derived from ml, capped to avoid runaway levels.
		if idx.rng.Float64() >= idx.ml {
			break
		}
		level++
	}
	return level
}

func (idx *Index) maxConnForLayer(layer int) int {
	if layer == 0 {
		return idx.params.MMax0
	}
	return idx.params.M
}

// Insert adds vector under id, or updates it (replacing vector and rewiring
// edges) if id already exists. keepOriginal, when a quantizer is set,
// retains the f32 vector alongside the compact code for exact-distance
// rerank.
func (idx *Index) Insert(id uint64, vector []float32, keepOriginal bool) error {
	if len(vector) != idx.dim {
		return verrors.New("hnsw.insert", verrors.KindDimensionMismatch, "vector length %d != dimension %d", len(vector), idx.dim)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if existing, ok := idx.nodes[id]; ok {
		idx.reinsertLocked(existing, vector, keepOriginal)
		return nil
	}

	var quantized []byte
	stored := vector
	if idx.quantizer != nil {
		enc, err := idx.quantizer.Encode(vector)
		if err == nil {
			quantized = enc
			if !keepOriginal {
				stored = nil
			}
		}
	}

	level := idx.selectLevel()
	n := &node{
		id:        id,
		vector:    stored,
		quantized: quantized,
		level:     level,
		neighbors: make([][]uint64, level+1),
	}
	idx.nodes[id] = n

	if !idx.hasEntry {
		idx.entryPoint = id
		idx.hasEntry = true
		return nil
	}

	entry := idx.nodes[idx.entryPoint]
	curr := []uint64{idx.entryPoint}
	for lc := entry.level; lc > level; lc-- {
		curr = idx.searchLayerClosest(vector, curr, 1, lc)
	}

	for lc := level; lc >= 0; lc-- {
		m := idx.maxConnForLayer(lc)
		candidates := idx.searchLayer(vector, curr, idx.params.EfConstruction, lc)
		neighbors := idx.selectNeighborsHeuristic(vector, candidates, m)

		n.neighbors[lc] = neighbors
		// Range over a copy: removeConnection below may rewrite
		// n.neighbors[lc] (which shares neighbors' backing array) in place.
		for _, nb := range append([]uint64(nil), neighbors...) {
			idx.addConnection(nb, id, lc)
			nbNode := idx.nodes[nb]
			maxConn := idx.maxConnForLayer(lc)
			if lc < len(nbNode.neighbors) && len(nbNode.neighbors[lc]) > maxConn {
				nbVec := idx.vectorOf(nbNode)
				if nbVec != nil {
					before := nbNode.neighbors[lc]
					pruned := idx.selectNeighborsHeuristic(nbVec, before, maxConn)
					nbNode.neighbors[lc] = pruned
					// Every neighbor the heuristic dropped from nb's list
					// still points back at nb unless its own reciprocal
					// edge is removed too, which would otherwise violate
					// HNSW's symmetry invariant (a in neighbors(b) iff b
					// in neighbors(a)).
					for _, dropped := range droppedNeighbors(before, pruned) {
						idx.removeConnection(dropped, nb, lc)
					}
				}
			}
		}
		curr = neighbors
	}

	if level > idx.nodes[idx.entryPoint].level {
		idx.entryPoint = id
	}
	return nil
}

// reinsertLocked implements duplicate-id insert as a full replace: the old
// node's edges are removed from its neighbors and the node is re-inserted
// fresh at a newly assigned level, keeping HNSW's symmetry invariant intact.
func (idx *Index) reinsertLocked(old *node, vector []float32, keepOriginal bool) {
	for lc, neighbors := range old.neighbors {
		for _, nb := range neighbors {
			idx.removeConnection(nb, old.id, lc)
		}
	}
	if old.deleted {
		idx.tombstones--
	}
	delete(idx.nodes, old.id)
	if idx.entryPoint == old.id {
		idx.hasEntry = false
		for otherID := range idx.nodes {
			idx.entryPoint = otherID
			idx.hasEntry = true
			break
		}
	}
	idx.mu.Unlock()
	_ = idx.Insert(old.id, vector, keepOriginal)
	idx.mu.Lock()
}

// droppedNeighbors returns the ids present in before but absent from after.
func droppedNeighbors(before, after []uint64) []uint64 {
	keep := make(map[uint64]bool, len(after))
	for _, id := range after {
		keep[id] = true
	}
	var dropped []uint64
	for _, id := range before {
		if !keep[id] {
			dropped = append(dropped, id)
		}
	}
	return dropped
}

func (idx *Index) removeConnection(from, to uint64, layer int) {
	n, ok := idx.nodes[from]
	if !ok || layer >= len(n.neighbors) {
		return
	}
	out := n.neighbors[layer][:0]
	for _, x := range n.neighbors[layer] {
		if x != to {
			out = append(out, x)
		}
	}
	n.neighbors[layer] = out
}

func (idx *Index) addConnection(from, to uint64, layer int) {
	n, ok := idx.nodes[from]
	if !ok || layer >= len(n.neighbors) {
		return
	}
	for _, nb := range n.neighbors[layer] {
		if nb == to {
			return
		}
	}
	n.neighbors[layer] = append(n.neighbors[layer], to)
}

func (idx *Index) vectorOf(n *node) []float32 {
	if n.vector != nil {
		return n.vector
	}
	if n.quantized != nil && idx.quantizer != nil {
		v, err := idx.quantizer.Decode(n.quantized)
		if err == nil {
			return v
		}
	}
	return nil
}

func (idx *Index) distanceTo(query []float32, n *node) float32 {
	v := idx.vectorOf(n)
	if v == nil {
		return float32(math.MaxFloat32)
	}
	d, err := idx.kernel(query, v)
	if err != nil {
		return float32(math.MaxFloat32)
	}
	return d
}

type heapItem struct {
	id   uint64
	dist float32
}

type distHeap []*heapItem

func (h distHeap) Len() int            { return len(h) }
func (h distHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h distHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *distHeap) Push(x interface{}) { *h = append(*h, x.(*heapItem)) }
func (h *distHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// searchLayer runs a beam search of width ef from entryPoints at layer.
func (idx *Index) searchLayer(query []float32, entryPoints []uint64, ef int, layer int) []uint64 {
	visited := make(map[uint64]bool, ef*2)
	candidates := &distHeap{}
	best := &distHeap{} // max-heap via negated distance

	for _, p := range entryPoints {
		n, ok := idx.nodes[p]
		if !ok {
			continue
		}
		d := idx.distanceTo(query, n)
		heap.Push(candidates, &heapItem{id: p, dist: d})
		heap.Push(best, &heapItem{id: p, dist: -d})
		visited[p] = true
	}

	for candidates.Len() > 0 {
		if best.Len() > 0 {
			lower := (*candidates)[0].dist
			if lower > -(*best)[0].dist {
				break
			}
		}
		cur := heap.Pop(candidates).(*heapItem)
		curNode, ok := idx.nodes[cur.id]
		if !ok || layer >= len(curNode.neighbors) {
			continue
		}
		for _, nb := range curNode.neighbors[layer] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			nbNode, ok := idx.nodes[nb]
			if !ok {
				continue
			}
			d := idx.distanceTo(query, nbNode)
			if best.Len() < ef || d < -(*best)[0].dist {
				heap.Push(candidates, &heapItem{id: nb, dist: d})
				heap.Push(best, &heapItem{id: nb, dist: -d})
				if best.Len() > ef {
					heap.Pop(best)
				}
			}
		}
	}

	result := make([]uint64, 0, best.Len())
	for best.Len() > 0 {
		result = append(result, heap.Pop(best).(*heapItem).id)
	}
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}

func (idx *Index) searchLayerClosest(query []float32, entryPoints []uint64, n int, layer int) []uint64 {
	res := idx.searchLayer(query, entryPoints, n, layer)
	if len(res) > n {
		return res[:n]
	}
	return res
}

// selectNeighborsHeuristic picks m candidates minimizing distance to query
// (the teacher's simplified heuristic; full RNG-diversity pruning is a
// documented simplification of classic HNSW neighbor selection).
func (idx *Index) selectNeighborsHeuristic(query []float32, candidates []uint64, m int) []uint64 {
	if len(candidates) <= m {
		out := make([]uint64, len(candidates))
		copy(out, candidates)
		return out
	}
	type pair struct {
		id   uint64
		dist float32
	}
	pairs := make([]pair, len(candidates))
	for i, c := range candidates {
		n, ok := idx.nodes[c]
		d := float32(math.MaxFloat32)
		if ok {
			d = idx.distanceTo(query, n)
		}
		pairs[i] = pair{id: c, dist: d}
	}
	for i := 0; i < len(pairs)-1; i++ {
		minJ := i
		for j := i + 1; j < len(pairs); j++ {
			if pairs[j].dist < pairs[minJ].dist {
				minJ = j
			}
		}
		pairs[i], pairs[minJ] = pairs[minJ], pairs[i]
	}
	out := make([]uint64, 0, m)
	for i := 0; i < m && i < len(pairs); i++ {
		out = append(out, pairs[i].id)
	}
	return out
}

// Result is one scored hit from Search.
type Result struct {
	ID       uint64
	Distance float32
}

// Search returns the k nearest live neighbors of query using ef as the
// layer-0 beam width (0 means "use Perfect full-scan"). Empty on an empty
// index; never panics, never errors except DimensionMismatch.
func (idx *Index) Search(query []float32, k int, ef int) ([]Result, error) {
	if len(query) != idx.dim {
		return nil, verrors.New("hnsw.search", verrors.KindDimensionMismatch, "query length %d != dimension %d", len(query), idx.dim)
	}
	if k <= 0 {
		return nil, nil
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if !idx.hasEntry {
		return nil, nil
	}

	if ef == 0 {
		return idx.bruteForceLocked(query, k), nil
	}

	entry := idx.nodes[idx.entryPoint]
	curr := []uint64{idx.entryPoint}
	for layer := entry.level; layer > 0; layer-- {
		curr = idx.searchLayerClosest(query, curr, 1, layer)
	}
	candidates := idx.searchLayer(query, curr, ef, 0)

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		n, ok := idx.nodes[c]
		if !ok || n.deleted {
			continue
		}
		results = append(results, Result{ID: c, Distance: idx.distanceTo(query, n)})
	}
	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// bruteForceLocked implements the Perfect preset: a full parallel-capable
// scan (parallelism is the caller's concern via internal/planner) scoring
// every live node with the exact kernel.
func (idx *Index) bruteForceLocked(query []float32, k int) []Result {
	results := make([]Result, 0, len(idx.nodes))
	for id, n := range idx.nodes {
		if n.deleted {
			continue
		}
		results = append(results, Result{ID: id, Distance: idx.distanceTo(query, n)})
	}
	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results
}

func sortResults(r []Result) {
	for i := 1; i < len(r); i++ {
		j := i
		for j > 0 && r[j].Distance < r[j-1].Distance {
			r[j], r[j-1] = r[j-1], r[j]
			j--
		}
	}
}

// Delete logically (soft) deletes id, excluding it from result lists. The
// entry point is reassigned if it was the tombstoned node.
func (idx *Index) Delete(id uint64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	n, ok := idx.nodes[id]
	if !ok {
		return verrors.Wrap("hnsw.delete", verrors.KindNotFound, errNodeNotFound(id))
	}
	if n.deleted {
		return nil
	}
	n.deleted = true
	idx.tombstones++

	if idx.hasEntry && idx.entryPoint == id {
		idx.hasEntry = false
		for otherID, other := range idx.nodes {
			if !other.deleted {
				idx.entryPoint = otherID
				idx.hasEntry = true
				break
			}
		}
	}
	return nil
}

// Compact rebuilds the graph excluding tombstoned nodes. Internal indices
// are densified implicitly by simply re-keying the node map (ids themselves
// are stable; only graph structure changes).
func (idx *Index) Compact() error {
	idx.mu.Lock()
	live := make(map[uint64]*node, len(idx.nodes)-idx.tombstones)
	var vectors []uint64
	for id, n := range idx.nodes {
		if !n.deleted {
			live[id] = n
			vectors = append(vectors, id)
		}
	}
	idx.nodes = make(map[uint64]*node)
	idx.hasEntry = false
	idx.tombstones = 0
	idx.mu.Unlock()

	for _, id := range vectors {
		n := live[id]
		v := idx.vectorOf(n)
		if v == nil {
			continue
		}
		if err := idx.Insert(id, v, n.vector != nil); err != nil {
			return verrors.Wrap("hnsw.compact", verrors.KindCorruptIndex, err)
		}
	}
	return nil
}

type errNodeNotFoundT uint64

func (e errNodeNotFoundT) Error() string { return "hnsw: node not found" }
func errNodeNotFound(id uint64) error    { return errNodeNotFoundT(id) }
