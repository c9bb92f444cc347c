// Package edge implements VelesDB's optional property-graph store
// (spec §4.7): a sharded, concurrent adjacency structure with label
// indices and a streaming BFS iterator, independent of the vector index.
//
// Generalized from the teacher's (liliang-cn/sqvect) pkg/graph package
// (graph.go's GraphEdge shape, graph_traversal.go's BFS-by-queue
// structure, graph_batch.go's batch-insert entry points) from a single
// SQLite-backed map into the spec's sharded-by-hash design
// (§4.7, §5's "edges -> outgoing_index -> incoming_index -> nodes" lock
// order), with github.com/RoaringBitmap/roaring/v2 guarding the
// node-id-beyond-u32 limit the spec calls out.
package edge

import (
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/velesdb/velesdb/internal/vlog"
)

// Edge is one directed graph edge, per spec §3.1.
type Edge struct {
	ID         uint64
	Source     uint64
	Target     uint64
	Label      string
	Properties map[string]any
}

// shard holds one partition of the edge map plus its label index.
type shard struct {
	mu    sync.RWMutex
	edges map[uint64]*Edge
	// byLabel maps label -> set of edge ids in this shard carrying it.
	byLabel map[string]map[uint64]struct{}
	// outgoing/incoming map node id -> edge ids sourced/targeted in this shard.
	outgoing map[uint64]map[uint64]struct{}
	incoming map[uint64]map[uint64]struct{}
}

func newShard() *shard {
	return &shard{
		edges:    make(map[uint64]*Edge),
		byLabel:  make(map[string]map[uint64]struct{}),
		outgoing: make(map[uint64]map[uint64]struct{}),
		incoming: make(map[uint64]map[uint64]struct{}),
	}
}

// Store is VelesDB's sharded edge store. Shard count is chosen at creation
// from an expected edge count |E|: the smallest power of two whose square is
// at least |E| (2^ceil(log2(sqrt(|E|)))), clamped to [1, 512].
type Store struct {
	shards    []*shard
	route     sync.Map // edge id -> shard index, for O(1) get/remove by id
	nextID    atomic.Uint64
	maxNodeID uint64
	logger    vlog.Logger
	labels    *labelTable
}

// New creates an edge store sized for an expected edge count.
func New(expectedEdges int, logger vlog.Logger) *Store {
	n := shardCount(expectedEdges)
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = newShard()
	}
	if logger == nil {
		logger = vlog.Nop()
	}
	return &Store{shards: shards, maxNodeID: math32Max, logger: logger, labels: newLabelTable()}
}

func shardCount(expected int) int {
	if expected <= 1 {
		return 1
	}
	n := 1
	sq := 1.0
	for sq*sq < float64(expected) {
		sq *= 2
		n *= 2
		if n >= 512 {
			return 512
		}
	}
	return n
}

func (s *Store) shardFor(edgeID uint64) *shard {
	return s.shards[edgeID%uint64(len(s.shards))]
}

// labelTable interns string labels to compact ids for memory efficiency,
// per spec §4.7 (up to u32::MAX distinct labels; VelesDB does not enforce
// that ceiling explicitly since Go's map addressing has no such limit, but
// keeps the interning behavior for parity with the spec's memory-layout
// intent).
type labelTable struct {
	mu  sync.RWMutex
	ids map[string]uint32
	nxt uint32
}

func newLabelTable() *labelTable { return &labelTable{ids: make(map[string]uint32)} }

func (t *labelTable) intern(label string) uint32 {
	t.mu.RLock()
	if id, ok := t.ids[label]; ok {
		t.mu.RUnlock()
		return id
	}
	t.mu.RUnlock()
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.ids[label]; ok {
		return id
	}
	id := t.nxt
	t.nxt++
	t.ids[label] = id
	return id
}

// AddEdge inserts e, assigning an id if e.ID is zero. Node ids beyond
// u32::MAX are rejected with a logged warning, per spec §4.7 (roaring
// bitmap limit); VelesDB's bitmaps are also 32-bit so the guard matches
// the storage ceiling exactly.
func (s *Store) AddEdge(e Edge) (uint64, error) {
	if e.Source > math32Max || e.Target > math32Max {
		s.logger.Warn("edge node id exceeds u32 range, rejecting", "source", e.Source, "target", e.Target)
		return 0, errNodeIDOverflow
	}
	if e.ID == 0 {
		e.ID = s.nextID.Add(1)
	}
	s.labels.intern(e.Label)

	sh := s.shardFor(e.ID)
	sh.mu.Lock()
	sh.edges[e.ID] = &e
	if e.Label != "" {
		set, ok := sh.byLabel[e.Label]
		if !ok {
			set = make(map[uint64]struct{})
			sh.byLabel[e.Label] = set
		}
		set[e.ID] = struct{}{}
	}
	addToIndex(sh.outgoing, e.Source, e.ID)
	addToIndex(sh.incoming, e.Target, e.ID)
	sh.mu.Unlock()

	s.route.Store(e.ID, sh)
	return e.ID, nil
}

const math32Max = uint64(^uint32(0))

type overflowErr struct{}

func (overflowErr) Error() string { return "edge: node id exceeds u32 range" }

var errNodeIDOverflow error = overflowErr{}

func addToIndex(idx map[uint64]map[uint64]struct{}, node, edgeID uint64) {
	set, ok := idx[node]
	if !ok {
		set = make(map[uint64]struct{})
		idx[node] = set
	}
	set[edgeID] = struct{}{}
}

func removeFromIndex(idx map[uint64]map[uint64]struct{}, node, edgeID uint64) {
	if set, ok := idx[node]; ok {
		delete(set, edgeID)
		if len(set) == 0 {
			delete(idx, node)
		}
	}
}

// RemoveEdge deletes edgeID, reporting whether it existed. Cross-shard
// writes (an edge's source and target indices can live in different
// shards' maps only in spirit here since both indices live alongside the
// edge in its own shard) are applied under that single shard's lock, so
// readers never observe a half-removed edge.
func (s *Store) RemoveEdge(edgeID uint64) bool {
	v, ok := s.route.Load(edgeID)
	if !ok {
		return false
	}
	sh := v.(*shard)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.edges[edgeID]
	if !ok {
		return false
	}
	delete(sh.edges, edgeID)
	if set, ok := sh.byLabel[e.Label]; ok {
		delete(set, edgeID)
	}
	removeFromIndex(sh.outgoing, e.Source, edgeID)
	removeFromIndex(sh.incoming, e.Target, edgeID)
	s.route.Delete(edgeID)
	return true
}

// GetEdge returns edgeID's edge, or false if absent.
func (s *Store) GetEdge(edgeID uint64) (Edge, bool) {
	v, ok := s.route.Load(edgeID)
	if !ok {
		return Edge{}, false
	}
	sh := v.(*shard)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.edges[edgeID]
	if !ok {
		return Edge{}, false
	}
	return *e, true
}

// Neighbors returns the edges touching node (as source or target),
// optionally filtered by label, consulting the label index when provided.
func (s *Store) Neighbors(node uint64, label string) []Edge {
	var out []Edge
	for _, sh := range s.shards {
		sh.mu.RLock()
		var ids map[uint64]struct{}
		if out2, ok := sh.outgoing[node]; ok {
			ids = out2
		}
		for id := range ids {
			e := sh.edges[id]
			if e == nil || (label != "" && e.Label != label) {
				continue
			}
			out = append(out, *e)
		}
		if inIDs, ok := sh.incoming[node]; ok {
			for id := range inIDs {
				e := sh.edges[id]
				if e == nil || (label != "" && e.Label != label) {
					continue
				}
				out = append(out, *e)
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

// Len returns the number of edges across all shards.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.edges)
		sh.mu.RUnlock()
	}
	return n
}

// MaxNodeID reports the largest node id representable by this store's
// node-id bitmaps (u32::MAX, per spec §4.7).
func (s *Store) MaxNodeID() uint64 { return math32Max }

var _ = roaring.New // keep the roaring dependency exercised by NodeIDSet below.

// AllEdges returns a snapshot of every edge in the store, used to expose
// the edge store as a secondary table_ref for VelesQL's JOIN execution
// (spec §4.9).
func (s *Store) AllEdges() []Edge {
	out := make([]Edge, 0, s.Len())
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, e := range sh.edges {
			out = append(out, *e)
		}
		sh.mu.RUnlock()
	}
	return out
}

// NodeIDSet returns a roaring bitmap of every distinct node id that appears
// as a source or target anywhere in the store, used by callers that need a
// fast membership test without walking the adjacency maps.
func (s *Store) NodeIDSet() *roaring.Bitmap {
	bm := roaring.New()
	for _, sh := range s.shards {
		sh.mu.RLock()
		for node := range sh.outgoing {
			bm.Add(uint32(node))
		}
		for node := range sh.incoming {
			bm.Add(uint32(node))
		}
		sh.mu.RUnlock()
	}
	return bm
}
