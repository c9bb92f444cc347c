// Package collection implements VelesDB's per-collection API (spec §4.10):
// one fixed-dimension, fixed-metric set of points, wiring together vector
// storage, the HNSW index, the columnar predicate store, per-field BM25
// text indexes, an optional edge store, the write-ahead log, and the
// VelesQL planner/executor into the single object a caller upserts,
// searches, and queries against.
//
// Grounded on the teacher's (liliang-cn/sqvect) pkg/sqvect/sqvect.go DB
// type, which wires core.SQLiteStore + graph.GraphStore behind one facade
// the same way this package wires its own internal packages — reframed
// from a SQLite-backed store onto VelesDB's mmap/HNSW/roaring stack, since
// the spec is explicitly not SQL-on-disk.
package collection

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/velesdb/velesdb/internal/bm25"
	"github.com/velesdb/velesdb/internal/column"
	"github.com/velesdb/velesdb/internal/distance"
	"github.com/velesdb/velesdb/internal/edge"
	"github.com/velesdb/velesdb/internal/hnsw"
	"github.com/velesdb/velesdb/internal/idhash"
	"github.com/velesdb/velesdb/internal/planner"
	"github.com/velesdb/velesdb/internal/quantize"
	"github.com/velesdb/velesdb/internal/snapshot"
	"github.com/velesdb/velesdb/internal/vecstore"
	"github.com/velesdb/velesdb/internal/verrors"
	"github.com/velesdb/velesdb/internal/vlog"
	"github.com/velesdb/velesdb/internal/wal"
)

// Config configures a new or reopened collection.
type Config struct {
	Dim            int
	Metric         distance.Metric
	Preset         hnsw.Preset
	SyncPolicy     wal.SyncPolicy
	Quantization   QuantizationMode
	EnableEdges    bool
	Logger         vlog.Logger
	PlanCacheSize  int
}

// QuantizationMode selects an optional vector compression scheme.
type QuantizationMode int

const (
	QuantizationNone QuantizationMode = iota
	QuantizationScalar8
	QuantizationBinary
)

// Option mutates a Config.
type Option func(*Config)

// WithPreset sets the HNSW search-quality preset used when none is given
// to Search.
func WithPreset(p hnsw.Preset) Option { return func(c *Config) { c.Preset = p } }

// WithSyncPolicy sets the WAL's fsync policy.
func WithSyncPolicy(p wal.SyncPolicy) Option { return func(c *Config) { c.SyncPolicy = p } }

// WithQuantization enables scalar or binary vector compression.
func WithQuantization(m QuantizationMode) Option { return func(c *Config) { c.Quantization = m } }

// WithEdges enables the optional graph/edge extension for this collection.
func WithEdges() Option { return func(c *Config) { c.EnableEdges = true } }

// WithLogger overrides the default nop logger.
func WithLogger(l vlog.Logger) Option { return func(c *Config) { c.Logger = l } }

func defaultConfig(dim int, metric distance.Metric) Config {
	return Config{
		Dim:           dim,
		Metric:        metric,
		Preset:        hnsw.Balanced,
		SyncPolicy:    wal.SyncBatched,
		Logger:        vlog.Nop(),
		PlanCacheSize: 256,
	}
}

// Collection is one fixed-dimension, fixed-metric set of points plus its
// secondary indexes (spec §4.10).
type Collection struct {
	mu sync.RWMutex

	name string
	dir  string
	cfg  Config

	vectors   *vecstore.Store
	index     *hnsw.Index
	columns   *column.Store
	text      map[string]*bm25.Index
	edges     *edge.Store
	log       *wal.WAL
	quantizer quantize.Quantizer
	ids       *idhash.Tracker

	pointToSlot map[uint64]uint32
	slotToPoint []uint64

	trainingSamples [][]float32

	executor *planner.Executor
	cache    *planner.Cache
}

// Open creates (if absent) or reopens the collection rooted at dir,
// replaying its WAL for crash recovery per spec §4.8.
func Open(name, dir string, opts ...Option) (*Collection, error) {
	meta, err := readOrInitMetadata(dir)
	if err != nil {
		return nil, err
	}
	cfg := defaultConfig(meta.Dim, distance.Metric(meta.Metric))
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, verrors.Wrap("collection.open", verrors.KindIO, err)
	}

	// vectors.bin is rebuilt from snapshot.bin and the WAL below, so it
	// starts empty on every open.
	vecPath := filepath.Join(dir, "vectors.bin")
	if err := os.Remove(vecPath); err != nil && !os.IsNotExist(err) {
		return nil, verrors.Wrap("collection.open", verrors.KindIO, err)
	}
	vectors, err := vecstore.Open(vecPath, cfg.Dim)
	if err != nil {
		return nil, err
	}

	walDir := filepath.Join(dir, "wal")
	log, err := wal.Open(walDir, cfg.SyncPolicy)
	if err != nil {
		return nil, err
	}

	c := &Collection{
		name:        name,
		dir:         dir,
		cfg:         cfg,
		vectors:     vectors,
		index:       hnsw.New(cfg.Dim, cfg.Metric, 0),
		columns:     column.New(),
		text:        make(map[string]*bm25.Index),
		log:         log,
		ids:         idhash.NewTracker(),
		pointToSlot: make(map[uint64]uint32),
	}
	if cfg.EnableEdges {
		c.edges = edge.New(1024, cfg.Logger)
	}
	switch cfg.Quantization {
	case QuantizationScalar8:
		q, err := quantize.NewScalarQuantizer(cfg.Dim, 8)
		if err != nil {
			return nil, err
		}
		c.quantizer = q
	case QuantizationBinary:
		c.quantizer = quantize.NewBinaryQuantizer(cfg.Dim)
	}
	if c.quantizer != nil {
		c.index.SetQuantizer(c.quantizer)
	}

	if err := c.loadSnapshot(); err != nil {
		return nil, err
	}
	if err := c.replayWAL(); err != nil {
		return nil, err
	}

	cache := planner.NewCache(cfg.PlanCacheSize)
	c.cache = cache
	c.executor = planner.NewExecutor(c, cache)

	return c, nil
}

// Dim returns the collection's fixed vector dimension.
func (c *Collection) Dim() int { return c.cfg.Dim }

// Metric returns the collection's fixed distance metric.
func (c *Collection) Metric() distance.Metric { return c.cfg.Metric }

// Len returns the number of live points.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pointToSlot)
}

func (c *Collection) resolveID(externalID string) uint64 {
	id, collided := c.ids.Observe(externalID)
	if collided {
		c.cfg.Logger.Warn("idhash collision detected", "external_id", externalID, "id", id)
	}
	return id
}

// Upsert inserts or replaces the point named externalID with vector and
// payload, returning its internal point id.
func (c *Collection) Upsert(externalID string, vector []float32, payload map[string]any) (uint64, error) {
	if len(vector) != c.cfg.Dim {
		return 0, verrors.New("collection.upsert", verrors.KindDimensionMismatch, "vector length %d != collection dimension %d", len(vector), c.cfg.Dim)
	}
	id := c.resolveID(externalID)

	c.mu.Lock()
	defer c.mu.Unlock()

	payloadJSON, err := snapshot.EncodePayload(payload)
	if err != nil {
		return 0, err
	}
	if err := c.log.Append(wal.Record{Type: wal.RecordInsert, PointID: id, Vector: vector, Payload: payloadJSON}); err != nil {
		return 0, err
	}

	if err := c.upsertLocked(id, vector, payload); err != nil {
		return 0, err
	}
	return id, nil
}

func (c *Collection) upsertLocked(id uint64, vector []float32, payload map[string]any) error {
	if slot, ok := c.pointToSlot[id]; ok {
		if err := c.vectors.Overwrite(int(slot), vector); err != nil {
			return err
		}
		c.columns.Upsert(slot, payload)
	} else {
		idx, err := c.vectors.Append(vector)
		if err != nil {
			return err
		}
		slot := uint32(idx)
		c.pointToSlot[id] = slot
		if int(slot) == len(c.slotToPoint) {
			c.slotToPoint = append(c.slotToPoint, id)
		} else {
			c.slotToPoint[slot] = id
		}
		c.columns.Upsert(slot, payload)
	}

	c.maybeTrainQuantizerLocked(vector)
	keepOriginal := c.quantizer != nil
	return c.index.Insert(id, vector, keepOriginal)
}

func (c *Collection) maybeTrainQuantizerLocked(vector []float32) {
	if c.quantizer == nil || c.quantizer.Trained() {
		return
	}
	c.trainingSamples = append(c.trainingSamples, vector)
	if len(c.trainingSamples) >= quantize.TrainingSampleSize {
		_ = c.quantizer.Train(c.trainingSamples)
		c.trainingSamples = nil
	}
}

// UpsertItem is one entry in a batch upsert.
type UpsertItem struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// UpsertBatch upserts many points under a single WAL append sequence.
func (c *Collection) UpsertBatch(items []UpsertItem) ([]uint64, error) {
	ids := make([]uint64, len(items))
	for i, item := range items {
		id, err := c.Upsert(item.ID, item.Vector, item.Payload)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// Delete removes the point named externalID. A no-op (success) if it does
// not exist, per spec §4.10's idempotent-delete contract.
func (c *Collection) Delete(externalID string) error {
	id := idhash.HashString(externalID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.log.Append(wal.Record{Type: wal.RecordDelete, PointID: id}); err != nil {
		return err
	}
	return c.deleteLocked(id)
}

func (c *Collection) deleteLocked(id uint64) error {
	slot, ok := c.pointToSlot[id]
	if !ok {
		return nil
	}
	delete(c.pointToSlot, id)
	c.columns.Delete(slot)
	if err := c.index.Delete(id); err != nil && verrors.Of(err) != verrors.KindNotFound {
		return err
	}
	for _, idx := range c.text {
		idx.Delete(id)
	}
	return nil
}

// DeleteBatch deletes many points.
func (c *Collection) DeleteBatch(externalIDs []string) error {
	for _, id := range externalIDs {
		if err := c.Delete(id); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the vector and payload stored for externalID, if live.
func (c *Collection) Get(externalID string) ([]float32, map[string]any, bool) {
	id := idhash.HashString(externalID)
	c.mu.RLock()
	defer c.mu.RUnlock()
	slot, ok := c.pointToSlot[id]
	if !ok {
		return nil, nil, false
	}
	guard, err := c.vectors.Get(int(slot))
	if err != nil {
		return nil, nil, false
	}
	vec, err := guard.Vector()
	if err != nil {
		return nil, nil, false
	}
	return vec, c.columns.Get(slot), true
}

// SearchResult is one scored hit returned from a vector search.
type SearchResult struct {
	ID       uint64
	Distance float32
	Payload  map[string]any
}

// Search returns the k nearest neighbors of query, using the collection's
// configured preset unless an override is given (spec §4.10's optional
// per-call `preset?`).
func (c *Collection) Search(query []float32, k int, preset ...hnsw.Preset) ([]SearchResult, error) {
	p := c.cfg.Preset
	if len(preset) > 0 {
		p = preset[0]
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	results, err := c.index.Search(query, k, p.EfSearch(k))
	if err != nil {
		return nil, err
	}
	return c.attachPayloadsLocked(results), nil
}

// SearchWithFilter constrains vector search to points matching pred.
func (c *Collection) SearchWithFilter(query []float32, k int, pred *column.Predicate) ([]SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	bitmap, err := c.columns.Evaluate(pred)
	if err != nil {
		return nil, err
	}
	allowed := map[uint64]bool{}
	it := bitmap.Iterator()
	for it.HasNext() {
		allowed[c.slotToPoint[it.Next()]] = true
	}

	fetch := k * planner.OverfetchFactor
	results, err := c.index.Search(query, fetch, c.cfg.Preset.EfSearch(fetch))
	if err != nil {
		return nil, err
	}
	var filtered []hnsw.Result
	for _, r := range results {
		if allowed[r.ID] {
			filtered = append(filtered, r)
		}
		if len(filtered) == k {
			break
		}
	}
	return c.attachPayloadsLocked(filtered), nil
}

func (c *Collection) attachPayloadsLocked(results []hnsw.Result) []SearchResult {
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		var payload map[string]any
		if slot, ok := c.pointToSlot[r.ID]; ok {
			payload = c.columns.Get(slot)
		}
		out = append(out, SearchResult{ID: r.ID, Distance: r.Distance, Payload: payload})
	}
	return out
}

// IndexText indexes text under field for the point named externalID's id,
// enabling TextSearch/HybridSearch against that field.
func (c *Collection) IndexText(field, externalID, text string) {
	id := idhash.HashString(externalID)
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.text[field]
	if !ok {
		idx = bm25.New(field)
		c.text[field] = idx
	}
	idx.Index(id, text)
}

// TextSearch returns the top-k BM25 hits for query against field.
func (c *Collection) TextSearch(field, query string, k int) []bm25.Hit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.text[field]
	if !ok {
		return nil
	}
	return idx.Search(query, k)
}

// HybridSearch fuses a vector search and a text search per strategy (spec
// §4.5).
func (c *Collection) HybridSearch(query []float32, field, text string, k int, strategy bm25.FusionStrategy, vectorWeight, textWeight float64) ([]SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	fetch := k * planner.OverfetchFactor
	vecResults, err := c.index.Search(query, fetch, c.cfg.Preset.EfSearch(fetch))
	if err != nil {
		return nil, err
	}
	vecRanks := make([]uint64, len(vecResults))
	vecScores := make(map[uint64]float64, len(vecResults))
	for i, r := range vecResults {
		vecRanks[i] = r.ID
		vecScores[r.ID] = 1 - float64(r.Distance)
	}

	var textRanks []uint64
	var textScores map[uint64]float64
	if idx, ok := c.text[field]; ok {
		hits := idx.Search(text, fetch)
		textScores = make(map[uint64]float64, len(hits))
		textRanks = make([]uint64, len(hits))
		for i, h := range hits {
			textRanks[i] = h.ID
			textScores[h.ID] = h.Score
		}
	}

	inputs := []bm25.FusionInput{{Ranks: vecRanks, Scores: vecScores, Weight: vectorWeight}}
	if textScores != nil {
		inputs = append(inputs, bm25.FusionInput{Ranks: textRanks, Scores: textScores, Weight: textWeight})
	}
	hits := bm25.Fuse(strategy, inputs)
	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		var payload map[string]any
		if slot, ok := c.pointToSlot[h.ID]; ok {
			payload = c.columns.Get(slot)
		}
		out = append(out, SearchResult{ID: h.ID, Distance: float32(1 - h.Score), Payload: payload})
	}
	return out, nil
}

// MultiQuerySearch runs several query vectors concurrently via errgroup and
// fuses their rankings into one result list with the given strategy (RRF,
// weighted or max; there is no average strategy), the same fusion machinery
// HybridSearch uses for vector+text.
func (c *Collection) MultiQuerySearch(vectors [][]float32, k int, strategy bm25.FusionStrategy) ([]SearchResult, error) {
	fetch := k * planner.OverfetchFactor
	inputs := make([]bm25.FusionInput, len(vectors))
	var eg errgroup.Group
	for i, v := range vectors {
		i, v := i, v
		eg.Go(func() error {
			c.mu.RLock()
			results, err := c.index.Search(v, fetch, c.cfg.Preset.EfSearch(fetch))
			c.mu.RUnlock()
			if err != nil {
				return err
			}
			ranks := make([]uint64, len(results))
			scores := make(map[uint64]float64, len(results))
			for j, r := range results {
				ranks[j] = r.ID
				scores[r.ID] = 1 - float64(r.Distance)
			}
			inputs[i] = bm25.FusionInput{Ranks: ranks, Scores: scores, Weight: 1}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	hits := bm25.Fuse(strategy, inputs)
	if len(hits) > k {
		hits = hits[:k]
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		var payload map[string]any
		if slot, ok := c.pointToSlot[h.ID]; ok {
			payload = c.columns.Get(slot)
		}
		out = append(out, SearchResult{ID: h.ID, Distance: float32(1 - h.Score), Payload: payload})
	}
	return out, nil
}

// SearchBatch runs several independent query vectors concurrently,
// returning one result list per query in the same order (spec §4.10:
// "Parallel search, one result list per query, same order").
func (c *Collection) SearchBatch(queries [][]float32, k int) ([][]SearchResult, error) {
	out := make([][]SearchResult, len(queries))
	var eg errgroup.Group
	for i, q := range queries {
		i, q := i, q
		eg.Go(func() error {
			results, err := c.Search(q, k)
			if err != nil {
				return err
			}
			out[i] = results
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Edges returns the collection's optional edge store, or nil if disabled.
func (c *Collection) Edges() *edge.Store { return c.edges }

// ErrEdgesDisabled is returned by graph operations when the collection
// was opened without WithEdges.
var ErrEdgesDisabled = verrors.New("collection.edges", verrors.KindValidation, "edge store not enabled for this collection")

// AddEdge inserts a graph edge, per spec §4.7's edge lifecycle.
func (c *Collection) AddEdge(source, target uint64, label string, properties map[string]any) (uint64, error) {
	if c.edges == nil {
		return 0, ErrEdgesDisabled
	}
	return c.edges.AddEdge(edge.Edge{Source: source, Target: target, Label: label, Properties: properties})
}

// RemoveEdge deletes the edge identified by edgeID.
func (c *Collection) RemoveEdge(edgeID uint64) bool {
	if c.edges == nil {
		return false
	}
	return c.edges.RemoveEdge(edgeID)
}

// Neighbors returns the edges out of node, optionally restricted to label
// (spec §4.7's `neighbors(node, label?)`).
func (c *Collection) Neighbors(node uint64, label string) ([]edge.Edge, error) {
	if c.edges == nil {
		return nil, ErrEdgesDisabled
	}
	return c.edges.Neighbors(node, label), nil
}

// TraverseBFS returns the edges reached by breadth-first traversal from
// start up to maxDepth, per spec §4.7's `traverse_bfs(start, max_depth)`.
// The start node itself is never emitted, only traversed edges.
func (c *Collection) TraverseBFS(start uint64, maxDepth int) (*edge.BFS, error) {
	if c.edges == nil {
		return nil, ErrEdgesDisabled
	}
	return edge.NewBFS(c.edges, start, maxDepth), nil
}

// ExecuteVelesQL parses (or fetches from cache) and runs a VelesQL query
// against this collection.
func (c *Collection) ExecuteVelesQL(query string, params map[string]any) ([]planner.Row, error) {
	return c.executor.Execute(query, params)
}

// planner.Backend implementation. The executor calls back into the
// collection outside of Collection's own public-method locking; VectorSearch
// and JoinRows take no collection lock and rely on the HNSW index and the
// edge store locking themselves.

func (c *Collection) VectorSearch(query []float32, k int, ef int) ([]hnsw.Result, error) {
	return c.index.Search(query, k, ef)
}

func (c *Collection) EvaluatePredicate(pred *column.Predicate) ([]uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bitmap, err := c.columns.Evaluate(pred)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, bitmap.GetCardinality())
	it := bitmap.Iterator()
	for it.HasNext() {
		slot := it.Next()
		if int(slot) < len(c.slotToPoint) {
			ids = append(ids, c.slotToPoint[slot])
		}
	}
	return ids, nil
}

func (c *Collection) Payload(pointID uint64) (map[string]any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	slot, ok := c.pointToSlot[pointID]
	if !ok {
		return nil, false
	}
	return c.columns.Get(slot), true
}

func (c *Collection) Vector(pointID uint64) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	slot, ok := c.pointToSlot[pointID]
	if !ok {
		return nil, false
	}
	guard, err := c.vectors.Get(int(slot))
	if err != nil {
		return nil, false
	}
	vec, err := guard.Vector()
	if err != nil {
		return nil, false
	}
	return vec, true
}

func (c *Collection) AllLiveIDs() []uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]uint64, 0, len(c.pointToSlot))
	for id := range c.pointToSlot {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// JoinRows implements planner.Backend for VelesQL's `JOIN table_ref`: the
// only secondary table a collection exposes is its edge store (spec §4.7),
// addressed by the name "edges", one row per edge carrying its source,
// target, label, and properties.
func (c *Collection) JoinRows(table string) ([]planner.Row, error) {
	if !strings.EqualFold(table, "edges") {
		return nil, verrors.New("collection.join", verrors.KindValidation, "unknown JOIN table %q", table)
	}
	if c.edges == nil {
		return nil, ErrEdgesDisabled
	}
	edges := c.edges.AllEdges()
	rows := make([]planner.Row, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, planner.Row{
			ID: e.ID,
			Fields: map[string]any{
				"id":         e.ID,
				"source":     e.Source,
				"target":     e.Target,
				"label":      e.Label,
				"properties": e.Properties,
			},
		})
	}
	return rows, nil
}

// Flush checkpoints the WAL, flushes vector storage, and writes a fresh
// binary snapshot (spec §6.2), establishing a durable point recovery can
// fast-forward past.
func (c *Collection) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.vectors.Flush(); err != nil {
		return err
	}
	if err := c.writeSnapshotLocked(); err != nil {
		return err
	}
	return c.log.Checkpoint()
}

// Compact rebuilds the HNSW graph dropping tombstoned nodes (spec §4.1).
// Vector storage and the column store are append-only/soft-delete and have
// no analogous compaction step.
func (c *Collection) Compact() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.index.ShouldCompact() {
		return nil
	}
	return c.index.Compact()
}

// Close flushes and releases all resources held by the collection.
func (c *Collection) Close() error {
	if err := c.Flush(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.log.Close(); err != nil {
		return err
	}
	return c.vectors.Close()
}

func (c *Collection) writeSnapshotLocked() error {
	points := make([]snapshot.Point, 0, len(c.pointToSlot))
	for id, slot := range c.pointToSlot {
		guard, err := c.vectors.Get(int(slot))
		if err != nil {
			continue
		}
		vec, err := guard.Vector()
		if err != nil {
			continue
		}
		payload, err := snapshot.EncodePayload(c.columns.Get(slot))
		if err != nil {
			return err
		}
		points = append(points, snapshot.Point{ID: id, Vector: vec, Payload: payload})
	}

	path := filepath.Join(c.dir, "snapshot.bin")
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return verrors.Wrap("collection.flush", verrors.KindIO, err)
	}
	if err := snapshot.WriteAll(f, c.cfg.Dim, points); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return verrors.Wrap("collection.flush", verrors.KindIO, err)
	}
	if err := f.Close(); err != nil {
		return verrors.Wrap("collection.flush", verrors.KindIO, err)
	}
	return os.Rename(tmpPath, path)
}

func (c *Collection) loadSnapshot() error {
	path := filepath.Join(c.dir, "snapshot.bin")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return verrors.Wrap("collection.open", verrors.KindIO, err)
	}
	defer f.Close()

	_, points, err := snapshot.ReadAll(f)
	if err != nil {
		return err
	}
	for _, p := range points {
		payload, err := snapshot.DecodePayload(p.Payload)
		if err != nil {
			return err
		}
		if err := c.upsertLocked(p.ID, p.Vector, payload); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collection) replayWAL() error {
	return wal.Replay(filepath.Join(c.dir, "wal"), func(rec wal.Record) error {
		switch rec.Type {
		case wal.RecordInsert:
			payload, err := snapshot.DecodePayload(rec.Payload)
			if err != nil {
				return err
			}
			return c.upsertLocked(rec.PointID, rec.Vector, payload)
		case wal.RecordDelete:
			return c.deleteLocked(rec.PointID)
		case wal.RecordUpdate:
			slot, ok := c.pointToSlot[rec.PointID]
			if !ok {
				return nil
			}
			payload, err := snapshot.DecodePayload(rec.Payload)
			if err != nil {
				return err
			}
			c.columns.Upsert(slot, payload)
			return nil
		}
		return nil
	})
}

// collectionMetadata is the on-disk record at <dir>/metadata.json (spec
// §6.5), written once at creation and never mutated afterward (dimension
// and metric are fixed for a collection's lifetime).
type collectionMetadata struct {
	Dim    int `json:"dim"`
	Metric int `json:"metric"`
}

func readOrInitMetadata(dir string) (collectionMetadata, error) {
	path := filepath.Join(dir, "metadata.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return collectionMetadata{}, verrors.New("collection.open", verrors.KindValidation, "collection metadata missing at %s; create it via database.CreateCollection first", path)
	}
	if err != nil {
		return collectionMetadata{}, verrors.Wrap("collection.open", verrors.KindIO, err)
	}
	var meta collectionMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return collectionMetadata{}, verrors.Wrap("collection.open", verrors.KindCorruptSnapshot, err)
	}
	return meta, nil
}

// WriteMetadata writes a new collection's metadata.json, called by
// database.CreateCollection before the first Open.
func WriteMetadata(dir string, dim int, metric distance.Metric) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return verrors.Wrap("collection.create", verrors.KindIO, err)
	}
	data, err := json.Marshal(collectionMetadata{Dim: dim, Metric: int(metric)})
	if err != nil {
		return verrors.Wrap("collection.create", verrors.KindValidation, err)
	}
	return os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0o644)
}
