// Package velesdb owns a data directory containing one subdirectory per
// collection plus a metadata.json listing them all (spec §4.11, §6.5).
//
// Grounded on the teacher's (liliang-cn/sqvect) pkg/sqvect/sqvect.go
// Open/Config/Option shape, extended from a single SQLite-backed store
// into a registry of independently-opened collection.Collection
// directories.
package velesdb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/velesdb/velesdb/internal/distance"
	"github.com/velesdb/velesdb/internal/verrors"
	"github.com/velesdb/velesdb/internal/vlog"
	"github.com/velesdb/velesdb/internal/wal"
	"github.com/velesdb/velesdb/pkg/collection"
)

// Config configures a Database and the default options new collections
// are opened with.
type Config struct {
	Logger     vlog.Logger
	SyncPolicy wal.SyncPolicy
}

// DefaultConfig returns sensible defaults: a nop logger and batched WAL
// fsyncs, matching collection.defaultConfig's own defaults.
func DefaultConfig() Config {
	return Config{Logger: vlog.Nop(), SyncPolicy: wal.SyncBatched}
}

// Option is a functional option for Open.
type Option func(*Config)

// WithLogger overrides the database's (and its collections') logger.
func WithLogger(l vlog.Logger) Option { return func(c *Config) { c.Logger = l } }

// WithSyncPolicy overrides the WAL fsync policy new collections open with.
func WithSyncPolicy(p wal.SyncPolicy) Option { return func(c *Config) { c.SyncPolicy = p } }

// registryEntry is one line of the top-level metadata.json collection list.
type registryEntry struct {
	Name   string `json:"name"`
	Dim    int    `json:"dim"`
	Metric int    `json:"metric"`
}

type registry struct {
	Collections []registryEntry `json:"collections"`
}

// Database is the top-level handle over a data directory: it owns the
// collection registry and opened collection.Collection instances.
type Database struct {
	mu   sync.Mutex
	path string
	cfg  Config

	entries map[string]registryEntry
	open    map[string]*collection.Collection
}

// Open opens path as a database, initializing an empty one if path does
// not yet contain a metadata.json (spec §4.11). It does not eagerly open
// every collection; collections are opened lazily on first GetCollection.
func Open(path string, opts ...Option) (*Database, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, verrors.Wrap("database.open", verrors.KindIO, err)
	}

	db := &Database{
		path:    path,
		cfg:     cfg,
		entries: make(map[string]registryEntry),
		open:    make(map[string]*collection.Collection),
	}

	reg, err := readRegistry(path)
	if err != nil {
		return nil, err
	}
	for _, e := range reg.Collections {
		db.entries[e.Name] = e
	}
	return db, nil
}

// CreateCollection registers and initializes a new collection named name
// with the given fixed dimension and metric. Returns ErrValidation if name
// already exists.
func (db *Database) CreateCollection(name string, dim int, metric distance.Metric) (*collection.Collection, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.entries[name]; exists {
		return nil, verrors.New("database.create_collection", verrors.KindValidation, "collection %q already exists", name)
	}
	if dim < 1 || dim > 65535 {
		return nil, verrors.New("database.create_collection", verrors.KindValidation, "dimension %d out of range [1, 65535]", dim)
	}

	dir := db.collectionDir(name)
	if err := collection.WriteMetadata(dir, dim, metric); err != nil {
		return nil, err
	}

	db.entries[name] = registryEntry{Name: name, Dim: dim, Metric: int(metric)}
	if err := writeRegistry(db.path, db.entries); err != nil {
		delete(db.entries, name)
		return nil, err
	}

	col, err := collection.Open(name, dir,
		collection.WithSyncPolicy(db.cfg.SyncPolicy),
		collection.WithLogger(db.cfg.Logger),
	)
	if err != nil {
		return nil, err
	}
	db.open[name] = col
	return col, nil
}

// DropCollection closes (if open) and permanently removes a collection's
// directory and registry entry.
func (db *Database) DropCollection(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.entries[name]; !exists {
		return verrors.New("database.drop_collection", verrors.KindNotFound, "collection %q does not exist", name)
	}
	if col, ok := db.open[name]; ok {
		if err := col.Close(); err != nil {
			return err
		}
		delete(db.open, name)
	}
	delete(db.entries, name)
	if err := writeRegistry(db.path, db.entries); err != nil {
		return err
	}
	if err := os.RemoveAll(db.collectionDir(name)); err != nil {
		return verrors.Wrap("database.drop_collection", verrors.KindIO, err)
	}
	return nil
}

// GetCollection returns the named collection, opening it from disk (and
// replaying its WAL) on first access.
func (db *Database) GetCollection(name string) (*collection.Collection, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if col, ok := db.open[name]; ok {
		return col, nil
	}
	if _, exists := db.entries[name]; !exists {
		return nil, verrors.New("database.get_collection", verrors.KindNotFound, "collection %q does not exist", name)
	}

	col, err := collection.Open(name, db.collectionDir(name),
		collection.WithSyncPolicy(db.cfg.SyncPolicy),
		collection.WithLogger(db.cfg.Logger),
	)
	if err != nil {
		return nil, err
	}
	db.open[name] = col
	return col, nil
}

// ListCollections returns the names of every registered collection, open
// or not.
func (db *Database) ListCollections() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	names := make([]string, 0, len(db.entries))
	for name := range db.entries {
		names = append(names, name)
	}
	return names
}

// Close flushes and closes every currently-open collection.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for name, col := range db.open {
		if err := col.Close(); err != nil {
			return err
		}
		delete(db.open, name)
	}
	return nil
}

func (db *Database) collectionDir(name string) string {
	return filepath.Join(db.path, name)
}

func readRegistry(path string) (registry, error) {
	data, err := os.ReadFile(filepath.Join(path, "metadata.json"))
	if os.IsNotExist(err) {
		return registry{}, nil
	}
	if err != nil {
		return registry{}, verrors.Wrap("database.open", verrors.KindIO, err)
	}
	var reg registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return registry{}, verrors.Wrap("database.open", verrors.KindCorruptSnapshot, err)
	}
	return reg, nil
}

func writeRegistry(path string, entries map[string]registryEntry) error {
	reg := registry{Collections: make([]registryEntry, 0, len(entries))}
	for _, e := range entries {
		reg.Collections = append(reg.Collections, e)
	}
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return verrors.Wrap("database.registry", verrors.KindValidation, err)
	}

	target := filepath.Join(path, "metadata.json")
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return verrors.Wrap("database.registry", verrors.KindIO, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return verrors.Wrap("database.registry", verrors.KindIO, err)
	}
	return nil
}
