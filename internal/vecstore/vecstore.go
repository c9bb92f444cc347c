// Package vecstore implements VelesDB's contiguous, memory-mapped,
// 64-byte-aligned vector storage (spec §4.2), keyed by a dense internal
// index 0..n. Grounded on the mmap-handling fields found in the example
// pack's storage repos (duynguyendang-gca's "mmapData []byte" field,
// moabualruz-rice-search's MemmapThreshold) and on spec §5's mmap remap
// protocol, which the teacher (SQLite-backed) never implements.
package vecstore

import (
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/velesdb/velesdb/internal/verrors"
)

const (
	// alignment is the base-pointer alignment mandated by spec §4.2.
	alignment = 64
	// growthFactor controls how aggressively Append extends the backing file.
	growthFactor = 2
	// minCapacity is the minimum number of vector slots a fresh mapping reserves.
	minCapacity = 1024
)

// Guard is a read-only view into a single vector, tied to the remap epoch
// active when it was created. Any access after a concurrent remap is
// detected and fails fast rather than dereferencing stale memory. Guards
// are safe for concurrent use: the backing mapping is read-only memory
// shared by all readers, and the epoch check prevents use-after-remap.
type Guard struct {
	store *Store
	epoch uint64
	data  []float32
}

// Vector returns the guarded slice, or ErrMmapRemapped if a remap has
// happened since the guard was created.
func (g *Guard) Vector() ([]float32, error) {
	if atomic.LoadUint64(&g.store.epoch) != g.epoch {
		return nil, verrors.Wrap("vecstore.guard", verrors.KindMmapRemapped, fmt.Errorf("stale read guard: epoch advanced"))
	}
	return g.data, nil
}

// Store is contiguous, cache-aligned, memory-mapped storage for f32
// vectors of a fixed dimension.
type Store struct {
	mu  sync.RWMutex
	dim int

	path string
	file *os.File
	data []byte // mmap'd region, 64-byte aligned base

	capacity int // slots currently mapped
	count    int // slots currently in use (dense index 0..count)

	epoch uint64 // fetch_add(Release) on every remap; readers check with Acquire semantics via atomic loads
}

func slotBytes(dim int) int {
	// pad each vector's footprint so slot boundaries stay float32-aligned;
	// base pointer alignment (64B) is handled by the initial mmap placement.
	return dim * 4
}

// Open creates or opens the backing file at path for vectors of dimension
// dim and maps it into memory.
func Open(path string, dim int) (*Store, error) {
	if dim <= 0 || dim > 65535 {
		return nil, verrors.New("vecstore.open", verrors.KindValidation, "dimension %d out of range [1,65535]", dim)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, verrors.Wrap("vecstore.open", verrors.KindIO, err)
	}
	s := &Store{dim: dim, path: path, file: f}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, verrors.Wrap("vecstore.open", verrors.KindIO, err)
	}
	existingSlots := int(info.Size()) / slotBytes(dim)
	cap := minCapacity
	if existingSlots > cap {
		cap = existingSlots
	}
	if err := s.remapLocked(cap); err != nil {
		_ = f.Close()
		return nil, err
	}
	s.count = existingSlots
	return s, nil
}

// Dim returns the store's fixed vector dimension.
func (s *Store) Dim() int { return s.dim }

// Len returns the number of vectors currently stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Reserve pre-extends the mapping to at least capacity slots, avoiding a
// remap during batch ingest.
func (s *Store) Reserve(capacity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if capacity <= s.capacity {
		return nil
	}
	return s.remapLocked(capacity)
}

// Append writes vector at the next dense index, growing the mapping via
// file extension + remap if capacity is exhausted. Returns the new
// internal index.
func (s *Store) Append(vector []float32) (int, error) {
	if len(vector) != s.dim {
		return 0, verrors.New("vecstore.append", verrors.KindDimensionMismatch, "vector length %d != dimension %d", len(vector), s.dim)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count >= s.capacity {
		newCap := s.capacity * growthFactor
		if newCap < minCapacity {
			newCap = minCapacity
		}
		if err := s.remapLocked(newCap); err != nil {
			return 0, err
		}
	}
	idx := s.count
	s.writeLocked(idx, vector)
	s.count++
	return idx, nil
}

// Overwrite replaces the vector at internal index idx in place (used for
// upsert of an existing id).
func (s *Store) Overwrite(idx int, vector []float32) error {
	if len(vector) != s.dim {
		return verrors.New("vecstore.overwrite", verrors.KindDimensionMismatch, "vector length %d != dimension %d", len(vector), s.dim)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= s.count {
		return verrors.Wrap("vecstore.overwrite", verrors.KindNotFound, fmt.Errorf("internal index %d out of range", idx))
	}
	s.writeLocked(idx, vector)
	return nil
}

func (s *Store) writeLocked(idx int, vector []float32) {
	off := idx * slotBytes(s.dim)
	for i, f := range vector {
		b := off + i*4
		putFloat32(s.data[b:b+4], f)
	}
}

// Get returns a read guard for the vector at internal index idx, tied to
// the current remap epoch.
func (s *Store) Get(idx int) (*Guard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx < 0 || idx >= s.count {
		return nil, verrors.Wrap("vecstore.get", verrors.KindNotFound, fmt.Errorf("internal index %d out of range", idx))
	}
	epoch := atomic.LoadUint64(&s.epoch)
	off := idx * slotBytes(s.dim)
	vec := make([]float32, s.dim)
	for i := 0; i < s.dim; i++ {
		vec[i] = getFloat32(s.data[off+i*4 : off+i*4+4])
	}
	return &Guard{store: s, epoch: epoch, data: vec}, nil
}

// remapLocked performs the mmap remap protocol from spec §5: flush dirty
// pages, extend the file, create a new mapping, publish it, and bump the
// epoch with release ordering. Caller must hold s.mu (write lock).
func (s *Store) remapLocked(newCapacity int) error {
	if s.data != nil {
		if err := unix.Msync(s.data, unix.MS_SYNC); err != nil {
			return verrors.Wrap("vecstore.remap", verrors.KindIO, err)
		}
		if err := unix.Munmap(s.data); err != nil {
			return verrors.Wrap("vecstore.remap", verrors.KindIO, err)
		}
		s.data = nil
	}

	newSize := int64(newCapacity * slotBytes(s.dim))
	if err := s.file.Truncate(newSize); err != nil {
		return verrors.Wrap("vecstore.remap", verrors.KindCapacityExceeded, err)
	}

	data, err := unix.Mmap(int(s.file.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return verrors.Wrap("vecstore.remap", verrors.KindIO, err)
	}
	s.data = data
	s.capacity = newCapacity
	atomic.AddUint64(&s.epoch, 1) // release: publishes the new mapping to subsequent Acquire loads
	return nil
}

// Flush durably persists all dirty pages to disk.
func (s *Store) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return nil
	}
	if err := unix.Msync(s.data, unix.MS_SYNC); err != nil {
		return verrors.Wrap("vecstore.flush", verrors.KindIO, err)
	}
	return s.file.Sync()
}

// Close unmaps the backing file, trims it to the slots in use (so a later
// Open counts only those), and closes it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.data != nil {
		err = unix.Munmap(s.data)
		s.data = nil
	}
	if terr := s.file.Truncate(int64(s.count * slotBytes(s.dim))); terr != nil && err == nil {
		err = terr
	}
	if cerr := s.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return verrors.Wrap("vecstore.close", verrors.KindIO, err)
	}
	return nil
}

func putFloat32(b []byte, f float32) {
	bits := math.Float32bits(f)
	b[0] = byte(bits)
	b[1] = byte(bits >> 8)
	b[2] = byte(bits >> 16)
	b[3] = byte(bits >> 24)
}

func getFloat32(b []byte) float32 {
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits)
}
