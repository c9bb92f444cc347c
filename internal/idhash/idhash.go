// Package idhash hashes protocol-level string identifiers (as received by
// bindings outside the core) into the uint64 point/edge ids the core uses
// internally. Collisions are theoretically possible (per spec §6.1 /
// Open Question 4); Tracker reports a detected collision to its caller, which
// logs a warning rather than rejecting the id.
package idhash

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// HashString maps s to a u64 id using xxhash.
func HashString(s string) uint64 {
	return xxhash.Sum64String(s)
}

// Tracker detects collisions among strings it has seen hashed, so a
// collection can log a warning instead of silently merging two distinct
// caller-facing ids.
type Tracker struct {
	mu   sync.Mutex
	seen map[uint64]string
}

// NewTracker creates an empty collision tracker.
func NewTracker() *Tracker {
	return &Tracker{seen: make(map[uint64]string)}
}

// Observe hashes s, records the mapping, and reports whether s collided with
// a previously observed, different string that hashed to the same id.
func (t *Tracker) Observe(s string) (id uint64, collided bool) {
	id = HashString(s)
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.seen[id]; ok && prev != s {
		return id, true
	}
	t.seen[id] = s
	return id, false
}
