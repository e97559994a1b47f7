// Package sidetable implements the page->SlabInfo side table a
// MemoryBackend uses in resolution modes B and C (see the slab package's
// resolve.go): every page of a multi-page Small slab, or of any Large
// slab, is recorded here so a Cache can map an object pointer's page back
// to the SlabInfo that owns it.
//
// Table shards its map across a fixed number of independently-locked
// buckets, the same discipline the teacher applies to its bytes-identity
// string interner (pkg/intern's InternerWithBytesId/internerWithBytesIdShard):
// a single MemoryBackend, and therefore a single Table, may be shared by
// several single-threaded Caches running on different goroutines even
// though no individual Cache is itself concurrent.
package sidetable

import (
	"sync"

	xxhash "github.com/cespare/xxhash/v2"
)

const shardCount = 32

// Table maps a page address to the address of the SlabInfo that owns it.
type Table struct {
	shards [shardCount]shard
}

type shard struct {
	mu sync.Mutex
	m  map[uintptr]uintptr
}

// New returns an empty Table.
func New() *Table {
	t := &Table{}
	for i := range t.shards {
		t.shards[i].m = make(map[uintptr]uintptr)
	}
	return t
}

// Save records infoPtr as the SlabInfo owning pageAddr. A second Save for
// the same pageAddr replaces the first (last-write-wins).
func (t *Table) Save(pageAddr, infoPtr uintptr) {
	s := t.shardFor(pageAddr)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[pageAddr] = infoPtr
}

// Get returns the last infoPtr saved for pageAddr, or 0 if none was
// saved (or it has since been deleted).
func (t *Table) Get(pageAddr uintptr) uintptr {
	s := t.shardFor(pageAddr)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[pageAddr]
}

// Delete removes the mapping for pageAddr. Deleting an absent key is a
// no-op.
func (t *Table) Delete(pageAddr uintptr) {
	s := t.shardFor(pageAddr)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, pageAddr)
}

// Len reports the total number of page mappings currently recorded,
// across every shard. Intended for tests and diagnostics.
func (t *Table) Len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		n += len(s.m)
		s.mu.Unlock()
	}
	return n
}

func (t *Table) shardFor(pageAddr uintptr) *shard {
	h := xxhash.Sum64(uintptrBytes(pageAddr))
	return &t.shards[h%uint64(shardCount)]
}

func uintptrBytes(p uintptr) []byte {
	b := make([]byte, 8)
	v := uint64(p)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
