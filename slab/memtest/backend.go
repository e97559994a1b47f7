// Package memtest provides a Go-heap-backed slab.MemoryBackend for unit
// and property tests, in the spirit of the fake backing stores the
// teacher builds for its own fuzz tests (offheap/fuzz_test.go's Objects
// helper). Unlike sysmem it never touches the OS; every "slab" and
// "SlabInfo" is a pinned byte slice kept alive by this package so the
// garbage collector never moves or reclaims it out from under raw
// uintptr arithmetic.
//
// Backend additionally records every call it receives, so tests can
// assert end-to-end scenarios from spec §8 - e.g. that mode A never
// calls GetSlabInfoPtr, or that the Nth AllocSlab fails and the cache's
// list invariants are unaffected.
package memtest

import (
	"errors"
	"sync"
	"unsafe"
)

// ErrBackendOutOfMemory is returned by AllocSlab once the configured
// failure point has been reached. AllocSlabInfo never fails.
var ErrBackendOutOfMemory = errors.New("memtest: backend out of memory")

// Backend is a recording, Go-heap-backed slab.MemoryBackend.
type Backend struct {
	mu sync.Mutex

	// FailSlabAllocAfter, if non-zero, makes the FailSlabAllocAfter'th
	// call (1-indexed) to AllocSlab, and every call after it, return
	// ErrBackendOutOfMemory.
	FailSlabAllocAfter int

	slabAllocCalls      int
	slabFreeCalls       int
	slabInfoAllocCalls  int
	slabInfoFreeCalls   int
	savedPages          map[uintptr]uintptr
	saveCalls           []uintptr
	getCalls            []uintptr
	deleteCalls         []uintptr
	liveSlabs           map[uintptr][]byte
	liveInfos           map[uintptr][]byte
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{
		savedPages: make(map[uintptr]uintptr),
		liveSlabs:  make(map[uintptr][]byte),
		liveInfos:  make(map[uintptr][]byte),
	}
}

func (b *Backend) AllocSlab(slabSize, pageSize uint64) (uintptr, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.slabAllocCalls++
	if b.FailSlabAllocAfter != 0 && b.slabAllocCalls >= b.FailSlabAllocAfter {
		return 0, ErrBackendOutOfMemory
	}

	buf := pagedAlloc(int(slabSize), int(pageSize))
	addr := addrOfSlice(buf)
	b.liveSlabs[addr] = buf
	return addr, nil
}

func (b *Backend) FreeSlab(ptr uintptr, slabSize, pageSize uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.slabFreeCalls++
	if _, ok := b.liveSlabs[ptr]; !ok {
		return errors.New("memtest: FreeSlab called on unknown slab")
	}
	delete(b.liveSlabs, ptr)
	return nil
}

func (b *Backend) AllocSlabInfo(size uintptr) (uintptr, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.slabInfoAllocCalls++
	buf := make([]byte, size)
	addr := addrOfSlice(buf)
	b.liveInfos[addr] = buf
	return addr, nil
}

func (b *Backend) FreeSlabInfo(ptr uintptr) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.slabInfoFreeCalls++
	if _, ok := b.liveInfos[ptr]; !ok {
		return errors.New("memtest: FreeSlabInfo called on unknown slab info")
	}
	delete(b.liveInfos, ptr)
	return nil
}

func (b *Backend) SaveSlabInfoPtr(pageAddr, infoPtr uintptr) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.saveCalls = append(b.saveCalls, pageAddr)
	b.savedPages[pageAddr] = infoPtr
}

func (b *Backend) GetSlabInfoPtr(pageAddr uintptr) uintptr {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.getCalls = append(b.getCalls, pageAddr)
	return b.savedPages[pageAddr]
}

func (b *Backend) DeleteSlabInfoPtr(pageAddr uintptr) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.deleteCalls = append(b.deleteCalls, pageAddr)
	delete(b.savedPages, pageAddr)
}

// Calls is a snapshot of the call counts/history this Backend has
// observed, for use in assertions.
type Calls struct {
	SlabAllocs     int
	SlabFrees      int
	SlabInfoAllocs int
	SlabInfoFrees  int
	Saves          []uintptr
	Gets           []uintptr
	Deletes        []uintptr
	LiveSlabs      int
	LiveInfos      int
}

func (b *Backend) Calls() Calls {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Calls{
		SlabAllocs:     b.slabAllocCalls,
		SlabFrees:      b.slabFreeCalls,
		SlabInfoAllocs: b.slabInfoAllocCalls,
		SlabInfoFrees:  b.slabInfoFreeCalls,
		Saves:          append([]uintptr(nil), b.saveCalls...),
		Gets:           append([]uintptr(nil), b.getCalls...),
		Deletes:        append([]uintptr(nil), b.deleteCalls...),
		LiveSlabs:      len(b.liveSlabs),
		LiveInfos:      len(b.liveInfos),
	}
}

// pagedAlloc returns a page-aligned buffer of size bytes, the same
// guarantee unix.Mmap gives the real backend. It over-allocates and
// slices forward to the next page boundary rather than relying on any
// particular Go allocator alignment.
func pagedAlloc(size, pageSize int) []byte {
	buf := make([]byte, size+pageSize)
	addr := addrOfSlice(buf)
	pad := (uintptr(pageSize) - addr%uintptr(pageSize)) % uintptr(pageSize)
	return buf[pad : pad+uintptr(size)]
}

func addrOfSlice(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
