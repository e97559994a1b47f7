// Package slab implements a slab allocator for fixed-size objects, in
// the style of the classical Bonwick slab allocator: a Cache is
// parameterised by one object size/alignment and hands out O(1)
// allocate/free storage for objects of that shape, backed by a
// pluggable MemoryBackend.
//
// A Cache is not safe for concurrent use. Callers serving allocations
// from multiple goroutines must wrap a Cache in their own mutex; the
// Cache deliberately carries no internal locking (see package sidetable
// for the one piece of shared state, the side table, that is
// synchronized).
package slab

import (
	"fmt"
	"unsafe"
)

// Stats reports a Cache's current bookkeeping, mirroring the
// allocs/frees/reused/live/slabs accounting kept by the teacher's
// pointerstore.Store.
type Stats struct {
	Allocs int
	Frees  int
	Reused int
	Live   int
	Slabs  int
}

// Cache owns a population of slabs, all sized for one object
// size/alignment, and dispatches Alloc/Free against them.
type Cache struct {
	backend  MemoryBackend
	sizeType SizeType
	mode     resolveMode

	slabSize    uint64
	pageSize    uint64
	objectSize  uint64
	objectAlign uint64

	lay layout

	freeSlabs    uintptr
	partialSlabs uintptr
	fullSlabs    uintptr

	slabCount int
	allocs    int
	frees     int
	reused    int

	closed bool
}

// New validates slabSize/pageSize/objectAlign and precomputes this
// cache's slab layout. No slabs are allocated eagerly; the backend is
// not touched until the first Alloc.
func New(slabSize, pageSize uint64, objectSize, objectAlign uint64, sizeType SizeType, backend MemoryBackend) (*Cache, error) {
	if !isPowerOfTwo(pageSize) {
		return nil, ErrInvalidPageSize
	}
	if slabSize < pageSize || slabSize%pageSize != 0 {
		return nil, ErrInvalidSlabSize
	}

	lay, err := computeLayout(slabSize, pageSize, objectSize, objectAlign, sizeType)
	if err != nil {
		return nil, err
	}

	return &Cache{
		backend:     backend,
		sizeType:    sizeType,
		mode:        chooseResolveMode(sizeType, slabSize, pageSize),
		slabSize:    slabSize,
		pageSize:    pageSize,
		objectSize:  objectSize,
		objectAlign: objectAlign,
		lay:         lay,
	}, nil
}

// Alloc returns a pointer to a freshly reserved, properly aligned object
// slot, or nil if the backend could not supply a new slab. No lists are
// mutated on a nil return.
func (c *Cache) Alloc() unsafe.Pointer {
	c.mustBeOpen()

	var s *SlabInfo
	fromPartial := false

	switch {
	case c.partialSlabs != 0:
		s = slabInfoAt(c.partialSlabs)
		fromPartial = true

	case c.freeSlabs != 0:
		s = slabInfoAt(c.freeSlabs)
		unlink(&c.freeSlabs, s)

	default:
		sAddr, err := c.grow()
		if err != nil {
			return nil
		}
		s = slabInfoAt(sAddr)
		unlink(&c.freeSlabs, s)
	}

	if s.freeHead == noFreeSlot {
		panic("slab: slab in free/partial list has no free slots")
	}

	c.allocs++
	idx := c.popSlot(s)
	ptr := unsafe.Pointer(c.slotAddr(s, idx))
	s.inUse++
	if idx < s.touched {
		c.reused++
	} else {
		s.touched = idx + 1
	}

	if s.isFull() {
		if fromPartial {
			move(&c.partialSlabs, &c.fullSlabs, s)
		} else {
			pushFront(&c.fullSlabs, s)
		}
	} else if !fromPartial {
		pushFront(&c.partialSlabs, s)
	}

	return ptr
}

// Free returns ptr, previously obtained from Alloc on this Cache and not
// already freed, to its owning slab.
func (c *Cache) Free(ptr unsafe.Pointer) {
	c.mustBeOpen()

	s := c.resolve(ptr)
	if s == nil || s.owner != uintptr(unsafe.Pointer(c)) {
		panic("slab: Free called with a pointer not owned by this cache")
	}

	offset := uintptr(ptr) - (s.base + c.lay.firstSlotOffset)
	if offset%uintptr(c.lay.slotSize) != 0 {
		panic(fmt.Sprintf("slab: Free called with misaligned pointer %#x", uintptr(ptr)))
	}
	idx := uint32(offset / uintptr(c.lay.slotSize))
	if idx >= s.capacity {
		panic(fmt.Sprintf("slab: Free called with out-of-range pointer %#x", uintptr(ptr)))
	}

	wasFull := s.isFull()
	c.pushSlot(s, idx)
	s.inUse--
	c.frees++

	switch {
	case wasFull:
		if s.isEmpty() {
			move(&c.fullSlabs, &c.freeSlabs, s)
		} else {
			move(&c.fullSlabs, &c.partialSlabs, s)
		}
	case s.isEmpty():
		move(&c.partialSlabs, &c.freeSlabs, s)
	}
}

// Reap destroys every currently empty slab and returns the number
// destroyed. The baseline policy otherwise (spec §9) is to retain empty
// slabs for reuse; Reap is the explicit opt-in to give that memory back.
func (c *Cache) Reap() int {
	c.mustBeOpen()

	n := 0
	for c.freeSlabs != 0 {
		s := slabInfoAt(c.freeSlabs)
		unlink(&c.freeSlabs, s)
		if err := c.shrinkOne(s); err != nil {
			// Put it back; we cannot lose track of a live slab.
			pushFront(&c.freeSlabs, s)
			break
		}
		n++
	}
	return n
}

// Close destroys every slab this cache owns, free, partial or full. The
// caller is responsible for ensuring there are no outstanding objects;
// closing a cache with live allocations silently reclaims their storage.
func (c *Cache) Close() error {
	if c.closed {
		return nil
	}
	for _, head := range []*uintptr{&c.freeSlabs, &c.partialSlabs, &c.fullSlabs} {
		for *head != 0 {
			s := slabInfoAt(*head)
			unlink(head, s)
			if err := c.shrinkOne(s); err != nil {
				return err
			}
		}
	}
	c.closed = true
	return nil
}

// Stats reports this cache's current allocation accounting.
func (c *Cache) Stats() Stats {
	return Stats{
		Allocs: c.allocs,
		Frees:  c.frees,
		Reused: c.reused,
		Live:   c.allocs - c.frees,
		Slabs:  c.slabCount,
	}
}

func (c *Cache) mustBeOpen() {
	if c.closed {
		panic("slab: use of Cache after Close")
	}
}

// grow obtains a new slab from the backend, initialises its SlabInfo,
// links the slab into freeSlabs and returns the SlabInfo's address.
func (c *Cache) grow() (uintptr, error) {
	base, err := c.backend.AllocSlab(c.slabSize, c.pageSize)
	if err != nil {
		return 0, err
	}

	var infoAddr uintptr
	if c.sizeType == Small {
		infoAddr = base + c.lay.slabInfoOffset
	} else {
		infoAddr, err = c.backend.AllocSlabInfo(c.lay.slabInfoFootprint)
		if err != nil {
			_ = c.backend.FreeSlab(base, c.slabSize, c.pageSize)
			return 0, err
		}
	}

	s := slabInfoAt(infoAddr)
	*s = SlabInfo{
		owner:    uintptr(unsafe.Pointer(c)),
		base:     base,
		capacity: c.lay.capacity,
	}
	c.seedFreeList(s)

	if c.needsSideTable() {
		c.pagesSpanned(base, func(pageAddr uintptr) {
			c.backend.SaveSlabInfoPtr(pageAddr, infoAddr)
		})
	}

	pushFront(&c.freeSlabs, s)
	c.slabCount++
	return infoAddr, nil
}

// shrinkOne is the inverse of grow: it removes any side-table entries for
// the slab's pages, returns the SlabInfo (Large only) and the slab pages
// themselves to the backend. s must already be unlinked from its list.
func (c *Cache) shrinkOne(s *SlabInfo) error {
	base := s.base
	infoAddr := addrOf(s)

	if c.needsSideTable() {
		c.pagesSpanned(base, func(pageAddr uintptr) {
			c.backend.DeleteSlabInfoPtr(pageAddr)
		})
	}

	if c.sizeType == Large {
		if err := c.backend.FreeSlabInfo(infoAddr); err != nil {
			return err
		}
	}

	if err := c.backend.FreeSlab(base, c.slabSize, c.pageSize); err != nil {
		return err
	}

	c.slabCount--
	return nil
}
