package slab

import "unsafe"

// SlabInfo is the per-slab bookkeeping record. For a Small cache this
// struct lives inside the slab itself, at layout.slabInfoOffset; for a
// Large cache it lives in storage obtained from the backend via
// AllocSlabInfo. Either way a SlabInfo is addressed by a raw uintptr, not
// a Go pointer - see the next paragraph for why.
//
// owner, prev and next are non-owning back/sideways references, stored as
// uintptr rather than *Cache/*SlabInfo. A Small SlabInfo can live in
// memory the garbage collector never scans (mmap'd pages), so a real Go
// pointer field there would be invisible to the collector while still
// pointing at collector-managed memory - the same hazard the teacher's
// Reference type sidesteps by keeping its address fields as uint64.
type SlabInfo struct {
	owner uintptr // *Cache
	base  uintptr // address of the slab's first byte
	prev  uintptr // *SlabInfo, 0 if this is the head of its list
	next  uintptr // *SlabInfo, 0 if this is the tail of its list

	capacity uint32
	inUse    uint32
	freeHead uint32 // index of the first free slot, noFreeSlot if none
	touched  uint32 // count of distinct slot indices ever handed out, for Stats.Reused
}

func slabInfoAt(addr uintptr) *SlabInfo {
	return (*SlabInfo)(unsafe.Pointer(addr))
}

func addrOf(s *SlabInfo) uintptr {
	return uintptr(unsafe.Pointer(s))
}

func (s *SlabInfo) isFull() bool {
	return s.inUse == s.capacity
}

func (s *SlabInfo) isEmpty() bool {
	return s.inUse == 0
}
