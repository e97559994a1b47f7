package slab

// MemoryBackend supplies the raw memory a Cache carves into slabs, and
// the side table used to resolve a page address back to the SlabInfo
// that owns it. All addresses and sizes are in bytes. The Cache trusts
// the backend to honour the sizes and alignments it is asked for - a
// backend which does not is undefined behaviour, the same way a libc
// implementation trusts mmap to do what it says.
//
// AllocSlabInfo/FreeSlabInfo are only called for Large caches. The three
// side-table operations are only called in resolution modes B and C (see
// resolve.go): Small caches whose slabSize equals pageSize (mode A) never
// touch the backend's side table at all.
type MemoryBackend interface {
	// AllocSlab returns a pageSize-aligned region of slabSize bytes, or
	// an error if no such region is available.
	AllocSlab(slabSize, pageSize uint64) (uintptr, error)

	// FreeSlab returns a region previously obtained from AllocSlab.
	FreeSlab(ptr uintptr, slabSize, pageSize uint64) error

	// AllocSlabInfo returns uninitialised storage of at least size bytes,
	// suitable for housing one SlabInfo. The slab's free list is threaded
	// through its slots and needs no room here.
	AllocSlabInfo(size uintptr) (uintptr, error)

	// FreeSlabInfo returns storage obtained from AllocSlabInfo.
	FreeSlabInfo(ptr uintptr) error

	// SaveSlabInfoPtr records infoPtr as the SlabInfo owning pageAddr.
	// Last-write-wins: a second save for the same pageAddr replaces the
	// first.
	SaveSlabInfoPtr(pageAddr uintptr, infoPtr uintptr)

	// GetSlabInfoPtr returns the last infoPtr saved for pageAddr. The
	// Cache only ever calls this for a pageAddr it has previously saved
	// and not yet deleted.
	GetSlabInfoPtr(pageAddr uintptr) uintptr

	// DeleteSlabInfoPtr removes the mapping for pageAddr. Deleting an
	// absent key is a no-op.
	DeleteSlabInfoPtr(pageAddr uintptr)
}
