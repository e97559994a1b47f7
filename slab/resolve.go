package slab

import "unsafe"

// resolveMode picks, once and for the lifetime of a Cache, how an object
// pointer is mapped back to its owning SlabInfo on Free. See spec §4.4.
type resolveMode int

const (
	// resolveModeA: Small, slabSize == pageSize. SlabInfo sits at a
	// fixed offset from the page's base address - no backend call.
	resolveModeA resolveMode = iota
	// resolveModeB: Small, slabSize > pageSize. SlabInfo address is
	// looked up in the backend's side table, keyed by page address.
	resolveModeB
	// resolveModeC: Large. Same lookup as mode B; SlabInfo lives
	// entirely outside the slab.
	resolveModeC
)

func chooseResolveMode(sizeType SizeType, slabSize, pageSize uint64) resolveMode {
	if sizeType == Large {
		return resolveModeC
	}
	if slabSize == pageSize {
		return resolveModeA
	}
	return resolveModeB
}

// resolve maps ptr back to the SlabInfo whose slot range contains it.
func (c *Cache) resolve(ptr unsafe.Pointer) *SlabInfo {
	pageAddr := uintptr(ptr) &^ (uintptr(c.pageSize) - 1)

	switch c.mode {
	case resolveModeA:
		return slabInfoAt(pageAddr + c.lay.slabInfoOffset)
	case resolveModeB, resolveModeC:
		infoAddr := c.backend.GetSlabInfoPtr(pageAddr)
		return slabInfoAt(infoAddr)
	default:
		panic("slab: unreachable resolve mode")
	}
}

// pagesSpanned calls fn once for every page address the slab at base
// covers, in ascending order.
func (c *Cache) pagesSpanned(base uintptr, fn func(pageAddr uintptr)) {
	for off := uint64(0); off < c.slabSize; off += c.pageSize {
		fn(base + uintptr(off))
	}
}

// needsSideTable reports whether this cache must save/delete page->SlabInfo
// mappings in the backend for every slab it creates/destroys.
func (c *Cache) needsSideTable() bool {
	return c.mode != resolveModeA
}
