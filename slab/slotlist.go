package slab

import "unsafe"

// Each slab's free slots are threaded together by writing the index of
// the next free slot into the first 4 bytes of the slot's own (otherwise
// unused, because free) memory. s.freeHead holds the index of the first
// free slot, or noFreeSlot when the slab is full. This is the "threaded
// list using the first bytes of each free slot" option from spec §9,
// chosen over a separate index-stack array so that a SlabInfo's memory
// footprint never depends on this cache's capacity.

func (c *Cache) slotAddr(s *SlabInfo, idx uint32) uintptr {
	return s.base + c.lay.firstSlotOffset + uintptr(idx)*uintptr(c.lay.slotSize)
}

func (c *Cache) slotNextFree(s *SlabInfo, idx uint32) uint32 {
	return *(*uint32)(unsafe.Pointer(c.slotAddr(s, idx)))
}

func (c *Cache) setSlotNextFree(s *SlabInfo, idx uint32, next uint32) {
	*(*uint32)(unsafe.Pointer(c.slotAddr(s, idx))) = next
}

// seedFreeList initialises a freshly created slab's free-slot chain so
// that the first capacity pops return slot 0, 1, 2, ... in order (spec
// §4.1 rule 5).
func (c *Cache) seedFreeList(s *SlabInfo) {
	s.freeHead = noFreeSlot
	for i := int64(s.capacity) - 1; i >= 0; i-- {
		idx := uint32(i)
		c.setSlotNextFree(s, idx, s.freeHead)
		s.freeHead = idx
	}
}

// popSlot removes and returns the head of s's free-slot chain. The caller
// must already know the chain is non-empty (s.inUse < s.capacity).
func (c *Cache) popSlot(s *SlabInfo) uint32 {
	idx := s.freeHead
	s.freeHead = c.slotNextFree(s, idx)
	return idx
}

// pushSlot returns slot idx to the front of s's free-slot chain, giving
// LIFO allocation order on subsequent pops.
func (c *Cache) pushSlot(s *SlabInfo, idx uint32) {
	c.setSlotNextFree(s, idx, s.freeHead)
	s.freeHead = idx
}
