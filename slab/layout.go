package slab

import "unsafe"

// minSlotSize is the smallest slot that can carry this Cache's per-slab
// free list. Free slots are threaded together by writing the index of
// the next free slot into the first 4 bytes of the slot's own memory
// (see slotlist.go), so a slot must be at least that wide.
const minSlotSize = 4

// noFreeSlot marks the end of a slab's free-slot chain.
const noFreeSlot = ^uint32(0)

var (
	slabInfoHeaderSize  = unsafe.Sizeof(SlabInfo{})
	slabInfoHeaderAlign = uintptr(unsafe.Alignof(SlabInfo{}))
)

// layout is the static, pure result of laying out one Cache's slabs. It
// is computed once in New and never touched again on the hot path.
type layout struct {
	slotSize         uint64
	capacity         uint32
	firstSlotOffset  uintptr
	slabInfoOffset   uintptr // Small only; 0 for Large
	slabInfoFootprint uintptr // bytes needed for one SlabInfo (header only; the free list is threaded through slots, not stored here)
}

func computeLayout(slabSize, pageSize, objectSize, objectAlign uint64, sizeType SizeType) (layout, error) {
	if objectSize < 1 {
		return layout{}, ErrInvalidAlignment
	}
	if objectAlign > pageSize || !isPowerOfTwo(objectAlign) {
		return layout{}, ErrInvalidAlignment
	}

	slotSize := alignUp(objectSize, objectAlign)
	if slotSize < minSlotSize {
		return layout{}, ErrInvalidAlignment
	}

	switch sizeType {
	case Large:
		capacity := slabSize / slotSize
		if capacity < 1 {
			return layout{}, ErrZeroCapacity
		}
		if capacity > uint64(noFreeSlot-1) {
			capacity = uint64(noFreeSlot - 1)
		}
		return layout{
			slotSize:          slotSize,
			capacity:          uint32(capacity),
			firstSlotOffset:   0,
			slabInfoOffset:    0,
			slabInfoFootprint: slabInfoHeaderSize,
		}, nil

	case Small:
		capacity, slabInfoOffset, err := computeSmallCapacity(slabSize, slotSize)
		if err != nil {
			return layout{}, err
		}
		return layout{
			slotSize:          slotSize,
			capacity:          capacity,
			firstSlotOffset:   0,
			slabInfoOffset:    slabInfoOffset,
			slabInfoFootprint: slabInfoHeaderSize,
		}, nil

	default:
		return layout{}, ErrInvalidAlignment
	}
}

// computeSmallCapacity finds the largest object count that leaves room for
// one page/alignment-respecting SlabInfo header at the end of the slab.
func computeSmallCapacity(slabSize, slotSize uint64) (uint32, uintptr, error) {
	if uint64(slabInfoHeaderSize) >= slabSize {
		return 0, 0, ErrZeroCapacity
	}

	fits := func(c uint64) bool {
		slotsEnd := uintptr(c) * uintptr(slotSize)
		infoStart := alignUpPtr(slotsEnd, slabInfoHeaderAlign)
		return infoStart+slabInfoHeaderSize <= uintptr(slabSize)
	}

	capacity := (slabSize - uint64(slabInfoHeaderSize)) / slotSize
	for capacity > 0 && !fits(capacity) {
		capacity--
	}
	for fits(capacity + 1) {
		capacity++
	}

	if capacity < 1 {
		return 0, 0, ErrZeroCapacity
	}
	if capacity > uint64(noFreeSlot-1) {
		capacity = uint64(noFreeSlot - 1)
	}

	slotsEnd := uintptr(capacity) * uintptr(slotSize)
	slabInfoOffset := alignUpPtr(slotsEnd, slabInfoHeaderAlign)

	return uint32(capacity), slabInfoOffset, nil
}

func isPowerOfTwo(x uint64) bool {
	return x > 0 && x&(x-1) == 0
}

func alignUp(x, align uint64) uint64 {
	return (x + align - 1) &^ (align - 1)
}

func alignUpPtr(x uintptr, align uintptr) uintptr {
	return (x + align - 1) &^ (align - 1)
}
