// Package sysmem implements slab.MemoryBackend over real OS pages,
// grounded on the teacher's own mmap-based slab backend
// (pkg/store/pointerstore/mmap.go): slabs are carved straight out of
// anonymous private mmap regions, which are never visible to the Go
// garbage collector - the same property the teacher relies on when it
// stores raw uintptr fields that smuggle metadata into an allocation's
// own memory.
package sysmem

import (
	"fmt"
	"unsafe"

	"github.com/fmstephe/flib/fmath"
	"golang.org/x/sys/unix"

	"github.com/fmstephe/slabcache/slab/sidetable"
)

// Backend is a production slab.MemoryBackend. The zero value is not
// usable; construct one with New.
type Backend struct {
	pageSize uintptr
	table    *sidetable.Table
}

// New returns a Backend that mmaps slab and SlabInfo storage directly
// from the OS. pageSize must match the pageSize the caller passes to
// slab.New - it is only used here to size the dedicated SlabInfo mmap
// calls made for Large caches.
func New(pageSize uintptr) *Backend {
	return &Backend{
		pageSize: pageSize,
		table:    sidetable.New(),
	}
}

func (b *Backend) AllocSlab(slabSize, pageSize uint64) (uintptr, error) {
	data, err := unix.Mmap(-1, 0, int(slabSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return 0, fmt.Errorf("sysmem: cannot mmap %d bytes for slab: %w", slabSize, err)
	}
	return (uintptr)((unsafe.Pointer)(&data[0])), nil
}

func (b *Backend) FreeSlab(ptr uintptr, slabSize, pageSize uint64) error {
	return unix.Munmap(bytesAt(ptr, int(slabSize)))
}

// AllocSlabInfo mmaps a dedicated page for one SlabInfo. This trades
// memory efficiency (one full page per Large slab's metadata) for a much
// smaller implementation than bootstrapping an internal slab cache for
// SlabInfo storage, the way a production kernel allocator typically
// would; see DESIGN.md.
func (b *Backend) AllocSlabInfo(size uintptr) (uintptr, error) {
	allocSize := fmath.NxtPowerOfTwo(int64(size))
	if uintptr(allocSize) < b.pageSize {
		allocSize = int64(b.pageSize)
	}

	data, err := unix.Mmap(-1, 0, int(allocSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return 0, fmt.Errorf("sysmem: cannot mmap %d bytes for slab info: %w", allocSize, err)
	}
	return (uintptr)((unsafe.Pointer)(&data[0])), nil
}

func (b *Backend) FreeSlabInfo(ptr uintptr) error {
	return unix.Munmap(bytesAt(ptr, int(b.pageSize)))
}

func (b *Backend) SaveSlabInfoPtr(pageAddr, infoPtr uintptr) {
	b.table.Save(pageAddr, infoPtr)
}

func (b *Backend) GetSlabInfoPtr(pageAddr uintptr) uintptr {
	return b.table.Get(pageAddr)
}

func (b *Backend) DeleteSlabInfoPtr(pageAddr uintptr) {
	b.table.Delete(pageAddr)
}

func bytesAt(ptr uintptr, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size)
}
