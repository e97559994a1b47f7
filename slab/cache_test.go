package slab

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmstephe/slabcache/slab/memtest"
)

func newTestCache(t *testing.T, slabSize, pageSize, objectSize, objectAlign uint64, sizeType SizeType) (*Cache, *memtest.Backend) {
	t.Helper()
	backend := memtest.New()
	c, err := New(slabSize, pageSize, objectSize, objectAlign, sizeType, backend)
	require.NoError(t, err)
	return c, backend
}

func TestNewRejectsBadPageSize(t *testing.T) {
	_, err := New(4096, 0, 64, 8, Small, memtest.New())
	assert.ErrorIs(t, err, ErrInvalidPageSize)

	_, err = New(4096, 4095, 64, 8, Small, memtest.New())
	assert.ErrorIs(t, err, ErrInvalidPageSize)
}

func TestNewRejectsBadSlabSize(t *testing.T) {
	_, err := New(2048, 4096, 64, 8, Small, memtest.New())
	assert.ErrorIs(t, err, ErrInvalidSlabSize)

	_, err = New(6144, 4096, 64, 8, Small, memtest.New())
	assert.ErrorIs(t, err, ErrInvalidSlabSize)
}

func TestAllocReturnsAlignedNonNilPointers(t *testing.T) {
	c, _ := newTestCache(t, 4096, 4096, 64, 8, Small)

	seen := map[uintptr]bool{}
	for i := 0; i < 50; i++ {
		ptr := c.Alloc()
		require.NotNil(t, ptr)
		addr := uintptr(ptr)
		assert.Zero(t, addr%8, "pointer %#x must be 8-byte aligned", addr)
		assert.False(t, seen[addr], "pointer %#x aliases a previous live allocation", addr)
		seen[addr] = true
	}
}

func TestAllocThenFreeRoundTripIsNoOp(t *testing.T) {
	c, _ := newTestCache(t, 4096, 4096, 64, 8, Small)

	before := c.Stats()
	p := c.Alloc()
	c.Free(p)
	after := c.Stats()

	assert.Equal(t, before.Live, after.Live)
}

func TestCapacityReachableFullTransition(t *testing.T) {
	c, _ := newTestCache(t, 4096, 4096, 64, 8, Small)
	capacity := int(c.lay.capacity)

	for i := 0; i < capacity-1; i++ {
		p := c.Alloc()
		require.NotNil(t, p)
		s := slabInfoAt(c.partialSlabs)
		assert.NotZero(t, c.partialSlabs)
		assert.Equal(t, uint32(i+1), s.inUse)
	}

	// One more alloc should fill the slab.
	last := c.Alloc()
	require.NotNil(t, last)
	assert.Zero(t, c.partialSlabs)
	assert.NotZero(t, c.fullSlabs)

	s := slabInfoAt(c.fullSlabs)
	assert.Equal(t, uint32(capacity), s.inUse)
	assert.True(t, s.isFull())
}

func TestAllocateThenFreeAllReturnsToFreeSlabs(t *testing.T) {
	c, _ := newTestCache(t, 4096, 4096, 64, 8, Small)

	const n = 200 // spans several slabs
	ptrs := make([]unsafe.Pointer, 0, n)
	for i := 0; i < n; i++ {
		p := c.Alloc()
		require.NotNil(t, p)
		ptrs = append(ptrs, p)
	}

	// Free in a different permutation than allocation order.
	for i := len(ptrs) - 1; i >= 0; i-- {
		c.Free(ptrs[i])
	}

	assert.Zero(t, c.partialSlabs)
	assert.Zero(t, c.fullSlabs)
	assert.NotZero(t, c.freeSlabs)

	for addr := c.freeSlabs; addr != 0; {
		s := slabInfoAt(addr)
		assert.Zero(t, s.inUse)
		addr = s.next
	}

	stats := c.Stats()
	assert.Equal(t, n, stats.Allocs)
	assert.Equal(t, n, stats.Frees)
	assert.Equal(t, 0, stats.Live)
}

func TestLIFOReallocationOrder(t *testing.T) {
	// End-to-end scenario 1, continued: fill the slab (at least 60
	// allocs), free 30 in reverse order, reallocate 30 and expect exactly
	// those addresses back in LIFO order.
	c, _ := newTestCache(t, 4096, 4096, 64, 8, Small)
	capacity := int(c.lay.capacity)
	require.GreaterOrEqual(t, capacity, 60)

	ptrs := make([]unsafe.Pointer, capacity)
	for i := range ptrs {
		ptrs[i] = c.Alloc()
		require.NotNil(t, ptrs[i])
	}

	s := slabInfoAt(c.fullSlabs)
	require.NotNil(t, s)
	assert.Equal(t, uint32(capacity), s.inUse)

	freed := ptrs[:30]
	for i := len(freed) - 1; i >= 0; i-- {
		c.Free(freed[i])
	}
	assert.Equal(t, uint32(capacity-30), slabInfoAt(c.partialSlabs).inUse)

	var reallocated []unsafe.Pointer
	for i := 0; i < 30; i++ {
		reallocated = append(reallocated, c.Alloc())
	}

	// freed[0] was freed last, so it comes back first.
	var expected []unsafe.Pointer
	for i := 0; i < len(freed); i++ {
		expected = append(expected, freed[i])
	}
	assert.Equal(t, expected, reallocated)
}

func TestModeAResolutionNeverCallsSideTable(t *testing.T) {
	// End-to-end scenario 4: mode A resolution never touches the backend
	// side table.
	c, backend := newTestCache(t, 4096, 4096, 128, 8, Small)

	p := c.Alloc()
	require.NotNil(t, p)
	c.Free(p)

	assert.Empty(t, backend.Calls().Gets)
	assert.Empty(t, backend.Calls().Saves)
}

func TestLargeModeSavesAndDeletesEveryPage(t *testing.T) {
	// End-to-end scenario 2: slab 8192, page 4096, object 2048B align 16.
	c, backend := newTestCache(t, 8192, 4096, 2048, 16, Large)

	ptrs := make([]unsafe.Pointer, 4)
	for i := range ptrs {
		ptrs[i] = c.Alloc()
		require.NotNil(t, ptrs[i])
	}
	assert.Equal(t, 2, len(backend.Calls().Saves))

	for _, p := range ptrs {
		c.Free(p)
	}
	n := c.Reap()
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, len(backend.Calls().Deletes))
	assert.Equal(t, 1, backend.Calls().SlabInfoFrees)
}

func TestBackendFailureLeavesInvariantsUnchanged(t *testing.T) {
	backend := memtest.New()
	backend.FailSlabAllocAfter = 1 // the only slab alloc this cache ever makes fails
	c, err := New(4096, 4096, 64, 8, Small, backend)
	require.NoError(t, err)

	p := c.Alloc()
	assert.Nil(t, p)
	assert.Zero(t, c.freeSlabs)
	assert.Zero(t, c.partialSlabs)
	assert.Zero(t, c.fullSlabs)
	assert.Equal(t, 0, c.Stats().Live)
}

func TestFreeRejectsForeignPointer(t *testing.T) {
	c, _ := newTestCache(t, 4096, 4096, 64, 8, Small)
	c.Alloc()

	other, _ := newTestCache(t, 4096, 4096, 64, 8, Small)
	foreign := other.Alloc()
	require.NotNil(t, foreign)

	assert.Panics(t, func() {
		c.Free(foreign)
	})
}

func TestCloseDestroysEverySlab(t *testing.T) {
	c, backend := newTestCache(t, 4096, 4096, 64, 8, Small)
	c.Alloc()
	c.Alloc()

	require.NoError(t, c.Close())
	assert.Equal(t, 0, backend.Calls().LiveSlabs)
	assert.Panics(t, func() { c.Alloc() })
}
