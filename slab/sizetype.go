package slab

// SizeType selects how a Cache locates the SlabInfo for a slab.
//
// Small embeds the SlabInfo inside the slab itself, trading away a little
// object capacity to avoid ever touching the backend's side table on the
// fast path (mode A, see resolve.go) when slabSize == pageSize.
//
// Large keeps SlabInfo entirely outside the slab, allocated via the
// backend, and always resolves an object back to its SlabInfo through the
// backend's page->SlabInfo side table.
type SizeType int

const (
	Small SizeType = iota
	Large
)

func (t SizeType) String() string {
	switch t {
	case Small:
		return "Small"
	case Large:
		return "Large"
	default:
		return "SizeType(unknown)"
	}
}
