package slab

import "errors"

// Configuration errors, returned by New. Construction never panics; a
// malformed set of parameters is a reportable error, not a programmer bug.
var (
	// ErrInvalidPageSize is returned when pageSize is zero or not a power of two.
	ErrInvalidPageSize = errors.New("slab: page size must be a non-zero power of two")

	// ErrInvalidSlabSize is returned when slabSize is not a positive multiple
	// of pageSize, or is smaller than pageSize.
	ErrInvalidSlabSize = errors.New("slab: slab size must be a positive multiple of page size")

	// ErrInvalidAlignment is returned when objectAlign is not a power of two,
	// when objectAlign exceeds pageSize, or when the resulting slot is too
	// small to hold this cache's free-list linkage.
	ErrInvalidAlignment = errors.New("slab: invalid object alignment")

	// ErrZeroCapacity is returned when the computed layout leaves room for
	// fewer than one object per slab.
	ErrZeroCapacity = errors.New("slab: layout yields zero objects per slab")
)
