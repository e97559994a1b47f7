package main

import (
	"flag"
	"fmt"
	"os"
	"unsafe"

	"github.com/fmstephe/slabcache/slab"
	"github.com/fmstephe/slabcache/slab/sysmem"
)

var (
	objectSizeFlag  = flag.Uint64("object-size", 64, "size in bytes of each object served by the cache")
	objectAlignFlag = flag.Uint64("object-align", 8, "required alignment of each object, a power of two")
	slabSizeFlag    = flag.Uint64("slab-size", 4096, "size in bytes of each slab, a multiple of -page-size")
	pageSizeFlag    = flag.Uint64("page-size", 4096, "OS page size, a power of two")
	largeFlag       = flag.Bool("large", false, "place SlabInfo out of line instead of embedding it in the slab")
	countFlag       = flag.Int("count", 1000, "number of objects to allocate, then free, before reporting stats")
)

func main() {
	flag.Parse()

	sizeType := slab.Small
	if *largeFlag {
		sizeType = slab.Large
	}

	backend := sysmem.New(uintptr(*pageSizeFlag))
	cache, err := slab.New(*slabSizeFlag, *pageSizeFlag, *objectSizeFlag, *objectAlignFlag, sizeType, backend)
	if err != nil {
		fmt.Printf("Error configuring cache: %s\n", err)
		os.Exit(1)
	}
	defer cache.Close()

	allocated := make([]unsafe.Pointer, 0, *countFlag)
	for i := 0; i < *countFlag; i++ {
		p := cache.Alloc()
		if p == nil {
			fmt.Printf("Backend exhausted after %d allocations\n", i)
			break
		}
		allocated = append(allocated, p)
	}

	for _, p := range allocated {
		cache.Free(p)
	}

	stats := cache.Stats()
	fmt.Printf("allocs=%d frees=%d reused=%d live=%d slabs=%d\n",
		stats.Allocs, stats.Frees, stats.Reused, stats.Live, stats.Slabs)

	n := cache.Reap()
	fmt.Printf("reaped %d empty slabs\n", n)
}
