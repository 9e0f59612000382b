package mem

import (
	"fmt"
	"sync"
)

/// FrameAllocator hands out physical page numbers from a monotonically
/// growing range, recycling freed ones ahead of the bump pointer. It is
/// the single producer of frames in the system; every FrameHandle it
/// issues is returned exactly once, by the handle's own Drop-equivalent
/// (Free).
type FrameAllocator struct {
	sync.Mutex
	current  PPN_t
	end      PPN_t
	recycled []PPN_t
}

/// NewFrameAllocator seeds the allocator with the page-number range
/// [startPPN, endPPN), matching the kernel's [ekernel, MEMORY_END) tail.
func NewFrameAllocator(startPPN, endPPN PPN_t) *FrameAllocator {
	if endPPN < startPPN {
		panic("frame allocator: empty range")
	}
	return &FrameAllocator{current: startPPN, end: endPPN}
}

/// alloc pops a free page number, preferring the recycled stack over
/// growing the bump pointer. It does not panic: on exhaustion it returns
/// ok=false and leaves panicking to the caller that knows whether the
/// condition is truly fatal.
func (fa *FrameAllocator) alloc() (PPN_t, bool) {
	if n := len(fa.recycled); n > 0 {
		ppn := fa.recycled[n-1]
		fa.recycled = fa.recycled[:n-1]
		return ppn, true
	}
	if fa.current >= fa.end {
		return 0, false
	}
	ppn := fa.current
	fa.current++
	return ppn, true
}

func (fa *FrameAllocator) dealloc(ppn PPN_t) {
	if ppn >= fa.current {
		panic("frame allocator: dealloc of never-allocated frame")
	}
	for _, r := range fa.recycled {
		if r == ppn {
			panic("frame allocator: double free")
		}
	}
	fa.recycled = append(fa.recycled, ppn)
}

/// FrameHandle owns exactly one physical frame for its lifetime. Calling
/// Free returns the frame to its allocator; a handle must not be used
/// after Free, and Free must not be called twice.
type FrameHandle struct {
	alloc *FrameAllocator
	ppn   PPN_t
	freed bool
}

/// PPN reports the page number this handle owns.
func (fh *FrameHandle) PPN() PPN_t {
	return fh.ppn
}

/// Bytes returns the raw page backing this frame.
func (fh *FrameHandle) Bytes() *Page_t {
	return pageAt(fh.ppn)
}

/// Free releases the frame back to its allocator. Freeing an
/// already-freed handle panics: every FrameHandle is single-owner.
func (fh *FrameHandle) Free() {
	if fh.freed {
		panic("frame handle: double free")
	}
	fh.freed = true
	fh.alloc.Lock()
	fh.alloc.dealloc(fh.ppn)
	fh.alloc.Unlock()
}

/// Alloc hands out one zeroed frame, or panics if the allocator is
/// exhausted: frame exhaustion is Unrecoverable (spec error-handling
/// design), not a condition a caller can meaningfully recover from.
func (fa *FrameAllocator) Alloc() *FrameHandle {
	fa.Lock()
	ppn, ok := fa.alloc()
	fa.Unlock()
	if !ok {
		panic(fmt.Sprintf("frame allocator exhausted: current=%d end=%d", fa.current, fa.end))
	}
	fh := &FrameHandle{alloc: fa, ppn: ppn}
	page := fh.Bytes()
	for i := range page {
		page[i] = 0
	}
	return fh
}

// backingStore simulates physical memory for the hosted (non-bare-metal)
// build: a byte-addressable arena indexed by page number, large enough to
// hold every frame any allocator in this process might hand out. Real boot
// code would instead treat PPN as an index into actual physical RAM.
var backingStore = struct {
	sync.Mutex
	pages map[PPN_t]*Page_t
}{pages: make(map[PPN_t]*Page_t)}

// / PageBytes returns the backing storage for any page number, whether or
// / not a live FrameHandle currently owns it. This stands in for the
// / teacher's direct-map (Dmap) trick on real bare-metal RAM; see
// / DESIGN.md for why a simulated arena replaces it in this hosted build.
func PageBytes(ppn PPN_t) *Page_t {
	return pageAt(ppn)
}

func pageAt(ppn PPN_t) *Page_t {
	backingStore.Lock()
	defer backingStore.Unlock()
	pg, ok := backingStore.pages[ppn]
	if !ok {
		pg = &Page_t{}
		backingStore.pages[ppn] = pg
	}
	return pg
}
