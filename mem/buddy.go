package mem

import (
	"sync"
	"unsafe"
)

// wordSize is the alignment and minimum block size: one machine word.
const wordSize = unsafe.Sizeof(uintptr(0))

// numClasses is the number of power-of-two size classes tracked; 32 covers
// every allocation up to 2^31 bytes on a 64-bit host, matching the
// reference allocator this is ported from.
const numClasses = 32

// freeList is an intrusive singly-linked list of free blocks of one size
// class: each free block's first word stores the address of the next free
// block (0 meaning "no next"), so the list costs no separate node storage.
type freeList struct {
	head uintptr // 0 means empty
}

func (fl *freeList) empty() bool {
	return fl.head == 0
}

func (fl *freeList) push(addr uintptr) {
	storeNext(addr, fl.head)
	fl.head = addr
}

func (fl *freeList) pop() uintptr {
	addr := fl.head
	fl.head = loadNext(addr)
	return addr
}

// remove unlinks addr from the list if present, reporting whether it found
// it. Used by dealloc's coalescing pass to find a block's buddy.
func (fl *freeList) remove(addr uintptr) bool {
	if fl.head == addr {
		fl.head = loadNext(addr)
		return true
	}
	prev := fl.head
	for prev != 0 {
		next := loadNext(prev)
		if next == addr {
			storeNext(prev, loadNext(addr))
			return true
		}
		prev = next
	}
	return false
}

func loadNext(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}

func storeNext(addr, next uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = next
}

func trailingZeros(v uintptr) int {
	n := 0
	for v&1 == 0 && v != 0 {
		v >>= 1
		n++
	}
	return n
}

func prevPowerOfTwo(v uintptr) uintptr {
	if v == 0 {
		return 0
	}
	p := uintptr(1)
	for p<<1 != 0 && p<<1 <= v {
		p <<= 1
	}
	return p
}

func nextPowerOfTwo(v uintptr) uintptr {
	if v <= 1 {
		return 1
	}
	p := uintptr(1)
	for p < v {
		p <<= 1
	}
	return p
}

func maxUintptr(a, b uintptr) uintptr {
	if a > b {
		return a
	}
	return b
}

func minUintptr(a, b uintptr) uintptr {
	if a < b {
		return a
	}
	return b
}

// / BuddyAllocator serves byte allocations out of a fixed range handed to
// / Init, splitting and coalescing power-of-two blocks. It is the kernel
// / heap: everything above the frame allocator (page tables, PCBs, TCBs,
// / the block cache) allocates through it, directly or via Go's own
// / allocator standing in for it in this hosted build (see DESIGN.md).
type BuddyAllocator struct {
	sync.Mutex
	freeLists [numClasses]freeList
}

// / Init adds the byte range [start, start+size) to the heap, the same
// / way the reference allocator seeds its free lists: round the start up
// / and the end down to word alignment, then repeatedly carve off the
// / largest naturally aligned power-of-two block that fits.
func (b *BuddyAllocator) Init(start, size uintptr) {
	b.Lock()
	defer b.Unlock()
	end := (start + size) &^ (wordSize - 1)
	start = (start + wordSize - 1) &^ (wordSize - 1)
	if start > end {
		panic("buddy: start > end after alignment")
	}
	for start < end {
		lowbit := start & (^start + 1)
		blockSize := minUintptr(lowbit, prevPowerOfTwo(end-start))
		b.freeLists[trailingZeros(blockSize)].push(start)
		start += blockSize
	}
}

// classFor computes the size class serving a request of n bytes with the
// given alignment, exactly as the reference allocator does: round up to a
// power of two, floor it at max(align, word size).
func classFor(n, align uintptr) int {
	size := maxUintptr(nextPowerOfTwo(n), maxUintptr(align, wordSize))
	return trailingZeros(size)
}

// / Alloc returns size bytes aligned to align (also a power of two),
// / splitting a larger free block down to size if no exact match is
// / free. ok is false if the heap has no block large enough.
func (b *BuddyAllocator) Alloc(size, align uintptr) (addr uintptr, ok bool) {
	b.Lock()
	defer b.Unlock()
	class := classFor(size, align)
	found := -1
	for i := class; i < numClasses; i++ {
		if !b.freeLists[i].empty() {
			found = i
			break
		}
	}
	if found < 0 {
		return 0, false
	}
	for j := found; j > class; j-- {
		block := b.freeLists[j].pop()
		b.freeLists[j-1].push(block)
		b.freeLists[j-1].push(block + (uintptr(1) << (j - 1)))
	}
	return b.freeLists[class].pop(), true
}

// / Dealloc returns a previously allocated block to the heap, coalescing
// / with its buddy (address XOR blockSize) repeatedly while the buddy is
// / free, stopping at the top size class or the first non-free buddy.
func (b *BuddyAllocator) Dealloc(addr, size, align uintptr) {
	b.Lock()
	defer b.Unlock()
	class := classFor(size, align)
	b.freeLists[class].push(addr)
	for class < numClasses-1 {
		buddy := addr ^ (uintptr(1) << class)
		if !b.freeLists[class].remove(buddy) {
			break
		}
		b.freeLists[class].remove(addr)
		addr = minUintptr(addr, buddy)
		class++
		b.freeLists[class].push(addr)
	}
}
