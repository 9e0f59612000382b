package mem

import (
	"math/rand"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHeap(t *testing.T, size uintptr) (*BuddyAllocator, uintptr) {
	t.Helper()
	// Over-allocate and align start to size, so Init seeds the whole
	// range as one naturally aligned block.
	buf := make([]byte, 2*size)
	start := (uintptr(unsafe.Pointer(&buf[0])) + size - 1) &^ (size - 1)
	// keep buf alive for the allocator's lifetime; tests run single goroutine
	t.Cleanup(func() { runtimeKeepAlive(buf) })
	b := &BuddyAllocator{}
	b.Init(start, size)
	return b, start
}

func runtimeKeepAlive(b []byte) {
	_ = b[len(b)-1]
}

// TestBuddyConservation exercises invariant 1: alloc/dealloc pairs never
// lose or duplicate heap bytes, and a full drain returns everything.
func TestBuddyConservation(t *testing.T) {
	b, _ := newTestHeap(t, 1<<16)
	var live []struct{ addr, size uintptr }
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		if len(live) > 0 && r.Intn(2) == 0 {
			idx := r.Intn(len(live))
			blk := live[idx]
			b.Dealloc(blk.addr, blk.size, wordSize)
			live = append(live[:idx], live[idx+1:]...)
			continue
		}
		size := uintptr(8 << r.Intn(8))
		addr, ok := b.Alloc(size, wordSize)
		if !ok {
			continue
		}
		live = append(live, struct{ addr, size uintptr }{addr, size})
	}
	for _, blk := range live {
		b.Dealloc(blk.addr, blk.size, wordSize)
	}
	// after full drain, the top-level class should hold the entire heap
	// as one block (maximal coalescing, invariant 2).
	full, ok := b.Alloc(1<<16, wordSize)
	require.True(t, ok, "expected the whole heap to have coalesced back")
	b.Dealloc(full, 1<<16, wordSize)
}

func TestBuddySplitAndCoalesce(t *testing.T) {
	b, start := newTestHeap(t, 1<<12)

	a1, ok := b.Alloc(64, wordSize)
	require.True(t, ok)
	a2, ok := b.Alloc(64, wordSize)
	require.True(t, ok)
	assert.NotEqual(t, a1, a2)

	b.Dealloc(a1, 64, wordSize)
	b.Dealloc(a2, 64, wordSize)

	// the whole range should be allocatable again as a single block.
	whole, ok := b.Alloc(1<<12, wordSize)
	require.True(t, ok)
	assert.Equal(t, start, whole)
}

func TestBuddyOutOfMemory(t *testing.T) {
	b, _ := newTestHeap(t, 128)
	_, ok := b.Alloc(256, wordSize)
	assert.False(t, ok)
}
