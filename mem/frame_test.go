package mem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameAllocatorUniqueness(t *testing.T) {
	fa := NewFrameAllocator(100, 110)
	seen := make(map[PPN_t]bool)
	var handles []*FrameHandle
	for i := 0; i < 10; i++ {
		h := fa.Alloc()
		require.Falsef(t, seen[h.PPN()], "PPN %d handed out twice", h.PPN())
		seen[h.PPN()] = true
		handles = append(handles, h)
	}
	assert.Panics(t, func() { fa.Alloc() }, "allocator should be exhausted")

	// freeing and re-allocating must prefer the recycled id.
	freed := handles[3].PPN()
	handles[3].Free()
	h := fa.Alloc()
	assert.Equal(t, freed, h.PPN())
}

func TestFrameHandleDoubleFreePanics(t *testing.T) {
	fa := NewFrameAllocator(0, 4)
	h := fa.Alloc()
	h.Free()
	assert.Panics(t, func() { h.Free() })
}

func TestFrameZeroed(t *testing.T) {
	fa := NewFrameAllocator(0, 4)
	h := fa.Alloc()
	page := h.Bytes()
	page[0] = 0xff
	h.Free()
	h2 := fa.Alloc()
	for i, b := range h2.Bytes() {
		assert.Zerof(t, b, "byte %d not zeroed on alloc", i)
	}
}
