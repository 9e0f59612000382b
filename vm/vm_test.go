package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rvkernel/mem"
)

func newTestSpace(t *testing.T) (*AddressSpace, mem.PPN_t) {
	t.Helper()
	fa := mem.NewFrameAllocator(0, 4096)
	tramp := fa.Alloc()
	as := NewBare(fa, FromFrame(tramp.PPN()))
	return as, tramp.PPN()
}

// TestPageTableRoundTrip exercises invariant 4: map then translate
// returns the same PPN with V set.
func TestPageTableRoundTrip(t *testing.T) {
	as, _ := newTestSpace(t)
	seg := NewSegment(10, 20, Framed, PermR|PermW|PermU)
	as.AddSegment(seg, nil)

	for vpn := VirtPageNum(10); vpn < 20; vpn++ {
		pte, ok := as.Translate(vpn)
		require.True(t, ok)
		assert.True(t, pte.Valid())
		want, _ := seg.FramePPN(vpn)
		assert.Equal(t, want, pte.PPN())
	}
}

func TestIdenticalMapping(t *testing.T) {
	as, _ := newTestSpace(t)
	as.AddSegment(NewSegment(100, 110, Identical, PermR|PermW), nil)
	pte, ok := as.Translate(105)
	require.True(t, ok)
	assert.EqualValues(t, 105, pte.PPN())
}

func TestOverlappingSegmentsPanic(t *testing.T) {
	as, _ := newTestSpace(t)
	as.AddSegment(NewSegment(0, 10, Framed, PermR), nil)
	assert.Panics(t, func() {
		as.AddSegment(NewSegment(5, 15, Framed, PermR), nil)
	})
}

// TestForkIsomorphism exercises invariant 5: after fork, parent and
// child VPNs map to different PPNs but with byte-identical contents.
func TestForkIsomorphism(t *testing.T) {
	as, _ := newTestSpace(t)
	seg := NewSegment(0, 2, Framed, PermR|PermW|PermU)
	as.AddSegment(seg, []byte("hello, fork!"))

	child := as.Fork()

	parentPTE, _ := as.Translate(0)
	childPTE, _ := child.Translate(0)
	assert.NotEqual(t, parentPTE.PPN(), childPTE.PPN())

	parentBytes := mem.PageBytes(parentPTE.PPN().Frame())
	childBytes := mem.PageBytes(childPTE.PPN().Frame())
	assert.Equal(t, parentBytes[:32], childBytes[:32])

	// mutating the child must not affect the parent (no COW sharing).
	childBytes[0] = 0xAB
	assert.NotEqual(t, childBytes[0], parentBytes[0])
}

func TestUserBufferCrossesPageBoundary(t *testing.T) {
	as, _ := newTestSpace(t)
	as.AddSegment(NewSegment(0, 3, Framed, PermR|PermW|PermU), nil)

	va := VirtAddr(PageSize - 4) // last 4 bytes of page 0
	ub := NewUserBuffer(as, va, 12)
	assert.Len(t, ub.bufs, 2) // straddles into page 1

	src := make([]byte, 12)
	for i := range src {
		src[i] = byte(i + 1)
	}
	n := ub.Write(src)
	assert.Equal(t, 12, n)

	dst := make([]byte, 12)
	ub2 := NewUserBuffer(as, va, 12)
	n = ub2.Read(dst)
	assert.Equal(t, 12, n)
	assert.Equal(t, src, dst)
}
