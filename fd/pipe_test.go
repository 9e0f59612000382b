package fd

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rvkernel/errno"
	"rvkernel/ksync"
	"rvkernel/vm"
)

// gosched is a minimal ksync.Sched_i for pipe tests: pipes only ever call
// Yield (spec §9 — "wake readers only by the standard yield path"), never
// Block/Wakeup, so those two are left unimplemented on purpose.
type gosched struct{}

func (gosched) Current() ksync.Task_i { return nil }
func (gosched) Block()                { panic("fd pipe tests: Block should never be called") }
func (gosched) Yield()                { runtime.Gosched() }
func (gosched) Wakeup(ksync.Task_i)   {}

func mkUserBuffer(n int) (*vm.UserBuffer, []byte) {
	backing := make([]byte, n)
	return vm.NewUserBufferFromSlice(backing), backing
}

func TestPipeReadWriteWithinCapacity(t *testing.T) {
	r, w, ok := NewPipe(gosched{})
	require.True(t, ok)

	wub, wbacking := mkUserBuffer(5)
	copy(wbacking, "hello")
	n, err := w.Write(wub)
	require.Equal(t, errno.Err_t(0), err)
	require.Equal(t, 5, n)

	rub, rbacking := mkUserBuffer(5)
	n, err = r.Read(rub)
	assert.Equal(t, errno.Err_t(0), err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(rbacking))
}

func TestPipeWriteBlocksPastCapacityUntilReaderDrains(t *testing.T) {
	r, w, ok := NewPipe(gosched{})
	require.True(t, ok)
	const total = pipeRingBufferSize*2 + 7

	payload := make([]byte, total)
	for i := range payload {
		payload[i] = byte(i)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	var writeErr errno.Err_t
	go func() {
		defer wg.Done()
		wub, wbacking := mkUserBuffer(total)
		copy(wbacking, payload)
		_, writeErr = w.Write(wub)
	}()

	var got []byte
	go func() {
		defer wg.Done()
		rub, rbacking := mkUserBuffer(total)
		_, _ = r.Read(rub)
		got = rbacking
	}()
	wg.Wait()

	assert.Equal(t, errno.Err_t(0), writeErr)
	assert.Equal(t, payload, got)
}

func TestPipeReadReturnsShortAfterWriteEndCloses(t *testing.T) {
	r, w, ok := NewPipe(gosched{})
	require.True(t, ok)

	wub, wbacking := mkUserBuffer(3)
	copy(wbacking, "abc")
	_, err := w.Write(wub)
	require.Equal(t, errno.Err_t(0), err)
	w.Close()

	rub, rbacking := mkUserBuffer(10)
	n, err := r.Read(rub)
	assert.Equal(t, errno.Err_t(0), err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "abc", string(rbacking[:3]))
}
