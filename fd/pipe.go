package fd

import (
	"sync"

	"rvkernel/errno"
	"rvkernel/ksync"
	"rvkernel/limits"
	"rvkernel/vm"
)

// pipeRingBufferSize is the shared ring buffer's byte capacity, grounded
// on original_source/os/src/fs/pipe.rs's RING_BUFFER_SIZE, and on the
// same head/tail/bufsz shape as the teacher's circbuf.Circbuf_t (that
// package backs its buffer with a physical page via mem.Page_i, a model
// this spec's Non-goals don't require for a 32-byte pipe buffer, so the
// backing array here is a plain Go array instead).
const pipeRingBufferSize = 32

type ringStatus int

const (
	ringFull ringStatus = iota
	ringEmpty
	ringNormal
)

// pipeRingBuffer is the buffer a PipeReadEnd and PipeWriteEnd share.
// Grounded on pipe.rs's PipeRingBuffer: head/tail indices plus an
// explicit status tag to disambiguate head==tail (full vs. empty), and a
// write-end reference count standing in for Rust's Weak-upgrade check
// for "have all write ends closed".
type pipeRingBuffer struct {
	mu             sync.Mutex
	buf            [pipeRingBufferSize]byte
	head, tail     int
	status         ringStatus
	writeRefs      int
	writeEndClosed bool
}

func newPipeRingBuffer() *pipeRingBuffer {
	return &pipeRingBuffer{status: ringEmpty, writeRefs: 1}
}

func (rb *pipeRingBuffer) availableRead() int {
	if rb.status == ringEmpty {
		return 0
	}
	if rb.tail > rb.head {
		return rb.tail - rb.head
	}
	return pipeRingBufferSize - rb.head + rb.tail
}

func (rb *pipeRingBuffer) availableWrite() int {
	if rb.status == ringFull {
		return 0
	}
	return pipeRingBufferSize - rb.availableRead()
}

func (rb *pipeRingBuffer) readByte() byte {
	c := rb.buf[rb.head]
	rb.head = (rb.head + 1) % pipeRingBufferSize
	if rb.head == rb.tail {
		rb.status = ringEmpty
	}
	return c
}

func (rb *pipeRingBuffer) writeByte(c byte) {
	rb.buf[rb.tail] = c
	rb.tail = (rb.tail + 1) % pipeRingBufferSize
	if rb.tail == rb.head {
		rb.status = ringFull
	} else {
		rb.status = ringNormal
	}
}

// PipeReadEnd and PipeWriteEnd are the two capability objects pipe()
// hands back (spec §6's pipe(&[rfd,wfd])). Grounded on pipe.rs's
// Pipe{readable, writable, buffer}; the open question in spec §9 (drop
// the buffer's lock before yielding, recheck after waking) is implemented
// exactly in Read/Write below.
type PipeReadEnd struct {
	rb    *pipeRingBuffer
	sched ksync.Sched_i
}

type PipeWriteEnd struct {
	rb    *pipeRingBuffer
	sched ksync.Sched_i
}

// NewPipe creates a connected read/write end pair sharing one ring
// buffer, charging one unit against the system-wide pipe limit
// (limits.Syslimit.Pipes, the teacher's own system-wide-resource
// accounting type, adapted here to gate pipe() the way biscuit gates
// its own Fs_pipe allocation). ok is false when the limit is exhausted.
func NewPipe(sched ksync.Sched_i) (r *PipeReadEnd, w *PipeWriteEnd, ok bool) {
	if !limits.Syslimit.Pipes.Taken(1) {
		return nil, nil, false
	}
	rb := newPipeRingBuffer()
	return &PipeReadEnd{rb: rb, sched: sched}, &PipeWriteEnd{rb: rb, sched: sched}, true
}

func (r *PipeReadEnd) Readable() bool { return true }
func (r *PipeReadEnd) Writable() bool { return false }

// Read blocks (by yielding and retrying) until ub is full or every write
// end has closed; in the latter case it returns however many bytes it
// managed to read, possibly zero (spec §9: "A
// reader that finds the buffer empty and observes all write ends closed
// returns the bytes read so far").
func (r *PipeReadEnd) Read(ub *vm.UserBuffer) (int, errno.Err_t) {
	want := ub.Len()
	out := make([]byte, 0, want)
	for len(out) < want {
		r.rb.mu.Lock()
		avail := r.rb.availableRead()
		if avail == 0 {
			closed := r.rb.writeEndClosed
			r.rb.mu.Unlock()
			if closed {
				break
			}
			r.sched.Yield()
			continue
		}
		n := avail
		if remain := want - len(out); remain < n {
			n = remain
		}
		for i := 0; i < n; i++ {
			out = append(out, r.rb.readByte())
		}
		r.rb.mu.Unlock()
	}
	ub.Write(out)
	return len(out), 0
}

func (r *PipeReadEnd) Write(ub *vm.UserBuffer) (int, errno.Err_t) { return 0, errno.EINVAL }
func (r *PipeReadEnd) Lseek(off, whence int) (int, errno.Err_t)  { return 0, errno.EINVAL }
func (r *PipeReadEnd) Close() errno.Err_t                        { return 0 }
func (r *PipeReadEnd) Reopen() errno.Err_t                       { return 0 }

func (w *PipeWriteEnd) Readable() bool { return false }
func (w *PipeWriteEnd) Writable() bool { return true }

func (w *PipeWriteEnd) Read(ub *vm.UserBuffer) (int, errno.Err_t) { return 0, errno.EINVAL }

// Write blocks (by yielding and retrying) until the whole buffer is
// drained into the pipe; a short write never happens since this loops
// internally.
func (w *PipeWriteEnd) Write(ub *vm.UserBuffer) (int, errno.Err_t) {
	want := ub.Len()
	in := make([]byte, want)
	ub.Read(in)
	written := 0
	for written < want {
		w.rb.mu.Lock()
		avail := w.rb.availableWrite()
		if avail == 0 {
			w.rb.mu.Unlock()
			w.sched.Yield()
			continue
		}
		n := avail
		if remain := want - written; remain < n {
			n = remain
		}
		for i := 0; i < n; i++ {
			w.rb.writeByte(in[written+i])
		}
		written += n
		w.rb.mu.Unlock()
	}
	return written, 0
}

func (w *PipeWriteEnd) Lseek(off, whence int) (int, errno.Err_t) { return 0, errno.EINVAL }

func (w *PipeWriteEnd) Close() errno.Err_t {
	w.rb.mu.Lock()
	w.rb.writeRefs--
	justClosed := w.rb.writeRefs == 0 && !w.rb.writeEndClosed
	if w.rb.writeRefs == 0 {
		w.rb.writeEndClosed = true
	}
	w.rb.mu.Unlock()
	if justClosed {
		limits.Syslimit.Pipes.Give()
	}
	return 0
}

func (w *PipeWriteEnd) Reopen() errno.Err_t {
	w.rb.mu.Lock()
	w.rb.writeRefs++
	w.rb.mu.Unlock()
	return 0
}
