package fd

import (
	"rvkernel/errno"
	"rvkernel/ksync"
	"rvkernel/vm"
)

// Console_i is the injected console primitive (spec Non-goals: "SBI/UART
// console I/O ... called, not designed" — the actual byte transport is
// out of scope, only the fd-layer wrapper around it is). GetChar returns
// 0 when no byte is currently available, matching SBI's
// console_getchar() convention that original_source/os/src/fs/stdio.rs
// polls in a loop.
type Console_i interface {
	GetChar() byte
	PutChar(b byte)
}

// Stdin wraps the console for reading, one byte at a time, yielding and
// retrying while nothing is available (stdio.rs's Stdin::read).
type Stdin struct {
	console Console_i
	sched   ksync.Sched_i
}

func NewStdin(console Console_i, sched ksync.Sched_i) *Stdin {
	return &Stdin{console: console, sched: sched}
}

func (s *Stdin) Readable() bool { return true }
func (s *Stdin) Writable() bool { return false }

func (s *Stdin) Read(ub *vm.UserBuffer) (int, errno.Err_t) {
	if ub.Len() != 1 {
		panic("fd: stdin reads exactly one byte per call")
	}
	var c byte
	for {
		c = s.console.GetChar()
		if c != 0 {
			break
		}
		s.sched.Yield()
	}
	ub.Write([]byte{c})
	return 1, 0
}

func (s *Stdin) Write(ub *vm.UserBuffer) (int, errno.Err_t) { return 0, errno.EINVAL }
func (s *Stdin) Lseek(off, whence int) (int, errno.Err_t)  { return 0, errno.EINVAL }
func (s *Stdin) Close() errno.Err_t                        { return 0 }
func (s *Stdin) Reopen() errno.Err_t                        { return 0 }

// Stdout wraps the console for writing (stdio.rs's Stdout::write); also
// used for fd 2 (stderr-equivalent), per spec §6's "fd 0/1/2 are
// pre-populated with stdin/stdout/stdout equivalents".
type Stdout struct {
	console Console_i
}

func NewStdout(console Console_i) *Stdout { return &Stdout{console: console} }

func (s *Stdout) Readable() bool { return false }
func (s *Stdout) Writable() bool { return true }

func (s *Stdout) Read(ub *vm.UserBuffer) (int, errno.Err_t) { return 0, errno.EINVAL }

func (s *Stdout) Write(ub *vm.UserBuffer) (int, errno.Err_t) {
	buf := make([]byte, ub.Len())
	n := ub.Read(buf)
	for i := 0; i < n; i++ {
		s.console.PutChar(buf[i])
	}
	return n, 0
}

func (s *Stdout) Lseek(off, whence int) (int, errno.Err_t) { return 0, errno.EINVAL }
func (s *Stdout) Close() errno.Err_t                       { return 0 }
func (s *Stdout) Reopen() errno.Err_t                       { return 0 }
