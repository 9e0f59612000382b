// Package fd implements open file descriptors and their four concrete
// capability objects (spec §9 / SPEC_FULL's SUPPLEMENTED FEATURES): a
// plain on-disk file, a pipe end, and the console, all dispatched through
// fdops.Fdops_i.
package fd

import "rvkernel/errno"
import "rvkernel/fdops"

// Fd_t permission bits (spec §6's OpenFlags read/write derivation).
const (
	FD_READ    = 0x1
	FD_WRITE   = 0x2
	FD_CLOEXEC = 0x4
)

// Fd_t is one entry in a process's descriptor table. Grounded on the
// teacher's own fd/fd.go Fd_t{Fops, Perms} shape.
type Fd_t struct {
	Fops  fdops.Fdops_i
	Perms int
}

// Copyfd duplicates a descriptor (dup, fork) by reopening its backing
// object — the new Fd_t shares the same object, with its refcount bumped.
func Copyfd(fd *Fd_t) (*Fd_t, errno.Err_t) {
	nfd := &Fd_t{}
	*nfd = *fd
	if err := nfd.Fops.Reopen(); err != 0 {
		return nil, err
	}
	return nfd, 0
}

// Close_panic closes f and panics if the backing object reports failure —
// used at exit, where a close failure indicates kernel-internal corruption
// rather than a user-correctable error.
func Close_panic(f *Fd_t) {
	if f.Fops.Close() != 0 {
		panic("fd: close must succeed")
	}
}
