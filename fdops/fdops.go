// Package fdops defines the file-capability contract every open file
// descriptor's backing object implements — a plain files, pipe ends, and
// the console all satisfy the same interface, dispatched dynamically
// (spec §9, "dynamic dispatch on files").
package fdops

import (
	"rvkernel/errno"
	"rvkernel/vm"
)

// Fdops_i is satisfied by every concrete file-capability object: regular
// files (package fd's OSInode), pipe ends, and the console (Stdin /
// Stdout). Grounded on the teacher's own fd.Fd_t.Fops usages (Read,
// Write, Close, Lseek, Reopen across ufs/ufs.go) plus
// original_source/os/src/fs/{pipe,stdio,inode}.rs's uniform
// {readable, writable, read, write} trait, which adds the two
// capability-query methods the teacher's call sites never needed because
// biscuit has no pipes in the retrieved fragment.
type Fdops_i interface {
	// Readable/Writable report whether this object currently permits the
	// operation (a write-only OSInode is not Readable; a pipe whose
	// buffer is empty is still Readable — it blocks instead of failing).
	Readable() bool
	Writable() bool

	// Read copies into ub from the object's current position (files) or
	// its internal buffer (pipes, console), returning bytes copied.
	Read(ub *vm.UserBuffer) (int, errno.Err_t)

	// Write copies from ub into the object, returning bytes copied. A
	// pipe's write call loops internally until ub is drained, so it
	// returns ub.Len(); it does not check whether the read end is open.
	Write(ub *vm.UserBuffer) (int, errno.Err_t)

	// Lseek repositions a regular file; pipes and the console return
	// ESPIPE-equivalent (EINVAL here, spec names no ESPIPE).
	Lseek(off int, whence int) (int, errno.Err_t)

	// Close releases any resource this object holds exclusively (a
	// pipe's reference to its ring buffer, a file's refcount).
	Close() errno.Err_t

	// Reopen is called when a descriptor is duplicated (dup, fork): bump
	// whatever refcount this object tracks.
	Reopen() errno.Err_t
}
