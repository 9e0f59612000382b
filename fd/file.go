package fd

import (
	"sync"

	"rvkernel/errno"
	"rvkernel/fs"
	"rvkernel/vm"
)

// OpenFlags is the syscall-level open() flag bitset (spec §6, exact
// encoding: RDONLY=0, WRONLY=1, RDWR=2, CREATE=1<<9, TRUNC=1<<10).
type OpenFlags int

const (
	O_RDONLY OpenFlags = 0
	O_WRONLY OpenFlags = 1
	O_RDWR   OpenFlags = 2
	O_CREATE OpenFlags = 1 << 9
	O_TRUNC  OpenFlags = 1 << 10
)

// ReadWrite derives (readable, writable) from the low two bits (spec §6:
// "empty -> (r, !w), WRONLY -> (!r, w), otherwise (r, w)"), cross-checked
// against original_source/os/src/syscall/fs.rs's sys_open.
func (f OpenFlags) ReadWrite() (readable, writable bool) {
	switch f & 0x3 {
	case O_WRONLY:
		return false, true
	case O_RDONLY:
		return true, false
	default:
		return true, true
	}
}

// Seek whence values (lseek is not in spec's syscall table but Fdops_i
// names it for every regular file, grounded on the teacher's own
// Fd_t.Fops.Lseek call sites).
const (
	SeekSet = 0
	SeekCur = 1
	SeekEnd = 2
)

// OSInode is a regular on-disk file opened for reading and/or writing,
// tracking its own byte offset (original_source/os/src/fs/inode.rs's
// OSInode, adapted to package fs's Inode instead of easy-fs's directly).
type OSInode struct {
	mu                 sync.Mutex
	inode              *fs.Inode
	offset             int
	readable, writable bool
	refs               int
}

// NewOSInode wraps inode as an open file with the given permissions.
func NewOSInode(inode *fs.Inode, readable, writable bool) *OSInode {
	return &OSInode{inode: inode, readable: readable, writable: writable, refs: 1}
}

func (o *OSInode) Readable() bool { return o.readable }
func (o *OSInode) Writable() bool { return o.writable }

// Read copies from the file's current offset into ub, advancing the
// offset by the amount read.
func (o *OSInode) Read(ub *vm.UserBuffer) (int, errno.Err_t) {
	if !o.readable {
		return 0, errno.EINVAL
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	buf := make([]byte, ub.Len())
	n := o.inode.ReadAt(o.offset, buf)
	ub.Write(buf[:n])
	o.offset += n
	return n, 0
}

// Write copies ub into the file at the current offset, growing the file
// as needed, advancing the offset by the amount written.
func (o *OSInode) Write(ub *vm.UserBuffer) (int, errno.Err_t) {
	if !o.writable {
		return 0, errno.EINVAL
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	buf := make([]byte, ub.Len())
	got := ub.Read(buf)
	n := o.inode.WriteAt(o.offset, buf[:got])
	o.offset += n
	return n, 0
}

// Lseek repositions the file's offset.
func (o *OSInode) Lseek(off int, whence int) (int, errno.Err_t) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var newOff int
	switch whence {
	case SeekSet:
		newOff = off
	case SeekCur:
		newOff = o.offset + off
	case SeekEnd:
		newOff = o.inode.Size() + off
	default:
		return 0, errno.EINVAL
	}
	if newOff < 0 {
		return 0, errno.EINVAL
	}
	o.offset = newOff
	return o.offset, 0
}

// Close drops this handle's reference to the inode.
func (o *OSInode) Close() errno.Err_t {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refs--
	return 0
}

// Reopen bumps the reference count for a duplicated descriptor.
func (o *OSInode) Reopen() errno.Err_t {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refs++
	return 0
}
