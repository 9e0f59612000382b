package main

import (
	"os"

	"golang.org/x/sys/unix"

	"rvkernel/fs"
)

// fileDisk implements fs.Disk_i over a regular host file, the host-side
// counterpart of the in-memory fakes the kernel-core packages' own tests
// use. Grounded on the teacher's mkfs.go/ufs.MkDisk, which also produces a
// plain flat image file rather than talking to a block device.
type fileDisk struct {
	f *os.File
}

// createDiskFile truncates f to exactly totalBlocks*fs.BlockSize bytes —
// a sparse allocation, the same trick unix.Stat-based sizing lets the
// teacher's pack's host tools avoid writing out a block of zeros per
// position.
func createDiskFile(path string, totalBlocks int) (*fileDisk, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	size := int64(totalBlocks) * fs.BlockSize
	if err := unix.Ftruncate(int(f.Fd()), size); err != nil {
		f.Close()
		return nil, err
	}
	return &fileDisk{f: f}, nil
}

func (d *fileDisk) ReadBlock(id int, out []byte) {
	if _, err := d.f.ReadAt(out, int64(id)*fs.BlockSize); err != nil {
		panic(err)
	}
}

func (d *fileDisk) WriteBlock(id int, in []byte) {
	if _, err := d.f.WriteAt(in, int64(id)*fs.BlockSize); err != nil {
		panic(err)
	}
}

func (d *fileDisk) Close() error { return d.f.Close() }
