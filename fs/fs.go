package fs

import (
	"encoding/binary"
	"sync"
)

// EasyFileSystem is the filesystem facade owning the two bitmaps and the
// region layout computed at Create/Open time (spec §4.9 "Filesystem
// facade"). Grounded on original_source/easy-fs/src/efs.rs's
// EasyFileSystem.
type EasyFileSystem struct {
	cache          *CacheManager
	inodeBitmap    *Bitmap
	dataBitmap     *Bitmap
	inodeAreaStart int // first block of the inode area
	dataAreaStart  int // first block of the data area
}

// CreateFilesystem formats disk as a filesystem of totalBlocks blocks
// with inodeBitmapBlocks blocks reserved for the inode bitmap, writes the
// superblock, and allocates inode 0 as the root directory (efs.rs's
// EasyFileSystem::create).
func CreateFilesystem(disk Disk_i, totalBlocks, inodeBitmapBlocks int) *EasyFileSystem {
	cache := NewCacheManager(disk)
	inodeBitmap := NewBitmap(1, inodeBitmapBlocks)

	inodeNum := inodeBitmap.MaxAllocatable()
	inodeAreaBlocks := (inodeNum*DiskInodeSlotSize + BlockSize - 1) / BlockSize
	inodeTotalBlocks := inodeBitmapBlocks + inodeAreaBlocks
	dataTotalBlocks := totalBlocks - 1 - inodeTotalBlocks
	dataBitmapBlocks := (dataTotalBlocks + bitsPerBlock) / (bitsPerBlock + 1)
	dataAreaBlocks := dataTotalBlocks - dataBitmapBlocks

	dataBitmapStart := 1 + inodeBitmapBlocks + inodeAreaBlocks
	dataBitmap := NewBitmap(dataBitmapStart, dataBitmapBlocks)

	efs := &EasyFileSystem{
		cache:          cache,
		inodeBitmap:    inodeBitmap,
		dataBitmap:     dataBitmap,
		inodeAreaStart: 1 + inodeBitmapBlocks,
		dataAreaStart:  dataBitmapStart + dataBitmapBlocks,
	}

	for i := 0; i < totalBlocks; i++ {
		bc := cache.Get(i)
		bc.Modify(0, func(data []byte) {
			for j := range data {
				data[j] = 0
			}
		})
		bc.Release()
	}

	sb := SuperBlock{
		Magic:             EFSMagic,
		TotalBlocks:       uint32(totalBlocks),
		InodeBitmapBlocks: uint32(inodeBitmapBlocks),
		InodeAreaBlocks:   uint32(inodeAreaBlocks),
		DataBitmapBlocks:  uint32(dataBitmapBlocks),
		DataAreaBlocks:    uint32(dataAreaBlocks),
	}
	bc0 := cache.Get(0)
	bc0.Modify(0, func(data []byte) { sb.Encode(data) })
	bc0.Release()

	rootIno, ok := efs.allocInode()
	if !ok || rootIno != 0 {
		panic("fs: root inode must allocate as id 0 on a freshly created filesystem")
	}
	diskID, offset := efs.inodeDiskPos(rootIno)
	bc := cache.Get(diskID)
	bc.Modify(offset, func(data []byte) {
		var d DiskInode
		d.Init(InodeDir)
		d.Encode(data)
	})
	bc.Release()

	cache.SyncAll()
	return efs
}

// OpenFilesystem reads an existing filesystem's superblock off disk and
// reconstructs its bitmaps/region offsets (efs.rs's EasyFileSystem::open).
func OpenFilesystem(disk Disk_i) *EasyFileSystem {
	cache := NewCacheManager(disk)
	var sb SuperBlock
	bc0 := cache.Get(0)
	bc0.Read(0, func(data []byte) { sb.Decode(data) })
	bc0.Release()
	if !sb.Valid() {
		panic("fs: superblock magic mismatch, not an easy-fs volume")
	}

	inodeBitmap := NewBitmap(1, int(sb.InodeBitmapBlocks))
	dataBitmapStart := 1 + int(sb.InodeBitmapBlocks) + int(sb.InodeAreaBlocks)
	dataBitmap := NewBitmap(dataBitmapStart, int(sb.DataBitmapBlocks))

	return &EasyFileSystem{
		cache:          cache,
		inodeBitmap:    inodeBitmap,
		dataBitmap:     dataBitmap,
		inodeAreaStart: 1 + int(sb.InodeBitmapBlocks),
		dataAreaStart:  dataBitmapStart + int(sb.DataBitmapBlocks),
	}
}

// RootInode returns the inode handle for the filesystem's root directory
// (always inode id 0).
func RootInode(efs *EasyFileSystem) *Inode { return NewInode(0, efs) }

func (efs *EasyFileSystem) inodeDiskPos(inodeID int) (diskID, offset int) {
	diskID = efs.inodeAreaStart + inodeID/InodesPerBlock
	offset = (inodeID % InodesPerBlock) * DiskInodeSlotSize
	return
}

func (efs *EasyFileSystem) allocInode() (int, bool) {
	return efs.inodeBitmap.Alloc(efs.cache)
}

// allocData returns an absolute disk block id, not a bitmap-local index —
// every stored block reference in a DiskInode (direct/indirect slots) is
// an absolute disk id, matching efs.rs's get_data_block_disk_id callers.
func (efs *EasyFileSystem) allocData() (int, bool) {
	id, ok := efs.dataBitmap.Alloc(efs.cache)
	if !ok {
		return 0, false
	}
	return efs.dataAreaStart + id, true
}

func (efs *EasyFileSystem) deallocData(diskID int) {
	if diskID < efs.dataAreaStart {
		panic("fs: dealloc of a block outside the data area")
	}
	bc := efs.cache.Get(diskID)
	bc.Modify(0, func(data []byte) {
		for i := range data {
			data[i] = 0
		}
	})
	bc.Release()
	efs.dataBitmap.Dealloc(efs.cache, diskID-efs.dataAreaStart)
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// resolveBlockID walks the inode's direct/indirect1/indirect2 addressing
// to find the absolute disk block id backing logical block innerID
// (layout.rs's DiskInode::get_disk_id).
func (efs *EasyFileSystem) resolveBlockID(d *DiskInode, innerID int) int {
	switch {
	case innerID < DirectBound:
		return int(d.Direct[innerID])
	case innerID < Indirect1Bound:
		idx := innerID - DirectBound
		var id uint32
		bc := efs.cache.Get(int(d.Indirect1))
		bc.Read(0, func(data []byte) {
			id = binary.LittleEndian.Uint32(data[idx*4 : idx*4+4])
		})
		bc.Release()
		return int(id)
	default:
		last := innerID - Indirect1Bound
		l1 := last / InodeIndirect1Cnt
		l2 := last % InodeIndirect1Cnt
		var mid uint32
		bc := efs.cache.Get(int(d.Indirect2))
		bc.Read(0, func(data []byte) {
			mid = binary.LittleEndian.Uint32(data[l1*4 : l1*4+4])
		})
		bc.Release()
		var id uint32
		bc2 := efs.cache.Get(int(mid))
		bc2.Read(0, func(data []byte) {
			id = binary.LittleEndian.Uint32(data[l2*4 : l2*4+4])
		})
		bc2.Release()
		return int(id)
	}
}

// increaseSize grows d to newSize, consuming newBlocks (already-allocated
// absolute disk ids, in the exact order blocks_num_needed expects) into
// the direct slots, then the indirect1 block, then the indirect2 tree
// (layout.rs's DiskInode::increase_size).
func (efs *EasyFileSystem) increaseSize(d *DiskInode, newSize uint32, newBlocks []uint32) {
	current := d.dataBlocks()
	d.Size = newSize
	total := d.dataBlocks()
	idx := 0
	next := func() uint32 {
		v := newBlocks[idx]
		idx++
		return v
	}

	for current < minU32(total, InodeDirectCount) {
		d.Direct[current] = next()
		current++
	}
	if total <= InodeDirectCount {
		return
	}
	if current == InodeDirectCount {
		d.Indirect1 = next()
	}
	current -= InodeDirectCount
	total -= InodeDirectCount

	bc1 := efs.cache.Get(int(d.Indirect1))
	bc1.Modify(0, func(data []byte) {
		for current < minU32(total, InodeIndirect1Cnt) {
			off := int(current) * 4
			binary.LittleEndian.PutUint32(data[off:off+4], next())
			current++
		}
	})
	bc1.Release()

	if total <= InodeIndirect1Cnt {
		return
	}
	if current == InodeIndirect1Cnt {
		d.Indirect2 = next()
	}
	current -= InodeIndirect1Cnt
	total -= InodeIndirect1Cnt

	a0 := int(current) / InodeIndirect1Cnt
	b0 := int(current) % InodeIndirect1Cnt
	a1 := int(total) / InodeIndirect1Cnt
	b1 := int(total) % InodeIndirect1Cnt

	bc2 := efs.cache.Get(int(d.Indirect2))
	bc2.Modify(0, func(l2 []byte) {
		for a0 < a1 || (a0 == a1 && b0 < b1) {
			if b0 == 0 {
				off := a0 * 4
				binary.LittleEndian.PutUint32(l2[off:off+4], next())
			}
			leaf := binary.LittleEndian.Uint32(l2[a0*4 : a0*4+4])
			bcLeaf := efs.cache.Get(int(leaf))
			bcLeaf.Modify(0, func(leafData []byte) {
				off := b0 * 4
				binary.LittleEndian.PutUint32(leafData[off:off+4], next())
			})
			bcLeaf.Release()
			b0++
			if b0 == InodeIndirect1Cnt {
				b0 = 0
				a0++
			}
		}
	})
	bc2.Release()
}

// clearSize truncates d to size 0 and returns every block id it owned
// (data blocks plus indirect metadata blocks), for the caller to free via
// the data bitmap (layout.rs's DiskInode::clear_size).
func (d *DiskInode) clearSize(efs *EasyFileSystem) []uint32 {
	var freed []uint32
	dataBlocks := int(d.dataBlocks())
	d.Size = 0
	current := 0
	minI := func(a, b int) int {
		if a < b {
			return a
		}
		return b
	}

	for current < minI(dataBlocks, InodeDirectCount) {
		freed = append(freed, d.Direct[current])
		d.Direct[current] = 0
		current++
	}
	if dataBlocks <= InodeDirectCount {
		return freed
	}
	freed = append(freed, d.Indirect1)
	dataBlocks -= InodeDirectCount
	current = 0

	bc1 := efs.cache.Get(int(d.Indirect1))
	bc1.Read(0, func(data []byte) {
		for current < minI(dataBlocks, InodeIndirect1Cnt) {
			off := current * 4
			freed = append(freed, binary.LittleEndian.Uint32(data[off:off+4]))
			current++
		}
	})
	bc1.Release()
	d.Indirect1 = 0

	if dataBlocks <= InodeIndirect1Cnt {
		return freed
	}
	freed = append(freed, d.Indirect2)
	dataBlocks -= InodeIndirect1Cnt

	a1 := dataBlocks / InodeIndirect1Cnt
	b1 := dataBlocks % InodeIndirect1Cnt

	bc2 := efs.cache.Get(int(d.Indirect2))
	bc2.Read(0, func(l2 []byte) {
		for i := 0; i < a1; i++ {
			leaf := binary.LittleEndian.Uint32(l2[i*4 : i*4+4])
			freed = append(freed, leaf)
			bcLeaf := efs.cache.Get(int(leaf))
			bcLeaf.Read(0, func(leafData []byte) {
				for j := 0; j < InodeIndirect1Cnt; j++ {
					off := j * 4
					freed = append(freed, binary.LittleEndian.Uint32(leafData[off:off+4]))
				}
			})
			bcLeaf.Release()
		}
		if b1 > 0 {
			leaf := binary.LittleEndian.Uint32(l2[a1*4 : a1*4+4])
			freed = append(freed, leaf)
			bcLeaf := efs.cache.Get(int(leaf))
			bcLeaf.Read(0, func(leafData []byte) {
				for j := 0; j < b1; j++ {
					off := j * 4
					freed = append(freed, binary.LittleEndian.Uint32(leafData[off:off+4]))
				}
			})
			bcLeaf.Release()
		}
	})
	bc2.Release()
	d.Indirect2 = 0

	return freed
}

// readAt copies into buf from d's data starting at offset, stopping at
// d.Size; readAt never grows d (layout.rs's DiskInode::read_at).
func (efs *EasyFileSystem) readAt(d *DiskInode, offset int, buf []byte) int {
	start := offset
	end := offset + len(buf)
	if end > int(d.Size) {
		end = int(d.Size)
	}
	if start >= end {
		return 0
	}
	startBlock := start / BlockSize
	read := 0
	for {
		endCur := (start/BlockSize + 1) * BlockSize
		if endCur > end {
			endCur = end
		}
		n := endCur - start
		diskID := efs.resolveBlockID(d, startBlock)
		off := start % BlockSize
		bc := efs.cache.Get(diskID)
		bc.Read(0, func(data []byte) {
			copy(buf[read:read+n], data[off:off+n])
		})
		bc.Release()
		read += n
		if endCur == end {
			break
		}
		start = endCur
		startBlock++
	}
	return read
}

// writeAt copies buf into d's data starting at offset; the caller must
// already have grown d.Size to cover offset+len(buf) (layout.rs's
// DiskInode::write_at: "size must be adjusted properly beforehand" — the
// Inode-level WriteAt below is what performs that adjustment).
func (efs *EasyFileSystem) writeAt(d *DiskInode, offset int, buf []byte) int {
	start := offset
	end := offset + len(buf)
	if end > int(d.Size) {
		end = int(d.Size)
	}
	startBlock := start / BlockSize
	written := 0
	for {
		endCur := (start/BlockSize + 1) * BlockSize
		if endCur > end {
			endCur = end
		}
		n := endCur - start
		diskID := efs.resolveBlockID(d, startBlock)
		off := start % BlockSize
		bc := efs.cache.Get(diskID)
		bc.Modify(0, func(data []byte) {
			copy(data[off:off+n], buf[written:written+n])
		})
		bc.Release()
		written += n
		if endCur == end {
			break
		}
		start = endCur
		startBlock++
	}
	return written
}

func (efs *EasyFileSystem) findInodeID(name string, d *DiskInode) (int, bool) {
	if !d.IsDir() {
		panic("fs: find called on a non-directory inode")
	}
	count := int(d.Size) / DirEntrySize
	buf := make([]byte, DirEntrySize)
	var e DirEntry
	for i := 0; i < count; i++ {
		efs.readAt(d, i*DirEntrySize, buf)
		e.Decode(buf)
		if e.NameString() == name {
			return int(e.Ino), true
		}
	}
	return 0, false
}

// Inode is the in-memory handle to one on-disk file or directory (spec
// §4.9's VFS layer). Grounded on original_source/easy-fs/src/vfs.rs's
// Inode; every operation locks the whole inode for its duration, matching
// vfs.rs's coarse per-inode exclusivity (no range locking).
type Inode struct {
	mu     sync.Mutex
	diskID int
	offset int
	efs    *EasyFileSystem
}

// NewInode returns the handle for inodeID.
func NewInode(inodeID int, efs *EasyFileSystem) *Inode {
	diskID, offset := efs.inodeDiskPos(inodeID)
	return &Inode{diskID: diskID, offset: offset, efs: efs}
}

func (ino *Inode) readDisk(f func(d *DiskInode)) {
	bc := ino.efs.cache.Get(ino.diskID)
	bc.Read(ino.offset, func(data []byte) {
		var d DiskInode
		d.Decode(data)
		f(&d)
	})
	bc.Release()
}

func (ino *Inode) modifyDisk(f func(d *DiskInode)) {
	bc := ino.efs.cache.Get(ino.diskID)
	bc.Modify(ino.offset, func(data []byte) {
		var d DiskInode
		d.Decode(data)
		f(&d)
		d.Encode(data)
	})
	bc.Release()
}

func (ino *Inode) growLocked(d *DiskInode, newSize uint32) {
	if newSize <= d.Size {
		return
	}
	need := d.BlocksNumNeeded(newSize)
	blocks := make([]uint32, need)
	for i := uint32(0); i < need; i++ {
		id, ok := ino.efs.allocData()
		if !ok {
			panic("fs: data bitmap exhausted")
		}
		blocks[i] = uint32(id)
	}
	ino.efs.increaseSize(d, newSize, blocks)
}

// Find looks up name as a direct child, returning its Inode handle.
func (ino *Inode) Find(name string) (*Inode, bool) {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	var id int
	var ok bool
	ino.readDisk(func(d *DiskInode) { id, ok = ino.efs.findInodeID(name, d) })
	if !ok {
		return nil, false
	}
	return NewInode(id, ino.efs), true
}

// Ls lists the names of every direct child of a directory inode.
func (ino *Inode) Ls() []string {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	var names []string
	ino.readDisk(func(d *DiskInode) {
		count := int(d.Size) / DirEntrySize
		buf := make([]byte, DirEntrySize)
		var e DirEntry
		for i := 0; i < count; i++ {
			ino.efs.readAt(d, i*DirEntrySize, buf)
			e.Decode(buf)
			names = append(names, e.NameString())
		}
	})
	return names
}

// Create makes a new file named name as a direct child of the directory
// inode ino, failing if name already exists (vfs.rs's Inode::create).
func (ino *Inode) Create(name string) (*Inode, bool) {
	ino.mu.Lock()
	defer ino.mu.Unlock()

	var exists bool
	ino.readDisk(func(d *DiskInode) {
		_, exists = ino.efs.findInodeID(name, d)
	})
	if exists {
		return nil, false
	}

	newID, ok := ino.efs.allocInode()
	if !ok {
		panic("fs: inode bitmap exhausted")
	}
	childDiskID, childOffset := ino.efs.inodeDiskPos(newID)
	bc := ino.efs.cache.Get(childDiskID)
	bc.Modify(childOffset, func(data []byte) {
		var d DiskInode
		d.Init(InodeFile)
		d.Encode(data)
	})
	bc.Release()

	ino.modifyDisk(func(d *DiskInode) {
		oldSize := d.Size
		ino.growLocked(d, oldSize+DirEntrySize)
		entry := NewDirEntry(name, uint32(newID))
		buf := make([]byte, DirEntrySize)
		entry.Encode(buf)
		ino.efs.writeAt(d, int(oldSize), buf)
	})
	ino.efs.cache.SyncAll()
	return NewInode(newID, ino.efs), true
}

// Clear truncates ino to zero length, freeing every data and indirect
// block it owned (vfs.rs's Inode::clear).
func (ino *Inode) Clear() {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	ino.modifyDisk(func(d *DiskInode) {
		freed := d.clearSize(ino.efs)
		for _, id := range freed {
			ino.efs.deallocData(int(id))
		}
	})
	ino.efs.cache.SyncAll()
}

// ReadAt copies into buf from offset, returning bytes copied (never
// grows the file).
func (ino *Inode) ReadAt(offset int, buf []byte) int {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	n := 0
	ino.readDisk(func(d *DiskInode) { n = ino.efs.readAt(d, offset, buf) })
	return n
}

// WriteAt copies buf into the file starting at offset, growing the file
// first if offset+len(buf) exceeds its current size, then syncs every
// dirty cache entry (vfs.rs's Inode::write_at already performs the grow
// transparently; spec §8 test 8's durability property depends on this
// sync happening before the caller's sync_all, which is harmless since
// SyncAll is idempotent).
func (ino *Inode) WriteAt(offset int, buf []byte) int {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	n := 0
	ino.modifyDisk(func(d *DiskInode) {
		end := uint32(offset + len(buf))
		ino.growLocked(d, end)
		n = ino.efs.writeAt(d, offset, buf)
	})
	ino.efs.cache.SyncAll()
	return n
}

// Size returns the inode's current byte length.
func (ino *Inode) Size() int {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	var sz uint32
	ino.readDisk(func(d *DiskInode) { sz = d.Size })
	return int(sz)
}

// IsDir reports whether ino is a directory.
func (ino *Inode) IsDir() bool {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	var isDir bool
	ino.readDisk(func(d *DiskInode) { isDir = d.IsDir() })
	return isDir
}

// SyncAll forces write-back of every dirty cached block in the
// filesystem ino belongs to.
func (ino *Inode) SyncAll() { ino.efs.cache.SyncAll() }
