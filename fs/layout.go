package fs

import "encoding/binary"

// EFSMagic identifies a block as this filesystem's superblock (spec §6).
const EFSMagic = 0x3B800001

// Disk layout geometry (spec §6).
const (
	InodeDirectCount   = 28
	InodeIndirect1Cnt  = BlockSize / 4 // 128 u32 entries per indirect block
	InodeIndirect2Cnt  = InodeIndirect1Cnt * InodeIndirect1Cnt
	DirectBound        = InodeDirectCount
	Indirect1Bound     = DirectBound + InodeIndirect1Cnt
	NameLengthLimit    = 27
	DirEntrySize       = 32

	// DiskInodeSlotSize is the padded on-disk footprint of one inode: the
	// spec states "<=128B; fits four per block" (512/128 = 4).
	DiskInodeSlotSize = 128
	InodesPerBlock    = BlockSize / DiskInodeSlotSize
)

// InodeKind distinguishes a DiskInode's tag byte (spec §6).
type InodeKind uint8

const (
	InodeFile InodeKind = 0
	InodeDir  InodeKind = 1
)

// SuperBlock is the first block on disk (spec §6's exact field list:
// magic, total_blocks, then the four region sizes). Grounded on
// original_source/easy-fs/src/layout.rs's SuperBlock, translating its
// #[repr(C)] struct into explicit byte-offset accessors the way the
// teacher's own fs/super.go reads/writes Superblock_t fields by offset
// rather than via a tagged struct decode.
type SuperBlock struct {
	Magic             uint32
	TotalBlocks       uint32
	InodeBitmapBlocks uint32
	InodeAreaBlocks   uint32
	DataBitmapBlocks  uint32
	DataAreaBlocks    uint32
}

// Encode writes sb into the first 24 bytes of a zeroed block buffer.
func (sb *SuperBlock) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], sb.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], sb.TotalBlocks)
	binary.LittleEndian.PutUint32(buf[8:12], sb.InodeBitmapBlocks)
	binary.LittleEndian.PutUint32(buf[12:16], sb.InodeAreaBlocks)
	binary.LittleEndian.PutUint32(buf[16:20], sb.DataBitmapBlocks)
	binary.LittleEndian.PutUint32(buf[20:24], sb.DataAreaBlocks)
}

// Decode reads sb back out of buf.
func (sb *SuperBlock) Decode(buf []byte) {
	sb.Magic = binary.LittleEndian.Uint32(buf[0:4])
	sb.TotalBlocks = binary.LittleEndian.Uint32(buf[4:8])
	sb.InodeBitmapBlocks = binary.LittleEndian.Uint32(buf[8:12])
	sb.InodeAreaBlocks = binary.LittleEndian.Uint32(buf[12:16])
	sb.DataBitmapBlocks = binary.LittleEndian.Uint32(buf[16:20])
	sb.DataAreaBlocks = binary.LittleEndian.Uint32(buf[20:24])
}

// Valid reports whether the magic matches (spec §6, efs.rs's is_valid).
func (sb *SuperBlock) Valid() bool { return sb.Magic == EFSMagic }

// DiskInode is the on-disk inode: size, 28 direct block ids, one
// indirect1 id, one indirect2 id, a type tag, all packed into <=128
// bytes (spec §6). Grounded on layout.rs's DiskInode, with the same
// three-level addressing bounds (DirectBound=28, Indirect1Bound=156).
type DiskInode struct {
	Size     uint32
	Direct   [InodeDirectCount]uint32
	Indirect1 uint32
	Indirect2 uint32
	Kind     InodeKind
}

// Init resets the inode to size 0 of the given kind (layout.rs's
// DiskInode::initialize).
func (d *DiskInode) Init(kind InodeKind) {
	*d = DiskInode{Kind: kind}
}

func (d *DiskInode) IsDir() bool  { return d.Kind == InodeDir }
func (d *DiskInode) IsFile() bool { return d.Kind == InodeFile }

// Encode/Decode pack/unpack a DiskInode into a 128-byte disk slot.
func (d *DiskInode) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], d.Size)
	for i, b := range d.Direct {
		off := 4 + i*4
		binary.LittleEndian.PutUint32(buf[off:off+4], b)
	}
	off := 4 + InodeDirectCount*4
	binary.LittleEndian.PutUint32(buf[off:off+4], d.Indirect1)
	binary.LittleEndian.PutUint32(buf[off+4:off+8], d.Indirect2)
	buf[off+8] = byte(d.Kind)
}

func (d *DiskInode) Decode(buf []byte) {
	d.Size = binary.LittleEndian.Uint32(buf[0:4])
	for i := range d.Direct {
		off := 4 + i*4
		d.Direct[i] = binary.LittleEndian.Uint32(buf[off : off+4])
	}
	off := 4 + InodeDirectCount*4
	d.Indirect1 = binary.LittleEndian.Uint32(buf[off : off+4])
	d.Indirect2 = binary.LittleEndian.Uint32(buf[off+4 : off+8])
	d.Kind = InodeKind(buf[off+8])
}

// dataBlocks returns ceil(size / BlockSize).
func (d *DiskInode) dataBlocks() uint32 {
	return dataBlocksFor(d.Size)
}

func dataBlocksFor(size uint32) uint32 {
	return (size + BlockSize - 1) / BlockSize
}

// TotalBlocksFor returns the number of blocks (data + indirect metadata)
// a file of the given size occupies, per layout.rs's DiskInode::total_blocks.
func TotalBlocksFor(size uint32) uint32 {
	data := dataBlocksFor(size)
	total := data
	if data > DirectBound {
		total++ // indirect1 block itself
	}
	if data > Indirect1Bound {
		total++ // indirect2 block itself
		// each indirect1 leaf consumed under indirect2
		extra := data - Indirect1Bound
		total += (extra + InodeIndirect1Cnt - 1) / InodeIndirect1Cnt
	}
	return total
}

// BlocksNumNeeded returns how many additional blocks growing to newSize
// requires, beyond what Size already occupies.
func (d *DiskInode) BlocksNumNeeded(newSize uint32) uint32 {
	if newSize <= d.Size {
		return 0
	}
	return TotalBlocksFor(newSize) - TotalBlocksFor(d.Size)
}

// DirEntry is one 32-byte directory entry (spec §6): a 28-byte
// NUL-terminated name plus a u32 inode id.
type DirEntry struct {
	Name [NameLengthLimit + 1]byte
	Ino  uint32
}

// NewDirEntry builds an entry for name/ino, truncating name to the limit.
func NewDirEntry(name string, ino uint32) DirEntry {
	var e DirEntry
	n := copy(e.Name[:NameLengthLimit], name)
	e.Name[n] = 0
	e.Ino = ino
	return e
}

// NameString returns the entry's name with its NUL terminator stripped.
func (e *DirEntry) NameString() string {
	n := 0
	for n < len(e.Name) && e.Name[n] != 0 {
		n++
	}
	return string(e.Name[:n])
}

func (e *DirEntry) Encode(buf []byte) {
	copy(buf[0:NameLengthLimit+1], e.Name[:])
	binary.LittleEndian.PutUint32(buf[NameLengthLimit+1:DirEntrySize], e.Ino)
}

func (e *DirEntry) Decode(buf []byte) {
	copy(e.Name[:], buf[0:NameLengthLimit+1])
	e.Ino = binary.LittleEndian.Uint32(buf[NameLengthLimit+1 : DirEntrySize])
}
