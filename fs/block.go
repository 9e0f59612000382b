// Package fs implements the on-disk filesystem of spec §4.9/§4.10: a
// 512-byte-block layout (superblock, inode bitmap, inode area, data
// bitmap, data area), fixed-size disk inodes with direct/indirect1/
// indirect2 addressing, and a bounded strict-eviction block cache.
package fs

import "sync"

// BlockSize is the on-disk block size (spec §6, "Block size is 512
// bytes").
const BlockSize = 512

// Disk_i is the block device contract fs consumes (spec §6's
// "Block-device contract"); grounded on the teacher's own Disk_i
// (fs/blk.go) naming, though the method set is this spec's, not
// biscuit's request-queue one — biscuit's Disk_i models an async SATA
// controller, while here read_block/write_block are the blocking calls
// spec §6 names directly.
type Disk_i interface {
	ReadBlock(id int, out []byte)
	WriteBlock(id int, in []byte)
}

// BlockCache is one cached 512-byte block plus its dirty flag and an
// outstanding-reference count (spec §4.10: "On entry destruction the
// buffer is written back iff dirty"; Go has no destructors, so the
// manager calls Sync explicitly at eviction and at sync_all, and callers
// bracket their use of a block with Release, mirroring the teacher's own
// explicit Bdev_block_t.Done release call rather than relying on scope
// exit).
type BlockCache struct {
	mu       sync.Mutex
	id       int
	data     [BlockSize]byte
	dirty    bool
	disk     Disk_i
	refcount int // 1 = held only by the cache manager's queue; evictable
}

func newBlockCache(id int, disk Disk_i) *BlockCache {
	bc := &BlockCache{id: id, disk: disk, refcount: 1}
	disk.ReadBlock(id, bc.data[:])
	return bc
}

func (bc *BlockCache) acquire() {
	bc.mu.Lock()
	bc.refcount++
	bc.mu.Unlock()
}

// Release drops the caller's reference, taken implicitly by whichever
// CacheManager.Get call returned this handle.
func (bc *BlockCache) Release() {
	bc.mu.Lock()
	bc.refcount--
	bc.mu.Unlock()
}

func (bc *BlockCache) evictable() bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.refcount == 1
}

// Read runs f against the block's bytes starting at offset without
// marking it dirty (spec §4.10's read<T>).
func (bc *BlockCache) Read(offset int, f func(data []byte)) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	f(bc.data[offset:])
}

// Modify runs f against the block's bytes starting at offset and marks
// the block dirty (spec §4.10's modify<T>).
func (bc *BlockCache) Modify(offset int, f func(data []byte)) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.dirty = true
	f(bc.data[offset:])
}

// Sync writes the block back if dirty.
func (bc *BlockCache) Sync() {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.dirty {
		bc.disk.WriteBlock(bc.id, bc.data[:])
		bc.dirty = false
	}
}

const cacheCapacity = 16

type cacheEntry struct {
	id int
	bc *BlockCache
}

// CacheManager is the bounded FIFO of cached blocks (spec §4.10).
type CacheManager struct {
	mu    sync.Mutex
	disk  Disk_i
	queue []cacheEntry
}

// NewCacheManager returns an empty cache backed by disk.
func NewCacheManager(disk Disk_i) *CacheManager {
	return &CacheManager{disk: disk}
}

// Get returns the cached block for id, reading it from disk on first
// access. It evicts the first entry with exactly one outstanding
// reference when the cache is full; if none qualifies, that is
// Unrecoverable (spec §7) and this panics. The returned handle's
// reference must be dropped with Release when the caller is done.
func (m *CacheManager) Get(id int) *BlockCache {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.queue {
		if e.id == id {
			e.bc.acquire()
			return e.bc
		}
	}
	if len(m.queue) == cacheCapacity {
		idx := -1
		for i, e := range m.queue {
			if e.bc.evictable() {
				idx = i
				break
			}
		}
		if idx == -1 {
			panic("fs: block cache exhausted, no evictable entry")
		}
		m.queue[idx].bc.Sync()
		m.queue = append(m.queue[:idx], m.queue[idx+1:]...)
	}
	bc := newBlockCache(id, m.disk)
	bc.acquire()
	m.queue = append(m.queue, cacheEntry{id, bc})
	return bc
}

// SyncAll forces write-back of every cached entry.
func (m *CacheManager) SyncAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.queue {
		e.bc.Sync()
	}
}
