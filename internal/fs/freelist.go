package fs

import "encoding/binary"

// allocBlock hands out the next free data block, refilling the
// superblock's bounded free-block cache from an on-disk overflow list
// when it runs dry (spec.md §4.6 "Block free/alloc cache"). This mirrors
// the classic Unix free-list discipline: free_blocks is consumed as a
// stack; the block that empties the stack is itself read first, because
// its contents are the next batch of free block numbers, before being
// handed out as the allocation.
func (fs *Filesystem) allocBlock() (uint32, error) {
	if fs.sb.NextFreeBlock == 0 {
		return 0, errNoSpacef("allocBlock: free list exhausted")
	}
	fs.sb.NextFreeBlock--
	n := fs.sb.FreeBlocks[fs.sb.NextFreeBlock]

	if fs.sb.NextFreeBlock == 0 {
		if err := fs.refillFreeBlocks(n); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// refillFreeBlocks reads the free-block list block at num: its first
// 32-bit word is a count, followed by that many block numbers, which
// become the new in-superblock cache.
func (fs *Filesystem) refillFreeBlocks(num uint32) error {
	e, err := fs.bc.Get(num)
	if err != nil {
		return errInvalidf("refillFreeBlocks %d: %v", num, err)
	}
	count := binary.LittleEndian.Uint32(e.Data[:4])
	if count > FSInfoCache {
		count = FSInfoCache
	}
	for i := uint32(0); i < count; i++ {
		fs.sb.FreeBlocks[i] = binary.LittleEndian.Uint32(e.Data[4+4*i:])
	}
	fs.sb.NextFreeBlock = count
	return fs.bc.Put(e)
}

// freeBlock returns num to the free-block cache, spilling the full cache
// out to num itself as an overflow list block when the cache is at
// capacity (the mirror image of refillFreeBlocks).
func (fs *Filesystem) freeBlock(num uint32) error {
	if fs.sb.NextFreeBlock >= FSInfoCache {
		if err := fs.spillFreeBlocks(num); err != nil {
			return err
		}
		fs.sb.FreeBlocks[0] = num
		fs.sb.NextFreeBlock = 1
		return nil
	}
	fs.sb.FreeBlocks[fs.sb.NextFreeBlock] = num
	fs.sb.NextFreeBlock++
	return nil
}

func (fs *Filesystem) spillFreeBlocks(num uint32) error {
	e, err := fs.bc.Get(num)
	if err != nil {
		return errInvalidf("spillFreeBlocks %d: %v", num, err)
	}
	binary.LittleEndian.PutUint32(e.Data[:4], FSInfoCache)
	for i, b := range fs.sb.FreeBlocks {
		binary.LittleEndian.PutUint32(e.Data[4+4*i:], b)
	}
	return fs.bc.Put(e)
}

// allocInode hands out a free inode number, refilling the bounded
// free-inode cache by scanning inode blocks for type-0 slots when it runs
// dry (spec.md §4.6). Unlike blocks, the inode cache has no on-disk
// overflow chain: there is nowhere else to look but the inode blocks
// themselves.
func (fs *Filesystem) allocInode() (uint32, error) {
	if fs.sb.NextFreeFileInfo == 0 {
		if err := fs.refillFreeInodes(); err != nil {
			return 0, err
		}
		if fs.sb.NextFreeFileInfo == 0 {
			return 0, errNoSpacef("allocInode: no free inodes")
		}
	}
	fs.sb.NextFreeFileInfo--
	return fs.sb.FreeFileInfos[fs.sb.NextFreeFileInfo], nil
}

func (fs *Filesystem) refillFreeInodes() error {
	var found uint32
	total := fs.sb.FileInfosSize * uint32(FileInfoPerBlock)
	for num := uint32(1); num <= total && found < FSInfoCache; num++ {
		fi, err := fs.ReadInode(num)
		if err != nil {
			return err
		}
		if fi.free() {
			fs.sb.FreeFileInfos[found] = num
			found++
		}
	}
	fs.sb.FreeFileInfosSize = found
	fs.sb.NextFreeFileInfo = found
	return nil
}

// freeInode returns num to the free-inode cache; the inode record itself
// is not rewritten. When
// the cache is already full the number is dropped on the floor, not
// persisted to disk as free (spec.md §9's documented bug: "file_free
// silently drops the inode when the cache is full — a real FS must
// persist the free mark to disk"). We log it rather than silently
// swallowing it, but the inode does leak exactly as spec.md describes.
func (fs *Filesystem) freeInode(num uint32) {
	if fs.sb.NextFreeFileInfo >= FSInfoCache {
		fs.log.WithField("inode", num).Warn("fs: free-inode cache full, dropping inode number")
		return
	}
	fs.sb.FreeFileInfos[fs.sb.NextFreeFileInfo] = num
	fs.sb.NextFreeFileInfo++
	if fs.sb.NextFreeFileInfo > fs.sb.FreeFileInfosSize {
		fs.sb.FreeFileInfosSize = fs.sb.NextFreeFileInfo
	}
}
