package fs

import "encoding/binary"

// Superblock is the first block of the image (spec.md §6), bit-exact so
// mkfs-written images and the runtime agree on layout.
type Superblock struct {
	Size             uint32
	FreeBlocksSize   uint32
	NextFreeBlock    uint32
	FreeBlocks       [FSInfoCache]uint32
	FileInfosSize    uint32
	FreeFileInfosSize uint32
	NextFreeFileInfo uint32
	FreeFileInfos    [FSInfoCache]uint32
	RootFileInfo     uint32
}

// Encode marshals sb into a BlockSize-byte block, little-endian.
func (sb *Superblock) Encode() []byte {
	buf := make([]byte, BlockSize)
	w := buf
	put32 := func(v uint32) {
		binary.LittleEndian.PutUint32(w, v)
		w = w[4:]
	}
	put32(sb.Size)
	put32(sb.FreeBlocksSize)
	put32(sb.NextFreeBlock)
	for _, b := range sb.FreeBlocks {
		put32(b)
	}
	put32(sb.FileInfosSize)
	put32(sb.FreeFileInfosSize)
	put32(sb.NextFreeFileInfo)
	for _, b := range sb.FreeFileInfos {
		put32(b)
	}
	put32(sb.RootFileInfo)
	return buf
}

// DecodeSuperblock unmarshals block 0's contents.
func DecodeSuperblock(buf []byte) *Superblock {
	r := buf
	get32 := func() uint32 {
		v := binary.LittleEndian.Uint32(r)
		r = r[4:]
		return v
	}
	sb := &Superblock{}
	sb.Size = get32()
	sb.FreeBlocksSize = get32()
	sb.NextFreeBlock = get32()
	for i := range sb.FreeBlocks {
		sb.FreeBlocks[i] = get32()
	}
	sb.FileInfosSize = get32()
	sb.FreeFileInfosSize = get32()
	sb.NextFreeFileInfo = get32()
	for i := range sb.FreeFileInfos {
		sb.FreeFileInfos[i] = get32()
	}
	sb.RootFileInfo = get32()
	return sb
}
