package fs

import (
	"encoding/binary"

	"tile/internal/bitfield"
)

// FileInfo is the on-disk inode (spec.md's "external file info"): type,
// ownership, access bits, size, and the block-indirection array.
type FileInfo struct {
	Num        uint32
	Type       FileType
	Access     bitfield.InodeAccess
	OwnerUser  uint32
	OwnerGroup uint32
	Size       uint64
	Blocks     [BlocksPerFile]uint32
}

// accessConfig packs InodeAccess into the low 9 bits of one uint32, the
// layout original_source/tile/kernel/file.c uses for st_access.
var accessConfig = &bitfield.Config{NumBits: 32}

// Encode marshals fi into its on-disk record (fileInfoEncodedSize bytes).
func (fi *FileInfo) Encode() []byte {
	buf := make([]byte, fileInfoEncodedSize)
	w := buf
	put32 := func(v uint32) {
		binary.LittleEndian.PutUint32(w, v)
		w = w[4:]
	}
	access, err := bitfield.Pack(fi.Access, accessConfig)
	if err != nil {
		access = 0
	}
	put32(fi.Num)
	put32(uint32(fi.Type))
	put32(uint32(access))
	put32(fi.OwnerUser)
	put32(fi.OwnerGroup)
	put32(uint32(fi.Size))
	for _, b := range fi.Blocks {
		put32(b)
	}
	return buf
}

// DecodeFileInfo unmarshals one inode record.
func DecodeFileInfo(buf []byte) *FileInfo {
	r := buf
	get32 := func() uint32 {
		v := binary.LittleEndian.Uint32(r)
		r = r[4:]
		return v
	}
	fi := &FileInfo{}
	fi.Num = get32()
	fi.Type = FileType(get32())
	var access bitfield.InodeAccess
	bitfield.Unpack(uint64(get32()), &access)
	fi.Access = access
	fi.OwnerUser = get32()
	fi.OwnerGroup = get32()
	fi.Size = uint64(get32())
	for i := range fi.Blocks {
		fi.Blocks[i] = get32()
	}
	return fi
}

// free reports whether this inode slot is unused.
func (fi *FileInfo) free() bool { return fi.Type == FTFree }

// DeviceNumber decodes the (major, minor) pair a character- or
// block-device inode carries. Device inodes have no data blocks, so we
// pack the device number into Blocks[0] the way classic Unix inodes
// repurpose their first block pointer as st_rdev for special files;
// spec.md §6's on-disk inode layout has no dedicated major/minor field,
// so this is the only slot available that stays bit-exact with mkfs.
func (fi *FileInfo) DeviceNumber() (major, minor uint32) {
	raw := fi.Blocks[0]
	return raw >> 16, raw & 0xffff
}

// SetDeviceNumber packs (major, minor) into Blocks[0].
func (fi *FileInfo) SetDeviceNumber(major, minor uint32) {
	fi.Blocks[0] = (major << 16) | (minor & 0xffff)
}

// DirEntry is one directory entry: a file-info number and its name within
// the directory.
type DirEntry struct {
	Num  uint32
	Name string
}

// Encode marshals d into its on-disk record (dirEntryEncodedSize bytes).
func (d *DirEntry) Encode() []byte {
	buf := make([]byte, dirEntryEncodedSize)
	binary.LittleEndian.PutUint32(buf[:4], d.Num)
	copy(buf[4:], d.Name)
	return buf
}

// DecodeDirEntry unmarshals one directory entry record. A zero Num marks
// an empty slot.
func DecodeDirEntry(buf []byte) *DirEntry {
	num := binary.LittleEndian.Uint32(buf[:4])
	name := buf[4:]
	n := 0
	for n < len(name) && name[n] != 0 {
		n++
	}
	return &DirEntry{Num: num, Name: string(name[:n])}
}
