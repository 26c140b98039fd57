package fs

import (
	"github.com/sirupsen/logrus"

	"tile/internal/bitfield"
	"tile/internal/block"
	"tile/internal/buffer"
)

// defaultDirAccess is the permission mode Format grants newly created
// directories: owner full access, group/other read+execute (list only).
var defaultDirAccess = bitfield.InodeAccess{
	OwnerRead: true, OwnerWrite: true, OwnerExec: true,
	GroupRead: true, GroupExec: true,
	OtherRead: true, OtherExec: true,
}

// Format writes a brand-new, empty filesystem to dev: a zeroed superblock
// and inode-block region, a free-block cache/overflow chain covering
// every data block, and a root directory inode with its own "." and ".."
// entries. fileInfosSize is the number of inode blocks to reserve
// (spec.md §6); it bounds how many files the image can ever hold.
//
// This is the single source of truth for the on-disk layout cmd/mkfs
// writes and this package's tests read back, keeping them bit-compatible
// by construction rather than by two independent implementations agreeing
// by convention.
func Format(dev block.Device, fileInfosSize uint32, log *logrus.Logger) (*Filesystem, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if dev.BlockSize() != BlockSize {
		return nil, errInvalidf("Format: device block size %d != %d", dev.BlockSize(), BlockSize)
	}
	numBlocks := dev.NumBlocks()
	dataStart := 1 + fileInfosSize
	if dataStart >= numBlocks {
		return nil, errInvalidf("Format: fileInfosSize %d leaves no data blocks", fileInfosSize)
	}

	zero := make([]byte, BlockSize)
	if err := dev.WriteBlock(0, zero); err != nil {
		return nil, err
	}
	for b := uint32(1); b < dataStart; b++ {
		if err := dev.WriteBlock(b, zero); err != nil {
			return nil, err
		}
	}

	sb := &Superblock{Size: numBlocks, FileInfosSize: fileInfosSize}
	fs, err := mountFromSuperblock(dev, sb, log)
	if err != nil {
		return nil, err
	}

	for b := dataStart; b < numBlocks; b++ {
		if err := fs.freeBlock(b); err != nil {
			return nil, err
		}
	}

	rootNum, err := fs.allocInode()
	if err != nil {
		return nil, err
	}
	root := &FileInfo{
		Num:        rootNum,
		Type:       FTDirectory,
		Access:     defaultDirAccess,
		OwnerUser:  0,
		OwnerGroup: 0,
	}
	if err := fs.WriteInode(root); err != nil {
		return nil, err
	}
	if err := fs.InitDirectory(root, rootNum); err != nil {
		return nil, err
	}
	fs.sb.RootFileInfo = rootNum

	log.WithFields(logrus.Fields{
		"blocks":        numBlocks,
		"fileInfosSize": fileInfosSize,
		"root":          rootNum,
	}).Info("fs: formatted new image")
	return fs, nil
}

// mountFromSuperblock builds a Filesystem around an already-constructed,
// not-yet-persisted superblock, for Format's use before block 0 holds
// anything meaningful yet.
func mountFromSuperblock(dev block.Device, sb *Superblock, log *logrus.Logger) (*Filesystem, error) {
	return &Filesystem{dev: dev, bc: buffer.New(dev), sb: sb, log: log}, nil
}
