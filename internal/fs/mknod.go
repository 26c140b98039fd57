package fs

import (
	"strings"

	"tile/internal/bitfield"
)

// splitParentLeaf splits a normalized pathname into its containing
// directory and final component, spec.md §4.6 "mknod/creat": "split
// pathname into parent/leaf".
func splitParentLeaf(path string) (dir, leaf string) {
	path = NormalizePathname(path)
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return ".", path
	}
	if idx == 0 {
		return "/", path[1:]
	}
	return path[:idx], path[idx+1:]
}

// Mknod creates a new inode named leaf under the directory named dir and
// appends its directory entry, refilling the free-inode cache from inode
// blocks when it runs empty (spec.md §4.6). The parent must be a
// directory the caller may write and search.
func (fs *Filesystem) Mknod(path string, cwd, uid uint32, ftype FileType, access bitfield.InodeAccess, ownerUser, ownerGroup uint32) (*FileInfo, error) {
	dirPath, leaf := splitParentLeaf(path)
	if leaf == "" {
		return nil, errInvalidf("Mknod: %q has no leaf component", path)
	}
	if len(leaf) >= FileNameSize {
		return nil, errInvalidf("Mknod: %q exceeds FileNameSize", leaf)
	}

	parent, err := fs.NameToFile(dirPath, cwd, uid)
	if err != nil {
		return nil, err
	}
	if parent.Type != FTDirectory {
		return nil, errInvalidf("Mknod: %q is not a directory", dirPath)
	}
	if !Access(parent, uid, WOK|XOK) {
		return nil, errPermissionf("Mknod: %q", dirPath)
	}
	if _, err := fs.lookupDirEntry(parent, leaf); err == nil {
		return nil, errExistsf("Mknod: %q already exists", path)
	}

	num, err := fs.allocInode()
	if err != nil {
		return nil, err
	}

	fi := &FileInfo{
		Num:        num,
		Type:       ftype,
		Access:     access,
		OwnerUser:  ownerUser,
		OwnerGroup: ownerGroup,
	}
	if err := fs.WriteInode(fi); err != nil {
		return nil, err
	}

	if ftype == FTDirectory {
		if err := fs.InitDirectory(fi, parent.Num); err != nil {
			return nil, err
		}
	}

	if err := fs.appendDirEntry(parent, DirEntry{Num: num, Name: leaf}); err != nil {
		return nil, err
	}
	return fi, nil
}

// InitDirectory writes the "." and ".." entries every directory carries
// explicitly (spec.md §4.6: "`.` and `..` entries are stored explicitly
// in every directory").
func (fs *Filesystem) InitDirectory(dir *FileInfo, parentNum uint32) error {
	if err := fs.appendDirEntry(dir, DirEntry{Num: dir.Num, Name: "."}); err != nil {
		return err
	}
	return fs.appendDirEntry(dir, DirEntry{Num: parentNum, Name: ".."})
}

// appendDirEntry writes entry into the first free (Num == 0) slot of
// dir's existing contents, or grows dir by one entry if none is free.
func (fs *Filesystem) appendDirEntry(dir *FileInfo, entry DirEntry) error {
	buf := make([]byte, dirEntryEncodedSize)
	count := dir.Size / uint64(dirEntryEncodedSize)
	for i := uint64(0); i < count; i++ {
		off := i * uint64(dirEntryEncodedSize)
		n, err := fs.readAt(dir, off, buf)
		if err != nil {
			return err
		}
		if n < len(buf) {
			break
		}
		if DecodeDirEntry(buf).Num == 0 {
			_, err := fs.Write(dir, off, entry.Encode(), dirEntryEncodedSize)
			return err
		}
	}
	_, err := fs.Write(dir, dir.Size, entry.Encode(), dirEntryEncodedSize)
	return err
}

// MknodDevice is Mknod specialized for character/block device nodes: it
// additionally stamps the (major, minor) device number spec.md §6
// associates with the inode (see FileInfo.SetDeviceNumber).
func (fs *Filesystem) MknodDevice(path string, cwd, uid uint32, ftype FileType, access bitfield.InodeAccess, ownerUser, ownerGroup, major, minor uint32) (*FileInfo, error) {
	fi, err := fs.Mknod(path, cwd, uid, ftype, access, ownerUser, ownerGroup)
	if err != nil {
		return nil, err
	}
	fi.SetDeviceNumber(major, minor)
	if err := fs.WriteInode(fi); err != nil {
		return nil, err
	}
	return fi, nil
}

// Creat creates a new regular file at path and returns its inode, ready
// for the caller (internal/vfs) to install a descriptor for it. In the
// original C sources file_creat checks `!mknod(...)` where mknod returns
// an int and file_creat's caller expects the opposite sense on some
// paths (spec.md §9); Go's explicit error return has no equivalent
// ambiguity to preserve, so Creat simply propagates Mknod's error.
func (fs *Filesystem) Creat(path string, cwd, uid uint32, access bitfield.InodeAccess) (*FileInfo, error) {
	return fs.Mknod(path, cwd, uid, FTRegular, access, uid, 0)
}

// Chmod replaces fi's access bits. Only the owner or root may do so.
func (fs *Filesystem) Chmod(fi *FileInfo, uid uint32, access bitfield.InodeAccess) error {
	if uid != 0 && uid != fi.OwnerUser {
		return errPermissionf("Chmod: inode %d", fi.Num)
	}
	fi.Access = access
	return fs.WriteInode(fi)
}

// Chown replaces fi's ownership. Only root may do so, the conventional
// Unix restriction (an owner giving a file away cannot reclaim it).
func (fs *Filesystem) Chown(fi *FileInfo, uid, newUser, newGroup uint32) error {
	if uid != 0 {
		return errPermissionf("Chown: inode %d", fi.Num)
	}
	fi.OwnerUser = newUser
	fi.OwnerGroup = newGroup
	return fs.WriteInode(fi)
}

// FileAccess resolves path and reports (spec.md §4.10 `access` syscall)
// whether uid may perform mode against it.
func (fs *Filesystem) FileAccess(path string, cwd, uid uint32, mode AccessMode) error {
	fi, err := fs.NameToFile(path, cwd, uid)
	if err != nil {
		return err
	}
	if !Access(fi, uid, mode) {
		return errPermissionf("FileAccess: %q", path)
	}
	return nil
}
