package fs

import "tile/internal/bitfield"

// Open resolves path (creating it as a regular file first when flags
// carries OCreat and nothing exists there yet) and checks the caller's
// access against the inode, converting flags to the read/write mask the
// access check must satisfy (spec.md §4.6 "Open"). Descriptor-slot
// allocation is internal/vfs's responsibility, not this package's: fs
// only ever deals in resolved inodes.
func (fs *Filesystem) Open(path string, cwd, uid uint32, flags OpenFlags) (*FileInfo, error) {
	fi, err := fs.NameToFile(path, cwd, uid)
	if err != nil {
		if flags&OCreat == 0 {
			return nil, err
		}
		fi, err = fs.Creat(path, cwd, uid, defaultCreateAccess)
		if err != nil {
			return nil, err
		}
		return fi, nil
	}
	if !Access(fi, uid, flags.readWriteMode()) {
		return nil, errPermissionf("Open: %q", path)
	}
	return fi, nil
}

// defaultCreateAccess is the permission mode a bare O_CREAT open (with no
// explicit mode argument, since spec.md's syscall ABI passes none) grants:
// owner read/write, group and other read-only.
var defaultCreateAccess = bitfield.InodeAccess{
	OwnerRead: true, OwnerWrite: true,
	GroupRead: true,
	OtherRead: true,
}
