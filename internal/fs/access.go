package fs

// AccessMode is the bitmask passed to Access, mirroring the R_OK/W_OK/
// X_OK constants original_source/tile/kernel/file.c's file_access checks
// against an inode's owner/group/others permission triples.
type AccessMode uint32

const (
	ROK AccessMode = 1 << iota
	WOK
	XOK
)

// OpenFlags is the bitfield passed to Open, spec.md §6.
type OpenFlags uint32

const (
	ORdOnly OpenFlags = 0
	OWrOnly OpenFlags = 1
	ORdWr   OpenFlags = 2
	OCreat  OpenFlags = 1 << 4
)

// readWriteMode converts an OpenFlags value into the AccessMode required
// to honor it, the conversion spec.md §4.6 describes Open as performing
// before consulting the inode's access bits.
func (f OpenFlags) readWriteMode() AccessMode {
	switch {
	case f&ORdWr != 0:
		return ROK | WOK
	case f&OWrOnly != 0:
		return WOK
	default:
		return ROK
	}
}

// Access reports whether uid may perform mode against fi. Root (uid 0)
// bypasses every check (spec.md §8.6: "a user u != 0 may write to file f
// iff (u == owner.user && access&WRITE_OWNER) or access&WRITE_OTHERS").
// The inode's group triple is encoded and preserved bit-for-bit for
// mkfs-compatibility but the process record (spec.md §3) carries only an
// effective user id, no group id, so the group branch is unreachable from
// any in-scope caller and non-owners always fall through to the others
// triple, matching the testable property exactly.
func Access(fi *FileInfo, uid uint32, mode AccessMode) bool {
	if uid == 0 {
		return true
	}
	var granted AccessMode
	switch {
	case uid == fi.OwnerUser:
		if fi.Access.OwnerRead {
			granted |= ROK
		}
		if fi.Access.OwnerWrite {
			granted |= WOK
		}
		if fi.Access.OwnerExec {
			granted |= XOK
		}
	default:
		if fi.Access.OtherRead {
			granted |= ROK
		}
		if fi.Access.OtherWrite {
			granted |= WOK
		}
		if fi.Access.OtherExec {
			granted |= XOK
		}
	}
	return granted&mode == mode
}
