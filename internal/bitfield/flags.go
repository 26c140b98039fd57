package bitfield

// PageFlags describes the state of one physical page tracked by the
// frame allocator (internal/pmm). Packed into the low bits of Page.Flags.
type PageFlags struct {
	Reserved bool `bitfield:",1"` // frame is allocated/reserved
	Kernel   bool `bitfield:",1"` // frame belongs to kernel-owned memory
	Gap      bool `bitfield:",1"` // frame is a leading gap held for small-object metadata
}

// InodeAccess packs the nine permission bits of an on-disk inode
// (owner/group/others x read/write/execute), matching the exact bit
// layout original_source/tile/kernel/file.c uses so mkfs-built images and
// kernel-side checks agree bit-for-bit.
type InodeAccess struct {
	OwnerRead  bool `bitfield:",1"`
	OwnerWrite bool `bitfield:",1"`
	OwnerExec  bool `bitfield:",1"`
	GroupRead  bool `bitfield:",1"`
	GroupWrite bool `bitfield:",1"`
	GroupExec  bool `bitfield:",1"`
	OtherRead  bool `bitfield:",1"`
	OtherWrite bool `bitfield:",1"`
	OtherExec  bool `bitfield:",1"`
}

// PTEFlags describes the access-control bits carried by a page-table
// entry (internal/paging), bits 9-11 per spec.md §4.4.
type PTEFlags struct {
	ExecuteNever bool `bitfield:",1"`
	ReadOnly     bool `bitfield:",1"`
	UserAccess   bool `bitfield:",1"`
}
