// Package trap is the vectored exception dispatch table (spec.md §4.9,
// §4.10): the data-abort demand-paging path and the numbered syscall
// table an SVC trap indexes by r7. Grounded on the teacher's
// exceptions.go vector-handler naming; the GIC/PL011 register contract
// is modeled as an interface (internal/gic) rather than real registers,
// per spec.md §1's out-of-scope note.
package trap

import (
	"fmt"

	"tile/internal/bitfield"
	"tile/internal/fs"
	"tile/internal/kerr"
	"tile/internal/paging"
	"tile/internal/pmm"
	"tile/internal/proc"
	"tile/internal/vfs"
)

// Vector identifies which of the ARM exception entries fired (spec.md
// §4.9: "Interrupt dispatch: reset, undef, SVC, prefetch/data abort, IRQ,
// FIQ").
type Vector int

const (
	Reset Vector = iota
	Undefined
	SupervisorCall
	PrefetchAbort
	DataAbort
	IRQ
	FIQ
)

// SyscallNumber is the value the SVC ABI places in r7 (spec.md §4.10).
type SyscallNumber int

const (
	SysAccess SyscallNumber = iota
	SysChmod
	SysChown
	SysOpen
	SysRead
	SysWrite
	SysClose
	SysMknod
	SysCreat
	SysSeek
	SysChdir
	maxSyscallNumber
)

// Args is the register file visible to a syscall handler: r0..r6 as the
// ABI's arguments, decoded by each handler according to its own shape
// (spec.md §6 "Syscall ABI"). The kernel never interprets more of a
// register than the target syscall needs.
type Args struct {
	R0, R1, R2, R3, R4, R5, R6 uint32
	Path                       string
	Buf                        []byte
}

// Result is a syscall's r0 value: non-negative on success, -1 on failure
// (spec.md §4.10). No errno — callers learn nothing beyond "it failed"
// (spec.md §7).
type Result int32

const syscallFailure Result = -1

// Handler is one syscall table entry.
type Handler func(d *vfs.Dispatcher, p *proc.Process, a Args) Result

// Table is the fixed, r7-indexed syscall table (spec.md §4.10).
type Table struct {
	handlers [maxSyscallNumber]Handler
}

// NewTable builds the syscall table wired to d.
func NewTable(d *vfs.Dispatcher) *Table {
	t := &Table{}
	t.handlers[SysAccess] = sysAccess
	t.handlers[SysChmod] = sysChmod
	t.handlers[SysChown] = sysChown
	t.handlers[SysOpen] = sysOpen
	t.handlers[SysRead] = sysRead
	t.handlers[SysWrite] = sysWrite
	t.handlers[SysClose] = sysClose
	t.handlers[SysMknod] = sysMknod
	t.handlers[SysCreat] = sysCreat
	t.handlers[SysSeek] = sysSeek
	t.handlers[SysChdir] = sysChdir
	return t
}

// Dispatch is the SVC entry: an out-of-range number returns -1 (spec.md
// §4.10 "Out-of-range numbers return -1"), otherwise the numbered
// handler runs against the dispatcher bound at table-construction time.
func (t *Table) Dispatch(d *vfs.Dispatcher, p *proc.Process, num SyscallNumber, a Args) Result {
	if num < 0 || num >= maxSyscallNumber || t.handlers[num] == nil {
		return syscallFailure
	}
	return t.handlers[num](d, p, a)
}

func fail(error) Result { return syscallFailure }

func sysAccess(d *vfs.Dispatcher, p *proc.Process, a Args) Result {
	if err := d.FS.FileAccess(a.Path, p.Cwd, p.Uid, fs.AccessMode(a.R1)); err != nil {
		return fail(err)
	}
	return 0
}

func sysChmod(d *vfs.Dispatcher, p *proc.Process, a Args) Result {
	fi, err := d.FS.NameToFile(a.Path, p.Cwd, p.Uid)
	if err != nil {
		return fail(err)
	}
	if err := d.FS.Chmod(fi, p.Uid, decodeAccess(a.R1)); err != nil {
		return fail(err)
	}
	return 0
}

func sysChown(d *vfs.Dispatcher, p *proc.Process, a Args) Result {
	fi, err := d.FS.NameToFile(a.Path, p.Cwd, p.Uid)
	if err != nil {
		return fail(err)
	}
	if err := d.FS.Chown(fi, p.Uid, a.R1, a.R2); err != nil {
		return fail(err)
	}
	return 0
}

func sysOpen(d *vfs.Dispatcher, p *proc.Process, a Args) Result {
	fd, err := d.Open(p, a.Path, fs.OpenFlags(a.R1))
	if err != nil {
		return fail(err)
	}
	return Result(fd)
}

func sysRead(d *vfs.Dispatcher, p *proc.Process, a Args) Result {
	n, err := d.Read(p, int(a.R0), a.Buf)
	if err != nil {
		return fail(err)
	}
	return Result(n)
}

func sysWrite(d *vfs.Dispatcher, p *proc.Process, a Args) Result {
	n, err := d.Write(p, int(a.R0), a.Buf)
	if err != nil {
		return fail(err)
	}
	return Result(n)
}

func sysClose(d *vfs.Dispatcher, p *proc.Process, a Args) Result {
	if err := d.Close(p, int(a.R0)); err != nil {
		return fail(err)
	}
	return 0
}

func sysMknod(d *vfs.Dispatcher, p *proc.Process, a Args) Result {
	if _, err := d.FS.Mknod(a.Path, p.Cwd, p.Uid, fs.FileType(a.R1), decodeAccess(a.R2), p.Uid, 0); err != nil {
		return fail(err)
	}
	return 0
}

// decodeAccess unpacks the nine permission bits the ABI passes as a raw
// register value into the InodeAccess struct fs's inode operations take
// (spec.md §6 "Access-bit layout in inodes").
func decodeAccess(raw uint32) bitfield.InodeAccess {
	var access bitfield.InodeAccess
	_ = bitfield.Unpack(uint64(raw), &access)
	return access
}

func sysCreat(d *vfs.Dispatcher, p *proc.Process, a Args) Result {
	fd, err := d.Creat(p, a.Path, decodeAccess(a.R1))
	if err != nil {
		return fail(err)
	}
	return Result(fd)
}

func sysSeek(d *vfs.Dispatcher, p *proc.Process, a Args) Result {
	off, err := d.Seek(p, int(a.R0), uint64(a.R1))
	if err != nil {
		return fail(err)
	}
	return Result(off)
}

func sysChdir(d *vfs.Dispatcher, p *proc.Process, a Args) Result {
	if err := d.Chdir(p, a.Path); err != nil {
		return fail(err)
	}
	return 0
}

// DataAbortHandler resolves a faulting virtual address against the
// current process's memory context and installs a fresh frame for it
// (spec.md §4.9 "Data-abort handler"): anonymous (non-inode-backed)
// regions get a newly allocated, zeroed frame mapped with the region's
// own flags. File-backed regions are a hook the current core leaves
// unimplemented (spec.md §4.9 parenthetical) — Handle maps a
// zero frame for them too rather than reading file content in, and the
// TODO documents exactly what is missing.
type DataAbortHandler struct {
	Frames *pmm.Allocator
	Engine *paging.Engine
}

// NewDataAbortHandler wires a handler to the frame allocator and paging
// engine every process's memory context shares.
func NewDataAbortHandler(frames *pmm.Allocator, engine *paging.Engine) *DataAbortHandler {
	return &DataAbortHandler{Frames: frames, Engine: engine}
}

// Handle is the data-abort entry point: faultAddr is the value the data
// fault address register holds on entry (spec.md §4.9).
//
// TODO(demand-paging): file-backed regions should read region.Inode's
// contents at region.FileOff+pageOffset into the newly mapped frame
// instead of leaving it zeroed; spec.md §4.9 calls this an extension
// point the current core does not implement.
func (h *DataAbortHandler) Handle(p *proc.Process, faultAddr uint32) error {
	region := p.Mem.FindRegion(faultAddr)
	if region == nil {
		// spec.md §9: "undefined in the present sources". A Go kernel
		// simulation cannot leave this undefined, so we report it as an
		// ordinary invalid-argument failure (see DESIGN.md).
		return fmt.Errorf("trap: data abort at %#x: %w", faultAddr, kerr.ErrInvalid)
	}

	pageBase := faultAddr &^ (paging.PageSize - 1)
	frame, err := h.Frames.Alloc(0, 1, 0, 0)
	if err != nil {
		return fmt.Errorf("trap: data abort at %#x: %w", faultAddr, err)
	}
	if err := h.Engine.CreateMapping(p.Mem.PGD, pageBase, uint32(frame), paging.PageSize, region.Flags); err != nil {
		return fmt.Errorf("trap: data abort at %#x: %w", faultAddr, err)
	}
	return nil
}
