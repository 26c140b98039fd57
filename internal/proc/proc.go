// Package proc is the process record, memory context, and round-robin
// scheduler (spec.md §4.9): per-process kernel stack, saved context,
// PGD-backed address space, page-region list, and a fixed-size
// descriptor table whose first three slots are reserved for console
// stdin/stdout/stderr. Grounded on the teacher's list-based freePages
// style, generalized from a page-frame list to a ready-process list, and
// on spec.md §9's design note to model relations as explicit slices
// rather than container-of pointer arithmetic.
package proc

import (
	"fmt"

	"tile/internal/fs"
	"tile/internal/kerr"
	"tile/internal/paging"
)

// ThreadSize is the size, in bytes, of one process's kernel stack.
const ThreadSize = 2 * 4096

// MaxDescriptors bounds a process's file-descriptor table; indices 0-2
// are reserved (spec.md §3).
const MaxDescriptors = 16

// State is where a process sits in its lifecycle (spec.md §3).
type State int

const (
	Created State = iota
	Ready
	Running
	Blocked
	Terminated
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Context is the saved machine state a context switch preserves: callee-
// saved registers plus stack pointer and return PC (spec.md's GLOSSARY
// "Context switch" entry). Real register assignment is the assembly
// entry/exit contract spec.md §1 puts out of scope; this struct is the Go
// side's stand-in for what that assembly saves and restores.
type Context struct {
	Callee [8]uint32
	SP     uint32
	PC     uint32
}

// Region is one mapped virtual-address range in a process's address
// space (spec.md §3 "Page region"): a base, a page count, the access
// flags paging.Engine installed it with, and an optional backing inode
// for file-backed demand paging.
type Region struct {
	VA      uint32
	Pages   uint32
	Flags   paging.Flags
	Inode   *fs.FileInfo
	FileOff uint64
}

func (r *Region) contains(addr uint32) bool {
	size := r.Pages * paging.PageSize
	return addr >= r.VA && addr < r.VA+size
}

// MemoryContext is a process's address space: its PGD physical base and
// the list of regions mapped into it.
type MemoryContext struct {
	PGD     *paging.PGD
	Regions []*Region
}

// AddRegion records a new mapped region.
func (m *MemoryContext) AddRegion(r *Region) { m.Regions = append(m.Regions, r) }

// FindRegion returns the region containing addr, or nil.
func (m *MemoryContext) FindRegion(addr uint32) *Region {
	for _, r := range m.Regions {
		if r.contains(addr) {
			return r
		}
	}
	return nil
}

// Descriptor is one entry of a process's file-descriptor table (spec.md
// §3): access flags, the current offset, and the open file.
type Descriptor struct {
	Flags  fs.OpenFlags
	Offset uint64
	Inode  *fs.FileInfo
}

// Process is the per-process record spec.md §3 describes.
type Process struct {
	ID    uint32
	State State
	Uid   uint32
	Cwd   uint32

	Descriptors [MaxDescriptors]*Descriptor

	Context Context
	Stack   []byte
	Mem     *MemoryContext

	Reschedule bool
	Preempt    bool

	next *Process
}

// LowestFreeDescriptor returns the lowest free descriptor index at or
// above 3 (spec.md §4.7: "indices 0,1,2 are reserved").
func (p *Process) LowestFreeDescriptor() (int, error) {
	for i := 3; i < MaxDescriptors; i++ {
		if p.Descriptors[i] == nil {
			return i, nil
		}
	}
	return 0, fmt.Errorf("proc: process %d: %w", p.ID, kerr.ErrNoSpace)
}

// New allocates a process record: a kernel stack, a PGD with the kernel
// half copied in, and an empty region/descriptor table (spec.md §4.9
// "Create"). userSplit is forwarded to paging.Engine.CreatePGD.
func New(id uint32, uid uint32, engine *paging.Engine, userSplit int) (*Process, error) {
	pgd, err := engine.CreatePGD(userSplit)
	if err != nil {
		return nil, fmt.Errorf("proc: New %d: %w", id, err)
	}
	return &Process{
		ID:    id,
		State: Created,
		Uid:   uid,
		Stack: make([]byte, ThreadSize),
		Mem:   &MemoryContext{PGD: pgd},
	}, nil
}
