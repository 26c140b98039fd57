// Package paging is the two-level ARMv7 short-descriptor page-table
// engine (spec.md §4.4): a PGD indexed by VA[31:20] holding either 1 MiB
// section entries or pointers to a 4 KiB-page-table indexed by
// VA[19:12]. Grounded on the teacher's mazboot/golang/main/mmu.go (named
// PTE_* constants, level-shift naming) reworked from ARMv8's four levels
// down to spec.md's ARMv7 two levels.
package paging

import (
	"fmt"

	"tile/internal/bitfield"
	"tile/internal/kerr"
	"tile/internal/pmm"
)

const (
	// SectionSize is the span of one PGD entry (1 MiB).
	SectionSize = 1 << 20
	// PageSize is the span of one PTE (4 KiB).
	PageSize = pmm.PageSize

	pgdEntries = 1 << 12 // VA[31:20], 4096 sections cover a 4 GiB space
	pteEntries = 1 << 8  // VA[19:12], 256 pages cover one 1 MiB section
)

// Flags is the caller-facing permission class for a mapping; spec.md
// §4.4 defines RWX/RW/RO in terms of the execute-never and read-only
// bits.
type Flags int

const (
	RWX Flags = iota
	RW
	RO
)

func (f Flags) pte() bitfield.PTEFlags {
	switch f {
	case RWX:
		return bitfield.PTEFlags{}
	case RW:
		return bitfield.PTEFlags{ExecuteNever: true}
	case RO:
		return bitfield.PTEFlags{ExecuteNever: true, ReadOnly: true}
	default:
		return bitfield.PTEFlags{ExecuteNever: true, ReadOnly: true}
	}
}

type pte struct {
	valid    bool
	physical uint32
	flags    bitfield.PTEFlags
}

// Table is a 4 KiB, 256-entry page table referenced by one PGD section
// slot that has been split into pages.
type Table struct {
	phys    uint32
	entries [pteEntries]pte
}

type pmdKind int

const (
	pmdNone pmdKind = iota
	pmdSection
	pmdTable
)

type pmdEntry struct {
	kind         pmdKind
	sectionPhys  uint32
	sectionFlags bitfield.PTEFlags
	table        *Table
}

// PGD is a page global directory: spec.md's top-level translation
// structure, one per process plus one for the kernel.
type PGD struct {
	entries [pgdEntries]pmdEntry
}

// Engine builds and mutates page tables. It owns the frame allocator used
// to back freshly-split page tables.
type Engine struct {
	frames    *pmm.Allocator
	kernel    *PGD
	tablePhys map[*Table]uint32
}

// NewEngine returns an engine that allocates page-table frames from frames.
func NewEngine(frames *pmm.Allocator) *Engine {
	return &Engine{frames: frames, tablePhys: map[*Table]uint32{}}
}

// SetKernelPGD designates pgd as the kernel's own PGD, whose section/table
// entries CreatePGD copies into every subsequent process PGD.
func (e *Engine) SetKernelPGD(pgd *PGD) { e.kernel = pgd }

// CreatePGD allocates a new PGD, zeroes its user-space range, and copies
// the kernel entries from the Engine's kernel PGD so that kernel mappings
// are identical across every process (spec.md §4.4 invariant). userSplit
// is the first PGD index considered user-space; entries at or above it
// are zeroed, entries below it are copied from the kernel PGD.
func (e *Engine) CreatePGD(userSplit int) (*PGD, error) {
	if userSplit < 0 || userSplit > pgdEntries {
		return nil, fmt.Errorf("paging: CreatePGD userSplit %d: %w", userSplit, kerr.ErrInvalid)
	}
	pgd := &PGD{}
	if e.kernel != nil {
		for i := 0; i < userSplit; i++ {
			pgd.entries[i] = e.kernel.entries[i]
		}
	}
	return pgd, nil
}

// CreateMapping maps the size-byte range starting at virtual address v to
// physical address p with the given permission flags. When size is a
// multiple of SectionSize the whole range is mapped with 1 MiB section
// entries; otherwise each page is installed individually through a page
// table, allocating one where none is present yet for that section.
//
// Ordering invariant: when a fresh Table is allocated, its entries are
// populated fully before it is installed into the PGD — "install is the
// last step" — so that a table mapping itself (its own backing frame
// falls inside [v, v+size)) never observes a half-built table through the
// very mapping it is completing.
func (e *Engine) CreateMapping(pgd *PGD, v, p, size uint32, flags Flags) error {
	if v%PageSize != 0 || p%PageSize != 0 || size%PageSize != 0 {
		return fmt.Errorf("paging: CreateMapping unaligned argument: %w", kerr.ErrInvalid)
	}
	if size == 0 {
		return fmt.Errorf("paging: CreateMapping size 0: %w", kerr.ErrInvalid)
	}

	pf := flags.pte()

	if size%SectionSize == 0 {
		for off := uint32(0); off < size; off += SectionSize {
			idx := (v + off) >> 20
			pgd.entries[idx] = pmdEntry{kind: pmdSection, sectionPhys: p + off, sectionFlags: pf}
		}
		return nil
	}

	for off := uint32(0); off < size; off += PageSize {
		if err := e.mapPage(pgd, v+off, p+off, pf); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) mapPage(pgd *PGD, v, p uint32, pf bitfield.PTEFlags) error {
	sectionIdx := v >> 20
	entry := &pgd.entries[sectionIdx]

	if entry.kind == pmdSection {
		return fmt.Errorf("paging: CreateMapping: %#x already holds a section entry: %w", v, kerr.ErrBusy)
	}

	var table *Table
	fresh := false
	if entry.kind == pmdTable {
		table = entry.table
	} else {
		frame, err := e.frames.Alloc(0, 1, 0, 0)
		if err != nil {
			return fmt.Errorf("paging: allocating page table: %w", err)
		}
		table = &Table{phys: uint32(frame)}
		e.tablePhys[table] = uint32(frame)
		fresh = true
	}

	pteIdx := (v >> 12) & (pteEntries - 1)
	table.entries[pteIdx] = pte{valid: true, physical: p, flags: pf}

	// Install only after the entry above is populated — this is the step
	// that matters when the table's own frame lies inside the range being
	// mapped (self-mapping during MMU bring-up).
	if fresh {
		pgd.entries[sectionIdx] = pmdEntry{kind: pmdTable, table: table}
	}
	return nil
}

// MappingExists walks pgd for v and reports whether it currently
// translates to a region containing p, along with the flags in effect.
func MappingExists(pgd *PGD, v, p uint32) (bool, bitfield.PTEFlags) {
	entry := pgd.entries[v>>20]
	switch entry.kind {
	case pmdSection:
		base := v &^ (SectionSize - 1)
		phys := entry.sectionPhys + (v - base)
		return phys == p, entry.sectionFlags
	case pmdTable:
		pteIdx := (v >> 12) & (pteEntries - 1)
		e := entry.table.entries[pteIdx]
		if !e.valid {
			return false, bitfield.PTEFlags{}
		}
		base := v &^ (PageSize - 1)
		phys := e.physical + (v - base)
		return phys == p, e.flags
	default:
		return false, bitfield.PTEFlags{}
	}
}

// TablePhysical returns the physical frame address backing table, for
// tests and for the self-mapping scenario where a caller needs to map a
// table's own storage.
func (e *Engine) TablePhysical(pgd *PGD, v uint32) (uint32, bool) {
	entry := pgd.entries[v>>20]
	if entry.kind != pmdTable {
		return 0, false
	}
	return entry.table.phys, true
}
