// Package pmm is the page-frame allocator (spec.md §4.2): a linked list
// of page_group's, one per contiguous RAM block, each owning per-frame
// state. Grounded on the teacher's page.go (Page/freePages/allocPage/
// freePage), generalized from "one page at a time" to "N contiguous
// aligned frames with an optional leading gap" per spec.md.
package pmm

import (
	"fmt"

	"tile/internal/bitfield"
	"tile/internal/kerr"
)

// PageSize is the frame size in bytes, matching the teacher's PAGE_SIZE.
const PageSize = 4096

// Frame is the per-physical-page state the allocator owns.
type Frame struct {
	Flags uint32
}

func (f Frame) flags() bitfield.PageFlags {
	var pf bitfield.PageFlags
	_ = bitfield.Unpack(uint64(f.Flags), &pf)
	return pf
}

func (f *Frame) setFlags(pf bitfield.PageFlags) {
	packed, _ := bitfield.Pack(pf, nil)
	f.Flags = uint32(packed)
}

// Reserved reports whether the frame is currently allocated.
func (f Frame) Reserved() bool { return f.flags().Reserved }

// Group is one contiguous block of RAM the allocator manages, owning
// (offset, size, frames).
type Group struct {
	Offset uint64
	Size   uint64
	Frames []Frame
	next   *Group
}

func newGroup(offset, size uint64) *Group {
	return &Group{Offset: offset, Size: size, Frames: make([]Frame, size/PageSize)}
}

// Allocator is the linked list of Groups described in spec.md §4.2.
type Allocator struct {
	head *Group
	tail *Group
}

// New returns an allocator with no groups.
func New() *Allocator { return &Allocator{} }

// AddGroup registers a contiguous RAM block of size bytes starting at
// offset. size must be a multiple of PageSize.
func (a *Allocator) AddGroup(offset, size uint64) error {
	if size == 0 || size%PageSize != 0 {
		return fmt.Errorf("pmm: AddGroup size %d: %w", size, kerr.ErrInvalid)
	}
	g := newGroup(offset, size)
	if a.head == nil {
		a.head, a.tail = g, g
		return nil
	}
	a.tail.next = g
	a.tail = g
	return nil
}

// Alloc walks the group list looking for count contiguous frames, aligned
// to align*PageSize, at or above base, such that the gap*PageSize bytes
// immediately before the candidate and the count*PageSize bytes of the
// candidate itself are all unreserved. On success it marks the count
// frames reserved and returns the physical base address. align and gap
// of 0 behave as 1 and 0 respectively.
func (a *Allocator) Alloc(base uint64, count, align, gap uint32) (uint64, error) {
	if count == 0 {
		return 0, fmt.Errorf("pmm: Alloc count 0: %w", kerr.ErrInvalid)
	}
	if align == 0 {
		align = 1
	}
	alignBytes := uint64(align) * PageSize

	for g := a.head; g != nil; g = g.next {
		start := g.Offset
		if base > start {
			start = base
		}
		// Round start up to the alignment boundary.
		if rem := start % alignBytes; rem != 0 {
			start += alignBytes - rem
		}

		for addr := start; addr+uint64(count)*PageSize <= g.End(); addr += alignBytes {
			if addr-g.Offset < uint64(gap)*PageSize {
				continue
			}
			if a.rangeFree(g, addr-uint64(gap)*PageSize, addr+uint64(count)*PageSize) {
				a.reserve(g, addr, count)
				return addr, nil
			}
		}
	}
	return 0, fmt.Errorf("pmm: alloc %d frames: %w", count, kerr.ErrNoSpace)
}

// End returns the first address past the group.
func (g *Group) End() uint64 { return g.Offset + g.Size }

// rangeFree reports whether every frame touching [lo, hi) within g's own
// bounds is unreserved. Gap bytes that would fall before g.Offset are
// treated as unavailable (no adjacent group is consulted), matching the
// single-group scan the teacher's allocPage performs.
func (a *Allocator) rangeFree(g *Group, lo, hi uint64) bool {
	if lo < g.Offset {
		return false
	}
	if hi > g.End() {
		return false
	}
	for addr := lo; addr < hi; addr += PageSize {
		idx := (addr - g.Offset) / PageSize
		if g.Frames[idx].Reserved() {
			return false
		}
	}
	return true
}

func (a *Allocator) reserve(g *Group, addr uint64, count uint32) {
	for i := uint32(0); i < count; i++ {
		idx := (addr-g.Offset)/PageSize + uint64(i)
		flags := g.Frames[idx].flags()
		flags.Reserved = true
		g.Frames[idx].setFlags(flags)
	}
}

// Clear is the inverse of Alloc: it marks count frames starting at addr
// as free again.
func (a *Allocator) Clear(addr uint64, count uint32) error {
	g := a.groupContaining(addr)
	if g == nil {
		return fmt.Errorf("pmm: clear %#x: %w", addr, kerr.ErrNotFound)
	}
	if addr+uint64(count)*PageSize > g.End() {
		return fmt.Errorf("pmm: clear %#x count %d overruns group: %w", addr, count, kerr.ErrInvalid)
	}
	for i := uint32(0); i < count; i++ {
		idx := (addr-g.Offset)/PageSize + uint64(i)
		flags := g.Frames[idx].flags()
		flags.Reserved = false
		g.Frames[idx].setFlags(flags)
	}
	return nil
}

func (a *Allocator) groupContaining(addr uint64) *Group {
	for g := a.head; g != nil; g = g.next {
		if addr >= g.Offset && addr < g.End() {
			return g
		}
	}
	return nil
}

// MarkKernel marks count frames starting at addr as kernel-owned and
// reserved, used during bring-up to describe
// frames the bootstrap allocator already handed to the kernel image.
func (a *Allocator) MarkKernel(addr uint64, count uint32) error {
	g := a.groupContaining(addr)
	if g == nil {
		return fmt.Errorf("pmm: MarkKernel %#x: %w", addr, kerr.ErrNotFound)
	}
	for i := uint32(0); i < count; i++ {
		idx := (addr-g.Offset)/PageSize + uint64(i)
		flags := g.Frames[idx].flags()
		flags.Reserved = true
		flags.Kernel = true
		g.Frames[idx].setFlags(flags)
	}
	return nil
}
