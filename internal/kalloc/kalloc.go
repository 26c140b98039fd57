// Package kalloc is the small-object allocator layered over internal/pmm
// (spec.md §4.3). The teacher's heap.go threads a doubly-linked chain of
// heapSegment headers directly through kernel memory (the header for an
// allocation lives in the bytes immediately before the pointer it
// returns). We keep that shape — a per-page chain of segments ordered by
// offset, split on over-allocation, coalesced on free, a whole-page
// escape hatch for big requests — but represent the chain as a Go slice
// of segment records addressed by (page, offset) instead of raw pointer
// arithmetic, per the design note on avoiding container-of tricks across
// a rewrite.
package kalloc

import (
	"fmt"

	"tile/internal/kerr"
	"tile/internal/pmm"
)

// headerSize is the per-allocation bookkeeping overhead kalloc reserves
// alongside the segment itself, standing in for heap.go's sizeof(heapSegment).
const headerSize = 24

// capacity is how many payload bytes a single backing page can hold once
// its sentinel header is accounted for.
const capacity = pmm.PageSize - headerSize

// Ptr is an opaque handle to an allocation: which page it lives on and
// its byte offset within that page's payload area.
type Ptr struct {
	page   int
	offset uint32
}

type segment struct {
	begin     uint32
	size      uint32
	allocated bool
}

type page struct {
	frame    uint64
	segments []segment
}

// Allocator is the small-object heap described in spec.md §4.3.
type Allocator struct {
	frames *pmm.Allocator
	pages  []*page
}

// New returns an allocator that pulls backing pages from frames.
func New(frames *pmm.Allocator) *Allocator {
	return &Allocator{frames: frames}
}

// Alloc returns a handle to size bytes of zeroed-on-demand memory. When
// size exceeds what a single page can hold (PageSize - headerSize) the
// request is delegated to whole-page allocation instead of the segment
// chain. Alignment is size when size is a power of two, else 1.
func (a *Allocator) Alloc(size uint32) (Ptr, error) {
	if size == 0 {
		return Ptr{}, fmt.Errorf("kalloc: Alloc size 0: %w", kerr.ErrInvalid)
	}
	if size > capacity {
		return a.allocWholePages(size)
	}

	align := alignmentFor(size)
	for pi, p := range a.pages {
		if p == nil {
			continue
		}
		if off, ok := firstFit(p, size, align); ok {
			return Ptr{page: pi, offset: off}, nil
		}
	}

	// No existing page has room: extend the chain with a fresh page.
	pi, err := a.newPage()
	if err != nil {
		return Ptr{}, err
	}
	off, ok := firstFit(a.pages[pi], size, align)
	if !ok {
		return Ptr{}, fmt.Errorf("kalloc: freshly allocated page has no room for %d bytes: %w", size, kerr.ErrNoSpace)
	}
	return Ptr{page: pi, offset: off}, nil
}

func alignmentFor(size uint32) uint32 {
	if size != 0 && size&(size-1) == 0 {
		return size
	}
	return 1
}

// firstFit finds the first free segment in p that can hold size bytes at
// an address aligned to align, splitting off the remainder when there's
// enough slack to justify a new header. It reports the allocation's data
// offset within the page.
func firstFit(p *page, size, align uint32) (uint32, bool) {
	for i, seg := range p.segments {
		if seg.allocated {
			continue
		}
		if align > 1 && seg.begin%align != 0 {
			continue
		}
		if seg.size < size {
			continue
		}

		remainder := seg.size - size
		if remainder > headerSize {
			p.segments[i] = segment{begin: seg.begin, size: size, allocated: true}
			newSeg := segment{begin: seg.begin + size + headerSize, size: remainder - headerSize, allocated: false}
			p.segments = insertAfter(p.segments, i, newSeg)
		} else {
			p.segments[i].allocated = true
		}
		return seg.begin, true
	}
	return 0, false
}

func insertAfter(segs []segment, i int, s segment) []segment {
	segs = append(segs, segment{})
	copy(segs[i+2:], segs[i+1:])
	segs[i+1] = s
	return segs
}

func (a *Allocator) newPage() (int, error) {
	frame, err := a.frames.Alloc(0, 1, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("kalloc: extending page chain: %w", err)
	}
	p := &page{frame: frame, segments: []segment{{begin: 0, size: capacity, allocated: false}}}
	for i, old := range a.pages {
		if old == nil {
			a.pages[i] = p
			return i, nil
		}
	}
	a.pages = append(a.pages, p)
	return len(a.pages) - 1, nil
}

// allocWholePages delegates a request too large for the segment chain
// directly to the frame allocator; whole-page allocations are tracked as
// a single fully-allocated page with no splittable segment.
func (a *Allocator) allocWholePages(size uint32) (Ptr, error) {
	count := (size + pmm.PageSize - 1) / pmm.PageSize
	frame, err := a.frames.Alloc(0, count, 0, 0)
	if err != nil {
		return Ptr{}, fmt.Errorf("kalloc: whole-page alloc of %d bytes: %w", size, err)
	}
	p := &page{frame: frame, segments: []segment{{begin: 0, size: count * pmm.PageSize, allocated: true}}}
	a.pages = append(a.pages, p)
	return Ptr{page: len(a.pages) - 1, offset: 0}, nil
}

// Free releases an allocation returned by Alloc, coalescing it with
// free neighbors in the same page's chain and releasing the backing
// page(s) back to the frame allocator once nothing on the page remains
// allocated.
func (a *Allocator) Free(p Ptr) error {
	if p.page < 0 || p.page >= len(a.pages) {
		return fmt.Errorf("kalloc: Free: %w", kerr.ErrInvalid)
	}
	pg := a.pages[p.page]

	idx := -1
	for i, seg := range pg.segments {
		if seg.begin == p.offset {
			idx = i
			break
		}
	}
	if idx == -1 || !pg.segments[idx].allocated {
		return fmt.Errorf("kalloc: Free: unknown allocation: %w", kerr.ErrInvalid)
	}
	pg.segments[idx].allocated = false

	pg.segments = coalesce(pg.segments)

	if len(pg.segments) == 1 && !pg.segments[0].allocated {
		count := uint32((pg.segments[0].size + pmm.PageSize - 1) / pmm.PageSize)
		if count == 0 {
			count = 1
		}
		if err := a.frames.Clear(pg.frame, count); err != nil {
			return fmt.Errorf("kalloc: releasing empty page: %w", err)
		}
		a.pages[p.page] = nil
	}
	return nil
}

// coalesce merges adjacent free segments in declaration order, the way
// heap.go's kfree walks prev/next to merge a freed heapSegment with its
// neighbors.
func coalesce(segs []segment) []segment {
	out := make([]segment, 0, len(segs))
	for _, s := range segs {
		if len(out) > 0 && !out[len(out)-1].allocated && !s.allocated {
			last := out[len(out)-1]
			out[len(out)-1] = segment{begin: last.begin, size: last.size + headerSize + s.size, allocated: false}
			continue
		}
		out = append(out, s)
	}
	return out
}

// LiveBytes returns the sum of bytes currently allocated across every
// page this allocator owns, used by tests to check the allocator
// round-trip invariant (spec.md §8.1).
func (a *Allocator) LiveBytes() uint32 {
	var total uint32
	for _, p := range a.pages {
		if p == nil {
			continue
		}
		for _, seg := range p.segments {
			if seg.allocated {
				total += seg.size
			}
		}
	}
	return total
}
