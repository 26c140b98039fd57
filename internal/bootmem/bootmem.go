// Package bootmem implements the bootstrap memory manager (spec.md
// §4.1): physical memory described as two sorted, non-overlapping
// interval lists, "memory" (all RAM known to exist) and "reserved"
// (already spoken for). It serves allocations before the real
// page-frame allocator (internal/pmm) exists, mirroring the teacher's
// page.go ATAG-driven bring-up in spirit, generalized to the spec's
// interval-list model.
package bootmem

import (
	"fmt"
	"sort"

	"tile/internal/kerr"
)

// Interval is a half-open physical range [Begin, Begin+Size).
type Interval struct {
	Begin uint64
	Size  uint64
	Flags uint32
}

// End returns the first address past the interval.
func (iv Interval) End() uint64 { return iv.Begin + iv.Size }

// Map holds the two interval lists tracked during early boot.
type Map struct {
	Memory   []Interval
	Reserved []Interval

	// lastBatchInterval mirrors the stale-read artifact described on
	// AddIntervals: only the final interval of the last batch call is
	// remembered here.
	lastBatchInterval Interval
}

// LastBatchInterval returns the interval AddIntervals last touched in its
// post-loop step (see AddIntervals doc comment for why this is only the
// final interval of the batch, not all of them).
func (m *Map) LastBatchInterval() Interval { return m.lastBatchInterval }

// New returns an empty bring-up memory map.
func New() *Map {
	return &Map{}
}

// AddMemory records a RAM region reported by the boot loader.
func (m *Map) AddMemory(begin, size uint64) {
	m.Memory = addInterval(m.Memory, Interval{Begin: begin, Size: size})
}

// AddReserved marks a range of RAM as already in use (kernel image,
// ATAGs, the initial page-metadata array, ...).
func (m *Map) AddReserved(begin, size uint64) {
	m.Reserved = addInterval(m.Reserved, Interval{Begin: begin, Size: size})
}

// addInterval inserts iv into list keeping it sorted by Begin, merging
// with any overlapping or adjacent neighbor.
func addInterval(list []Interval, iv Interval) []Interval {
	if iv.Size == 0 {
		return list
	}
	idx := sort.Search(len(list), func(i int) bool { return list[i].Begin >= iv.Begin })
	list = append(list, Interval{})
	copy(list[idx+1:], list[idx:])
	list[idx] = iv
	return mergeAdjacent(list, idx)
}

// mergeAdjacent folds the interval at seed into its neighbors while they
// overlap or touch, and returns the resulting (still sorted) list.
func mergeAdjacent(list []Interval, seed int) []Interval {
	// Merge left.
	i := seed
	for i > 0 && list[i-1].End() >= list[i].Begin {
		merged := mergeTwo(list[i-1], list[i])
		list = append(list[:i-1], append([]Interval{merged}, list[i+1:]...)...)
		i--
	}
	// Merge right.
	for i+1 < len(list) && list[i].End() >= list[i+1].Begin {
		merged := mergeTwo(list[i], list[i+1])
		list = append(list[:i], append([]Interval{merged}, list[i+2:]...)...)
	}
	return list
}

func mergeTwo(a, b Interval) Interval {
	begin := a.Begin
	end := a.End()
	if b.End() > end {
		end = b.End()
	}
	return Interval{Begin: begin, Size: end - begin, Flags: a.Flags | b.Flags}
}

// AddIntervals adds a batch of reserved ranges in one pass. This
// reproduces original_source/tile/kernel/memory.c's update_memory_map,
// which reads its loop variable `b` once after the loop that is supposed
// to set it on every iteration. Every interval of the batch is inserted
// and merged into Reserved, but the post-loop record (LastBatchInterval)
// holds only the final interval of the batch. We preserve that
// consequence here rather than silently generalizing it, because
// mkfs-produced layouts assume the bootstrap allocator's view of "the
// interval touched by the last update" — see DESIGN.md Open Questions.
// AddReserved, which adds a single interval, does not touch that record.
func (m *Map) AddIntervals(ivs []Interval) {
	var last Interval
	for _, iv := range ivs {
		m.Reserved = addInterval(m.Reserved, iv)
		last = iv
	}
	// The original's post-loop step operates only on `last`, the final
	// interval of the batch, regardless of how many were added.
	m.lastBatchInterval = last
}

// SplitInterval splits the entry of list containing addr into
// [begin, addr) and [addr, end) when addr is strictly interior to it,
// and returns the index of the left half. It returns ok=false (no split
// performed) when addr falls on a boundary or outside every interval.
func SplitInterval(list []Interval, addr uint64) (out []Interval, index int, ok bool) {
	for i, iv := range list {
		if addr > iv.Begin && addr < iv.End() {
			left := Interval{Begin: iv.Begin, Size: addr - iv.Begin, Flags: iv.Flags}
			right := Interval{Begin: addr, Size: iv.End() - addr, Flags: iv.Flags}
			out = append(append(append([]Interval{}, list[:i]...), left, right), list[i+1:]...)
			return out, i, true
		}
	}
	return list, -1, false
}

// Alloc scans Memory low to high and, for each candidate region, finds
// the first gap in Reserved of at least size below limit. On success the
// allocation is recorded in Reserved as its own entry (kept in sort order,
// not merged with its neighbours, so Free can find it by its base) and
// its physical base is returned. limit == 0 means no limit.
func (m *Map) Alloc(size, limit uint64) (uint64, error) {
	if size == 0 {
		return 0, fmt.Errorf("bootmem: %w: zero-size allocation", kerr.ErrInvalid)
	}
	for _, region := range m.Memory {
		base, ok := firstGap(m.Reserved, region.Begin, region.End(), size, limit)
		if !ok {
			continue
		}
		idx := sort.Search(len(m.Reserved), func(i int) bool { return m.Reserved[i].Begin >= base })
		m.Reserved = append(m.Reserved, Interval{})
		copy(m.Reserved[idx+1:], m.Reserved[idx:])
		m.Reserved[idx] = Interval{Begin: base, Size: size}
		return base, nil
	}
	return 0, fmt.Errorf("bootmem: alloc %d bytes: %w", size, kerr.ErrNoSpace)
}

// firstGap finds the lowest address in [lo, hi) that is at least size
// bytes away from the next reserved interval and does not overlap any
// reserved interval, honoring limit (an exclusive upper bound) if nonzero.
func firstGap(reserved []Interval, lo, hi, size, limit uint64) (uint64, bool) {
	cursor := lo
	for _, iv := range reserved {
		if iv.End() <= cursor {
			continue
		}
		if iv.Begin >= hi {
			break
		}
		if iv.Begin > cursor && iv.Begin-cursor >= size {
			if limit == 0 || cursor+size <= limit {
				return cursor, true
			}
		}
		if iv.End() > cursor {
			cursor = iv.End()
		}
	}
	if hi-cursor >= size && (limit == 0 || cursor+size <= limit) {
		return cursor, true
	}
	return 0, false
}

// Free removes the Reserved entry whose Begin equals ptr.
func (m *Map) Free(ptr uint64) error {
	for i, iv := range m.Reserved {
		if iv.Begin == ptr {
			m.Reserved = append(m.Reserved[:i], m.Reserved[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("bootmem: free %#x: %w", ptr, kerr.ErrNotFound)
}
