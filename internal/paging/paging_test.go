package paging

import (
	"testing"

	"tile/internal/pmm"
)

func newEngine() (*Engine, *pmm.Allocator) {
	frames := pmm.New()
	frames.AddGroup(0, 0x10000000)
	return NewEngine(frames), frames
}

func TestCreateMappingSectionFaithfulness(t *testing.T) {
	e, _ := newEngine()
	pgd := &PGD{}

	if err := e.CreateMapping(pgd, 0x40000000, 0x80000000, SectionSize, RWX); err != nil {
		t.Fatalf("CreateMapping() error = %v", err)
	}

	for _, off := range []uint32{0, 1, 4095, SectionSize - 1} {
		v := uint32(0x40000000) + off
		wantP := uint32(0x80000000) + off
		ok, _ := MappingExists(pgd, v, wantP)
		if !ok {
			t.Errorf("MappingExists(%#x, %#x) = false, want true", v, wantP)
		}
	}
}

func TestCreateMappingPageFaithfulness(t *testing.T) {
	e, _ := newEngine()
	pgd := &PGD{}

	size := uint32(3 * PageSize)
	if err := e.CreateMapping(pgd, 0x1000, 0x500000, size, RW); err != nil {
		t.Fatalf("CreateMapping() error = %v", err)
	}

	for off := uint32(0); off < size; off += 16 {
		v := uint32(0x1000) + off
		wantP := uint32(0x500000) + off
		ok, flags := MappingExists(pgd, v, wantP)
		if !ok {
			t.Fatalf("MappingExists(%#x, %#x) = false, want true", v, wantP)
		}
		if !flags.ExecuteNever {
			t.Errorf("RW mapping should set ExecuteNever at %#x", v)
		}
		if flags.ReadOnly {
			t.Errorf("RW mapping should not be read-only at %#x", v)
		}
	}
}

func TestMappingExistsFalseOutsideMapping(t *testing.T) {
	e, _ := newEngine()
	pgd := &PGD{}
	if err := e.CreateMapping(pgd, 0x1000, 0x2000, PageSize, RWX); err != nil {
		t.Fatal(err)
	}
	if ok, _ := MappingExists(pgd, 0x9000, 0x2000); ok {
		t.Error("expected no mapping at an untouched virtual address")
	}
	if ok, _ := MappingExists(pgd, 0x1000, 0x3000); ok {
		t.Error("expected mismatch when physical address doesn't correspond to the mapped one")
	}
}

func TestFlagEncoding(t *testing.T) {
	e, _ := newEngine()
	pgd := &PGD{}

	cases := []struct {
		flags        Flags
		wantXN, wantRO bool
	}{
		{RWX, false, false},
		{RW, true, false},
		{RO, true, true},
	}
	for i, tc := range cases {
		v := uint32(0x100000 * (i + 1))
		if err := e.CreateMapping(pgd, v, v, PageSize, tc.flags); err != nil {
			t.Fatal(err)
		}
		_, flags := MappingExists(pgd, v, v)
		if flags.ExecuteNever != tc.wantXN || flags.ReadOnly != tc.wantRO {
			t.Errorf("flags for %v = %+v, want XN=%v RO=%v", tc.flags, flags, tc.wantXN, tc.wantRO)
		}
	}
}

func TestCreatePGDCopiesKernelEntriesAndZeroesUser(t *testing.T) {
	e, _ := newEngine()
	kernelPGD := &PGD{}
	if err := e.CreateMapping(kernelPGD, 0x80000000, 0x80000000, SectionSize, RWX); err != nil {
		t.Fatal(err)
	}
	e.SetKernelPGD(kernelPGD)

	userSplit := 0x80000000 >> 20
	proc1, err := e.CreatePGD(userSplit)
	if err != nil {
		t.Fatalf("CreatePGD() error = %v", err)
	}

	if ok, _ := MappingExists(proc1, 0x80000000, 0x80000000); !ok {
		t.Error("process PGD should inherit the kernel mapping")
	}
	if ok, _ := MappingExists(proc1, 0x1000, 0x1000); ok {
		t.Error("process PGD's user range should start unmapped")
	}

	// Mutating the process's own mapping must not perturb the kernel's.
	if err := e.CreateMapping(proc1, 0x1000, 0x9000, PageSize, RW); err != nil {
		t.Fatal(err)
	}
	if ok, _ := MappingExists(kernelPGD, 0x1000, 0x9000); ok {
		t.Error("kernel PGD must not see the process's private mapping")
	}
}

// TestSelfMappingOrdering exercises the "populate then install" invariant:
// a freshly allocated page table whose own backing frame lies inside the
// range being mapped must be fully populated, including the entry for its
// own frame, before CreateMapping returns.
func TestSelfMappingOrdering(t *testing.T) {
	e, frames := newEngine()
	pgd := &PGD{}

	// Reserve the frame the next page-table allocation will receive, so we
	// know in advance what address falls inside our mapped range.
	probe, err := frames.Alloc(0, 1, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := frames.Clear(probe, 1); err != nil {
		t.Fatal(err)
	}

	v := uint32(0x2000)
	size := uint32(2 * PageSize)
	if err := e.CreateMapping(pgd, v, uint32(probe), size, RWX); err != nil {
		t.Fatalf("CreateMapping() error = %v", err)
	}

	tablePhys, ok := e.TablePhysical(pgd, v)
	if !ok {
		t.Fatal("expected the section to now hold a page table")
	}
	if tablePhys != uint32(probe) {
		t.Skip("allocator handed out a different frame than the probe; ordering still holds for whichever frame was used")
	}

	// The table's own frame must resolve through the very mapping it
	// belongs to, proving its entry was populated before install.
	if ok, _ := MappingExists(pgd, v, uint32(probe)); !ok {
		t.Error("self-mapping page table should translate its own first page")
	}
}

func TestCreateMappingRejectsUnaligned(t *testing.T) {
	e, _ := newEngine()
	pgd := &PGD{}
	if err := e.CreateMapping(pgd, 1, 0, PageSize, RWX); err == nil {
		t.Fatal("expected error for unaligned virtual address")
	}
}
