package proc

import (
	"testing"

	"tile/internal/paging"
	"tile/internal/pmm"
)

func newBareProcess(id uint32) *Process {
	return &Process{ID: id, Mem: &MemoryContext{}}
}

// TestSchedulerFairness is spec.md's S4/§8.8 scenario: two equal-priority
// processes, N ticks, each gets roughly N/2 slices.
func TestSchedulerFairness(t *testing.T) {
	s := NewScheduler(nil)
	p1 := newBareProcess(1)
	p2 := newBareProcess(2)
	s.Add(p1)
	s.Add(p2)

	counts := map[uint32]int{}
	const ticks = 100
	for i := 0; i < ticks; i++ {
		s.Tick()
		s.Schedule()
		counts[s.Current().ID]++
	}

	for id, c := range counts {
		if diff := c - ticks/2; diff < -1 || diff > 1 {
			t.Errorf("process %d got %d slices, want close to %d", id, c, ticks/2)
		}
	}
}

func TestScheduleNoopWithoutReschedule(t *testing.T) {
	s := NewScheduler(nil)
	p1 := newBareProcess(1)
	p2 := newBareProcess(2)
	s.Add(p1)
	s.Add(p2)

	s.Schedule()
	if s.Current().ID != p1.ID {
		t.Errorf("Current() = %d, want %d (no reschedule requested)", s.Current().ID, p1.ID)
	}
}

func TestScheduleSkipsBlockedProcess(t *testing.T) {
	s := NewScheduler(nil)
	p1 := newBareProcess(1)
	p2 := newBareProcess(2)
	p3 := newBareProcess(3)
	s.Add(p1)
	s.Add(p2)
	s.Add(p3)
	p2.State = Blocked

	s.Tick()
	s.Schedule()
	if s.Current().ID != p3.ID {
		t.Errorf("Current() = %d, want %d (p2 is blocked)", s.Current().ID, p3.ID)
	}
}

func TestPGDInstalledOnContextChange(t *testing.T) {
	frames := pmm.New()
	if err := frames.AddGroup(0, 64*pmm.PageSize); err != nil {
		t.Fatal(err)
	}
	engine := paging.NewEngine(frames)

	var installed []*paging.PGD
	s := NewScheduler(func(pgd interface{}) { installed = append(installed, pgd.(*paging.PGD)) })

	p1, err := New(1, 0, engine, 0)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := New(2, 0, engine, 0)
	if err != nil {
		t.Fatal(err)
	}
	s.Add(p1)
	s.Add(p2)
	s.Tick()
	s.Schedule()

	if len(installed) != 1 || installed[0] != p2.Mem.PGD {
		t.Errorf("installed = %v, want exactly [p2's PGD]", installed)
	}
}
