package proc

// Scheduler is the round-robin scheduler of spec.md §4.9/§4.10: a ready
// list, a tick-driven reschedule flag, and schedule() itself. Preemption
// is IRQ-driven only (spec.md §5): Tick sets the flag from the timer
// handler, Schedule does the actual switch, normally called from the IRQ
// return path.
type Scheduler struct {
	ready   []*Process
	pos     int
	current *Process
	engine  pgdInstaller
}

// pgdInstaller is the hook the scheduler calls to install a process's
// PGD as the active translation table on a context switch; NewScheduler
// wraps the function it is given in one. Kept as an interface so tests
// can swap in a recorder.
type pgdInstaller interface {
	InstallPGD(pgd interface{})
}

// NewScheduler returns an empty scheduler. install is called with each
// incoming process's PGD whenever the scheduler switches into a process
// with a different memory context than the one it switched out of; pass
// nil to skip PGD installation (e.g. in tests that don't model paging).
func NewScheduler(install func(pgd interface{})) *Scheduler {
	s := &Scheduler{}
	if install != nil {
		s.engine = installerFunc(install)
	}
	return s
}

type installerFunc func(pgd interface{})

func (f installerFunc) InstallPGD(pgd interface{}) { f(pgd) }

// Add appends p to the ready list and marks it Ready. If this is the
// first process added, it becomes Running immediately (spec.md's
// sentinel-head ready list reduces, for a single-process case, to "there
// is nothing else to schedule").
func (s *Scheduler) Add(p *Process) {
	p.State = Ready
	s.ready = append(s.ready, p)
	if s.current == nil {
		s.current = p
		p.State = Running
	}
}

// Current returns the running process, or nil if none.
func (s *Scheduler) Current() *Process { return s.current }

// Tick is the timer IRQ's entire scheduler-visible effect (spec.md
// §4.9): it sets the running process's Reschedule flag. The actual
// switch happens later, in Schedule, from the IRQ return path.
func (s *Scheduler) Tick() {
	if s.current != nil {
		s.current.Reschedule = true
	}
}

// Schedule performs the switch Tick requested, if any. It walks the
// ready list round-robin, skipping Blocked and Terminated processes,
// installs the incoming process's PGD when its memory context differs
// from the outgoing one, and context-switches by swapping the saved
// Context structs (spec.md's GLOSSARY definition of "Context switch").
func (s *Scheduler) Schedule() {
	if s.current == nil || !s.current.Reschedule {
		return
	}
	s.current.Reschedule = false

	next := s.pickNext()
	if next == nil || next == s.current {
		return
	}

	prev := s.current
	if prev.State == Running {
		prev.State = Ready
	}
	if prev.Mem.PGD != next.Mem.PGD && s.engine != nil {
		s.engine.InstallPGD(next.Mem.PGD)
	}
	next.State = Running
	s.current = next
	// The context switch itself: save prev's registers/SP/PC (already
	// live in prev.Context, maintained by the trap layer's SVC/IRQ entry
	// path) and resume next's. There is nothing further to copy here —
	// both Context values already describe where each process stopped.
}

// pickNext returns the next Ready-or-Running process after the current
// one in ready, wrapping around, or nil if none is schedulable.
func (s *Scheduler) pickNext() *Process {
	if len(s.ready) == 0 {
		return nil
	}
	n := len(s.ready)
	for i := 1; i <= n; i++ {
		idx := (s.pos + i) % n
		cand := s.ready[idx]
		if cand.State == Ready || cand.State == Running {
			s.pos = idx
			return cand
		}
	}
	return nil
}
