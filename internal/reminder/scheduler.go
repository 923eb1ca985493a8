package reminder

import "time"

// armResult tells the store what Arm did with an item.
type armResult int

const (
	armSkipped armResult = iota // not schedulable
	armPending                  // timer registered
	armDue                      // already due; caller resolves it now
)

type timerEntry struct {
	t   *time.Timer
	gen uint64
}

// scheduler keeps at most one pending timer per item id.
//
// It is not safe for concurrent use on its own: every method runs under the
// owning Store's lock. Timer callbacks do not touch the registry directly;
// they post (id, gen) back to the store, which takes the lock and calls claim.
type scheduler struct {
	now  func() time.Time
	fire func(id ID, gen uint64)

	timers map[ID]timerEntry
	// gen is bumped on every arm so a stale callback (from a cancelled or
	// replaced timer) can be told apart from the live one.
	gen uint64
}

func newScheduler(now func() time.Time, fire func(id ID, gen uint64)) *scheduler {
	return &scheduler{
		now:    now,
		fire:   fire,
		timers: map[ID]timerEntry{},
	}
}

func (s *scheduler) arm(it Item) armResult {
	if !it.schedulable {
		return armSkipped
	}
	now := s.now()
	if it.dueBy(now) {
		return armDue
	}

	// Callers never double-arm; if it happens anyway the old timer loses.
	if old, ok := s.timers[it.id]; ok {
		old.t.Stop()
	}
	s.gen++
	id, gen := it.id, s.gen
	t := time.AfterFunc(it.due.Sub(now), func() { s.fire(id, gen) })
	s.timers[id] = timerEntry{t: t, gen: gen}
	return armPending
}

// cancel stops and forgets the timer for id. It reports whether one existed.
func (s *scheduler) cancel(id ID) bool {
	e, ok := s.timers[id]
	if !ok {
		return false
	}
	e.t.Stop()
	delete(s.timers, id)
	return true
}

// claim is called by the fire path. It removes the entry and returns true only
// if the callback belongs to the live timer for id.
func (s *scheduler) claim(id ID, gen uint64) bool {
	e, ok := s.timers[id]
	if !ok || e.gen != gen {
		return false
	}
	delete(s.timers, id)
	return true
}

func (s *scheduler) pending() int { return len(s.timers) }

func (s *scheduler) has(id ID) bool {
	_, ok := s.timers[id]
	return ok
}

func (s *scheduler) stopAll() {
	for id, e := range s.timers {
		e.t.Stop()
		delete(s.timers, id)
	}
}
