package system

import "time"

// Handle is the cancel handle returned for a scheduled task.
type Handle interface {
	Name() string
	Active() bool
	Cancel()
}

// Scheduler runs named periodic callbacks on the game loop goroutine.
// It is a System itself: the Runner advances it once per tick and every
// task whose interval has elapsed fires at most once. No locks; callbacks
// may schedule or cancel tasks (including themselves) while running.
type Scheduler struct {
	phase Phase
	tasks map[string]*task
	order []*task
}

type task struct {
	s        *Scheduler
	name     string
	interval time.Duration
	elapsed  time.Duration
	fn       func()
	active   bool
}

func (t *task) Name() string { return t.name }
func (t *task) Active() bool { return t.active }

// Cancel removes the task. Safe to call more than once.
func (t *task) Cancel() {
	if !t.active {
		return
	}
	t.active = false
	if cur, ok := t.s.tasks[t.name]; ok && cur == t {
		delete(t.s.tasks, t.name)
	}
}

// NewScheduler creates a scheduler that runs in PhaseUpdate.
func NewScheduler() *Scheduler {
	return &Scheduler{
		phase: PhaseUpdate,
		tasks: make(map[string]*task),
	}
}

func (s *Scheduler) Phase() Phase { return s.phase }

// Every schedules fn to run each interval, first firing one interval from
// now. A task already registered under name is cancelled and replaced.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) Handle {
	if interval <= 0 {
		interval = time.Nanosecond
	}
	s.Remove(name)
	t := &task{s: s, name: name, interval: interval, fn: fn, active: true}
	s.tasks[name] = t
	s.order = append(s.order, t)
	return t
}

// Remove cancels the task registered under name. Reports whether one existed.
func (s *Scheduler) Remove(name string) bool {
	t, ok := s.tasks[name]
	if !ok {
		return false
	}
	t.Cancel()
	return true
}

// Has reports whether a task named name is scheduled.
func (s *Scheduler) Has(name string) bool {
	_, ok := s.tasks[name]
	return ok
}

// Len returns the number of scheduled tasks.
func (s *Scheduler) Len() int { return len(s.tasks) }

// Update advances every task by dt. The interval is fixed: a long tick
// fires a task once and drops the surplus instead of bursting.
func (s *Scheduler) Update(dt time.Duration) {
	n := len(s.order)
	for i := 0; i < n; i++ {
		t := s.order[i]
		if !t.active {
			continue
		}
		t.elapsed += dt
		if t.elapsed < t.interval {
			continue
		}
		t.elapsed -= t.interval
		if t.elapsed >= t.interval {
			t.elapsed = 0
		}
		t.fn()
	}
	s.compact()
}

func (s *Scheduler) compact() {
	live := s.order[:0]
	for _, t := range s.order {
		if t.active {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(s.order); i++ {
		s.order[i] = nil
	}
	s.order = live
}
