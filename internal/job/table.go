package job

import "sync"

// Table holds every live job, indexed both by ID and by unit. Each unit
// has at most one trigger job (the one currently eligible to run) and
// zero or more suspended jobs queued behind it (spec.md §2.5's "Job
// Table").
type Table struct {
	mu        sync.Mutex
	byID      map[string]*Job
	trigger   map[string]*Job
	suspended map[string][]*Job
}

func NewTable() *Table {
	return &Table{
		byID:      make(map[string]*Job),
		trigger:   make(map[string]*Job),
		suspended: make(map[string][]*Job),
	}
}

// installTrigger makes j the trigger job for its unit. Any previous
// trigger job for that unit must already have been finished or replaced
// by the caller (Affect/Commit's responsibility).
func (t *Table) installTrigger(j *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[j.ID] = j
	t.trigger[j.Unit] = j
}

func (t *Table) installSuspended(j *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[j.ID] = j
	t.suspended[j.Unit] = append(t.suspended[j.Unit], j)
}

func (t *Table) Get(id string) (*Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.byID[id]
	return j, ok
}

func (t *Table) Trigger(unit string) (*Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.trigger[unit]
	return j, ok
}

// IsTrigger reports whether j is currently the trigger job for its unit.
func (t *Table) IsTrigger(j *Job) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.trigger[j.Unit] == j
}

func (t *Table) Suspended(unit string) []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Job, len(t.suspended[unit]))
	copy(out, t.suspended[unit])
	return out
}

// All returns every job currently tracked, trigger and suspended alike.
func (t *Table) All() []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Job, 0, len(t.byID))
	for _, j := range t.byID {
		out = append(out, j)
	}
	return out
}

// cancel removes j from the table without running it, finishing it with
// ResultCanceled.
func (t *Table) cancel(j *Job) {
	t.mu.Lock()
	if t.trigger[j.Unit] == j {
		delete(t.trigger, j.Unit)
	}
	if list := t.suspended[j.Unit]; len(list) > 0 {
		filtered := list[:0]
		for _, s := range list {
			if s.ID != j.ID {
				filtered = append(filtered, s)
			}
		}
		t.suspended[j.Unit] = filtered
	}
	delete(t.byID, j.ID)
	t.mu.Unlock()
	j.finish(ResultCanceled)
}

// promoteNext, called after a unit's trigger job finishes, advances the
// oldest suspended job (if any) into the trigger slot and returns it.
func (t *Table) promoteNext(unit string) (*Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.trigger, unit)
	list := t.suspended[unit]
	if len(list) == 0 {
		return nil, false
	}
	next := list[0]
	t.suspended[unit] = list[1:]
	t.trigger[unit] = next
	return next, true
}

// finishTrigger marks unit's current trigger job finished with result and
// removes it from the table.
func (t *Table) finishTrigger(unit string, result Result) (*Job, bool) {
	t.mu.Lock()
	j, ok := t.trigger[unit]
	if !ok {
		t.mu.Unlock()
		return nil, false
	}
	delete(t.trigger, unit)
	delete(t.byID, j.ID)
	t.mu.Unlock()

	j.finish(result)
	return j, true
}
