package manager

import (
	"github.com/corevisor/corevisor/internal/events"
	"github.com/corevisor/corevisor/internal/graph"
	"github.com/corevisor/corevisor/internal/job"
	"github.com/corevisor/corevisor/internal/store"
)

// unitStateRecord is the persisted record backing the manager's own
// UNIT_ACTIVE_STATE reliability table: the durable half of spec.md §8
// property 5 ("after reexec, for every unit u whose pre-reexec
// active-state was s, the post-reexec active-state equals s"). internal/
// graph.Unit itself is always rebuilt in memory from scratch at startup,
// so whatever ActiveState a unit last reached has to live in RS for
// EntryColdplug to have anything to recover.
type unitStateRecord struct {
	State int
}

// persistingNotifier decorates the job engine's own unit.Notifier so every
// try_finish also durably records the unit's new ActiveState, without
// internal/job or internal/unit needing to know the reliability store
// exists.
type persistingNotifier struct {
	engine *job.Engine
	states *store.Table[unitStateRecord]
	bus    *events.Bus
}

func (p *persistingNotifier) TryFinish(unitName string, newState graph.ActiveState) {
	p.states.Insert(unitName, unitStateRecord{State: int(newState)})
	p.engine.TryFinish(unitName, newState)
	if p.bus != nil {
		p.bus.Emit(events.UnitStateChanged, unitName, map[string]interface{}{
			"unit":         unitName,
			"active_state": newState.String(),
		})
	}
}

// persistedActiveState returns the last ActiveState recorded for name, or
// graph.InActive if none was ever persisted (first boot).
func (m *Manager) persistedActiveState(name string) graph.ActiveState {
	rec, ok := m.unitStates.Get(name)
	if !ok {
		return graph.InActive
	}
	return graph.ActiveState(rec.State)
}
