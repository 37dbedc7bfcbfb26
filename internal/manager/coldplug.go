package manager

import (
	"github.com/corevisor/corevisor/internal/graph"
	"github.com/corevisor/corevisor/internal/unit/load"
	"github.com/corevisor/corevisor/internal/unit/presets"
)

// coldplugAll drains the load queue (parsing every pending unit's config
// and constructing its Kind adapter), materializes default-target
// dependencies for every newly loaded unit, then invokes EntryColdplug on
// every loaded unit so a unit whose persisted ActiveState survived a
// restart (a running service, a listening socket) is recognized rather
// than treated as freshly InActive.
func (m *Manager) coldplugAll() error {
	for {
		name, ok := m.Graph.PopLoadQueue()
		if !ok {
			break
		}
		if err := m.loadOne(name); err != nil {
			m.log.Warn().Err(err).Str("unit", name).Msg("failed to load unit")
		}
	}

	for {
		name, ok := m.Graph.PopTargetDepsQueue()
		if !ok {
			break
		}
		if u, ok := m.Graph.Get(name); ok {
			m.Graph.MaterializeDefaultTargetDeps(u)
		}
	}

	for _, u := range m.Graph.GetAll() {
		if u.LoadState() != graph.Loaded {
			continue
		}
		k, ok := u.Adapter.(interface {
			EntryColdplug(graph.ActiveState) error
		})
		if !ok {
			continue
		}
		if err := k.EntryColdplug(m.persistedActiveState(u.Name)); err != nil {
			m.log.Warn().Err(err).Str("unit", u.Name).Msg("coldplug failed")
		}
	}
	return nil
}

func (m *Manager) loadOne(name string) error {
	u, err := m.Graph.Load(name)
	if err != nil {
		return err
	}

	raw, found, err := m.Loader.Load(name)
	if err != nil {
		return u.SetLoadState(graph.Error)
	}
	if !found {
		return u.SetLoadState(graph.NotFound)
	}

	u.DefaultDependencies = true

	adapter, err := load.NewAdapter(u, m.notifier, m.React, m.log)
	if err != nil {
		return u.SetLoadState(graph.Error)
	}
	if err := adapter.Parse(raw); err != nil {
		return u.SetLoadState(graph.Error)
	}

	// Enable/Disable presets decide whether a WantedBy=/RequiredBy= symlink
	// would exist (spec.md's external install-tooling concern, modeled by
	// internal/unit/presets as a decision only); Mask is the one preset
	// outcome this runtime enforces directly, since a masked unit must
	// never become Active regardless of what requests it.
	if presets.Resolve(m.Presets, name) == presets.Mask {
		return u.SetLoadState(graph.Masked)
	}

	if err := u.SetLoadState(graph.Loaded); err != nil {
		return err
	}
	m.Graph.PushTargetDepsQueue(name)
	return nil
}
