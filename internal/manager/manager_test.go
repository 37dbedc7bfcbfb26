package manager

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/corevisor/corevisor/internal/graph"
	"github.com/corevisor/corevisor/internal/unit/presets"
)

// fakeLoader serves unit fragments from an in-memory map instead of disk,
// so these tests never touch the filesystem for unit files (only the
// reliability store, via t.TempDir(), needs a real directory).
type fakeLoader map[string]map[string]string

func (f fakeLoader) Load(name string) (map[string]string, bool, error) {
	raw, ok := f[name]
	if !ok {
		return nil, false, nil
	}
	return raw, true, nil
}

func newTestManager(t *testing.T, loader UnitFileLoader) *Manager {
	t.Helper()
	m, err := New(Config{StateDir: t.TempDir()}, zerolog.Nop())
	require.NoError(t, err)
	if loader != nil {
		m.Loader = loader
	}
	t.Cleanup(func() { m.Store.Close() })
	return m
}

func TestManager_StartupStartsDefaultTarget(t *testing.T) {
	m := newTestManager(t, fakeLoader{
		DefaultTarget: {},
	})

	require.NoError(t, m.Startup(false))

	u, ok := m.Graph.Get(DefaultTarget)
	require.True(t, ok)
	require.Equal(t, graph.Loaded, u.LoadState())
	require.Equal(t, graph.Active, u.ActiveState())
}

func TestManager_StartupMasksPresetMaskedUnit(t *testing.T) {
	m := newTestManager(t, fakeLoader{
		DefaultTarget:   {},
		"extra.service": {"ExecStart": "/bin/true"},
	})
	m.Presets = presets.StaticSource{{Glob: "extra.service", Decision: presets.Mask}}

	require.NoError(t, m.Startup(false))

	u, ok := m.Graph.Get("extra.service")
	require.True(t, ok)
	require.Equal(t, graph.Masked, u.LoadState())
}

func TestManager_ReloadRevisitsLoadedUnits(t *testing.T) {
	m := newTestManager(t, fakeLoader{DefaultTarget: {}})
	require.NoError(t, m.Startup(false))
	require.NoError(t, m.Reload())

	u, ok := m.Graph.Get(DefaultTarget)
	require.True(t, ok)
	require.Equal(t, graph.Active, u.ActiveState())
}

// TestManager_PrepareReexecFlushesAndCompactsStore exercises the RS
// flush+compact pair reexec() relies on (scenario E5's precondition: the
// store must be durable before a re-exec or crash, or recovery on restart
// has nothing to recover from).
func TestManager_PrepareReexecFlushesAndCompactsStore(t *testing.T) {
	m := newTestManager(t, fakeLoader{DefaultTarget: {}})
	require.NoError(t, m.Startup(false))

	require.NoError(t, m.prepareReexec())
}

// TestManager_RecoverAfterRestartResumesDefaultTarget models scenario E5
// (spec.md §8): a manager is killed, a fresh Manager opens the same state
// directory, and Startup(reload=true) cold-plugs the default target back
// to Active from its persisted UNIT_ACTIVE_STATE record rather than
// starting it cold a second time producing a duplicate job.
func TestManager_RecoverAfterRestartResumesDefaultTarget(t *testing.T) {
	dir := t.TempDir()
	loader := fakeLoader{DefaultTarget: {}}

	first, err := New(Config{StateDir: dir}, zerolog.Nop())
	require.NoError(t, err)
	first.Loader = loader
	require.NoError(t, first.Startup(false))
	require.NoError(t, first.Store.Flush())
	require.NoError(t, first.Store.Close())

	second, err := New(Config{StateDir: dir}, zerolog.Nop())
	require.NoError(t, err)
	defer second.Store.Close()
	second.Loader = loader

	require.NoError(t, second.Startup(true))

	u, ok := second.Graph.Get(DefaultTarget)
	require.True(t, ok)
	require.Equal(t, graph.Active, u.ActiveState())
}
