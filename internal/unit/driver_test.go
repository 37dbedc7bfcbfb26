package unit

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/corevisor/corevisor/internal/graph"
	"github.com/corevisor/corevisor/internal/job"
)

type stubAdapter struct {
	Base
	triggerErr error
	lastKind   job.Kind
}

func (s *stubAdapter) Parse(map[string]string) error                 { return nil }
func (s *stubAdapter) CanStart() bool                                 { return true }
func (s *stubAdapter) CanStop() bool                                  { return true }
func (s *stubAdapter) CanReload() bool                                { return true }
func (s *stubAdapter) Perpetual() bool                                { return false }
func (s *stubAdapter) DepCheck(graph.Relation, *graph.Unit) error     { return nil }
func (s *stubAdapter) EntryColdplug(graph.ActiveState) error          { return nil }
func (s *stubAdapter) Trigger(kind job.Kind, force bool) error {
	s.lastKind = kind
	return s.triggerErr
}

func TestManager_StartDelegatesToAdapter(t *testing.T) {
	g := graph.New(nil)
	u, err := g.Load("demo.service")
	require.NoError(t, err)
	require.NoError(t, u.SetLoadState(graph.Loaded))

	adapter := &stubAdapter{Base: NewBase(u, nil, nil, zerolog.Nop())}
	u.Adapter = adapter

	m := NewManager(zerolog.Nop())
	require.NoError(t, m.Start(u))
	require.Equal(t, job.KindStart, adapter.lastKind)
}

func TestManager_TriggerEAgainIsNotAnError(t *testing.T) {
	g := graph.New(nil)
	u, err := g.Load("demo.service")
	require.NoError(t, err)
	require.NoError(t, u.SetLoadState(graph.Loaded))

	adapter := &stubAdapter{Base: NewBase(u, nil, nil, zerolog.Nop()), triggerErr: ErrAgain}
	u.Adapter = adapter

	m := NewManager(zerolog.Nop())
	require.NoError(t, m.Start(u))
}

func TestManager_NoAdapterLoadedIsAnError(t *testing.T) {
	g := graph.New(nil)
	u, err := g.Load("demo.service")
	require.NoError(t, err)

	m := NewManager(zerolog.Nop())
	require.Error(t, m.Start(u))
}
