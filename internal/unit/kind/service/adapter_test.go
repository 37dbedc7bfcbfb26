package service

import (
	"context"
	"syscall"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/corevisor/corevisor/internal/graph"
	"github.com/corevisor/corevisor/internal/job"
	"github.com/corevisor/corevisor/internal/reactor"
	"github.com/corevisor/corevisor/internal/unit"
)

// fakeRunner never forks a real process; Run/Start outcomes are scripted
// per path so the sub-state-machine can be exercised deterministically.
type fakeRunner struct {
	startFails bool
	runFails   map[string]bool
	signals    []syscall.Signal
}

func (f *fakeRunner) Start(ctx context.Context, cmd unit.ExecCommand) (int, error) {
	if f.startFails {
		return 0, context.Canceled
	}
	return 4242, nil
}

func (f *fakeRunner) Run(ctx context.Context, cmd unit.ExecCommand) (bool, error) {
	if f.runFails != nil && f.runFails[cmd.Path] {
		return false, context.Canceled
	}
	return true, nil
}

func (f *fakeRunner) Signal(pid int, sig syscall.Signal) error {
	f.signals = append(f.signals, sig)
	return nil
}

type fakeNotifier struct {
	states []graph.ActiveState
}

func (n *fakeNotifier) TryFinish(unitName string, newState graph.ActiveState) {
	n.states = append(n.states, newState)
}

func newTestAdapter(t *testing.T, raw map[string]string) (*Adapter, *fakeRunner, *fakeNotifier) {
	t.Helper()
	g := graph.New(nil)
	u, err := g.Load("demo.service")
	require.NoError(t, err)
	require.NoError(t, u.SetLoadState(graph.Loaded))

	runner := &fakeRunner{}
	notifier := &fakeNotifier{}
	a := New(u, notifier, nil, zerolog.Nop(), runner)
	require.NoError(t, a.Parse(raw))
	return a, runner, notifier
}

func TestAdapter_StartSimpleReachesRunning(t *testing.T) {
	a, _, notifier := newTestAdapter(t, map[string]string{
		"ExecStart": "/bin/true",
	})

	require.NoError(t, a.Trigger(job.KindStart, false))
	require.Equal(t, Running, a.state)
	require.Equal(t, graph.Active, a.ActiveState())
	require.Contains(t, notifier.states, graph.Active)
}

func TestAdapter_StartOneshotRemainAfterExit(t *testing.T) {
	a, _, _ := newTestAdapter(t, map[string]string{
		"ExecStart":       "/bin/true",
		"Type":            "oneshot",
		"RemainAfterExit": "true",
	})

	require.NoError(t, a.Trigger(job.KindStart, false))
	require.Equal(t, Running, a.state)
}

func TestAdapter_StartTwiceWithoutForceIsAlready(t *testing.T) {
	a, _, _ := newTestAdapter(t, map[string]string{"ExecStart": "/bin/true"})
	require.NoError(t, a.Trigger(job.KindStart, false))

	err := a.Trigger(job.KindStart, false)
	require.Equal(t, unit.ErrAlready, err)
}

func TestAdapter_StopSendsSigtermAndFinishes(t *testing.T) {
	a, runner, _ := newTestAdapter(t, map[string]string{"ExecStart": "/bin/true"})
	require.NoError(t, a.Trigger(job.KindStart, false))

	require.NoError(t, a.Trigger(job.KindStop, false))
	require.Equal(t, StopSigterm, a.state)
	require.Contains(t, runner.signals, syscall.SIGTERM)

	// Simulate the reactor delivering the child's exit.
	require.NoError(t, a.onChildExit(childExitEvent(0)))
	require.Equal(t, Dead, a.state)
	require.Equal(t, graph.InActive, a.ActiveState())
}

func TestAdapter_RestartOnFailureReschedulesStart(t *testing.T) {
	a, _, _ := newTestAdapter(t, map[string]string{
		"ExecStart": "/bin/true",
		"Restart":   "on-failure",
	})
	require.NoError(t, a.Trigger(job.KindStart, false))

	require.NoError(t, a.onChildExit(childExitEvent(1)))
	require.Equal(t, AutoRestart, a.state)
	require.Equal(t, 1, a.restartCount)
}

func childExitEvent(status int) reactor.Event {
	return reactor.Event{Type: reactor.EventChild, Status: status}
}
