// Package scope implements the scope Unit Kind Adapter: a unit wrapping an
// already-running set of externally-forked PIDs (the systemd.scope
// equivalent used for session/container process groups) rather than
// spawning anything itself. It becomes Active the moment it's handed its
// PID set and InActive once every tracked PID has exited, watched via the
// reactor's child-PID source the same way service tracks its main process.
package scope

import (
	"github.com/rs/zerolog"

	"github.com/corevisor/corevisor/internal/graph"
	"github.com/corevisor/corevisor/internal/job"
	"github.com/corevisor/corevisor/internal/reactor"
	"github.com/corevisor/corevisor/internal/unit"
)

type Adapter struct {
	unit.Base

	pids    map[int]bool
	started bool
}

func New(u *graph.Unit, notifier unit.Notifier, react *reactor.Reactor, log zerolog.Logger) *Adapter {
	return &Adapter{Base: unit.NewBase(u, notifier, react, log), pids: make(map[int]bool)}
}

func (a *Adapter) Parse(raw map[string]string) error { return nil }
func (a *Adapter) CanStart() bool                    { return true }
func (a *Adapter) CanStop() bool                     { return true }
func (a *Adapter) CanReload() bool                   { return false }
func (a *Adapter) Perpetual() bool                   { return false }

func (a *Adapter) DepCheck(rel graph.Relation, dest *graph.Unit) error { return nil }

func (a *Adapter) EntryColdplug(persisted graph.ActiveState) error {
	a.SetActive(persisted)
	return nil
}

// Attach registers an externally-forked PID as belonging to this scope,
// arming a reactor child-exit watch so the scope transitions to InActive
// once every attached PID has exited.
func (a *Adapter) Attach(pid int) {
	first := len(a.pids) == 0
	a.pids[pid] = true
	a.started = true
	if first {
		a.SetActive(graph.Active)
	}
	if a.React != nil {
		a.React.AddChild(pid, reactor.PriorityNormal, func(ev reactor.Event) error {
			a.onPIDExit(ev.PID)
			return nil
		})
	}
}

func (a *Adapter) onPIDExit(pid int) {
	delete(a.pids, pid)
	if len(a.pids) == 0 {
		a.SetActive(graph.InActive)
	}
}

func (a *Adapter) Trigger(kind job.Kind, force bool) error {
	switch kind {
	case job.KindStart, job.KindRestart, job.KindTryRestart:
		if a.started && !force {
			return unit.ErrAlready
		}
		if len(a.pids) == 0 {
			return unit.ErrNoExec
		}
		a.SetActive(graph.Active)
		return nil
	case job.KindStop:
		// Scopes have no ExecStop; the caller kills the attached PIDs
		// directly and onPIDExit reports completion.
		if len(a.pids) == 0 {
			a.SetActive(graph.InActive)
			return nil
		}
		return unit.ErrAgain
	default:
		return unit.ErrOpNotSupp
	}
}
