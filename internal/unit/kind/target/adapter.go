// Package target implements the target Unit Kind Adapter: a grouping point
// with no executable action of its own, grounded on the same role
// systemd.target units play — Trigger just flips ActiveState, since
// everything interesting about a target lives in its dependency edges
// (Requires/Wants pulling in the units the target groups).
package target

import (
	"github.com/rs/zerolog"

	"github.com/corevisor/corevisor/internal/graph"
	"github.com/corevisor/corevisor/internal/job"
	"github.com/corevisor/corevisor/internal/reactor"
	"github.com/corevisor/corevisor/internal/unit"
)

type Adapter struct {
	unit.Base
}

func New(u *graph.Unit, notifier unit.Notifier, react *reactor.Reactor, log zerolog.Logger) *Adapter {
	return &Adapter{Base: unit.NewBase(u, notifier, react, log)}
}

func (a *Adapter) Parse(raw map[string]string) error { return nil }
func (a *Adapter) CanStart() bool                    { return true }
func (a *Adapter) CanStop() bool                     { return true }
func (a *Adapter) CanReload() bool                    { return false }
func (a *Adapter) Perpetual() bool                    { return false }

func (a *Adapter) DepCheck(rel graph.Relation, dest *graph.Unit) error { return nil }

func (a *Adapter) EntryColdplug(persisted graph.ActiveState) error {
	a.SetActive(persisted)
	return nil
}

func (a *Adapter) Trigger(kind job.Kind, force bool) error {
	switch kind {
	case job.KindStart, job.KindRestart, job.KindTryRestart:
		if a.ActiveState() == graph.Active && !force {
			return unit.ErrAlready
		}
		a.SetActive(graph.Active)
		return nil
	case job.KindStop:
		if a.ActiveState() == graph.InActive {
			return unit.ErrAlready
		}
		a.SetActive(graph.InActive)
		return nil
	case job.KindReload:
		return unit.ErrOpNotSupp
	default:
		return unit.ErrOpNotSupp
	}
}
