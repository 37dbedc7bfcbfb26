// Package swap implements the swap Unit Kind Adapter: enables/disables a
// swap device via swapon(8)/swapoff(8), mirroring mount's "ask the OS,
// don't pretend" design — the unit's ActiveState is only as trustworthy as
// the last command's exit code until a cold-plug reconciliation pass
// confirms it against /proc/swaps.
package swap

import (
	"os/exec"

	"github.com/rs/zerolog"

	"github.com/corevisor/corevisor/internal/graph"
	"github.com/corevisor/corevisor/internal/job"
	"github.com/corevisor/corevisor/internal/reactor"
	"github.com/corevisor/corevisor/internal/unit"
)

type Config struct {
	What     string
	Priority int
}

func Parse(raw map[string]string) (*Config, error) {
	cfg := &Config{What: raw["What"]}
	if cfg.What == "" {
		return nil, unit.ErrInval
	}
	return cfg, nil
}

type Adapter struct {
	unit.Base
	cfg *Config
}

func New(u *graph.Unit, notifier unit.Notifier, react *reactor.Reactor, log zerolog.Logger) *Adapter {
	return &Adapter{Base: unit.NewBase(u, notifier, react, log)}
}

func (a *Adapter) Parse(raw map[string]string) error {
	cfg, err := Parse(raw)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *Adapter) CanStart() bool  { return a.cfg != nil }
func (a *Adapter) CanStop() bool   { return true }
func (a *Adapter) CanReload() bool { return false }
func (a *Adapter) Perpetual() bool { return false }

func (a *Adapter) DepCheck(rel graph.Relation, dest *graph.Unit) error {
	if dest.Kind == graph.KindSocket {
		return unit.ErrInval
	}
	return nil
}

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
		if err := exec.Command("swapon", a.cfg.What).Run(); err != nil {
			a.SetActive(graph.Failed)
			return unit.ErrFailed
		}
		a.SetActive(graph.Active)
		return nil
	case job.KindStop:
		if a.ActiveState() == graph.InActive {
			return unit.ErrAlready
		}
		if err := exec.Command("swapoff", a.cfg.What).Run(); err != nil {
			return unit.ErrBusy
		}
		a.SetActive(graph.InActive)
		return nil
	default:
		return unit.ErrOpNotSupp
	}
}
