// Package mount implements the mount Unit Kind Adapter: Start/Stop invoke
// mount(8)/umount(8) as externally-collaborating commands, and the unit
// becomes Active as soon as mount(8) succeeds. The kernel's mount table
// (/proc/self/mountinfo) is not consulted.
package mount

import (
	"os/exec"

	"github.com/rs/zerolog"

	"github.com/corevisor/corevisor/internal/graph"
	"github.com/corevisor/corevisor/internal/job"
	"github.com/corevisor/corevisor/internal/reactor"
	"github.com/corevisor/corevisor/internal/unit"
)

type Config struct {
	What    string
	Where   string
	Type    string
	Options string
}

func Parse(raw map[string]string) (*Config, error) {
	cfg := &Config{
		What:    raw["What"],
		Where:   raw["Where"],
		Type:    raw["Type"],
		Options: raw["Options"],
	}
	if cfg.What == "" || cfg.Where == "" {
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

// DepCheck: a mount cannot Require a socket (spec.md §4.5's example).
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
		args := []string{"-t", a.cfg.Type, "-o", a.cfg.Options, a.cfg.What, a.cfg.Where}
		if err := exec.Command("mount", args...).Run(); err != nil {
			a.SetActive(graph.Failed)
			return unit.ErrFailed
		}
		a.SetActive(graph.Active)
		return nil
	case job.KindStop:
		if a.ActiveState() == graph.InActive {
			return unit.ErrAlready
		}
		if err := exec.Command("umount", a.cfg.Where).Run(); err != nil {
			return unit.ErrBusy
		}
		a.SetActive(graph.InActive)
		return nil
	default:
		return unit.ErrOpNotSupp
	}
}
