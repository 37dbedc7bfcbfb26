// Package device implements the device Unit Kind Adapter: a passive
// reflection of a udev-equivalent device node's presence. Devices never
// start or stop by manager action — they appear and disappear with the
// hardware, so Trigger always returns EOpNotSupp and the only way a
// device's ActiveState ever changes is Notify, driven externally by
// whatever watches the device subsystem (SPEC_FULL.md's cold-plug path).
package device

import (
	"github.com/rs/zerolog"

	"github.com/corevisor/corevisor/internal/graph"
	"github.com/corevisor/corevisor/internal/job"
	"github.com/corevisor/corevisor/internal/reactor"
	"github.com/corevisor/corevisor/internal/unit"
)

type Config struct {
	SysfsPath string
}

func Parse(raw map[string]string) (*Config, error) {
	return &Config{SysfsPath: raw["SysfsPath"]}, nil
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

func (a *Adapter) CanStart() bool  { return false }
func (a *Adapter) CanStop() bool   { return false }
func (a *Adapter) CanReload() bool { return false }
func (a *Adapter) Perpetual() bool { return true }

// DepCheck: devices cannot depend on sockets (a socket can depend on a
// device for activation ordering, not the reverse).
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

// Trigger always fails: devices are driven entirely by Notify from the
// external device-event watcher, never by job-engine action.
func (a *Adapter) Trigger(kind job.Kind, force bool) error { return unit.ErrOpNotSupp }

// Notify is called by the device-event watcher when the node appears
// (Active) or disappears (InActive).
func (a *Adapter) Notify(present bool) {
	if present {
		a.SetActive(graph.Active)
	} else {
		a.SetActive(graph.InActive)
	}
}
