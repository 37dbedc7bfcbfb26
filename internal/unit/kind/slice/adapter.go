// Package slice implements the slice Unit Kind Adapter: a pure cgroup
// hierarchy grouping node (systemd.slice's equivalent) with no process of
// its own. Not perpetual (neither is target); it owns its cgroup path's
// lifecycle — Start/Stop create/remove the cgroup directory rather than
// spawning anything.
package slice

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/corevisor/corevisor/internal/graph"
	"github.com/corevisor/corevisor/internal/job"
	"github.com/corevisor/corevisor/internal/reactor"
	"github.com/corevisor/corevisor/internal/unit"
)

const cgroupRoot = "/sys/fs/cgroup"

type Config struct {
	CgroupPath string
}

func Parse(raw map[string]string, unitName string) (*Config, error) {
	path := raw["CgroupPath"]
	if path == "" {
		path = filepath.Join(cgroupRoot, "corevisor.slice", unitName)
	}
	return &Config{CgroupPath: path}, nil
}

type Adapter struct {
	unit.Base
	cfg *Config
}

func New(u *graph.Unit, notifier unit.Notifier, react *reactor.Reactor, log zerolog.Logger) *Adapter {
	return &Adapter{Base: unit.NewBase(u, notifier, react, log)}
}

func (a *Adapter) Parse(raw map[string]string) error {
	cfg, err := Parse(raw, a.Unit.Name)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *Adapter) CanStart() bool  { return true }
func (a *Adapter) CanStop() bool   { return true }
func (a *Adapter) CanReload() bool { return false }

// Perpetual: a slice is not perpetual; like target, it is started and
// stopped through jobs (here: creating and removing its cgroup directory).
func (a *Adapter) Perpetual() bool { return false }

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
		if err := os.MkdirAll(a.cfg.CgroupPath, 0o755); err != nil {
			a.SetActive(graph.Failed)
			return unit.ErrFailed
		}
		a.SetActive(graph.Active)
		return nil
	case job.KindStop:
		if a.ActiveState() == graph.InActive {
			return unit.ErrAlready
		}
		_ = os.Remove(a.cfg.CgroupPath) // best-effort: fails if children remain, which is fine
		a.SetActive(graph.InActive)
		return nil
	default:
		return unit.ErrOpNotSupp
	}
}
