// Package path implements the path Unit Kind Adapter: watches a set of
// filesystem paths through a Watcher and, when one's condition is
// satisfied, hands the bound Unit= name to the OnTrigger callback
// (spec.md §4.5's four-state path machine: Dead, Waiting, Running,
// Failed). The package has no inotify-backed Watcher; without one, Start
// fails with ErrNoExec.
package path

import (
	"github.com/rs/zerolog"

	"github.com/corevisor/corevisor/internal/graph"
	"github.com/corevisor/corevisor/internal/job"
	"github.com/corevisor/corevisor/internal/reactor"
	"github.com/corevisor/corevisor/internal/unit"
)

type State int

const (
	Dead State = iota
	Waiting
	Running
	Failed
)

// Spec is one watched condition (PathExists=, PathExistsGlob=,
// PathChanged=, PathModified=, DirectoryNotEmpty=).
type Spec struct {
	Kind string
	Path string
}

type Config struct {
	Paths   []Spec
	Unit    string // the unit Triggers fires when a condition is met
	MakeDir bool
}

func Parse(raw map[string]string) (*Config, error) {
	cfg := &Config{}
	for _, kind := range []string{"PathExists", "PathExistsGlob", "PathChanged", "PathModified", "DirectoryNotEmpty"} {
		if v, ok := raw[kind]; ok && v != "" {
			cfg.Paths = append(cfg.Paths, Spec{Kind: kind, Path: v})
		}
	}
	if v, ok := raw["Unit"]; ok {
		cfg.Unit = v
	}
	return cfg, nil
}

type Adapter struct {
	unit.Base

	cfg   *Config
	state State
	// Watcher is an externally-collaborating filesystem watch shim kept
	// behind an interface the same way service's Runner is, so the
	// sub-state-machine is unit-testable without a real inotify fd.
	Watcher   Watcher
	onTrigger TriggerFunc
}

// Watcher abstracts the filesystem watch; an implementation calls
// onSatisfied when a watched condition is met.
type Watcher interface {
	Watch(paths []Spec, onSatisfied func()) error
	Unwatch()
}

func New(u *graph.Unit, notifier unit.Notifier, react *reactor.Reactor, log zerolog.Logger, w Watcher) *Adapter {
	return &Adapter{Base: unit.NewBase(u, notifier, react, log), Watcher: w}
}

func (a *Adapter) Parse(raw map[string]string) error {
	cfg, err := Parse(raw)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *Adapter) CanStart() bool  { return a.cfg != nil && len(a.cfg.Paths) > 0 }
func (a *Adapter) CanStop() bool   { return true }
func (a *Adapter) CanReload() bool { return false }
func (a *Adapter) Perpetual() bool { return false }

// DepCheck: a path unit's Unit= target must not itself be a path, avoiding
// a watch cycle.
func (a *Adapter) DepCheck(rel graph.Relation, dest *graph.Unit) error {
	if dest.Kind == graph.KindPath {
		return unit.ErrInval
	}
	return nil
}

func (a *Adapter) EntryColdplug(persisted graph.ActiveState) error {
	if persisted == graph.Active {
		return a.doStart(false)
	}
	a.SetActive(graph.InActive)
	return nil
}

func (a *Adapter) Trigger(kind job.Kind, force bool) error {
	switch kind {
	case job.KindStart, job.KindRestart, job.KindTryRestart:
		return a.doStart(force)
	case job.KindStop:
		return a.doStop()
	default:
		return unit.ErrOpNotSupp
	}
}

func (a *Adapter) doStart(force bool) error {
	if a.state == Waiting && !force {
		return unit.ErrAlready
	}
	if a.Watcher == nil {
		return unit.ErrNoExec
	}
	if err := a.Watcher.Watch(a.cfg.Paths, a.onSatisfied); err != nil {
		a.state = Failed
		a.SetActive(graph.Failed)
		return unit.ErrFailed
	}
	a.state = Waiting
	a.SetActive(graph.Active)
	return nil
}

func (a *Adapter) doStop() error {
	if a.state == Dead {
		return unit.ErrAlready
	}
	if a.Watcher != nil {
		a.Watcher.Unwatch()
	}
	a.state = Dead
	a.SetActive(graph.InActive)
	return nil
}

// onSatisfied runs when the watcher observes the condition; the path
// adapter's own state returns to Waiting immediately (re-arming), while
// the Unit= target is handed to the callback registered with OnTrigger
// rather than the adapter reaching across to another unit directly,
// keeping ownership a DAG per spec.md §9. Nothing registers one, so no
// target is started.
type TriggerFunc func(targetUnit string)

func (a *Adapter) onSatisfied() {
	a.state = Running
	if a.onTrigger != nil && a.cfg.Unit != "" {
		a.onTrigger(a.cfg.Unit)
	}
	a.state = Waiting
}

// OnTrigger registers the callback invoked with the Unit= target's name
// whenever a watched condition fires.
func (a *Adapter) OnTrigger(fn TriggerFunc) { a.onTrigger = fn }
