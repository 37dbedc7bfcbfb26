// Package timer implements the timer Unit Kind Adapter: OnCalendar=/
// OnActiveSec= schedules (OnUnitActiveSec= is not parsed) resolved to
// reactor calendar/monotonic timer sources, firing Triggers on the bound Unit= when they
// elapse (spec.md §4.5's Dead, Waiting, Running, Elapsed state machine).
package timer

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
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
	Elapsed
	Failed
)

type Config struct {
	Unit         string
	OnCalendar   string
	OnActiveSec  time.Duration
	Persistent   bool
	schedule     cron.Schedule
}

func Parse(raw map[string]string) (*Config, error) {
	cfg := &Config{Unit: raw["Unit"]}
	if v, ok := raw["OnCalendar"]; ok && v != "" {
		sched, err := reactor.ParseCalendar(v)
		if err != nil {
			return nil, fmt.Errorf("timer: OnCalendar: %w", err)
		}
		cfg.OnCalendar = v
		cfg.schedule = sched
	}
	if v, ok := raw["OnActiveSec"]; ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("timer: OnActiveSec: %w", err)
		}
		cfg.OnActiveSec = d
	}
	if cfg.schedule == nil && cfg.OnActiveSec == 0 {
		return nil, fmt.Errorf("timer: at least one of OnCalendar=/OnActiveSec= is required")
	}
	return cfg, nil
}

// TriggerFunc is invoked with the Unit= target's name when the timer
// elapses.
type TriggerFunc func(targetUnit string)

type Adapter struct {
	unit.Base

	cfg       *Config
	state     State
	tok       *reactor.Token
	onTrigger TriggerFunc
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

func (a *Adapter) DepCheck(rel graph.Relation, dest *graph.Unit) error { return nil }

// OnTrigger registers the callback fired when the timer elapses.
func (a *Adapter) OnTrigger(fn TriggerFunc) { a.onTrigger = fn }

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
	if a.React == nil {
		return unit.ErrNoExec
	}

	if a.cfg.schedule != nil {
		first := a.cfg.schedule.Next(time.Now())
		tok := a.React.AddCalendar(first, a.cfg.schedule.Next, reactor.PriorityNormal, a.onFire)
		a.tok = &tok
	} else {
		tok := a.React.AddTimer(reactor.EventTimerMonotonic, time.Now().Add(a.cfg.OnActiveSec), 0, reactor.PriorityNormal, a.onFire)
		a.tok = &tok
	}

	a.state = Waiting
	a.SetActive(graph.Active)
	return nil
}

func (a *Adapter) doStop() error {
	if a.state == Dead {
		return unit.ErrAlready
	}
	a.disarm()
	a.state = Dead
	a.SetActive(graph.InActive)
	return nil
}

func (a *Adapter) disarm() {
	if a.tok != nil && a.React != nil {
		_ = a.React.DelSource(*a.tok)
		a.tok = nil
	}
}

func (a *Adapter) onFire(reactor.Event) error {
	a.state = Running
	if a.onTrigger != nil && a.cfg.Unit != "" {
		a.onTrigger(a.cfg.Unit)
	}
	if a.cfg.schedule != nil {
		a.state = Waiting // recurring calendar timer re-arms itself
	} else {
		a.state = Elapsed
		a.SetActive(graph.InActive)
	}
	return nil
}
