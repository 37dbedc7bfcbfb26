package service

import (
	"context"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/corevisor/corevisor/internal/graph"
	"github.com/corevisor/corevisor/internal/job"
	"github.com/corevisor/corevisor/internal/reactor"
	"github.com/corevisor/corevisor/internal/unit"
)

// Adapter is the service Unit Kind Adapter (spec.md §4.5): it implements
// unit.Kind, driving State through StartPre/Start/StartPost/Running and
// down through Stop/StopSigterm/StopSigkill to Dead, with AutoRestart
// looping back when Restart= fires. Condition and StopPost are not entered.
type Adapter struct {
	unit.Base

	cfg    *Config
	runner Runner

	state        State
	result       Result
	mainPID      int
	restartCount int
}

// New constructs a service Adapter. runner is nil in production (NewRunner
// is used); tests inject a fake to avoid forking real processes.
func New(u *graph.Unit, notifier unit.Notifier, react *reactor.Reactor, log zerolog.Logger, runner Runner) *Adapter {
	if runner == nil {
		runner = NewRunner()
	}
	return &Adapter{
		Base:   unit.NewBase(u, notifier, react, log),
		runner: runner,
		state:  Dead,
	}
}

// Parse implements unit.Kind.
func (a *Adapter) Parse(raw map[string]string) error {
	cfg, err := Parse(raw)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// CanStart implements graph.KindKit.
func (a *Adapter) CanStart() bool { return a.cfg != nil }

// CanStop implements graph.KindKit.
func (a *Adapter) CanStop() bool { return true }

// CanReload implements graph.KindKit.
func (a *Adapter) CanReload() bool { return a.cfg != nil && len(a.cfg.ExecReload) > 0 }

// Perpetual implements graph.KindKit: services are never perpetual (among
// the kinds only device is).
func (a *Adapter) Perpetual() bool { return false }

// DepCheck implements graph.KindKit: services may depend on any kind.
func (a *Adapter) DepCheck(rel graph.Relation, dest *graph.Unit) error { return nil }

// EntryColdplug implements unit.Kind: reconcile with a persisted
// active-state on manager startup without spawning anything.
func (a *Adapter) EntryColdplug(persisted graph.ActiveState) error {
	switch persisted {
	case graph.Active:
		a.state = Running
	case graph.Failed:
		a.state = Failed
	default:
		a.state = Dead
	}
	a.SetActive(persisted)
	return nil
}

// Trigger implements unit.Kind.
func (a *Adapter) Trigger(kind job.Kind, force bool) error {
	switch kind {
	case job.KindStart, job.KindRestart, job.KindTryRestart:
		return a.doStart(force)
	case job.KindStop:
		return a.doStop()
	case job.KindReload:
		return a.doReload()
	case job.KindVerify:
		return nil
	default:
		return unit.ErrOpNotSupp
	}
}

func (a *Adapter) doStart(force bool) error {
	if a.cfg == nil {
		return unit.ErrNoExec
	}
	if (a.state == Running || a.state == StartPost) && !force {
		return unit.ErrAlready
	}

	a.state = StartPre
	ctx := context.Background()
	for _, c := range a.cfg.ExecStartPre {
		if ok, _ := a.runner.Run(ctx, c); !ok {
			a.fail(ResultFailureProtocol)
			return unit.ErrFailed
		}
	}

	if a.cfg.Type == TypeOneshot {
		a.state = Start
		for _, c := range a.cfg.ExecStart {
			ok, _ := a.runner.Run(ctx, c)
			if !ok {
				a.fail(ResultFailureExitCode)
				return unit.ErrFailed
			}
		}
		return a.finishStartPost(ctx, a.cfg.RemainAfterExit)
	}

	a.state = Start
	if len(a.cfg.ExecStart) == 0 {
		a.fail(ResultFailureProtocol)
		return unit.ErrNoExec
	}
	pid, err := a.runner.Start(ctx, a.cfg.ExecStart[0])
	if err != nil {
		a.fail(ResultFailureProtocol)
		return unit.ErrFailed
	}
	a.mainPID = pid
	if a.React != nil {
		a.React.AddChild(pid, reactor.PriorityNormal, a.onChildExit)
	}

	return a.finishStartPost(ctx, true)
}

func (a *Adapter) finishStartPost(ctx context.Context, becomeActive bool) error {
	a.state = StartPost
	for _, c := range a.cfg.ExecStartPost {
		if ok, _ := a.runner.Run(ctx, c); !ok {
			a.fail(ResultFailureProtocol)
			return unit.ErrFailed
		}
	}

	if becomeActive {
		a.state = Running
		a.result = ResultSuccess
		a.SetActive(graph.Active)
		if a.cfg.WatchdogSec > 0 {
			a.ArmTimer(a.cfg.WatchdogSec, a.onWatchdogTimeout)
		}
	} else {
		a.state = Exited
		a.result = ResultSuccess
		a.SetActive(graph.InActive)
	}
	return nil
}

func (a *Adapter) doStop() error {
	if a.state == Dead {
		return unit.ErrAlready
	}

	ctx := context.Background()
	a.state = Stop
	for _, c := range a.cfg.ExecStop {
		a.runner.Run(ctx, c) //nolint:errcheck // ExecStop commands best-effort by design
	}

	if a.mainPID <= 0 {
		return a.finishStop()
	}

	a.state = StopSigterm
	if err := a.runner.Signal(a.mainPID, syscall.SIGTERM); err != nil {
		return a.finishStop()
	}
	a.ArmTimer(a.cfg.TimeoutStopSec, a.onStopTimeout)
	return nil
}

func (a *Adapter) doReload() error {
	if a.state != Running {
		return unit.ErrBadR
	}
	if len(a.cfg.ExecReload) == 0 {
		return unit.ErrOpNotSupp
	}
	ctx := context.Background()
	a.state = Reload
	for _, c := range a.cfg.ExecReload {
		if ok, _ := a.runner.Run(ctx, c); !ok && !c.IgnoreFailure {
			a.state = Running
			return unit.ErrFailed
		}
	}
	a.state = Running
	a.SetActive(graph.Active) // re-stamp timestamps, re-notify try_finish
	return nil
}

func (a *Adapter) finishStop() error {
	a.DisarmTimer()
	a.mainPID = 0
	a.state = Dead
	a.result = ResultSuccess
	a.SetActive(graph.InActive)
	return nil
}

// onChildExit handles the reactor delivering SIGCHLD for the service's main
// process: it completes a Stop that is waiting after SIGTERM/SIGKILL, and
// handles the main process exiting while Running.
func (a *Adapter) onChildExit(ev reactor.Event) error {
	exitedCleanly := ev.Status == 0
	a.mainPID = 0
	a.DisarmTimer()

	switch a.state {
	case StopSigterm, StopSigkill, Stop:
		a.finishStop()
		return nil
	case Running:
		if !exitedCleanly {
			a.result = ResultFailureExitCode
		}
		if a.cfg.shouldRestart(exitedCleanly) {
			a.scheduleAutoRestart()
			return nil
		}
		if exitedCleanly {
			a.state = Exited
			a.SetActive(graph.InActive)
		} else {
			a.fail(ResultFailureExitCode)
		}
	}
	return nil
}

func (a *Adapter) scheduleAutoRestart() {
	a.state = AutoRestart
	a.restartCount++
	a.ArmTimer(a.cfg.RestartSec, func() {
		a.doStart(true)
	})
}

func (a *Adapter) onWatchdogTimeout() {
	if a.mainPID > 0 {
		a.runner.Signal(a.mainPID, syscall.SIGABRT) //nolint:errcheck
	}
	a.fail(ResultFailureWatchdog)
}

func (a *Adapter) onStopTimeout() {
	switch a.state {
	case StopSigterm:
		a.state = StopSigkill
		if a.mainPID > 0 {
			a.runner.Signal(a.mainPID, syscall.SIGKILL) //nolint:errcheck
		}
		a.ArmTimer(5*time.Second, func() { a.finishStop() })
	default:
		a.finishStop()
	}
}

func (a *Adapter) fail(result Result) {
	a.DisarmTimer()
	a.state = Failed
	a.result = result
	a.SetActive(graph.Failed)
}
