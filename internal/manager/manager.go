// Package manager implements the Manager Shell: the component that wires
// the reliability store, event reactor, unit graph, job engine and unit
// kind adapters together and owns the process lifecycle (startup,
// main_loop, reload, reexec, shutdown). It is the only package that holds
// all of those handles at once; everything else only sees the narrow
// interfaces it needs (store.Persister, job.Driver, graph.KindKit, ...).
package manager

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/corevisor/corevisor/internal/events"
	"github.com/corevisor/corevisor/internal/graph"
	"github.com/corevisor/corevisor/internal/job"
	"github.com/corevisor/corevisor/internal/reactor"
	"github.com/corevisor/corevisor/internal/store"
	"github.com/corevisor/corevisor/internal/unit"
	"github.com/corevisor/corevisor/internal/unit/presets"
)

// State mirrors the original's Manager::State: what main_loop should do
// once the reactor's current pass settles.
type State int

const (
	StateOk State = iota
	StateReload
	StateReExecute
	StateReboot
	StatePowerOff
	StateHalt
	StateKExec
	StateSuspend
	StateSwitchRoot
)

func (s State) String() string {
	switch s {
	case StateOk:
		return "ok"
	case StateReload:
		return "reload"
	case StateReExecute:
		return "reexecute"
	case StateReboot:
		return "reboot"
	case StatePowerOff:
		return "poweroff"
	case StateHalt:
		return "halt"
	case StateKExec:
		return "kexec"
	case StateSuspend:
		return "suspend"
	case StateSwitchRoot:
		return "switch-root"
	default:
		return "unknown"
	}
}

// DefaultTarget is the unit the manager enqueues a Start job for at the
// end of startup, the Go-native equivalent of systemd's default.target
// symlink resolution (kept as a constant here since the real symlink
// mechanics are out of scope per SPEC_FULL.md's preset expansion note).
const DefaultTarget = "default.target"

// Manager owns every long-lived handle startup() wires together and the
// single goroutine that runs the reactor's event pump.
type Manager struct {
	log zerolog.Logger

	StateDir string

	Store   *store.Store
	Graph   *graph.Graph
	Engine  *job.Engine
	React   *reactor.Reactor
	Driver  *unit.Manager
	Bus     *events.Bus
	Presets presets.Source
	Loader  UnitFileLoader

	unitStates *store.Table[unitStateRecord]
	notifier   unit.Notifier

	state    State
	restored bool
	sigCh    chan os.Signal
}

// Config is the subset of host configuration Startup needs; kept narrow
// so manager doesn't import the config package's env-parsing concerns.
type Config struct {
	StateDir     string
	RemoteMirror store.RemoteMirror
	UnitFileDirs []string
	Presets      presets.Source
}

// New constructs a Manager with an opened reliability store, a fresh unit
// graph and job engine, and a reactor bound to the host poller. It does
// not yet run startup(); callers call Startup to do that.
func New(cfg Config, log zerolog.Logger) (*Manager, error) {
	log = log.With().Str("subsystem", "manager").Logger()

	st, err := store.Open(cfg.StateDir, log, cfg.RemoteMirror)
	if err != nil {
		return nil, fmt.Errorf("manager: open reliability store: %w", err)
	}

	react, err := reactor.New(log)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("manager: create reactor: %w", err)
	}

	g := graph.New(st.Persister())
	driver := unit.NewManager(log)
	engine := job.New(g, driver, st, log)
	unitStates := store.NewTable[unitStateRecord](st, "UNIT_ACTIVE_STATE")

	presetSrc := cfg.Presets
	if presetSrc == nil {
		presetSrc = presets.StaticSource(nil)
	}

	loader := cfg.unitFileLoader()
	bus := events.NewBus(log)

	m := &Manager{
		log:        log,
		StateDir:   cfg.StateDir,
		Store:      st,
		Graph:      g,
		Engine:     engine,
		React:      react,
		Driver:     driver,
		Bus:        bus,
		Presets:    presetSrc,
		Loader:     loader,
		unitStates: unitStates,
		state:      StateOk,
	}
	m.notifier = &persistingNotifier{engine: engine, states: unitStates, bus: bus}
	return m, nil
}

// Restored reports whether Startup has completed at least once.
func (m *Manager) Restored() bool { return m.restored }

// RequestState asks MainLoop to act on s once the reactor's current pass
// settles, the same transition signals themselves request; used by
// internal/control to carry out daemon-reload/daemon-reexec/poweroff/
// reboot/halt/suspend/kexec verbs without control importing the reactor
// or touching Manager internals beyond this one seam.
func (m *Manager) RequestState(s State) {
	m.state = s
	m.React.Exit(0)
}

func (c Config) unitFileLoader() UnitFileLoader {
	if len(c.UnitFileDirs) == 0 {
		return DirLoader{Dirs: []string{"/etc/corevisor/system"}}
	}
	return DirLoader{Dirs: c.UnitFileDirs}
}

// Startup performs spec.md §4.6's startup(reload) sequence: RS recover,
// generator run (delegated — an external collaborator, spec.md §1), preset
// apply, registering signal/timer sources with the reactor, cold-plugging
// every already-known unit, then enqueuing the default target's Start job.
func (m *Manager) Startup(reload bool) error {
	if err := m.Store.Recover(reload); err != nil {
		return fmt.Errorf("manager: recover reliability store: %w", err)
	}

	m.registerSignals()

	if _, err := m.Graph.Load(DefaultTarget); err != nil {
		return fmt.Errorf("manager: load default target: %w", err)
	}

	if err := m.coldplugAll(); err != nil {
		return fmt.Errorf("manager: coldplug: %w", err)
	}

	if !reload {
		if _, err := m.Engine.Exec(DefaultTarget, job.KindStart, job.RunReplace); err != nil {
			return fmt.Errorf("manager: enqueue default target: %w", err)
		}
	}

	m.restored = true
	m.Bus.Emit(events.ManagerLifecycle, "manager", map[string]interface{}{"phase": "startup", "reload": reload})
	return nil
}

// registerSignals wires SIGHUP/SIGTERM/SIGINT/SIGCHLD into the reactor the
// way spec.md §6's signal table describes. The actual OS-level
// signal.Notify forwarding runs on its own goroutine (blocking syscalls
// can't be polled by epoll) and reports back via Reactor.NotifySignal /
// NotifyChild — never mutating manager state directly, preserving the
// single-threaded cooperative invariant.
func (m *Manager) registerSignals() {
	m.sigCh = make(chan os.Signal, 8)
	signal.Notify(m.sigCh, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT, syscall.SIGCHLD)

	go func() {
		for sig := range m.sigCh {
			if s, ok := sig.(syscall.Signal); ok {
				m.React.NotifySignal(int(s))
			}
		}
	}()

	m.React.AddSignal(int(syscall.SIGHUP), reactor.PriorityImportant, func(reactor.Event) error {
		m.log.Info().Msg("SIGHUP received, requesting reload")
		m.RequestState(StateReload)
		return nil
	})
	m.React.AddSignal(int(syscall.SIGTERM), reactor.PriorityImportant, func(reactor.Event) error {
		m.log.Info().Msg("SIGTERM received, requesting re-exec")
		m.RequestState(StateReExecute)
		return nil
	})
	m.React.AddSignal(int(syscall.SIGINT), reactor.PriorityNormal, func(reactor.Event) error {
		m.log.Info().Msg("SIGINT received, starting ctrl-alt-del.target")
		if _, err := m.Engine.Exec("ctrl-alt-del.target", job.KindStart, job.RunReplace); err != nil {
			m.log.Warn().Err(err).Msg("failed to start ctrl-alt-del.target")
		}
		return nil
	})
	m.React.AddSignal(int(syscall.SIGCHLD), reactor.PriorityImportant, m.reapChildren)
}

// reapChildren drains every exited child with a non-blocking Wait4 loop
// (the waitid(P_ALL, WNOHANG|WNOWAIT) + per-pid waitid(P_PID) pattern from
// spec.md §6, adapted to syscall.Wait4's Go-native equivalent) and
// forwards each reaped pid/status into the reactor's child-exit sources.
func (m *Manager) reapChildren(reactor.Event) error {
	for {
		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &ws, syscall.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return nil
		}
		m.React.NotifyChild(pid, ws.ExitStatus())
	}
}

// MainLoop runs the reactor until ctx is cancelled or a shutdown-class
// State is requested, dispatching State transitions the way the
// original's main_loop() does: ReLoad -> reload(), ReExecute -> reexec()
// (returns immediately so the caller can re-exec), any reboot-class state
// -> shutdown(state).
func (m *Manager) MainLoop(ctx context.Context) error {
	for {
		m.state = StateOk
		code := m.React.Run(ctx)

		select {
		case <-ctx.Done():
			return nil
		default:
		}

		switch m.state {
		case StateOk:
			if code != 0 {
				return fmt.Errorf("manager: reactor exited with code %d", code)
			}
			return nil
		case StateReload:
			if err := m.Reload(); err != nil {
				return fmt.Errorf("manager: reload: %w", err)
			}
		case StateReExecute:
			return m.Reexec()
		case StateReboot, StatePowerOff, StateHalt, StateKExec, StateSuspend:
			return m.Shutdown(m.state)
		case StateSwitchRoot:
			return nil
		}
	}
}

// Reload flushes the store, re-queues every known unit for default target
// dependency materialization and cold-plugs again, without touching
// in-flight jobs. Unit files of already-loaded units are not re-read, their
// load state is not cleared and Store.Recover is not called.
func (m *Manager) Reload() error {
	if err := m.Store.Flush(); err != nil {
		return err
	}

	for _, u := range m.Graph.GetAll() {
		m.Graph.PushTargetDepsQueue(u.Name)
	}
	if err := m.coldplugAll(); err != nil {
		return err
	}

	m.Bus.Emit(events.ManagerLifecycle, "manager", map[string]interface{}{"phase": "reload"})
	return nil
}

// Reexec flushes and compacts the reliability store so the replacement
// image recovers from RS rather than starting cold, then execs the
// running binary in place (spec.md §6: "exec self ... so the new image
// recovers from RS rather than starting cold"). On success this never
// returns; the returned error is only reached if exec itself fails.
func (m *Manager) Reexec() error {
	if err := m.prepareReexec(); err != nil {
		return err
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("manager: resolve executable for reexec: %w", err)
	}

	args := append([]string{self}, os.Args[1:]...)
	m.log.Info().Str("exe", self).Msg("re-executing")
	return syscall.Exec(self, args, os.Environ())
}

func (m *Manager) prepareReexec() error {
	if err := m.Store.Flush(); err != nil {
		return fmt.Errorf("manager: flush before reexec: %w", err)
	}
	if err := m.Store.Compact(); err != nil {
		return fmt.Errorf("manager: compact before reexec: %w", err)
	}
	return nil
}

// Shutdown stops every supervised unit (each kind's own sub-state-machine
// escalates SIGTERM to SIGKILL on its own stop-timeout, e.g. the service
// kind's StopSigterm -> StopSigkill transition) and invokes the matching
// reboot-class syscall, per spec.md §6.
func (m *Manager) Shutdown(mode State) error {
	m.log.Info().Str("mode", mode.String()).Msg("shutting down")

	m.terminateAll()
	time.Sleep(2 * time.Second)

	if err := m.Store.Flush(); err != nil {
		m.log.Warn().Err(err).Msg("flush before shutdown failed")
	}

	return reboot(mode)
}

func (m *Manager) terminateAll() {
	for _, u := range m.Graph.GetAll() {
		if ka, ok := u.Adapter.(unit.Kind); ok {
			_ = ka.Trigger(job.KindStop, true)
		}
	}
}
