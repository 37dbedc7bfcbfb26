package manager

import (
	"fmt"
	"time"

	"github.com/corevisor/corevisor/internal/job"
)

// StartUnit, StopUnit, RestartUnit and ReloadUnit are the manager's
// programmatic entry points for the abstract control verb set (spec.md
// §6): internal/control's command handlers call these rather than
// touching the job engine directly, keeping the wire codec ignorant of
// job engine internals.
func (m *Manager) StartUnit(name string) (*job.Job, error) {
	return m.execTimed(name, job.KindStart, job.RunReplace, "start")
}

func (m *Manager) StopUnit(name string) (*job.Job, error) {
	return m.execTimed(name, job.KindStop, job.RunReplace, "stop")
}

func (m *Manager) RestartUnit(name string) (*job.Job, error) {
	return m.execTimed(name, job.KindRestart, job.RunReplace, "restart")
}

func (m *Manager) ReloadUnit(name string) (*job.Job, error) {
	return m.execTimed(name, job.KindReload, job.RunReplace, "reload")
}

// IsolateUnit starts name and stops everything not pulled into its
// closure, the RunIsolate transaction mode (spec.md's E1 scenario).
func (m *Manager) IsolateUnit(name string) (*job.Job, error) {
	return m.execTimed(name, job.KindStart, job.RunIsolate, "isolate")
}

// ResetFailedUnit clears a unit's Failed state so it can be started again.
func (m *Manager) ResetFailedUnit(name string) error {
	u, ok := m.Graph.Get(name)
	if !ok {
		return fmt.Errorf("manager: unknown unit %q", name)
	}
	if ka, ok := u.Adapter.(interface{ ResetFailed() }); ok {
		ka.ResetFailed()
	}
	return nil
}

func (m *Manager) execTimed(name string, kind job.Kind, runKind job.RunKind, verb string) (*job.Job, error) {
	start := time.Now()
	j, err := m.Engine.Exec(name, kind, runKind)
	m.logSlowTrigger(name, verb, time.Since(start))
	return j, err
}
