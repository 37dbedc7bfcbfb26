package unit

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/corevisor/corevisor/internal/graph"
	"github.com/corevisor/corevisor/internal/job"
)

// Manager implements job.Driver by dispatching to whatever Kind adapter a
// unit's graph.Unit carries, turning the adapter's ActionErr result into
// the retry/defer behavior spec.md §4.4's run() step describes: EAgain
// keeps the job Running for a later retry; every other error is returned
// as a job.DriverError carrying MapActionErr's result, and the engine
// finishes the job with that result.
type Manager struct {
	log zerolog.Logger
}

// NewManager builds a Manager. The zerolog.Logger is tagged with the
// "unit" subsystem the same way the job and store packages tag theirs.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{log: log.With().Str("subsystem", "unit").Logger()}
}

func (m *Manager) adapterOf(u *graph.Unit) (Kind, error) {
	k, ok := u.Adapter.(Kind)
	if !ok || k == nil {
		return nil, fmt.Errorf("unit: %s has no kind adapter loaded", u.Name)
	}
	return k, nil
}

// Start implements job.Driver.
func (m *Manager) Start(u *graph.Unit) error { return m.trigger(u, job.KindStart, false) }

// Stop implements job.Driver.
func (m *Manager) Stop(u *graph.Unit) error { return m.trigger(u, job.KindStop, false) }

// Reload implements job.Driver.
func (m *Manager) Reload(u *graph.Unit) error { return m.trigger(u, job.KindReload, false) }

// ForceStart re-issues Start with force=true (the E3 restart-retry
// scenario's "new Start job appears with attr force=true").
func (m *Manager) ForceStart(u *graph.Unit) error { return m.trigger(u, job.KindStart, true) }

func (m *Manager) trigger(u *graph.Unit, kind job.Kind, force bool) error {
	adapter, err := m.adapterOf(u)
	if err != nil {
		return job.NewDriverError(job.ResultFailed, err)
	}

	err = adapter.Trigger(kind, force)
	if err == nil {
		return nil
	}

	if ae, ok := err.(ActionErr); ok && ae == ErrAgain {
		// EAgain: the adapter will call TryFinish once the underlying
		// condition resolves (e.g. a child pid exits); the job stays
		// Running. Not an error from the driver's point of view.
		m.log.Debug().Str("unit", u.Name).Str("kind", kind.String()).Msg("trigger returned EAGAIN, awaiting async completion")
		return nil
	}

	m.log.Warn().Err(err).Str("unit", u.Name).Str("kind", kind.String()).Msg("trigger failed")
	return job.NewDriverError(MapActionErr(err), err)
}
