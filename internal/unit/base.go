package unit

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/corevisor/corevisor/internal/graph"
	"github.com/corevisor/corevisor/internal/reactor"
)

// Base is shared scaffolding every concrete kind adapter embeds: the
// back-reference to its graph.Unit, a Notifier to report state changes
// through, and the Reactor handle used to schedule the per-unit timers
// spec.md §5 names (TimeoutStartSec, TimeoutStopSec, RestartSec,
// WatchdogSec). Kinds drive their own sub-state-machine on top of this.
type Base struct {
	Unit     *graph.Unit
	Notifier Notifier
	React    *reactor.Reactor
	Log      zerolog.Logger

	active   graph.ActiveState
	failed   bool
	timerTok *reactor.Token
}

// NewBase wires a Base for u.
func NewBase(u *graph.Unit, notifier Notifier, react *reactor.Reactor, log zerolog.Logger) Base {
	return Base{
		Unit:     u,
		Notifier: notifier,
		React:    react,
		Log:      log.With().Str("unit", u.Name).Logger(),
		active:   graph.InActive,
	}
}

// ActiveState implements graph.KindKit.
func (b *Base) ActiveState() graph.ActiveState { return b.active }

// SetActive transitions the observable state, stamps it on the underlying
// graph.Unit, and forwards the change to the job engine via Notify.
func (b *Base) SetActive(s graph.ActiveState) {
	b.active = s
	if b.failed && s != graph.Failed {
		b.failed = false
	}
	if s == graph.Failed {
		b.failed = true
	}
	if err := b.Unit.SetActiveState(s); err != nil {
		b.Log.Warn().Err(err).Msg("active-state transition refused")
		return
	}
	if b.Notifier != nil {
		b.Notifier.TryFinish(b.Unit.Name, s)
	}
}

// ResetFailed implements Kind.
func (b *Base) ResetFailed() {
	if b.failed {
		b.SetActive(graph.InActive)
	}
}

// ArmTimer schedules a one-shot monotonic timer that calls fire once d
// elapses, canceling any timer previously armed through this Base (e.g.
// moving from TimeoutStartSec to TimeoutStopSec as the sub-state-machine
// advances). Returns immediately if React is nil (unit-tests that drive
// the state machine synchronously, without a live reactor).
func (b *Base) ArmTimer(d time.Duration, fire func()) {
	b.DisarmTimer()
	if b.React == nil {
		return
	}
	tok := b.React.AddTimer(reactor.EventTimerMonotonic, time.Now().Add(d), 0, reactor.PriorityNormal,
		func(reactor.Event) error {
			fire()
			return nil
		})
	b.timerTok = &tok
}

// DisarmTimer cancels any timer previously armed via ArmTimer.
func (b *Base) DisarmTimer() {
	if b.timerTok == nil || b.React == nil {
		b.timerTok = nil
		return
	}
	_ = b.React.DelSource(*b.timerTok)
	b.timerTok = nil
}
