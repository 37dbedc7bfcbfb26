package reactor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Reactor is a single-threaded, priority-ordered event loop. All calls
// that register or change sources are safe to make from any goroutine;
// dispatch itself only ever runs on the goroutine that called Run.
type Reactor struct {
	mu        sync.Mutex
	log       zerolog.Logger
	poll      poller
	sources   map[Token]*source
	nextToken Token

	pendingSignals []int
	childEvents    []childEvent
	exitRequested  bool
	exitCode       int
}

// New creates a Reactor bound to the platform poller (epoll on Linux, a
// portable timer-only fallback elsewhere).
func New(log zerolog.Logger) (*Reactor, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	return &Reactor{
		log:     log.With().Str("subsystem", "reactor").Logger(),
		poll:    p,
		sources: make(map[Token]*source),
	}, nil
}

func (r *Reactor) allocToken() Token {
	r.nextToken++
	return r.nextToken
}

// AddIo registers fd for readability notifications. Linux-only; on the
// portable fallback poller the source is recorded but will never fire on
// its own (only timers, signals and deferred work do).
func (r *Reactor) AddIo(fd int, priority Priority, dispatch Dispatch) (Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.poll.addFD(fd); err != nil {
		return 0, err
	}
	tok := r.allocToken()
	r.sources[tok] = &source{token: tok, eventType: EventIo, priority: priority, enabled: On, dispatch: dispatch, fd: fd}
	return tok, nil
}

// AddSignal registers interest in a unix signal number. The caller's
// process-wide signal.Notify wiring (set up once by the manager at
// startup) forwards matching signals into NotifySignal, which this
// source reacts to on the next dispatch pass.
func (r *Reactor) AddSignal(sig int, priority Priority, dispatch Dispatch) Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok := r.allocToken()
	r.sources[tok] = &source{token: tok, eventType: EventSignal, priority: priority, enabled: On, dispatch: dispatch, sig: sig}
	return tok
}

// AddChild registers interest in a specific pid's termination (0 means
// any child). Actual reaping happens in the manager's SIGCHLD handler,
// which calls NotifyChild with the reaped pid and status.
func (r *Reactor) AddChild(pid int, priority Priority, dispatch Dispatch) Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok := r.allocToken()
	r.sources[tok] = &source{token: tok, eventType: EventChild, priority: priority, enabled: On, dispatch: dispatch, pid: pid}
	return tok
}

// AddTimer registers a one-shot (interval == 0) or repeating timer.
func (r *Reactor) AddTimer(eventType EventType, when time.Time, interval time.Duration, priority Priority, dispatch Dispatch) Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok := r.allocToken()
	r.sources[tok] = &source{
		token: tok, eventType: eventType, priority: priority, enabled: On, dispatch: dispatch,
		deadline: when, interval: interval,
	}
	r.poll.wake()
	return tok
}

// AddCalendar registers a timer whose next deadline is recomputed by
// next after every fire, the pattern OnCalendar= timer units use with a
// cron.Schedule behind next.
func (r *Reactor) AddCalendar(first time.Time, next scheduleFunc, priority Priority, dispatch Dispatch) Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok := r.allocToken()
	r.sources[tok] = &source{
		token: tok, eventType: EventTimerRealtime, priority: priority, enabled: On, dispatch: dispatch,
		deadline: first, calendar: next,
	}
	r.poll.wake()
	return tok
}

// AddDefer registers a source that fires exactly once on the next loop
// iteration regardless of any other readiness, used to break up
// synchronous call chains (spec.md's "defer" event type).
func (r *Reactor) AddDefer(priority Priority, dispatch Dispatch) Token {
	return r.AddTimer(EventDefer, time.Time{}, 0, priority, dispatch)
}

// DelSource removes a registered source.
func (r *Reactor) DelSource(tok Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.sources[tok]
	if !ok {
		return nil
	}
	if src.eventType == EventIo {
		if err := r.poll.delFD(src.fd); err != nil {
			return err
		}
	}
	delete(r.sources, tok)
	return nil
}

// SetEnabled changes a source's dispatch mode without removing it.
func (r *Reactor) SetEnabled(tok Token, e Enabled) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if src, ok := r.sources[tok]; ok {
		src.enabled = e
	}
}

// NotifySignal records that sig was delivered; consumed on the next
// dispatch pass. Safe to call from the process's signal.Notify forwarder
// goroutine.
func (r *Reactor) NotifySignal(sig int) {
	r.mu.Lock()
	r.pendingSignals = append(r.pendingSignals, sig)
	r.mu.Unlock()
	r.poll.wake()
}

// NotifyChild records a reaped child's exit for EventChild sources
// matching its pid (or pid==0 wildcard sources).
func (r *Reactor) NotifyChild(pid, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, src := range r.sources {
		if src.eventType == EventChild && src.enabled != Off && (src.pid == 0 || src.pid == pid) {
			r.childEvents = append(r.childEvents, childEvent{token: src.token, pid: pid, status: status})
		}
	}
	r.poll.wake()
}

type childEvent struct {
	token  Token
	pid    int
	status int
}

// Exit requests the loop stop after the current dispatch pass.
func (r *Reactor) Exit(code int) {
	r.mu.Lock()
	r.exitRequested = true
	r.exitCode = code
	r.mu.Unlock()
	r.poll.wake()
}

// Run drives the loop until ctx is cancelled or Exit is called, returning
// the exit code passed to Exit (0 if ctx cancellation stopped it first).
func (r *Reactor) Run(ctx context.Context) int {
	for {
		select {
		case <-ctx.Done():
			return 0
		default:
		}

		timeout := r.nextTimeout()
		if _, err := r.poll.wait(timeout); err != nil {
			r.log.Error().Err(err).Msg("poller wait failed")
			continue
		}

		if stop, code := r.dispatchReady(); stop {
			return code
		}

		select {
		case <-ctx.Done():
			return 0
		default:
		}
	}
}

func (r *Reactor) nextTimeout() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.exitRequested || len(r.pendingSignals) > 0 || len(r.childEvents) > 0 {
		return 0
	}

	var soonest time.Time
	now := time.Now()
	for _, src := range r.sources {
		if src.enabled == Off {
			continue
		}
		switch src.eventType {
		case EventTimerRealtime, EventTimerBoottime, EventTimerMonotonic,
			EventTimerRealtimeAlarm, EventTimerBoottimeAlarm, EventDefer:
			if src.deadline.IsZero() {
				return 0
			}
			if soonest.IsZero() || src.deadline.Before(soonest) {
				soonest = src.deadline
			}
		}
	}
	if soonest.IsZero() {
		return -1
	}
	if d := soonest.Sub(now); d > 0 {
		return d
	}
	return 0
}

// dispatchReady collects every currently-ready source, sorts by
// priority, and invokes each dispatch callback in turn. Returns
// (true, code) if Exit was requested during this pass.
func (r *Reactor) dispatchReady() (bool, int) {
	r.mu.Lock()
	now := time.Now()
	var ready []*source
	var events []Event

	signals := r.pendingSignals
	r.pendingSignals = nil
	for _, sig := range signals {
		for _, src := range r.sources {
			if src.eventType == EventSignal && src.enabled != Off && src.sig == sig {
				ready = append(ready, src)
				events = append(events, Event{Type: EventSignal, Token: src.token, Signal: sig})
			}
		}
	}

	children := r.childEvents
	r.childEvents = nil
	for _, ce := range children {
		if src, ok := r.sources[ce.token]; ok && src.enabled != Off {
			ready = append(ready, src)
			events = append(events, Event{Type: EventChild, Token: src.token, PID: ce.pid, Status: ce.status})
		}
	}

	for _, src := range r.sources {
		if src.enabled == Off {
			continue
		}
		switch src.eventType {
		case EventTimerRealtime, EventTimerBoottime, EventTimerMonotonic,
			EventTimerRealtimeAlarm, EventTimerBoottimeAlarm, EventDefer:
			if src.deadline.IsZero() || !src.deadline.After(now) {
				ready = append(ready, src)
				events = append(events, Event{Type: src.eventType, Token: src.token})
				if src.calendar != nil {
					src.deadline = src.calendar(now)
				} else if src.interval > 0 {
					src.deadline = now.Add(src.interval)
				} else {
					src.enabled = Off
				}
			}
		}
	}

	exitRequested, exitCode := r.exitRequested, r.exitCode
	r.exitRequested = false
	r.mu.Unlock()

	sort.Stable(byIndex{ready, events})
	for i, src := range ready {
		if err := src.dispatch(events[i]); err != nil {
			r.log.Warn().Err(err).Str("event_type", events[i].Type.String()).Msg("source dispatch returned error")
		}
		if src.enabled == OneShot {
			r.SetEnabled(src.token, Off)
		}
	}

	return exitRequested, exitCode
}

// byIndex sorts two parallel slices (sources and their events) together
// by priority.
type byIndex struct {
	sources []*source
	events  []Event
}

func (b byIndex) Len() int { return len(b.sources) }
func (b byIndex) Swap(i, j int) {
	b.sources[i], b.sources[j] = b.sources[j], b.sources[i]
	b.events[i], b.events[j] = b.events[j], b.events[i]
}
func (b byIndex) Less(i, j int) bool {
	if b.sources[i].priority != b.sources[j].priority {
		return b.sources[i].priority < b.sources[j].priority
	}
	return b.sources[i].token < b.sources[j].token
}

// Close releases the underlying poller.
func (r *Reactor) Close() error {
	return r.poll.close()
}
