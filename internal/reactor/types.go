// Package reactor implements the cooperative, single-threaded event loop
// that drives the manager: one goroutine waits on an epoll set for I/O
// readiness, pending signals, due timers and deferred work, then
// dispatches each ready source's handler in priority order before going
// back to sleep. Handlers never block and never spawn their own event
// sources directly; they call back into the Reactor.
package reactor

import "fmt"

// EventType names the kind of readiness a Source reacts to.
type EventType int

const (
	EventIo EventType = iota
	EventPidfd
	EventSignal
	EventChild
	EventTimerRealtime
	EventTimerBoottime
	EventTimerMonotonic
	EventTimerRealtimeAlarm
	EventTimerBoottimeAlarm
	EventInotify
	EventDefer
	EventPost
	EventExit
	EventWatchdog
)

func (e EventType) String() string {
	switch e {
	case EventIo:
		return "io"
	case EventPidfd:
		return "pidfd"
	case EventSignal:
		return "signal"
	case EventChild:
		return "child"
	case EventTimerRealtime:
		return "timer_realtime"
	case EventTimerBoottime:
		return "timer_boottime"
	case EventTimerMonotonic:
		return "timer_monotonic"
	case EventTimerRealtimeAlarm:
		return "timer_realtime_alarm"
	case EventTimerBoottimeAlarm:
		return "timer_boottime_alarm"
	case EventInotify:
		return "inotify"
	case EventDefer:
		return "defer"
	case EventPost:
		return "post"
	case EventExit:
		return "exit"
	case EventWatchdog:
		return "watchdog"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Priority orders dispatch among sources ready in the same wakeup, lower
// values running first: important sources before normal ones, idle sources
// after the rest of the same pass (not held back to a pass in which
// nothing else is ready).
type Priority int

const (
	PriorityImportant Priority = -100
	PriorityNormal    Priority = 0
	PriorityIdle      Priority = 100
)

// Enabled is a source's dispatch mode: Off sources are skipped entirely,
// On sources fire every time they become ready, OneShot sources disable
// themselves immediately after their first dispatch.
type Enabled int

const (
	Off Enabled = iota
	On
	OneShot
)

// Token identifies a registered source for later SetEnabled/DelSource
// calls.
type Token uint64

// Event is handed to a Source's Dispatch callback describing why it fired.
type Event struct {
	Type   EventType
	Token  Token
	Fd     int
	Signal int
	PID    int
	Status int
	Err    error
}

// Dispatch is the callback invoked when a source becomes ready. Returning
// an error logs it but never stops the reactor; a source wanting to
// remove itself calls Reactor.DelSource from within its own dispatch.
type Dispatch func(Event) error
