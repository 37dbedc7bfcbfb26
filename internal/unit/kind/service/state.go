// Package service implements the service Unit Kind Adapter (spec.md §4.5),
// grounded on original_source/coms/service/src/rentry.rs's ServiceState/
// ServiceCommand/ServiceResult sub-state-machine: a forked process driven
// through StartPre -> Start -> StartPost -> Running, and torn down through
// Stop -> StopSigterm -> StopSigkill -> Dead, with AutoRestart looping back
// to StartPre when Restart= says so. The Condition and StopPost states are
// declared but never entered, and ExecStopPost= is parsed but not run.
package service

// State is the service kind's internal sub-state, finer-grained than
// graph.ActiveState (several States map onto the same ActiveState).
type State int

const (
	Dead State = iota
	Condition
	StartPre
	Start
	StartPost
	Running
	Exited
	Reload
	Stop
	StopSigterm
	StopSigkill
	StopPost
	FinalSigterm
	FinalSigkill
	AutoRestart
	Failed
	Cleaning
)

func (s State) String() string {
	switch s {
	case Dead:
		return "dead"
	case Condition:
		return "condition"
	case StartPre:
		return "start-pre"
	case Start:
		return "start"
	case StartPost:
		return "start-post"
	case Running:
		return "running"
	case Exited:
		return "exited"
	case Reload:
		return "reload"
	case Stop:
		return "stop"
	case StopSigterm:
		return "stop-sigterm"
	case StopSigkill:
		return "stop-sigkill"
	case StopPost:
		return "stop-post"
	case FinalSigterm:
		return "final-sigterm"
	case FinalSigkill:
		return "final-sigkill"
	case AutoRestart:
		return "auto-restart"
	case Failed:
		return "failed"
	case Cleaning:
		return "cleaning"
	default:
		return "unknown"
	}
}

// Result is the service-kind-local outcome of its last action, persisted
// alongside State so a crash-recovered adapter knows why it's where it is.
type Result int

const (
	ResultSuccess Result = iota
	ResultFailureProtocol
	ResultFailureResources
	ResultFailureSignal
	ResultFailureStartLimitHit
	ResultFailureWatchdog
	ResultFailureExitCode
	ResultFailureCoreDump
	ResultFailureTimeout
	ResultSkipCondition
	ResultInvalid
)

// Command identifies which exec-command list is currently running.
type Command int

const (
	CommandCondition Command = iota
	CommandStartPre
	CommandStart
	CommandStartPost
	CommandReload
	CommandStop
	CommandStopPost
)

// Type is the Type= directive (spec.md's distillation only needs the two
// kinds that affect when Running is reached: simple reaches Running as
// soon as the main process is forked, oneshot reaches it only after the
// process exits 0 and RemainAfterExit=yes keeps it there).
type Type int

const (
	TypeSimple Type = iota
	TypeOneshot
	TypeForking
	TypeNotify
)

// Restart mirrors systemd-family Restart= policy names.
type Restart int

const (
	RestartNo Restart = iota
	RestartOnSuccess
	RestartOnFailure
	RestartOnAbnormal
	RestartOnWatchdog
	RestartOnAbort
	RestartAlways
)
