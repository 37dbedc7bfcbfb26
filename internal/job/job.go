// Package job implements the transactional job engine: turning a single
// "start this unit" request into a consistent multi-unit transaction
// (Expand), merging it against whatever is already queued (Affect),
// checking the result is acyclic and permitted (Verify), and finally
// installing it as the unit table's new trigger/suspended jobs (Commit).
package job

import (
	"github.com/google/uuid"
	"github.com/corevisor/corevisor/internal/graph"
)

// Kind is the action a Job asks the unit kind adapter to perform.
type Kind int

const (
	KindStart Kind = iota
	KindStop
	KindReload
	KindRestart
	KindTryRestart
	KindVerify
	// KindNop is what a TryReload/TryRestart request collapses
	// into (Engine.expand's job_merge_unit step) when the unit's current
	// ActiveState makes the requested action meaningless; it finishes
	// immediately with ResultNoOp and never reaches a Driver.
	KindNop
	// KindTryReload and KindReloadOrStart only ever exist for the duration
	// of a single exec() call: job_merge_unit collapses them into
	// KindReload, KindStart or KindNop before any Job is constructed.
	KindTryReload
	KindReloadOrStart
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindStop:
		return "stop"
	case KindReload:
		return "reload"
	case KindRestart:
		return "restart"
	case KindTryRestart:
		return "try-restart"
	case KindVerify:
		return "verify"
	case KindNop:
		return "nop"
	case KindTryReload:
		return "try-reload"
	case KindReloadOrStart:
		return "reload-or-start"
	default:
		return "unknown"
	}
}

// RunKind governs how a new transaction merges with jobs already queued
// against the same units.
type RunKind int

const (
	// RunReplace cancels and replaces any mergeable conflicting job.
	RunReplace RunKind = iota
	// RunFail aborts the whole transaction if any unit already has an
	// irreconcilable job queued.
	RunFail
	// RunIsolate additionally queues a Stop job for every unit not in the
	// new transaction's closure (used by isolate-style target switches).
	RunIsolate
	// RunReplaceIrreversibly behaves like RunReplace but marks the
	// installed jobs so a later RunReplace transaction cannot bump them.
	RunReplaceIrreversibly
)

// Stage tracks a job's progress through the engine pipeline.
type Stage int

const (
	StageQueued Stage = iota
	StageExpanded
	StageAffected
	StageVerified
	StageCommitted
	StageRunning
	StageFinished
)

func (s Stage) String() string {
	switch s {
	case StageQueued:
		return "queued"
	case StageExpanded:
		return "expanded"
	case StageAffected:
		return "affected"
	case StageVerified:
		return "verified"
	case StageCommitted:
		return "committed"
	case StageRunning:
		return "running"
	case StageFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Result is the terminal outcome reported to job waiters.
type Result int

const (
	ResultPending Result = iota
	ResultDone
	ResultCanceled
	ResultTimedOut
	ResultFailed
	ResultDependency
	ResultSkipped
	ResultInvalidOp
	ResultAssertFailed
	ResultNoOp
)

func (r Result) String() string {
	switch r {
	case ResultPending:
		return "pending"
	case ResultDone:
		return "done"
	case ResultCanceled:
		return "canceled"
	case ResultTimedOut:
		return "timed-out"
	case ResultFailed:
		return "failed"
	case ResultDependency:
		return "dependency"
	case ResultSkipped:
		return "skipped"
	case ResultInvalidOp:
		return "invalid-op"
	case ResultAssertFailed:
		return "assert-failed"
	case ResultNoOp:
		return "no-op"
	default:
		return "unknown"
	}
}

// Job is one unit's pending state-change request within a transaction.
type Job struct {
	ID          string
	Unit        string
	Kind        Kind
	RunKind     RunKind
	Stage       Stage
	Result      Result
	Irreversible bool
	IgnoreFailure bool
	CreatedAt   graph.TripleTimestamp

	// Phase is the action Engine.run actually dispatches to the Driver.
	// It equals Kind except for Restart, which runs KindStop first and
	// flips to KindStart once the unit has gone InActive (spec.md §4.4).
	Phase Kind

	// After lists job IDs that must reach StageFinished before this job
	// is eligible to run (the After-atom ordering filled in by commit).
	After []string

	waiters []chan Result
}

func newJob(unit string, kind Kind, runKind RunKind) *Job {
	phase := kind
	if kind == KindRestart {
		phase = KindStop
	}
	return &Job{
		ID:        uuid.NewString(),
		Unit:      unit,
		Kind:      kind,
		RunKind:   runKind,
		Stage:     StageQueued,
		Result:    ResultPending,
		CreatedAt: graph.NowTriple(),
		Phase:     phase,
	}
}

// Wait returns a channel that receives this job's Result exactly once,
// when it reaches StageFinished.
func (j *Job) Wait() <-chan Result {
	ch := make(chan Result, 1)
	if j.Stage == StageFinished {
		ch <- j.Result
		return ch
	}
	j.waiters = append(j.waiters, ch)
	return ch
}

func (j *Job) finish(result Result) {
	j.Result = result
	j.Stage = StageFinished
	for _, ch := range j.waiters {
		ch <- result
		close(ch)
	}
	j.waiters = nil
}

// Record is the msgpack-serializable projection of a Job persisted to
// the reliability store's job table, surviving a re-exec.
type Record struct {
	ID            string
	Unit          string
	Kind          int
	RunKind       int
	Stage         int
	Result        int
	Irreversible  bool
	IgnoreFailure bool
	CreatedAtUsec int64
	After         []string
	Phase         int
}

func toRecord(j *Job) Record {
	return Record{
		ID: j.ID, Unit: j.Unit, Kind: int(j.Kind), RunKind: int(j.RunKind),
		Stage: int(j.Stage), Result: int(j.Result), Irreversible: j.Irreversible,
		IgnoreFailure: j.IgnoreFailure,
		CreatedAtUsec: j.CreatedAt.RealtimeUsec, After: append([]string(nil), j.After...),
		Phase: int(j.Phase),
	}
}

func fromRecord(r Record) *Job {
	return &Job{
		ID: r.ID, Unit: r.Unit, Kind: Kind(r.Kind), RunKind: RunKind(r.RunKind),
		Stage: Stage(r.Stage), Result: Result(r.Result), Irreversible: r.Irreversible,
		IgnoreFailure: r.IgnoreFailure,
		CreatedAt:     graph.TripleTimestamp{RealtimeUsec: r.CreatedAtUsec},
		After:         append([]string(nil), r.After...),
		Phase:         Kind(r.Phase),
	}
}
