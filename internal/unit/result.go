package unit

import "github.com/corevisor/corevisor/internal/job"

// ActionErr is the fixed error taxonomy a Kind's Trigger returns (spec.md
// §4.5's ActionErr table), distinct from Go's error interface so the
// mapping to job.Result is total and exhaustive rather than string-matched.
type ActionErr int

const (
	// ErrNone is the zero value: Trigger succeeded, no error to map.
	ErrNone ActionErr = iota
	ErrAgain
	ErrAlready
	ErrBadR
	ErrNoExec
	ErrProto
	ErrOpNotSupp
	ErrNolink
	ErrStale
	ErrFailed
	ErrInval
	ErrBusy
	ErrNoent
)

func (e ActionErr) Error() string {
	switch e {
	case ErrNone:
		return "none"
	case ErrAgain:
		return "EAGAIN: try again"
	case ErrAlready:
		return "EALREADY: already in the requested state"
	case ErrBadR:
		return "EBADR: invalid request for current state"
	case ErrNoExec:
		return "ENOEXEC: nothing to execute"
	case ErrProto:
		return "EPROTO: protocol violation"
	case ErrOpNotSupp:
		return "EOPNOTSUPP: operation not supported by this kind"
	case ErrNolink:
		return "ENOLINK: missing dependency"
	case ErrStale:
		return "ESTALE: configuration changed underneath the unit"
	case ErrFailed:
		return "EFAILED: action failed"
	case ErrInval:
		return "EINVAL: invalid configuration"
	case ErrBusy:
		return "EBUSY: unit busy"
	case ErrNoent:
		return "ENOENT: nothing there to act on"
	default:
		return "unknown action error"
	}
}

// MapActionErr implements spec.md §4.5's fixed Trigger-error-to-JobResult
// table. A nil err (success) maps to ResultDone; any error not an
// ActionErr maps conservatively to ResultFailed.
func MapActionErr(err error) job.Result {
	if err == nil {
		return job.ResultDone
	}
	ae, ok := err.(ActionErr)
	if !ok {
		return job.ResultFailed
	}
	switch ae {
	case ErrAgain:
		return job.ResultPending // retry later, job stays Running
	case ErrAlready:
		return job.ResultDone
	case ErrBadR:
		return job.ResultSkipped
	case ErrNoExec:
		return job.ResultInvalidOp
	case ErrProto:
		return job.ResultAssertFailed
	case ErrOpNotSupp:
		return job.ResultInvalidOp
	case ErrNolink:
		return job.ResultDependency
	case ErrStale:
		return job.ResultNoOp
	case ErrFailed, ErrInval, ErrBusy, ErrNoent:
		return job.ResultFailed
	default:
		return job.ResultFailed
	}
}
