package graph

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Kind is the unit-kind suffix of a canonical unit name (spec.md §3: a unit
// is keyed by "<stem>.<kind>").
type Kind string

const (
	KindService Kind = "service"
	KindSocket  Kind = "socket"
	KindTarget  Kind = "target"
	KindMount   Kind = "mount"
	KindPath    Kind = "path"
	KindTimer   Kind = "timer"
	KindSwap    Kind = "swap"
	KindDevice  Kind = "device"
	KindSlice   Kind = "slice"
	KindScope   Kind = "scope"
)

// ValidKinds is the closed set of unit kinds (spec.md §3).
var ValidKinds = map[Kind]bool{
	KindService: true, KindSocket: true, KindTarget: true, KindMount: true,
	KindPath: true, KindTimer: true, KindSwap: true, KindDevice: true,
	KindSlice: true, KindScope: true,
}

// KindOf extracts the kind suffix from a canonical unit name.
func KindOf(name string) (Kind, error) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return "", fmt.Errorf("graph: malformed unit name %q", name)
	}
	k := Kind(name[i+1:])
	if !ValidKinds[k] {
		return "", fmt.Errorf("graph: unknown unit kind %q in %q", k, name)
	}
	return k, nil
}

// LoadState tracks how far a unit's configuration has been resolved.
// Invariant (spec.md §3): load-state only advances Stub -> Loaded|NotFound|
// Error; a Merged unit forwards all subsequent operations to its target.
type LoadState int

const (
	Stub LoadState = iota
	Loaded
	NotFound
	Error
	Merged
	Masked
)

func (s LoadState) String() string {
	switch s {
	case Stub:
		return "stub"
	case Loaded:
		return "loaded"
	case NotFound:
		return "not-found"
	case Error:
		return "error"
	case Merged:
		return "merged"
	case Masked:
		return "masked"
	default:
		return "unknown"
	}
}

// ActiveState is the observable run state of a unit.
type ActiveState int

const (
	InActive ActiveState = iota
	Activating
	Active
	Reloading
	DeActivating
	Failed
	Maintenance
)

func (s ActiveState) String() string {
	switch s {
	case InActive:
		return "inactive"
	case Activating:
		return "activating"
	case Active:
		return "active"
	case Reloading:
		return "reloading"
	case DeActivating:
		return "deactivating"
	case Failed:
		return "failed"
	case Maintenance:
		return "maintenance"
	default:
		return "unknown"
	}
}

// TripleTimestamp is (realtime, monotonic, boottime) microseconds recorded
// at key unit-state transitions (spec.md §3).
type TripleTimestamp struct {
	RealtimeUsec  int64
	MonotonicUsec int64
	BoottimeUsec  int64
}

// NowTriple stamps the current instant. BoottimeUsec is approximated with
// the monotonic clock: a from-scratch boot-time clock read requires a
// platform syscall the core explicitly delegates (spec.md §1, "external
// collaborators"); callers that need the exact kernel CLOCK_BOOTTIME can
// substitute their own reading via WithBoottime.
func NowTriple() TripleTimestamp {
	now := time.Now()
	return TripleTimestamp{
		RealtimeUsec:  now.UnixMicro(),
		MonotonicUsec: monotonicUsec(),
		BoottimeUsec:  monotonicUsec(),
	}
}

var processStart = time.Now()

func monotonicUsec() int64 {
	return time.Since(processStart).Microseconds()
}

// WithBoottime returns a copy of t with BoottimeUsec overridden.
func (t TripleTimestamp) WithBoottime(usec int64) TripleTimestamp {
	t.BoottimeUsec = usec
	return t
}

// StateTimestamps records the four named transition timestamps spec.md §3
// calls out: inactive_exit, active_enter, active_exit, inactive_enter, plus
// the catch-all state_change recorded on every transition.
type StateTimestamps struct {
	InactiveExit  TripleTimestamp
	ActiveEnter   TripleTimestamp
	ActiveExit    TripleTimestamp
	InactiveEnter TripleTimestamp
	StateChange   TripleTimestamp
}

// KindKit is the capability surface a unit's adapter exposes back to the
// graph/job engine without the graph package importing the unit package
// (which would create an import cycle, since unit adapters hold a Unit
// back-reference). See internal/unit.Kind for the full contract from
// spec.md §4.5.
type KindKit interface {
	CanStart() bool
	CanStop() bool
	CanReload() bool
	Perpetual() bool
	ActiveState() ActiveState
	DepCheck(rel Relation, dest *Unit) error
}

// Unit is one supervised entity, keyed by its canonical name.
type Unit struct {
	mu sync.RWMutex

	Name string
	Kind Kind

	loadState   LoadState
	activeState ActiveState

	// MergedInto is set when LoadState == Merged; all operations forward
	// to this unit (spec.md §3).
	MergedInto *Unit

	DefaultDependencies bool
	IgnoreOnIsolate     bool

	Timestamps StateTimestamps

	// Adapter is the kind-specific capability implementation (nil until
	// the unit has been loaded and its adapter constructed).
	Adapter KindKit
}

// NewUnit creates a Stub unit for name. Callers should validate name with
// KindOf first.
func NewUnit(name string, kind Kind) *Unit {
	return &Unit{
		Name:        name,
		Kind:        kind,
		loadState:   Stub,
		activeState: InActive,
	}
}

// LoadState returns the unit's current load state.
func (u *Unit) LoadState() LoadState {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.loadState
}

// SetLoadState advances the load state, enforcing the Stub -> {Loaded,
// NotFound, Error} invariant; Masked and Merged are reachable from any
// state (masking/merging can be discovered at any point in a unit's life).
func (u *Unit) SetLoadState(s LoadState) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if s == Masked || s == Merged {
		u.loadState = s
		return nil
	}
	if u.loadState != Stub {
		return fmt.Errorf("graph: unit %s: invalid load-state transition %s -> %s", u.Name, u.loadState, s)
	}
	u.loadState = s
	return nil
}

// ActiveState returns the unit's current active state.
func (u *Unit) ActiveState() ActiveState {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.activeState
}

// SetActiveState transitions the unit's active state and stamps the
// relevant triple timestamps. A masked unit can never become Active
// (spec.md §3 invariant); callers are expected to have already refused to
// schedule a start job against a masked unit, but SetActiveState still
// enforces it defensively.
func (u *Unit) SetActiveState(s ActiveState) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.loadState == Masked && s == Active {
		return fmt.Errorf("graph: unit %s: masked units never become active", u.Name)
	}

	now := NowTriple()
	old := u.activeState

	if old != Active && s == Active {
		u.Timestamps.ActiveEnter = now
	}
	if old == Active && s != Active {
		u.Timestamps.ActiveExit = now
	}
	if old != InActive && s == InActive {
		u.Timestamps.InactiveEnter = now
	}
	if old == InActive && s != InActive {
		u.Timestamps.InactiveExit = now
	}
	u.Timestamps.StateChange = now

	u.activeState = s
	return nil
}
