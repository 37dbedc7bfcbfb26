// Package unit defines the Unit Kind Adapter contract (spec.md §4.5): the
// capability surface every concrete kind (service, socket, target, mount,
// path, timer, swap, device, slice, scope) implements, plus the shared
// scaffolding — ExecCommand parsing, the ActionErr→JobResult table, and the
// Driver glue that lets the job engine trigger a unit without knowing its
// kind.
package unit

import (
	"github.com/corevisor/corevisor/internal/graph"
	"github.com/corevisor/corevisor/internal/job"
)

// Kind is the full per-kind capability set a unit's Adapter field
// implements. It embeds graph.KindKit (the subset the graph package itself
// needs, to avoid an import cycle) and adds the remainder of spec.md
// §4.5's table.
type Kind interface {
	graph.KindKit

	// Parse consumes a key/value map from the external unit-file loader,
	// populating kind-specific attributes and validating mutually
	// exclusive options.
	Parse(raw map[string]string) error

	// Trigger is the job engine's entry point: run_kind is the job action
	// being driven (job.KindStart, job.KindStop, ...); force skips the
	// adapter's usual "already there" short-circuit (used by the E3
	// restart-retry scenario's forced re-Start).
	Trigger(kind job.Kind, force bool) error

	// ResetFailed clears a Failed latch back to InActive.
	ResetFailed()

	// EntryColdplug reconciles the adapter's in-memory sub-state with a
	// persisted active-state found on manager startup, without spawning
	// anything (spec.md §4.6's cold-plug pass).
	EntryColdplug(state graph.ActiveState) error
}

// Notifier is implemented by whatever owns the job engine driving a unit's
// transitions. A Kind adapter holds one and calls TryFinish on every
// ActiveState transition; the job package's Engine.TryFinish satisfies it.
type Notifier interface {
	TryFinish(unit string, newState graph.ActiveState)
}
