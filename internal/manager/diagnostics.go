package manager

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostSnapshot is a cheap point-in-time read of host resource pressure,
// attached to the warning log when a unit action is taking unusually
// long so an operator can tell "slow service" from "loaded
// host" at a glance.
type HostSnapshot struct {
	LoadAvg1        float64
	MemUsedPercent  float64
	SampledAt       time.Time
}

// SampleHost reads /proc-derived load and memory figures via gopsutil.
// Errors from either reading are swallowed into zero values: diagnostics
// are best-effort annotations, never something a caller should fail on.
func SampleHost(ctx context.Context) HostSnapshot {
	snap := HostSnapshot{SampledAt: time.Now()}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		snap.LoadAvg1 = avg.Load1
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemUsedPercent = vm.UsedPercent
	}
	return snap
}

// slowOperationThreshold is how long an Engine.Exec call for a unit may
// run before the manager attaches a HostSnapshot to its warning log.
const slowOperationThreshold = 5 * time.Second

// logSlowTrigger samples and logs host diagnostics if elapsed exceeds the
// slow-operation threshold; called by execTimed after each Engine.Exec
// call it times.
func (m *Manager) logSlowTrigger(unitName, verb string, elapsed time.Duration) {
	if elapsed < slowOperationThreshold {
		return
	}
	snap := SampleHost(context.Background())
	m.log.Warn().
		Str("unit", unitName).
		Str("verb", verb).
		Dur("elapsed", elapsed).
		Float64("load1", snap.LoadAvg1).
		Float64("mem_used_percent", snap.MemUsedPercent).
		Msg("unit action took unusually long")
}
