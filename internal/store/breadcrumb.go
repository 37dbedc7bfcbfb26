package store

// Breadcrumb is the last-frame marker written after every committed job
// engine transaction (spec.md §4.1). The job engine's commit fills in Unit
// only; FrameID, JobID and CommittedAt stay zero. Recover(true) only logs a
// warning when no breadcrumb exists; it does not compare the breadcrumb
// against the loaded tables and queues.
type Breadcrumb struct {
	FrameID     uint64
	JobID       string
	Unit        string
	CommittedAt int64 // realtime microseconds
}
