package job

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/corevisor/corevisor/internal/graph"
	"github.com/corevisor/corevisor/internal/store"
)

// Driver is the unit kind adapter's view as seen by the job engine: it
// never decides anything on its own, it just carries out a committed
// job's action and reports the unit's actual state back via try_finish.
// Declared here (not in the unit package) so job does not import unit,
// matching the graph package's KindKit/Persister pattern.
type Driver interface {
	Start(u *graph.Unit) error
	Stop(u *graph.Unit) error
	Reload(u *graph.Unit) error
}

// txEntry is one unit's computed action within an in-flight transaction.
type txEntry struct {
	unit          string
	kind          Kind
	ignoreFailure bool
}

// Engine is the job engine: spec.md §2.5's exec (Expand, Affect, Verify,
// Commit) plus try_finish, sitting on a Graph and a Table.
type Engine struct {
	g      *graph.Graph
	jobs   *Table
	driver Driver
	log    zerolog.Logger

	store     *store.Store
	persisted *store.Table[Record]
}

// New builds an Engine. store and persisted may be nil for tests that
// don't care about durability.
func New(g *graph.Graph, driver Driver, st *store.Store, log zerolog.Logger) *Engine {
	e := &Engine{
		g:      g,
		jobs:   NewTable(),
		driver: driver,
		log:    log.With().Str("subsystem", "job").Logger(),
		store:  st,
	}
	if st != nil {
		e.persisted = store.NewTable[Record](st, "JOBS")
		for _, rec := range e.persisted.Entries() {
			j := fromRecord(rec)
			if j.Stage == StageCommitted || j.Stage == StageRunning {
				e.jobs.installTrigger(j)
			} else {
				e.jobs.installSuspended(j)
			}
		}
	}
	return e
}

// Jobs returns the engine's job table, read-only introspection callers
// (the status HTTP mux) use to list in-flight jobs.
func (e *Engine) Jobs() *Table { return e.jobs }

// Exec runs the full pipeline for a single request: Expand, Affect,
// Verify, Commit. On success it returns the job tracking the requested
// unit (callers can Wait() on it); transactional side-effect jobs for
// pulled-in dependencies are installed but not returned individually.
func (e *Engine) Exec(unit string, kind Kind, runKind RunKind) (*Job, error) {
	u, ok := e.g.Get(unit)
	if !ok {
		return nil, fmt.Errorf("job: unit %q not loaded", unit)
	}

	tx, err := e.expand(u, kind)
	if err != nil {
		return nil, fmt.Errorf("job: expand: %w", err)
	}

	if err := e.affect(tx, runKind); err != nil {
		return nil, fmt.Errorf("job: affect: %w", err)
	}

	if err := e.verify(tx, unit); err != nil {
		return nil, err
	}

	return e.commit(tx, unit, runKind)
}

// expand walks the dependency graph from u, per spec.md §4.3's atom
// semantics, building the set of units the requested action pulls in.
// The requested kind is first run through mergeUnitKind (job_merge_unit),
// collapsing TryReload/TryRestart/ReloadOrStart down to whatever concrete
// action the unit's current state actually calls for.
func (e *Engine) expand(u *graph.Unit, kind Kind) (map[string]*txEntry, error) {
	kind = mergeUnitKind(u, kind)
	tx := make(map[string]*txEntry)
	tx[u.Name] = &txEntry{unit: u.Name, kind: kind}

	switch kind {
	case KindStart, KindRestart:
		e.expandPullIn(tx, u.Name, KindStart)
	case KindStop:
		e.expandPropagate(tx, u.Name, KindStop)
	case KindReload:
		e.expandReloadPropagation(tx, u.Name)
	}

	return tx, nil
}

// mergeUnitKind implements spec.md §4.4's job_merge_unit: TryReload and
// TryRestart degrade to Nop when the unit isn't active (there is nothing
// to reload or restart), otherwise becoming Reload/Restart; ReloadOrStart
// resolves to Reload if the unit is already active, Start otherwise. The
// result is never one of these three request-only kinds, so no Job is
// ever constructed carrying them.
func mergeUnitKind(u *graph.Unit, kind Kind) Kind {
	active := u.ActiveState() == graph.Active || u.ActiveState() == graph.Reloading
	switch kind {
	case KindTryReload:
		if active {
			return KindReload
		}
		return KindNop
	case KindTryRestart:
		if active {
			return KindRestart
		}
		return KindNop
	case KindReloadOrStart:
		if active {
			return KindReload
		}
		return KindStart
	default:
		return kind
	}
}

// expandPullIn recursively adds units pulled in by starting unit `name`
// (PullInStart/PullInStartIgnored), and queues a Stop for any unit that
// conflicts with it (PullInStop/PullInStopIgnored).
func (e *Engine) expandPullIn(tx map[string]*txEntry, name string, kind Kind) {
	for _, dest := range e.g.DepGetsAtom(name, graph.PullInStart) {
		if _, exists := tx[dest]; exists {
			continue
		}
		tx[dest] = &txEntry{unit: dest, kind: kind}
		e.expandPullIn(tx, dest, kind)
	}
	for _, dest := range e.g.DepGetsAtom(name, graph.PullInStartIgnored) {
		if _, exists := tx[dest]; exists {
			continue
		}
		tx[dest] = &txEntry{unit: dest, kind: kind, ignoreFailure: true}
		e.expandPullIn(tx, dest, kind)
	}
	for _, dest := range e.g.DepGetsAtom(name, graph.PullInStop) {
		if _, exists := tx[dest]; exists {
			continue
		}
		tx[dest] = &txEntry{unit: dest, kind: KindStop}
	}
	for _, dest := range e.g.DepGetsAtom(name, graph.PullInStopIgnored) {
		if _, exists := tx[dest]; exists {
			continue
		}
		tx[dest] = &txEntry{unit: dest, kind: KindStop, ignoreFailure: true}
	}
}

// expandPropagate recursively adds dependents of `name` that must also
// stop when `name` stops (PropagateStop/PropagateStopFailure).
func (e *Engine) expandPropagate(tx map[string]*txEntry, name string, kind Kind) {
	for _, dest := range e.dependentsWithAtom(name, graph.PropagateStop) {
		if _, exists := tx[dest]; exists {
			continue
		}
		tx[dest] = &txEntry{unit: dest, kind: kind}
		e.expandPropagate(tx, dest, kind)
	}
}

// expandReloadPropagation adds the units reached through PropagateRestart
// edges (PropagatesReloadTo and the like) as Reload jobs, one hop only:
// their own propagation edges are not followed.
func (e *Engine) expandReloadPropagation(tx map[string]*txEntry, name string) {
	for _, dest := range e.g.DepGetsAtom(name, graph.PropagateRestart) {
		if _, exists := tx[dest]; exists {
			continue
		}
		tx[dest] = &txEntry{unit: dest, kind: KindReload}
	}
}

// dependentsWithAtom finds units that point at `name` via a relation
// whose *inverse* carries atom — i.e. units depending on name the way
// Requires depends on its target, found by walking name's own reverse
// edges (RequiredBy, WantedBy, ...).
func (e *Engine) dependentsWithAtom(name string, atom graph.Atom) []string {
	seen := make(map[string]bool)
	var out []string
	for _, rel := range graph.AllRelations() {
		if graph.AtomsOf(graph.Inverse(rel))&atom == 0 {
			continue
		}
		for _, dest := range e.g.DepGets(name, rel) {
			if !seen[dest] {
				seen[dest] = true
				out = append(out, dest)
			}
		}
	}
	return out
}

// affect merges the transaction against whatever is already queued. With
// RunReplace (the default) an existing mergeable job is canceled and
// replaced; RunFail aborts the whole transaction instead. RunIsolate
// additionally queues a Stop job for every loaded unit outside the
// expansion set, unless the unit is marked IgnoreOnIsolate (spec.md's E1
// scenario: `exec({a.target,Start},Isolate)` -> `[Start a, Start b, Stop
// c]`).
func (e *Engine) affect(tx map[string]*txEntry, runKind RunKind) error {
	for unit := range tx {
		if existing, ok := e.jobs.Trigger(unit); ok {
			if existing.Irreversible && runKind != RunReplaceIrreversibly {
				return fmt.Errorf("job: unit %q has an irreversible job in progress", unit)
			}
			if runKind == RunFail {
				return fmt.Errorf("job: unit %q already has a job queued", unit)
			}
		}
	}

	if runKind == RunIsolate {
		for _, u := range e.g.GetAll() {
			if u.LoadState() != graph.Loaded {
				continue
			}
			if _, inTx := tx[u.Name]; inTx {
				continue
			}
			if u.IgnoreOnIsolate {
				continue
			}
			tx[u.Name] = &txEntry{unit: u.Name, kind: KindStop}
		}
	}

	return nil
}

// verify builds the After-ordering graph restricted to this transaction
// and runs Tarjan's SCC against it. A non-trivial component is a cycle;
// it is resolved by repeatedly dropping an After edge belonging to a
// deletable job (anything but the anchor — the originally requested
// unit) and re-running SCC, until the graph is acyclic. If a cycle ever
// reaches the anchor itself, the job cannot be deleted to break it, so
// the whole transaction is rejected with ErrCycle and the job table is
// left untouched (spec.md's E2 scenario).
func (e *Engine) verify(tx map[string]*txEntry, anchor string) error {
	nodes := make([]string, 0, len(tx))
	for unit := range tx {
		nodes = append(nodes, unit)
	}

	adj := make(map[string][]string, len(tx))
	for unit := range tx {
		for _, dest := range e.g.DepGetsAtom(unit, graph.AtomAfter) {
			if _, inTx := tx[dest]; inTx {
				adj[unit] = append(adj[unit], dest)
			}
		}
	}

	for {
		comp := firstCycle(cycles(nodes, adj))
		if comp == nil {
			return nil
		}

		if containsUnit(comp, anchor) {
			e.log.Warn().Strs("units", comp).Str("anchor", anchor).Msg("dependency cycle reaches the requested unit, aborting transaction")
			return ErrCycle
		}

		from, to, ok := edgeWithinCycle(comp, adj)
		if !ok {
			// cycles() only reports components closed by a real adj edge;
			// this would mean a bug in that computation, not a resolvable
			// transaction state.
			return ErrCycle
		}
		e.log.Warn().Str("from", from).Str("to", to).Msg("breaking dependency cycle in transaction")
		e.g.DepRemove(from, graph.After, to)
		adj[from] = removeUnit(adj[from], to)
	}
}

// firstCycle returns the first non-trivial component, or nil if comps
// holds none (cycles() already filters to genuine cycles, so any element
// qualifies).
func firstCycle(comps [][]string) []string {
	if len(comps) == 0 {
		return nil
	}
	return comps[0]
}

func containsUnit(units []string, unit string) bool {
	for _, u := range units {
		if u == unit {
			return true
		}
	}
	return false
}

// edgeWithinCycle finds a (from, to) pair inside comp that adj actually
// records, so the edge DepRemove drops is guaranteed to be a real part of
// the cycle rather than an arbitrary pair of its members.
func edgeWithinCycle(comp []string, adj map[string][]string) (from, to string, ok bool) {
	members := make(map[string]bool, len(comp))
	for _, u := range comp {
		members[u] = true
	}
	for _, from := range comp {
		for _, to := range adj[from] {
			if members[to] {
				return from, to, true
			}
		}
	}
	return "", "", false
}

func removeUnit(units []string, unit string) []string {
	out := units[:0]
	for _, u := range units {
		if u != unit {
			out = append(out, u)
		}
	}
	return out
}

// commit installs the transaction's jobs into the table: the unit whose
// predecessors (via AtomAfter) are already finished becomes trigger,
// everything else is suspended behind it. Returns the job tracking the
// originally requested unit.
func (e *Engine) commit(tx map[string]*txEntry, requested string, runKind RunKind) (*Job, error) {
	jobs := make(map[string]*Job, len(tx))
	for unit, entry := range tx {
		j := newJob(entry.unit, entry.kind, RunReplace)
		j.IgnoreFailure = entry.ignoreFailure
		j.Irreversible = runKind == RunReplaceIrreversibly
		jobs[unit] = j
	}
	for unit := range tx {
		if existing, ok := e.jobs.Trigger(unit); ok {
			e.jobs.cancel(existing)
			if e.persisted != nil {
				e.persisted.Remove(unitJobKey(unit, existing.ID))
			}
		}
	}
	for unit := range tx {
		for _, dest := range e.g.DepGetsAtom(unit, graph.AtomAfter) {
			if dep, ok := jobs[dest]; ok {
				jobs[unit].After = append(jobs[unit].After, dep.ID)
			}
		}
	}

	for unit, j := range jobs {
		if len(j.After) == 0 {
			e.jobs.installTrigger(j)
			j.Stage = StageCommitted
		} else {
			e.jobs.installSuspended(j)
			j.Stage = StageCommitted
		}
		if e.persisted != nil {
			e.persisted.Insert(unitJobKey(unit, j.ID), toRecord(j))
		}
	}

	if e.store != nil {
		e.store.SetBreadcrumb(store.Breadcrumb{Unit: requested})
		if err := e.store.Flush(); err != nil {
			e.log.Warn().Err(err).Msg("failed to flush job commit to reliability store")
		}
	}

	e.runReadyTriggers()

	requestedJob, ok := jobs[requested]
	if !ok {
		return nil, fmt.Errorf("job: internal error: requested unit %q missing from committed transaction", requested)
	}
	return requestedJob, nil
}

func unitJobKey(unit, jobID string) string { return unit + "/" + jobID }

// runReadyTriggers invokes the driver for every trigger job that has no
// outstanding After predecessors still in flight.
func (e *Engine) runReadyTriggers() {
	for _, j := range e.jobs.All() {
		if !e.jobs.IsTrigger(j) {
			continue
		}
		if j.Stage != StageCommitted {
			continue
		}
		e.run(j)
	}
}

// run dispatches j's current Phase to the driver. Kind and Phase only
// diverge for Restart: it starts in Phase KindStop and TryFinish flips it
// to KindStart once the unit actually goes InActive, so a restart always
// stops the unit before starting it back up (spec.md §4.4). Nop and
// Verify jobs need no driver action and finish immediately.
func (e *Engine) run(j *Job) {
	j.Stage = StageRunning
	u, ok := e.g.Get(j.Unit)
	if !ok {
		e.finishAndPromote(j.Unit, ResultFailed)
		return
	}

	switch j.Phase {
	case KindNop:
		e.finishAndPromote(j.Unit, ResultNoOp)
		return
	case KindVerify:
		e.finishAndPromote(j.Unit, ResultDone)
		return
	}

	var err error
	switch j.Phase {
	case KindStart:
		err = e.driver.Start(u)
	case KindStop:
		err = e.driver.Stop(u)
	case KindReload:
		err = e.driver.Reload(u)
	}

	if err != nil {
		result := ResultFailed
		if de, ok := err.(*DriverError); ok {
			result = de.Result
		}
		if j.IgnoreFailure {
			e.log.Debug().Err(err).Str("unit", j.Unit).Msg("ignoring failure of pulled-in dependency")
		} else {
			e.log.Warn().Err(err).Str("unit", j.Unit).Msg("job action failed")
		}
		e.finishAndPromote(j.Unit, result)
	}
}

// TryFinish implements spec.md §2.5's try_finish: the unit kind adapter
// calls this whenever a unit's ActiveState actually changes, and the
// engine decides whether that satisfies the unit's current trigger job.
func (e *Engine) TryFinish(unit string, newState graph.ActiveState) {
	j, ok := e.jobs.Trigger(unit)
	if !ok {
		return
	}

	if j.Kind == KindRestart && j.Phase == KindStop {
		if newState != graph.InActive {
			return
		}
		j.Phase = KindStart
		j.Stage = StageCommitted
		e.run(j)
		return
	}

	var result Result
	var satisfied bool
	switch j.Phase {
	case KindStart:
		switch newState {
		case graph.Active:
			satisfied, result = true, ResultDone
		case graph.Failed:
			satisfied, result = true, ResultFailed
		}
	case KindStop:
		if newState == graph.InActive {
			satisfied, result = true, ResultDone
		}
	case KindReload:
		if newState == graph.Active {
			satisfied, result = true, ResultDone
		} else if newState == graph.Failed {
			satisfied, result = true, ResultFailed
		}
	}

	if !satisfied {
		return
	}

	e.finishAndPromote(unit, result)
}

// finishAndPromote finishes unit's trigger job with result, drops its
// persisted record, and starts whatever suspended job was merge-queued
// behind it.
func (e *Engine) finishAndPromote(unit string, result Result) {
	j, ok := e.jobs.finishTrigger(unit, result)
	if !ok {
		return
	}
	if e.persisted != nil {
		e.persisted.Remove(unitJobKey(unit, j.ID))
	}
	if next, ok := e.jobs.promoteNext(unit); ok {
		e.run(next)
	}
}
