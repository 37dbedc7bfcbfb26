package graph

import (
	"fmt"
	"sync"
)

// edge is one directed dependency triple plus the layer(s) that introduced
// it (spec.md §3).
type edge struct {
	dest Relation
	unit string
	mask Mask
}

// Persister is the subset of the reliability store the graph needs for
// queue durability (spec.md §4.3: "All queue operations persist into RS
// ... so a crash mid-dispatch re-queues the exact same unit on recovery").
// Implemented by *store.Store; declared here to avoid graph importing store.
type Persister interface {
	QueuePush(table string, name string)
	QueuePop(table string, name string)
	QueueAll(table string) []string
}

// Graph is the unit set plus the two-directional dependency relation.
// Graph is safe for concurrent use, but spec.md §5 only ever calls it from
// the single reactor-owning goroutine; the lock exists to make tests and
// the optional read-only status mux safe, not to support concurrent
// mutation of the job/unit state machines.
type Graph struct {
	mu sync.RWMutex

	units map[string]*Unit
	// edges[source][relation] is the set of destination unit names.
	edges map[string]map[Relation]map[string]edge

	loadQueue        []string
	loadQueued       map[string]bool
	targetDepsQueue  []string
	targetDepsQueued map[string]bool
	gcQueue          []string
	gcQueued         map[string]bool

	persist Persister
}

// New creates an empty Graph. persist may be nil (tests, or a manager run
// without a reliability store backing the queues).
func New(persist Persister) *Graph {
	return &Graph{
		units:            make(map[string]*Unit),
		edges:            make(map[string]map[Relation]map[string]edge),
		loadQueued:       make(map[string]bool),
		targetDepsQueued: make(map[string]bool),
		gcQueued:         make(map[string]bool),
		persist:          persist,
	}
}

// Load is idempotent: it returns the existing unit if known, or inserts a
// Stub and pushes it onto the load queue (spec.md §4.3).
func (g *Graph) Load(name string) (*Unit, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if u, ok := g.units[name]; ok {
		return u, nil
	}

	kind, err := KindOf(name)
	if err != nil {
		return nil, err
	}

	u := NewUnit(name, kind)
	g.units[name] = u
	g.pushLoadQueueLocked(name)
	return u, nil
}

// Get returns the unit named name, if loaded.
func (g *Graph) Get(name string) (*Unit, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	u, ok := g.units[name]
	return u, ok
}

// GetAll returns every known unit, in no particular order.
func (g *Graph) GetAll() []*Unit {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Unit, 0, len(g.units))
	for _, u := range g.units {
		out = append(out, u)
	}
	return out
}

// --- Load queue ---

func (g *Graph) pushLoadQueueLocked(name string) {
	if g.loadQueued[name] {
		return
	}
	g.loadQueued[name] = true
	g.loadQueue = append(g.loadQueue, name)
	if g.persist != nil {
		g.persist.QueuePush("QUEUE_LOAD", name)
	}
}

// PopLoadQueue removes and returns the next unit awaiting configuration
// load, or ("", false) if the queue is empty.
func (g *Graph) PopLoadQueue() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.loadQueue) == 0 {
		return "", false
	}
	name := g.loadQueue[0]
	g.loadQueue = g.loadQueue[1:]
	delete(g.loadQueued, name)
	if g.persist != nil {
		g.persist.QueuePop("QUEUE_LOAD", name)
	}
	return name, true
}

// PushTargetDepsQueue schedules name for default-target-dependency
// materialization (spec.md §4.3).
func (g *Graph) PushTargetDepsQueue(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.targetDepsQueued[name] {
		return
	}
	g.targetDepsQueued[name] = true
	g.targetDepsQueue = append(g.targetDepsQueue, name)
	if g.persist != nil {
		g.persist.QueuePush("QUEUE_TARGET_DEPS", name)
	}
}

// PopTargetDepsQueue removes and returns the next unit awaiting default
// target dependency materialization.
func (g *Graph) PopTargetDepsQueue() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.targetDepsQueue) == 0 {
		return "", false
	}
	name := g.targetDepsQueue[0]
	g.targetDepsQueue = g.targetDepsQueue[1:]
	delete(g.targetDepsQueued, name)
	if g.persist != nil {
		g.persist.QueuePop("QUEUE_TARGET_DEPS", name)
	}
	return name, true
}

// PushGCQueue schedules name for garbage collection consideration (the RQ
// "stop-when-unneeded"/"GC queue" of spec.md §2.4).
func (g *Graph) PushGCQueue(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gcQueued[name] {
		return
	}
	g.gcQueued[name] = true
	g.gcQueue = append(g.gcQueue, name)
	if g.persist != nil {
		g.persist.QueuePush("QUEUE_GC", name)
	}
}

// PopGCQueue removes and returns the next unit awaiting GC consideration.
func (g *Graph) PopGCQueue() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.gcQueue) == 0 {
		return "", false
	}
	name := g.gcQueue[0]
	g.gcQueue = g.gcQueue[1:]
	delete(g.gcQueued, name)
	if g.persist != nil {
		g.persist.QueuePop("QUEUE_GC", name)
	}
	return name, true
}

// --- Dependency edges ---

// invalidCombination is the small per-kind table backing dep_check
// (spec.md §4.3: "a device cannot depend on a socket", etc). It is
// intentionally conservative: combinations not listed here are allowed.
var invalidCombination = map[[2]Kind]bool{
	{KindDevice, KindSocket}: true,
	{KindMount, KindSocket}:  true,
	{KindSwap, KindSocket}:   true,
	{KindSwap, KindTarget}:   false, // swaps may order against targets
}

func dependencyAllowed(sourceKind, destKind Kind) bool {
	return !invalidCombination[[2]Kind{sourceKind, destKind}]
}

// DepInsert inserts the edge (source, relation, dest) and its mandated
// inverse (dest, Inverse(relation), source), recording mask against both
// directions. If reference is true, a References/ReferencedBy pair is also
// recorded (spec.md §4.3). Self-loops and per-kind-invalid combinations are
// rejected before anything is mutated.
func (g *Graph) DepInsert(source, dest *Unit, relation Relation, reference bool, mask Mask) error {
	if !ValidRelation(relation) {
		return fmt.Errorf("graph: unknown relation %v", relation)
	}
	if source.Name == dest.Name {
		return fmt.Errorf("graph: refusing self-loop on %s via %s", source.Name, relation)
	}
	if !dependencyAllowed(source.Kind, dest.Kind) {
		return fmt.Errorf("graph: %s (%s) cannot depend on %s (%s) via %s", source.Name, source.Kind, dest.Name, dest.Kind, relation)
	}
	if source.Adapter != nil {
		if err := source.Adapter.DepCheck(relation, dest); err != nil {
			return fmt.Errorf("graph: dep_check rejected %s -%s-> %s: %w", source.Name, relation, dest.Name, err)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.insertDirectedLocked(source.Name, relation, dest.Name, mask)
	g.insertDirectedLocked(dest.Name, Inverse(relation), source.Name, mask)

	if reference {
		g.insertDirectedLocked(source.Name, References, dest.Name, mask)
		g.insertDirectedLocked(dest.Name, ReferencedBy, source.Name, mask)
	}

	return nil
}

func (g *Graph) insertDirectedLocked(source string, relation Relation, dest string, mask Mask) {
	bySource, ok := g.edges[source]
	if !ok {
		bySource = make(map[Relation]map[string]edge)
		g.edges[source] = bySource
	}
	byRelation, ok := bySource[relation]
	if !ok {
		byRelation = make(map[string]edge)
		bySource[relation] = byRelation
	}
	if e, ok := byRelation[dest]; ok {
		e.mask |= mask
		byRelation[dest] = e
		return
	}
	byRelation[dest] = edge{dest: relation, unit: dest, mask: mask}
}

// DepGets returns every destination unit name reachable from source via
// relation.
func (g *Graph) DepGets(source string, relation Relation) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	byRelation, ok := g.edges[source][relation]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(byRelation))
	for dest := range byRelation {
		out = append(out, dest)
	}
	return out
}

// DepGetsAtom unions DepGets across every relation implied by atom.
func (g *Graph) DepGetsAtom(source string, atom Atom) []string {
	seen := make(map[string]bool)
	var out []string
	for _, rel := range RelationsForAtom(atom) {
		for _, dest := range g.DepGets(source, rel) {
			if !seen[dest] {
				seen[dest] = true
				out = append(out, dest)
			}
		}
	}
	return out
}

// IsDepWith reports whether the edge (source, relation, dest) exists.
func (g *Graph) IsDepWith(source string, relation Relation, dest string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.edges[source][relation][dest]
	return ok
}

// IsDepAtomWith reports whether source reaches dest via any relation
// implying atom.
func (g *Graph) IsDepAtomWith(source string, atom Atom, dest string) bool {
	for _, rel := range RelationsForAtom(atom) {
		if g.IsDepWith(source, rel, dest) {
			return true
		}
	}
	return false
}

// DepRemove removes the edge (source, relation, dest) and its inverse.
func (g *Graph) DepRemove(source string, relation Relation, dest string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeDirectedLocked(source, relation, dest)
	g.removeDirectedLocked(dest, Inverse(relation), source)
}

func (g *Graph) removeDirectedLocked(source string, relation Relation, dest string) {
	byRelation, ok := g.edges[source][relation]
	if !ok {
		return
	}
	delete(byRelation, dest)
	if len(byRelation) == 0 {
		delete(g.edges[source], relation)
	}
}

// DepRemoveMask unwinds the configuration layer mask from every edge of
// source: an edge carried by that layer alone is removed together with its
// inverse, an edge also carried by another layer only loses mask's bits.
func (g *Graph) DepRemoveMask(source string, mask Mask) {
	g.mu.Lock()
	var toRemove []struct {
		rel  Relation
		dest string
	}
	for rel, byDest := range g.edges[source] {
		for dest, e := range byDest {
			if e.mask&mask != 0 && e.mask&^mask != 0 {
				e.mask &^= mask
				byDest[dest] = e
				if inv, ok := g.edges[dest][Inverse(rel)][source]; ok {
					inv.mask &^= mask
					g.edges[dest][Inverse(rel)][source] = inv
				}
				continue
			}
			if e.mask&mask != 0 {
				toRemove = append(toRemove, struct {
					rel  Relation
					dest string
				}{rel, dest})
			}
		}
	}
	g.mu.Unlock()

	for _, r := range toRemove {
		g.DepRemove(source, r.rel, r.dest)
	}
}

// RemoveUnit deletes u and every edge touching it, in both directions.
func (g *Graph) RemoveUnit(u *Unit) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for rel, byDest := range g.edges[u.Name] {
		for dest := range byDest {
			g.removeDirectedLocked(dest, Inverse(rel), u.Name)
		}
	}
	delete(g.edges, u.Name)
	delete(g.units, u.Name)
}

// MaterializeDefaultTargetDeps implements spec.md §4.3's default target
// dependency rule: for every unit with DefaultDependencies set, for every
// relation carrying AddDefaultTargetDependencyQueue connecting it to a
// Target, insert an After edge from the target toward the unit — unless a
// Before edge already exists in the opposite sense, which would create an
// order cycle.
func (g *Graph) MaterializeDefaultTargetDeps(u *Unit) {
	if !u.DefaultDependencies {
		return
	}

	for _, rel := range RelationsForAtom(AddDefaultTargetDependencyQueue) {
		for _, targetName := range g.DepGets(u.Name, rel) {
			target, ok := g.Get(targetName)
			if !ok || target.Kind != KindTarget {
				continue
			}
			if g.IsDepWith(targetName, Before, u.Name) {
				// target is already ordered Before the unit; adding target
				// After the unit would close an ordering cycle.
				continue
			}
			_ = g.DepInsert(target, u, After, false, MaskDefaultDependencies)
		}
	}
}
