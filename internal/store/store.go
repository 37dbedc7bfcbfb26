// Package store implements the Reliability Store: the generation-switched
// key/value substrate that lets the manager survive a re-exec or a crash
// without losing unit, job and queue state. A Store owns exactly two
// on-disk generations, "a" and "b"; one is active at a time, selected by
// the presence of a sentinel file so a crash mid-compaction can never
// leave both generations half-written and ambiguous about which is
// current.
package store

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

const (
	tableQueueLoad       = "QUEUE_LOAD"
	tableQueueTargetDeps = "QUEUE_TARGET_DEPS"
	tableQueueGC         = "QUEUE_GC"
	tableBreadcrumb      = "LAST_FRAME"
	breadcrumbKey        = "frame"
)

// persistable is satisfied by Table[V] for any V and lets Store iterate
// heterogeneous tables uniformly during recover/compact.
type persistable interface {
	cacheToDB(gen *generation) error
	dataToDB(src, dst *generation) error
	dbToCache(gen *generation) error
}

// Store coordinates every reliability table and queue behind a single
// generation-switch. Domain packages (graph, job, unit) never open
// sqlite themselves; they hold a *Store (or the narrower Persister view
// of it) and ask it for typed tables.
type Store struct {
	root string
	log  zerolog.Logger

	active   *generation
	standby  *generation
	activeID string // "a" or "b" — mirrors the sentinel file on disk

	tables []persistable
	queues map[string]*persistentQueue

	breadcrumb *Table[Breadcrumb]
	mirror     RemoteMirror
}

// Open prepares reliability.mdb/{a,b} under root, setting umask to 0077
// for the duration of Open and restoring the previous mask afterwards
// (spec.md §4.1: state directories are owner-only), determines which
// generation is active via the sentinel file, and loads it into cache with
// Recover(false); a re-exec that wants the breadcrumb check calls
// Recover(true) itself.
func Open(root string, log zerolog.Logger, mirror RemoteMirror) (*Store, error) {
	prevMask := umask(0o077)
	defer umask(prevMask)

	base := filepath.Join(root, "reliability.mdb")
	if err := os.MkdirAll(base, 0o700); err != nil {
		return nil, &IoError{Op: "mkdir reliability.mdb", Err: err}
	}

	genA, err := openGeneration(filepath.Join(base, "a"))
	if err != nil {
		return nil, err
	}
	genB, err := openGeneration(filepath.Join(base, "b"))
	if err != nil {
		genA.close()
		return nil, err
	}

	activeID := "a"
	if _, err := os.Stat(filepath.Join(base, "b.effect")); err == nil {
		activeID = "b"
	}

	s := &Store{
		root:   root,
		log:    log.With().Str("subsystem", "store").Logger(),
		queues: make(map[string]*persistentQueue),
		mirror: mirror,
	}
	if activeID == "a" {
		s.active, s.standby = genA, genB
	} else {
		s.active, s.standby = genB, genA
	}
	s.activeID = activeID

	s.breadcrumb = newTable[Breadcrumb](tableBreadcrumb)
	s.tables = append(s.tables, s.breadcrumb)

	for _, name := range []string{tableQueueLoad, tableQueueTargetDeps, tableQueueGC} {
		s.queues[name] = newPersistentQueue(name)
	}

	if err := s.Recover(false); err != nil {
		return nil, err
	}
	return s, nil
}

// NewTable registers and returns a reliability table backed by this
// store's active generation. Domain packages call this once at startup
// for each table they own (units, jobs, ...).
func NewTable[V any](s *Store, name string) *Table[V] {
	t := newTable[V](name)
	s.tables = append(s.tables, t)
	if err := t.dbToCache(s.active); err != nil {
		s.log.Warn().Err(err).Str("table", name).Msg("failed initial load, starting empty")
	}
	return t
}

// Persister adapts Store to graph.Persister without the graph package
// importing store directly.
func (s *Store) Persister() *Persister { return &Persister{s: s} }

// Persister is the concrete type returned by Store.Persister; it
// satisfies graph.Persister structurally.
type Persister struct{ s *Store }

func (p *Persister) QueuePush(table, name string) { p.s.queuePush(table, name) }
func (p *Persister) QueuePop(table, name string)  { p.s.queuePop(table, name) }
func (p *Persister) QueueAll(table string) []string { return p.s.queueAll(table) }

func (s *Store) queuePush(table, name string) {
	q, ok := s.queues[table]
	if !ok {
		q = newPersistentQueue(table)
		s.queues[table] = q
	}
	q.push(name)
}

func (s *Store) queuePop(table, name string) {
	if q, ok := s.queues[table]; ok {
		q.pop(name)
	}
}

func (s *Store) queueAll(table string) []string {
	if q, ok := s.queues[table]; ok {
		return q.all()
	}
	return nil
}

// PopQueueFront removes and returns the oldest entry in the named queue.
// The graph package's own PopLoadQueue etc. do the equivalent pop on
// their in-memory slice and call Persister.QueuePop to mirror it here;
// this method exists for callers (the manager's cold-plug path) that
// walk a queue table directly without going through a Graph.
func (s *Store) PopQueueFront(table string) (string, bool) {
	if q, ok := s.queues[table]; ok {
		return q.popFront()
	}
	return "", false
}

// Breadcrumb returns the last-frame breadcrumb table (spec.md §4.1's
// single-row record describing the most recently committed transaction;
// Recover(true) only logs a warning when it is absent).
func (s *Store) Breadcrumb() (Breadcrumb, bool) {
	return s.breadcrumb.Get(breadcrumbKey)
}

// SetBreadcrumb stamps the current frame. Called by the job engine after
// every successful commit.
func (s *Store) SetBreadcrumb(b Breadcrumb) {
	s.breadcrumb.Insert(breadcrumbKey, b)
}

// Recover reloads every registered table and queue from the active
// generation's on-disk state, discarding whatever was in memory. reload
// distinguishes a re-exec (where a breadcrumb is expected and its
// absence is suspicious) from a first cold start.
func (s *Store) Recover(reload bool) error {
	for _, t := range s.tables {
		if err := t.dbToCache(s.active); err != nil {
			return err
		}
	}
	for _, q := range s.queues {
		if err := q.dbToCache(s.active); err != nil {
			return err
		}
	}

	if reload {
		if _, ok := s.Breadcrumb(); !ok {
			s.log.Warn().Msg("reload recovery found no breadcrumb; treating as first frame")
		}
	}
	return nil
}

// Flush writes every table and queue's pending add/delete sets through to
// the active generation. Called at the end of a job engine commit, so a
// crash immediately after never loses a just-committed transaction.
func (s *Store) Flush() error {
	for _, t := range s.tables {
		if err := t.cacheToDB(s.active); err != nil {
			return err
		}
	}
	for _, q := range s.queues {
		if err := q.cacheToDB(s.active); err != nil {
			return err
		}
	}
	return nil
}

// Compact rewrites the standby generation from the current in-memory
// cache (dropping incremental history, unlike Flush), flips the sentinel
// so the standby becomes active, and — if a remote mirror is configured —
// ships the new generation off-box. A crash during Compact leaves the old
// generation's sentinel untouched, so recovery after a crash mid-compact
// just re-opens the still-valid previous generation.
func (s *Store) Compact() error {
	for _, t := range s.tables {
		if err := t.dataToDB(s.active, s.standby); err != nil {
			return err
		}
	}
	for _, q := range s.queues {
		if err := q.cacheToDB(s.standby); err != nil {
			return err
		}
	}

	newActiveID := "a"
	if s.activeID == "a" {
		newActiveID = "b"
	}
	base := filepath.Join(s.root, "reliability.mdb")
	sentinel := filepath.Join(base, "b.effect")
	if newActiveID == "b" {
		f, err := os.Create(sentinel)
		if err != nil {
			return &IoError{Op: "write b.effect sentinel", Err: err}
		}
		f.Close()
	} else if err := os.Remove(sentinel); err != nil && !os.IsNotExist(err) {
		return &IoError{Op: "remove b.effect sentinel", Err: err}
	}

	s.active, s.standby = s.standby, s.active
	s.activeID = newActiveID

	if s.mirror != nil {
		if err := s.mirror.Upload(base, newActiveID); err != nil {
			s.log.Warn().Err(err).Msg("remote mirror upload failed; compaction remains valid locally")
		}
	}
	return nil
}

// Close releases both generations' file handles.
func (s *Store) Close() error {
	var firstErr error
	if err := s.active.close(); err != nil {
		firstErr = err
	}
	if err := s.standby.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
