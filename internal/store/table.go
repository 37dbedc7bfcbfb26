package store

import (
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Table is a single reliability table: an in-memory cache of decoded
// values plus pending add/delete sets that stage writes through to the
// on-disk generation. Every RS table (units, jobs, queues, last-frame
// breadcrumb) is one Table[V] instance keyed by a string name.
//
// The three tiers from spec.md §4.1 map directly onto fields here:
//   - buffer: writes accepted while WriteSwitch is buffer-only, held back
//     from cache/db until an explicit flush (used while a reload stages
//     a unit file re-parse that must not be visible until committed).
//   - cache:  the authoritative in-memory view, read by Get/Keys/Entries.
//   - db:     the on-disk generation, written by data_2_db/cache_2_db.
type Table[V any] struct {
	mu   sync.RWMutex
	name string
	sw   WriteSwitch

	cache  map[string]V
	buffer map[string]V

	addSet map[string]V
	delSet map[string]bool
}

func newTable[V any](name string) *Table[V] {
	return &Table[V]{
		name:   name,
		sw:     WriteThrough(),
		cache:  make(map[string]V),
		buffer: make(map[string]V),
		addSet: make(map[string]V),
		delSet: make(map[string]bool),
	}
}

// SetSwitch changes the write-tier for subsequent Insert/Remove calls.
func (t *Table[V]) SetSwitch(sw WriteSwitch) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sw = sw
}

// Insert stages or applies a write according to the current WriteSwitch.
func (t *Table[V]) Insert(key string, value V) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.sw.isBufferOnly():
		t.buffer[key] = value
	case t.sw.isCacheOnly():
		t.cache[key] = value
		delete(t.delSet, key)
		t.addSet[key] = value
	default: // write-through: add-set only, no cache shadowing
		delete(t.delSet, key)
		t.addSet[key] = value
	}
}

// Remove stages or applies a delete according to the current WriteSwitch.
func (t *Table[V]) Remove(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sw.isBufferOnly() {
		delete(t.buffer, key)
		return
	}
	delete(t.cache, key)
	delete(t.addSet, key)
	t.delSet[key] = true
}

// Get returns the cached value and whether it was present. Buffered writes
// are never visible through Get until FlushBuffer is called.
func (t *Table[V]) Get(key string) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.cache[key]
	return v, ok
}

// Keys returns a snapshot of all cached keys in no particular order.
func (t *Table[V]) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.cache))
	for k := range t.cache {
		keys = append(keys, k)
	}
	return keys
}

// Entries returns a snapshot of the full cache.
func (t *Table[V]) Entries() map[string]V {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]V, len(t.cache))
	for k, v := range t.cache {
		out[k] = v
	}
	return out
}

// FlushBuffer moves every buffered write into the cache/add-set and clears
// the buffer, as if it had been written through all along. Used when a
// reload's staged changes are committed.
func (t *Table[V]) FlushBuffer() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range t.buffer {
		t.cache[k] = v
		delete(t.delSet, k)
		t.addSet[k] = v
	}
	t.buffer = make(map[string]V)
}

// DiscardBuffer drops staged buffer-only writes without applying them.
func (t *Table[V]) DiscardBuffer() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buffer = make(map[string]V)
}

// cacheToDB flushes the pending add/delete sets into the on-disk
// generation and clears them. Called by Store against one generation at
// a time; never called directly by table consumers.
func (t *Table[V]) cacheToDB(gen *generation) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for k := range t.delSet {
		if err := gen.delete(t.name, k); err != nil {
			return err
		}
	}
	for k, v := range t.addSet {
		encoded, err := msgpack.Marshal(v)
		if err != nil {
			return &CodecError{Op: "encode " + t.name + "/" + k, Err: err}
		}
		if err := gen.put(t.name, k, encoded); err != nil {
			return err
		}
	}
	t.addSet = make(map[string]V)
	t.delSet = make(map[string]bool)
	return nil
}

// dataToDB rewrites dst's generation table with the table's current live
// state: src's committed contents overlaid with whatever add/delete sets
// haven't been flushed yet, dropping incremental history the way a plain
// cacheToDB replay would keep. Used by Compact. It reads from src rather
// than t.cache because a write-through table never shadows its cache on
// Insert, so cache alone can be stale; src plus the pending sets is the
// only view guaranteed current regardless of WriteSwitch mode.
func (t *Table[V]) dataToDB(src, dst *generation) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	raw, err := src.readAll(t.name)
	if err != nil {
		return err
	}
	live := make(map[string]V, len(raw))
	for k, encoded := range raw {
		var v V
		if err := msgpack.Unmarshal(encoded, &v); err != nil {
			return &CodecError{Op: "decode " + t.name + "/" + k, Err: err}
		}
		live[k] = v
	}
	for k, v := range t.addSet {
		live[k] = v
	}
	for k := range t.delSet {
		delete(live, k)
	}

	if err := dst.clear(t.name); err != nil {
		return err
	}
	for k, v := range live {
		encoded, err := msgpack.Marshal(v)
		if err != nil {
			return &CodecError{Op: "encode " + t.name + "/" + k, Err: err}
		}
		if err := dst.put(t.name, k, encoded); err != nil {
			return err
		}
	}
	t.cache = live
	t.addSet = make(map[string]V)
	t.delSet = make(map[string]bool)
	return nil
}

// dbToCache loads the on-disk generation table into the cache wholesale,
// discarding whatever was cached before. Used during Recover.
func (t *Table[V]) dbToCache(gen *generation) error {
	raw, err := gen.readAll(t.name)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.cache = make(map[string]V, len(raw))
	for k, encoded := range raw {
		var v V
		if err := msgpack.Unmarshal(encoded, &v); err != nil {
			return &CodecError{Op: "decode " + t.name + "/" + k, Err: err}
		}
		t.cache[k] = v
	}
	t.addSet = make(map[string]V)
	t.delSet = make(map[string]bool)
	return nil
}
