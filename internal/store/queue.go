package store

import "sync"

// persistentQueue is a durable FIFO used for the graph package's load,
// target-deps and gc queues (spec.md §4.3). Unlike Table[V], ordering
// matters here, so entries are kept in a slice rather than a map; each
// entry is persisted under a monotonically increasing sequence key so the
// on-disk generation preserves FIFO order across a restart.
type persistentQueue struct {
	mu      sync.Mutex
	table   string
	items   []queueEntry
	nextSeq uint64
}

type queueEntry struct {
	seq  uint64
	name string
}

func newPersistentQueue(table string) *persistentQueue {
	return &persistentQueue{table: table}
}

func (q *persistentQueue) push(name string) queueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := queueEntry{seq: q.nextSeq, name: name}
	q.nextSeq++
	q.items = append(q.items, e)
	return e
}

// pop removes name's oldest occurrence, if present.
func (q *persistentQueue) pop(name string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.items {
		if e.name == name {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

func (q *persistentQueue) popFront() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	e := q.items[0]
	q.items = q.items[1:]
	return e.name, true
}

func (q *persistentQueue) all() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.items))
	for i, e := range q.items {
		out[i] = e.name
	}
	return out
}

func (q *persistentQueue) cacheToDB(gen *generation) error {
	q.mu.Lock()
	snapshot := make([]queueEntry, len(q.items))
	copy(snapshot, q.items)
	q.mu.Unlock()

	if err := gen.clear(q.table); err != nil {
		return err
	}
	for _, e := range snapshot {
		if err := gen.put(q.table, seqKey(e.seq), []byte(e.name)); err != nil {
			return err
		}
	}
	return nil
}

func (q *persistentQueue) dbToCache(gen *generation) error {
	raw, err := gen.readAll(q.table)
	if err != nil {
		return err
	}

	entries := make([]queueEntry, 0, len(raw))
	for k, v := range raw {
		seq, ok := parseSeqKey(k)
		if !ok {
			continue
		}
		entries = append(entries, queueEntry{seq: seq, name: string(v)})
	}
	sortQueueEntries(entries)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = entries
	if len(entries) > 0 {
		q.nextSeq = entries[len(entries)-1].seq + 1
	}
	return nil
}

func sortQueueEntries(entries []queueEntry) {
	// insertion sort: queues stay small (pending loads/GC candidates), and
	// this avoids pulling in sort for a handful of comparisons per restart
	for i := 1; i < len(entries); i++ {
		j := i
		for j > 0 && entries[j-1].seq > entries[j].seq {
			entries[j-1], entries[j] = entries[j], entries[j-1]
			j--
		}
	}
}

func seqKey(seq uint64) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[seq&0xf]
		seq >>= 4
	}
	return string(buf)
}

func parseSeqKey(k string) (uint64, bool) {
	if len(k) != 16 {
		return 0, false
	}
	var seq uint64
	for i := 0; i < 16; i++ {
		c := k[i]
		var d uint64
		switch {
		case c >= '0' && c <= '9':
			d = uint64(c - '0')
		case c >= 'a' && c <= 'f':
			d = uint64(c-'a') + 10
		default:
			return 0, false
		}
		seq = seq<<4 | d
	}
	return seq, true
}
