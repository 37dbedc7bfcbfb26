package store

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type widgetRecord struct {
	Name  string
	Count int
}

// TestTable_InsertRemoveRoundTrip covers spec.md §8 property 6: inserting
// then removing a key leaves the table indistinguishable from one that
// never saw the key, including after a cacheToDB/dbToCache round trip.
func TestTable_InsertRemoveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	gen, err := openGeneration(dir)
	require.NoError(t, err)
	defer gen.close()

	tbl := newTable[widgetRecord]("widgets")
	tbl.Insert("w1", widgetRecord{Name: "first", Count: 1})
	tbl.Insert("w2", widgetRecord{Name: "second", Count: 2})
	require.NoError(t, tbl.cacheToDB(gen))

	tbl.Remove("w1")
	require.NoError(t, tbl.cacheToDB(gen))

	reloaded := newTable[widgetRecord]("widgets")
	require.NoError(t, reloaded.dbToCache(gen))

	_, ok := reloaded.Get("w1")
	require.False(t, ok)
	v, ok := reloaded.Get("w2")
	require.True(t, ok)
	require.Equal(t, 2, v.Count)
}

// TestStore_CompactReproducesState covers scenario E6: a compaction built
// from the live cache, when reopened from the new active generation,
// reflects exactly the pre-compaction cache contents.
func TestStore_CompactReproducesState(t *testing.T) {
	root := t.TempDir()
	log := zerolog.Nop()

	s, err := Open(root, log, nil)
	require.NoError(t, err)

	widgets := NewTable[widgetRecord](s, "widgets")
	widgets.Insert("w1", widgetRecord{Name: "first", Count: 1})
	widgets.Insert("w2", widgetRecord{Name: "second", Count: 2})
	require.NoError(t, s.Flush())

	widgets.Remove("w2")
	widgets.Insert("w3", widgetRecord{Name: "third", Count: 3})

	s.SetBreadcrumb(Breadcrumb{FrameID: 1, JobID: "job-1", Unit: "a.service"})
	require.NoError(t, s.Compact())
	require.NoError(t, s.Close())

	s2, err := Open(root, log, nil)
	require.NoError(t, err)
	defer s2.Close()

	w2 := NewTable[widgetRecord](s2, "widgets")
	_, ok := w2.Get("w2")
	require.False(t, ok, "w2 was removed before compaction and must not reappear")
	v1, ok := w2.Get("w1")
	require.True(t, ok)
	require.Equal(t, 1, v1.Count)
	v3, ok := w2.Get("w3")
	require.True(t, ok)
	require.Equal(t, 3, v3.Count)

	bc, ok := s2.Breadcrumb()
	require.True(t, ok)
	require.Equal(t, uint64(1), bc.FrameID)
}

// TestStore_QueuePersistsFIFOOrder exercises the graph.Persister-facing
// queue path end to end through Compact and reopen.
func TestStore_QueuePersistsFIFOOrder(t *testing.T) {
	root := t.TempDir()
	log := zerolog.Nop()

	s, err := Open(root, log, nil)
	require.NoError(t, err)

	p := s.Persister()
	p.QueuePush("QUEUE_LOAD", "a.service")
	p.QueuePush("QUEUE_LOAD", "b.service")
	p.QueuePop("QUEUE_LOAD", "a.service")

	require.NoError(t, s.Compact())
	require.NoError(t, s.Close())

	s2, err := Open(root, log, nil)
	require.NoError(t, err)
	defer s2.Close()

	require.Equal(t, []string{"b.service"}, s2.queueAll("QUEUE_LOAD"))
}
