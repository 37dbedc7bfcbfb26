package store

// WriteSwitch selects which tier a table's writes target, per spec.md
// §3/§4.1: None is write-through (mutate the add/del sets directly, no
// cache shadowing), Some(false) is cache-only, Some(true) is buffer-only
// (used while a reload is staging changes that must not be visible until
// committed).
type WriteSwitch struct {
	set      bool
	buffered bool
}

// WriteThrough is the None switch value.
func WriteThrough() WriteSwitch { return WriteSwitch{set: false} }

// CacheOnly is the Some(false) switch value.
func CacheOnly() WriteSwitch { return WriteSwitch{set: true, buffered: false} }

// BufferOnly is the Some(true) switch value.
func BufferOnly() WriteSwitch { return WriteSwitch{set: true, buffered: true} }

func (s WriteSwitch) isWriteThrough() bool { return !s.set }
func (s WriteSwitch) isBufferOnly() bool   { return s.set && s.buffered }
func (s WriteSwitch) isCacheOnly() bool    { return s.set && !s.buffered }
