package bridge

import (
	"github.com/portway-io/wasm-bridge/errors"
)

// connTable is the registry of live connections, keyed by guest-chosen
// identifiers. Callers hold the bridge mutex; the table itself adds no
// locking.
type connTable struct {
	conns map[uint32]*Connection
}

func newConnTable() *connTable {
	return &connTable{conns: make(map[uint32]*Connection)}
}

// insert registers a new connection. A duplicate identifier is a guest
// contract violation and panics.
func (t *connTable) insert(c *Connection) {
	if _, exists := t.conns[c.id]; exists {
		panic(errors.DuplicateID(c.id))
	}
	t.conns[c.id] = c
}

func (t *connTable) get(id uint32) (*Connection, bool) {
	c, ok := t.conns[id]
	return c, ok
}

// remove drops a connection and returns it, or nil if absent.
func (t *connTable) remove(id uint32) *Connection {
	c := t.conns[id]
	if c != nil {
		delete(t.conns, id)
	}
	return c
}

// removeConn drops the entry for c only if it is still the registered one,
// so a stale event cannot evict a newer connection reusing the identifier.
func (t *connTable) removeConn(c *Connection) {
	if t.conns[c.id] == c {
		delete(t.conns, c.id)
	}
}

func (t *connTable) len() int {
	return len(t.conns)
}

// clear empties the table and returns a snapshot of the removed entries, so
// callers can tear them down without iterating the live map.
func (t *connTable) clear() []*Connection {
	snapshot := make([]*Connection, 0, len(t.conns))
	for _, c := range t.conns {
		snapshot = append(snapshot, c)
	}
	t.conns = make(map[uint32]*Connection)
	return snapshot
}
