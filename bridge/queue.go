package bridge

import (
	"sync"

	"github.com/portway-io/wasm-bridge/transport"
)

// item is one pending guest delivery: either a transport event for a
// connection or a fired timer.
type item struct {
	conn    *Connection
	ev      transport.Event
	timerID uint32
	isTimer bool
}

// eventQueue is the single FIFO through which timers and transports hand
// work to the dispatch loop. Pushers may run on any goroutine; draining
// happens on the embedder's loop.
type eventQueue struct {
	mu    sync.Mutex
	items []item
	wake  chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{wake: make(chan struct{}, 1)}
}

func (q *eventQueue) push(it item) {
	q.mu.Lock()
	q.items = append(q.items, it)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// drain removes and returns every queued item, preserving order.
func (q *eventQueue) drain() []item {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	return items
}
