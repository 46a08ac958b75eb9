package bridge

import (
	stderrors "errors"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	wasmbridge "github.com/portway-io/wasm-bridge"
	"github.com/portway-io/wasm-bridge/errors"
	"github.com/portway-io/wasm-bridge/transport"
)

// Config configures a Bridge. Guest, Memory and Dialer are required.
type Config struct {
	// Guest receives the re-entry calls the bridge makes.
	Guest wasmbridge.Guest

	// Memory is the guest's linear memory, used for buffer copies and the
	// connection-failure descriptor.
	Memory wasmbridge.Memory

	// Dialer is the transport factory invoked on connection creation.
	Dialer transport.Dialer

	// Diagnostics receives guest logs, tracing marks and panics.
	// Optional; defaults to an implementation that only propagates panics.
	Diagnostics wasmbridge.Diagnostics

	// Logger is the bridge's own logger. Optional; defaults to a no-op.
	Logger *zap.Logger
}

// Bridge owns the connection table, the buffer registry, timer scheduling
// and the kill switch. See the package documentation for the concurrency
// contract.
type Bridge struct {
	guest  wasmbridge.Guest
	mem    wasmbridge.Memory
	dialer transport.Dialer
	diag   wasmbridge.Diagnostics
	log    *zap.Logger

	// mu guards conns and all Connection/stream fields. It is never held
	// across a guest re-entry call.
	mu      sync.Mutex
	conns   *connTable
	buffers *BufferRegistry
	queue   *eventQueue
	killed  atomic.Bool

	fatalMu  sync.Mutex
	fatalErr error
}

// New creates a Bridge.
func New(cfg Config) (*Bridge, error) {
	if cfg.Guest == nil {
		return nil, errors.InvalidInput(errors.PhaseEngine, "config is missing a guest")
	}
	if cfg.Memory == nil {
		return nil, errors.InvalidInput(errors.PhaseEngine, "config is missing guest memory")
	}
	if cfg.Dialer == nil {
		return nil, errors.InvalidInput(errors.PhaseEngine, "config is missing a transport dialer")
	}

	diag := cfg.Diagnostics
	if diag == nil {
		diag = nopDiagnostics{}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Bridge{
		guest:   cfg.Guest,
		mem:     cfg.Memory,
		dialer:  cfg.Dialer,
		diag:    diag,
		log:     log,
		conns:   newConnTable(),
		buffers: NewBufferRegistry(),
		queue:   newEventQueue(),
	}, nil
}

// Diagnostics returns the configured diagnostics sink.
func (b *Bridge) Diagnostics() wasmbridge.Diagnostics { return b.diag }

// BufferSize returns the length of one populated buffer slot.
func (b *Bridge) BufferSize(index uint32) uint32 {
	return b.buffers.Size(index)
}

// BufferCopy writes one populated buffer slot into guest memory at offset.
func (b *Bridge) BufferCopy(index, offset uint32) error {
	return b.buffers.Copy(index, b.mem, offset)
}

// ConnectionNew dials address and registers the connection under the
// guest-chosen id in the Opening state. It returns 0 on success and 1 on
// synchronous failure; failures write a descriptor at errorPtr in guest
// memory: a 4-byte little-endian buffer-slot index holding the message,
// followed by one flag byte set to 1 for address/parse errors.
//
// After KillAll the dial is not attempted and the generic failure path
// reports the shutdown to the caller.
func (b *Bridge) ConnectionNew(id uint32, address string, errorPtr uint32) uint32 {
	if b.killed.Load() {
		return b.connectFailure(errorPtr, "bridge has been shut down", false)
	}

	b.mu.Lock()
	_, exists := b.conns.get(id)
	b.mu.Unlock()
	if exists {
		panic(errors.DuplicateID(id))
	}

	c := newConnection(id)
	handle, err := b.dialer.Dial(address, &connSink{bridge: b, conn: c})
	if err != nil {
		var addrErr *transport.AddressError
		isAddr := stderrors.As(err, &addrErr)
		b.log.Debug("dial failed",
			zap.Uint32("conn", id),
			zap.String("address", address),
			zap.Bool("address_error", isAddr),
			zap.Error(err))
		return b.connectFailure(errorPtr, err.Error(), isAddr)
	}

	c.handle = handle
	b.insertConn(c)

	b.log.Debug("connection opening", zap.Uint32("conn", id), zap.String("address", address))
	return 0
}

func (b *Bridge) insertConn(c *Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conns.insert(c)
}

func (b *Bridge) connectFailure(errorPtr uint32, message string, isAddr bool) uint32 {
	b.buffers.PutAt(ErrorSlot, []byte(message))
	if err := b.mem.WriteU32(errorPtr, ErrorSlot); err != nil {
		panic(err)
	}
	var flag uint8
	if isAddr {
		flag = 1
	}
	if err := b.mem.WriteU8(errorPtr+4, flag); err != nil {
		panic(err)
	}
	return 1
}

// ConnectionReset explicitly resets one connection. The transport handle is
// released and no reset callback fires; those are reserved for remote- and
// transport-initiated resets. A no-op after KillAll.
func (b *Bridge) ConnectionReset(id uint32) {
	if b.killed.Load() {
		return
	}

	c := func() *Connection {
		b.mu.Lock()
		defer b.mu.Unlock()
		c := b.conns.remove(id)
		if c == nil {
			panic(errors.ConnNotFound(errors.PhaseDispatch, id))
		}
		c.state = StateReset
		return c
	}()

	c.dead.Store(true)
	c.handle.Reset()
	b.log.Debug("connection reset by guest", zap.Uint32("conn", id))
}

// StreamSend sends data on one stream of an open connection. The caller
// must stay within the granted writable budget and must not have closed the
// write side. Data is copied before the transport hand-off so the transport
// never observes guest memory.
func (b *Bridge) StreamSend(id, streamID uint32, data []byte) {
	if b.killed.Load() {
		return
	}

	handle := func() transport.Conn {
		b.mu.Lock()
		defer b.mu.Unlock()
		c, s := b.mustStream(id, streamID)
		if s.sendClosed {
			panic(errors.WriteClosed(id, streamID))
		}
		if uint64(len(data)) > s.writable {
			panic(errors.BudgetExceeded(id, streamID, len(data), s.writable))
		}
		s.writable -= uint64(len(data))
		return c.handle
	}()

	buf := make([]byte, len(data))
	copy(buf, data)
	handle.Send(streamID, buf)
}

// StreamSendClose half-closes the write direction of one stream, exactly
// once, and zeroes its writable budget.
func (b *Bridge) StreamSendClose(id, streamID uint32) {
	if b.killed.Load() {
		return
	}

	handle := func() transport.Conn {
		b.mu.Lock()
		defer b.mu.Unlock()
		c, s := b.mustStream(id, streamID)
		if !s.closable {
			panic(errors.InvalidState(id, "stream write side cannot be closed on this transport"))
		}
		if s.sendClosed {
			panic(errors.WriteClosed(id, streamID))
		}
		s.sendClosed = true
		s.writable = 0
		return c.handle
	}()

	handle.SendClose(streamID)
}

// StreamOpen requests a new outbound substream on an open multi-stream
// connection. There is no failure notification path; a transport that
// cannot comply resets the whole connection.
func (b *Bridge) StreamOpen(id uint32) {
	if b.killed.Load() {
		return
	}

	handle := func() transport.Conn {
		b.mu.Lock()
		defer b.mu.Unlock()
		c, ok := b.conns.get(id)
		if !ok {
			panic(errors.ConnNotFound(errors.PhaseDispatch, id))
		}
		if c.state != StateOpen || c.kind != KindMultiStream {
			panic(errors.InvalidState(id, "substream open on a "+c.kind.String()+" connection in state "+c.state.String()))
		}
		return c.handle
	}()

	handle.OpenStream()
}

// StreamReset explicitly resets one substream of a multi-stream connection.
// No stream-reset callback fires.
func (b *Bridge) StreamReset(id, streamID uint32) {
	if b.killed.Load() {
		return
	}

	handle := func() transport.Conn {
		b.mu.Lock()
		defer b.mu.Unlock()
		c, ok := b.conns.get(id)
		if !ok {
			panic(errors.ConnNotFound(errors.PhaseDispatch, id))
		}
		if c.kind != KindMultiStream {
			panic(errors.InvalidState(id, "substream reset on a "+c.kind.String()+" connection"))
		}
		if _, ok := c.streams[streamID]; !ok {
			panic(errors.StreamNotFound(errors.PhaseDispatch, id, streamID))
		}
		delete(c.streams, streamID)
		return c.handle
	}()

	handle.ResetStream(streamID)
}

// mustStream resolves a connection and stream or panics. Callers hold b.mu.
func (b *Bridge) mustStream(id, streamID uint32) (*Connection, *stream) {
	c, ok := b.conns.get(id)
	if !ok {
		panic(errors.ConnNotFound(errors.PhaseDispatch, id))
	}
	if c.state != StateOpen {
		panic(errors.InvalidState(id, "stream operation on a connection in state "+c.state.String()))
	}
	s, ok := c.streams[streamID]
	if !ok {
		panic(errors.StreamNotFound(errors.PhaseDispatch, id, streamID))
	}
	return c, s
}

// KillAll sets the kill switch, then resets and forgets every live
// connection. Pending and future deliveries become no-ops. Idempotent, and
// callable from any goroutine including from within a callback.
func (b *Bridge) KillAll() {
	b.killed.Store(true)

	b.mu.Lock()
	snapshot := b.conns.clear()
	b.mu.Unlock()

	for _, c := range snapshot {
		c.dead.Store(true)
		c.handle.Reset()
	}
	if len(snapshot) > 0 {
		b.log.Info("kill switch engaged", zap.Int("connections", len(snapshot)))
	}
}

// Killed reports whether KillAll has been invoked.
func (b *Bridge) Killed() bool {
	return b.killed.Load()
}

// ReportFatal records the first fatal error, typically a guest panic. Run
// tears the bridge down and returns the error after the current dispatch.
func (b *Bridge) ReportFatal(err error) {
	b.fatalMu.Lock()
	if b.fatalErr == nil {
		b.fatalErr = err
	}
	b.fatalMu.Unlock()
}

// FatalError returns the recorded fatal error, if any.
func (b *Bridge) FatalError() error {
	b.fatalMu.Lock()
	defer b.fatalMu.Unlock()
	return b.fatalErr
}

// Connections returns a point-in-time view of every live connection,
// ordered by identifier.
func (b *Bridge) Connections() []ConnInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]ConnInfo, 0, b.conns.len())
	for id, c := range b.conns.conns {
		info := ConnInfo{ID: id, Kind: c.kind, State: c.state}
		for sid, s := range c.streams {
			info.Streams = append(info.Streams, StreamInfo{
				ID:         sid,
				Outbound:   s.outbound,
				SendClosed: s.sendClosed,
				Writable:   s.writable,
			})
		}
		sort.Slice(info.Streams, func(i, j int) bool { return info.Streams[i].ID < info.Streams[j].ID })
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// connSink adapts the thread-safe transport event feed of one connection
// into queue items. Events for dead connections are dropped at the door.
type connSink struct {
	bridge *Bridge
	conn   *Connection
}

func (s *connSink) Deliver(ev transport.Event) {
	if s.bridge.killed.Load() || s.conn.dead.Load() {
		return
	}
	s.bridge.queue.push(item{conn: s.conn, ev: ev})
}

// nopDiagnostics is the default sink: logs and tracing marks vanish, but a
// guest panic still halts execution.
type nopDiagnostics struct{}

func (nopDiagnostics) Panic(message string) {
	panic(errors.GuestPanic(message))
}

func (nopDiagnostics) Log(level wasmbridge.LogLevel, target, message string) {}
func (nopDiagnostics) TaskEnter(name string)                                 {}
func (nopDiagnostics) TaskExit()                                             {}
func (nopDiagnostics) ResponsesNonEmpty()                                    {}
