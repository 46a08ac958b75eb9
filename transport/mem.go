package transport

import (
	"fmt"
	"sync"
)

// Hub is an in-memory transport. Endpoints are registered under plain names
// and dialing one hands the registered handler a *Peer representing the
// remote side of the new connection. No goroutines, sockets or framing are
// involved, which makes the hub the transport of choice for tests and for
// embedding demos.
type Hub struct {
	mu       sync.Mutex
	handlers map[string]func(*Peer)
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{handlers: make(map[string]func(*Peer))}
}

// Handle registers an endpoint. The handler runs synchronously inside Dial
// and receives the remote side of every connection dialed to name.
func (h *Hub) Handle(name string, fn func(*Peer)) {
	h.mu.Lock()
	h.handlers[name] = fn
	h.mu.Unlock()
}

// Dial implements Dialer. Dialing an unregistered endpoint fails with a
// generic error; an empty endpoint name is an address error.
func (h *Hub) Dial(address string, sink Sink) (Conn, error) {
	if address == "" {
		return nil, &AddressError{Address: address, Err: fmt.Errorf("empty endpoint name")}
	}

	h.mu.Lock()
	fn := h.handlers[address]
	h.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("connection refused: no endpoint %q", address)
	}

	p := &Peer{
		addr:       address,
		sink:       sink,
		recv:       make(map[uint32][][]byte),
		sendClosed: make(map[uint32]bool),
	}
	fn(p)
	return &memConn{peer: p}, nil
}

// Peer is the remote side of an in-memory connection. Its methods inject
// events toward the bridge and record everything the bridge's side did.
// All methods are safe for concurrent use.
type Peer struct {
	// OnMessage, if set, observes every payload the local side sends.
	OnMessage func(streamID uint32, data []byte)
	// OnOpenStream, if set, observes outbound substream requests. Handlers
	// typically respond by calling OpenStream with a fresh identifier.
	OnOpenStream func()

	addr string
	sink Sink

	mu           sync.Mutex
	closed       bool
	wasReset     bool
	recv         map[uint32][][]byte
	sendClosed   map[uint32]bool
	openRequests int
	streamResets []uint32
}

// Addr returns the endpoint name this peer was dialed under.
func (p *Peer) Addr() string { return p.addr }

func (p *Peer) deliver(ev Event) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}
	p.sink.Deliver(ev)
}

// Open accepts the connection as single-stream.
func (p *Peer) Open(initialWritableBytes uint32, writeClosable bool) {
	p.deliver(Event{
		Kind:                 EventOpened,
		InitialWritableBytes: initialWritableBytes,
		WriteClosable:        writeClosable,
	})
}

// OpenMulti accepts the connection as multi-stream, announcing both
// certificate fingerprints.
func (p *Peer) OpenMulti(localFingerprint, remoteFingerprint []byte) {
	p.deliver(Event{
		Kind:              EventOpened,
		Multi:             true,
		LocalFingerprint:  localFingerprint,
		RemoteFingerprint: remoteFingerprint,
	})
}

// Grant increases the writable budget of one stream.
func (p *Peer) Grant(streamID, numBytes uint32) {
	p.deliver(Event{Kind: EventWritableBytes, StreamID: streamID, NumBytes: numBytes})
}

// Send delivers payload bytes from the remote.
func (p *Peer) Send(streamID uint32, data []byte) {
	p.deliver(Event{Kind: EventMessage, StreamID: streamID, Data: data})
}

// OpenStream announces a substream, inbound or outbound.
func (p *Peer) OpenStream(streamID uint32, outbound bool, initialWritableBytes uint32) {
	p.deliver(Event{
		Kind:                 EventStreamOpened,
		StreamID:             streamID,
		Outbound:             outbound,
		InitialWritableBytes: initialWritableBytes,
	})
}

// ResetStream resets one substream from the remote side.
func (p *Peer) ResetStream(streamID uint32) {
	p.deliver(Event{Kind: EventStreamReset, StreamID: streamID})
}

// Reset closes the whole connection from the remote side.
func (p *Peer) Reset(message string) {
	p.deliver(Event{Kind: EventConnReset, Message: message})
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Received returns every payload the local side sent on one stream.
func (p *Peer) Received(streamID uint32) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.recv[streamID]))
	copy(out, p.recv[streamID])
	return out
}

// SendClosed reports whether the local side half-closed one stream.
func (p *Peer) SendClosed(streamID uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sendClosed[streamID]
}

// OpenRequests returns how many outbound substreams the local side requested.
func (p *Peer) OpenRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openRequests
}

// StreamResets returns the substreams the local side reset, in order.
func (p *Peer) StreamResets() []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uint32, len(p.streamResets))
	copy(out, p.streamResets)
	return out
}

// WasReset reports whether the local side reset the connection.
func (p *Peer) WasReset() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wasReset
}

type memConn struct {
	peer *Peer
}

func (c *memConn) Send(streamID uint32, data []byte) {
	p := c.peer
	p.mu.Lock()
	p.recv[streamID] = append(p.recv[streamID], data)
	hook := p.OnMessage
	p.mu.Unlock()
	if hook != nil {
		hook(streamID, data)
	}
}

func (c *memConn) SendClose(streamID uint32) {
	p := c.peer
	p.mu.Lock()
	p.sendClosed[streamID] = true
	p.mu.Unlock()
}

func (c *memConn) OpenStream() {
	p := c.peer
	p.mu.Lock()
	p.openRequests++
	hook := p.OnOpenStream
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (c *memConn) ResetStream(streamID uint32) {
	p := c.peer
	p.mu.Lock()
	p.streamResets = append(p.streamResets, streamID)
	p.mu.Unlock()
}

func (c *memConn) Reset() {
	p := c.peer
	p.mu.Lock()
	p.closed = true
	p.wasReset = true
	p.mu.Unlock()
}
