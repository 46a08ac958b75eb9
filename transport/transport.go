package transport

import (
	"fmt"
	"strings"
	"sync"
)

// EventKind discriminates asynchronous transport notifications.
type EventKind uint8

const (
	// EventOpened reports that the remote accepted the connection.
	EventOpened EventKind = iota
	// EventConnReset reports that the connection was closed or refused.
	EventConnReset
	// EventWritableBytes grants additional writable budget on one stream.
	EventWritableBytes
	// EventMessage delivers received bytes on one stream.
	EventMessage
	// EventStreamOpened announces a new substream on a multi-stream connection.
	EventStreamOpened
	// EventStreamReset reports that one substream was reset by the remote.
	EventStreamReset
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventConnReset:
		return "conn-reset"
	case EventWritableBytes:
		return "writable-bytes"
	case EventMessage:
		return "message"
	case EventStreamOpened:
		return "stream-opened"
	case EventStreamReset:
		return "stream-reset"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Event is one asynchronous notification from a transport to the bridge.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind

	// StreamID identifies the substream for stream-level events.
	// Single-stream transports use 0.
	StreamID uint32

	// Opened: Multi selects the multi-stream variant. Single-stream opens
	// carry the initial budget and whether the write side can be closed;
	// multi-stream opens carry both certificate fingerprints.
	Multi                bool
	InitialWritableBytes uint32
	WriteClosable        bool
	LocalFingerprint     []byte
	RemoteFingerprint    []byte

	// ConnReset: human-readable reason.
	Message string

	// WritableBytes: incremental budget grant.
	NumBytes uint32

	// Message: the received payload. The transport relinquishes ownership
	// of the slice when delivering.
	Data []byte

	// StreamOpened: direction of the new substream.
	Outbound bool
}

// Sink receives events from a transport. Implementations are safe for use
// from any goroutine; the bridge serializes actual guest delivery.
type Sink interface {
	Deliver(Event)
}

// Conn is the transport-owned handle for one live connection. The bridge
// validates state and budgets before calling; implementations report
// failures through reset events on the Sink, never through return values.
type Conn interface {
	// Send writes data on one stream. The slice is owned by the transport
	// after the call.
	Send(streamID uint32, data []byte)

	// SendClose half-closes the write direction of one stream. Only called
	// when the open event declared the stream write-closable.
	SendClose(streamID uint32)

	// OpenStream requests a new outbound substream. Only called on
	// multi-stream connections. There is no failure path: a transport that
	// cannot comply must reset the whole connection.
	OpenStream()

	// ResetStream abruptly closes one substream. No event follows.
	ResetStream(streamID uint32)

	// Reset abruptly closes the connection and releases its resources.
	// No further events may be delivered after Reset returns.
	Reset()
}

// Dialer opens connections toward remote peers. Dial returns synchronously;
// connection establishment continues in the background and resolves through
// an Opened or ConnReset event on the sink.
//
// A synchronous error means the connection was never started. Address and
// protocol parse failures are reported as *AddressError so callers can
// distinguish them from generic failures.
type Dialer interface {
	Dial(address string, sink Sink) (Conn, error)
}

// AddressError reports that an address could not be parsed or is not
// supported by the dialer.
type AddressError struct {
	Address string
	Err     error
}

func (e *AddressError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unsupported address %q", e.Address)
	}
	return fmt.Sprintf("invalid address %q: %v", e.Address, e.Err)
}

func (e *AddressError) Unwrap() error {
	return e.Err
}

// Mux routes dials to registered dialers by address scheme. Addresses take
// the form "scheme://rest"; the rest is passed through unchanged.
type Mux struct {
	mu      sync.RWMutex
	dialers map[string]Dialer
}

// NewMux creates an empty scheme router.
func NewMux() *Mux {
	return &Mux{dialers: make(map[string]Dialer)}
}

// Register routes the given scheme to d, replacing any previous entry.
func (m *Mux) Register(scheme string, d Dialer) {
	m.mu.Lock()
	m.dialers[scheme] = d
	m.mu.Unlock()
}

// Dial implements Dialer. Unknown or missing schemes fail with *AddressError.
func (m *Mux) Dial(address string, sink Sink) (Conn, error) {
	scheme, rest, found := strings.Cut(address, "://")
	if !found || scheme == "" {
		return nil, &AddressError{Address: address, Err: fmt.Errorf("missing scheme")}
	}

	m.mu.RLock()
	d, ok := m.dialers[scheme]
	m.mu.RUnlock()
	if !ok {
		return nil, &AddressError{Address: address, Err: fmt.Errorf("unknown scheme %q", scheme)}
	}
	return d.Dial(rest, sink)
}
