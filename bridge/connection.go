package bridge

import (
	"fmt"
	"sync/atomic"

	"github.com/portway-io/wasm-bridge/transport"
)

// ConnKind distinguishes connections exposing one implicit channel from
// those exposing independently-addressable substreams. The kind is unknown
// until the transport's open event arrives.
type ConnKind uint8

const (
	KindUnknown ConnKind = iota
	KindSingleStream
	KindMultiStream
)

func (k ConnKind) String() string {
	switch k {
	case KindSingleStream:
		return "single-stream"
	case KindMultiStream:
		return "multi-stream"
	default:
		return "unknown"
	}
}

// State is the lifecycle state of a connection. Reset is terminal.
type State uint8

const (
	StateOpening State = iota
	StateOpen
	StateReset
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateReset:
		return "reset"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// stream tracks one substream's direction, write half-closure and
// outstanding writable budget. Single-stream connections hold exactly one
// entry under id 0.
type stream struct {
	outbound   bool
	closable   bool
	sendClosed bool
	writable   uint64
}

// Connection is one logical link to a remote peer, keyed by a guest-chosen
// identifier. All fields except dead are guarded by the bridge mutex.
type Connection struct {
	id      uint32
	kind    ConnKind
	state   State
	handle  transport.Conn
	streams map[uint32]*stream

	// dead is set on explicit reset, remote reset and kill-all. Queued
	// events for a dead connection are discarded instead of delivered.
	dead atomic.Bool
}

func newConnection(id uint32) *Connection {
	return &Connection{
		id:      id,
		streams: make(map[uint32]*stream),
	}
}

// StreamInfo is a point-in-time view of one substream, for inspection.
type StreamInfo struct {
	ID         uint32
	Outbound   bool
	SendClosed bool
	Writable   uint64
}

// ConnInfo is a point-in-time view of one connection, for inspection.
type ConnInfo struct {
	ID      uint32
	Kind    ConnKind
	State   State
	Streams []StreamInfo
}
