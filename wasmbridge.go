package wasmbridge

import "context"

// Memory represents guest linear memory
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// MemorySizer provides the current size of guest linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Guest is the set of re-entry points the bridge invokes on the sandboxed
// module. Implementations translate each call into the corresponding guest
// export. Errors indicate the guest was unreachable (already torn down);
// the bridge discards them.
//
// Stream identifiers are always provided. Single-stream connections use
// stream id 0 for every stream-level call.
type Guest interface {
	TimerFired(ctx context.Context, id uint32) error
	ConnectionOpenedSingleStream(ctx context.Context, connID uint32, initialWritableBytes uint32, writeClosable bool) error
	ConnectionOpenedMultiStream(ctx context.Context, connID uint32, handshakeBuffer uint32) error
	ConnectionReset(ctx context.Context, connID uint32, messageBuffer uint32) error
	StreamWritableBytes(ctx context.Context, connID uint32, streamID uint32, numBytes uint32) error
	StreamMessage(ctx context.Context, connID uint32, streamID uint32, messageBuffer uint32) error
	StreamOpened(ctx context.Context, connID uint32, streamID uint32, outbound bool, initialWritableBytes uint32) error
	StreamReset(ctx context.Context, connID uint32, streamID uint32) error
}
