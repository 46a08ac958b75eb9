package bridge

import (
	"context"

	"go.uber.org/zap"

	"github.com/portway-io/wasm-bridge/transport"
)

// handshakeDiscriminator prefixes the multi-stream open buffer, ahead of
// the concatenated local and remote certificate fingerprints.
const handshakeDiscriminator byte = 0

// Run drains the event queue, re-entering the guest for each item, until
// ctx is done or a fatal guest error was reported. On a fatal error Run
// engages the kill switch before returning it.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.queue.wake:
		}

		b.DispatchPending(ctx)

		if err := b.FatalError(); err != nil {
			b.KillAll()
			return err
		}
	}
}

// DispatchPending synchronously delivers every queued event. It must run on
// the same goroutine that serializes guest execution.
func (b *Bridge) DispatchPending(ctx context.Context) {
	for _, it := range b.queue.drain() {
		b.dispatch(ctx, it)
	}
}

func (b *Bridge) dispatch(ctx context.Context, it item) {
	if b.killed.Load() {
		return
	}

	if it.isTimer {
		b.swallow("timer_fired", b.guest.TimerFired(ctx, it.timerID))
		return
	}

	c := it.conn
	if c.dead.Load() {
		return
	}

	switch it.ev.Kind {
	case transport.EventOpened:
		b.dispatchOpened(ctx, c, it.ev)
	case transport.EventConnReset:
		b.dispatchConnReset(ctx, c, it.ev)
	case transport.EventWritableBytes:
		b.dispatchWritableBytes(ctx, c, it.ev)
	case transport.EventMessage:
		b.dispatchMessage(ctx, c, it.ev)
	case transport.EventStreamOpened:
		b.dispatchStreamOpened(ctx, c, it.ev)
	case transport.EventStreamReset:
		b.dispatchStreamReset(ctx, c, it.ev)
	default:
		b.log.Warn("transport delivered unknown event",
			zap.Uint32("conn", c.id),
			zap.Uint8("kind", uint8(it.ev.Kind)))
	}
}

func (b *Bridge) dispatchOpened(ctx context.Context, c *Connection, ev transport.Event) {
	ok := func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c.state != StateOpening {
			return false
		}
		c.state = StateOpen
		if ev.Multi {
			c.kind = KindMultiStream
		} else {
			c.kind = KindSingleStream
			c.streams[0] = &stream{
				outbound: true,
				closable: ev.WriteClosable,
				writable: uint64(ev.InitialWritableBytes),
			}
		}
		return true
	}()
	if !ok {
		b.log.Warn("transport delivered open twice", zap.Uint32("conn", c.id))
		return
	}

	if ev.Multi {
		buf := make([]byte, 0, 1+len(ev.LocalFingerprint)+len(ev.RemoteFingerprint))
		buf = append(buf, handshakeDiscriminator)
		buf = append(buf, ev.LocalFingerprint...)
		buf = append(buf, ev.RemoteFingerprint...)
		idx := b.buffers.Put(buf)
		b.swallow("connection_opened_multi_stream", b.guest.ConnectionOpenedMultiStream(ctx, c.id, idx))
		b.buffers.Drop(idx)
	} else {
		b.swallow("connection_opened_single_stream",
			b.guest.ConnectionOpenedSingleStream(ctx, c.id, ev.InitialWritableBytes, ev.WriteClosable))
	}
}

func (b *Bridge) dispatchConnReset(ctx context.Context, c *Connection, ev transport.Event) {
	c.dead.Store(true)
	b.mu.Lock()
	c.state = StateReset
	b.conns.removeConn(c)
	b.mu.Unlock()

	idx := b.buffers.Put([]byte(ev.Message))
	b.swallow("connection_reset", b.guest.ConnectionReset(ctx, c.id, idx))
	b.buffers.Drop(idx)
}

func (b *Bridge) dispatchWritableBytes(ctx context.Context, c *Connection, ev transport.Event) {
	ok := func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c.state != StateOpen {
			return false
		}
		s := c.streams[ev.StreamID]
		if s == nil || s.sendClosed {
			// Grants arriving after a half-close or stream reset are stale.
			return false
		}
		s.writable += uint64(ev.NumBytes)
		return true
	}()
	if !ok {
		return
	}

	b.swallow("stream_writable_bytes",
		b.guest.StreamWritableBytes(ctx, c.id, ev.StreamID, ev.NumBytes))
}

func (b *Bridge) dispatchMessage(ctx context.Context, c *Connection, ev transport.Event) {
	ok := func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return c.state == StateOpen && c.streams[ev.StreamID] != nil
	}()
	if !ok {
		return
	}

	idx := b.buffers.Put(ev.Data)
	b.swallow("stream_message", b.guest.StreamMessage(ctx, c.id, ev.StreamID, idx))
	b.buffers.Drop(idx)
}

func (b *Bridge) dispatchStreamOpened(ctx context.Context, c *Connection, ev transport.Event) {
	ok := func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c.state != StateOpen || c.kind != KindMultiStream {
			return false
		}
		if _, dup := c.streams[ev.StreamID]; dup {
			return false
		}
		c.streams[ev.StreamID] = &stream{
			outbound: ev.Outbound,
			closable: true,
			writable: uint64(ev.InitialWritableBytes),
		}
		return true
	}()
	if !ok {
		b.log.Warn("discarding substream announcement",
			zap.Uint32("conn", c.id),
			zap.Uint32("stream", ev.StreamID))
		return
	}

	b.swallow("stream_opened",
		b.guest.StreamOpened(ctx, c.id, ev.StreamID, ev.Outbound, ev.InitialWritableBytes))
}

func (b *Bridge) dispatchStreamReset(ctx context.Context, c *Connection, ev transport.Event) {
	ok := func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c.kind != KindMultiStream {
			// The implicit stream of a single-stream connection cannot be
			// reset on its own; only a full connection reset is valid.
			return false
		}
		if c.streams[ev.StreamID] == nil {
			return false
		}
		delete(c.streams, ev.StreamID)
		return true
	}()
	if !ok {
		return
	}

	b.swallow("stream_reset", b.guest.StreamReset(ctx, c.id, ev.StreamID))
}

// swallow discards a guest re-entry failure. The guest may already be torn
// down; a crash in the notification path must never propagate.
func (b *Bridge) swallow(callback string, err error) {
	if err != nil {
		b.log.Debug("guest callback failed", zap.String("callback", callback), zap.Error(err))
	}
}
