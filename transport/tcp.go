package transport

import (
	"io"
	"net"
	"sync"
	"time"
)

// defaultWindow is the writable budget granted when a socket connection
// opens. The budget is replenished as writes complete, so it bounds the
// bytes in flight toward the kernel, not the connection lifetime total.
const defaultWindow = 64 * 1024

// TCPDialer opens single-stream connections over plain TCP. Addresses are
// "host:port". The dial itself happens in the background; establishment
// failures arrive as a conn-reset event.
type TCPDialer struct {
	// DialTimeout bounds connection establishment. Zero means the
	// operating system default.
	DialTimeout time.Duration

	// InitialWindow overrides the writable budget granted on open.
	InitialWindow uint32
}

// Dial implements Dialer.
func (d *TCPDialer) Dial(address string, sink Sink) (Conn, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		return nil, &AddressError{Address: address, Err: err}
	}
	c := newSocketConn(sink, d.InitialWindow, true)
	go c.connect(address, d.DialTimeout, nil)
	return c, nil
}

// socketConn adapts one net.Conn to the single-stream Conn contract. It is
// shared by the plain TCP and encrypted TCP dialers; the latter passes a
// wrap function that performs its handshake on the raw socket.
type socketConn struct {
	sink     Sink
	window   uint32
	closable bool

	mu     sync.Mutex
	conn   net.Conn
	closed bool

	resetOnce sync.Once
}

func newSocketConn(sink Sink, window uint32, closable bool) *socketConn {
	if window == 0 {
		window = defaultWindow
	}
	return &socketConn{sink: sink, window: window, closable: closable}
}

func (c *socketConn) connect(address string, timeout time.Duration, wrap func(net.Conn) (net.Conn, error)) {
	nc, err := (&net.Dialer{Timeout: timeout}).Dial("tcp", address)
	if err != nil {
		c.connReset(err.Error())
		return
	}

	if wrap != nil {
		wrapped, err := wrap(nc)
		if err != nil {
			nc.Close()
			c.connReset(err.Error())
			return
		}
		nc = wrapped
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		nc.Close()
		return
	}
	c.conn = nc
	c.mu.Unlock()

	c.deliver(Event{
		Kind:                 EventOpened,
		InitialWritableBytes: c.window,
		WriteClosable:        c.closable,
	})

	for {
		buf := make([]byte, 4096)
		n, err := nc.Read(buf)
		if n > 0 {
			c.deliver(Event{Kind: EventMessage, Data: buf[:n]})
		}
		if err != nil {
			if err == io.EOF {
				c.connReset("remote closed the connection")
			} else {
				c.connReset(err.Error())
			}
			return
		}
	}
}

func (c *socketConn) deliver(ev Event) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	c.sink.Deliver(ev)
}

// connReset reports a transport-initiated teardown exactly once, then
// silences the connection and releases the socket.
func (c *socketConn) connReset(message string) {
	c.resetOnce.Do(func() {
		c.deliver(Event{Kind: EventConnReset, Message: message})
		c.mu.Lock()
		c.closed = true
		nc := c.conn
		c.mu.Unlock()
		if nc != nil {
			nc.Close()
		}
	})
}

func (c *socketConn) Send(streamID uint32, data []byte) {
	c.mu.Lock()
	nc := c.conn
	closed := c.closed
	c.mu.Unlock()
	if closed || nc == nil {
		return
	}
	if _, err := nc.Write(data); err != nil {
		c.connReset(err.Error())
		return
	}
	// Budget consumed by this send is granted back once the write has been
	// handed to the kernel.
	c.deliver(Event{Kind: EventWritableBytes, NumBytes: uint32(len(data))})
}

type writeCloser interface {
	CloseWrite() error
}

func (c *socketConn) SendClose(streamID uint32) {
	c.mu.Lock()
	nc := c.conn
	c.mu.Unlock()
	if wc, ok := nc.(writeCloser); ok {
		wc.CloseWrite()
	}
}

func (c *socketConn) OpenStream() {
	panic("socket transport is single-stream")
}

func (c *socketConn) ResetStream(streamID uint32) {
	panic("socket transport is single-stream")
}

func (c *socketConn) Reset() {
	c.mu.Lock()
	c.closed = true
	nc := c.conn
	c.mu.Unlock()
	if nc != nil {
		nc.Close()
	}
}
