package transport

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// chanSink forwards events into a channel so tests can await them.
type chanSink struct {
	ch chan Event
}

func newChanSink() *chanSink {
	return &chanSink{ch: make(chan Event, 64)}
}

func (s *chanSink) Deliver(ev Event) {
	s.ch <- ev
}

func (s *chanSink) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-s.ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for transport event")
		return Event{}
	}
}

// collect reads events until one of kind want arrives, accumulating message
// payloads along the way.
func (s *chanSink) awaitPayload(t *testing.T, want []byte) {
	t.Helper()
	var got []byte
	for len(got) < len(want) {
		ev := s.next(t)
		switch ev.Kind {
		case EventMessage:
			got = append(got, ev.Data...)
		case EventWritableBytes:
			// budget replenishment, ignore
		default:
			t.Fatalf("unexpected event %v while waiting for payload", ev.Kind)
		}
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("payload = %q, want %q", got, want)
	}
}

func TestTCPDialBadAddress(t *testing.T) {
	d := &TCPDialer{}
	_, err := d.Dial("no-port-here", newChanSink())
	var addrErr *AddressError
	if !errors.As(err, &addrErr) {
		t.Fatalf("expected *AddressError, got %v", err)
	}
}

func TestTCPEcho(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		io.Copy(c, c)
		c.Close()
	}()

	sink := newChanSink()
	d := &TCPDialer{DialTimeout: 5 * time.Second, InitialWindow: 128}
	conn, err := d.Dial(ln.Addr().String(), sink)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Reset()

	opened := sink.next(t)
	if opened.Kind != EventOpened {
		t.Fatalf("first event = %v, want opened", opened.Kind)
	}
	if opened.InitialWritableBytes != 128 || !opened.WriteClosable {
		t.Errorf("opened event = %+v, want window 128 closable", opened)
	}

	conn.Send(0, []byte("hello over tcp"))
	sink.awaitPayload(t, []byte("hello over tcp"))
}

func TestTCPRemoteClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		c.Close()
	}()

	sink := newChanSink()
	d := &TCPDialer{DialTimeout: 5 * time.Second}
	conn, err := d.Dial(ln.Addr().String(), sink)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Reset()

	if ev := sink.next(t); ev.Kind != EventOpened {
		t.Fatalf("first event = %v, want opened", ev.Kind)
	}
	for {
		ev := sink.next(t)
		if ev.Kind == EventConnReset {
			if ev.Message == "" {
				t.Error("conn-reset event carries no message")
			}
			return
		}
	}
}

func TestTCPConnectFailure(t *testing.T) {
	// Bind and immediately close to obtain a port that refuses connections.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	address := ln.Addr().String()
	ln.Close()

	sink := newChanSink()
	d := &TCPDialer{DialTimeout: 5 * time.Second}
	conn, err := d.Dial(address, sink)
	if err != nil {
		t.Fatalf("Dial must not fail synchronously: %v", err)
	}
	defer conn.Reset()

	if ev := sink.next(t); ev.Kind != EventConnReset {
		t.Fatalf("event = %v, want conn-reset", ev.Kind)
	}
}

func TestTCPResetSilences(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		io.Copy(io.Discard, c)
		c.Close()
	}()

	sink := newChanSink()
	d := &TCPDialer{DialTimeout: 5 * time.Second}
	conn, err := d.Dial(ln.Addr().String(), sink)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	if ev := sink.next(t); ev.Kind != EventOpened {
		t.Fatalf("first event = %v, want opened", ev.Kind)
	}

	conn.Reset()

	// The read loop notices the closed socket but must not deliver anything.
	select {
	case ev := <-sink.ch:
		t.Fatalf("unexpected event after reset: %v", ev.Kind)
	case <-time.After(200 * time.Millisecond):
	}
}
