package transport

import (
	"bytes"
	"errors"
	"sync"
	"testing"
)

// recordSink collects delivered events for inspection.
type recordSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordSink) Deliver(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestHubDialUnregistered(t *testing.T) {
	h := NewHub()
	_, err := h.Dial("nowhere", &recordSink{})
	if err == nil {
		t.Fatal("expected error for unregistered endpoint")
	}
	var addrErr *AddressError
	if errors.As(err, &addrErr) {
		t.Fatalf("refused endpoint must not be an address error, got %v", err)
	}
}

func TestHubDialEmptyAddress(t *testing.T) {
	h := NewHub()
	_, err := h.Dial("", &recordSink{})
	var addrErr *AddressError
	if !errors.As(err, &addrErr) {
		t.Fatalf("expected *AddressError, got %v", err)
	}
}

func TestHubSingleStreamFlow(t *testing.T) {
	h := NewHub()
	var peer *Peer
	h.Handle("echo", func(p *Peer) {
		peer = p
		p.Open(64, true)
	})

	sink := &recordSink{}
	conn, err := h.Dial("echo", sink)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	events := sink.all()
	if len(events) != 1 || events[0].Kind != EventOpened {
		t.Fatalf("expected one opened event, got %v", events)
	}
	if events[0].InitialWritableBytes != 64 || !events[0].WriteClosable {
		t.Errorf("opened event = %+v, want budget 64 closable", events[0])
	}

	conn.Send(0, []byte("ping"))
	got := peer.Received(0)
	if len(got) != 1 || !bytes.Equal(got[0], []byte("ping")) {
		t.Fatalf("peer received %v, want [ping]", got)
	}

	peer.Send(0, []byte("pong"))
	peer.Grant(0, 4)
	events = sink.all()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[1].Kind != EventMessage || !bytes.Equal(events[1].Data, []byte("pong")) {
		t.Errorf("message event = %+v", events[1])
	}
	if events[2].Kind != EventWritableBytes || events[2].NumBytes != 4 {
		t.Errorf("grant event = %+v", events[2])
	}

	conn.SendClose(0)
	if !peer.SendClosed(0) {
		t.Error("peer did not observe send close")
	}

	conn.Reset()
	if !peer.WasReset() {
		t.Error("peer did not observe reset")
	}
	// A reset connection delivers nothing further.
	peer.Send(0, []byte("late"))
	if got := len(sink.all()); got != 3 {
		t.Errorf("events after reset = %d, want 3", got)
	}
}

func TestHubMultiStreamFlow(t *testing.T) {
	h := NewHub()
	var peer *Peer
	h.Handle("p2p", func(p *Peer) {
		peer = p
		p.OnOpenStream = func() { p.OpenStream(9, true, 32) }
		p.OpenMulti([]byte{0xaa}, []byte{0xbb})
	})

	sink := &recordSink{}
	conn, err := h.Dial("p2p", sink)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	events := sink.all()
	if len(events) != 1 || !events[0].Multi {
		t.Fatalf("expected multi-stream open, got %v", events)
	}
	if !bytes.Equal(events[0].LocalFingerprint, []byte{0xaa}) ||
		!bytes.Equal(events[0].RemoteFingerprint, []byte{0xbb}) {
		t.Errorf("fingerprints = %+v", events[0])
	}

	conn.OpenStream()
	if peer.OpenRequests() != 1 {
		t.Errorf("open requests = %d, want 1", peer.OpenRequests())
	}
	events = sink.all()
	last := events[len(events)-1]
	if last.Kind != EventStreamOpened || last.StreamID != 9 || !last.Outbound || last.InitialWritableBytes != 32 {
		t.Fatalf("stream-opened event = %+v", last)
	}

	conn.ResetStream(9)
	if got := peer.StreamResets(); len(got) != 1 || got[0] != 9 {
		t.Errorf("stream resets = %v, want [9]", got)
	}
}

func TestMuxRouting(t *testing.T) {
	h := NewHub()
	dialed := ""
	h.Handle("svc", func(p *Peer) { dialed = p.Addr(); p.Open(1, false) })

	m := NewMux()
	m.Register("mem", h)

	if _, err := m.Dial("mem://svc", &recordSink{}); err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	if dialed != "svc" {
		t.Errorf("endpoint = %q, want %q", dialed, "svc")
	}

	var addrErr *AddressError
	if _, err := m.Dial("tcp://1.2.3.4:80", &recordSink{}); !errors.As(err, &addrErr) {
		t.Errorf("unknown scheme: expected *AddressError, got %v", err)
	}
	if _, err := m.Dial("no-scheme-here", &recordSink{}); !errors.As(err, &addrErr) {
		t.Errorf("missing scheme: expected *AddressError, got %v", err)
	}
}

func TestEventKindString(t *testing.T) {
	if got := EventMessage.String(); got != "message" {
		t.Errorf("EventMessage.String() = %q", got)
	}
	if got := EventKind(99).String(); got != "event(99)" {
		t.Errorf("EventKind(99).String() = %q", got)
	}
}
