package transport

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"
)

// handshakePair runs the key exchange over an in-memory pipe and returns the
// two encrypted ends.
func handshakePair(t *testing.T) (client, server net.Conn) {
	t.Helper()
	c1, c2 := net.Pipe()

	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := Handshake(c2, false)
		done <- result{conn, err}
	}()

	client, err := Handshake(c1, true)
	if err != nil {
		t.Fatalf("dialer handshake failed: %v", err)
	}
	r := <-done
	if r.err != nil {
		t.Fatalf("acceptor handshake failed: %v", r.err)
	}
	return client, r.conn
}

func TestSecureRoundTrip(t *testing.T) {
	client, server := handshakePair(t)
	defer client.Close()
	defer server.Close()

	go func() {
		client.Write([]byte("attack at dawn"))
	}()

	buf := make([]byte, 64)
	n, err := server.Read(buf)
	if err != nil {
		t.Fatalf("server read failed: %v", err)
	}
	if string(buf[:n]) != "attack at dawn" {
		t.Fatalf("server read %q", buf[:n])
	}

	go func() {
		server.Write([]byte("acknowledged"))
	}()
	n, err = client.Read(buf)
	if err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	if string(buf[:n]) != "acknowledged" {
		t.Fatalf("client read %q", buf[:n])
	}
}

func TestSecureLargePayloadFraming(t *testing.T) {
	client, server := handshakePair(t)
	defer client.Close()
	defer server.Close()

	// Spans three frames at the 16KiB cap.
	payload := make([]byte, maxFrameSize*2+100)
	for i := range payload {
		payload[i] = byte(i)
	}

	go func() {
		client.Write(payload)
	}()

	got := make([]byte, 0, len(payload))
	buf := make([]byte, 8192)
	for len(got) < len(payload) {
		n, err := server.Read(buf)
		if err != nil {
			t.Fatalf("server read failed after %d bytes: %v", len(got), err)
		}
		got = append(got, buf[:n]...)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("payload corrupted in transit")
	}
}

func TestSecureTamperDetected(t *testing.T) {
	client, server := handshakePair(t)
	defer client.Close()
	defer server.Close()

	ss := server.(*secureStream)
	ciphertext := ss.enc.Seal(nil, ss.encNonce, []byte("legit"), nil)
	ciphertext[0] ^= 0xff

	go func() {
		binary.Write(ss.Conn, binary.BigEndian, uint32(len(ciphertext)))
		ss.Conn.Write(ciphertext)
	}()

	buf := make([]byte, 64)
	if _, err := client.Read(buf); err == nil {
		t.Fatal("expected tampered frame to fail authentication")
	}
}

func TestSecureOversizedFrameRejected(t *testing.T) {
	client, server := handshakePair(t)
	defer client.Close()
	defer server.Close()

	ss := server.(*secureStream)
	go func() {
		binary.Write(ss.Conn, binary.BigEndian, uint32(maxFrameSize*4))
	}()

	buf := make([]byte, 64)
	if _, err := client.Read(buf); err == nil {
		t.Fatal("expected oversized frame to be rejected")
	}
}

func TestSecureDialerEcho(t *testing.T) {
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
		sc, err := Handshake(c, false)
		if err != nil {
			c.Close()
			return
		}
		io.Copy(sc, sc)
		sc.Close()
	}()

	sink := newChanSink()
	d := &SecureDialer{DialTimeout: 5 * time.Second}
	conn, err := d.Dial(ln.Addr().String(), sink)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Reset()

	opened := sink.next(t)
	if opened.Kind != EventOpened {
		t.Fatalf("first event = %v, want opened", opened.Kind)
	}
	if opened.WriteClosable {
		t.Error("encrypted stream must not be write-closable")
	}

	conn.Send(0, []byte("over the wire, sealed"))
	sink.awaitPayload(t, []byte("over the wire, sealed"))
}

func TestSecureDialBadAddress(t *testing.T) {
	d := &SecureDialer{}
	if _, err := d.Dial("bare-host", newChanSink()); err == nil {
		t.Fatal("expected address error")
	}
}
