package transport

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	// nonceSize is 12 bytes for ChaCha20-Poly1305.
	nonceSize = 12
	// maxFrameSize caps the plaintext of a single encrypted frame.
	maxFrameSize = 16 * 1024
	// hkdfInfo domain-separates the derived keys.
	hkdfInfo = "wasm-bridge/secure-transport"
)

// SecureDialer opens single-stream connections over TCP with an
// authenticated-encryption layer: an ephemeral X25519 key exchange followed
// by length-prefixed ChaCha20-Poly1305 frames, one key per direction.
//
// The encrypted stream cannot be half-closed, so open events declare the
// write side non-closable.
type SecureDialer struct {
	// DialTimeout bounds connection establishment. Zero means the
	// operating system default.
	DialTimeout time.Duration

	// InitialWindow overrides the writable budget granted on open.
	InitialWindow uint32
}

// Dial implements Dialer.
func (d *SecureDialer) Dial(address string, sink Sink) (Conn, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		return nil, &AddressError{Address: address, Err: err}
	}
	c := newSocketConn(sink, d.InitialWindow, false)
	go c.connect(address, d.DialTimeout, func(nc net.Conn) (net.Conn, error) {
		return Handshake(nc, true)
	})
	return c, nil
}

// Handshake performs an ephemeral X25519 key exchange on conn and returns an
// encrypted net.Conn speaking the secure framing. The dialing side sets
// outbound; the accepting side (a test server or external listener) calls it
// with outbound false.
func Handshake(conn net.Conn, outbound bool) (net.Conn, error) {
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("compute public key: %w", err)
	}

	// The dialer sends first and the acceptor receives first, so the two
	// sides never deadlock waiting on each other.
	peerPub := make([]byte, 32)
	if outbound {
		if _, err := conn.Write(pub); err != nil {
			return nil, fmt.Errorf("send public key: %w", err)
		}
		if _, err := io.ReadFull(conn, peerPub); err != nil {
			return nil, fmt.Errorf("receive peer public key: %w", err)
		}
	} else {
		if _, err := io.ReadFull(conn, peerPub); err != nil {
			return nil, fmt.Errorf("receive peer public key: %w", err)
		}
		if _, err := conn.Write(pub); err != nil {
			return nil, fmt.Errorf("send public key: %w", err)
		}
	}

	shared, err := curve25519.X25519(priv[:], peerPub)
	if err != nil {
		return nil, fmt.Errorf("compute shared secret: %w", err)
	}

	// Separate keys per direction so a peer cannot replay our own frames
	// back at us. The dialer writes with the first key and reads with the
	// second; the acceptor mirrors that.
	km := make([]byte, 64)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, []byte(hkdfInfo)), km); err != nil {
		return nil, fmt.Errorf("derive keys: %w", err)
	}
	writeKey, readKey := km[:32], km[32:]
	if !outbound {
		writeKey, readKey = readKey, writeKey
	}

	enc, err := chacha20poly1305.New(writeKey)
	if err != nil {
		return nil, err
	}
	dec, err := chacha20poly1305.New(readKey)
	if err != nil {
		return nil, err
	}

	return &secureStream{
		Conn:     conn,
		enc:      enc,
		dec:      dec,
		encNonce: make([]byte, nonceSize),
		decNonce: make([]byte, nonceSize),
	}, nil
}

// secureStream wraps a net.Conn with AEAD framing:
// [4-byte big-endian ciphertext length][ciphertext with auth tag].
type secureStream struct {
	net.Conn
	enc      cipher.AEAD
	dec      cipher.AEAD
	encNonce []byte
	decNonce []byte
	leftover []byte
	writeMu  sync.Mutex
	readMu   sync.Mutex
}

// incrementNonce bumps the nonce by 1 in little-endian order so every frame
// uses a unique nonce.
func incrementNonce(nonce []byte) {
	for i := 0; i < len(nonce); i++ {
		nonce[i]++
		if nonce[i] != 0 {
			break
		}
	}
}

func (s *secureStream) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	total := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > maxFrameSize {
			chunk = p[:maxFrameSize]
		}
		p = p[len(chunk):]

		ciphertext := s.enc.Seal(nil, s.encNonce, chunk, nil)
		incrementNonce(s.encNonce)

		if err := binary.Write(s.Conn, binary.BigEndian, uint32(len(ciphertext))); err != nil {
			return total, fmt.Errorf("write frame length: %w", err)
		}
		if _, err := s.Conn.Write(ciphertext); err != nil {
			return total, fmt.Errorf("write ciphertext: %w", err)
		}
		total += len(chunk)
	}
	return total, nil
}

func (s *secureStream) Read(p []byte) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	if len(s.leftover) > 0 {
		n := copy(p, s.leftover)
		s.leftover = s.leftover[n:]
		return n, nil
	}

	var frameLen uint32
	if err := binary.Read(s.Conn, binary.BigEndian, &frameLen); err != nil {
		if err == io.EOF {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("read frame length: %w", err)
	}

	if frameLen > maxFrameSize+uint32(s.dec.Overhead()) {
		s.Conn.Close()
		return 0, errors.New("frame exceeds maximum size")
	}

	ciphertext := make([]byte, frameLen)
	if _, err := io.ReadFull(s.Conn, ciphertext); err != nil {
		return 0, fmt.Errorf("read ciphertext: %w", err)
	}

	plaintext, err := s.dec.Open(nil, s.decNonce, ciphertext, nil)
	if err != nil {
		// Authentication failure means the data was tampered with.
		s.Conn.Close()
		return 0, fmt.Errorf("decrypt frame: %w", err)
	}
	incrementNonce(s.decNonce)

	n := copy(p, plaintext)
	if n < len(plaintext) {
		s.leftover = plaintext[n:]
	}
	return n, nil
}
