package wasmbridge

import (
	"encoding/binary"

	"github.com/portway-io/wasm-bridge/errors"
)

func errOutOfRange(offset, length, size uint32) error {
	return errors.OutOfBounds(offset, length, size)
}

// SliceMemory is a Memory backed by a plain byte slice. It exists for
// embeddings that drive the bridge without a WASM instance, and for tests.
type SliceMemory struct {
	data []byte
}

// NewSliceMemory returns a SliceMemory of the given size.
func NewSliceMemory(size uint32) *SliceMemory {
	return &SliceMemory{data: make([]byte, size)}
}

// Bytes exposes the underlying storage.
func (m *SliceMemory) Bytes() []byte { return m.data }

// Size returns the memory size in bytes.
func (m *SliceMemory) Size() uint32 { return uint32(len(m.data)) }

func (m *SliceMemory) in(offset, length uint32) bool {
	return uint64(offset)+uint64(length) <= uint64(len(m.data))
}

func (m *SliceMemory) Read(offset, length uint32) ([]byte, error) {
	if !m.in(offset, length) {
		return nil, errOutOfRange(offset, length, uint32(len(m.data)))
	}
	out := make([]byte, length)
	copy(out, m.data[offset:])
	return out, nil
}

func (m *SliceMemory) Write(offset uint32, data []byte) error {
	if !m.in(offset, uint32(len(data))) {
		return errOutOfRange(offset, uint32(len(data)), uint32(len(m.data)))
	}
	copy(m.data[offset:], data)
	return nil
}

func (m *SliceMemory) ReadU8(offset uint32) (uint8, error) {
	if !m.in(offset, 1) {
		return 0, errOutOfRange(offset, 1, uint32(len(m.data)))
	}
	return m.data[offset], nil
}

func (m *SliceMemory) ReadU32(offset uint32) (uint32, error) {
	if !m.in(offset, 4) {
		return 0, errOutOfRange(offset, 4, uint32(len(m.data)))
	}
	return binary.LittleEndian.Uint32(m.data[offset:]), nil
}

func (m *SliceMemory) ReadU64(offset uint32) (uint64, error) {
	if !m.in(offset, 8) {
		return 0, errOutOfRange(offset, 8, uint32(len(m.data)))
	}
	return binary.LittleEndian.Uint64(m.data[offset:]), nil
}

func (m *SliceMemory) WriteU8(offset uint32, value uint8) error {
	if !m.in(offset, 1) {
		return errOutOfRange(offset, 1, uint32(len(m.data)))
	}
	m.data[offset] = value
	return nil
}

func (m *SliceMemory) WriteU32(offset uint32, value uint32) error {
	if !m.in(offset, 4) {
		return errOutOfRange(offset, 4, uint32(len(m.data)))
	}
	binary.LittleEndian.PutUint32(m.data[offset:], value)
	return nil
}

func (m *SliceMemory) WriteU64(offset uint32, value uint64) error {
	if !m.in(offset, 8) {
		return errOutOfRange(offset, 8, uint32(len(m.data)))
	}
	binary.LittleEndian.PutUint64(m.data[offset:], value)
	return nil
}
