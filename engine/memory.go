package engine

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/portway-io/wasm-bridge/errors"
)

// wazeroMemory adapts api.Memory to the wasmbridge.Memory interface.
// Reads copy out of linear memory so callers never hold a view that a
// later memory growth would invalidate.
type wazeroMemory struct {
	mem api.Memory
}

func (w *wazeroMemory) Read(offset, length uint32) ([]byte, error) {
	view, ok := w.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(offset, length, w.mem.Size())
	}
	out := make([]byte, length)
	copy(out, view)
	return out, nil
}

func (w *wazeroMemory) Write(offset uint32, data []byte) error {
	if !w.mem.Write(offset, data) {
		return errors.OutOfBounds(offset, uint32(len(data)), w.mem.Size())
	}
	return nil
}

func (w *wazeroMemory) ReadU8(offset uint32) (uint8, error) {
	v, ok := w.mem.ReadByte(offset)
	if !ok {
		return 0, errors.OutOfBounds(offset, 1, w.mem.Size())
	}
	return v, nil
}

func (w *wazeroMemory) ReadU32(offset uint32) (uint32, error) {
	v, ok := w.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(offset, 4, w.mem.Size())
	}
	return v, nil
}

func (w *wazeroMemory) ReadU64(offset uint32) (uint64, error) {
	v, ok := w.mem.ReadUint64Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(offset, 8, w.mem.Size())
	}
	return v, nil
}

func (w *wazeroMemory) WriteU8(offset uint32, value uint8) error {
	if !w.mem.WriteByte(offset, value) {
		return errors.OutOfBounds(offset, 1, w.mem.Size())
	}
	return nil
}

func (w *wazeroMemory) WriteU32(offset uint32, value uint32) error {
	if !w.mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(offset, 4, w.mem.Size())
	}
	return nil
}

func (w *wazeroMemory) WriteU64(offset uint32, value uint64) error {
	if !w.mem.WriteUint64Le(offset, value) {
		return errors.OutOfBounds(offset, 8, w.mem.Size())
	}
	return nil
}

// Size returns the current memory size in bytes.
func (w *wazeroMemory) Size() uint32 {
	return w.mem.Size()
}
