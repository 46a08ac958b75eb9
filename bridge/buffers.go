package bridge

import (
	wasmbridge "github.com/portway-io/wasm-bridge"
	"github.com/portway-io/wasm-bridge/errors"
)

// ErrorSlot is the buffer index carrying the message of a synchronous
// connection-creation failure.
const ErrorSlot uint32 = 0

// BufferRegistry maps small integer indices to transient byte buffers. It
// is how variable-length data crosses the memory boundary: the host
// populates a slot immediately before re-entering the guest, the guest
// reads it back through Size and Copy, and the slot is dropped when the
// call returns.
//
// Slot 0 is reserved for the implicit data of the current synchronous call;
// asynchronous deliveries allocate fresh indices from 1 upward. Slots are
// single-use: reading an unpopulated slot is a contract violation and
// panics.
type BufferRegistry struct {
	slots map[uint32][]byte
	next  uint32
}

// NewBufferRegistry creates an empty registry.
func NewBufferRegistry() *BufferRegistry {
	return &BufferRegistry{
		slots: make(map[uint32][]byte),
		next:  1,
	}
}

// Put stores data under a fresh index >= 1 and returns the index.
func (r *BufferRegistry) Put(data []byte) uint32 {
	idx := r.next
	for {
		if _, used := r.slots[idx]; !used && idx != ErrorSlot {
			break
		}
		idx++
	}
	r.slots[idx] = data
	r.next = idx + 1
	if r.next == ErrorSlot {
		r.next = 1
	}
	return idx
}

// PutAt stores data under a specific index, replacing any previous buffer.
func (r *BufferRegistry) PutAt(index uint32, data []byte) {
	r.slots[index] = data
}

// Drop removes the buffer at index. Dropping an absent index is harmless.
func (r *BufferRegistry) Drop(index uint32) {
	delete(r.slots, index)
}

// Size returns the length of the buffer at index.
func (r *BufferRegistry) Size(index uint32) uint32 {
	return uint32(len(r.get(index)))
}

// Copy writes the buffer at index into guest memory at offset.
func (r *BufferRegistry) Copy(index uint32, mem wasmbridge.Memory, offset uint32) error {
	return mem.Write(offset, r.get(index))
}

// Len returns the number of populated slots.
func (r *BufferRegistry) Len() int {
	return len(r.slots)
}

func (r *BufferRegistry) get(index uint32) []byte {
	data, ok := r.slots[index]
	if !ok {
		panic(errors.New(errors.PhaseDispatch, errors.KindNotFound).
			Detail("buffer slot %d is not populated", index).
			Value(index).
			Build())
	}
	return data
}
