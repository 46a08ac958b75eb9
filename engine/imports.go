package engine

import (
	"context"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	wasmbridge "github.com/portway-io/wasm-bridge"
	"github.com/portway-io/wasm-bridge/errors"
)

// registerImports populates the "bridge" host module with the import
// surface. Every function forwards to the typed bridge operations; the
// instance fields they touch are bound after instantiation, which is safe
// because the guest cannot call imports before Init.
func registerImports(hb wazero.HostModuleBuilder, inst *Instance) {
	hb.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, ptr, length uint32) {
		inst.fatal(string(readBytes(m, ptr, length)))
	}).Export(importPanic)

	hb.NewFunctionBuilder().WithFunc(func(index uint32) uint32 {
		return inst.bridge.BufferSize(index)
	}).Export(importBufferSize)

	hb.NewFunctionBuilder().WithFunc(func(index, target uint32) {
		if err := inst.bridge.BufferCopy(index, target); err != nil {
			panic(err)
		}
	}).Export(importBufferCopy)

	hb.NewFunctionBuilder().WithFunc(func() {
		inst.diag.ResponsesNonEmpty()
	}).Export(importResponsesNonEmpty)

	hb.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, level, targetPtr, targetLen, msgPtr, msgLen uint32) {
		target := string(readBytes(m, targetPtr, targetLen))
		message := string(readBytes(m, msgPtr, msgLen))
		inst.diag.Log(wasmbridge.LogLevel(level), target, message)
	}).Export(importLog)

	hb.NewFunctionBuilder().WithFunc(func() uint64 {
		return uint64(time.Now().UnixMicro())
	}).Export(importUnixTimestampUS)

	hb.NewFunctionBuilder().WithFunc(func() uint64 {
		return monotonicNow() - inst.epoch
	}).Export(importMonotonicClockUS)

	hb.NewFunctionBuilder().WithFunc(func(id uint32, delayMillis float64) {
		inst.bridge.StartTimer(id, delayMillis)
	}).Export(importStartTimer)

	hb.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, id, addrPtr, addrLen, errorPtr uint32) uint32 {
		address := string(readBytes(m, addrPtr, addrLen))
		return inst.bridge.ConnectionNew(id, address, errorPtr)
	}).Export(importConnectionNew)

	hb.NewFunctionBuilder().WithFunc(func(id uint32) {
		inst.bridge.ConnectionReset(id)
	}).Export(importConnectionReset)

	hb.NewFunctionBuilder().WithFunc(func(id uint32) {
		inst.bridge.StreamOpen(id)
	}).Export(importStreamOpen)

	hb.NewFunctionBuilder().WithFunc(func(id, streamID uint32) {
		inst.bridge.StreamReset(id, streamID)
	}).Export(importStreamReset)

	hb.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, id, streamID, ptr, length uint32) {
		inst.bridge.StreamSend(id, streamID, readBytes(m, ptr, length))
	}).Export(importStreamSend)

	hb.NewFunctionBuilder().WithFunc(func(id, streamID uint32) {
		inst.bridge.StreamSendClose(id, streamID)
	}).Export(importStreamSendClose)

	hb.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, ptr, length uint32) {
		inst.diag.TaskEnter(string(readBytes(m, ptr, length)))
	}).Export(importTaskEnter)

	hb.NewFunctionBuilder().WithFunc(func() {
		inst.diag.TaskExit()
	}).Export(importTaskExit)
}

// fatal records a guest panic and unwinds the guest call. The diagnostics
// sink is expected to halt execution; if it returns anyway, the panic
// propagates as an error out of the current guest export call.
func (i *Instance) fatal(message string) {
	err := errors.GuestPanic(message)
	i.bridge.ReportFatal(err)
	i.diag.Panic(message)
	panic(err)
}

func readBytes(m api.Module, ptr, length uint32) []byte {
	data, ok := m.Memory().Read(ptr, length)
	if !ok {
		panic(errors.OutOfBounds(ptr, length, m.Memory().Size()))
	}
	return data
}
