package engine

// HostModule is the import module name under which the guest sees the
// bridge's host functions.
const HostModule = "bridge"

// Import surface function names.
const (
	importPanic             = "panic"
	importBufferSize        = "buffer_size"
	importBufferCopy        = "buffer_copy"
	importResponsesNonEmpty = "responses_non_empty"
	importLog               = "log"
	importUnixTimestampUS   = "unix_timestamp_us"
	importMonotonicClockUS  = "monotonic_clock_us"
	importStartTimer        = "start_timer"
	importConnectionNew     = "connection_new"
	importConnectionReset   = "connection_reset"
	importStreamOpen        = "stream_open"
	importStreamReset       = "stream_reset"
	importStreamSend        = "stream_send"
	importStreamSendClose   = "stream_send_close"
	importTaskEnter         = "task_enter"
	importTaskExit          = "task_exit"
)

// Guest export names: the lifecycle entry points driven by the embedder and
// the re-entry surface invoked by the bridge.
const (
	ExportInit             = "init"
	ExportAdvanceExecution = "advance_execution"

	exportTimerFired         = "timer_fired"
	exportConnOpenedSingle   = "connection_opened_single_stream"
	exportConnOpenedMulti    = "connection_opened_multi_stream"
	exportConnReset          = "connection_reset"
	exportStreamWritable     = "stream_writable_bytes"
	exportStreamMessage      = "stream_message"
	exportStreamOpened       = "stream_opened"
	exportStreamReset        = "stream_reset"
)

// reentryExports lists every export the bridge requires on the guest.
var reentryExports = []string{
	exportTimerFired,
	exportConnOpenedSingle,
	exportConnOpenedMulti,
	exportConnReset,
	exportStreamWritable,
	exportStreamMessage,
	exportStreamOpened,
	exportStreamReset,
}
