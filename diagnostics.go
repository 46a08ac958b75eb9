package wasmbridge

// LogLevel is the severity of a guest log record. Levels follow the guest's
// numbering: 1 is most severe, 5 is most verbose.
type LogLevel uint32

const (
	LevelError LogLevel = 1
	LevelWarn  LogLevel = 2
	LevelInfo  LogLevel = 3
	LevelDebug LogLevel = 4
	LevelTrace LogLevel = 5
)

// String returns the lowercase name of the level. Unknown levels render
// as "trace" since anything past debug is treated as maximally verbose.
func (l LogLevel) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	default:
		return "trace"
	}
}

// Diagnostics receives out-of-band signals from the guest: log records,
// tracing marks, queue wakeups and fatal panics. Embedders plug in their
// own implementation; the engine provides a zap-backed default.
type Diagnostics interface {
	// Panic reports a fatal guest panic. Implementations typically halt by
	// panicking themselves; if Panic returns, the caller unwinds the guest
	// and surfaces the panic as a fatal bridge error.
	Panic(message string)

	// Log delivers one structured guest log record.
	Log(level LogLevel, target, message string)

	// TaskEnter and TaskExit bracket the guest's currently-executing task,
	// for tracing and profiling integration.
	TaskEnter(name string)
	TaskExit()

	// ResponsesNonEmpty signals that the guest's response queue went from
	// empty to non-empty and should be drained by the embedder.
	ResponsesNonEmpty()
}
