package engine

import (
	"go.uber.org/zap"

	wasmbridge "github.com/portway-io/wasm-bridge"
)

// zapDiagnostics is the default diagnostics sink: guest log records map
// onto a zap logger and a guest panic halts through zap's Panic.
type zapDiagnostics struct {
	log *zap.Logger
}

func (d *zapDiagnostics) Panic(message string) {
	d.log.Panic("guest panic", zap.String("message", message))
}

func (d *zapDiagnostics) Log(level wasmbridge.LogLevel, target, message string) {
	fields := []zap.Field{zap.String("target", target)}
	switch level {
	case wasmbridge.LevelError:
		d.log.Error(message, fields...)
	case wasmbridge.LevelWarn:
		d.log.Warn(message, fields...)
	case wasmbridge.LevelInfo:
		d.log.Info(message, fields...)
	default:
		// Debug and trace both land on zap's debug level; zap has no finer one.
		d.log.Debug(message, fields...)
	}
}

func (d *zapDiagnostics) TaskEnter(name string) {
	d.log.Debug("task enter", zap.String("task", name))
}

func (d *zapDiagnostics) TaskExit() {
	d.log.Debug("task exit")
}

func (d *zapDiagnostics) ResponsesNonEmpty() {
	d.log.Debug("response queue non-empty")
}
