package engine

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/portway-io/wasm-bridge/errors"
	"github.com/portway-io/wasm-bridge/transport"
)

type nopDialer struct{}

func (nopDialer) Dial(address string, sink transport.Sink) (transport.Conn, error) {
	return nil, errors.InvalidInput(errors.PhaseDial, "dialer not wired")
}

func TestImportNamesUnique(t *testing.T) {
	names := []string{
		importPanic, importBufferSize, importBufferCopy, importResponsesNonEmpty,
		importLog, importUnixTimestampUS, importMonotonicClockUS, importStartTimer,
		importConnectionNew, importConnectionReset, importStreamOpen, importStreamReset,
		importStreamSend, importStreamSendClose, importTaskEnter, importTaskExit,
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" {
			t.Fatal("empty import name")
		}
		if seen[name] {
			t.Fatalf("duplicate import name %q", name)
		}
		seen[name] = true
	}
}

func TestReentryExportsUnique(t *testing.T) {
	seen := make(map[string]bool, len(reentryExports))
	for _, name := range reentryExports {
		if name == "" {
			t.Fatal("empty export name")
		}
		if seen[name] {
			t.Fatalf("duplicate export name %q", name)
		}
		seen[name] = true
	}
	if len(reentryExports) != 8 {
		t.Fatalf("expected 8 re-entry exports, got %d", len(reentryExports))
	}
}

func TestInstantiateRequiresDialer(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer e.Close(ctx)

	if _, err := e.Instantiate(ctx, nil, nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := e.Instantiate(ctx, nil, &Config{}); err == nil {
		t.Fatal("expected error for missing dialer")
	}
}

// wasmHeader is the binary module preamble: magic plus version 1.
var wasmHeader = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// emptyModule is a valid module with no sections: nothing exported at all.
var emptyModule = wasmHeader

// memoryOnlyModule declares one memory of one page and exports it under
// "memory", with no function exports.
var memoryOnlyModule = append(append([]byte{}, wasmHeader...),
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 memory, limits {min: 1}
	0x07, 0x0a, 0x01, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00, // export "memory"
)

func TestInstantiateRequiresMemoryExport(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer e.Close(ctx)

	_, err = e.Instantiate(ctx, emptyModule, &Config{Dialer: nopDialer{}})
	if err == nil {
		t.Fatal("expected error for a module without memory")
	}
	var be *errors.Error
	if !stderrors.As(err, &be) {
		t.Fatalf("expected structured error, got %T: %v", err, err)
	}
	if be.Kind != errors.KindInvalidInput {
		t.Errorf("kind = %q, want %q", be.Kind, errors.KindInvalidInput)
	}
}

func TestInstantiateReportsAllMissingExports(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer e.Close(ctx)

	_, err = e.Instantiate(ctx, memoryOnlyModule, &Config{Dialer: nopDialer{}})
	if err == nil {
		t.Fatal("expected error for a module without the re-entry exports")
	}
	var missing *errors.MissingExportsError
	if !stderrors.As(err, &missing) {
		t.Fatalf("expected *errors.MissingExportsError, got %T: %v", err, err)
	}
	if len(missing.Exports) != len(reentryExports) {
		t.Fatalf("missing = %v, want all %d re-entry exports", missing.Exports, len(reentryExports))
	}
	for i, name := range reentryExports {
		if missing.Exports[i] != name {
			t.Errorf("missing[%d] = %q, want %q", i, missing.Exports[i], name)
		}
	}
}

func TestInitAndAdvanceWithoutExports(t *testing.T) {
	ctx := context.Background()
	inst := &Instance{}

	var missing *errors.MissingExportsError
	if err := inst.Init(ctx, 3); !stderrors.As(err, &missing) {
		t.Fatalf("Init = %v, want *errors.MissingExportsError", err)
	}
	if len(missing.Exports) != 1 || missing.Exports[0] != ExportInit {
		t.Errorf("missing = %v, want [%s]", missing.Exports, ExportInit)
	}

	if err := inst.AdvanceExecution(ctx); !stderrors.As(err, &missing) {
		t.Fatalf("AdvanceExecution = %v, want *errors.MissingExportsError", err)
	}
	if len(missing.Exports) != 1 || missing.Exports[0] != ExportAdvanceExecution {
		t.Errorf("missing = %v, want [%s]", missing.Exports, ExportAdvanceExecution)
	}
}

func TestInstantiateRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer e.Close(ctx)

	_, err = e.Instantiate(ctx, []byte("not a wasm module"), &Config{Dialer: nopDialer{}})
	if err == nil {
		t.Fatal("expected compile error")
	}
	var be *errors.Error
	if !stderrors.As(err, &be) {
		t.Fatalf("expected structured error, got %T: %v", err, err)
	}
	if be.Phase != errors.PhaseLoad {
		t.Errorf("phase = %q, want %q", be.Phase, errors.PhaseLoad)
	}
}
