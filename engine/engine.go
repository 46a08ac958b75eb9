package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	wasmbridge "github.com/portway-io/wasm-bridge"
	"github.com/portway-io/wasm-bridge/bridge"
	"github.com/portway-io/wasm-bridge/errors"
	"github.com/portway-io/wasm-bridge/transport"
)

// Engine wraps a wazero runtime hosting one guest instance.
type Engine struct {
	runtime wazero.Runtime
}

// RuntimeConfig holds configuration for engine creation.
type RuntimeConfig struct {
	// MemoryLimitPages sets the maximum guest memory in pages (64KB each).
	// 0 means the wazero default (65536 pages = 4GB).
	MemoryLimitPages uint32
}

// New creates a wazero-based engine.
func New(ctx context.Context, cfg *RuntimeConfig) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	return &Engine{runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg)}, nil
}

// Close releases the runtime and every instance created from it.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Config holds per-instance configuration. Dialer is required.
type Config struct {
	// Name names the guest module inside the runtime. Optional.
	Name string

	// Dialer is the transport factory the bridge dials through.
	Dialer transport.Dialer

	// Diagnostics receives guest logs, tracing marks and panics.
	// Optional; defaults to a zap-backed sink on the instance logger.
	Diagnostics wasmbridge.Diagnostics

	// Logger overrides the package logger for this instance.
	Logger *zap.Logger
}

// Instantiate compiles wasmBytes, registers the import surface, instantiates
// the guest and wires a bridge to it. The guest's start functions are not
// run; call Instance.Init to hand control to the guest.
func (e *Engine) Instantiate(ctx context.Context, wasmBytes []byte, cfg *Config) (*Instance, error) {
	if cfg == nil || cfg.Dialer == nil {
		return nil, errors.InvalidInput(errors.PhaseEngine, "config is missing a transport dialer")
	}

	log := cfg.Logger
	if log == nil {
		log = Logger()
	}

	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile guest module", err)
	}

	inst := &Instance{log: log}

	hb := e.runtime.NewHostModuleBuilder(HostModule)
	registerImports(hb, inst)
	if _, err := hb.Instantiate(ctx); err != nil {
		return nil, errors.Registration(HostModule, "*", err)
	}

	modCfg := wazero.NewModuleConfig().WithStartFunctions()
	if cfg.Name != "" {
		modCfg = modCfg.WithName(cfg.Name)
	}
	mod, err := e.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	mem := mod.Memory()
	if mem == nil {
		mod.Close(ctx)
		return nil, errors.InvalidInput(errors.PhaseEngine, "guest module exports no memory")
	}

	guest, err := newGuestFuncs(mod)
	if err != nil {
		mod.Close(ctx)
		return nil, err
	}

	diag := cfg.Diagnostics
	if diag == nil {
		diag = &zapDiagnostics{log: log}
	}

	b, err := bridge.New(bridge.Config{
		Guest:       guest,
		Memory:      &wazeroMemory{mem: mem},
		Dialer:      cfg.Dialer,
		Diagnostics: diag,
		Logger:      log,
	})
	if err != nil {
		mod.Close(ctx)
		return nil, err
	}

	inst.mod = mod
	inst.bridge = b
	inst.diag = diag
	inst.initFn = mod.ExportedFunction(ExportInit)
	inst.advanceFn = mod.ExportedFunction(ExportAdvanceExecution)
	inst.epoch = monotonicNow()

	return inst, nil
}
