// Package wasmbridge defines the host side of a transport bridge for
// sandboxed WASM guests. A guest is a network protocol client compiled to
// WASM with no direct access to sockets or clocks; everything it needs from
// the outside world flows through a small import surface, and everything the
// outside world has to tell it flows back through guest exports.
//
// # Architecture Overview
//
// The module is organized into packages with distinct responsibilities:
//
//	wasmbridge/          Root package with the Memory, Guest and Diagnostics contracts
//	├── bridge/          Connection table, buffer registry, timers and event delivery
//	├── transport/       Dialers: plain TCP, encrypted TCP and an in-memory hub
//	├── engine/          wazero integration binding the bridge to a real guest module
//	├── errors/          Structured error types for debugging
//	└── cmd/run/         CLI runner with an interactive connection view
//
// # Quick Start
//
// Run a guest module against real transports:
//
//	e, err := engine.New(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Close(ctx)
//
//	mux := transport.NewMux()
//	mux.Register("tcp", &transport.TCPDialer{})
//
//	inst, err := e.Instantiate(ctx, wasmBytes, &engine.Config{Dialer: mux})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	inst.Init(ctx, 3)
//	inst.Run(ctx)
//
// The bridge can also be embedded without a WASM runtime by implementing
// Guest directly and backing Memory with a byte slice; see examples/basic.
//
// # Threading Model
//
// The bridge spawns no goroutines of its own. Transports deliver events from
// arbitrary goroutines into a queue; Bridge.Run drains the queue and
// re-enters the guest from one goroutine, the same one that executes guest
// calls into the import surface. Bridge.KillAll is the only operation safe
// to call from anywhere at any time.
//
// # Buffers
//
// Payloads cross the host-guest boundary through numbered buffer slots: the
// host populates a slot, passes its index to the guest, and the guest copies
// the contents into its linear memory with buffer_size and buffer_copy
// before the call returns. Slot indices are only valid for the duration of
// the callback that delivered them.
package wasmbridge
