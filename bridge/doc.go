// Package bridge implements the host side of the host-guest transport
// bridge: the connection table and per-stream flow control, the buffer
// registry used to hand variable-length data across the memory boundary,
// one-shot timers, and the kill-all teardown protocol.
//
// A Bridge sits between three parties. The guest invokes its typed
// operations synchronously (via the engine's import surface or directly in
// tests and embeddings). A transport.Dialer owns the actual sockets and
// pushes asynchronous events into the bridge's queue. The embedder drives
// Run, which drains the queue and re-enters the guest one event at a time.
//
// The bridge spawns no goroutines of its own. Guest execution must be
// serialized by the embedder: operations and Run must never run
// concurrently. Transports and timers may deliver from any goroutine;
// KillAll may be called from any goroutine, including from within a
// callback.
//
// Preconditions are contracts, not recoverable errors: operations on
// unknown identifiers, sends beyond the writable budget, or writes after a
// half-close indicate a misbehaving guest and panic with a structured
// *errors.Error.
package bridge
