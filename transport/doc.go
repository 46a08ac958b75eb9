// Package transport defines the factory contract between the bridge and
// concrete connection implementations, and ships three of them: an
// in-memory hub for tests and embedding demos, plain TCP, and TCP with an
// authenticated-encryption layer.
//
// A transport owns the actual socket or pipe resources for a connection.
// The bridge owns all guest-visible state: it validates lifecycle and
// flow-control preconditions before invoking Conn methods, and transports
// report asynchronous outcomes exclusively through Events pushed into the
// Sink handed to Dial. After Conn.Reset returns, a transport must deliver
// nothing further and must release its resources.
package transport
