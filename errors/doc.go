// Package errors provides structured error types for the wasm-bridge library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes rich context: the connection/stream path,
// the offending value, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDispatch, errors.KindInvalidState).
//		Path(errors.ConnPath(5)).
//		Detail("send on a connection that is not open").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.DuplicateID(5)
//	err := errors.BudgetExceeded(5, 0, 150, 100)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
