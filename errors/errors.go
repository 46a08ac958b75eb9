package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad     Phase = "load"     // guest module loading
	PhaseEngine   Phase = "engine"   // runtime setup and host registration
	PhaseDial     Phase = "dial"     // connection establishment
	PhaseDispatch Phase = "dispatch" // guest-invoked operations
	PhaseDelivery Phase = "delivery" // host-to-guest notifications
	PhaseMemory   Phase = "memory"   // guest linear memory access
	PhaseTeardown Phase = "teardown" // shutdown and kill-all
	PhaseGuest    Phase = "guest"    // errors originating inside the guest
)

// Kind categorizes the error
type Kind string

const (
	KindDuplicateID    Kind = "duplicate_id"
	KindNotFound       Kind = "not_found"
	KindBadAddress     Kind = "bad_address"
	KindBudgetExceeded Kind = "budget_exceeded"
	KindWriteClosed    Kind = "write_closed"
	KindInvalidState   Kind = "invalid_state"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindInvalidInput   Kind = "invalid_input"
	KindKilled         Kind = "killed"
	KindMissingExport  Kind = "missing_export"
	KindRegistration   Kind = "registration"
	KindInstantiation  Kind = "instantiation"
	KindInvalidData    Kind = "invalid_data"
	KindGuestPanic     Kind = "guest_panic"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the entity path, e.g. "conn:5", "stream:2"
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// ConnPath renders the path element for a connection identifier.
func ConnPath(id uint32) string {
	return fmt.Sprintf("conn:%d", id)
}

// StreamPath renders the path element for a substream identifier.
func StreamPath(id uint32) string {
	return fmt.Sprintf("stream:%d", id)
}

// Convenience constructors for common error patterns

// DuplicateID reports a guest-chosen connection identifier that is already live
func DuplicateID(connID uint32) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindDuplicateID,
		Path:   []string{ConnPath(connID)},
		Detail: "connection identifier already in use",
		Value:  connID,
	}
}

// ConnNotFound reports an operation against an unknown connection identifier
func ConnNotFound(phase Phase, connID uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Path:   []string{ConnPath(connID)},
		Detail: "no such connection",
		Value:  connID,
	}
}

// StreamNotFound reports an operation against an unknown substream
func StreamNotFound(phase Phase, connID, streamID uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Path:   []string{ConnPath(connID), StreamPath(streamID)},
		Detail: "no such substream",
		Value:  streamID,
	}
}

// BudgetExceeded reports a send larger than the outstanding writable budget
func BudgetExceeded(connID, streamID uint32, want int, have uint64) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindBudgetExceeded,
		Path:   []string{ConnPath(connID), StreamPath(streamID)},
		Detail: fmt.Sprintf("sending %d bytes with %d writable", want, have),
	}
}

// WriteClosed reports a send or close after the write side was closed
func WriteClosed(connID, streamID uint32) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindWriteClosed,
		Path:   []string{ConnPath(connID), StreamPath(streamID)},
		Detail: "write side already closed",
	}
}

// InvalidState reports an operation in the wrong connection state
func InvalidState(connID uint32, detail string) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindInvalidState,
		Path:   []string{ConnPath(connID)},
		Detail: detail,
	}
}

// OutOfBounds reports a guest memory access past the end of linear memory
func OutOfBounds(offset, length, size uint32) *Error {
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("access of %d bytes at offset %d exceeds memory size %d", length, offset, size),
		Value:  offset,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// GuestPanic wraps a panic message reported by the guest
func GuestPanic(message string) *Error {
	return &Error{
		Phase:  PhaseGuest,
		Kind:   KindGuestPanic,
		Detail: message,
	}
}

// Registration creates a host function registration error
func Registration(module, name string, cause error) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s.%s", module, name),
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   KindInstantiation,
		Detail: "instantiate guest module",
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingExportsError is returned when the guest module does not export the
// full re-entry surface the bridge calls into.
type MissingExportsError struct {
	Exports []string
}

// NewMissingExportsError creates an error from the list of absent export names
func NewMissingExportsError(exports []string) *MissingExportsError {
	return &MissingExportsError{Exports: exports}
}

func (e *MissingExportsError) Error() string {
	if len(e.Exports) == 0 {
		return "[engine] missing_export: no exports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("guest is missing %d export(s):\n", len(e.Exports)))
	for _, name := range e.Exports {
		b.WriteString("  - ")
		b.WriteString(name)
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingExportsError) Is(target error) bool {
	_, ok := target.(*MissingExportsError)
	return ok
}
