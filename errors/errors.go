package errors

import (
	"fmt"
	"strings"
)

// Prefix starts every error message produced by this module.
const Prefix = "lensfun"

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseResolve  Phase = "resolve"  // module lookup and loading
	PhaseBind     Phase = "bind"     // binding table construction
	PhaseInit     Phase = "init"     // native database initialization
	PhaseValidate Phase = "validate" // caller input validation
	PhaseNative   Phase = "native"   // native entry point calls
	PhaseMemory   Phase = "memory"   // linear memory access
	PhaseDecode   Phase = "decode"   // native payload decoding
	PhaseSession  Phase = "session"  // session lifecycle
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidArgument        Kind = "invalid_argument"
	KindModuleNotFound         Kind = "module_not_found"
	KindScriptLoad             Kind = "script_load"
	KindUnsupportedEnvironment Kind = "unsupported_environment"
	KindDBInit                 Kind = "db_init"
	KindNativeComputation      Kind = "native_computation"
	KindDecode                 Kind = "decode"
	KindDisposed               Kind = "disposed"
	KindLinkage                Kind = "linkage"
	KindAllocation             Kind = "allocation"
	KindOutOfBounds            Kind = "out_of_bounds"
)

// Sentinels for errors.Is. They carry no phase and match any error of the
// same kind.
var (
	ErrInvalidArgument        = &Error{Kind: KindInvalidArgument}
	ErrModuleNotFound         = &Error{Kind: KindModuleNotFound}
	ErrScriptLoad             = &Error{Kind: KindScriptLoad}
	ErrUnsupportedEnvironment = &Error{Kind: KindUnsupportedEnvironment}
	ErrDBInit                 = &Error{Kind: KindDBInit}
	ErrNativeComputation      = &Error{Kind: KindNativeComputation}
	ErrDecode                 = &Error{Kind: KindDecode}
	ErrDisposed               = &Error{Kind: KindDisposed}
	ErrLinkage                = &Error{Kind: KindLinkage}
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Symbol string
	Field  string
	Detail string
	Code   int32
	// HasCode distinguishes a native status of 0 from no status at all.
	HasCode bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(Prefix)
	b.WriteString(": ")
	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if e.Symbol != "" {
		b.WriteString(" in ")
		b.WriteString(e.Symbol)
	}
	if e.Field != "" {
		b.WriteString(" at ")
		b.WriteString(e.Field)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.HasCode {
		b.WriteString(" (code=")
		fmt.Fprintf(&b, "%d", e.Code)
		b.WriteByte(')')
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

// Is reports whether target matches this error. A target without a phase
// matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
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

// Symbol sets the native symbol involved
func (b *Builder) Symbol(name string) *Builder {
	b.err.Symbol = name
	return b
}

// Field sets the offending input field
func (b *Builder) Field(name string) *Builder {
	b.err.Field = name
	return b
}

// Code sets the native status code
func (b *Builder) Code(code int32) *Builder {
	b.err.Code = code
	b.err.HasCode = true
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

// Convenience constructors for common error patterns

// InvalidArgument reports bad caller input detected before any native call.
func InvalidArgument(field, detail string) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindInvalidArgument,
		Field:  field,
		Detail: detail,
	}
}

// ModuleNotFound reports that no provider produced a module factory.
func ModuleNotFound(detail string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindModuleNotFound,
		Detail: detail,
	}
}

// ScriptLoad reports a module binary that could not be fetched or compiled.
func ScriptLoad(location string, cause error) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindScriptLoad,
		Detail: fmt.Sprintf("failed to load %s", location),
		Cause:  cause,
	}
}

// UnsupportedEnvironment reports a strategy the current host cannot serve.
func UnsupportedEnvironment(detail string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindUnsupportedEnvironment,
		Detail: detail,
	}
}

// DBInit reports a nonzero status from native database initialization.
func DBInit(symbol, path string, code int32) *Error {
	return &Error{
		Phase:   PhaseInit,
		Kind:    KindDBInit,
		Symbol:  symbol,
		Detail:  fmt.Sprintf("failed for %s", path),
		Code:    code,
		HasCode: true,
	}
}

// NativeComputation reports a nonzero status from a native map builder.
func NativeComputation(symbol string, code int32) *Error {
	return &Error{
		Phase:   PhaseNative,
		Kind:    KindNativeComputation,
		Symbol:  symbol,
		Detail:  "native map builder failed",
		Code:    code,
		HasCode: true,
	}
}

// Decode reports a malformed native payload.
func Decode(detail string, cause error) *Error {
	return Wrap(PhaseDecode, KindDecode, cause, detail)
}

// Disposed reports use of a session after Dispose.
func Disposed(component string) *Error {
	return &Error{
		Phase:  PhaseSession,
		Kind:   KindDisposed,
		Detail: fmt.Sprintf("%s is disposed", component),
	}
}

// Linkage reports a binding that does not match the native export table.
func Linkage(symbol, detail string) *Error {
	return &Error{
		Phase:  PhaseBind,
		Kind:   KindLinkage,
		Symbol: symbol,
		Detail: detail,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(size uint32, cause error) *Error {
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Value:  size,
		Cause:  cause,
	}
}

// OutOfBounds creates a linear memory bounds error
func OutOfBounds(offset, length uint32) *Error {
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("offset %d length %d outside linear memory", offset, length),
		Value:  offset,
	}
}

// Call wraps a trap or host failure raised while invoking a native symbol.
func Call(symbol string, cause error) *Error {
	err := Wrap(PhaseNative, KindNativeComputation, cause, "call failed")
	err.Symbol = symbol
	return err
}

// Wrap wraps an existing error with additional context.
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
