package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad      Phase = "load"      // resource lookup
	PhaseTransform Phase = "transform" // transformer invocation
	PhaseDefine    Phase = "define"    // compilation into a runtime
	PhaseBridge    Phase = "bridge"    // capability bridging
	PhaseLink      Phase = "link"      // import resolution on instantiate
	PhaseTrace     Phase = "trace"     // trace registry
	PhaseConfig    Phase = "config"    // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindInvalidFormat Kind = "invalid_format"
	KindIllegalBridge Kind = "illegal_bridge"
	KindInvalidInput  Kind = "invalid_input"
	KindInstantiation Kind = "instantiation"
	KindTransform     Kind = "transform_failed"
	KindFatal         Kind = "fatal"
)

// Sentinels for errors.Is. They match any phase.
var (
	ErrModuleNotFound = &Error{Kind: KindNotFound}
	ErrCodeFormat     = &Error{Kind: KindInvalidFormat}
	ErrIllegalBridge  = &Error{Kind: KindIllegalBridge}
	ErrFatal          = &Error{Kind: KindFatal}
)

// Error is the structured error type used throughout the library
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Module string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Module != "" {
		b.WriteString(" module ")
		b.WriteString(e.Module)
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

// Is reports whether target matches this error.
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	return e.Kind == t.Kind
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

// Module sets the module name the error concerns
func (b *Builder) Module(name string) *Builder {
	b.err.Module = name
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

// ModuleNotFound creates an error for a module with no backing resource
func ModuleNotFound(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindNotFound,
		Module: name,
		Detail: "no resource for module",
		Cause:  cause,
	}
}

// CodeFormat creates an error for a malformed module binary
func CodeFormat(phase Phase, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidFormat,
		Module: name,
		Detail: "malformed module binary",
		Cause:  cause,
	}
}

// InvalidFormat creates a format error without a module context.
// Binary helpers return it; the loader rewraps it with the module name.
func InvalidFormat(detail string, args ...any) *Error {
	return New(PhaseTransform, KindInvalidFormat).Detail(detail, args...).Build()
}

// IllegalBridge creates an error for a capability that cannot cross the
// isolation boundary
func IllegalBridge(name string) *Error {
	return &Error{
		Phase:  PhaseBridge,
		Kind:   KindIllegalBridge,
		Module: name,
		Detail: "capability is not bridgeable",
	}
}

// Unsatisfied creates an error for an implementation that does not
// provide a capability's functions
func Unsatisfied(impl, capability string, cause error) *Error {
	return &Error{
		Phase:  PhaseBridge,
		Kind:   KindIllegalBridge,
		Module: impl,
		Detail: fmt.Sprintf("does not implement %s", capability),
		Cause:  cause,
	}
}

// TransformFailed creates an error for a transformer failure other than a
// malformed binary
func TransformFailed(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseTransform,
		Kind:   KindTransform,
		Module: name,
		Detail: "transformer failed",
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindInstantiation,
		Module: name,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Fatal creates an unrecoverable configuration error
func Fatal(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindFatal,
		Detail: detail,
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

// Config creates a configuration loading error
func Config(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}

// Is reports whether any error in err's tree matches target.
// It forwards to the standard library so callers need a single import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As forwards to the standard library errors.As.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
