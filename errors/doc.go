// Package errors provides structured error types for the wasm-isolate library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the module name it concerns, a detail message and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseTransform, errors.KindInvalidFormat).
//		Module("acme.app.Sample").
//		Detail("transformer returned %d bytes", n).
//		Cause(err).
//		Build()
//
// Or use convenience constructors for the taxonomy used by the loader:
//
//	err := errors.ModuleNotFound("acme.app.Sample", nil)
//	err := errors.CodeFormat(errors.PhaseDefine, "acme.app.Sample", cause)
//	err := errors.IllegalBridge("acme.api.Handler")
//
// Sentinels carry no phase and match any error of their kind:
//
//	if errors.Is(err, errors.ErrModuleNotFound) { ... }
package errors
