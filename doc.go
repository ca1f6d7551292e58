// Package isolate loads WebAssembly modules into isolated namespaces.
//
// An isolated namespace owns its own wazero runtime. Modules resolved in it
// are read from a source, optionally rewritten by a transformer, compiled
// once and cached. A small set of names is always left to a pre-existing
// host namespace: platform intrinsics such as WASI, shared support modules
// and trusted utility prefixes. Bridge capabilities resolve to the same
// object inside and outside the namespace and are the only types an isolated
// implementation can be instantiated as.
//
// # Architecture Overview
//
//	isolate/
//	├── runtime/         Wires host, loader and tracing into one unit
//	├── loader/          Isolated namespace: resolve, transform, define, instantiate
//	├── host/            Host namespace with intrinsic registry (WASI, isolate_trace)
//	├── definer/         Privileged definition into a host namespace
//	├── module/          Module identity and bridge capabilities (WIT signatures)
//	├── trace/           Per-goroutine trace state and the global trace registry
//	├── weave/           Transformers: marker, chain, counting, guest-implemented
//	├── source/          Where module binaries come from (map, fs, chain)
//	├── config/          HCL configuration
//	├── errors/          Structured error types
//	└── cmd/isolate/     Command line and interactive front end
//
// # Quick Start
//
//	rt, err := runtime.New(ctx, runtime.Options{Config: cfg})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	mod, err := rt.Load(ctx, "acme.app.Sample")
//
// # Transformation
//
// A transformer sees every module defined through the isolated loader
// exactly once, unless the module is defined while the same goroutine is
// already inside a transform; those definitions pass through unchanged.
// Transformers can themselves be WebAssembly guests, attached after they
// have been loaded:
//
//	err := rt.LoadGuestTransformer(ctx, "acme.weave.Rewriter")
//
// # Tracing
//
// The trace registry keeps the current trace and a root-disabled flag per
// goroutine, plus the set of traces in flight. Guests record spans through
// the isolate_trace host module.
package isolate
