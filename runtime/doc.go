// Package runtime wires a host namespace, an isolated loader and a trace
// registry into one unit.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx, runtime.Options{Config: cfg})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	// Resolve a module inside the isolated namespace
//	mod, err := rt.Load(ctx, "acme.app.Sample")
//
//	// Instantiate an implementation as a bridge capability
//	inst, err := rt.Instantiate(ctx, "acme.app.Impl", handler)
//	res, err := inst.Call(ctx, "handle", 41)
//
// # Host namespace
//
// The host namespace always carries two intrinsics: WASI preview1
// (wasi_snapshot_preview1) and the trace bridge (isolate_trace). Guests
// importing either are linked against the host implementation; every other
// import is resolved inside the isolated namespace.
//
// # Tracing
//
// Load and Instantiate run as root units of work: when tracing is enabled a
// trace is registered for the duration of the call and guest code reaches it
// through isolate_trace. Calls made while a root is already active on the
// goroutine record spans into that root instead.
package runtime
