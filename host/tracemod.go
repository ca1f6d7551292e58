package host

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-isolate/trace"
)

// TraceModuleName is the import module name of the trace bridge.
//
// Guests import two functions from it:
//
//	enter(name_ptr i32, name_len i32)  opens a span named by a UTF-8 string in memory 0
//	exit()                             closes the innermost open span
//
// Both act on the calling goroutine's current trace and do nothing without one.
const TraceModuleName = "isolate_trace"

// InstallTrace registers the trace bridge backed by reg as an intrinsic.
func (ns *Namespace) InstallTrace(ctx context.Context, reg *trace.Registry) error {
	return ns.RegisterIntrinsic(ctx, TraceModuleName, traceInstaller(reg))
}

func traceInstaller(reg *trace.Registry) Installer {
	return func(ctx context.Context, rt wazero.Runtime) error {
		_, err := rt.NewHostModuleBuilder(TraceModuleName).
			NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, mod api.Module, stack []uint64) {
				t := reg.CurrentTrace()
				if t == nil {
					return
				}
				name := "?"
				if mem := mod.Memory(); mem != nil {
					if b, ok := mem.Read(api.DecodeU32(stack[0]), api.DecodeU32(stack[1])); ok {
						name = string(b)
					}
				}
				t.Enter(name)
			}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, nil).
			Export("enter").
			NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, _ []uint64) {
				if t := reg.CurrentTrace(); t != nil {
					t.Exit()
				}
			}), nil, nil).
			Export("exit").
			Instantiate(ctx)
		return err
	}
}
