package loader

import (
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-isolate/module"
)

// LoaderCapability is the bridge identity of the loader itself. It has no
// functions; it exists so the name resolves to one object on both sides.
var LoaderCapability = module.NewCapability("isolate.loader.Isolated")

// TransformerCapability is implemented by guest modules that act as
// transformers:
//
//	alloc(len u32) -> ptr u32
//	transform(ptr u32, len u32) -> u64
//
// transform returns 0 to leave the input unchanged, or ptr<<32 | len of the
// replacement binary in the guest's exported memory.
var TransformerCapability = module.NewCapability("isolate.loader.Transformer",
	module.Func{Name: "alloc", Params: []wit.Type{wit.U32{}}, Results: []wit.Type{wit.U32{}}},
	module.Func{Name: "transform", Params: []wit.Type{wit.U32{}, wit.U32{}}, Results: []wit.Type{wit.U64{}}},
)
