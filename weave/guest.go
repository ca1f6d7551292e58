package weave

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-isolate/errors"
	"github.com/wippyai/wasm-isolate/loader"
)

// Guest is a transformer implemented by a WebAssembly module instantiated
// as loader.TransformerCapability. Calls are serialized; a guest instance is
// not safe for concurrent use.
type Guest struct {
	inst *loader.Instance
	mem  api.Memory
	mu   sync.Mutex
}

// NewGuest wraps an instance of loader.TransformerCapability. The instance
// must export a memory.
func NewGuest(inst *loader.Instance) (*Guest, error) {
	if inst.Capability != loader.TransformerCapability {
		return nil, errors.IllegalBridge(inst.Capability.Name)
	}
	mem := inst.Memory()
	if mem == nil {
		return nil, errors.InvalidInput(errors.PhaseTransform, fmt.Sprintf("guest %s exports no memory", inst.Impl.Name))
	}
	return &Guest{inst: inst, mem: mem}, nil
}

// Transform implements loader.Transformer
func (g *Guest) Transform(ctx context.Context, code []byte, _ string, _ any, _ loader.Definer) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	res, err := g.inst.Call(ctx, "alloc", api.EncodeU32(uint32(len(code))))
	if err != nil {
		return nil, fmt.Errorf("guest alloc: %w", err)
	}
	ptr := api.DecodeU32(res[0])
	if !g.mem.Write(ptr, code) {
		return nil, fmt.Errorf("guest alloc returned %d, out of range for %d bytes", ptr, len(code))
	}

	res, err = g.inst.Call(ctx, "transform", api.EncodeU32(ptr), api.EncodeU32(uint32(len(code))))
	if err != nil {
		return nil, fmt.Errorf("guest transform: %w", err)
	}
	if res[0] == 0 {
		return nil, nil
	}
	outPtr, outLen := uint32(res[0]>>32), uint32(res[0])
	out, ok := g.mem.Read(outPtr, outLen)
	if !ok {
		return nil, errors.InvalidFormat("guest result %d+%d out of memory range", outPtr, outLen)
	}
	return append([]byte(nil), out...), nil
}
