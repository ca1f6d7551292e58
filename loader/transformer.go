package loader

import (
	"context"

	"github.com/wippyai/wasm-isolate/module"
)

// Transformer rewrites module binaries before they are defined.
//
// internalName is the slash form of the module name. hint is reserved for
// transformer-specific context and is nil when called by Isolated. A nil
// result with a nil error leaves the binary unchanged. Errors matching
// errors.ErrCodeFormat surface to the resolving caller as format errors.
//
// The definer lets a transformer define auxiliary modules it generates. Calls
// made through it on the transforming goroutine are not transformed.
type Transformer interface {
	Transform(ctx context.Context, code []byte, internalName string, hint any, definer Definer) ([]byte, error)
}

// TransformFunc adapts a function to Transformer.
type TransformFunc func(ctx context.Context, code []byte, internalName string, hint any, definer Definer) ([]byte, error)

// Transform implements Transformer
func (f TransformFunc) Transform(ctx context.Context, code []byte, internalName string, hint any, definer Definer) ([]byte, error) {
	return f(ctx, code, internalName, hint, definer)
}

// Definer defines a module from a binary, applying the loader's transform
// policy.
type Definer interface {
	DefineTransformed(ctx context.Context, name string, code []byte) (*module.Module, error)
}

type transformerRef struct {
	t Transformer
}
