// Package hostaccess carries the host namespace's definition primitive to
// the packages allowed to call it.
//
// The host package installs Define during initialization. Only packages
// inside this module can import hostaccess, which keeps the primitive out
// of reach of ordinary callers.
package hostaccess

import (
	"context"

	"github.com/wippyai/wasm-isolate/module"
)

// Define compiles code as module name into target, which must be a
// *host.Namespace. It is nil until the host package is initialized.
var Define func(ctx context.Context, target any, name string, code []byte) (*module.Module, error)
