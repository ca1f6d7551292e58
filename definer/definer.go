// Package definer defines modules into host namespaces that this library
// did not create the loader for.
//
// A host namespace does not expose its definition primitive. DefineInExisting
// reaches it through the privileged path the host package installs at init.
package definer

import (
	"context"

	"github.com/wippyai/wasm-isolate/errors"
	"github.com/wippyai/wasm-isolate/host"
	"github.com/wippyai/wasm-isolate/internal/hostaccess"
	"github.com/wippyai/wasm-isolate/module"
)

// DefineInExisting compiles code, in full, as module name inside ns.
// Nothing is cached here; a second call for the same name fails in ns.
//
// A nil ns is an unsupported configuration: defining without an owning
// namespace needs a different resolution strategy entirely. It panics with
// an errors.KindFatal error.
func DefineInExisting(ctx context.Context, name string, code []byte, ns *host.Namespace) (*module.Module, error) {
	if ns == nil {
		panic(errors.Fatal(errors.PhaseDefine, "no owning namespace for "+name))
	}
	m, err := hostaccess.Define(ctx, ns, name, code)
	if err != nil {
		return nil, err
	}
	if m == nil {
		panic(errors.Fatal(errors.PhaseDefine, "host defined no module for "+name))
	}
	return m, nil
}
