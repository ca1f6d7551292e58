package host

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// WASIModuleName is the import module name of WASI preview1.
const WASIModuleName = wasi_snapshot_preview1.ModuleName

// InstallWASI registers WASI preview1 as an intrinsic.
func (ns *Namespace) InstallWASI(ctx context.Context) error {
	return ns.RegisterIntrinsic(ctx, WASIModuleName, func(ctx context.Context, rt wazero.Runtime) error {
		_, err := wasi_snapshot_preview1.Instantiate(ctx, rt)
		return err
	})
}
