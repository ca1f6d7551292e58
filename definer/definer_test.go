package definer

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/wasm-isolate/errors"
	"github.com/wippyai/wasm-isolate/host"
	"github.com/wippyai/wasm-isolate/internal/wasmtest"
	"github.com/wippyai/wasm-isolate/module"
)

func TestDefineInExisting(t *testing.T) {
	ctx := context.Background()
	ns := host.New(ctx, host.Config{Name: "app"})
	defer ns.Close(ctx)

	m, err := DefineInExisting(ctx, "acme.gen.Proxy", wasmtest.Const("answer", 42), ns)
	if err != nil {
		t.Fatal(err)
	}
	if m.Owner != "app" || m.Kind != module.KindDefined || m.Compiled == nil {
		t.Errorf("module = %v", m)
	}

	got, err := ns.Resolve(ctx, "acme.gen.Proxy")
	if err != nil || got != m {
		t.Errorf("Resolve() = %v, %v; want the defined module", got, err)
	}

	inst, err := ns.Runtime().InstantiateModule(ctx, m.Compiled, wazero.NewModuleConfig())
	if err != nil {
		t.Fatal(err)
	}
	res, err := inst.ExportedFunction("answer").Call(ctx)
	if err != nil || res[0] != 42 {
		t.Errorf("answer() = %v, %v; want 42", res, err)
	}
}

func TestDefineInExistingDuplicate(t *testing.T) {
	ctx := context.Background()
	ns := host.New(ctx, host.Config{})
	defer ns.Close(ctx)

	if _, err := DefineInExisting(ctx, "a.B", wasmtest.Empty(), ns); err != nil {
		t.Fatal(err)
	}
	if _, err := DefineInExisting(ctx, "a.B", wasmtest.Empty(), ns); err == nil {
		t.Error("second definition succeeded")
	}
}

func TestDefineInExistingMalformed(t *testing.T) {
	ctx := context.Background()
	ns := host.New(ctx, host.Config{})
	defer ns.Close(ctx)

	_, err := DefineInExisting(ctx, "a.Bad", []byte("not wasm"), ns)
	if !errors.Is(err, errors.ErrCodeFormat) {
		t.Errorf("err = %v, want code format error", err)
	}
}

func TestDefineInExistingNilNamespacePanics(t *testing.T) {
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, errors.ErrFatal) {
			t.Errorf("recover() = %v, want fatal error", r)
		}
	}()
	_, _ = DefineInExisting(context.Background(), "a.B", wasmtest.Empty(), nil)
}
