package runtime

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-isolate/config"
	"github.com/wippyai/wasm-isolate/errors"
	"github.com/wippyai/wasm-isolate/host"
	"github.com/wippyai/wasm-isolate/internal/wasmtest"
	"github.com/wippyai/wasm-isolate/module"
	"github.com/wippyai/wasm-isolate/source"
)

var handler = module.NewCapability("acme.api.Handler",
	module.Func{Name: "handle", Params: []wit.Type{wit.S32{}}, Results: []wit.Type{wit.S32{}}})

func newRuntime(t *testing.T, cfg *config.Config, entries map[string][]byte) *Runtime {
	t.Helper()
	ctx := context.Background()
	rt, err := New(ctx, Options{Config: cfg, Source: source.NewMap(entries), Bridges: []*module.Module{handler}})
	if err != nil {
		t.Fatalf("create runtime: %v", err)
	}
	t.Cleanup(func() { rt.Close(ctx) })
	return rt
}

func TestLoadRemovesRootTrace(t *testing.T) {
	rt := newRuntime(t, nil, map[string][]byte{"acme.app.A": wasmtest.Empty()})
	ctx := context.Background()

	m, err := rt.Load(ctx, "acme.app.A")
	if err != nil {
		t.Fatal(err)
	}
	if m.Owner != rt.Loader().Name() {
		t.Errorf("Owner = %q, want %q", m.Owner, rt.Loader().Name())
	}
	if n := rt.Registry().Len(); n != 0 {
		t.Errorf("registry holds %d traces after Load", n)
	}
	if rt.Registry().CurrentTrace() != nil {
		t.Error("current trace left set after Load")
	}
	if len(rt.Modules()) != 1 {
		t.Errorf("Modules() = %v", rt.Modules())
	}

	if _, err := rt.Load(ctx, ""); err == nil {
		t.Error("Load of an empty name succeeded")
	}
	if _, err := rt.Load(ctx, "acme.app.Missing"); !errors.Is(err, errors.ErrModuleNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestLoadTracingDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.TraceEnabled = false
	rt := newRuntime(t, cfg, map[string][]byte{"acme.app.A": wasmtest.Empty()})

	if _, err := rt.Load(context.Background(), "acme.app.A"); err != nil {
		t.Fatal(err)
	}
	if rt.Registry().IsCurrentRootSpanDisabled() {
		t.Error("root-disabled flag left set after Load")
	}
	if rt.Registry().Len() != 0 {
		t.Error("trace registered while tracing disabled")
	}
}

func TestGuestSpansRecorded(t *testing.T) {
	traced := wasmtest.New().
		Import(host.TraceModuleName, "enter", []byte{wasmtest.I32, wasmtest.I32}, nil).
		Import(host.TraceModuleName, "exit", nil, nil).
		Memory(1).
		Func("handle", []byte{wasmtest.I32}, []byte{wasmtest.I32},
			wasmtest.OpI32Const, 0, wasmtest.OpI32Const, 0, wasmtest.OpCall, 0,
			wasmtest.OpCall, 1,
			wasmtest.OpLocalGet, 0).
		Bytes()
	rt := newRuntime(t, nil, map[string][]byte{"acme.app.Traced": traced})
	ctx := context.Background()

	root, started := rt.Tracer().StartRoot("test")
	if !started {
		t.Fatal("root not started")
	}
	defer rt.Tracer().EndRoot()

	inst, err := rt.Instantiate(ctx, "acme.app.Traced", handler)
	if err != nil {
		t.Fatal(err)
	}
	res, err := rt.Call(ctx, inst, "handle", 5)
	if err != nil {
		t.Fatal(err)
	}
	if int32(res[0]) != 5 {
		t.Errorf("handle(5) = %d, want 5", int32(res[0]))
	}

	if rt.Registry().CurrentTrace() != root {
		t.Fatal("nested calls replaced the current trace")
	}
	spans := root.Spans()
	want := []struct {
		name  string
		depth int
	}{
		{"instantiate acme.app.Traced", 0},
		{"", 1},
		{"call handle", 0},
	}
	if len(spans) != len(want) {
		t.Fatalf("spans = %+v, want %d", spans, len(want))
	}
	for i, w := range want {
		if spans[i].Name != w.name || spans[i].Depth != w.depth {
			t.Errorf("span[%d] = %q@%d, want %q@%d", i, spans[i].Name, spans[i].Depth, w.name, w.depth)
		}
	}
}

func TestConfiguredMarker(t *testing.T) {
	cfg := config.Default()
	cfg.Marker = &config.Marker{Names: []string{"Sample"}, Payload: []byte{0xab}}
	rt := newRuntime(t, cfg, map[string][]byte{
		"acme.app.Sample": wasmtest.Empty(),
		"acme.app.Other":  wasmtest.Empty(),
	})
	ctx := context.Background()

	sample, err := rt.Load(ctx, "acme.app.Sample")
	if err != nil {
		t.Fatal(err)
	}
	if sample.Bytes[len(sample.Bytes)-1] != 0xab {
		t.Error("Sample not marked")
	}
	other, err := rt.Load(ctx, "acme.app.Other")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(other.Bytes, wasmtest.Empty()) {
		t.Error("Other changed")
	}
	if n := rt.Transformed(); n != 2 {
		t.Errorf("Transformed() = %d, want 2", n)
	}
}

func TestConfiguredPrefixMarker(t *testing.T) {
	cfg := config.Default()
	cfg.Marker = &config.Marker{Prefixes: []string{"acme.app."}, Payload: []byte{0xab}}
	rt := newRuntime(t, cfg, map[string][]byte{
		"acme.app.Sample": wasmtest.Empty(),
		"acme.lib.Other":  wasmtest.Empty(),
	})
	ctx := context.Background()

	tests := []struct {
		name   string
		marked bool
	}{
		{"acme.app.Sample", true},
		{"acme.lib.Other", false},
		{"acme.app.Sample", true},
	}
	for _, tt := range tests {
		m, err := rt.Load(ctx, tt.name)
		if err != nil {
			t.Fatal(err)
		}
		if got := m.Bytes[len(m.Bytes)-1] == 0xab; got != tt.marked {
			t.Errorf("%s marked = %v, want %v", tt.name, got, tt.marked)
		}
	}
	if n := rt.TransformCalls("acme/app/Sample"); n != 1 {
		t.Errorf("TransformCalls(acme/app/Sample) = %d, want 1", n)
	}
	if n := rt.Transformed(); n != 2 {
		t.Errorf("Transformed() = %d, want 2", n)
	}
}

func TestNoTransformerCountsNothing(t *testing.T) {
	rt := newRuntime(t, nil, map[string][]byte{"acme.app.A": wasmtest.Empty()})
	if _, err := rt.Load(context.Background(), "acme.app.A"); err != nil {
		t.Fatal(err)
	}
	if n := rt.Transformed(); n != 0 {
		t.Errorf("Transformed() = %d, want 0", n)
	}
}

func TestLoadGuestTransformer(t *testing.T) {
	cfg := config.Default()
	cfg.Marker = &config.Marker{Names: []string{"Target"}, Payload: []byte{0xcd}}
	target := wasmtest.Const("answer", 1)
	rt := newRuntime(t, cfg, map[string][]byte{
		"acme.weave.Echo": wasmtest.GuestTransformer(true),
		"acme.app.Target": target,
	})
	ctx := context.Background()

	if err := rt.LoadGuestTransformer(ctx, "acme.weave.Echo"); err != nil {
		t.Fatal(err)
	}
	m, err := rt.Load(ctx, "acme.app.Target")
	if err != nil {
		t.Fatal(err)
	}
	// The echo guest returns the marked binary unchanged.
	if last := m.Bytes[len(m.Bytes)-1]; last != 0xcd {
		t.Errorf("last byte = %#x, want 0xcd", last)
	}
	if !bytes.HasPrefix(m.Bytes, target) {
		t.Error("transformed binary does not extend the original")
	}
}

func TestLoadGuestTransformerRejectsNonGuest(t *testing.T) {
	rt := newRuntime(t, nil, map[string][]byte{"acme.app.A": wasmtest.Empty()})
	if err := rt.LoadGuestTransformer(context.Background(), "acme.app.A"); err == nil {
		t.Error("module without the transformer exports attached as transformer")
	}
}

func TestDirectorySource(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	if err := os.MkdirAll(filepath.Join(second, "acme", "app"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(second, "acme", "app", "A.wasm"), wasmtest.Empty(), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.SourceDirs = []string{first, second}
	ctx := context.Background()
	rt, err := New(ctx, Options{Config: cfg})
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close(ctx)

	if _, err := rt.Load(ctx, "acme.app.A"); err != nil {
		t.Errorf("Load from second directory: %v", err)
	}
}

func TestHostIntrinsics(t *testing.T) {
	rt := newRuntime(t, nil, nil)
	for _, name := range []string{host.WASIModuleName, host.TraceModuleName} {
		if !rt.Host().IsIntrinsic(name) {
			t.Errorf("%s not intrinsic", name)
		}
		if !rt.Loader().ShouldDelegate(name) {
			t.Errorf("%s not delegated", name)
		}
	}
}
