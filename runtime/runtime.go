package runtime

import (
	"context"
	"os"
	"sync/atomic"

	"github.com/wippyai/wasm-isolate/config"
	"github.com/wippyai/wasm-isolate/errors"
	"github.com/wippyai/wasm-isolate/host"
	"github.com/wippyai/wasm-isolate/loader"
	"github.com/wippyai/wasm-isolate/module"
	"github.com/wippyai/wasm-isolate/source"
	"github.com/wippyai/wasm-isolate/trace"
	"github.com/wippyai/wasm-isolate/weave"
)

// Options configures New.
type Options struct {
	// Config defaults to config.Default().
	Config *config.Config

	// Source overrides Config.SourceDirs when set.
	Source source.Source

	// Bridges are passed to the isolated loader.
	Bridges []*module.Module

	// Transformer runs after the configured marker, if any.
	Transformer loader.Transformer
}

type Runtime struct {
	host     *host.Namespace
	loader   *loader.Isolated
	registry *trace.Registry
	tracer   *trace.Tracer
	marker   loader.Transformer
	counts   atomic.Pointer[weave.Counting]
}

func New(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	hostCfg := host.Config{MemoryLimitPages: cfg.MemoryLimitPages}
	ns := host.New(ctx, hostCfg)
	reg := trace.NewRegistry()

	if err := ns.InstallWASI(ctx); err != nil {
		ns.Close(ctx)
		return nil, err
	}
	if err := ns.InstallTrace(ctx, reg); err != nil {
		ns.Close(ctx)
		return nil, err
	}

	src := opts.Source
	if src == nil {
		src = dirSource(cfg.SourceDirs)
	}

	policy := cfg.Policy
	l, err := loader.New(ctx, loader.Config{
		Parent:        ns,
		Source:        src,
		RuntimeConfig: hostCfg.RuntimeConfig(),
		Policy:        &policy,
		Bridges:       opts.Bridges,
	})
	if err != nil {
		ns.Close(ctx)
		return nil, err
	}

	r := &Runtime{
		host:     ns,
		loader:   l,
		registry: reg,
		tracer:   trace.NewTracer(reg, cfg.TraceEnabled),
	}
	if m := cfg.Marker; m != nil {
		r.marker = &weave.Marker{
			Match:   weave.Any(weave.SimpleNames(m.Names...), weave.Prefixes(m.Prefixes...)),
			Section: m.Section,
			Payload: m.Payload,
		}
	}
	r.SetTransformer(opts.Transformer)
	return r, nil
}

func dirSource(dirs []string) source.Source {
	chain := make(source.Chain, 0, len(dirs))
	for _, dir := range dirs {
		chain = append(chain, source.NewFS(os.DirFS(dir)))
	}
	return chain
}

// Close releases the isolated loader and then the host namespace.
func (r *Runtime) Close(ctx context.Context) error {
	lerr := r.loader.Close(ctx)
	herr := r.host.Close(ctx)
	if lerr != nil {
		return lerr
	}
	return herr
}

func (r *Runtime) Host() *host.Namespace {
	return r.host
}

func (r *Runtime) Loader() *loader.Isolated {
	return r.loader
}

func (r *Runtime) Tracer() *trace.Tracer {
	return r.tracer
}

func (r *Runtime) Registry() *trace.Registry {
	return r.registry
}

// SetTransformer attaches t behind the configured marker. A nil t leaves
// only the marker. Transform counts restart with every call.
func (r *Runtime) SetTransformer(t loader.Transformer) {
	switch {
	case r.marker != nil && t != nil:
		t = weave.Chain{r.marker, t}
	case r.marker != nil:
		t = r.marker
	}
	if t == nil {
		r.counts.Store(nil)
		r.loader.SetTransformer(nil)
		return
	}
	c := &weave.Counting{T: t}
	r.counts.Store(c)
	r.loader.SetTransformer(c)
}

// Transformed returns how many modules the attached transformer has seen.
func (r *Runtime) Transformed() int {
	if c := r.counts.Load(); c != nil {
		return c.Total()
	}
	return 0
}

// TransformCalls returns how often the module with the given internal name,
// such as "acme/app/Sample", was passed to the attached transformer.
func (r *Runtime) TransformCalls(internalName string) int {
	if c := r.counts.Load(); c != nil {
		return c.Calls(internalName)
	}
	return 0
}

// LoadGuestTransformer instantiates the guest module name as
// loader.TransformerCapability and attaches it. The guest itself is loaded
// before it is attached and is therefore not transformed by it.
func (r *Runtime) LoadGuestTransformer(ctx context.Context, name string) error {
	inst, err := r.Instantiate(ctx, name, loader.TransformerCapability)
	if err != nil {
		return err
	}
	g, err := weave.NewGuest(inst)
	if err != nil {
		return err
	}
	r.SetTransformer(g)
	return nil
}

// Load resolves name in the isolated namespace as a root unit of work.
func (r *Runtime) Load(ctx context.Context, name string) (*module.Module, error) {
	if name == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "empty module name")
	}
	defer r.root("load " + name)()
	defer r.tracer.Span("resolve " + name)()

	return r.loader.Resolve(ctx, name)
}

// Instantiate instantiates impl as capability as a root unit of work.
func (r *Runtime) Instantiate(ctx context.Context, impl string, capability *module.Module) (*loader.Instance, error) {
	defer r.root("instantiate " + impl)()
	defer r.tracer.Span("instantiate " + impl)()

	return r.loader.Instantiate(ctx, impl, capability)
}

// Call invokes fn on inst with the calling goroutine's trace current, so
// guest spans recorded through isolate_trace land in it.
func (r *Runtime) Call(ctx context.Context, inst *loader.Instance, fn string, args ...uint64) ([]uint64, error) {
	defer r.root("call " + fn)()
	defer r.tracer.Span("call " + fn)()

	return inst.Call(ctx, fn, args...)
}

// root starts a root unit of work and returns the function ending it. Nested
// roots on the same goroutine end with their outermost caller.
func (r *Runtime) root(name string) func() {
	if r.registry.IsCurrentRootSpanDisabled() || r.registry.CurrentTrace() != nil {
		return func() {}
	}
	r.tracer.StartRoot(name)
	return r.tracer.EndRoot
}

// Modules returns the modules defined in the isolated namespace.
func (r *Runtime) Modules() []*module.Module {
	return r.loader.Modules()
}

// Traces returns the traces of roots currently in flight.
func (r *Runtime) Traces() []*trace.Trace {
	return r.registry.Traces()
}
