package loader

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wippyai/wasm-isolate/errors"
	"github.com/wippyai/wasm-isolate/internal/gls"
	"github.com/wippyai/wasm-isolate/internal/wasmbin"
	"github.com/wippyai/wasm-isolate/module"
	"github.com/wippyai/wasm-isolate/source"
)

// DefaultName is the loader name used when Config.Name is empty.
const DefaultName = "isolated"

// Parent is the namespace an isolated loader delegates to.
// *host.Namespace implements it.
type Parent interface {
	Resolve(ctx context.Context, name string) (*module.Module, error)
	IsIntrinsic(name string) bool
	Install(ctx context.Context, rt wazero.Runtime, name string) error
}

// Config holds configuration for loader creation
type Config struct {
	Parent Parent
	Source source.Source

	// RuntimeConfig configures the loader's own runtime. nil means
	// wazero.NewRuntimeConfig().
	RuntimeConfig wazero.RuntimeConfig

	// Policy overrides DefaultPolicy when set.
	Policy *Policy

	// Name identifies the loader as the Owner of its modules.
	Name string

	// Bridges are capabilities resolved to the same object inside and
	// outside the loader. LoaderCapability and TransformerCapability are
	// always added.
	Bridges []*module.Module
}

// Isolated is a module namespace isolated from its parent.
type Isolated struct {
	parent      Parent
	source      source.Source
	runtime     wazero.Runtime
	transformer atomic.Pointer[transformerRef]
	modules     sync.Map // string -> *entry
	packages    sync.Map // string -> struct{}
	flight      singleflight.Group
	inTransform gls.Local[bool]
	name        string
	bridges     []*module.Module
	policy      Policy
	linkMu      sync.Mutex
}

var _ Definer = (*Isolated)(nil)

// entry is a cached definition. passthrough marks a definition made on a
// goroutine already inside a transform while a transformer was attached;
// a transformed definition of the same name replaces it.
type entry struct {
	m           *module.Module
	passthrough bool
}

// New creates an isolated loader with its own runtime.
func New(ctx context.Context, cfg Config) (*Isolated, error) {
	if cfg.Parent == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "loader requires a parent namespace")
	}
	if cfg.Source == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "loader requires a source")
	}

	bridges := make([]*module.Module, 0, len(cfg.Bridges)+2)
	for _, b := range cfg.Bridges {
		if b == nil || b.Kind != module.KindCapability {
			return nil, errors.InvalidInput(errors.PhaseBridge, "bridges must be capabilities")
		}
		bridges = append(bridges, b)
	}
	bridges = append(bridges, LoaderCapability, TransformerCapability)

	policy := DefaultPolicy()
	if cfg.Policy != nil {
		policy = *cfg.Policy
	}
	name := cfg.Name
	if name == "" {
		name = DefaultName
	}
	rc := cfg.RuntimeConfig
	if rc == nil {
		rc = wazero.NewRuntimeConfig()
	}

	return &Isolated{
		parent:  cfg.Parent,
		source:  cfg.Source,
		runtime: wazero.NewRuntimeWithConfig(ctx, rc),
		name:    name,
		bridges: bridges,
		policy:  policy,
	}, nil
}

// Name returns the loader name.
func (l *Isolated) Name() string {
	return l.name
}

// Runtime returns the loader's own runtime.
func (l *Isolated) Runtime() wazero.Runtime {
	return l.runtime
}

// Bridges returns the bridge capabilities in construction order.
func (l *Isolated) Bridges() []*module.Module {
	out := make([]*module.Module, len(l.bridges))
	copy(out, l.bridges)
	return out
}

// SetTransformer attaches t. It is meant to be called once, after the
// transformer's own modules have been loaded; a nil t detaches.
func (l *Isolated) SetTransformer(t Transformer) {
	if t == nil {
		l.transformer.Store(nil)
		return
	}
	l.transformer.Store(&transformerRef{t: t})
}

// Close releases the runtime and every module defined in it.
func (l *Isolated) Close(ctx context.Context) error {
	return l.runtime.Close(ctx)
}

// Resolve returns the module called name.
//
// Delegated names are resolved by the parent and not cached. Other names are
// resolved at most once per loader; concurrent first resolutions of a name
// share one result.
func (l *Isolated) Resolve(ctx context.Context, name string) (*module.Module, error) {
	if l.ShouldDelegate(name) {
		Logger().Debug("delegating to parent", zap.String("loader", l.name), zap.String("module", name))
		return l.parent.Resolve(ctx, name)
	}
	if e, ok := l.modules.Load(name); ok {
		return e.(*entry).m, nil
	}

	// A goroutine inside a transform may be resolving on behalf of the
	// flight it is part of; waiting on that flight would never return.
	if l.inTransform.Get() {
		return l.resolveFresh(ctx, name)
	}

	v, err, _ := l.flight.Do(name, func() (any, error) {
		if e, ok := l.modules.Load(name); ok {
			return e.(*entry).m, nil
		}
		return l.resolveFresh(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*module.Module), nil
}

func (l *Isolated) resolveFresh(ctx context.Context, name string) (*module.Module, error) {
	for _, b := range l.bridges {
		if b.Name == name {
			actual, _ := l.modules.LoadOrStore(name, &entry{m: b})
			return actual.(*entry).m, nil
		}
	}

	code, err := l.source.ReadModule(name)
	if err != nil {
		if errors.Is(err, source.ErrNotExist) {
			return nil, errors.ModuleNotFound(name, nil)
		}
		return nil, errors.ModuleNotFound(name, err)
	}
	return l.DefineTransformed(ctx, name, code)
}

// DefineTransformed transforms code, registers the module's package and
// compiles the result as module name.
//
// If another definition of name became visible first, that one is returned
// and this one is discarded. The exception is a definition that skipped the
// transformer because its goroutine was already transforming: a transformed
// definition racing it replaces it in the cache, so goroutines outside any
// transform always see transformed code.
func (l *Isolated) DefineTransformed(ctx context.Context, name string, code []byte) (*module.Module, error) {
	code, passthrough, err := l.transform(ctx, name, code)
	if err != nil {
		return nil, err
	}

	l.definePackage(module.PackageName(name))

	compiled, err := l.runtime.CompileModule(ctx, code)
	if err != nil {
		return nil, errors.CodeFormat(errors.PhaseDefine, name, err)
	}

	e := &entry{
		m: &module.Module{
			Name:     name,
			Kind:     module.KindDefined,
			Owner:    l.name,
			Bytes:    code,
			Compiled: compiled,
		},
		passthrough: passthrough,
	}
	for {
		actual, loaded := l.modules.LoadOrStore(name, e)
		if !loaded {
			return e.m, nil
		}
		prev := actual.(*entry)
		if passthrough || !prev.passthrough {
			_ = compiled.Close(ctx)
			Logger().Debug("discarded duplicate definition", zap.String("loader", l.name), zap.String("module", name))
			return prev.m, nil
		}
		// The passthrough definition may already be linked or held by the
		// transformer that resolved it, so its compiled module stays open.
		if l.modules.CompareAndSwap(name, prev, e) {
			Logger().Debug("replaced passthrough definition", zap.String("loader", l.name), zap.String("module", name))
			return e.m, nil
		}
	}
}

// transform applies the attached transformer unless there is none or the
// calling goroutine is already inside a transform. passthrough reports the
// latter case.
func (l *Isolated) transform(ctx context.Context, name string, code []byte) (out []byte, passthrough bool, err error) {
	ref := l.transformer.Load()
	if ref == nil {
		return code, false, nil
	}
	gid := gls.ID()
	if l.inTransform.GetID(gid) {
		return code, true, nil
	}

	release := l.enterTransform(gid)
	defer release()

	out, err = ref.t.Transform(ctx, code, module.InternalName(name), nil, l)
	if err != nil {
		if errors.Is(err, errors.ErrCodeFormat) {
			return nil, false, errors.CodeFormat(errors.PhaseTransform, name, err)
		}
		return nil, false, errors.TransformFailed(name, err)
	}
	if out == nil {
		return code, false, nil
	}
	if err := wasmbin.Check(out); err != nil {
		return nil, false, errors.CodeFormat(errors.PhaseTransform, name, err)
	}
	Logger().Debug("transformed", zap.String("loader", l.name), zap.String("module", name),
		zap.Int("before", len(code)), zap.Int("after", len(out)))
	return out, false, nil
}

// enterTransform marks goroutine gid as transforming. The returned function
// clears the mark and must run on every exit path.
func (l *Isolated) enterTransform(gid int64) (release func()) {
	l.inTransform.SetID(gid, true)
	return func() { l.inTransform.DeleteID(gid) }
}

// definePackage registers pkg once. Later registrations are no-ops.
func (l *Isolated) definePackage(pkg string) {
	if pkg == "" {
		return
	}
	if _, loaded := l.packages.LoadOrStore(pkg, struct{}{}); !loaded {
		Logger().Debug("package defined", zap.String("loader", l.name), zap.String("package", pkg))
	}
}

// ShouldDelegate reports whether name is left to the parent: platform
// intrinsics, support modules and trusted prefixes.
func (l *Isolated) ShouldDelegate(name string) bool {
	return l.parent.IsIntrinsic(name) || l.policy.matches(name)
}

// validateBridgeable accepts host intrinsics and bridge capabilities.
func (l *Isolated) validateBridgeable(name string) error {
	if l.parent.IsIntrinsic(name) {
		return nil
	}
	for _, b := range l.bridges {
		if b.Name == name {
			return nil
		}
	}
	return errors.IllegalBridge(name)
}

// Modules returns the modules resolved by this loader, sorted by name.
func (l *Isolated) Modules() []*module.Module {
	var out []*module.Module
	l.modules.Range(func(_, v any) bool {
		out = append(out, v.(*entry).m)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Packages returns the registered packages, sorted.
func (l *Isolated) Packages() []string {
	var out []string
	l.packages.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	sort.Strings(out)
	return out
}
