// Package host implements the pre-existing namespace an isolated loader
// delegates to.
//
// A Namespace owns a wazero runtime. Its platform-intrinsic modules are an
// explicit registry of host modules (WASI, the trace bridge, anything
// registered with RegisterIntrinsic). Modules can also be defined into it,
// but only through the privileged path in package definer.
package host

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-isolate/errors"
	"github.com/wippyai/wasm-isolate/internal/hostaccess"
	"github.com/wippyai/wasm-isolate/module"
)

func init() {
	hostaccess.Define = func(ctx context.Context, target any, name string, code []byte) (*module.Module, error) {
		ns, ok := target.(*Namespace)
		if !ok {
			return nil, errors.InvalidInput(errors.PhaseDefine, fmt.Sprintf("cannot define into %T", target))
		}
		return ns.define(ctx, name, code)
	}
}

// DefaultName is the namespace name used when Config.Name is empty.
const DefaultName = "host"

// Installer instantiates an intrinsic host module into rt.
type Installer func(ctx context.Context, rt wazero.Runtime) error

// Config holds configuration for namespace creation
type Config struct {
	// Name identifies the namespace as the Owner of its modules.
	Name string

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32
}

// RuntimeConfig returns the wazero configuration for cfg.
func (cfg Config) RuntimeConfig() wazero.RuntimeConfig {
	rc := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	return rc
}

type intrinsic struct {
	mod     *module.Module
	install Installer
}

// Namespace is a host resolution authority backed by a wazero runtime.
type Namespace struct {
	runtime    wazero.Runtime
	intrinsics map[string]*intrinsic
	defined    map[string]*module.Module
	name       string
	mu         sync.RWMutex
	installMu  sync.Mutex
}

// New creates a namespace with its own runtime and no intrinsics.
func New(ctx context.Context, cfg Config) *Namespace {
	name := cfg.Name
	if name == "" {
		name = DefaultName
	}
	return &Namespace{
		name:       name,
		runtime:    wazero.NewRuntimeWithConfig(ctx, cfg.RuntimeConfig()),
		intrinsics: make(map[string]*intrinsic),
		defined:    make(map[string]*module.Module),
	}
}

// Name returns the namespace name.
func (ns *Namespace) Name() string {
	return ns.name
}

// Runtime returns the underlying runtime.
func (ns *Namespace) Runtime() wazero.Runtime {
	return ns.runtime
}

// Close releases the runtime and everything instantiated in it.
func (ns *Namespace) Close(ctx context.Context) error {
	return ns.runtime.Close(ctx)
}

// RegisterIntrinsic installs a host module into this namespace's runtime and
// records it as platform-intrinsic. Registering a name twice fails.
func (ns *Namespace) RegisterIntrinsic(ctx context.Context, name string, install Installer) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if _, ok := ns.intrinsics[name]; ok {
		return errors.InvalidInput(errors.PhaseDefine, fmt.Sprintf("intrinsic %q already registered", name))
	}
	if err := install(ctx, ns.runtime); err != nil {
		return errors.Instantiation(name, err)
	}
	ns.intrinsics[name] = &intrinsic{
		mod: &module.Module{
			Name:  name,
			Kind:  module.KindIntrinsic,
			Owner: ns.name,
		},
		install: install,
	}
	Logger().Debug("intrinsic registered", zap.String("namespace", ns.name), zap.String("module", name))
	return nil
}

// IsIntrinsic reports whether name is a platform-intrinsic module of this
// namespace. A miss is expected and only logged at debug level.
func (ns *Namespace) IsIntrinsic(name string) bool {
	ns.mu.RLock()
	_, ok := ns.intrinsics[name]
	ns.mu.RUnlock()
	if !ok {
		Logger().Debug("not intrinsic", zap.String("namespace", ns.name), zap.String("module", name))
	}
	return ok
}

// Intrinsics returns the names of all intrinsic modules, sorted.
func (ns *Namespace) Intrinsics() []string {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	out := make([]string, 0, len(ns.intrinsics))
	for name := range ns.intrinsics {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the intrinsic or previously defined module called name.
func (ns *Namespace) Resolve(_ context.Context, name string) (*module.Module, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	if in, ok := ns.intrinsics[name]; ok {
		return in.mod, nil
	}
	if m, ok := ns.defined[name]; ok {
		return m, nil
	}
	return nil, errors.ModuleNotFound(name, nil)
}

// Install instantiates the intrinsic called name into rt unless rt already
// has a module of that name.
func (ns *Namespace) Install(ctx context.Context, rt wazero.Runtime, name string) error {
	ns.mu.RLock()
	in, ok := ns.intrinsics[name]
	ns.mu.RUnlock()
	if !ok {
		return errors.ModuleNotFound(name, nil)
	}

	if rt.Module(name) != nil {
		return nil
	}
	ns.installMu.Lock()
	defer ns.installMu.Unlock()
	if rt.Module(name) != nil {
		return nil
	}
	if err := in.install(ctx, rt); err != nil {
		return errors.Instantiation(name, err)
	}
	return nil
}

// define compiles code into the namespace's runtime. It is reachable only
// through hostaccess.Define.
func (ns *Namespace) define(ctx context.Context, name string, code []byte) (*module.Module, error) {
	compiled, err := ns.runtime.CompileModule(ctx, code)
	if err != nil {
		return nil, errors.CodeFormat(errors.PhaseDefine, name, err)
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()
	if _, ok := ns.defined[name]; ok {
		_ = compiled.Close(ctx)
		return nil, errors.New(errors.PhaseDefine, errors.KindInvalidInput).
			Module(name).
			Detail("already defined in %s", ns.name).
			Build()
	}
	if _, ok := ns.intrinsics[name]; ok {
		_ = compiled.Close(ctx)
		return nil, errors.New(errors.PhaseDefine, errors.KindInvalidInput).
			Module(name).
			Detail("name is intrinsic in %s", ns.name).
			Build()
	}

	m := &module.Module{
		Name:     name,
		Kind:     module.KindDefined,
		Owner:    ns.name,
		Bytes:    code,
		Compiled: compiled,
	}
	ns.defined[name] = m
	Logger().Debug("module defined", zap.String("namespace", ns.name), zap.String("module", name))
	return m, nil
}
