package loader

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-isolate/errors"
	"github.com/wippyai/wasm-isolate/module"
)

// Instance is an instantiated module viewed through a capability.
type Instance struct {
	api.Module
	Impl       *module.Module
	Capability *module.Module
}

// Call invokes fn with raw core arguments. Capabilities with functions
// restrict fn to those functions.
func (i *Instance) Call(ctx context.Context, fn string, args ...uint64) ([]uint64, error) {
	if len(i.Capability.Funcs) > 0 && !i.declares(fn) {
		return nil, errors.New(errors.PhaseBridge, errors.KindNotFound).
			Module(i.Capability.Name).
			Detail("capability has no function %q", fn).
			Build()
	}
	f := i.ExportedFunction(fn)
	if f == nil {
		return nil, errors.New(errors.PhaseBridge, errors.KindNotFound).
			Module(i.Impl.Name).
			Detail("no export %q", fn).
			Build()
	}
	return f.Call(ctx, args...)
}

func (i *Instance) declares(fn string) bool {
	for _, f := range i.Capability.Funcs {
		if f.Name == fn {
			return true
		}
	}
	return false
}

// Instantiate resolves impl through this loader, instantiates it and returns
// it as capability.
//
// capability must be a host intrinsic or one of the loader's bridges;
// otherwise an errors.ErrIllegalBridge error is returned before anything is
// loaded. Imports of impl are linked first: intrinsics are installed into the
// loader's runtime and isolated modules are instantiated under their name,
// each once.
func (l *Isolated) Instantiate(ctx context.Context, impl string, capability *module.Module) (*Instance, error) {
	if capability == nil {
		return nil, errors.InvalidInput(errors.PhaseBridge, "nil capability")
	}
	if err := l.validateBridgeable(capability.Name); err != nil {
		return nil, err
	}

	m, err := l.Resolve(ctx, impl)
	if err != nil {
		return nil, err
	}
	if m.Compiled == nil {
		return nil, errors.Unsatisfied(impl, capability.Name, fmt.Errorf("%s has no code", m))
	}
	if m.Owner != l.name {
		return nil, errors.Unsatisfied(impl, capability.Name, fmt.Errorf("%s is not isolated in %s", m, l.name))
	}
	if capability.Kind == module.KindCapability {
		if err := capability.Satisfies(m.Compiled.ExportedFunctions()); err != nil {
			return nil, errors.Unsatisfied(impl, capability.Name, err)
		}
	}

	l.linkMu.Lock()
	err = l.link(ctx, m, map[string]bool{m.Name: true})
	l.linkMu.Unlock()
	if err != nil {
		return nil, err
	}

	mod, err := l.runtime.InstantiateModule(ctx, m.Compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, errors.Instantiation(impl, err)
	}
	Logger().Debug("instantiated", zap.String("loader", l.name), zap.String("module", impl),
		zap.String("capability", capability.Name))
	return &Instance{Module: mod, Impl: m, Capability: capability}, nil
}

// link makes every module m imports available in the loader's runtime.
// linkMu must be held.
func (l *Isolated) link(ctx context.Context, m *module.Module, visiting map[string]bool) error {
	for _, name := range importedModules(m.Compiled) {
		if l.runtime.Module(name) != nil {
			continue
		}
		if visiting[name] {
			return errors.New(errors.PhaseLink, errors.KindInstantiation).
				Module(m.Name).
				Detail("import cycle through %s", name).
				Build()
		}

		if l.parent.IsIntrinsic(name) {
			if err := l.parent.Install(ctx, l.runtime, name); err != nil {
				return err
			}
			continue
		}

		dep, err := l.Resolve(ctx, name)
		if err != nil {
			return errors.Instantiation(m.Name, err)
		}
		if dep.Compiled == nil || dep.Owner != l.name {
			return errors.Instantiation(m.Name, fmt.Errorf("import %s resolves to %s", name, dep))
		}

		visiting[name] = true
		err = l.link(ctx, dep, visiting)
		delete(visiting, name)
		if err != nil {
			return err
		}
		if _, err := l.runtime.InstantiateModule(ctx, dep.Compiled, wazero.NewModuleConfig().WithName(name)); err != nil {
			return errors.Instantiation(name, err)
		}
	}
	return nil
}

func importedModules(c wazero.CompiledModule) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, def := range c.ImportedFunctions() {
		name, _, _ := def.Import()
		add(name)
	}
	for _, def := range c.ImportedMemories() {
		name, _, _ := def.Import()
		add(name)
	}
	return out
}
