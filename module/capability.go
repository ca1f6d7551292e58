package module

import (
	"fmt"
	"slices"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
)

// CoreSignature flattens the function's WIT signature to core value types.
// Only primitive WIT types are accepted.
func (f Func) CoreSignature() (params, results []api.ValueType, err error) {
	params, err = flatten(f.Params)
	if err != nil {
		return nil, nil, fmt.Errorf("%s params: %w", f.Name, err)
	}
	results, err = flatten(f.Results)
	if err != nil {
		return nil, nil, fmt.Errorf("%s results: %w", f.Name, err)
	}
	return params, results, nil
}

func flatten(types []wit.Type) ([]api.ValueType, error) {
	out := make([]api.ValueType, 0, len(types))
	for _, t := range types {
		vt, ok := coreType(t)
		if !ok {
			return nil, fmt.Errorf("type %T has no single core representation", t)
		}
		out = append(out, vt)
	}
	return out, nil
}

func coreType(t wit.Type) (api.ValueType, bool) {
	switch t.(type) {
	case wit.Bool, wit.Char, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32:
		return api.ValueTypeI32, true
	case wit.U64, wit.S64:
		return api.ValueTypeI64, true
	case wit.F32:
		return api.ValueTypeF32, true
	case wit.F64:
		return api.ValueTypeF64, true
	default:
		return 0, false
	}
}

// Satisfies reports whether exports provide every function of capability m
// with a matching core signature.
func (m *Module) Satisfies(exports map[string]api.FunctionDefinition) error {
	if m.Kind != KindCapability {
		return fmt.Errorf("%s is not a capability", m.Name)
	}
	for _, fn := range m.Funcs {
		def, ok := exports[fn.Name]
		if !ok {
			return fmt.Errorf("missing export %q", fn.Name)
		}
		params, results, err := fn.CoreSignature()
		if err != nil {
			return err
		}
		if !slices.Equal(def.ParamTypes(), params) || !slices.Equal(def.ResultTypes(), results) {
			return fmt.Errorf("export %q has signature %v -> %v, want %v -> %v",
				fn.Name, names(def.ParamTypes()), names(def.ResultTypes()), names(params), names(results))
		}
	}
	return nil
}

func names(types []api.ValueType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = api.ValueTypeName(t)
	}
	return out
}
