// Package module defines the identity of modules shared by every namespace.
//
// A Module is the unit a namespace resolves a name to. Defined modules carry
// the bytes they were compiled from and the compiled form. Capabilities are
// bodiless modules describing a set of function signatures; they are the
// bridge types whose identity is shared between an isolated namespace and
// its host. Intrinsic modules are platform-owned host modules.
package module

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero"
	"go.bytecodealliance.org/wit"
)

// Kind distinguishes how a module came to exist.
type Kind uint8

const (
	KindDefined Kind = iota
	KindCapability
	KindIntrinsic
)

func (k Kind) String() string {
	switch k {
	case KindDefined:
		return "defined"
	case KindCapability:
		return "capability"
	case KindIntrinsic:
		return "intrinsic"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Module is a named unit of code materialized into a namespace.
// Modules are compared by identity: a namespace hands out one *Module per name.
type Module struct {
	Compiled wazero.CompiledModule
	Name     string
	// Owner names the namespace that defined the module.
	Owner string
	Bytes []byte
	Funcs []Func
	Kind  Kind
}

// Func is a capability function signature expressed in WIT types.
type Func struct {
	Name    string
	Params  []wit.Type
	Results []wit.Type
}

// NewCapability returns a bridge capability with the given functions.
func NewCapability(name string, funcs ...Func) *Module {
	return &Module{
		Name:  name,
		Kind:  KindCapability,
		Funcs: funcs,
	}
}

// String implements fmt.Stringer
func (m *Module) String() string {
	if m.Owner == "" {
		return m.Kind.String() + " " + m.Name
	}
	return m.Kind.String() + " " + m.Name + " (" + m.Owner + ")"
}

// InternalName converts a dotted qualified name to its slash form:
// "acme.app.Sample" -> "acme/app/Sample".
func InternalName(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}

// PackageName returns the dotted prefix of a qualified name, or "" for a
// name without one.
func PackageName(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return ""
	}
	return name[:idx]
}
