// Package weave provides transformers for the isolated loader.
//
// Matching is deliberately simple: a Matcher looks at the internal
// (slash-separated) module name. Richer rule engines plug in as their own
// loader.Transformer.
package weave

import (
	"context"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/wippyai/wasm-isolate/internal/wasmbin"
	"github.com/wippyai/wasm-isolate/loader"
	"github.com/wippyai/wasm-isolate/module"
)

// DefaultSection is the custom section name Marker writes when none is set.
const DefaultSection = "isolate.woven"

// Matcher selects modules by internal name.
type Matcher func(internalName string) bool

// SimpleNames matches modules whose last name element is one of names.
func SimpleNames(names ...string) Matcher {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(internalName string) bool {
		return set[path.Base(internalName)]
	}
}

// Prefixes matches modules whose dotted name starts with one of prefixes.
func Prefixes(prefixes ...string) Matcher {
	internal := make([]string, len(prefixes))
	for i, p := range prefixes {
		internal[i] = module.InternalName(p)
	}
	return func(internalName string) bool {
		for _, p := range internal {
			if strings.HasPrefix(internalName, p) {
				return true
			}
		}
		return false
	}
}

// Any matches modules matched by any of ms. Nil matchers are skipped.
func Any(ms ...Matcher) Matcher {
	return func(internalName string) bool {
		for _, m := range ms {
			if m != nil && m(internalName) {
				return true
			}
		}
		return false
	}
}

// Marker appends a custom section to every matching module. The payload is
// the last content of the transformed binary.
type Marker struct {
	Match   Matcher
	Section string
	Payload []byte
}

// Transform implements loader.Transformer
func (m *Marker) Transform(_ context.Context, code []byte, internalName string, _ any, _ loader.Definer) ([]byte, error) {
	if m.Match != nil && !m.Match(internalName) {
		return nil, nil
	}
	if err := wasmbin.Check(code); err != nil {
		return nil, err
	}
	section := m.Section
	if section == "" {
		section = DefaultSection
	}
	return wasmbin.AppendCustom(code, section, m.Payload), nil
}

// Chain applies transformers in order, each to the previous output.
// It returns nil when no transformer changed the binary.
type Chain []loader.Transformer

// Transform implements loader.Transformer
func (c Chain) Transform(ctx context.Context, code []byte, internalName string, hint any, definer loader.Definer) ([]byte, error) {
	var changed bool
	for _, t := range c {
		out, err := t.Transform(ctx, code, internalName, hint, definer)
		if err != nil {
			return nil, err
		}
		if out != nil {
			code = out
			changed = true
		}
	}
	if !changed {
		return nil, nil
	}
	return code, nil
}

// Counting wraps a transformer and counts invocations per module.
type Counting struct {
	T     loader.Transformer
	calls sync.Map // string -> *atomic.Int64
	total atomic.Int64
}

// Transform implements loader.Transformer
func (c *Counting) Transform(ctx context.Context, code []byte, internalName string, hint any, definer loader.Definer) ([]byte, error) {
	v, _ := c.calls.LoadOrStore(internalName, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
	c.total.Add(1)
	if c.T == nil {
		return nil, nil
	}
	return c.T.Transform(ctx, code, internalName, hint, definer)
}

// Calls returns how often the module with the given internal name was
// transformed.
func (c *Counting) Calls(internalName string) int {
	v, ok := c.calls.Load(internalName)
	if !ok {
		return 0
	}
	return int(v.(*atomic.Int64).Load())
}

// Total returns the number of Transform calls.
func (c *Counting) Total() int {
	return int(c.total.Load())
}
