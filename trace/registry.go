package trace

import (
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-isolate/internal/gls"
)

// Registry tracks active traces and, per goroutine, the trace the goroutine
// is recording against.
//
// The active set is shared and safe for concurrent use without external
// locking. The current trace and the root-disabled flag are goroutine-local:
// each goroutine sees only its own values, and nothing synchronizes them
// across goroutines.
type Registry struct {
	traces       sync.Map // *Trace -> struct{}
	current      gls.Local[*Trace]
	rootDisabled gls.Local[bool]
	seq          atomic.Uint64
	size         atomic.Int64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// CurrentTrace returns the calling goroutine's current trace, or nil.
func (r *Registry) CurrentTrace() *Trace {
	return r.current.Get()
}

// SetCurrentTrace replaces the calling goroutine's current trace.
// There is no history: callers that nest must restore the previous value.
func (r *Registry) SetCurrentTrace(t *Trace) {
	r.current.Set(t)
}

// IsCurrentRootSpanDisabled reports whether the calling goroutine's current
// root unit of work has tracing disabled.
func (r *Registry) IsCurrentRootSpanDisabled() bool {
	return r.rootDisabled.Get()
}

// SetCurrentRootSpanDisabled sets the calling goroutine's root-disabled flag.
// The flag is independent of any global policy and stays set until the
// goroutine clears it.
func (r *Registry) SetCurrentRootSpanDisabled(disabled bool) {
	r.rootDisabled.Set(disabled)
}

// ClearCurrent drops the calling goroutine's current trace and
// root-disabled flag. Pooled workers call it before taking the next job.
func (r *Registry) ClearCurrent() {
	r.current.Delete()
	r.rootDisabled.Delete()
}

// Run calls fn and clears the calling goroutine's local state afterwards,
// also when fn panics.
func (r *Registry) Run(fn func()) {
	defer r.ClearCurrent()
	fn()
}

// AddTrace adds t to the active set. Adding a trace already present is a
// no-op.
func (r *Registry) AddTrace(t *Trace) {
	t.seq.CompareAndSwap(0, r.seq.Add(1))
	if _, loaded := r.traces.LoadOrStore(t, struct{}{}); !loaded {
		r.size.Add(1)
		Logger().Debug("trace added", zap.String("id", t.ID), zap.String("name", t.Name))
	}
}

// RemoveTrace removes t from the active set. Any goroutine may remove any
// trace; removing a trace that is not present is a no-op.
func (r *Registry) RemoveTrace(t *Trace) {
	if _, loaded := r.traces.LoadAndDelete(t); loaded {
		r.size.Add(-1)
		Logger().Debug("trace removed", zap.String("id", t.ID), zap.Duration("duration", t.Duration()))
	}
}

// Len returns the number of active traces.
func (r *Registry) Len() int {
	return int(r.size.Load())
}

// Traces returns a snapshot of the active traces ordered by start time.
// Traces with equal start times keep the order they were added in.
func (r *Registry) Traces() []*Trace {
	var out []*Trace
	r.traces.Range(func(k, _ any) bool {
		out = append(out, k.(*Trace))
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].seq.Load() < out[j].seq.Load()
	})
	return out
}
