package trace

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Tracer drives trace lifecycle against a Registry under a global enable
// policy.
//
// The policy is sampled when a root starts. A root that starts while tracing
// is disabled is marked disabled on its goroutine and stays untraced until it
// ends, even if tracing is enabled in the meantime.
type Tracer struct {
	reg     *Registry
	enabled atomic.Bool
}

// NewTracer returns a tracer recording into reg.
func NewTracer(reg *Registry, enabled bool) *Tracer {
	tr := &Tracer{reg: reg}
	tr.enabled.Store(enabled)
	return tr
}

// Registry returns the registry the tracer records into.
func (tr *Tracer) Registry() *Registry {
	return tr.reg
}

// Enable turns tracing on for roots started from now on.
func (tr *Tracer) Enable() {
	tr.enabled.Store(true)
}

// Disable turns tracing off for roots started from now on.
func (tr *Tracer) Disable() {
	tr.enabled.Store(false)
}

// Enabled reports the global policy.
func (tr *Tracer) Enabled() bool {
	return tr.enabled.Load()
}

// StartRoot begins a root unit of work on the calling goroutine.
//
// It returns the new trace and true when a trace was started. It returns
// false when the goroutine's root is disabled, when the policy is off (which
// disables the root), or when the goroutine already has a current trace; in
// the last case the existing trace is returned. Callers call EndRoot only
// when StartRoot returned true or disabled the root.
func (tr *Tracer) StartRoot(name string) (*Trace, bool) {
	if tr.reg.IsCurrentRootSpanDisabled() {
		return nil, false
	}
	if cur := tr.reg.CurrentTrace(); cur != nil {
		return cur, false
	}
	if !tr.enabled.Load() {
		tr.reg.SetCurrentRootSpanDisabled(true)
		Logger().Debug("root span disabled", zap.String("name", name))
		return nil, false
	}
	t := New(name)
	tr.reg.AddTrace(t)
	tr.reg.SetCurrentTrace(t)
	return t, true
}

// EndRoot completes the goroutine's root unit of work: the current trace is
// ended and removed, and the root-disabled flag is cleared.
func (tr *Tracer) EndRoot() {
	if t := tr.reg.CurrentTrace(); t != nil {
		t.End()
		tr.reg.RemoveTrace(t)
	}
	tr.reg.ClearCurrent()
}

// Span enters a span on the goroutine's current trace and returns the
// function that exits it. Without a current trace both are no-ops.
func (tr *Tracer) Span(name string) func() {
	t := tr.reg.CurrentTrace()
	if t == nil {
		return func() {}
	}
	t.Enter(name)
	return func() { t.Exit() }
}

// Go runs fn on a new goroutine as a root unit of work named name.
// The goroutine's local state is cleared when fn returns.
func (tr *Tracer) Go(name string, fn func(t *Trace)) {
	go tr.reg.Run(func() {
		t, started := tr.StartRoot(name)
		defer func() {
			if started || tr.reg.IsCurrentRootSpanDisabled() {
				tr.EndRoot()
			}
		}()
		fn(t)
	})
}
