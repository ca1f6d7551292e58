package trace

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"
)

// Span is a completed unit of work within a trace.
type Span struct {
	Start    time.Time
	Name     string
	Duration time.Duration
	// Depth is 0 for spans entered directly under the root.
	Depth int
}

type openSpan struct {
	start time.Time
	name  string
}

// Trace is one in-flight unit of end-to-end work.
type Trace struct {
	Start time.Time
	ID    string
	Name  string
	end   atomic.Int64 // unix nanos, 0 while active
	seq   atomic.Uint64
	open  []openSpan
	spans []Span
	mu    sync.Mutex
}

// New starts a trace named name at the current time.
func New(name string) *Trace {
	return &Trace{
		ID:    newID(),
		Name:  name,
		Start: time.Now(),
	}
}

func newID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Enter opens a span nested under the innermost open span.
func (t *Trace) Enter(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open = append(t.open, openSpan{start: time.Now(), name: name})
}

// Exit closes the innermost open span. It reports false when no span is open.
func (t *Trace) Exit() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.open)
	if n == 0 {
		return false
	}
	s := t.open[n-1]
	t.open = t.open[:n-1]
	t.spans = append(t.spans, Span{
		Name:     s.name,
		Start:    s.start,
		Duration: time.Since(s.start),
		Depth:    n - 1,
	})
	return true
}

// Spans returns the completed spans in completion order.
func (t *Trace) Spans() []Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Span, len(t.spans))
	copy(out, t.spans)
	return out
}

// OpenSpans returns the number of spans entered but not exited.
func (t *Trace) OpenSpans() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}

// End marks the trace complete, closing any spans still open.
// Only the first call has an effect.
func (t *Trace) End() {
	for t.Exit() {
	}
	t.end.CompareAndSwap(0, time.Now().UnixNano())
}

// Ended reports whether End has been called.
func (t *Trace) Ended() bool {
	return t.end.Load() != 0
}

// Duration returns the elapsed time of the trace, up to now while active.
func (t *Trace) Duration() time.Duration {
	if end := t.end.Load(); end != 0 {
		return time.Unix(0, end).Sub(t.Start)
	}
	return time.Since(t.Start)
}
