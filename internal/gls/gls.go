// Package gls provides goroutine-local storage.
//
// A Local holds at most one value per goroutine. Entries are keyed by
// goroutine id and removed when the owning goroutine stores the zero value
// or calls Delete, so goroutines that clean up leave nothing behind.
// Goroutine ids are never reused by the Go runtime; a goroutine that exits
// without cleaning up leaks its entry but never leaks its state into another
// goroutine.
package gls

import (
	"runtime"
	"sync"
)

// Local is a goroutine-local slot holding a value of type T.
// The zero value is ready to use.
type Local[T comparable] struct {
	m sync.Map // int64 -> T
}

// Get returns the calling goroutine's value, or the zero value.
func (l *Local[T]) Get() T {
	return l.GetID(ID())
}

// GetID returns the value of goroutine id. Callers that touch a slot
// several times pass the id from one ID call.
func (l *Local[T]) GetID(id int64) T {
	v, ok := l.m.Load(id)
	if !ok {
		var zero T
		return zero
	}
	return v.(T)
}

// Set stores v for the calling goroutine. Storing the zero value deletes
// the entry.
func (l *Local[T]) Set(v T) {
	l.SetID(ID(), v)
}

// SetID stores v for goroutine id.
func (l *Local[T]) SetID(id int64, v T) {
	var zero T
	if v == zero {
		l.m.Delete(id)
		return
	}
	l.m.Store(id, v)
}

// Delete removes the calling goroutine's entry.
func (l *Local[T]) Delete() {
	l.m.Delete(ID())
}

// DeleteID removes the entry of goroutine id.
func (l *Local[T]) DeleteID(id int64) {
	l.m.Delete(id)
}

// Len returns the number of goroutines holding a value.
func (l *Local[T]) Len() int {
	n := 0
	l.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// ID returns the calling goroutine's id.
//
// The id is parsed from the first line of runtime.Stack output,
// "goroutine 123 [running]:". That costs on the order of a microsecond,
// so hot paths call ID once and use the ...ID methods.
func ID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseID(buf[:n])
}

func parseID(buf []byte) int64 {
	const prefix = "goroutine "
	if len(buf) < len(prefix) || string(buf[:len(prefix)]) != prefix {
		return 0
	}
	var id int64
	for _, c := range buf[len(prefix):] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + int64(c-'0')
	}
	return id
}
