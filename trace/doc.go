// Package trace tracks live request traces.
//
// A Registry holds the set of active traces, shared by all goroutines, and
// two goroutine-local slots: the trace the goroutine is currently recording
// against and a root-disabled flag. A Tracer drives the lifecycle of root
// units of work against a Registry under a global enable policy.
//
// Goroutine-local state outlives the work that set it unless cleared.
// Long-lived workers should wrap each job in Registry.Run, or call
// ClearCurrent, so one job's state never leaks into the next.
package trace
