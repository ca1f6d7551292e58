package trace

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCurrentTraceIsGoroutineLocal(t *testing.T) {
	reg := NewRegistry()
	mine := New("main")
	reg.SetCurrentTrace(mine)
	defer reg.ClearCurrent()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := reg.CurrentTrace(); got != nil {
				t.Errorf("other goroutine CurrentTrace() = %v, want nil", got.Name)
			}
			other := New("worker")
			reg.SetCurrentTrace(other)
			if got := reg.CurrentTrace(); got != other {
				t.Error("CurrentTrace() did not return the goroutine's own trace")
			}
			reg.SetCurrentTrace(nil)
		}()
	}
	wg.Wait()

	if got := reg.CurrentTrace(); got != mine {
		t.Error("main goroutine's current trace was disturbed")
	}
}

func TestRootSpanDisabledIsSticky(t *testing.T) {
	reg := NewRegistry()
	tr := NewTracer(reg, false)

	done := make(chan struct{})
	enabled := make(chan struct{})
	go reg.Run(func() {
		defer close(done)
		if _, started := tr.StartRoot("req"); started {
			t.Error("StartRoot started a trace while disabled")
		}
		if !reg.IsCurrentRootSpanDisabled() {
			t.Error("root not marked disabled")
		}

		<-enabled

		if !reg.IsCurrentRootSpanDisabled() {
			t.Error("global enable cleared the goroutine's root-disabled flag")
		}
		if _, started := tr.StartRoot("nested"); started {
			t.Error("StartRoot started a trace inside a disabled root")
		}
		if reg.CurrentTrace() != nil {
			t.Error("disabled root has a current trace")
		}

		tr.EndRoot()
		if reg.IsCurrentRootSpanDisabled() {
			t.Error("EndRoot did not clear the flag")
		}
		if _, started := tr.StartRoot("next"); !started {
			t.Error("next root not traced after enable")
		}
		tr.EndRoot()
	})

	tr.Enable()
	close(enabled)
	<-done

	if n := reg.Len(); n != 0 {
		t.Errorf("Len() = %d, want 0", n)
	}
}

func TestExplicitFlagSurvivesEnable(t *testing.T) {
	reg := NewRegistry()
	tr := NewTracer(reg, true)
	defer reg.ClearCurrent()

	reg.SetCurrentRootSpanDisabled(true)
	tr.Disable()
	tr.Enable()
	if !reg.IsCurrentRootSpanDisabled() {
		t.Fatal("flag lost after policy change")
	}
	reg.SetCurrentRootSpanDisabled(false)
	if reg.IsCurrentRootSpanDisabled() {
		t.Fatal("flag not cleared")
	}
}

func TestAddRemoveConcurrent(t *testing.T) {
	const workers = 16
	reg := NewRegistry()

	var stop atomic.Bool
	var maxSeen atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr := New("worker")
			for !stop.Load() {
				reg.AddTrace(tr)
				reg.RemoveTrace(tr)
			}
		}()
	}

	observer := make(chan struct{})
	go func() {
		defer close(observer)
		for !stop.Load() {
			n := int64(len(reg.Traces()))
			for {
				cur := maxSeen.Load()
				if n <= cur || maxSeen.CompareAndSwap(cur, n) {
					break
				}
			}
		}
	}()

	time.Sleep(50 * time.Millisecond)
	stop.Store(true)
	wg.Wait()
	<-observer

	if got := len(reg.Traces()); got != 0 {
		t.Errorf("len(Traces()) = %d after all removals, want 0", got)
	}
	if n := reg.Len(); n != 0 {
		t.Errorf("Len() = %d, want 0", n)
	}
	if m := maxSeen.Load(); m > workers {
		t.Errorf("observed %d active traces, want <= %d", m, workers)
	}
}

func TestRemoveFromOtherGoroutine(t *testing.T) {
	reg := NewRegistry()
	tr := New("async")
	reg.AddTrace(tr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		reg.RemoveTrace(tr)
	}()
	<-done

	if n := reg.Len(); n != 0 {
		t.Errorf("Len() = %d, want 0", n)
	}
	reg.RemoveTrace(tr)
	if n := reg.Len(); n != 0 {
		t.Errorf("Len() after double remove = %d, want 0", n)
	}
}

func TestAddTwiceCountsOnce(t *testing.T) {
	reg := NewRegistry()
	tr := New("dup")
	reg.AddTrace(tr)
	reg.AddTrace(tr)
	if n := reg.Len(); n != 1 {
		t.Errorf("Len() = %d, want 1", n)
	}
	if n := len(reg.Traces()); n != 1 {
		t.Errorf("len(Traces()) = %d, want 1", n)
	}
}

func TestTracesOrderedByStart(t *testing.T) {
	reg := NewRegistry()
	base := time.Now()

	late := &Trace{Name: "late", Start: base.Add(2 * time.Second)}
	early := &Trace{Name: "early", Start: base}
	tieA := &Trace{Name: "tie-a", Start: base.Add(time.Second)}
	tieB := &Trace{Name: "tie-b", Start: base.Add(time.Second)}

	reg.AddTrace(late)
	reg.AddTrace(tieA)
	reg.AddTrace(tieB)
	reg.AddTrace(early)

	got := reg.Traces()
	want := []string{"early", "tie-a", "tie-b", "late"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, tr := range got {
		if tr.Name != want[i] {
			t.Errorf("Traces()[%d] = %s, want %s", i, tr.Name, want[i])
		}
	}
}

func TestRunClearsOnPanic(t *testing.T) {
	reg := NewRegistry()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			_ = recover()
			if reg.CurrentTrace() != nil || reg.IsCurrentRootSpanDisabled() {
				t.Error("state leaked past a panicking Run")
			}
		}()
		reg.Run(func() {
			reg.SetCurrentTrace(New("job"))
			reg.SetCurrentRootSpanDisabled(true)
			panic("job failed")
		})
	}()
	<-done
}
