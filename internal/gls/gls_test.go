package gls

import (
	"sync"
	"testing"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"goroutine 1 [running]:\n", 1},
		{"goroutine 12345 [running]:", 12345},
		{"goroutine 7", 7},
		{"gorout", 0},
		{"thread 5 [running]", 0},
		{"", 0},
	}

	for _, tt := range tests {
		if got := parseID([]byte(tt.input)); got != tt.want {
			t.Errorf("parseID(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestIDDistinctAcrossGoroutines(t *testing.T) {
	main := ID()
	if main <= 0 {
		t.Fatalf("ID() = %d, want > 0", main)
	}
	if again := ID(); again != main {
		t.Errorf("ID() not stable: %d then %d", main, again)
	}

	ch := make(chan int64)
	go func() { ch <- ID() }()
	if other := <-ch; other == main {
		t.Errorf("child goroutine ID = %d, same as parent", other)
	}
}

func TestLocalIsolation(t *testing.T) {
	var l Local[string]
	l.Set("main")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := l.Get(); got != "" {
				t.Errorf("fresh goroutine Get() = %q, want empty", got)
			}
			l.Set("worker")
			if got := l.Get(); got != "worker" {
				t.Errorf("Get() = %q, want worker", got)
			}
			l.Delete()
		}()
	}
	wg.Wait()

	if got := l.Get(); got != "main" {
		t.Errorf("main Get() = %q, want main", got)
	}
	if n := l.Len(); n != 1 {
		t.Errorf("Len() = %d, want 1", n)
	}
}

func TestLocalZeroDeletes(t *testing.T) {
	var l Local[bool]
	l.Set(true)
	if !l.Get() {
		t.Fatal("Get() = false after Set(true)")
	}
	l.Set(false)
	if n := l.Len(); n != 0 {
		t.Errorf("Len() = %d after Set(false), want 0", n)
	}
}

func TestLocalByID(t *testing.T) {
	var l Local[int]
	id := ID()

	l.SetID(id, 7)
	if got := l.Get(); got != 7 {
		t.Errorf("Get() = %d, want 7", got)
	}
	if got := l.GetID(id + 1); got != 0 {
		t.Errorf("GetID(other) = %d, want 0", got)
	}

	l.Set(9)
	if got := l.GetID(id); got != 9 {
		t.Errorf("GetID() = %d, want 9", got)
	}
	l.DeleteID(id)
	if n := l.Len(); n != 0 {
		t.Errorf("Len() = %d after DeleteID, want 0", n)
	}
}
