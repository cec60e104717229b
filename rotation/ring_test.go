package rotation

import (
	"sync"
	"testing"
)

func TestRingNext(t *testing.T) {
	ring := New("a", "b", "c")

	want := []string{"a", "b", "c", "a", "b"}
	for i, w := range want {
		if got := ring.Next(); got != w {
			t.Errorf("Next() #%d = %q, want %q", i+1, got, w)
		}
	}
}

func TestRingCycle(t *testing.T) {
	ring := New(1, 2, 3)

	first := ring.Cycle()
	if len(first) != 3 || first[0] != 1 || first[1] != 2 || first[2] != 3 {
		t.Errorf("first Cycle() = %v, want [1 2 3]", first)
	}

	second := ring.Cycle()
	if len(second) != 3 || second[0] != 2 || second[1] != 3 || second[2] != 1 {
		t.Errorf("second Cycle() = %v, want [2 3 1]", second)
	}
}

func TestRingConcurrentNext(t *testing.T) {
	ring := New("x", "y")
	counts := make(map[string]int)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := ring.Next()
			mu.Lock()
			counts[v]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if counts["x"] != 50 || counts["y"] != 50 {
		t.Errorf("counts = %v, want 50 each", counts)
	}
}

func TestNewEmptyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for empty ring")
		}
	}()
	New[string]()
}
