package pool

import "testing"

func TestRoundRobinCycles(t *testing.T) {
	p := NewRoundRobin()
	got := []int{p.Select(3, "", nil), p.Select(3, "", nil), p.Select(3, "", nil), p.Select(3, "", nil)}
	want := []int{0, 1, 2, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestLeastLoadedPicksMinimum(t *testing.T) {
	p := NewLeastLoaded()
	load := map[int]int{0: 5, 1: 0, 2: 3}
	got := p.Select(3, "", func(i int) int { return load[i] })
	if got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
}

func TestLeastLoadedBreaksTiesByRoundRobin(t *testing.T) {
	p := NewLeastLoaded()
	load := func(int) int { return 0 }
	first := p.Select(3, "", load)
	second := p.Select(3, "", load)
	if first == second {
		t.Fatalf("expected a tie to rotate, got %d twice", first)
	}
}

func TestAffinityIsDeterministic(t *testing.T) {
	p := NewAffinity()
	a := p.Select(4, "user-42", nil)
	b := p.Select(4, "user-42", nil)
	if a != b {
		t.Fatalf("affinity for the same key must be stable: got %d then %d", a, b)
	}
	if a < 0 || a >= 4 {
		t.Fatalf("index %d out of range [0,4)", a)
	}
}
