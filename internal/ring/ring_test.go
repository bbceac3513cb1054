package ring_test

import (
	"testing"

	"github.com/xraph/paysim/internal/ring"
)

func contents(r *ring.Ring[int]) []int {
	out := make([]int, r.Len())
	for i := range out {
		out[i] = r.At(i)
	}
	return out
}

func equal(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestUnbounded(t *testing.T) {
	r := ring.New[int](0)
	for i := range 100 {
		if _, evicted := r.Push(i); evicted {
			t.Fatalf("unbounded ring evicted at %d", i)
		}
	}
	if r.Len() != 100 || r.At(0) != 0 || r.At(99) != 99 {
		t.Fatalf("unexpected contents len=%d", r.Len())
	}
}

func TestBoundedEvictsOldest(t *testing.T) {
	r := ring.New[int](3)
	for i := 1; i <= 3; i++ {
		r.Push(i)
	}
	old, evicted := r.Push(4)
	if !evicted || old != 1 {
		t.Fatalf("Push(4) = %d, %v; want 1, true", old, evicted)
	}
	r.Push(5)

	if got := contents(r); !equal(got, []int{3, 4, 5}) {
		t.Fatalf("contents = %v, want [3 4 5]", got)
	}

	r.Set(0, 30)
	if r.At(0) != 30 {
		t.Errorf("Set did not replace oldest")
	}

	r.Reset()
	if r.Len() != 0 {
		t.Errorf("len after reset = %d", r.Len())
	}
	r.Push(7)
	if got := contents(r); !equal(got, []int{7}) {
		t.Errorf("contents after reset = %v", got)
	}
}

func TestAtOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	ring.New[int](2).At(0)
}
