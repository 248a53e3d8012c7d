package loadbalance

import "testing"

func TestRoundRobinCyclesInOrder(t *testing.T) {
	r := New()
	servers := []string{"a", "b", "c"}
	var got []string
	for i := 0; i < 7; i++ {
		s, ok := r.Next("p1", servers)
		if !ok {
			t.Fatal("expected a server")
		}
		got = append(got, s)
	}
	want := []string{"a", "b", "c", "a", "b", "c", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestNextOnEmptyServersReturnsFalse(t *testing.T) {
	r := New()
	if _, ok := r.Next("p1", nil); ok {
		t.Fatal("expected false for empty server list")
	}
}

func TestCountersAreIndependentPerProcessor(t *testing.T) {
	r := New()
	r.Next("p1", []string{"a", "b"})
	s, _ := r.Next("p2", []string{"x", "y"})
	if s != "x" {
		t.Fatalf("expected independent rotation for p2, got %q", s)
	}
}

func TestResetRestartsRotation(t *testing.T) {
	r := New()
	r.Next("p1", []string{"a", "b"})
	r.Reset("p1")
	s, _ := r.Next("p1", []string{"a", "b"})
	if s != "a" {
		t.Fatalf("expected rotation to restart at 'a', got %q", s)
	}
}
