package manager

import (
	"sync"
	"sync/atomic"
	"testing"

	"pgregory.net/rapid"
)

func TestGate_RejectsWhenFull(t *testing.T) {
	g := NewGate(2)
	if !g.Acquire() || !g.Acquire() {
		t.Fatalf("expected first two acquires to succeed")
	}
	if g.Acquire() {
		t.Fatalf("third acquire should be rejected")
	}
	st := g.Status()
	if st.Active != 2 || st.Capacity != 2 || st.Available {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.TotalAdmitted != 2 || st.TotalRejected != 1 {
		t.Fatalf("counters: %+v", st)
	}
	g.Release()
	if !g.Acquire() {
		t.Fatalf("acquire after release should succeed")
	}
}

func TestGate_ReleaseFloorsAtZero(t *testing.T) {
	g := NewGate(1)
	g.Release()
	g.Release()
	if st := g.Status(); st.Active != 0 || !st.Available {
		t.Fatalf("unexpected status: %+v", st)
	}
	if !g.Acquire() {
		t.Fatalf("spurious releases must not add capacity beyond the configured one")
	}
	if g.Acquire() {
		t.Fatalf("capacity exceeded after spurious releases")
	}
}

func TestGate_CapacityClamped(t *testing.T) {
	if got := NewGate(0).Status().Capacity; got != 1 {
		t.Fatalf("capacity=%d", got)
	}
}

func TestLease_ReleaseOnce(t *testing.T) {
	g := NewGate(2)
	a, ok := g.Admit()
	if !ok || a.ID == "" {
		t.Fatalf("admit failed: %+v", a)
	}
	b, _ := g.Admit()
	if a.ID == b.ID {
		t.Fatalf("lease ids must differ")
	}
	if !a.Release() {
		t.Fatalf("first release should report true")
	}
	if a.Release() {
		t.Fatalf("second release should be a no-op")
	}
	if a.Held() || !b.Held() {
		t.Fatalf("held flags wrong")
	}
	if st := g.Status(); st.Active != 1 {
		t.Fatalf("double release leaked a slot: %+v", st)
	}
}

func TestGate_ConcurrentAcquire(t *testing.T) {
	g := NewGate(5)
	var wg sync.WaitGroup
	var won atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Acquire() {
				won.Add(1)
			}
		}()
	}
	wg.Wait()
	if won.Load() != 5 {
		t.Fatalf("expected exactly 5 winners, got %d", won.Load())
	}
	st := g.Status()
	if st.TotalRejected != 45 {
		t.Fatalf("rejected=%d", st.TotalRejected)
	}
}

// TestGate_Invariants drives random acquire/release sequences against a
// simple model of the gate.
func TestGate_Invariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 8).Draw(t, "capacity")
		ops := rapid.SliceOfN(rapid.Bool(), 0, 200).Draw(t, "ops")
		g := NewGate(capacity)
		active := 0
		for _, acquire := range ops {
			if acquire {
				got := g.Acquire()
				want := active < capacity
				if got != want {
					t.Fatalf("acquire with active=%d capacity=%d: got %v", active, capacity, got)
				}
				if got {
					active++
				}
			} else {
				g.Release()
				if active > 0 {
					active--
				}
			}
			st := g.Status()
			if st.Active != active {
				t.Fatalf("active=%d want %d", st.Active, active)
			}
			if st.Active < 0 || st.Active > st.Capacity {
				t.Fatalf("invariant broken: %+v", st)
			}
			if st.Available != (st.Active < st.Capacity) {
				t.Fatalf("available flag inconsistent: %+v", st)
			}
		}
	})
}
