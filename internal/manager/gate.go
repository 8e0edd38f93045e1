package manager

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Gate bounds how many generations run at once. When every slot is taken it
// rejects immediately instead of queueing.
type Gate struct {
	mu       sync.Mutex
	capacity int
	active   int
	admitted uint64
	rejected uint64
}

// GateSnapshot is a consistent view of the gate taken under its lock.
type GateSnapshot struct {
	Active        int
	Capacity      int
	TotalAdmitted uint64
	TotalRejected uint64
	Available     bool
}

// NewGate returns a gate with capacity slots. Capacities below one are
// raised to one.
func NewGate(capacity int) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	gateCapacity.Set(float64(capacity))
	gateActive.Set(0)
	return &Gate{capacity: capacity}
}

// Acquire takes a slot if one is free. It never blocks.
func (g *Gate) Acquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active >= g.capacity {
		g.rejected++
		gateRejected.Inc()
		return false
	}
	g.active++
	g.admitted++
	gateAdmitted.Inc()
	gateActive.Set(float64(g.active))
	return true
}

// Release returns a slot. Releasing with no slot held is a no-op.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active > 0 {
		g.active--
	}
	gateActive.Set(float64(g.active))
}

// Status reports the current occupancy.
func (g *Gate) Status() GateSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GateSnapshot{
		Active:        g.active,
		Capacity:      g.capacity,
		TotalAdmitted: g.admitted,
		TotalRejected: g.rejected,
		Available:     g.active < g.capacity,
	}
}

// Admit is Acquire wrapped in a Lease whose Release is idempotent, so a
// request holding a lease gives its slot back exactly once.
func (g *Gate) Admit() (*Lease, bool) {
	if !g.Acquire() {
		return nil, false
	}
	return &Lease{ID: uuid.NewString(), AdmittedAt: time.Now(), gate: g}, true
}

// Lease is one held slot.
type Lease struct {
	ID         string
	AdmittedAt time.Time

	gate     *Gate
	released atomic.Bool
}

// Release gives the slot back. Only the first call has an effect; it reports
// whether this call was the one that released.
func (l *Lease) Release() bool {
	if !l.released.CompareAndSwap(false, true) {
		return false
	}
	l.gate.Release()
	return true
}

// Held reports whether the slot is still held.
func (l *Lease) Held() bool { return !l.released.Load() }
