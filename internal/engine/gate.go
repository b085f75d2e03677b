package engine

import "sync/atomic"

// Gate is the process-wide single-flight admission control. Every watched
// (pair, venue-pair) shares one gate, so a burst of swap events collapses to
// at most one evaluation; events arriving while occupied are dropped, never
// queued.
type Gate struct {
	busy atomic.Bool
}

// TryAdmit marks the gate occupied and returns true iff it was free.
func (g *Gate) TryAdmit() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Release frees the gate.
func (g *Gate) Release() {
	g.busy.Store(false)
}

// Occupied reports whether an evaluation is in flight.
func (g *Gate) Occupied() bool {
	return g.busy.Load()
}
