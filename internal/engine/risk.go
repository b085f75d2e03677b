package engine

import "sync"

// RiskState carries the process-lifetime feedback loop between optimization
// outcomes and the next search's aggressiveness. It is explicit state passed
// into the optimizer, not ambient globals, and guards itself so it stays
// correct if cycles ever run on more than one goroutine.
type RiskState struct {
	mu         sync.Mutex
	failed     int
	volatility float64
}

// FailedTrades returns the current consecutive-ish failure counter.
func (r *RiskState) FailedTrades() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

// Volatility returns the last observed volatility measure.
func (r *RiskState) Volatility() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.volatility
}

// ObserveVolatility records an externally computed volatility measure. The
// engine itself never produces one; this is the hook for a market-data
// feeder.
func (r *RiskState) ObserveVolatility(v float64) {
	r.mu.Lock()
	r.volatility = v
	r.mu.Unlock()
}

// recordOutcome moves the failure counter one step: up on a failed search,
// down toward zero on a profitable one.
func (r *RiskState) recordOutcome(success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if success {
		if r.failed > 0 {
			r.failed--
		}
		return
	}
	r.failed++
}
