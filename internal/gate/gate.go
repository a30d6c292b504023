// Package gate provides a process-wide, non-blocking mutual-exclusion lock
// for order placement: while one chain is executing its three legs, every
// other chain's attempt to execute is rejected outright rather than queued.
package gate

import "sync/atomic"

// ExecutionGate replaces a module-level boolean with a narrow, goroutine-safe
// try-lock. Only one ChainExecutor may hold it at a time; everyone else gets
// a false back from TryAcquire and moves on to its next poll cycle instead of
// blocking behind the active execution.
type ExecutionGate struct {
	held atomic.Bool
}

// New returns an unheld gate.
func New() *ExecutionGate {
	return &ExecutionGate{}
}

// TryAcquire attempts to take the gate, returning true on success. Never
// blocks.
func (g *ExecutionGate) TryAcquire() bool {
	return g.held.CompareAndSwap(false, true)
}

// Release gives up the gate. Calling Release without a matching successful
// TryAcquire is a caller bug but is harmless here: it simply leaves the gate
// open for the next acquirer.
func (g *ExecutionGate) Release() {
	g.held.Store(false)
}

// Held reports whether the gate is currently taken, for metrics/logging.
func (g *ExecutionGate) Held() bool {
	return g.held.Load()
}
