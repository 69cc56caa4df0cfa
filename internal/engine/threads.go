package engine

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
)

// reservedCPUs are left free when the thread count is resolved automatically.
const reservedCPUs = 3

// ResolveThreads turns the configured thread count into the value forwarded
// to the engine, using the node's logical CPU count.
func ResolveThreads(requested int) int {
	available, err := cpu.Counts(true)
	if err != nil || available < 1 {
		available = runtime.NumCPU()
	}
	return ClampThreads(requested, available)
}

// ClampThreads resolves requested against available CPUs: zero selects
// available minus the reserved CPUs, and requests above available are clamped.
func ClampThreads(requested, available int) int {
	if available < 1 {
		available = 1
	}
	if requested <= 0 {
		n := available - reservedCPUs
		if n < 1 {
			n = 1
		}
		return n
	}
	if requested > available {
		return available
	}
	return requested
}
