// Package metrics records operational counters for the grid service.
package metrics

import "time"

// Collector receives grid service metrics. All calls happen on the game
// loop goroutine except the scrape path inside concrete implementations.
type Collector interface {
	// SetTrackedObjects records how many objects a grid currently tracks.
	SetTrackedObjects(gridID uint32, n int)
	// IncZoneChanges counts notifications delivered for a grid.
	IncZoneChanges(gridID uint32)
	// IncInvalidZones counts positions that resolved outside a grid.
	IncInvalidZones(gridID uint32)
	// ObservePoll records the duration of one migration poll.
	ObservePoll(gridID uint32, d time.Duration)
	// SetEngineRunning mirrors a grid's migration engine state.
	SetEngineRunning(gridID uint32, running bool)
	// SetSessions records the number of connected sessions.
	SetSessions(n int)
	// IncPackets counts inbound packets by opcode.
	IncPackets(opcode byte)
	// IncPersistFailures counts failed persistence flushes by operation.
	IncPersistFailures(op string)
}
