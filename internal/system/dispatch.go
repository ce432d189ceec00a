package system

import (
	"time"

	"github.com/l1jgo/cartgrid/internal/core/event"
	coresys "github.com/l1jgo/cartgrid/internal/core/system"
)

// EventDispatchSystem rotates the bus and delivers last tick's events.
// Phase 1 (PreUpdate).
type EventDispatchSystem struct {
	bus *event.Bus
}

func NewEventDispatchSystem(bus *event.Bus) *EventDispatchSystem {
	return &EventDispatchSystem{bus: bus}
}

func (s *EventDispatchSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *EventDispatchSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}

// Drain delivers events still waiting for the next tick. Called once on
// shutdown before the final persistence flush. Events emitted by handlers
// during the drain stay queued.
func (s *EventDispatchSystem) Drain() int {
	s.bus.SwapBuffers()
	return s.bus.DispatchAll()
}
