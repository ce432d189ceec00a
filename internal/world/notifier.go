package world

import (
	"github.com/l1jgo/cartgrid/internal/core/event"
	"github.com/l1jgo/cartgrid/internal/grid"
)

// ZoneChange is handed to a LocationNotifier when an object takes a new
// owning zone. From is grid.InvalidZone for the object's first placement.
type ZoneChange struct {
	Grid   GridID
	Object ObjectID
	From   grid.ZoneID
	To     grid.ZoneID
	Pos    grid.Vec3
}

// LocationNotifier is the authority that reparents an object in its new
// zone and updates remote replicas. The grid calls it at most once per
// poll per object, only for an actual change into a valid zone, and never
// retries or rolls back.
type LocationNotifier interface {
	OnZoneChanged(change ZoneChange)
}

// NotifierFunc adapts a function to LocationNotifier.
type NotifierFunc func(ZoneChange)

func (f NotifierFunc) OnZoneChanged(c ZoneChange) { f(c) }

// MultiNotifier fans a change out to several notifiers in order.
type MultiNotifier []LocationNotifier

func (m MultiNotifier) OnZoneChanged(c ZoneChange) {
	for _, n := range m {
		n.OnZoneChanged(c)
	}
}

// BusNotifier publishes changes on the event bus; subscribers see them
// on the next tick.
type BusNotifier struct {
	bus *event.Bus
}

func NewBusNotifier(bus *event.Bus) *BusNotifier {
	return &BusNotifier{bus: bus}
}

func (n *BusNotifier) OnZoneChanged(c ZoneChange) {
	event.Emit(n.bus, event.ZoneChanged{
		GridID:   uint32(c.Grid),
		ObjectID: uint64(c.Object),
		From:     c.From,
		To:       c.To,
		Pos:      c.Pos,
	})
}

// OnObjectRemoved publishes a registry removal.
func (n *BusNotifier) OnObjectRemoved(gridID GridID, id ObjectID, lastZone grid.ZoneID) {
	event.Emit(n.bus, event.ObjectRemoved{
		GridID:   uint32(gridID),
		ObjectID: uint64(id),
		LastZone: lastZone,
	})
}

// RemovalObserver is optionally implemented by a LocationNotifier that
// also wants to hear about objects leaving the grid.
type RemovalObserver interface {
	OnObjectRemoved(gridID GridID, id ObjectID, lastZone grid.ZoneID)
}
