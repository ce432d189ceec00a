package event

import "github.com/l1jgo/cartgrid/internal/grid"

// ZoneChanged is emitted when an object is placed into, or migrates to, a
// valid zone of a grid. From is grid.InvalidZone for a first placement.
type ZoneChanged struct {
	GridID   uint32
	ObjectID uint64
	From     grid.ZoneID
	To       grid.ZoneID
	Pos      grid.Vec3
}

// ObjectRemoved is emitted when an object leaves a grid's registry.
type ObjectRemoved struct {
	GridID   uint32
	ObjectID uint64
	LastZone grid.ZoneID
}

// PeerLoggedIn / PeerDisconnected track authenticated network peers.
type PeerLoggedIn struct {
	SessionID uint64
	Account   string
}

type PeerDisconnected struct {
	SessionID uint64
	Account   string
}
