package handler

import (
	"github.com/l1jgo/cartgrid/internal/core/event"
	"github.com/l1jgo/cartgrid/internal/net"
	"github.com/l1jgo/cartgrid/internal/net/packet"
)

// BuildZoneChanged encodes S_ZONE_CHANGED.
// Format: [opcode][grid D][object Q][from D][to D][x F][y F][z F]
func BuildZoneChanged(ev event.ZoneChanged) []byte {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_ZONE_CHANGED)
	w.WriteDU(ev.GridID)
	w.WriteQ(ev.ObjectID)
	w.WriteD(int32(ev.From))
	w.WriteD(int32(ev.To))
	w.WriteF(ev.Pos.X)
	w.WriteF(ev.Pos.Y)
	w.WriteF(ev.Pos.Z)
	return w.Bytes()
}

// BuildObjectRemoved encodes S_OBJECT_REMOVED.
// Format: [opcode][grid D][object Q][last zone D]
func BuildObjectRemoved(ev event.ObjectRemoved) []byte {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_OBJECT_REMOVED)
	w.WriteDU(ev.GridID)
	w.WriteQ(ev.ObjectID)
	w.WriteD(int32(ev.LastZone))
	return w.Bytes()
}

// broadcastAuthenticated sends data to every logged-in, open session.
// Returns the number of recipients.
func broadcastAuthenticated(sessions *net.SessionStore, data []byte) int {
	n := 0
	sessions.ForEach(func(s *net.Session) {
		if s.IsClosed() || s.State() != packet.StateAuthenticated {
			return
		}
		s.Send(data)
		n++
	})
	return n
}

func BroadcastZoneChange(sessions *net.SessionStore, ev event.ZoneChanged) int {
	return broadcastAuthenticated(sessions, BuildZoneChanged(ev))
}

func BroadcastObjectRemoved(sessions *net.SessionStore, ev event.ObjectRemoved) int {
	return broadcastAuthenticated(sessions, BuildObjectRemoved(ev))
}

// SubscribeBroadcasts relays grid events from the bus to peers.
func SubscribeBroadcasts(bus *event.Bus, sessions *net.SessionStore) {
	event.Subscribe(bus, func(ev event.ZoneChanged) {
		BroadcastZoneChange(sessions, ev)
	})
	event.Subscribe(bus, func(ev event.ObjectRemoved) {
		BroadcastObjectRemoved(sessions, ev)
	})
}
