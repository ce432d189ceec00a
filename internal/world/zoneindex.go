package world

import (
	"sort"

	"github.com/l1jgo/cartgrid/internal/grid"
)

// ZoneIndex tracks which objects are in which zone of one grid.
// Accessed only from the game loop goroutine, no locks.
type ZoneIndex struct {
	zones map[grid.ZoneID]map[ObjectID]struct{} // zone → set of object ids
}

func NewZoneIndex() *ZoneIndex {
	return &ZoneIndex{
		zones: make(map[grid.ZoneID]map[ObjectID]struct{}),
	}
}

// Add places an object into a zone. Unassigned objects are not indexed.
func (x *ZoneIndex) Add(id ObjectID, zone grid.ZoneID) {
	if zone == grid.InvalidZone {
		return
	}
	set := x.zones[zone]
	if set == nil {
		set = make(map[ObjectID]struct{})
		x.zones[zone] = set
	}
	set[id] = struct{}{}
}

// Remove takes an object out of a zone.
func (x *ZoneIndex) Remove(id ObjectID, zone grid.ZoneID) {
	set := x.zones[zone]
	if set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(x.zones, zone)
		}
	}
}

// Move updates an object's zone membership.
func (x *ZoneIndex) Move(id ObjectID, from, to grid.ZoneID) {
	if from == to {
		return
	}
	x.Remove(id, from)
	x.Add(id, to)
}

// Count returns the number of objects in zone.
func (x *ZoneIndex) Count(zone grid.ZoneID) int {
	return len(x.zones[zone])
}

// OccupiedZones returns every zone holding at least one object, ascending.
func (x *ZoneIndex) OccupiedZones() []grid.ZoneID {
	out := make([]grid.ZoneID, 0, len(x.zones))
	for z := range x.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MembersInto appends the members of every zone in zones to buf and returns
// it sorted by id. Pass buf[:0] to reuse a buffer across polls.
func (x *ZoneIndex) MembersInto(zones []grid.ZoneID, buf []ObjectID) []ObjectID {
	for _, z := range zones {
		for id := range x.zones[z] {
			buf = append(buf, id)
		}
	}
	sort.Slice(buf, func(i, j int) bool { return buf[i] < buf[j] })
	return buf
}

func (x *ZoneIndex) reset() {
	x.zones = make(map[grid.ZoneID]map[ObjectID]struct{})
}
