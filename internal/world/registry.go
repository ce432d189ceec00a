package world

import (
	"sort"

	"github.com/l1jgo/cartgrid/internal/grid"
	"github.com/l1jgo/cartgrid/internal/metrics"
	"go.uber.org/zap"
)

// ObjectID is the distributed object id of a tracked entity.
type ObjectID uint64

// GridID is the distributed object id of the grid itself.
type GridID uint32

// Entity is anything the grid can track: an id plus a grid-local position.
type Entity interface {
	ID() ObjectID
	Position() grid.Vec3
}

// TrackedObject is the registry's record of one object. Zone is
// grid.InvalidZone while the object is unassigned.
type TrackedObject struct {
	ID   ObjectID
	Pos  grid.Vec3
	Zone grid.ZoneID
}

// Assigned reports whether the object currently owns a zone.
func (o TrackedObject) Assigned() bool { return o.Zone != grid.InvalidZone }

// Registry holds the objects on one grid. Positions must already be in the
// grid's local frame; the registry never transforms them.
//
// Add and Remove drive the migration engine's lifecycle: it runs exactly
// while the registry is non-empty. UpdatePosition only records the latest
// position; migration happens on the engine's next poll.
type Registry struct {
	gridID  GridID
	part    *grid.Partition
	objects map[ObjectID]*TrackedObject
	index   *ZoneIndex
	engine  *MigrationEngine
	removal RemovalObserver
	metrics metrics.Collector
	log     *zap.Logger
	nearBuf []ObjectID
}

func newRegistry(gridID GridID, part *grid.Partition, notifier LocationNotifier, m metrics.Collector, log *zap.Logger) *Registry {
	r := &Registry{
		gridID:  gridID,
		part:    part,
		objects: make(map[ObjectID]*TrackedObject),
		index:   NewZoneIndex(),
		metrics: m,
		log:     log,
	}
	if ro, ok := notifier.(RemovalObserver); ok {
		r.removal = ro
	}
	return r
}

// Add registers an object and resolves its initial zone. A position outside
// the grid still registers the object, unassigned, with a warning. Adding a
// tracked id replaces its position and keeps its current zone as the
// starting point for re-resolution.
func (r *Registry) Add(id ObjectID, pos grid.Vec3) {
	obj, exists := r.objects[id]
	if exists {
		r.log.Debug("object re-added to grid", zap.Uint64("object", uint64(id)))
		obj.Pos = pos
	} else {
		obj = &TrackedObject{ID: id, Pos: pos, Zone: grid.InvalidZone}
		r.objects[id] = obj
	}

	r.engine.handleZoneChange(obj)
	r.metrics.SetTrackedObjects(uint32(r.gridID), len(r.objects))

	r.engine.Start()
}

// Restore registers an object recovered from a snapshot. Its zone is
// resolved from pos and no notification is sent. An out-of-grid position leaves it unassigned and the engine
// keeps retrying it like any other unassigned object.
func (r *Registry) Restore(id ObjectID, pos grid.Vec3) {
	zone := r.part.ResolveZone(pos)
	if !r.part.IsValidZone(zone) {
		zone = grid.InvalidZone
	}
	if obj, exists := r.objects[id]; exists {
		r.index.Move(id, obj.Zone, zone)
		obj.Pos, obj.Zone = pos, zone
	} else {
		r.objects[id] = &TrackedObject{ID: id, Pos: pos, Zone: zone}
		r.index.Add(id, zone)
	}
	r.metrics.SetTrackedObjects(uint32(r.gridID), len(r.objects))

	r.engine.Start()
}

// AddEntity registers e at its current position.
func (r *Registry) AddEntity(e Entity) {
	r.Add(e.ID(), e.Position())
}

// Remove deregisters an object. The engine stops when the last one leaves.
// Unknown ids are a no-op.
func (r *Registry) Remove(id ObjectID) bool {
	obj, ok := r.objects[id]
	if !ok {
		return false
	}
	delete(r.objects, id)
	r.index.Remove(id, obj.Zone)
	r.metrics.SetTrackedObjects(uint32(r.gridID), len(r.objects))
	if r.removal != nil {
		r.removal.OnObjectRemoved(r.gridID, id, obj.Zone)
	}

	if len(r.objects) == 0 {
		r.engine.Stop()
	}
	return true
}

// UpdatePosition stores the latest position. It never migrates or notifies.
// Returns false if the object is not on this grid.
func (r *Registry) UpdatePosition(id ObjectID, pos grid.Vec3) bool {
	obj, ok := r.objects[id]
	if !ok {
		r.log.Debug("position update for unknown object", zap.Uint64("object", uint64(id)))
		return false
	}
	obj.Pos = pos
	return true
}

// UpdateEntity records e's current position.
func (r *Registry) UpdateEntity(e Entity) bool {
	return r.UpdatePosition(e.ID(), e.Position())
}

// Get returns a copy of the object's record.
func (r *Registry) Get(id ObjectID) (TrackedObject, bool) {
	obj, ok := r.objects[id]
	if !ok {
		return TrackedObject{}, false
	}
	return *obj, true
}

// Zone returns the object's current zone.
func (r *Registry) Zone(id ObjectID) (grid.ZoneID, bool) {
	obj, ok := r.objects[id]
	if !ok {
		return grid.InvalidZone, false
	}
	return obj.Zone, true
}

func (r *Registry) Len() int { return len(r.objects) }

// ObjectsInZone returns the ids assigned to zone, ascending.
func (r *Registry) ObjectsInZone(zone grid.ZoneID) []ObjectID {
	return r.index.MembersInto([]grid.ZoneID{zone}, nil)
}

// Nearby returns the other objects within radius zones (Chebyshev) of id's
// zone, ascending. Unassigned objects have no neighbours. The returned
// slice is reused by the next call.
func (r *Registry) Nearby(id ObjectID, radius int) []ObjectID {
	obj, ok := r.objects[id]
	if !ok || !obj.Assigned() {
		return nil
	}
	r.nearBuf = r.index.MembersInto(r.part.InterestZones(obj.Zone, radius), r.nearBuf[:0])
	out := r.nearBuf[:0]
	for _, other := range r.nearBuf {
		if other != id {
			out = append(out, other)
		}
	}
	r.nearBuf = out
	return out
}

// Index exposes the zone membership index (read-only use).
func (r *Registry) Index() *ZoneIndex { return r.index }

func (r *Registry) sortedIDs(buf []ObjectID) []ObjectID {
	for id := range r.objects {
		buf = append(buf, id)
	}
	sort.Slice(buf, func(i, j int) bool { return buf[i] < buf[j] })
	return buf
}

// Snapshot returns copies of every record, ascending by id.
func (r *Registry) Snapshot() []TrackedObject {
	out := make([]TrackedObject, 0, len(r.objects))
	for _, obj := range r.objects {
		out = append(out, *obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) clear() {
	r.objects = make(map[ObjectID]*TrackedObject)
	r.index.reset()
	r.metrics.SetTrackedObjects(uint32(r.gridID), 0)
}
