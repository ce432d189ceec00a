package system

import (
	"context"
	"time"

	"github.com/l1jgo/cartgrid/internal/core/event"
	coresys "github.com/l1jgo/cartgrid/internal/core/system"
	"github.com/l1jgo/cartgrid/internal/grid"
	"github.com/l1jgo/cartgrid/internal/metrics"
	"github.com/l1jgo/cartgrid/internal/persist"
	"github.com/l1jgo/cartgrid/internal/world"
	"go.uber.org/zap"
)

// ZoneLogWriter appends delivered zone changes. *persist.ZoneLogRepo
// satisfies it.
type ZoneLogWriter interface {
	Append(ctx context.Context, entries []persist.ZoneLogEntry) error
}

// SnapshotStore saves and loads per-grid assignments.
// *persist.AssignmentRepo satisfies it.
type SnapshotStore interface {
	ReplaceGrid(ctx context.Context, gridID uint32, rows []persist.AssignmentRow) error
	LoadGrid(ctx context.Context, gridID uint32) ([]persist.AssignmentRow, error)
}

// PersistenceSystem buffers zone changes from the bus and, every interval
// ticks, appends them to the zone log and snapshots every grid's
// assignments. Phase 5 (Persist).
type PersistenceSystem struct {
	svc       *world.Service
	zoneLog   ZoneLogWriter
	snapshots SnapshotStore
	metrics   metrics.Collector
	log       *zap.Logger
	pending   []persist.ZoneLogEntry
	tickCount int
	interval  int
	now       func() time.Time
}

func NewPersistenceSystem(
	bus *event.Bus,
	svc *world.Service,
	zoneLog ZoneLogWriter,
	snapshots SnapshotStore,
	m metrics.Collector,
	log *zap.Logger,
	intervalTicks int,
) *PersistenceSystem {
	if m == nil {
		m = metrics.NewNop()
	}
	if intervalTicks <= 0 {
		intervalTicks = 1
	}
	s := &PersistenceSystem{
		svc:       svc,
		zoneLog:   zoneLog,
		snapshots: snapshots,
		metrics:   m,
		log:       log,
		interval:  intervalTicks,
		now:       time.Now,
	}
	event.Subscribe(bus, s.record)
	return s
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *PersistenceSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.flush()
}

// SaveAll flushes the zone log and snapshots immediately. Called for
// graceful shutdown.
func (s *PersistenceSystem) SaveAll() {
	s.flush()
}

// Pending returns the number of buffered zone log entries.
func (s *PersistenceSystem) Pending() int {
	return len(s.pending)
}

func (s *PersistenceSystem) record(ev event.ZoneChanged) {
	s.pending = append(s.pending, persist.ZoneLogEntry{
		GridID:    ev.GridID,
		ObjectID:  ev.ObjectID,
		FromZone:  int32(ev.From),
		ToZone:    int32(ev.To),
		X:         ev.Pos.X,
		Y:         ev.Pos.Y,
		Z:         ev.Pos.Z,
		ChangedAt: s.now(),
	})
}

func (s *PersistenceSystem) flush() {
	s.flushZoneLog()
	s.snapshotGrids()
}

// flushZoneLog writes buffered entries. A failed batch is dropped and counted.
func (s *PersistenceSystem) flushZoneLog() {
	if len(s.pending) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.zoneLog.Append(ctx, s.pending); err != nil {
		s.metrics.IncPersistFailures("zone_log")
		s.log.Error("zone log flush failed", zap.Int("entries", len(s.pending)), zap.Error(err))
	}
	s.pending = s.pending[:0]
}

func (s *PersistenceSystem) snapshotGrids() {
	for _, g := range s.svc.Grids() {
		rows := SnapshotRows(g)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := s.snapshots.ReplaceGrid(ctx, uint32(g.ID()), rows)
		cancel()
		if err != nil {
			s.metrics.IncPersistFailures("snapshot")
			s.log.Error("grid snapshot failed", zap.Uint32("grid", uint32(g.ID())), zap.Error(err))
		}
	}
}

// SnapshotRows converts a grid's registry into snapshot rows.
func SnapshotRows(g *world.Grid) []persist.AssignmentRow {
	objs := g.Registry().Snapshot()
	rows := make([]persist.AssignmentRow, len(objs))
	for i, o := range objs {
		rows[i] = persist.AssignmentRow{
			GridID:   uint32(g.ID()),
			ObjectID: uint64(o.ID),
			Zone:     int32(o.Zone),
			X:        o.Pos.X,
			Y:        o.Pos.Y,
			Z:        o.Pos.Z,
		}
	}
	return rows
}

// RestoreGrids puts every snapshotted object back on its grid without
// notifying. Zones are re-resolved from the stored positions. Returns the
// number restored.
func RestoreGrids(ctx context.Context, svc *world.Service, store SnapshotStore, log *zap.Logger) (int, error) {
	n := 0
	for _, g := range svc.Grids() {
		rows, err := store.LoadGrid(ctx, uint32(g.ID()))
		if err != nil {
			return n, err
		}
		for _, row := range rows {
			g.Restore(world.ObjectID(row.ObjectID), grid.Vec3{X: row.X, Y: row.Y, Z: row.Z})
			if z, _ := g.Registry().Zone(world.ObjectID(row.ObjectID)); int32(z) != row.Zone {
				log.Debug("restored object resolved to a different zone",
					zap.Uint32("grid", row.GridID),
					zap.Uint64("object", row.ObjectID),
					zap.Int32("stored", row.Zone),
					zap.Int32("resolved", int32(z)),
				)
			}
			n++
		}
	}
	return n, nil
}
