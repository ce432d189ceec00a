package world

import (
	"fmt"
	"time"

	coresys "github.com/l1jgo/cartgrid/internal/core/system"
	"github.com/l1jgo/cartgrid/internal/grid"
	"github.com/l1jgo/cartgrid/internal/metrics"
	"go.uber.org/zap"
)

// DefaultPollInterval bounds network chatter from continuous movement:
// zones are re-checked once a second, not every frame.
const DefaultPollInterval = time.Second

// Scheduler registers named periodic callbacks and hands back a cancel
// handle. *coresys.Scheduler satisfies it.
type Scheduler interface {
	Every(name string, interval time.Duration, fn func()) coresys.Handle
}

// PollStats summarises one migration poll.
type PollStats struct {
	Checked  int // objects scanned
	Migrated int // notifications delivered
	Rejected int // out-of-cell objects that resolved outside the grid
}

// MigrationEngine periodically moves objects whose position left their
// current cell into the zone they are now in.
//
// Stopped → Running → Stopped. Start and Stop are idempotent; while
// Running the scheduler owns the cadence.
type MigrationEngine struct {
	gridID   GridID
	part     *grid.Partition
	reg      *Registry
	sched    Scheduler
	interval time.Duration
	handle   coresys.Handle
	notifier LocationNotifier
	metrics  metrics.Collector
	log      *zap.Logger
	pollIDs  []ObjectID
}

func newMigrationEngine(gridID GridID, part *grid.Partition, reg *Registry, deps Deps) *MigrationEngine {
	interval := deps.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &MigrationEngine{
		gridID:   gridID,
		part:     part,
		reg:      reg,
		sched:    deps.Scheduler,
		interval: interval,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		log:      deps.Log,
	}
}

// TaskName is the name the engine registers its poll under.
func (e *MigrationEngine) TaskName() string {
	return fmt.Sprintf("updateGridTask-%d", e.gridID)
}

func (e *MigrationEngine) Interval() time.Duration { return e.interval }

func (e *MigrationEngine) Running() bool {
	return e.handle != nil && e.handle.Active()
}

// Start schedules the poll. No-op while already running.
func (e *MigrationEngine) Start() {
	if e.Running() {
		return
	}
	e.handle = e.sched.Every(e.TaskName(), e.interval, func() { e.Poll() })
	e.metrics.SetEngineRunning(uint32(e.gridID), true)
	e.log.Debug("zone migration started", zap.Duration("interval", e.interval))
}

// Stop cancels the poll immediately. No-op while stopped.
func (e *MigrationEngine) Stop() {
	if e.handle == nil {
		return
	}
	e.handle.Cancel()
	e.handle = nil
	e.metrics.SetEngineRunning(uint32(e.gridID), false)
	e.log.Debug("zone migration stopped")
}

// Poll runs one migration pass in ascending object id order. Objects still
// inside their cell are left alone; unassigned objects are re-resolved every
// pass.
func (e *MigrationEngine) Poll() PollStats {
	start := time.Now()
	var st PollStats
	e.pollIDs = e.reg.sortedIDs(e.pollIDs[:0])
	for _, id := range e.pollIDs {
		obj, ok := e.reg.objects[id]
		if !ok {
			continue
		}
		st.Checked++
		if obj.Assigned() && e.part.Contains(obj.Zone, obj.Pos) {
			continue
		}
		switch e.handleZoneChange(obj) {
		case zoneMigrated:
			st.Migrated++
		case zoneRejected:
			st.Rejected++
		}
	}
	e.metrics.ObservePoll(uint32(e.gridID), time.Since(start))
	return st
}

type zoneOutcome int

const (
	zoneUnchanged zoneOutcome = iota
	zoneMigrated
	zoneRejected
)

// handleZoneChange resolves obj's zone from its position. An invalid zone
// is logged and leaves obj in its old zone. A new valid zone is recorded
// and handed to the notifier, which owns the object from then on.
func (e *MigrationEngine) handleZoneChange(obj *TrackedObject) zoneOutcome {
	zone := e.part.ResolveZone(obj.Pos)
	if !e.part.IsValidZone(zone) {
		e.log.Warn(fmt.Sprintf("%d handleAvatarZoneChange %d: not a valid zone (%d) for pos %s",
			e.gridID, obj.ID, zone, obj.Pos),
			zap.Uint64("object", uint64(obj.ID)),
			zap.Int32("old_zone", int32(obj.Zone)),
			zap.Int32("zone", int32(zone)),
		)
		e.metrics.IncInvalidZones(uint32(e.gridID))
		return zoneRejected
	}
	if zone == obj.Zone {
		return zoneUnchanged
	}

	from := obj.Zone
	obj.Zone = zone
	e.reg.index.Move(obj.ID, from, zone)
	e.notifier.OnZoneChanged(ZoneChange{
		Grid:   e.gridID,
		Object: obj.ID,
		From:   from,
		To:     zone,
		Pos:    obj.Pos,
	})
	e.metrics.IncZoneChanges(uint32(e.gridID))
	return zoneMigrated
}
