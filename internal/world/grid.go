package world

import (
	"time"

	"github.com/l1jgo/cartgrid/internal/grid"
	"github.com/l1jgo/cartgrid/internal/metrics"
	"go.uber.org/zap"
)

// Deps holds what a hosted grid needs from the process.
type Deps struct {
	Scheduler    Scheduler
	Notifier     LocationNotifier
	Metrics      metrics.Collector // nil = no-op
	Log          *zap.Logger       // nil = no-op
	PollInterval time.Duration     // <= 0 = DefaultPollInterval
}

func (d Deps) withDefaults() Deps {
	if d.Metrics == nil {
		d.Metrics = metrics.NewNop()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Notifier == nil {
		d.Notifier = NotifierFunc(func(ZoneChange) {})
	}
	return d
}

// Grid is one hosted grid parent: its partition, registry and migration
// engine. Deleting the grid (Close) tears the engine down.
type Grid struct {
	id     GridID
	name   string
	part   *grid.Partition
	reg    *Registry
	engine *MigrationEngine
	log    *zap.Logger
	closed bool
}

// NewGrid wires a registry and engine for part. deps.Scheduler is required.
func NewGrid(id GridID, name string, part *grid.Partition, deps Deps) *Grid {
	deps = deps.withDefaults()
	deps.Log = deps.Log.With(zap.Uint32("grid", uint32(id)))

	reg := newRegistry(id, part, deps.Notifier, deps.Metrics, deps.Log)
	engine := newMigrationEngine(id, part, reg, deps)
	reg.engine = engine

	return &Grid{
		id:     id,
		name:   name,
		part:   part,
		reg:    reg,
		engine: engine,
		log:    deps.Log,
	}
}

func (g *Grid) ID() GridID                 { return g.id }
func (g *Grid) Name() string               { return g.name }
func (g *Grid) Partition() *grid.Partition { return g.part }
func (g *Grid) Registry() *Registry        { return g.reg }
func (g *Grid) Engine() *MigrationEngine   { return g.engine }
func (g *Grid) Closed() bool               { return g.closed }

// IsGridParent is always true: objects on a Grid are parented to it.
func (g *Grid) IsGridParent() bool { return true }

// ParentingRules returns the style and rule string peers use to rebuild
// this grid's partition.
func (g *Grid) ParentingRules() (style, rule string) {
	return g.part.ParentingRules()
}

// Add puts an object on the grid. Ignored after Close.
func (g *Grid) Add(id ObjectID, pos grid.Vec3) {
	if g.closed {
		g.log.Warn("add on closed grid ignored", zap.Uint64("object", uint64(id)))
		return
	}
	g.reg.Add(id, pos)
}

// Restore puts a snapshotted object back on the grid without notifying.
// Ignored after Close.
func (g *Grid) Restore(id ObjectID, pos grid.Vec3) {
	if g.closed {
		return
	}
	g.reg.Restore(id, pos)
}

func (g *Grid) Remove(id ObjectID) bool {
	return g.reg.Remove(id)
}

func (g *Grid) UpdatePosition(id ObjectID, pos grid.Vec3) bool {
	return g.reg.UpdatePosition(id, pos)
}

// Close stops the engine and drops every object without notifying.
func (g *Grid) Close() {
	if g.closed {
		return
	}
	g.closed = true
	g.engine.Stop()
	g.reg.clear()
}
