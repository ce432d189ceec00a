package world

import (
	"testing"
	"time"

	"github.com/l1jgo/cartgrid/internal/core/event"
	coresys "github.com/l1jgo/cartgrid/internal/core/system"
	"github.com/l1jgo/cartgrid/internal/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPartition(t *testing.T, start grid.ZoneID, cell float64, radius int) *grid.Partition {
	t.Helper()
	p, err := grid.New(start, cell, radius, grid.StyleCartesian)
	require.NoError(t, err)
	return p
}

func TestService_GridsShareScheduler(t *testing.T) {
	t.Parallel()
	sched := coresys.NewScheduler()
	rec := &recorder{}
	svc := NewService(Deps{Scheduler: sched, Notifier: rec, PollInterval: 2 * time.Second})

	_, err := svc.CreateGrid(2, "b", mustPartition(t, 2000, 50, 3))
	require.NoError(t, err)
	_, err = svc.CreateGrid(1, "a", mustPartition(t, 1000, 100, 2))
	require.NoError(t, err)

	_, err = svc.CreateGrid(1, "dup", mustPartition(t, 1000, 100, 2))
	assert.ErrorIs(t, err, ErrDuplicateGrid)

	grids := svc.Grids()
	require.Len(t, grids, 2)
	assert.Equal(t, GridID(1), grids[0].ID())
	assert.Equal(t, "b", grids[1].Name())

	require.NoError(t, svc.Add(1, 10, grid.Vec3{X: 50, Y: 50}))
	require.NoError(t, svc.Add(2, 10, grid.Vec3{X: 10, Y: 10}))
	assert.Equal(t, 2, sched.Len())
	assert.Equal(t, 2, svc.TrackedObjects())

	require.NoError(t, svc.UpdatePosition(1, 10, grid.Vec3{X: 150, Y: 50}))
	sched.Update(time.Second)
	assert.Len(t, rec.changes, 2, "poll interval is two seconds")
	sched.Update(time.Second)
	require.Len(t, rec.changes, 3)
	assert.Equal(t, GridID(1), rec.changes[2].Grid)

	assert.ErrorIs(t, svc.Add(9, 1, grid.Vec3{}), ErrUnknownGrid)
	assert.ErrorIs(t, svc.UpdatePosition(9, 1, grid.Vec3{}), ErrUnknownGrid)
	assert.ErrorIs(t, svc.Remove(9, 1), ErrUnknownGrid)

	require.NoError(t, svc.Remove(2, 10))
	assert.Equal(t, 1, sched.Len())

	require.NoError(t, svc.RemoveGrid(1))
	assert.Equal(t, 0, sched.Len())
	assert.ErrorIs(t, svc.RemoveGrid(1), ErrUnknownGrid)

	svc.Close()
	assert.Empty(t, svc.Grids())
}

func TestBusNotifier_EmitsEvents(t *testing.T) {
	t.Parallel()
	bus := event.NewBus()
	sched := coresys.NewScheduler()
	svc := NewService(Deps{Scheduler: sched, Notifier: NewBusNotifier(bus)})
	_, err := svc.CreateGrid(4, "bus", mustPartition(t, 1000, 100, 2))
	require.NoError(t, err)

	var changes []event.ZoneChanged
	var removed []event.ObjectRemoved
	event.Subscribe(bus, func(ev event.ZoneChanged) { changes = append(changes, ev) })
	event.Subscribe(bus, func(ev event.ObjectRemoved) { removed = append(removed, ev) })

	require.NoError(t, svc.Add(4, 77, grid.Vec3{X: 50, Y: 50}))
	require.NoError(t, svc.Remove(4, 77))
	bus.SwapBuffers()
	bus.DispatchAll()

	require.Len(t, changes, 1)
	assert.Equal(t, event.ZoneChanged{
		GridID:   4,
		ObjectID: 77,
		From:     grid.InvalidZone,
		To:       1012,
		Pos:      grid.Vec3{X: 50, Y: 50},
	}, changes[0])
	require.Len(t, removed, 1)
	assert.Equal(t, grid.ZoneID(1012), removed[0].LastZone)
}

func TestMultiNotifier_FansOut(t *testing.T) {
	t.Parallel()
	a, b := &recorder{}, &recorder{}
	calls := 0
	m := MultiNotifier{a, b, NotifierFunc(func(ZoneChange) { calls++ })}

	m.OnZoneChanged(ZoneChange{Object: 1, To: 5})
	assert.Len(t, a.changes, 1)
	assert.Len(t, b.changes, 1)
	assert.Equal(t, 1, calls)
}

func TestZoneIndex_Move(t *testing.T) {
	t.Parallel()
	x := NewZoneIndex()
	x.Add(1, 10)
	x.Add(2, 10)
	x.Add(3, grid.InvalidZone)
	assert.Equal(t, 2, x.Count(10))
	assert.Equal(t, 0, x.Count(grid.InvalidZone))

	x.Move(1, 10, 11)
	x.Move(2, 10, 10)
	assert.Equal(t, []grid.ZoneID{10, 11}, x.OccupiedZones())

	x.Remove(2, 10)
	assert.Equal(t, []grid.ZoneID{11}, x.OccupiedZones())
	assert.Equal(t, []ObjectID{1}, x.MembersInto([]grid.ZoneID{10, 11}, nil))
}
