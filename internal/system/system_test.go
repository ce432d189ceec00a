package system

import (
	"context"
	"errors"
	stdnet "net"
	"testing"
	"time"

	"github.com/l1jgo/cartgrid/internal/config"
	"github.com/l1jgo/cartgrid/internal/core/event"
	coresys "github.com/l1jgo/cartgrid/internal/core/system"
	"github.com/l1jgo/cartgrid/internal/grid"
	"github.com/l1jgo/cartgrid/internal/handler"
	"github.com/l1jgo/cartgrid/internal/net"
	"github.com/l1jgo/cartgrid/internal/net/packet"
	"github.com/l1jgo/cartgrid/internal/persist"
	"github.com/l1jgo/cartgrid/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type chanSource struct {
	newCh  chan *net.Session
	deadCh chan uint64
	dead   []uint64
}

func newChanSource() *chanSource {
	return &chanSource{newCh: make(chan *net.Session, 8), deadCh: make(chan uint64, 8)}
}

func (c *chanSource) NewSessions() <-chan *net.Session { return c.newCh }
func (c *chanSource) DeadSessions() <-chan uint64      { return c.deadCh }
func (c *chanSource) NotifyDead(id uint64)             { c.dead = append(c.dead, id) }

type memPeers struct {
	online map[string]bool
}

func (m *memPeers) Load(_ context.Context, name string) (*persist.PeerRow, error) {
	return &persist.PeerRow{Name: name, PasswordHash: "pw", Online: m.online[name]}, nil
}
func (m *memPeers) Create(context.Context, string, string, string) (*persist.PeerRow, error) {
	return nil, errors.New("unused")
}
func (m *memPeers) ValidatePassword(hash, raw string) bool { return hash == raw }
func (m *memPeers) SetOnline(_ context.Context, name string, online bool) error {
	m.online[name] = online
	return nil
}

type memStore struct {
	log       []persist.ZoneLogEntry
	snapshots map[uint32][]persist.AssignmentRow
	failLog   bool
}

func newMemStore() *memStore {
	return &memStore{snapshots: make(map[uint32][]persist.AssignmentRow)}
}

func (m *memStore) Append(_ context.Context, entries []persist.ZoneLogEntry) error {
	if m.failLog {
		return errors.New("db down")
	}
	m.log = append(m.log, entries...)
	return nil
}

func (m *memStore) ReplaceGrid(_ context.Context, gridID uint32, rows []persist.AssignmentRow) error {
	m.snapshots[gridID] = append([]persist.AssignmentRow(nil), rows...)
	return nil
}

func (m *memStore) LoadGrid(_ context.Context, gridID uint32) ([]persist.AssignmentRow, error) {
	return m.snapshots[gridID], nil
}

type pipeline struct {
	runner *coresys.Runner
	source *chanSource
	store  *net.SessionStore
	svc    *world.Service
	peers  *memPeers
	db       *memStore
	bus      *event.Bus
	dispatch *EventDispatchSystem
	persist  *PersistenceSystem
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	log := zap.NewNop()
	bus := event.NewBus()
	sched := coresys.NewScheduler()
	svc := world.NewService(world.Deps{Scheduler: sched, Notifier: world.NewBusNotifier(bus), Log: log})
	part, err := grid.New(1000, 100, 2, grid.StyleCartesian)
	require.NoError(t, err)
	_, err = svc.CreateGrid(1, "plaza", part)
	require.NoError(t, err)

	p := &pipeline{
		runner: coresys.NewRunner(),
		source: newChanSource(),
		store:  net.NewSessionStore(),
		svc:    svc,
		peers:  &memPeers{online: make(map[string]bool)},
		db:     newMemStore(),
		bus:    bus,
	}
	reg := packet.NewRegistry(log)
	handler.RegisterAll(reg, &handler.Deps{
		Config:   config.Defaults(),
		Log:      log,
		Service:  svc,
		Peers:    p.peers,
		Sessions: p.store,
		Bus:      bus,
	})
	handler.SubscribeBroadcasts(bus, p.store)

	p.dispatch = NewEventDispatchSystem(bus)
	p.persist = NewPersistenceSystem(bus, svc, p.db, p.db, nil, log, 5)
	p.runner.Register(NewInputSystem(p.source, reg, p.store, 32, p.peers, bus, log))
	p.runner.Register(p.dispatch)
	p.runner.Register(sched)
	p.runner.Register(NewOutputSystem(p.store, nil))
	p.runner.Register(p.persist)
	return p
}

// connect hands a pipe-backed session to the input system without starting
// its network loops; tests feed InQueue and read OutQueue directly.
func (p *pipeline) connect(t *testing.T, id uint64) *net.Session {
	a, b := stdnet.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	s := net.NewSession(a, id, net.SessionConfig{InQueueSize: 16, OutQueueSize: 64}, zap.NewNop())
	p.source.newCh <- s
	return s
}

func drainOut(s *net.Session) [][]byte {
	var out [][]byte
	for {
		select {
		case pkt := <-s.OutQueue:
			out = append(out, pkt)
		default:
			return out
		}
	}
}

func opcodes(pkts [][]byte) []byte {
	ops := make([]byte, len(pkts))
	for i, p := range pkts {
		ops[i] = p[0]
	}
	return ops
}

func send(s *net.Session, w *packet.Writer) {
	s.InQueue <- w.Bytes()
}

func loginPacket(name string) *packet.Writer {
	w := packet.NewWriterWithOpcode(packet.C_OPCODE_LOGIN)
	w.WriteS(name)
	w.WriteS("pw")
	return w
}

func movePacket(op byte, obj uint64, x, y float64) *packet.Writer {
	w := packet.NewWriterWithOpcode(op)
	w.WriteDU(1)
	w.WriteQ(obj)
	w.WriteF(x)
	w.WriteF(y)
	w.WriteF(0)
	return w
}

const tick = 200 * time.Millisecond

func TestPipeline_MigrationReachesPeers(t *testing.T) {
	p := newPipeline(t)
	s := p.connect(t, 1)

	send(s, loginPacket("edge"))
	send(s, movePacket(packet.C_OPCODE_ADD_OBJECT, 42, 50, 50))

	// Events emitted during Input are dispatched in the same tick's PreUpdate.
	p.runner.Tick(tick)
	out := drainOut(s)
	assert.Equal(t, []byte{packet.S_OPCODE_LOGIN_RESULT, packet.S_OPCODE_GRID_RULES, packet.S_OPCODE_ZONE_CHANGED}, opcodes(out))
	assert.Equal(t, handler.BuildZoneChanged(event.ZoneChanged{
		GridID: 1, ObjectID: 42, From: grid.InvalidZone, To: 1012, Pos: grid.Vec3{X: 50, Y: 50},
	}), out[2])
	assert.True(t, p.peers.online["edge"])

	send(s, movePacket(packet.C_OPCODE_MOVE_OBJECT, 42, 150, 50))
	for i := 0; i < 3; i++ {
		p.runner.Tick(tick)
	}
	assert.Empty(t, drainOut(s), "800ms since add: no poll yet")

	// Tick 5 polls and flushes persistence; the change it emits is
	// dispatched on tick 6.
	p.runner.Tick(tick)
	assert.Empty(t, drainOut(s))
	require.Len(t, p.db.log, 1)
	require.Len(t, p.db.snapshots[1], 1)
	assert.Equal(t, int32(1013), p.db.snapshots[1][0].Zone)

	p.runner.Tick(tick)
	out = drainOut(s)
	require.Len(t, out, 1)
	r := packet.NewReader(out[0])
	r.ReadDU()
	r.ReadQ()
	assert.Equal(t, int32(1012), r.ReadD())
	assert.Equal(t, int32(1013), r.ReadD())

	for i := 0; i < 4; i++ {
		p.runner.Tick(tick)
	}
	require.Len(t, p.db.log, 2)
	assert.Equal(t, int32(1013), p.db.log[1].ToZone)
}

func TestShutdown_DrainBeforeSave(t *testing.T) {
	p := newPipeline(t)
	s := p.connect(t, 1)
	send(s, loginPacket("edge"))
	send(s, movePacket(packet.C_OPCODE_ADD_OBJECT, 42, 50, 50))
	send(s, movePacket(packet.C_OPCODE_MOVE_OBJECT, 42, 150, 50))

	// Tick 5 polls, flushing the placement; the migration it emits waits
	// in the bus for tick 6.
	for i := 0; i < 5; i++ {
		p.runner.Tick(tick)
	}
	require.Len(t, p.db.log, 1)
	assert.Equal(t, 1, p.bus.Pending())

	assert.Equal(t, 1, p.dispatch.Drain())
	p.persist.SaveAll()
	require.Len(t, p.db.log, 2)
	assert.Equal(t, int32(1012), p.db.log[1].FromZone)
	assert.Equal(t, int32(1013), p.db.log[1].ToZone)
	assert.Zero(t, p.persist.Pending())
}

func TestPipeline_DisconnectMarksOffline(t *testing.T) {
	p := newPipeline(t)
	var gone []event.PeerDisconnected
	event.Subscribe(p.bus, func(ev event.PeerDisconnected) { gone = append(gone, ev) })

	s := p.connect(t, 7)
	send(s, loginPacket("edge"))
	send(s, movePacket(packet.C_OPCODE_ADD_OBJECT, 1, 50, 50))
	p.runner.Tick(tick)
	require.Equal(t, 1, p.store.Count())

	send(s, packet.NewWriterWithOpcode(packet.C_OPCODE_QUIT))
	p.runner.Tick(tick)
	assert.True(t, s.IsClosed())

	p.runner.Tick(tick)
	assert.Zero(t, p.store.Count())
	assert.Equal(t, []uint64{7}, p.source.dead)
	assert.False(t, p.peers.online["edge"])
	assert.Equal(t, 1, p.svc.TrackedObjects(), "objects outlive the peer")
	require.Len(t, gone, 1)
	assert.Equal(t, "edge", gone[0].Account)
}

func TestPersistence_FailureDropsBatch(t *testing.T) {
	bus := event.NewBus()
	sched := coresys.NewScheduler()
	svc := world.NewService(world.Deps{Scheduler: sched, Notifier: world.NewBusNotifier(bus)})
	part, err := grid.New(0, 10, 1, grid.StyleCartesian)
	require.NoError(t, err)
	_, err = svc.CreateGrid(3, "small", part)
	require.NoError(t, err)

	db := newMemStore()
	db.failLog = true
	ps := NewPersistenceSystem(bus, svc, db, db, nil, zap.NewNop(), 2)

	require.NoError(t, svc.Add(3, 1, grid.Vec3{X: 1, Y: 1}))
	bus.SwapBuffers()
	bus.DispatchAll()
	assert.Equal(t, 1, ps.Pending())

	ps.Update(tick)
	assert.Equal(t, 1, ps.Pending(), "interval not reached")
	ps.Update(tick)
	assert.Zero(t, ps.Pending())
	assert.Empty(t, db.log)
	assert.Len(t, db.snapshots[3], 1, "snapshot still written")
}

func TestRestoreGrids(t *testing.T) {
	sched := coresys.NewScheduler()
	var changes []world.ZoneChange
	svc := world.NewService(world.Deps{
		Scheduler: sched,
		Notifier:  world.NotifierFunc(func(c world.ZoneChange) { changes = append(changes, c) }),
	})
	part, err := grid.New(1000, 100, 2, grid.StyleCartesian)
	require.NoError(t, err)
	_, err = svc.CreateGrid(1, "plaza", part)
	require.NoError(t, err)

	db := newMemStore()
	db.snapshots[1] = []persist.AssignmentRow{
		{GridID: 1, ObjectID: 5, Zone: 1012, X: 50, Y: 50},
		{GridID: 1, ObjectID: 6, Zone: 1012, X: 150, Y: 50},
	}
	db.snapshots[9] = []persist.AssignmentRow{{GridID: 9, ObjectID: 1}}

	n, err := RestoreGrids(context.Background(), svc, db, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, n, "rows of unknown grids are ignored")

	g, err := svc.Grid(1)
	require.NoError(t, err)
	z, ok := g.Registry().Zone(6)
	require.True(t, ok)
	assert.Equal(t, grid.ZoneID(1013), z, "zone re-resolved from position")
	assert.Empty(t, changes, "restored objects are not re-announced")
	assert.True(t, g.Engine().Running())

	require.NoError(t, svc.UpdatePosition(1, 5, grid.Vec3{X: 250, Y: 50}))
	sched.Update(time.Second)
	require.Len(t, changes, 1)
	assert.Equal(t, grid.ZoneID(1012), changes[0].From)
	assert.Equal(t, grid.ZoneID(1014), changes[0].To)
}
