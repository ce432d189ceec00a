package system

import (
	"context"
	"time"

	"github.com/l1jgo/cartgrid/internal/core/event"
	coresys "github.com/l1jgo/cartgrid/internal/core/system"
	"github.com/l1jgo/cartgrid/internal/net"
	"github.com/l1jgo/cartgrid/internal/net/packet"
	"go.uber.org/zap"
)

// SessionSource delivers sessions from the network goroutines.
// *net.Server satisfies it.
type SessionSource interface {
	NewSessions() <-chan *net.Session
	DeadSessions() <-chan uint64
	NotifyDead(sessionID uint64)
}

// OnlineMarker clears a peer's online flag on disconnect.
type OnlineMarker interface {
	SetOnline(ctx context.Context, name string, online bool) error
}

// InputSystem drains packet queues from all sessions and dispatches them
// through the packet registry. Phase 0 (Input).
type InputSystem struct {
	source     SessionSource
	registry   *packet.Registry
	store      *net.SessionStore
	maxPerTick int
	peers      OnlineMarker // nil = skip
	bus        *event.Bus
	log        *zap.Logger
}

func NewInputSystem(
	source SessionSource,
	registry *packet.Registry,
	store *net.SessionStore,
	maxPerTick int,
	peers OnlineMarker,
	bus *event.Bus,
	log *zap.Logger,
) *InputSystem {
	return &InputSystem{
		source:     source,
		registry:   registry,
		store:      store,
		maxPerTick: maxPerTick,
		peers:      peers,
		bus:        bus,
		log:        log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	s.acceptNew()
	s.reapDead()

	for id, sess := range s.store.Raw() {
		if sess.IsClosed() {
			// Packets sent just before the close (a final move, C_QUIT)
			// still apply.
			s.drain(sess)
			sess.FlushOutput()
			s.handleDisconnect(sess)
			s.source.NotifyDead(id)
			s.store.Remove(id)
			continue
		}
		s.drain(sess)
	}

	// Early flush so replies leave while later phases run. OutputSystem
	// flushes whatever those phases add.
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}

func (s *InputSystem) acceptNew() {
	for {
		select {
		case sess := <-s.source.NewSessions():
			s.store.Add(sess)
		default:
			return
		}
	}
}

func (s *InputSystem) reapDead() {
	for {
		select {
		case id := <-s.source.DeadSessions():
			s.store.Remove(id)
		default:
			return
		}
	}
}

// drain dispatches up to maxPerTick queued packets of sess.
func (s *InputSystem) drain(sess *net.Session) {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case data := <-sess.InQueue:
			if err := s.registry.Dispatch(sess, sess.State(), data); err != nil {
				s.log.Debug("packet dispatch error",
					zap.Uint64("session", sess.ID),
					zap.Error(err),
				)
			}
		default:
			return
		}
	}
}

// handleDisconnect marks the peer offline and announces the disconnect.
// Objects the peer added stay on their grids.
func (s *InputSystem) handleDisconnect(sess *net.Session) {
	if sess.AccountName == "" {
		return
	}
	if s.peers != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.peers.SetOnline(ctx, sess.AccountName, false); err != nil {
			s.log.Error("clear online flag failed", zap.String("account", sess.AccountName), zap.Error(err))
		}
		cancel()
	}
	if s.bus != nil {
		event.Emit(s.bus, event.PeerDisconnected{SessionID: sess.ID, Account: sess.AccountName})
	}
	s.log.Info("peer disconnected", zap.Uint64("session", sess.ID), zap.String("account", sess.AccountName))
}

// SessionCount returns the current number of active sessions.
func (s *InputSystem) SessionCount() int {
	return s.store.Count()
}
