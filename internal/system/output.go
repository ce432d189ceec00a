package system

import (
	"time"

	coresys "github.com/l1jgo/cartgrid/internal/core/system"
	"github.com/l1jgo/cartgrid/internal/metrics"
	"github.com/l1jgo/cartgrid/internal/net"
)

// OutputSystem flushes every session's buffered packets and publishes the
// session gauge. Phase 4 (Output).
type OutputSystem struct {
	store   *net.SessionStore
	metrics metrics.Collector
}

func NewOutputSystem(store *net.SessionStore, m metrics.Collector) *OutputSystem {
	if m == nil {
		m = metrics.NewNop()
	}
	return &OutputSystem{store: store, metrics: m}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) {
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
	s.metrics.SetSessions(s.store.Count())
}
