package handler

import (
	"context"

	"github.com/l1jgo/cartgrid/internal/config"
	"github.com/l1jgo/cartgrid/internal/core/event"
	"github.com/l1jgo/cartgrid/internal/net"
	"github.com/l1jgo/cartgrid/internal/net/packet"
	"github.com/l1jgo/cartgrid/internal/persist"
	"github.com/l1jgo/cartgrid/internal/world"
	"go.uber.org/zap"
)

// PeerStore is the account backend used at login. *persist.PeerRepo
// satisfies it.
type PeerStore interface {
	Load(ctx context.Context, name string) (*persist.PeerRow, error)
	Create(ctx context.Context, name, rawPassword, ip string) (*persist.PeerRow, error)
	ValidatePassword(hash, rawPassword string) bool
	SetOnline(ctx context.Context, name string, online bool) error
}

// Deps holds shared dependencies injected into all packet handlers.
type Deps struct {
	Config   *config.Config
	Log      *zap.Logger
	Service  *world.Service
	Peers    PeerStore
	Sessions *net.SessionStore
	Bus      *event.Bus

	logins *loginLimiter
}

// RegisterAll registers all packet handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	rl := deps.Config.RateLimit
	if rl.Enabled && rl.LoginAttemptsPerMinute > 0 {
		deps.logins = newLoginLimiter(rl.LoginAttemptsPerMinute)
	}

	reg.Register(packet.C_OPCODE_LOGIN,
		[]packet.SessionState{packet.StateHandshake},
		func(sess any, r *packet.Reader) {
			HandleLogin(sess.(*net.Session), r, deps)
		},
	)

	authStates := []packet.SessionState{packet.StateAuthenticated}

	reg.Register(packet.C_OPCODE_ADD_OBJECT, authStates,
		func(sess any, r *packet.Reader) {
			HandleAddObject(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_REMOVE_OBJECT, authStates,
		func(sess any, r *packet.Reader) {
			HandleRemoveObject(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_MOVE_OBJECT, authStates,
		func(sess any, r *packet.Reader) {
			HandleMoveObject(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_QUERY_ZONE, authStates,
		func(sess any, r *packet.Reader) {
			HandleQueryZone(sess.(*net.Session), r, deps)
		},
	)

	reg.Register(packet.C_OPCODE_QUIT,
		[]packet.SessionState{packet.StateHandshake, packet.StateAuthenticated},
		func(sess any, r *packet.Reader) {
			HandleQuit(sess.(*net.Session), r, deps)
		},
	)
}
