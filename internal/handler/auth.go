package handler

import (
	"context"
	stdnet "net"
	"strings"
	"time"

	"github.com/l1jgo/cartgrid/internal/core/event"
	"github.com/l1jgo/cartgrid/internal/net"
	"github.com/l1jgo/cartgrid/internal/net/packet"
	"go.uber.org/zap"
)

// HandleLogin processes C_LOGIN.
// Format: [opcode][account\0][password\0]
func HandleLogin(sess *net.Session, r *packet.Reader, deps *Deps) {
	accountName := strings.ToLower(strings.TrimSpace(r.ReadS()))
	password := r.ReadS()
	if r.Overrun() || accountName == "" {
		sendLoginResult(sess, packet.LoginUnknownPeer)
		return
	}

	ip := hostOf(sess.IP)
	if deps.logins != nil && !deps.logins.Allow(ip, time.Now()) {
		deps.Log.Warn("login rate limited", zap.String("ip", ip))
		sendLoginResult(sess, packet.LoginRateLimited)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	peer, err := deps.Peers.Load(ctx, accountName)
	if err != nil {
		deps.Log.Error("load peer failed", zap.String("account", accountName), zap.Error(err))
		sendLoginResult(sess, packet.LoginInternalError)
		return
	}

	if peer == nil {
		if !deps.Config.Peers.AutoCreate {
			sendLoginResult(sess, packet.LoginUnknownPeer)
			return
		}
		peer, err = deps.Peers.Create(ctx, accountName, password, ip)
		if err != nil {
			deps.Log.Error("create peer failed", zap.String("account", accountName), zap.Error(err))
			sendLoginResult(sess, packet.LoginInternalError)
			return
		}
		deps.Log.Info("peer account created", zap.String("account", accountName))
	} else if !deps.Peers.ValidatePassword(peer.PasswordHash, password) {
		sendLoginResult(sess, packet.LoginWrongPassword)
		return
	}

	if peer.Banned {
		deps.Log.Info("banned peer refused", zap.String("account", accountName))
		sendLoginResult(sess, packet.LoginBanned)
		return
	}
	if peer.Online || accountOnline(deps.Sessions, accountName) {
		sendLoginResult(sess, packet.LoginAlreadyOnline)
		return
	}

	if err := deps.Peers.SetOnline(ctx, accountName, true); err != nil {
		deps.Log.Error("set online failed", zap.String("account", accountName), zap.Error(err))
	}

	sess.AccountName = accountName
	sess.SetState(packet.StateAuthenticated)
	sendLoginResult(sess, packet.LoginOK)
	sendGridRules(sess, deps)

	if deps.Bus != nil {
		event.Emit(deps.Bus, event.PeerLoggedIn{SessionID: sess.ID, Account: accountName})
	}
	deps.Log.Info("peer logged in",
		zap.Uint64("session", sess.ID),
		zap.String("account", accountName),
		zap.String("ip", ip),
	)
}

func accountOnline(sessions *net.SessionStore, account string) bool {
	if sessions == nil {
		return false
	}
	for _, s := range sessions.Raw() {
		if s.AccountName == account && !s.IsClosed() {
			return true
		}
	}
	return false
}

func hostOf(addr string) string {
	host, _, err := stdnet.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// loginLimiter caps login attempts per IP over a sliding minute. IPs with
// no attempt inside the window are swept at most once a minute.
type loginLimiter struct {
	limit     int
	hits      map[string][]time.Time
	lastSweep time.Time
}

func newLoginLimiter(perMinute int) *loginLimiter {
	return &loginLimiter{limit: perMinute, hits: make(map[string][]time.Time)}
}

func (l *loginLimiter) Allow(ip string, now time.Time) bool {
	cutoff := now.Add(-time.Minute)
	if now.Sub(l.lastSweep) >= time.Minute {
		l.sweep(cutoff)
		l.lastSweep = now
	}

	recent := l.hits[ip][:0]
	for _, t := range l.hits[ip] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) >= l.limit {
		if len(recent) == 0 {
			delete(l.hits, ip)
		} else {
			l.hits[ip] = recent
		}
		return false
	}
	l.hits[ip] = append(recent, now)
	return true
}

func (l *loginLimiter) sweep(cutoff time.Time) {
	for ip, hits := range l.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(l.hits, ip)
		}
	}
}

// sendLoginResult sends S_LOGIN_RESULT: [C opcode][C result]
func sendLoginResult(sess *net.Session, result byte) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_LOGIN_RESULT)
	w.WriteC(result)
	sess.Send(w.Bytes())
}

// sendGridRules sends one S_GRID_RULES per hosted grid so the peer can
// rebuild each partition locally.
func sendGridRules(sess *net.Session, deps *Deps) {
	for _, g := range deps.Service.Grids() {
		style, rule := g.ParentingRules()
		w := packet.NewWriterWithOpcode(packet.S_OPCODE_GRID_RULES)
		w.WriteDU(uint32(g.ID()))
		w.WriteS(g.Name())
		w.WriteS(style)
		w.WriteS(rule)
		sess.Send(w.Bytes())
	}
}
