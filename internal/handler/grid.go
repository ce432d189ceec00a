package handler

import (
	"errors"

	"github.com/l1jgo/cartgrid/internal/grid"
	"github.com/l1jgo/cartgrid/internal/net"
	"github.com/l1jgo/cartgrid/internal/net/packet"
	"github.com/l1jgo/cartgrid/internal/world"
	"go.uber.org/zap"
)

// objectRef is the [grid D][object Q] prefix shared by the grid opcodes.
type objectRef struct {
	grid   world.GridID
	object world.ObjectID
}

func readObjectRef(r *packet.Reader) objectRef {
	g := world.GridID(r.ReadDU())
	o := world.ObjectID(r.ReadQ())
	return objectRef{grid: g, object: o}
}

// readPosition reads [x F][y F][z F]. ok is false for NaN or infinite
// coordinates.
func readPosition(r *packet.Reader) (pos grid.Vec3, ok bool) {
	x := r.ReadF()
	y := r.ReadF()
	z := r.ReadF()
	pos = grid.Vec3{X: x, Y: y, Z: z}
	return pos, pos.Finite()
}

// HandleAddObject processes C_ADD_OBJECT.
// Format: [opcode][grid D][object Q][x F][y F][z F]
func HandleAddObject(sess *net.Session, r *packet.Reader, deps *Deps) {
	ref := readObjectRef(r)
	pos, finite := readPosition(r)
	if r.Overrun() {
		sendError(sess, packet.C_OPCODE_ADD_OBJECT, packet.ErrCodeBadRequest, "short packet")
		return
	}
	if !finite {
		sendError(sess, packet.C_OPCODE_ADD_OBJECT, packet.ErrCodeBadRequest, "non-finite position")
		return
	}
	reportGridErr(sess, packet.C_OPCODE_ADD_OBJECT, deps.Service.Add(ref.grid, ref.object, pos), deps)
}

// HandleRemoveObject processes C_REMOVE_OBJECT.
// Format: [opcode][grid D][object Q]
func HandleRemoveObject(sess *net.Session, r *packet.Reader, deps *Deps) {
	ref := readObjectRef(r)
	if r.Overrun() {
		sendError(sess, packet.C_OPCODE_REMOVE_OBJECT, packet.ErrCodeBadRequest, "short packet")
		return
	}
	reportGridErr(sess, packet.C_OPCODE_REMOVE_OBJECT, deps.Service.Remove(ref.grid, ref.object), deps)
}

// HandleMoveObject processes C_MOVE_OBJECT. Only the stored position
// changes; the zone follows on the next migration poll.
// Format: [opcode][grid D][object Q][x F][y F][z F]
func HandleMoveObject(sess *net.Session, r *packet.Reader, deps *Deps) {
	ref := readObjectRef(r)
	pos, finite := readPosition(r)
	if r.Overrun() {
		sendError(sess, packet.C_OPCODE_MOVE_OBJECT, packet.ErrCodeBadRequest, "short packet")
		return
	}
	if !finite {
		sendError(sess, packet.C_OPCODE_MOVE_OBJECT, packet.ErrCodeBadRequest, "non-finite position")
		return
	}
	reportGridErr(sess, packet.C_OPCODE_MOVE_OBJECT, deps.Service.UpdatePosition(ref.grid, ref.object, pos), deps)
}

// HandleQueryZone processes C_QUERY_ZONE and answers with S_ZONE_INFO.
// Format: [opcode][grid D][object Q]
func HandleQueryZone(sess *net.Session, r *packet.Reader, deps *Deps) {
	ref := readObjectRef(r)
	if r.Overrun() {
		sendError(sess, packet.C_OPCODE_QUERY_ZONE, packet.ErrCodeBadRequest, "short packet")
		return
	}
	g, err := deps.Service.Grid(ref.grid)
	if err != nil {
		reportGridErr(sess, packet.C_OPCODE_QUERY_ZONE, err, deps)
		return
	}
	zone, found := g.Registry().Zone(ref.object)
	if !found {
		zone = grid.InvalidZone
	}

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_ZONE_INFO)
	w.WriteDU(uint32(ref.grid))
	w.WriteQ(uint64(ref.object))
	w.WriteD(int32(zone))
	w.WriteC(boolByte(found))
	sess.Send(w.Bytes())
}

// HandleQuit processes C_QUIT. Cleanup happens when the input system sees
// the closed session.
func HandleQuit(sess *net.Session, _ *packet.Reader, deps *Deps) {
	deps.Log.Info("peer quit", zap.Uint64("session", sess.ID), zap.String("account", sess.AccountName))
	sess.Close()
}

func reportGridErr(sess *net.Session, opcode byte, err error, deps *Deps) {
	if err == nil {
		return
	}
	if errors.Is(err, world.ErrUnknownGrid) {
		sendError(sess, opcode, packet.ErrCodeUnknownGrid, err.Error())
		return
	}
	deps.Log.Error("grid request failed", zap.Uint8("opcode", opcode), zap.Error(err))
	sendError(sess, opcode, packet.ErrCodeBadRequest, err.Error())
}

// sendError sends S_ERROR: [C opcode][C request opcode][C code][S message]
func sendError(sess *net.Session, opcode, code byte, msg string) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_ERROR)
	w.WriteC(opcode)
	w.WriteC(code)
	w.WriteS(msg)
	sess.Send(w.Bytes())
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
