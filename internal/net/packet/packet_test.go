package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWriterReader_Fields(t *testing.T) {
	w := NewWriterWithOpcode(S_OPCODE_ZONE_CHANGED)
	w.WriteDU(7)
	w.WriteQ(1 << 40)
	w.WriteD(-1)
	w.WriteD(1013)
	w.WriteF(150.5)
	w.WriteF(-0.25)
	w.WriteH(0xBEEF)
	w.WriteC(9)
	w.WriteS("plaza")

	r := NewReader(w.Bytes())
	assert.Equal(t, S_OPCODE_ZONE_CHANGED, r.Opcode())
	assert.Equal(t, uint32(7), r.ReadDU())
	assert.Equal(t, uint64(1<<40), r.ReadQ())
	assert.Equal(t, int32(-1), r.ReadD())
	assert.Equal(t, int32(1013), r.ReadD())
	assert.Equal(t, 150.5, r.ReadF())
	assert.Equal(t, -0.25, r.ReadF())
	assert.Equal(t, uint16(0xBEEF), r.ReadH())
	assert.Equal(t, byte(9), r.ReadC())
	assert.Equal(t, "plaza", r.ReadS())
	assert.Zero(t, r.Remaining())
	assert.False(t, r.Overrun())
}

func TestReader_Overrun(t *testing.T) {
	r := NewReader([]byte{C_OPCODE_MOVE_OBJECT, 1, 0})
	assert.Zero(t, r.ReadDU())
	assert.True(t, r.Overrun())
	assert.Zero(t, r.ReadQ())
	assert.Equal(t, "", r.ReadS())
}

func TestWriter_NoPadding(t *testing.T) {
	w := NewWriterWithOpcode(S_OPCODE_LOGIN_RESULT)
	w.WriteC(LoginOK)
	assert.Equal(t, []byte{S_OPCODE_LOGIN_RESULT, LoginOK}, w.Bytes())
}

func TestCharset(t *testing.T) {
	t.Cleanup(func() { require.NoError(t, SetCharset("utf-8")) })

	assert.Equal(t, "utf-8", Charset())

	w := NewWriter()
	w.WriteS("港口")
	assert.Equal(t, append([]byte("港口"), 0), w.Bytes())

	require.NoError(t, SetCharset("big5"))
	assert.Equal(t, "big5", Charset())

	w = NewWriterWithOpcode(S_OPCODE_GRID_RULES)
	w.WriteS("港口")
	raw := w.Bytes()
	assert.Len(t, raw, 1+4+1, "two Big5 runes of two bytes each plus terminator")
	assert.Equal(t, "港口", NewReader(raw).ReadS())

	assert.Error(t, SetCharset("klingon"))
	assert.Equal(t, "big5", Charset())
}

type fakeSession struct{ got []string }

func TestRegistry_Dispatch(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	var seen []byte
	reg.OnDispatch = func(op byte) { seen = append(seen, op) }

	reg.Register(C_OPCODE_LOGIN, []SessionState{StateHandshake}, func(sess any, r *Reader) {
		s := sess.(*fakeSession)
		s.got = append(s.got, r.ReadS())
	})
	reg.Register(C_OPCODE_QUIT, []SessionState{StateHandshake, StateAuthenticated}, func(any, *Reader) {
		panic("boom")
	})
	assert.True(t, reg.Has(C_OPCODE_LOGIN))
	assert.False(t, reg.Has(C_OPCODE_ADD_OBJECT))

	s := &fakeSession{}
	w := NewWriterWithOpcode(C_OPCODE_LOGIN)
	w.WriteS("peer-a")
	require.NoError(t, reg.Dispatch(s, StateHandshake, w.Bytes()))
	assert.Equal(t, []string{"peer-a"}, s.got)

	assert.Error(t, reg.Dispatch(s, StateAuthenticated, w.Bytes()), "login after auth")
	assert.NoError(t, reg.Dispatch(s, StateHandshake, []byte{0x7F}), "unknown opcode ignored")
	assert.Error(t, reg.Dispatch(s, StateHandshake, nil))
	assert.Error(t, reg.Dispatch(s, StateAuthenticated, []byte{C_OPCODE_QUIT}), "panic recovered")

	assert.Equal(t, []byte{C_OPCODE_LOGIN, C_OPCODE_QUIT}, seen)
}

func TestSessionState_String(t *testing.T) {
	assert.Equal(t, "Authenticated", StateAuthenticated.String())
	assert.Equal(t, "Unknown(42)", SessionState(42).String())
}
