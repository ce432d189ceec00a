package packet

// ProtocolVersion is announced in S_SERVER_HELLO. Peers refuse to log in on
// a mismatch.
const ProtocolVersion uint16 = 1

// Client → server opcodes.
const (
	C_OPCODE_LOGIN         byte = 0x01 // account S, password S
	C_OPCODE_ADD_OBJECT    byte = 0x02 // grid D, object Q, x F, y F, z F
	C_OPCODE_REMOVE_OBJECT byte = 0x03 // grid D, object Q
	C_OPCODE_MOVE_OBJECT   byte = 0x04 // grid D, object Q, x F, y F, z F
	C_OPCODE_QUERY_ZONE    byte = 0x05 // grid D, object Q
	C_OPCODE_QUIT          byte = 0x06
)

// Server → client opcodes.
const (
	S_OPCODE_SERVER_HELLO   byte = 0x80 // server id D, protocol H, name S, charset S
	S_OPCODE_LOGIN_RESULT   byte = 0x81 // result C
	S_OPCODE_GRID_RULES     byte = 0x82 // grid D, name S, style S, rule S
	S_OPCODE_ZONE_CHANGED   byte = 0x83 // grid D, object Q, from D, to D, x F, y F, z F
	S_OPCODE_ZONE_INFO      byte = 0x84 // grid D, object Q, zone D, found C
	S_OPCODE_OBJECT_REMOVED byte = 0x85 // grid D, object Q, last zone D
	S_OPCODE_ERROR          byte = 0x86 // request opcode C, code C, message S
)

// Login results carried by S_OPCODE_LOGIN_RESULT.
const (
	LoginOK            byte = 0x00
	LoginWrongPassword byte = 0x01
	LoginUnknownPeer   byte = 0x02
	LoginRateLimited   byte = 0x03
	LoginInternalError byte = 0x04
	LoginBanned        byte = 0x05
	LoginAlreadyOnline byte = 0x06
)

// Error codes carried by S_OPCODE_ERROR.
const (
	ErrCodeUnknownGrid byte = 0x01
	ErrCodeBadRequest  byte = 0x02
)
