package packet

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// wireCharset is the encoding of every string field on the wire. UTF-8
// unless SetCharset picks another.
var wireCharset atomic.Pointer[charset]

type charset struct {
	name string
	enc  encoding.Encoding
}

func init() {
	wireCharset.Store(&charset{name: "utf-8", enc: unicode.UTF8})
}

// SetCharset selects the wire string encoding by WHATWG label ("utf-8",
// "big5", "shift_jis", "windows-1252", ...). Call before serving.
func SetCharset(label string) error {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return fmt.Errorf("charset %q: %w", label, err)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		name = label
	}
	wireCharset.Store(&charset{name: name, enc: enc})
	return nil
}

// Charset returns the canonical name of the wire encoding.
func Charset() string {
	return wireCharset.Load().name
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}

// decodeString converts wire bytes to UTF-8. ASCII passes through unchanged.
func decodeString(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	if isASCII(raw) {
		return string(raw)
	}
	decoded, err := wireCharset.Load().enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// encodeString converts UTF-8 to wire bytes. Runes the charset cannot
// represent fall back to the raw UTF-8 bytes.
func encodeString(s string) []byte {
	if isASCII([]byte(s)) {
		return []byte(s)
	}
	encoded, err := wireCharset.Load().enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return encoded
}
