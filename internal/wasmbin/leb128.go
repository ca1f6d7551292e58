package wasmbin

import (
	"bytes"

	"github.com/wippyai/wasm-isolate/errors"
)

// ReadU32 decodes an unsigned LEB128 value from the front of b and returns
// it with the number of bytes consumed.
func ReadU32(b []byte) (uint32, int, error) {
	var result uint32
	var shift uint
	for i, c := range b {
		result |= uint32(c&0x7f) << shift
		if c&0x80 == 0 {
			return result, i + 1, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, 0, errors.InvalidFormat("leb128: overflow")
		}
	}
	return 0, 0, errors.InvalidFormat("leb128: unexpected end")
}

// WriteU32 writes an unsigned LEB128 value
func WriteU32(w *bytes.Buffer, v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if v == 0 {
			break
		}
	}
}

// WriteS32 writes a signed LEB128 value
func WriteS32(w *bytes.Buffer, v int32) {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		w.WriteByte(b)
	}
}
