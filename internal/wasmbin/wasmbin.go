// Package wasmbin walks the section structure of core WebAssembly binaries.
//
// It does not decode section contents beyond custom-section names. Full
// validation is left to the runtime that compiles the module.
package wasmbin

import (
	"bytes"
	"encoding/binary"
	"unicode/utf8"

	"github.com/wippyai/wasm-isolate/errors"
)

// Magic is the WebAssembly binary magic number ("\0asm" in little-endian).
const Magic uint32 = 0x6D736100

// Version is the supported WebAssembly binary format version.
const Version uint32 = 0x01

// SectionCustom is the id of custom sections, which may appear anywhere.
const SectionCustom byte = 0

// headerSize is magic plus version.
const headerSize = 8

// Section is one top-level section of a module binary.
type Section struct {
	// Name is set for custom sections only.
	Name    string
	Payload []byte
	Offset  int
	ID      byte
}

// Header returns the 8-byte module preamble.
func Header() []byte {
	var h [headerSize]byte
	binary.LittleEndian.PutUint32(h[0:4], Magic)
	binary.LittleEndian.PutUint32(h[4:8], Version)
	return h[:]
}

// Check reports whether b has a valid preamble and well-formed section
// framing.
func Check(b []byte) error {
	_, err := Sections(b)
	return err
}

// Sections returns the top-level sections of b in binary order.
func Sections(b []byte) ([]Section, error) {
	if len(b) < headerSize {
		return nil, errors.InvalidFormat("binary too short: %d bytes", len(b))
	}
	if binary.LittleEndian.Uint32(b[0:4]) != Magic {
		return nil, errors.InvalidFormat("bad magic %x", b[0:4])
	}
	if v := binary.LittleEndian.Uint32(b[4:8]); v != Version {
		return nil, errors.InvalidFormat("unsupported version %d", v)
	}

	var out []Section
	pos := headerSize
	for pos < len(b) {
		start := pos
		id := b[pos]
		pos++
		size, n, err := ReadU32(b[pos:])
		if err != nil {
			return nil, errors.InvalidFormat("section at %d: %v", start, err)
		}
		pos += n
		end := pos + int(size)
		if end > len(b) || end < pos {
			return nil, errors.InvalidFormat("section at %d: size %d exceeds binary", start, size)
		}
		sec := Section{ID: id, Offset: start, Payload: b[pos:end]}
		if id == SectionCustom {
			name, rest, err := readName(sec.Payload)
			if err != nil {
				return nil, errors.InvalidFormat("custom section at %d: %v", start, err)
			}
			sec.Name = name
			sec.Payload = rest
		}
		out = append(out, sec)
		pos = end
	}
	return out, nil
}

// Custom returns the payload of the last custom section called name.
func Custom(b []byte, name string) ([]byte, bool, error) {
	secs, err := Sections(b)
	if err != nil {
		return nil, false, err
	}
	for i := len(secs) - 1; i >= 0; i-- {
		if secs[i].ID == SectionCustom && secs[i].Name == name {
			return secs[i].Payload, true, nil
		}
	}
	return nil, false, nil
}

// AppendCustom returns a copy of b with a custom section appended.
// The payload is the last content of the result.
func AppendCustom(b []byte, name string, payload []byte) []byte {
	var body bytes.Buffer
	WriteU32(&body, uint32(len(name)))
	body.WriteString(name)
	body.Write(payload)

	var out bytes.Buffer
	out.Grow(len(b) + body.Len() + 6)
	out.Write(b)
	out.WriteByte(SectionCustom)
	WriteU32(&out, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func readName(b []byte) (string, []byte, error) {
	n, k, err := ReadU32(b)
	if err != nil {
		return "", nil, err
	}
	end := k + int(n)
	if end > len(b) || end < k {
		return "", nil, errors.InvalidFormat("name length %d exceeds section", n)
	}
	name := b[k:end]
	if !utf8.Valid(name) {
		return "", nil, errors.InvalidFormat("name is not valid UTF-8")
	}
	return string(name), b[end:], nil
}
