package wasmbin

import (
	"bytes"
	"testing"

	"github.com/wippyai/wasm-isolate/errors"
)

func TestReadU32(t *testing.T) {
	tests := []struct {
		input []byte
		want  uint32
		n     int
		ok    bool
	}{
		{[]byte{0x00}, 0, 1, true},
		{[]byte{0x7f}, 127, 1, true},
		{[]byte{0x80, 0x01}, 128, 2, true},
		{[]byte{0xe5, 0x8e, 0x26}, 624485, 3, true},
		{[]byte{0x80}, 0, 0, false},
		{[]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}, 0, 0, false},
		{nil, 0, 0, false},
	}

	for _, tt := range tests {
		got, n, err := ReadU32(tt.input)
		if (err == nil) != tt.ok {
			t.Errorf("ReadU32(%x) err = %v, want ok=%v", tt.input, err, tt.ok)
			continue
		}
		if tt.ok && (got != tt.want || n != tt.n) {
			t.Errorf("ReadU32(%x) = %d,%d want %d,%d", tt.input, got, n, tt.want, tt.n)
		}
	}
}

func TestWriteU32RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 127, 128, 300, 1 << 20, 0xffffffff} {
		var buf bytes.Buffer
		WriteU32(&buf, v)
		got, n, err := ReadU32(buf.Bytes())
		if err != nil || got != v || n != buf.Len() {
			t.Errorf("round trip %d: got %d, n=%d, err=%v", v, got, n, err)
		}
	}
}

func TestSectionsRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"short", []byte{0x00, 'a', 's'}},
		{"bad magic", []byte{0x00, 'a', 's', 'n', 1, 0, 0, 0}},
		{"bad version", []byte{0x00, 'a', 's', 'm', 2, 0, 0, 0}},
		{"truncated section", append(Header(), 0x01, 0x05, 0x01)},
		{"custom name overflow", append(Header(), 0x00, 0x02, 0x09, 'a')},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.input)
			if err == nil {
				t.Fatal("Check succeeded, want error")
			}
			if !errors.Is(err, errors.ErrCodeFormat) {
				t.Errorf("err = %v, want code format error", err)
			}
		})
	}
}

func TestAppendCustom(t *testing.T) {
	base := Header()
	out := AppendCustom(base, "isolate.marker", []byte{0xab})

	if len(base) != 8 {
		t.Fatalf("AppendCustom modified input: len = %d", len(base))
	}
	if out[len(out)-1] != 0xab {
		t.Errorf("last byte = %#x, want 0xab", out[len(out)-1])
	}

	payload, ok, err := Custom(out, "isolate.marker")
	if err != nil || !ok {
		t.Fatalf("Custom() = %v, %v, %v", payload, ok, err)
	}
	if !bytes.Equal(payload, []byte{0xab}) {
		t.Errorf("payload = %x, want ab", payload)
	}

	secs, err := Sections(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(secs) != 1 || secs[0].ID != SectionCustom || secs[0].Offset != 8 {
		t.Errorf("sections = %+v", secs)
	}

	if _, ok, _ := Custom(out, "other"); ok {
		t.Error("Custom found a section that does not exist")
	}
}

func TestCustomReturnsLast(t *testing.T) {
	b := AppendCustom(AppendCustom(Header(), "m", []byte{1}), "m", []byte{2})
	payload, ok, err := Custom(b, "m")
	if err != nil || !ok || !bytes.Equal(payload, []byte{2}) {
		t.Errorf("Custom() = %x, %v, %v; want 02", payload, ok, err)
	}
}
