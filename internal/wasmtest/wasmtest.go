// Package wasmtest assembles small core WebAssembly modules for tests.
package wasmtest

import (
	"bytes"

	"github.com/wippyai/wasm-isolate/internal/wasmbin"
)

// Value types.
const (
	I32 byte = 0x7f
	I64 byte = 0x7e
	F32 byte = 0x7d
	F64 byte = 0x7c
)

// Opcodes used by test bodies.
const (
	OpCall     byte = 0x10
	OpDrop     byte = 0x1a
	OpLocalGet byte = 0x20
	OpI32Const byte = 0x41
	OpI32Add   byte = 0x6a
	OpI64Const byte = 0x42
	OpI64Shl   byte = 0x86
	OpI64Or    byte = 0x84
	OpI64ExtU  byte = 0xad // i64.extend_i32_u
	OpEnd      byte = 0x0b
)

const (
	secType     byte = 1
	secImport   byte = 2
	secFunction byte = 3
	secMemory   byte = 5
	secExport   byte = 7
	secCode     byte = 10
)

type sig struct {
	params  []byte
	results []byte
}

type importedFunc struct {
	module string
	name   string
	sig    sig
}

type definedFunc struct {
	export string
	sig    sig
	body   []byte
}

// Builder accumulates imports and functions. Imported functions take the
// first indices of the function index space, in the order added.
type Builder struct {
	imports []importedFunc
	funcs   []definedFunc
	// memPages > 0 adds a memory exported as "memory".
	memPages uint32
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{}
}

// Import adds an imported function.
func (b *Builder) Import(module, name string, params, results []byte) *Builder {
	b.imports = append(b.imports, importedFunc{module, name, sig{params, results}})
	return b
}

// Func adds a function with the given body (without the trailing end
// opcode). An empty export name leaves the function unexported.
func (b *Builder) Func(export string, params, results []byte, body ...byte) *Builder {
	b.funcs = append(b.funcs, definedFunc{export, sig{params, results}, body})
	return b
}

// Memory adds a memory of the given initial pages, exported as "memory".
func (b *Builder) Memory(pages uint32) *Builder {
	b.memPages = pages
	return b
}

// Bytes encodes the module.
func (b *Builder) Bytes() []byte {
	var out bytes.Buffer
	out.Write(wasmbin.Header())

	var sigs []sig
	for _, imp := range b.imports {
		sigs = append(sigs, imp.sig)
	}
	for _, fn := range b.funcs {
		sigs = append(sigs, fn.sig)
	}
	if len(sigs) == 0 && b.memPages == 0 {
		return out.Bytes()
	}

	section(&out, secType, func(w *bytes.Buffer) {
		wasmbin.WriteU32(w, uint32(len(sigs)))
		for _, s := range sigs {
			w.WriteByte(0x60)
			wasmbin.WriteU32(w, uint32(len(s.params)))
			w.Write(s.params)
			wasmbin.WriteU32(w, uint32(len(s.results)))
			w.Write(s.results)
		}
	})

	if len(b.imports) > 0 {
		section(&out, secImport, func(w *bytes.Buffer) {
			wasmbin.WriteU32(w, uint32(len(b.imports)))
			for i, imp := range b.imports {
				name(w, imp.module)
				name(w, imp.name)
				w.WriteByte(0x00)
				wasmbin.WriteU32(w, uint32(i))
			}
		})
	}

	if len(b.funcs) > 0 {
		section(&out, secFunction, func(w *bytes.Buffer) {
			wasmbin.WriteU32(w, uint32(len(b.funcs)))
			for i := range b.funcs {
				wasmbin.WriteU32(w, uint32(len(b.imports)+i))
			}
		})
	}

	if b.memPages > 0 {
		section(&out, secMemory, func(w *bytes.Buffer) {
			w.WriteByte(0x01)
			w.WriteByte(0x00) // min only
			wasmbin.WriteU32(w, b.memPages)
		})
	}

	var exported int
	for _, fn := range b.funcs {
		if fn.export != "" {
			exported++
		}
	}
	if b.memPages > 0 {
		exported++
	}
	if exported > 0 {
		section(&out, secExport, func(w *bytes.Buffer) {
			wasmbin.WriteU32(w, uint32(exported))
			for i, fn := range b.funcs {
				if fn.export == "" {
					continue
				}
				name(w, fn.export)
				w.WriteByte(0x00)
				wasmbin.WriteU32(w, uint32(len(b.imports)+i))
			}
			if b.memPages > 0 {
				name(w, "memory")
				w.WriteByte(0x02)
				wasmbin.WriteU32(w, 0)
			}
		})
	}

	if len(b.funcs) == 0 {
		return out.Bytes()
	}

	section(&out, secCode, func(w *bytes.Buffer) {
		wasmbin.WriteU32(w, uint32(len(b.funcs)))
		for _, fn := range b.funcs {
			var body bytes.Buffer
			body.WriteByte(0x00) // no locals
			body.Write(fn.body)
			body.WriteByte(OpEnd)
			wasmbin.WriteU32(w, uint32(body.Len()))
			w.Write(body.Bytes())
		}
	})

	return out.Bytes()
}

// Empty returns the smallest valid module.
func Empty() []byte {
	return wasmbin.Header()
}

// Const returns a module exporting fn() -> i32 that returns v.
func Const(fn string, v int32) []byte {
	var body bytes.Buffer
	body.WriteByte(OpI32Const)
	wasmbin.WriteS32(&body, v)
	return New().Func(fn, nil, []byte{I32}, body.Bytes()...).Bytes()
}

// AddOne returns a module exporting fn(i32) -> i32 that returns its
// argument plus one.
func AddOne(fn string) []byte {
	return New().Func(fn, []byte{I32}, []byte{I32},
		OpLocalGet, 0, OpI32Const, 1, OpI32Add).Bytes()
}

func section(out *bytes.Buffer, id byte, fill func(w *bytes.Buffer)) {
	var body bytes.Buffer
	fill(&body)
	out.WriteByte(id)
	wasmbin.WriteU32(out, uint32(body.Len()))
	out.Write(body.Bytes())
}

func name(w *bytes.Buffer, s string) {
	wasmbin.WriteU32(w, uint32(len(s)))
	w.WriteString(s)
}

// GuestTransformer returns a module with the transformer guest ABI:
// alloc(len i32) -> i32 always returns 1024, and transform(ptr, len) -> i64
// returns ptr<<32|len when echo is set, or 0 otherwise.
func GuestTransformer(echo bool) []byte {
	body := []byte{OpI64Const, 0}
	if echo {
		body = []byte{
			OpLocalGet, 0, OpI64ExtU, OpI64Const, 32, OpI64Shl,
			OpLocalGet, 1, OpI64ExtU, OpI64Or,
		}
	}
	return New().
		Memory(1).
		Func("alloc", []byte{I32}, []byte{I32}, OpI32Const, 0x80, 0x08).
		Func("transform", []byte{I32, I32}, []byte{I64}, body...).
		Bytes()
}
