// Package wasmtest assembles small core wasm binaries for tests.
package wasmtest

import (
	"bytes"
)

// Value types
const (
	I32 byte = 0x7F
	I64 byte = 0x7E
	F32 byte = 0x7D
	F64 byte = 0x7C
)

const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionCode     = 10
	sectionData     = 11

	kindFunc   = 0x00
	kindMemory = 0x02
	kindGlobal = 0x03
)

type funcType struct {
	params  []byte
	results []byte
}

type importFunc struct {
	module  string
	name    string
	typeIdx uint32
}

type function struct {
	typeIdx uint32
	locals  []byte
	body    []byte
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type dataSegment struct {
	data   []byte
	offset uint32
}

// Builder accumulates module sections. Imports must be added before
// functions so function indices stay stable.
type Builder struct {
	types    []funcType
	imports  []importFunc
	funcs    []function
	globals  []int32
	exports  []export
	data     []dataSegment
	memPages uint32
}

// New returns an empty module builder.
func New() *Builder {
	return &Builder{}
}

func (b *Builder) typeIndex(params, results []byte) uint32 {
	for i, t := range b.types {
		if bytes.Equal(t.params, params) && bytes.Equal(t.results, results) {
			return uint32(i)
		}
	}
	b.types = append(b.types, funcType{params: params, results: results})
	return uint32(len(b.types) - 1)
}

// Memory declares memory 0 with min pages and exports it as name.
func (b *Builder) Memory(pages uint32, name string) *Builder {
	b.memPages = pages
	if name != "" {
		b.exports = append(b.exports, export{name: name, kind: kindMemory})
	}
	return b
}

// Import declares an imported function and returns its index.
func (b *Builder) Import(module, name string, params, results []byte) uint32 {
	b.imports = append(b.imports, importFunc{
		module:  module,
		name:    name,
		typeIdx: b.typeIndex(params, results),
	})
	return uint32(len(b.imports) - 1)
}

// Global declares a mutable i32 global and returns its index. A non-empty
// name exports it.
func (b *Builder) Global(init int32, name string) uint32 {
	b.globals = append(b.globals, init)
	idx := uint32(len(b.globals) - 1)
	if name != "" {
		b.exports = append(b.exports, export{name: name, kind: kindGlobal, idx: idx})
	}
	return idx
}

// Func declares a function and returns its index. A non-empty name exports
// it. locals lists extra locals after the params; body must not include the
// final end opcode.
func (b *Builder) Func(name string, params, results, locals []byte, body []byte) uint32 {
	b.funcs = append(b.funcs, function{
		typeIdx: b.typeIndex(params, results),
		locals:  locals,
		body:    body,
	})
	idx := uint32(len(b.imports) + len(b.funcs) - 1)
	if name != "" {
		b.exports = append(b.exports, export{name: name, kind: kindFunc, idx: idx})
	}
	return idx
}

// Data places bytes at a fixed offset of memory 0.
func (b *Builder) Data(offset uint32, data []byte) *Builder {
	b.data = append(b.data, dataSegment{offset: offset, data: data})
	return b
}

// Bytes encodes the module.
func (b *Builder) Bytes() []byte {
	var w writer
	w.buf.Write([]byte{0x00, 0x61, 0x73, 0x6D})
	w.buf.Write([]byte{0x01, 0x00, 0x00, 0x00})

	if len(b.types) > 0 {
		var sec writer
		sec.u32(uint32(len(b.types)))
		for _, t := range b.types {
			sec.byte(0x60)
			sec.vec(t.params)
			sec.vec(t.results)
		}
		w.section(sectionType, sec.bytes())
	}

	if len(b.imports) > 0 {
		var sec writer
		sec.u32(uint32(len(b.imports)))
		for _, imp := range b.imports {
			sec.name(imp.module)
			sec.name(imp.name)
			sec.byte(kindFunc)
			sec.u32(imp.typeIdx)
		}
		w.section(sectionImport, sec.bytes())
	}

	if len(b.funcs) > 0 {
		var sec writer
		sec.u32(uint32(len(b.funcs)))
		for _, f := range b.funcs {
			sec.u32(f.typeIdx)
		}
		w.section(sectionFunction, sec.bytes())
	}

	if b.memPages > 0 {
		var sec writer
		sec.u32(1)
		sec.byte(0x00) // min only
		sec.u32(b.memPages)
		w.section(sectionMemory, sec.bytes())
	}

	if len(b.globals) > 0 {
		var sec writer
		sec.u32(uint32(len(b.globals)))
		for _, init := range b.globals {
			sec.byte(I32)
			sec.byte(0x01) // mutable
			sec.byte(opI32Const)
			sec.s32(init)
			sec.byte(opEnd)
		}
		w.section(sectionGlobal, sec.bytes())
	}

	if len(b.exports) > 0 {
		var sec writer
		sec.u32(uint32(len(b.exports)))
		for _, e := range b.exports {
			sec.name(e.name)
			sec.byte(e.kind)
			sec.u32(e.idx)
		}
		w.section(sectionExport, sec.bytes())
	}

	if len(b.funcs) > 0 {
		var sec writer
		sec.u32(uint32(len(b.funcs)))
		for _, f := range b.funcs {
			var body writer
			body.u32(uint32(len(f.locals)))
			for _, l := range f.locals {
				body.u32(1)
				body.byte(l)
			}
			body.buf.Write(f.body)
			body.byte(opEnd)
			sec.u32(uint32(body.buf.Len()))
			sec.buf.Write(body.bytes())
		}
		w.section(sectionCode, sec.bytes())
	}

	if len(b.data) > 0 {
		var sec writer
		sec.u32(uint32(len(b.data)))
		for _, d := range b.data {
			sec.byte(0x00) // active, memory 0
			sec.byte(opI32Const)
			sec.s32(int32(d.offset))
			sec.byte(opEnd)
			sec.u32(uint32(len(d.data)))
			sec.buf.Write(d.data)
		}
		w.section(sectionData, sec.bytes())
	}

	return w.bytes()
}

// writer emits LEB128-encoded values.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) bytes() []byte {
	return w.buf.Bytes()
}

func (w *writer) byte(b byte) {
	w.buf.WriteByte(b)
}

func (w *writer) u32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			break
		}
	}
}

func (w *writer) s32(v int32) {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		w.buf.WriteByte(b)
	}
}

func (w *writer) name(s string) {
	w.u32(uint32(len(s)))
	w.buf.WriteString(s)
}

func (w *writer) vec(types []byte) {
	w.u32(uint32(len(types)))
	w.buf.Write(types)
}

func (w *writer) section(id byte, content []byte) {
	w.byte(id)
	w.u32(uint32(len(content)))
	w.buf.Write(content)
}
