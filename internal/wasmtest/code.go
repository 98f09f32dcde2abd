package wasmtest

const (
	opBlock     = 0x02
	opLoop      = 0x03
	opEnd       = 0x0B
	opBr        = 0x0C
	opBrIf      = 0x0D
	opLocalGet  = 0x20
	opLocalSet  = 0x21
	opGlobalGet = 0x23
	opGlobalSet = 0x24
	opF32Store  = 0x38
	opI32Const  = 0x41
	opI32GeS    = 0x4E
	opI32Add    = 0x6A
	opI32And    = 0x71
	opI32Shl    = 0x74
	opF32FromI  = 0xB2

	blockVoid = 0x40
)

// Code builds a function body.
type Code struct {
	w writer
}

// Bytes returns the encoded instructions.
func (c *Code) Bytes() []byte {
	return c.w.bytes()
}

func (c *Code) I32Const(v int32) *Code {
	c.w.byte(opI32Const)
	c.w.s32(v)
	return c
}

func (c *Code) LocalGet(idx uint32) *Code {
	c.w.byte(opLocalGet)
	c.w.u32(idx)
	return c
}

func (c *Code) LocalSet(idx uint32) *Code {
	c.w.byte(opLocalSet)
	c.w.u32(idx)
	return c
}

func (c *Code) GlobalGet(idx uint32) *Code {
	c.w.byte(opGlobalGet)
	c.w.u32(idx)
	return c
}

func (c *Code) GlobalSet(idx uint32) *Code {
	c.w.byte(opGlobalSet)
	c.w.u32(idx)
	return c
}

// Incr adds one to global idx.
func (c *Code) Incr(idx uint32) *Code {
	return c.GlobalGet(idx).I32Const(1).Op(opI32Add).GlobalSet(idx)
}

// Op emits a bare opcode.
func (c *Code) Op(op byte) *Code {
	c.w.byte(op)
	return c
}

// FillF32 stores float32(i+base) at out[i] for i in [0, n), where out and
// n are read from locals and counter is a scratch i32 local.
func (c *Code) FillF32(out, n, counter uint32, base int32) *Code {
	c.I32Const(0).LocalSet(counter)
	c.w.byte(opBlock)
	c.w.byte(blockVoid)
	c.w.byte(opLoop)
	c.w.byte(blockVoid)

	c.LocalGet(counter).LocalGet(n).Op(opI32GeS)
	c.w.byte(opBrIf)
	c.w.u32(1)

	c.LocalGet(out).LocalGet(counter).I32Const(2).Op(opI32Shl).Op(opI32Add)
	c.LocalGet(counter).I32Const(base).Op(opI32Add).Op(opF32FromI)
	c.w.byte(opF32Store)
	c.w.u32(2) // align
	c.w.u32(0) // offset

	c.LocalGet(counter).I32Const(1).Op(opI32Add).LocalSet(counter)
	c.w.byte(opBr)
	c.w.u32(0)

	c.w.byte(opEnd)
	c.w.byte(opEnd)
	return c
}

// Malloc is a bump allocator over the heap global that rounds up to 8
// bytes and counts calls.
func (c *Code) Malloc(heap, calls uint32) *Code {
	c.Incr(calls)
	c.GlobalGet(heap)
	c.GlobalGet(heap).LocalGet(0).Op(opI32Add).I32Const(7).Op(opI32Add).
		I32Const(-8).Op(opI32And).GlobalSet(heap)
	return c
}
