package lensfun

import "context"

// Search flags accepted by the lens and camera search entry points.
const (
	SearchLoose           int32 = 1
	SearchSortAndUniquify int32 = 2
)

// Correction categories reported by the available-modifications query.
const (
	ModifyTCA         Modifications = 0x00000001
	ModifyVignetting  Modifications = 0x00000002
	ModifyDistortion  Modifications = 0x00000008
	ModifyGeometry    Modifications = 0x00000010
	ModifyScale       Modifications = 0x00000020
	ModifyPerspective Modifications = 0x00000040
)

// DefaultDBPath is where the native module expects the calibration database.
const DefaultDBPath = "/lensfun-db"

// DefaultVignettingDistance is the subject distance used for vignetting maps
// when none is given.
const DefaultVignettingDistance float32 = 1000

// ValueType tags a native argument or result.
type ValueType uint8

const (
	ValueVoid ValueType = iota
	ValueI32
	ValueU32
	ValueF32
	// ValueString is passed as a pointer to a NUL-terminated UTF-8 copy
	// that lives only for the duration of the call.
	ValueString
)

func (v ValueType) String() string {
	switch v {
	case ValueVoid:
		return "void"
	case ValueI32:
		return "s32"
	case ValueU32:
		return "u32"
	case ValueF32:
		return "f32"
	case ValueString:
		return "string"
	default:
		return "unknown"
	}
}

// Func is a typed native entry point. The raw result holds the low 32 bits
// of the native return value; it is 0 for void functions.
type Func func(ctx context.Context, args ...any) (uint64, error)

// Memory is the native linear memory as seen by the adapter.
type Memory interface {
	// ReadString decodes the NUL-terminated UTF-8 payload at ptr.
	ReadString(ptr uint32) (string, error)
	// ReadFloat32s copies n little-endian floats starting at byte offset ptr.
	ReadFloat32s(ptr, n uint32) ([]float32, error)
	Write(offset uint32, data []byte) error
}

// Allocator allocates native linear memory.
type Allocator interface {
	Malloc(ctx context.Context, size uint32) (uint32, error)
	Free(ctx context.Context, ptr uint32) error
}

// Module is a ready native module handle. It is owned by exactly one
// session and is not safe for concurrent use.
type Module interface {
	Memory
	Allocator
	// Func wraps the exported symbol with a fixed signature.
	Func(symbol string, params []ValueType, result ValueType) (Func, error)
	Close(ctx context.Context) error
}

// LocateFunc maps a logical asset name (e.g. "lensfun-core.wasm") and a
// directory prefix to the location the asset is loaded from.
type LocateFunc func(path, prefix string) string

// Factory instantiates a native module.
type Factory func(ctx context.Context, locate LocateFunc) (Module, error)
