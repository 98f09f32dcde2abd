package wasmtest

// Offsets used by the stub module.
const (
	jsonBase  = 1024
	heapFloor = 8192
	stubPages = 4
)

// Exported counter globals of the stub module.
const (
	GlobalMallocCalls  = "malloc_calls"
	GlobalFreeCalls    = "free_calls"
	GlobalJSONFrees    = "json_free_calls"
	GlobalInitCalls    = "init_calls"
	GlobalDisposeCalls = "dispose_calls"
	GlobalLastFlags    = "last_flags"
	GlobalLastString   = "last_string"
)

// Map fill bases. Element i of a built map holds float32(base+i).
const (
	GeometryBase   = 0
	TCABase        = 1000
	VignettingBase = 2000
)

// Stub describes a fake native lensfun module.
type Stub struct {
	// LensesJSON is returned by lfw_find_lenses_json; empty returns a null
	// pointer.
	LensesJSON string
	// CamerasJSON is returned by lfw_find_cameras_json; empty returns a
	// null pointer.
	CamerasJSON string

	InitStatus       int32
	GeometryStatus   int32
	TCAStatus        int32
	VignettingStatus int32
	Mods             int32

	// Omit skips exporting the named symbol.
	Omit string
	// MismatchMods declares lfw_available_mods with an i32 crop.
	MismatchMods bool
	// HostImports adds unused WASI and emscripten env imports.
	HostImports bool
}

// Bytes assembles the stub module.
func (s Stub) Bytes() []byte {
	b := New()
	b.Memory(stubPages, "memory")

	if s.HostImports {
		b.Import("wasi_snapshot_preview1", "fd_write", []byte{I32, I32, I32, I32}, []byte{I32})
		b.Import("env", "emscripten_notify_memory_growth", []byte{I32}, nil)
	}

	lensPtr, camPtr, heap := int32(0), int32(0), int32(jsonBase)
	if s.LensesJSON != "" {
		lensPtr = heap
		b.Data(uint32(heap), append([]byte(s.LensesJSON), 0))
		heap += int32(len(s.LensesJSON)) + 1
	}
	if s.CamerasJSON != "" {
		camPtr = heap
		b.Data(uint32(heap), append([]byte(s.CamerasJSON), 0))
		heap += int32(len(s.CamerasJSON)) + 1
	}
	heap = (heap + 15) &^ 15
	if heap < heapFloor {
		heap = heapFloor
	}

	gHeap := b.Global(heap, "")
	gMalloc := b.Global(0, GlobalMallocCalls)
	gFree := b.Global(0, GlobalFreeCalls)
	gJSONFree := b.Global(0, GlobalJSONFrees)
	gInit := b.Global(0, GlobalInitCalls)
	gDispose := b.Global(0, GlobalDisposeCalls)
	gFlags := b.Global(0, GlobalLastFlags)
	gString := b.Global(0, GlobalLastString)

	name := func(sym string) string {
		if sym == s.Omit {
			return ""
		}
		return sym
	}

	b.Func(name("malloc"), []byte{I32}, []byte{I32}, nil,
		new(Code).Malloc(gHeap, gMalloc).Bytes())
	b.Func(name("free"), []byte{I32}, nil, nil,
		new(Code).Incr(gFree).Bytes())

	b.Func(name("lfw_init"), []byte{I32}, []byte{I32}, nil,
		new(Code).Incr(gInit).LocalGet(0).GlobalSet(gString).I32Const(s.InitStatus).Bytes())
	b.Func(name("lfw_dispose"), nil, nil, nil,
		new(Code).Incr(gDispose).Bytes())

	b.Func(name("lfw_find_lenses_json"), []byte{I32, I32, I32, I32, I32}, []byte{I32}, nil,
		new(Code).LocalGet(4).GlobalSet(gFlags).LocalGet(3).GlobalSet(gString).I32Const(lensPtr).Bytes())
	b.Func(name("lfw_find_cameras_json"), []byte{I32, I32, I32}, []byte{I32}, nil,
		new(Code).LocalGet(2).GlobalSet(gFlags).LocalGet(1).GlobalSet(gString).I32Const(camPtr).Bytes())

	crop := F32
	if s.MismatchMods {
		crop = I32
	}
	b.Func(name("lfw_available_mods"), []byte{I32, crop}, []byte{I32}, nil,
		new(Code).I32Const(s.Mods).Bytes())

	mapParams := []byte{I32, F32, F32, I32, I32, I32, I32, I32, I32}
	b.Func(name("lfw_build_geometry_map"), mapParams, []byte{I32}, []byte{I32},
		new(Code).FillF32(7, 8, 9, GeometryBase).I32Const(s.GeometryStatus).Bytes())
	b.Func(name("lfw_build_tca_map"), mapParams, []byte{I32}, []byte{I32},
		new(Code).FillF32(7, 8, 9, TCABase).I32Const(s.TCAStatus).Bytes())
	vigParams := []byte{I32, F32, F32, F32, F32, I32, I32, I32, I32, I32, I32}
	b.Func(name("lfw_build_vignetting_map"), vigParams, []byte{I32}, []byte{I32},
		new(Code).FillF32(9, 10, 11, VignettingBase).I32Const(s.VignettingStatus).Bytes())

	b.Func(name("lfw_free"), []byte{I32}, nil, nil,
		new(Code).Incr(gJSONFree).Bytes())

	return b.Bytes()
}
