package engine

import (
	"context"
	stderrors "errors"
	"os"
	"strings"
	"testing"

	lensfun "github.com/wippyai/lensfun-runtime"
	"github.com/wippyai/lensfun-runtime/errors"
	"github.com/wippyai/lensfun-runtime/internal/wasmtest"
)

func instantiateStub(t *testing.T, stub wasmtest.Stub) *WazeroInstance {
	t.Helper()
	ctx := context.Background()

	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine failed: %v", err)
	}
	mod, err := eng.Compile(ctx, stub.Bytes())
	if err != nil {
		eng.Close(ctx)
		t.Fatalf("Compile failed: %v", err)
	}
	inst, err := mod.Instantiate(ctx, nil)
	if err != nil {
		eng.Close(ctx)
		t.Fatalf("Instantiate failed: %v", err)
	}
	inst.owner = eng
	t.Cleanup(func() { inst.Close(ctx) })
	return inst
}

func global(t *testing.T, inst *WazeroInstance, name string) uint32 {
	t.Helper()
	g := inst.Module().ExportedGlobal(name)
	if g == nil {
		t.Fatalf("global %q not exported", name)
	}
	return uint32(g.Get())
}

func TestNewWazeroEngineWithConfig(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		cfg  *Config
		name string
	}{
		{nil, "nil config"},
		{&Config{}, "default config"},
		{&Config{MemoryLimitPages: 256}, "16MB limit"},
		{&Config{EnableThreads: true}, "threads"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			engine, err := NewWazeroEngineWithConfig(ctx, tc.cfg)
			if err != nil {
				t.Fatalf("NewWazeroEngineWithConfig failed: %v", err)
			}
			defer engine.Close(ctx)

			if engine.runtime == nil {
				t.Error("engine runtime should not be nil")
			}
		})
	}
}

func TestCompile_Invalid(t *testing.T) {
	ctx := context.Background()
	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close(ctx)

	if _, err := eng.Compile(ctx, []byte("not wasm")); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestCompile_UnsupportedImport(t *testing.T) {
	ctx := context.Background()
	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close(ctx)

	b := wasmtest.New()
	b.Import("somewhere", "thing", nil, nil)
	_, err = eng.Compile(ctx, b.Bytes())
	if err == nil || !strings.Contains(err.Error(), "somewhere") {
		t.Fatalf("expected unsupported import error, got %v", err)
	}
}

func TestCompile_HostImports(t *testing.T) {
	inst := instantiateStub(t, wasmtest.Stub{HostImports: true, InitStatus: 0})
	if inst.Module() == nil {
		t.Fatal("expected instantiated module")
	}
}

func TestExportNames(t *testing.T) {
	ctx := context.Background()
	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close(ctx)

	mod, err := eng.Compile(ctx, wasmtest.Stub{}.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	defer mod.Close(ctx)

	names := strings.Join(mod.ExportNames(), ",")
	for _, want := range []string{"malloc", "free", "lfw_init", "lfw_build_vignetting_map"} {
		if !strings.Contains(names, want) {
			t.Errorf("export %q missing from %s", want, names)
		}
	}
}

func TestFunc_MissingExport(t *testing.T) {
	inst := instantiateStub(t, wasmtest.Stub{Omit: "lfw_dispose"})

	_, err := inst.Func("lfw_dispose", nil, lensfun.ValueVoid)
	if !stderrors.Is(err, errors.ErrLinkage) {
		t.Fatalf("expected linkage error, got %v", err)
	}
}

func TestFunc_SignatureMismatch(t *testing.T) {
	inst := instantiateStub(t, wasmtest.Stub{MismatchMods: true})

	_, err := inst.Func("lfw_available_mods",
		[]lensfun.ValueType{lensfun.ValueU32, lensfun.ValueF32}, lensfun.ValueI32)
	if !stderrors.Is(err, errors.ErrLinkage) {
		t.Fatalf("expected linkage error, got %v", err)
	}
	if !strings.Contains(err.Error(), "param 1") {
		t.Errorf("error should name the parameter: %v", err)
	}
}

func TestFunc_ArityMismatch(t *testing.T) {
	inst := instantiateStub(t, wasmtest.Stub{})

	_, err := inst.Func("lfw_init", nil, lensfun.ValueI32)
	if err == nil || !strings.Contains(err.Error(), "arity") {
		t.Fatalf("expected arity error, got %v", err)
	}

	_, err = inst.Func("lfw_dispose", nil, lensfun.ValueI32)
	if err == nil {
		t.Fatal("expected result mismatch for void export")
	}
}

func TestFunc_StringArgsFreed(t *testing.T) {
	ctx := context.Background()
	inst := instantiateStub(t, wasmtest.Stub{})

	find, err := inst.Func("lfw_find_lenses_json", []lensfun.ValueType{
		lensfun.ValueString, lensfun.ValueString, lensfun.ValueString, lensfun.ValueString, lensfun.ValueI32,
	}, lensfun.ValueU32)
	if err != nil {
		t.Fatalf("Func failed: %v", err)
	}

	ptr, err := find(ctx, "Canon", "Canon EOS R5", "Canon", "RF 24-70mm", int32(2))
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if ptr != 0 {
		t.Errorf("expected null result, got %d", ptr)
	}

	if got := global(t, inst, wasmtest.GlobalMallocCalls); got != 4 {
		t.Errorf("malloc calls = %d, want 4", got)
	}
	if got := global(t, inst, wasmtest.GlobalFreeCalls); got != 4 {
		t.Errorf("free calls = %d, want 4", got)
	}
	if got := global(t, inst, wasmtest.GlobalLastFlags); got != 2 {
		t.Errorf("flags = %d, want 2", got)
	}

	// The bump allocator never reuses memory, so the argument is still
	// readable after it was freed.
	s, err := inst.ReadString(global(t, inst, wasmtest.GlobalLastString))
	if err != nil {
		t.Fatal(err)
	}
	if s != "RF 24-70mm" {
		t.Errorf("lens model = %q", s)
	}
}

func TestFunc_EmptyStringArg(t *testing.T) {
	ctx := context.Background()
	inst := instantiateStub(t, wasmtest.Stub{})

	find, err := inst.Func("lfw_find_cameras_json", []lensfun.ValueType{
		lensfun.ValueString, lensfun.ValueString, lensfun.ValueI32,
	}, lensfun.ValueU32)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := find(ctx, "", "", 0); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	s, err := inst.ReadString(global(t, inst, wasmtest.GlobalLastString))
	if err != nil {
		t.Fatal(err)
	}
	if s != "" {
		t.Errorf("expected empty string, got %q", s)
	}
}

func TestFunc_BadArguments(t *testing.T) {
	ctx := context.Background()
	inst := instantiateStub(t, wasmtest.Stub{})

	mods, err := inst.Func("lfw_available_mods",
		[]lensfun.ValueType{lensfun.ValueU32, lensfun.ValueF32}, lensfun.ValueI32)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := mods(ctx, uint32(1)); err == nil {
		t.Error("expected arity error")
	}
	if _, err := mods(ctx, -1, float32(1)); !stderrors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("expected invalid argument for negative handle, got %v", err)
	}
	if _, err := mods(ctx, uint32(1), "1.5"); !stderrors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("expected invalid argument for string crop, got %v", err)
	}

	_, err = mods(ctx, uint32(1), "50%d")
	var lerr *errors.Error
	if !stderrors.As(err, &lerr) {
		t.Fatalf("expected *errors.Error, got %v", err)
	}
	if lerr.Detail != "cannot pass string as f32" {
		t.Errorf("Detail = %q, want coercion message verbatim", lerr.Detail)
	}
}

func TestFunc_ResultAndMemory(t *testing.T) {
	ctx := context.Background()
	inst := instantiateStub(t, wasmtest.Stub{Mods: 0x19, GeometryStatus: 0})

	mods, err := inst.Func("lfw_available_mods",
		[]lensfun.ValueType{lensfun.ValueU32, lensfun.ValueF32}, lensfun.ValueI32)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := mods(ctx, uint32(7), float32(1.5))
	if err != nil {
		t.Fatal(err)
	}
	if raw != 0x19 {
		t.Errorf("mods = %#x, want 0x19", raw)
	}

	geometry, err := inst.Func("lfw_build_geometry_map", []lensfun.ValueType{
		lensfun.ValueU32, lensfun.ValueF32, lensfun.ValueF32,
		lensfun.ValueI32, lensfun.ValueI32, lensfun.ValueI32, lensfun.ValueI32,
		lensfun.ValueU32, lensfun.ValueI32,
	}, lensfun.ValueI32)
	if err != nil {
		t.Fatal(err)
	}

	out, err := inst.Malloc(ctx, 6*4)
	if err != nil {
		t.Fatal(err)
	}
	defer inst.Free(ctx, out)

	rc, err := geometry(ctx, uint32(7), float32(50), float32(1), 4, 4, false, 2, out, 6)
	if err != nil {
		t.Fatal(err)
	}
	if rc != 0 {
		t.Fatalf("rc = %d", rc)
	}
	got, err := inst.ReadFloat32s(out, 6)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range got {
		if v != float32(wasmtest.GeometryBase+i) {
			t.Errorf("map[%d] = %v", i, v)
		}
	}
}

func TestFunc_NegativeStatus(t *testing.T) {
	ctx := context.Background()
	inst := instantiateStub(t, wasmtest.Stub{InitStatus: -1})

	initFn, err := inst.Func("lfw_init", []lensfun.ValueType{lensfun.ValueString}, lensfun.ValueI32)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := initFn(ctx, "/lensfun-db")
	if err != nil {
		t.Fatal(err)
	}
	if int32(uint32(raw)) != -1 {
		t.Errorf("status = %d, want -1", int32(uint32(raw)))
	}
}

func TestMemory_Bounds(t *testing.T) {
	inst := instantiateStub(t, wasmtest.Stub{})

	size := inst.memory.Size()
	if _, err := inst.ReadFloat32s(size-4, 2); !stderrors.Is(err, &errors.Error{Kind: errors.KindOutOfBounds}) {
		t.Errorf("expected out of bounds, got %v", err)
	}
	if err := inst.Write(size, []byte{1}); err == nil {
		t.Error("expected write error past end of memory")
	}
	if _, err := inst.ReadString(size); err == nil {
		t.Error("expected read error past end of memory")
	}
}

func TestMemory_InvalidUTF8(t *testing.T) {
	inst := instantiateStub(t, wasmtest.Stub{})

	if err := inst.Write(100, []byte{'a', 0xff, 'b', 0}); err != nil {
		t.Fatal(err)
	}
	s, err := inst.ReadString(100)
	if err != nil {
		t.Fatal(err)
	}
	if s != "a�b" {
		t.Errorf("got %q", s)
	}
}

func TestFree_Null(t *testing.T) {
	inst := instantiateStub(t, wasmtest.Stub{})
	if err := inst.Free(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	if got := global(t, inst, wasmtest.GlobalFreeCalls); got != 0 {
		t.Errorf("free calls = %d, want 0", got)
	}
}

func TestFactory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	var located []string
	locate := func(path, prefix string) string {
		located = append(located, path)
		if path == DataAsset {
			return dir
		}
		return prefix + path
	}

	factory := Factory(wasmtest.Stub{HostImports: true}.Bytes(), FactoryConfig{})
	a, err := factory(ctx, locate)
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	defer a.Close(ctx)
	b, err := factory(ctx, locate)
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	defer b.Close(ctx)

	if a.(*WazeroInstance).owner == b.(*WazeroInstance).owner {
		t.Error("factory instances must not share an engine")
	}
	if len(located) != 2 || located[0] != DataAsset {
		t.Errorf("locator calls = %v", located)
	}
}

func TestDataDir(t *testing.T) {
	dir := t.TempDir()
	file := dir + "/lensfun-core.data"
	if err := os.WriteFile(file, []byte("packed"), 0o600); err != nil {
		t.Fatal(err)
	}

	if got := dataDir(dir); got != dir {
		t.Errorf("dataDir(dir) = %q", got)
	}
	if got := dataDir(file); got != "" {
		t.Errorf("dataDir(file) = %q, want empty", got)
	}
	if got := dataDir(dir + "/missing"); got != "" {
		t.Errorf("dataDir(missing) = %q, want empty", got)
	}
	if got := dataDir(""); got != "" {
		t.Errorf("dataDir(\"\") = %q, want empty", got)
	}
}
