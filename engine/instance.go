package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	lensfun "github.com/wippyai/lensfun-runtime"
	"github.com/wippyai/lensfun-runtime/errors"
)

// Allocator exports, tried in order.
var (
	mallocExports = []string{"malloc", "emscripten_builtin_malloc"}
	freeExports   = []string{"free", "emscripten_builtin_free"}
)

// WazeroInstance is a running native module. It implements lensfun.Module.
// It is NOT safe for concurrent use from multiple goroutines.
type WazeroInstance struct {
	instance api.Module
	memory   *WazeroMemory
	mallocFn api.Function
	freeFn   api.Function
	// owner is closed together with the instance when the instance was
	// created by a Factory.
	owner    *WazeroEngine
	stackBuf []uint64
}

func newInstance(instance api.Module) *WazeroInstance {
	inst := &WazeroInstance{
		instance: instance,
		stackBuf: make([]uint64, 1),
	}

	if mem := instance.Memory(); mem != nil {
		inst.memory = &WazeroMemory{mem: mem}
	}

	for _, name := range mallocExports {
		if fn := instance.ExportedFunction(name); fn != nil {
			inst.mallocFn = fn
			break
		}
	}
	for _, name := range freeExports {
		if fn := instance.ExportedFunction(name); fn != nil {
			inst.freeFn = fn
			break
		}
	}

	return inst
}

// Module returns the underlying wazero module.
func (i *WazeroInstance) Module() api.Module {
	return i.instance
}

// Malloc allocates size bytes of linear memory.
func (i *WazeroInstance) Malloc(ctx context.Context, size uint32) (uint32, error) {
	if i.mallocFn == nil {
		return 0, errors.Linkage("malloc", "module exports no allocator")
	}

	i.stackBuf[0] = api.EncodeU32(size)
	if err := i.mallocFn.CallWithStack(ctx, i.stackBuf[:1]); err != nil {
		return 0, errors.AllocationFailed(size, err)
	}
	ptr := api.DecodeU32(i.stackBuf[0])
	if ptr == 0 {
		return 0, errors.AllocationFailed(size, nil)
	}
	return ptr, nil
}

// Free releases memory returned by Malloc. Freeing 0 is a no-op.
func (i *WazeroInstance) Free(ctx context.Context, ptr uint32) error {
	if ptr == 0 {
		return nil
	}
	if i.freeFn == nil {
		return errors.Linkage("free", "module exports no deallocator")
	}

	i.stackBuf[0] = api.EncodeU32(ptr)
	if err := i.freeFn.CallWithStack(ctx, i.stackBuf[:1]); err != nil {
		Logger().Warn("free failed",
			zap.Uint32("ptr", ptr),
			zap.Error(err))
		return errors.Call("free", err)
	}
	return nil
}

// ReadString decodes the NUL-terminated string at ptr.
func (i *WazeroInstance) ReadString(ptr uint32) (string, error) {
	if i.memory == nil {
		return "", errors.Linkage("memory", "module exports no memory")
	}
	return i.memory.ReadCString(ptr)
}

// ReadFloat32s copies n floats starting at byte offset ptr.
func (i *WazeroInstance) ReadFloat32s(ptr, n uint32) ([]float32, error) {
	if i.memory == nil {
		return nil, errors.Linkage("memory", "module exports no memory")
	}
	return i.memory.ReadFloat32s(ptr, n)
}

// Write copies data into linear memory at offset.
func (i *WazeroInstance) Write(offset uint32, data []byte) error {
	if i.memory == nil {
		return errors.Linkage("memory", "module exports no memory")
	}
	return i.memory.Write(offset, data)
}

// Func binds an exported function after checking that its wasm type
// matches the declared signature.
func (i *WazeroInstance) Func(symbol string, params []lensfun.ValueType, result lensfun.ValueType) (lensfun.Func, error) {
	fn := i.instance.ExportedFunction(symbol)
	if fn == nil {
		return nil, errors.Linkage(symbol, "symbol is not exported")
	}
	if err := checkSignature(fn.Definition(), params, result); err != nil {
		return nil, errors.Linkage(symbol, err.Error())
	}

	hasStrings := false
	for _, p := range params {
		if p == lensfun.ValueString {
			hasStrings = true
			break
		}
	}
	if hasStrings && i.mallocFn == nil {
		return nil, errors.Linkage(symbol, "string parameters need an exported malloc")
	}

	declared := append([]lensfun.ValueType(nil), params...)
	return func(ctx context.Context, args ...any) (uint64, error) {
		return i.call(ctx, symbol, fn, declared, result, args)
	}, nil
}

func (i *WazeroInstance) call(ctx context.Context, symbol string, fn api.Function, params []lensfun.ValueType, result lensfun.ValueType, args []any) (raw uint64, err error) {
	if len(args) != len(params) {
		return 0, errors.Linkage(symbol, fmt.Sprintf("expected %d arguments, got %d", len(params), len(args)))
	}

	stack := make([]uint64, len(params))
	var scratch []uint32
	defer func() {
		for _, ptr := range scratch {
			if ferr := i.Free(ctx, ptr); ferr != nil && err == nil {
				err = ferr
			}
		}
	}()

	for idx, vt := range params {
		if vt == lensfun.ValueString {
			ptr, serr := i.writeCString(ctx, args[idx])
			if serr != nil {
				return 0, errors.New(errors.PhaseNative, errors.KindInvalidArgument).
					Symbol(symbol).
					Field(fmt.Sprintf("arg%d", idx)).
					Cause(serr).
					Build()
			}
			scratch = append(scratch, ptr)
			stack[idx] = api.EncodeU32(ptr)
			continue
		}
		v, cerr := coerce(args[idx], vt)
		if cerr != nil {
			return 0, errors.New(errors.PhaseNative, errors.KindInvalidArgument).
				Symbol(symbol).
				Field(fmt.Sprintf("arg%d", idx)).
				Detail("%s", cerr).
				Build()
		}
		stack[idx] = v
	}

	results, cerr := fn.Call(ctx, stack...)
	if cerr != nil {
		return 0, errors.Call(symbol, cerr)
	}
	if result == lensfun.ValueVoid || len(results) == 0 {
		return 0, nil
	}
	return results[0] & math.MaxUint32, nil
}

// writeCString copies s plus a NUL terminator into freshly allocated memory.
func (i *WazeroInstance) writeCString(ctx context.Context, arg any) (uint32, error) {
	s, ok := arg.(string)
	if !ok {
		return 0, fmt.Errorf("expected string, got %T", arg)
	}
	size := uint32(len(s) + 1)
	ptr, err := i.Malloc(ctx, size)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, size)
	copy(buf, s)
	if err := i.Write(ptr, buf); err != nil {
		_ = i.Free(ctx, ptr)
		return 0, err
	}
	return ptr, nil
}

// Close closes the instance and, for factory-created instances, the
// engine that owns it.
func (i *WazeroInstance) Close(ctx context.Context) error {
	var firstErr error
	if i.instance != nil {
		if err := i.instance.Close(ctx); err != nil {
			firstErr = err
		}
		i.instance = nil
	}
	if i.owner != nil {
		if err := i.owner.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		i.owner = nil
	}
	i.memory = nil
	i.mallocFn = nil
	i.freeFn = nil
	return firstErr
}

// checkSignature compares declared value types with the wasm function type.
func checkSignature(def api.FunctionDefinition, params []lensfun.ValueType, result lensfun.ValueType) error {
	got := def.ParamTypes()
	if len(got) != len(params) {
		return fmt.Errorf("arity mismatch: declared %d params, export has %d", len(params), len(got))
	}
	for idx, vt := range params {
		if want := coreType(vt); got[idx] != want {
			return fmt.Errorf("param %d: declared %s (%s), export has %s",
				idx, vt, api.ValueTypeName(want), api.ValueTypeName(got[idx]))
		}
	}

	results := def.ResultTypes()
	if result == lensfun.ValueVoid {
		if len(results) != 0 {
			return fmt.Errorf("declared void, export returns %d values", len(results))
		}
		return nil
	}
	if len(results) != 1 {
		return fmt.Errorf("declared %s result, export returns %d values", result, len(results))
	}
	if want := coreType(result); results[0] != want {
		return fmt.Errorf("result: declared %s, export has %s", result, api.ValueTypeName(results[0]))
	}
	return nil
}

func coreType(vt lensfun.ValueType) api.ValueType {
	if vt == lensfun.ValueF32 {
		return api.ValueTypeF32
	}
	return api.ValueTypeI32
}

// coerce converts a Go value to the stack encoding of vt.
func coerce(arg any, vt lensfun.ValueType) (uint64, error) {
	switch vt {
	case lensfun.ValueF32:
		switch v := arg.(type) {
		case float32:
			return api.EncodeF32(v), nil
		case float64:
			return api.EncodeF32(float32(v)), nil
		case int:
			return api.EncodeF32(float32(v)), nil
		case int32:
			return api.EncodeF32(float32(v)), nil
		}
	case lensfun.ValueI32:
		switch v := arg.(type) {
		case int32:
			return api.EncodeI32(v), nil
		case int:
			if v < math.MinInt32 || v > math.MaxInt32 {
				return 0, fmt.Errorf("value %d overflows s32", v)
			}
			return api.EncodeI32(int32(v)), nil
		case bool:
			if v {
				return 1, nil
			}
			return 0, nil
		}
	case lensfun.ValueU32:
		switch v := arg.(type) {
		case uint32:
			return api.EncodeU32(v), nil
		case int:
			if v < 0 || uint64(v) > math.MaxUint32 {
				return 0, fmt.Errorf("value %d overflows u32", v)
			}
			return api.EncodeU32(uint32(v)), nil
		}
	}
	return 0, fmt.Errorf("cannot pass %T as %s", arg, vt)
}

var _ lensfun.Module = (*WazeroInstance)(nil)
