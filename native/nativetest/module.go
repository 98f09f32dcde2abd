// Package nativetest provides an in-memory lensfun.Module for tests.
//
// Module keeps a Go byte slice as linear memory, tracks every allocation,
// and dispatches native symbols to Go closures. Its defaults mirror a
// healthy native build: init succeeds, searches return null, and map
// builders fill out[i] with float32(base+i).
package nativetest

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	lensfun "github.com/wippyai/lensfun-runtime"
	"github.com/wippyai/lensfun-runtime/errors"
)

// Map fill bases used by the default builders.
const (
	GeometryBase   = 0
	TCABase        = 1000
	VignettingBase = 2000
)

const memorySize = 1 << 20

// Impl implements a native symbol. String parameters arrive as Go strings.
type Impl func(ctx context.Context, m *Module, args []any) (uint64, error)

// Module is a fake native module handle.
type Module struct {
	mu    sync.Mutex
	mem   []byte
	next  uint32
	live  map[uint32]uint32
	impls map[string]Impl
	calls map[string]int
	args  map[string][]any

	mallocCalls int
	freeCalls   int
	closeCalls  int

	// FailMalloc makes every allocation fail.
	FailMalloc bool
	// Unbound hides symbols from Func.
	Unbound map[string]bool
}

// New returns a module with the default symbol set.
func New() *Module {
	m := &Module{
		mem:     make([]byte, memorySize),
		next:    16,
		live:    make(map[uint32]uint32),
		impls:   make(map[string]Impl),
		calls:   make(map[string]int),
		args:    make(map[string][]any),
		Unbound: make(map[string]bool),
	}

	m.ReturnStatus("lfw_init", 0)
	m.Handle("lfw_dispose", func(context.Context, *Module, []any) (uint64, error) { return 0, nil })
	m.ReturnStatus("lfw_find_lenses_json", 0)
	m.ReturnStatus("lfw_find_cameras_json", 0)
	m.ReturnStatus("lfw_available_mods", 0)
	m.Handle("lfw_build_geometry_map", FillMap(GeometryBase, 0))
	m.Handle("lfw_build_tca_map", FillMap(TCABase, 0))
	m.Handle("lfw_build_vignetting_map", FillMap(VignettingBase, 0))
	m.Handle("lfw_free", func(ctx context.Context, m *Module, args []any) (uint64, error) {
		return 0, m.Free(ctx, args[0].(uint32))
	})
	return m
}

// Handle installs impl for symbol.
func (m *Module) Handle(symbol string, impl Impl) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.impls[symbol] = impl
}

// ReturnStatus makes symbol return code.
func (m *Module) ReturnStatus(symbol string, code int32) {
	m.Handle(symbol, func(context.Context, *Module, []any) (uint64, error) {
		return uint64(uint32(code)), nil
	})
}

// ReturnJSON makes symbol return a freshly allocated copy of payload on
// every call, the way the native search functions do.
func (m *Module) ReturnJSON(symbol, payload string) {
	m.Handle(symbol, func(ctx context.Context, m *Module, _ []any) (uint64, error) {
		ptr, err := m.PutString(ctx, payload)
		return uint64(ptr), err
	})
}

// FillMap returns a map builder that writes float32(base+i) to every slot
// and then reports status. The output pointer and length are the last two
// arguments.
func FillMap(base int, status int32) Impl {
	return func(_ context.Context, m *Module, args []any) (uint64, error) {
		out := args[len(args)-2].(uint32)
		n := args[len(args)-1].(int32)
		vals := make([]float32, n)
		for i := range vals {
			vals[i] = float32(base + i)
		}
		if err := m.WriteFloat32s(out, vals); err != nil {
			return 0, err
		}
		return uint64(uint32(status)), nil
	}
}

// PutString allocates a NUL-terminated copy of s.
func (m *Module) PutString(ctx context.Context, s string) (uint32, error) {
	ptr, err := m.Malloc(ctx, uint32(len(s)+1))
	if err != nil {
		return 0, err
	}
	buf := append([]byte(s), 0)
	return ptr, m.Write(ptr, buf)
}

// WriteFloat32s stores vals little-endian at ptr.
func (m *Module) WriteFloat32s(ptr uint32, vals []float32) error {
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return m.Write(ptr, buf)
}

// Malloc implements lensfun.Allocator with an 8-byte aligned bump allocator.
func (m *Module) Malloc(_ context.Context, size uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mallocCalls++
	if m.FailMalloc {
		return 0, errors.AllocationFailed(size, nil)
	}
	if uint64(m.next)+uint64(size) > uint64(len(m.mem)) {
		return 0, errors.AllocationFailed(size, fmt.Errorf("out of memory"))
	}
	ptr := m.next
	m.next = (m.next + size + 7) &^ 7
	m.live[ptr] = size
	return ptr, nil
}

// Free implements lensfun.Allocator. Freeing an unknown pointer fails.
func (m *Module) Free(_ context.Context, ptr uint32) error {
	if ptr == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.freeCalls++
	if _, ok := m.live[ptr]; !ok {
		return errors.New(errors.PhaseMemory, errors.KindAllocation).
			Value(ptr).
			Detail("free of unallocated pointer %d", ptr).
			Build()
	}
	delete(m.live, ptr)
	return nil
}

// ReadString implements lensfun.Memory.
func (m *Module) ReadString(ptr uint32) (string, error) {
	if ptr >= uint32(len(m.mem)) {
		return "", errors.OutOfBounds(ptr, 1)
	}
	end := bytes.IndexByte(m.mem[ptr:], 0)
	if end < 0 {
		return "", errors.OutOfBounds(ptr, uint32(len(m.mem))-ptr)
	}
	return string(m.mem[ptr : ptr+uint32(end)]), nil
}

// ReadFloat32s implements lensfun.Memory.
func (m *Module) ReadFloat32s(ptr, n uint32) ([]float32, error) {
	if uint64(ptr)+uint64(n)*4 > uint64(len(m.mem)) {
		return nil, errors.OutOfBounds(ptr, n*4)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(m.mem[ptr+uint32(i)*4:]))
	}
	return out, nil
}

// Write implements lensfun.Memory.
func (m *Module) Write(offset uint32, data []byte) error {
	if uint64(offset)+uint64(len(data)) > uint64(len(m.mem)) {
		return errors.OutOfBounds(offset, uint32(len(data)))
	}
	copy(m.mem[offset:], data)
	return nil
}

// Func implements lensfun.Module. Calls are recorded per symbol.
func (m *Module) Func(symbol string, params []lensfun.ValueType, result lensfun.ValueType) (lensfun.Func, error) {
	m.mu.Lock()
	impl, ok := m.impls[symbol]
	hidden := m.Unbound[symbol]
	m.mu.Unlock()
	if !ok || hidden {
		return nil, errors.Linkage(symbol, "symbol is not exported")
	}

	declared := append([]lensfun.ValueType(nil), params...)
	return func(ctx context.Context, args ...any) (uint64, error) {
		if len(args) != len(declared) {
			return 0, errors.Linkage(symbol, fmt.Sprintf("expected %d arguments, got %d", len(declared), len(args)))
		}
		for i, vt := range declared {
			if err := checkArg(args[i], vt); err != nil {
				return 0, errors.New(errors.PhaseNative, errors.KindInvalidArgument).
					Symbol(symbol).
					Field(fmt.Sprintf("arg%d", i)).
					Detail("%s", err).
					Build()
			}
		}

		m.mu.Lock()
		m.calls[symbol]++
		m.args[symbol] = append([]any(nil), args...)
		m.mu.Unlock()

		raw, err := impl(ctx, m, args)
		if err != nil {
			return 0, err
		}
		if result == lensfun.ValueVoid {
			return 0, nil
		}
		return raw & math.MaxUint32, nil
	}, nil
}

func checkArg(arg any, vt lensfun.ValueType) error {
	ok := false
	switch vt {
	case lensfun.ValueString:
		_, ok = arg.(string)
	case lensfun.ValueI32:
		_, ok = arg.(int32)
	case lensfun.ValueU32:
		_, ok = arg.(uint32)
	case lensfun.ValueF32:
		_, ok = arg.(float32)
	}
	if !ok {
		return fmt.Errorf("cannot pass %T as %s", arg, vt)
	}
	return nil
}

// Close implements lensfun.Module.
func (m *Module) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return nil
}

// Calls returns how many times symbol was invoked.
func (m *Module) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

// LastArgs returns the arguments of the latest call to symbol.
func (m *Module) LastArgs(symbol string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.args[symbol]
}

// TotalCalls returns the number of native calls across all symbols.
func (m *Module) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

// Live returns the number of outstanding allocations.
func (m *Module) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// MallocCalls returns the number of Malloc calls.
func (m *Module) MallocCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mallocCalls
}

// FreeCalls returns the number of Free calls with a non-null pointer.
func (m *Module) FreeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freeCalls
}

// CloseCalls returns how many times Close was called.
func (m *Module) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

var _ lensfun.Module = (*Module)(nil)
