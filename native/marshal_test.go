package native_test

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lensfun "github.com/wippyai/lensfun-runtime"
	"github.com/wippyai/lensfun-runtime/errors"
	"github.com/wippyai/lensfun-runtime/native"
	"github.com/wippyai/lensfun-runtime/native/nativetest"
)

func TestRequiredString(t *testing.T) {
	assert.NoError(t, native.RequiredString("RF 24-70mm", "lensModel"))

	for _, v := range []string{"", "   ", "\t\n"} {
		err := native.RequiredString(v, "lensModel")
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrInvalidArgument))
		assert.Contains(t, err.Error(), "lensModel")
	}
}

func TestRequirePositiveInt(t *testing.T) {
	assert.NoError(t, native.RequirePositiveInt(1, "width"))
	assert.NoError(t, native.RequirePositiveInt(6000, "width"))

	for _, v := range []int{0, -1, -6000} {
		err := native.RequirePositiveInt(v, "width")
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrInvalidArgument))
		assert.Contains(t, err.Error(), "width")
	}
}

func TestToFlag(t *testing.T) {
	assert.Equal(t, int32(1), native.ToFlag(true))
	assert.Equal(t, int32(0), native.ToFlag(false))
}

func TestToGrid(t *testing.T) {
	tests := []struct {
		size, step, want int
	}{
		{1, 1, 1},
		{10, 1, 10},
		{10, 3, 4},
		{10, 5, 2},
		{10, 10, 1},
		{10, 20, 1},
		{6000, 8, 750},
		{1920, 1, 1920},
		{1920, 64, 30},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, native.ToGrid(tc.size, tc.step), "size=%d step=%d", tc.size, tc.step)
	}
}

func bindFree(t *testing.T, mod *nativetest.Module) lensfun.Func {
	t.Helper()
	table, err := native.Bind(mod)
	require.NoError(t, err)
	return table.Free
}

func TestParseJSONPtr_Null(t *testing.T) {
	mod := nativetest.New()
	free := bindFree(t, mod)

	lenses, err := native.ParseJSONPtr[lensfun.LensMatch](context.Background(), mod, free, 0)
	require.NoError(t, err)
	assert.NotNil(t, lenses)
	assert.Empty(t, lenses)
	assert.Zero(t, mod.Calls(native.SymFree))
}

func TestParseJSONPtr_Empty(t *testing.T) {
	ctx := context.Background()
	mod := nativetest.New()
	free := bindFree(t, mod)

	ptr, err := mod.PutString(ctx, "")
	require.NoError(t, err)

	lenses, err := native.ParseJSONPtr[lensfun.LensMatch](ctx, mod, free, ptr)
	require.NoError(t, err)
	assert.Empty(t, lenses)
	assert.Equal(t, 1, mod.Calls(native.SymFree))
	assert.Zero(t, mod.Live())
}

func TestParseJSONPtr_Valid(t *testing.T) {
	ctx := context.Background()
	mod := nativetest.New()
	free := bindFree(t, mod)

	ptr, err := mod.PutString(ctx, `[{"handle":42,"maker":"Canon","model":"EF 50mm f/1.8","score":90,`+
		`"minFocal":50,"maxFocal":50,"minAperture":1.8,"maxAperture":22,"cropFactor":1}]`)
	require.NoError(t, err)

	lenses, err := native.ParseJSONPtr[lensfun.LensMatch](ctx, mod, free, ptr)
	require.NoError(t, err)
	require.Len(t, lenses, 1)
	assert.Equal(t, lensfun.LensMatch{
		Handle:      42,
		Maker:       "Canon",
		Model:       "EF 50mm f/1.8",
		Score:       90,
		MinFocal:    50,
		MaxFocal:    50,
		MinAperture: 1.8,
		MaxAperture: 22,
		CropFactor:  1,
	}, lenses[0])
	assert.Equal(t, 1, mod.Calls(native.SymFree))
	assert.Zero(t, mod.Live())
}

func TestParseJSONPtr_Malformed(t *testing.T) {
	payloads := map[string]string{
		"truncated":   `[{"maker":"Canon"`,
		"not array":   `{"maker":"Canon"}`,
		"scalar item": `[1,2]`,
		"null handle": `[{"handle":0,"model":"x"}]`,
		"bad type":    `[{"handle":"one"}]`,
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mod := nativetest.New()
			free := bindFree(t, mod)

			ptr, err := mod.PutString(ctx, payload)
			require.NoError(t, err)

			lenses, err := native.ParseJSONPtr[lensfun.LensMatch](ctx, mod, free, ptr)
			assert.Nil(t, lenses)
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, errors.ErrDecode), "got %v", err)
			assert.Equal(t, 1, mod.Calls(native.SymFree), "payload must be freed exactly once")
			assert.Zero(t, mod.Live())
		})
	}
}

// failingReads serves allocations from the wrapped module but fails reads.
type failingReads struct {
	*nativetest.Module
	err error
}

func (f failingReads) ReadString(uint32) (string, error) { return "", f.err }

func (f failingReads) ReadFloat32s(uint32, uint32) ([]float32, error) { return nil, f.err }

func TestParseJSONPtr_ReadFailure(t *testing.T) {
	ctx := context.Background()
	mod := nativetest.New()
	free := bindFree(t, mod)

	ptr, err := mod.PutString(ctx, `[{"handle":1}]`)
	require.NoError(t, err)

	readErr := errors.OutOfBounds(ptr, 1)
	lenses, err := native.ParseJSONPtr[lensfun.LensMatch](ctx, failingReads{mod, readErr}, free, ptr)
	assert.Nil(t, lenses)
	assert.ErrorIs(t, err, readErr)
	assert.Equal(t, 1, mod.Calls(native.SymFree), "payload must be freed exactly once")
	assert.Equal(t, mod.MallocCalls(), mod.FreeCalls())
	assert.Zero(t, mod.Live())
}

func TestParseJSONPtr_Cameras(t *testing.T) {
	ctx := context.Background()
	mod := nativetest.New()
	free := bindFree(t, mod)

	ptr, err := mod.PutString(ctx, `[{"maker":"Nikon","model":"Z 6","variant":"","mount":"Nikon Z","cropFactor":1,"score":100}]`)
	require.NoError(t, err)

	cams, err := native.ParseJSONPtr[lensfun.CameraMatch](ctx, mod, free, ptr)
	require.NoError(t, err)
	require.Len(t, cams, 1)
	assert.Equal(t, "Nikon Z", cams[0].Mount)
}

func TestRunFloatMap(t *testing.T) {
	ctx := context.Background()
	mod := nativetest.New()
	table, err := native.Bind(mod)
	require.NoError(t, err)

	out, err := native.RunFloatMap(ctx, mod, native.SymBuildGeometryMap, table.BuildGeometryMap, 8,
		uint32(7), float32(50), float32(1.5), int32(4), int32(4), int32(0), int32(3))
	require.NoError(t, err)
	require.Len(t, out, 8)
	for i, v := range out {
		assert.Equal(t, float32(nativetest.GeometryBase+i), v)
	}

	assert.Equal(t, 1, mod.MallocCalls())
	assert.Equal(t, 1, mod.FreeCalls())
	assert.Zero(t, mod.Live())

	args := mod.LastArgs(native.SymBuildGeometryMap)
	require.Len(t, args, 9)
	assert.Equal(t, int32(8), args[8])
}

func TestRunFloatMap_NativeFailure(t *testing.T) {
	ctx := context.Background()
	mod := nativetest.New()
	mod.Handle(native.SymBuildTCAMap, nativetest.FillMap(nativetest.TCABase, -2))
	table, err := native.Bind(mod)
	require.NoError(t, err)

	out, err := native.RunFloatMap(ctx, mod, native.SymBuildTCAMap, table.BuildTCAMap, 12,
		uint32(7), float32(50), float32(1.5), int32(4), int32(4), int32(0), int32(3))
	assert.Nil(t, out)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrNativeComputation))
	assert.Contains(t, err.Error(), "code=-2")

	var lerr *errors.Error
	require.True(t, stderrors.As(err, &lerr))
	assert.Equal(t, int32(-2), lerr.Code)

	assert.Equal(t, 1, mod.FreeCalls())
	assert.Zero(t, mod.Live())
}

func TestRunFloatMap_ReadFailure(t *testing.T) {
	ctx := context.Background()
	mod := nativetest.New()
	table, err := native.Bind(mod)
	require.NoError(t, err)

	readErr := errors.Decode("short read", nil)
	out, err := native.RunFloatMap(ctx, failingReads{mod, readErr}, native.SymBuildVignettingMap, table.BuildVignettingMap, 6,
		uint32(7), float32(50), float32(2.8), float32(1000), int32(2), int32(1), int32(0), int32(3))
	assert.Nil(t, out)
	assert.ErrorIs(t, err, readErr)
	assert.Equal(t, 1, mod.Calls(native.SymBuildVignettingMap))
	assert.Equal(t, 1, mod.MallocCalls())
	assert.Equal(t, 1, mod.FreeCalls())
	assert.Zero(t, mod.Live())
}

func TestRunFloatMap_CallError(t *testing.T) {
	ctx := context.Background()
	mod := nativetest.New()
	boom := stderrors.New("trap")
	mod.Handle(native.SymBuildGeometryMap, func(context.Context, *nativetest.Module, []any) (uint64, error) {
		return 0, boom
	})
	table, err := native.Bind(mod)
	require.NoError(t, err)

	_, err = native.RunFloatMap(ctx, mod, native.SymBuildGeometryMap, table.BuildGeometryMap, 2,
		uint32(7), float32(50), float32(1), int32(1), int32(1), int32(0), int32(1))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, mod.FreeCalls())
	assert.Zero(t, mod.Live())
}

func TestRunFloatMap_AllocationFailure(t *testing.T) {
	ctx := context.Background()
	mod := nativetest.New()
	table, err := native.Bind(mod)
	require.NoError(t, err)
	mod.FailMalloc = true

	_, err = native.RunFloatMap(ctx, mod, native.SymBuildGeometryMap, table.BuildGeometryMap, 2,
		uint32(7), float32(50), float32(1), int32(1), int32(1), int32(0), int32(1))
	require.Error(t, err)
	assert.Zero(t, mod.Calls(native.SymBuildGeometryMap))
	assert.Zero(t, mod.FreeCalls())
}

func TestRunFloatMap_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mod := nativetest.New()
	table, err := native.Bind(mod)
	require.NoError(t, err)

	_, err = native.RunFloatMap(ctx, mod, native.SymBuildGeometryMap, table.BuildGeometryMap, 2)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, mod.MallocCalls())
	assert.Zero(t, mod.TotalCalls())
}

func TestRunFloatMap_InvalidSize(t *testing.T) {
	mod := nativetest.New()
	table, err := native.Bind(mod)
	require.NoError(t, err)

	_, err = native.RunFloatMap(context.Background(), mod, native.SymBuildGeometryMap, table.BuildGeometryMap, 0)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidArgument))
	assert.Zero(t, mod.MallocCalls())
}
