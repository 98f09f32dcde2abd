package native_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lensfun "github.com/wippyai/lensfun-runtime"
	"github.com/wippyai/lensfun-runtime/errors"
	"github.com/wippyai/lensfun-runtime/native"
	"github.com/wippyai/lensfun-runtime/native/nativetest"
)

func TestParseSignatures(t *testing.T) {
	sigs, err := native.ParseSignatures(native.Signatures)
	require.NoError(t, err)
	assert.Len(t, sigs, 9)

	tests := []struct {
		symbol string
		params []lensfun.ValueType
		result lensfun.ValueType
	}{
		{native.SymInit, []lensfun.ValueType{lensfun.ValueString}, lensfun.ValueI32},
		{native.SymDispose, nil, lensfun.ValueVoid},
		{native.SymFindLenses, []lensfun.ValueType{
			lensfun.ValueString, lensfun.ValueString, lensfun.ValueString, lensfun.ValueString, lensfun.ValueI32,
		}, lensfun.ValueU32},
		{native.SymFindCameras, []lensfun.ValueType{
			lensfun.ValueString, lensfun.ValueString, lensfun.ValueI32,
		}, lensfun.ValueU32},
		{native.SymAvailableMods, []lensfun.ValueType{lensfun.ValueU32, lensfun.ValueF32}, lensfun.ValueI32},
		{native.SymBuildGeometryMap, []lensfun.ValueType{
			lensfun.ValueU32, lensfun.ValueF32, lensfun.ValueF32,
			lensfun.ValueI32, lensfun.ValueI32, lensfun.ValueI32, lensfun.ValueI32,
			lensfun.ValueU32, lensfun.ValueI32,
		}, lensfun.ValueI32},
		{native.SymBuildVignettingMap, []lensfun.ValueType{
			lensfun.ValueU32, lensfun.ValueF32, lensfun.ValueF32, lensfun.ValueF32, lensfun.ValueF32,
			lensfun.ValueI32, lensfun.ValueI32, lensfun.ValueI32, lensfun.ValueI32,
			lensfun.ValueU32, lensfun.ValueI32,
		}, lensfun.ValueI32},
		{native.SymFree, []lensfun.ValueType{lensfun.ValueU32}, lensfun.ValueVoid},
	}

	for _, tc := range tests {
		t.Run(tc.symbol, func(t *testing.T) {
			sig, ok := sigs[tc.symbol]
			require.True(t, ok)
			assert.Equal(t, tc.params, sig.Params)
			assert.Equal(t, tc.result, sig.Result)
		})
	}

	assert.Equal(t, sigs[native.SymBuildGeometryMap], sigs[native.SymBuildTCAMap])
}

func TestParseSignatures_Errors(t *testing.T) {
	_, err := native.ParseSignatures("nothing here")
	assert.True(t, stderrors.Is(err, errors.ErrLinkage))

	_, err = native.ParseSignatures("f: func(a: list<u8>) -> s32;")
	assert.True(t, stderrors.Is(err, errors.ErrLinkage))

	_, err = native.ParseSignatures("f: func(a: s32) -> u64;")
	assert.True(t, stderrors.Is(err, errors.ErrLinkage))
}

func TestBind(t *testing.T) {
	mod := nativetest.New()
	table, err := native.Bind(mod)
	require.NoError(t, err)

	assert.NotNil(t, table.Init)
	assert.NotNil(t, table.Dispose)
	assert.NotNil(t, table.FindLenses)
	assert.NotNil(t, table.FindCameras)
	assert.NotNil(t, table.AvailableMods)
	assert.NotNil(t, table.BuildGeometryMap)
	assert.NotNil(t, table.BuildTCAMap)
	assert.NotNil(t, table.BuildVignettingMap)
	assert.NotNil(t, table.Free)

	assert.Zero(t, mod.TotalCalls(), "binding must not call into the module")
}

func TestBind_MissingSymbol(t *testing.T) {
	mod := nativetest.New()
	mod.Unbound[native.SymBuildTCAMap] = true

	table, err := native.Bind(mod)
	assert.Nil(t, table)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrLinkage))
	assert.Contains(t, err.Error(), native.SymBuildTCAMap)
}
