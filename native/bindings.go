package native

import (
	"regexp"
	"strings"

	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	lensfun "github.com/wippyai/lensfun-runtime"
	"github.com/wippyai/lensfun-runtime/errors"
)

// Signatures declares the native entry points. Each line is a WIT function
// type keyed by the exported symbol; pointers are u32.
const Signatures = `
lfw_init: func(db-path: string) -> s32;
lfw_dispose: func();
lfw_find_lenses_json: func(camera-maker: string, camera-model: string, lens-maker: string, lens-model: string, flags: s32) -> u32;
lfw_find_cameras_json: func(maker: string, model: string, flags: s32) -> u32;
lfw_available_mods: func(lens: u32, crop: f32) -> s32;
lfw_build_geometry_map: func(lens: u32, focal: f32, crop: f32, width: s32, height: s32, reverse: s32, step: s32, out: u32, len: s32) -> s32;
lfw_build_tca_map: func(lens: u32, focal: f32, crop: f32, width: s32, height: s32, reverse: s32, step: s32, out: u32, len: s32) -> s32;
lfw_build_vignetting_map: func(lens: u32, focal: f32, crop: f32, aperture: f32, distance: f32, width: s32, height: s32, reverse: s32, step: s32, out: u32, len: s32) -> s32;
lfw_free: func(ptr: u32);
`

// Native symbol names.
const (
	SymInit               = "lfw_init"
	SymDispose            = "lfw_dispose"
	SymFindLenses         = "lfw_find_lenses_json"
	SymFindCameras        = "lfw_find_cameras_json"
	SymAvailableMods      = "lfw_available_mods"
	SymBuildGeometryMap   = "lfw_build_geometry_map"
	SymBuildTCAMap        = "lfw_build_tca_map"
	SymBuildVignettingMap = "lfw_build_vignetting_map"
	SymFree               = "lfw_free"
)

// Table holds the bound native entry points. It is built once per module
// handle and never mutated.
type Table struct {
	Init               lensfun.Func
	Dispose            lensfun.Func
	FindLenses         lensfun.Func
	FindCameras        lensfun.Func
	AvailableMods      lensfun.Func
	BuildGeometryMap   lensfun.Func
	BuildTCAMap        lensfun.Func
	BuildVignettingMap lensfun.Func
	Free               lensfun.Func
}

// Signature is a parsed native function type.
type Signature struct {
	Params []lensfun.ValueType
	Result lensfun.ValueType
}

var funcPattern = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*func\s*\(([^)]*)\)(?:\s*->\s*([^;]+))?`)

// ParseSignatures reads WIT-style function declarations.
func ParseSignatures(text string) (map[string]Signature, error) {
	sigs := make(map[string]Signature)

	for _, match := range funcPattern.FindAllStringSubmatch(text, -1) {
		name := match[1]
		var sig Signature

		if params := strings.TrimSpace(match[2]); params != "" {
			for _, p := range strings.Split(params, ",") {
				typStr := p
				if idx := strings.LastIndex(p, ":"); idx != -1 {
					typStr = p[idx+1:]
				}
				vt, err := parseValueType(typStr)
				if err != nil {
					return nil, errors.New(errors.PhaseBind, errors.KindLinkage).
						Symbol(name).
						Detail("parse param type %q", strings.TrimSpace(typStr)).
						Cause(err).
						Build()
				}
				sig.Params = append(sig.Params, vt)
			}
		}

		if result := strings.TrimSpace(match[3]); result != "" && result != "()" {
			vt, err := parseValueType(result)
			if err != nil {
				return nil, errors.New(errors.PhaseBind, errors.KindLinkage).
					Symbol(name).
					Detail("parse result type %q", result).
					Cause(err).
					Build()
			}
			sig.Result = vt
		}

		sigs[name] = sig
	}

	if len(sigs) == 0 {
		return nil, errors.Linkage("", "no functions found in signature text")
	}
	return sigs, nil
}

func parseValueType(s string) (lensfun.ValueType, error) {
	t, err := wit.ParseType(strings.TrimSpace(s))
	if err != nil {
		return lensfun.ValueVoid, err
	}
	switch t.(type) {
	case wit.String:
		return lensfun.ValueString, nil
	case wit.S32:
		return lensfun.ValueI32, nil
	case wit.U32:
		return lensfun.ValueU32, nil
	case wit.F32:
		return lensfun.ValueF32, nil
	}
	return lensfun.ValueVoid, errors.New(errors.PhaseBind, errors.KindLinkage).
		Detail("type %q cannot cross the native boundary", strings.TrimSpace(s)).
		Build()
}

// Bind resolves every entry point of Signatures against mod. A missing or
// mismatched symbol fails the whole table.
func Bind(mod lensfun.Module) (*Table, error) {
	sigs, err := ParseSignatures(Signatures)
	if err != nil {
		return nil, err
	}

	t := &Table{}
	slots := []struct {
		fn     *lensfun.Func
		symbol string
	}{
		{&t.Init, SymInit},
		{&t.Dispose, SymDispose},
		{&t.FindLenses, SymFindLenses},
		{&t.FindCameras, SymFindCameras},
		{&t.AvailableMods, SymAvailableMods},
		{&t.BuildGeometryMap, SymBuildGeometryMap},
		{&t.BuildTCAMap, SymBuildTCAMap},
		{&t.BuildVignettingMap, SymBuildVignettingMap},
		{&t.Free, SymFree},
	}

	for _, slot := range slots {
		sig, ok := sigs[slot.symbol]
		if !ok {
			return nil, errors.Linkage(slot.symbol, "no declared signature")
		}
		fn, err := mod.Func(slot.symbol, sig.Params, sig.Result)
		if err != nil {
			return nil, err
		}
		*slot.fn = fn
		Logger().Debug("bound native symbol",
			zap.String("symbol", slot.symbol),
			zap.Int("params", len(sig.Params)),
			zap.Stringer("result", sig.Result))
	}

	return t, nil
}
