package runtime

import (
	"context"

	"go.uber.org/zap"

	lensfun "github.com/wippyai/lensfun-runtime"
	"github.com/wippyai/lensfun-runtime/errors"
	"github.com/wippyai/lensfun-runtime/native"
)

// Session is a live native correction session. It owns the module handle
// and its native database state until Dispose.
//
// A Session is NOT safe for concurrent use; callers serialize access.
type Session struct {
	mod      lensfun.Module
	fns      *native.Table
	disposed bool
}

func newSession(mod lensfun.Module, fns *native.Table) *Session {
	return &Session{mod: mod, fns: fns}
}

// Disposed reports whether Dispose has been called.
func (s *Session) Disposed() bool {
	return s.disposed
}

func (s *Session) ensureAlive() error {
	if s.disposed {
		return errors.Disposed("session")
	}
	return nil
}

// Dispose releases the native database and closes the module. Later calls
// are no-ops.
func (s *Session) Dispose(ctx context.Context) error {
	if s.disposed {
		return nil
	}
	s.disposed = true

	_, err := s.fns.Dispose(ctx)
	if cerr := s.mod.Close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	Logger().Debug("session disposed", zap.Error(err))
	return err
}

// SearchLenses finds lenses matching in. LensModel is required; SearchFlags
// defaults to lensfun.SearchSortAndUniquify.
func (s *Session) SearchLenses(ctx context.Context, in lensfun.SearchLensesInput) ([]lensfun.LensMatch, error) {
	if err := s.ensureAlive(); err != nil {
		return nil, err
	}
	if err := native.RequiredString(in.LensModel, "lensModel"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	flags := lensfun.SearchSortAndUniquify
	if in.SearchFlags != nil {
		flags = *in.SearchFlags
	}

	raw, err := s.fns.FindLenses(ctx, in.CameraMaker, in.CameraModel, in.LensMaker, in.LensModel, flags)
	if err != nil {
		return nil, err
	}
	return native.ParseJSONPtr[lensfun.LensMatch](ctx, s.mod, s.fns.Free, uint32(raw))
}

// SearchCameras finds cameras matching in. SearchFlags defaults to 0.
func (s *Session) SearchCameras(ctx context.Context, in lensfun.SearchCamerasInput) ([]lensfun.CameraMatch, error) {
	if err := s.ensureAlive(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var flags int32
	if in.SearchFlags != nil {
		flags = *in.SearchFlags
	}

	raw, err := s.fns.FindCameras(ctx, in.Maker, in.Model, flags)
	if err != nil {
		return nil, err
	}
	return native.ParseJSONPtr[lensfun.CameraMatch](ctx, s.mod, s.fns.Free, uint32(raw))
}

// AvailableModifications returns the correction categories the lens
// supports at crop. An unknown handle yields 0.
func (s *Session) AvailableModifications(ctx context.Context, lensHandle uint32, crop float32) (lensfun.Modifications, error) {
	if err := s.ensureAlive(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	raw, err := s.fns.AvailableMods(ctx, lensHandle, crop)
	if err != nil {
		return 0, err
	}
	return lensfun.Modifications(int32(uint32(raw))), nil
}

// BuildCorrectionMaps samples the geometry map and, on request, the TCA
// and vignetting maps. Any failure discards every map.
func (s *Session) BuildCorrectionMaps(ctx context.Context, in lensfun.CorrectionInput) (*lensfun.CorrectionMaps, error) {
	if err := s.ensureAlive(); err != nil {
		return nil, err
	}
	if err := native.RequirePositiveInt(in.Width, "width"); err != nil {
		return nil, err
	}
	if err := native.RequirePositiveInt(in.Height, "height"); err != nil {
		return nil, err
	}
	step := in.Step
	if step == 0 {
		step = 1
	}
	if err := native.RequirePositiveInt(step, "step"); err != nil {
		return nil, err
	}
	if in.IncludeVignetting && in.Aperture == nil {
		return nil, errors.InvalidArgument("aperture", "is required when vignetting is requested")
	}

	gridW := native.ToGrid(in.Width, step)
	gridH := native.ToGrid(in.Height, step)
	points := gridW * gridH

	width, height := int32(in.Width), int32(in.Height)
	reverse := native.ToFlag(in.Reverse)

	geometry, err := native.RunFloatMap(ctx, s.mod, native.SymBuildGeometryMap, s.fns.BuildGeometryMap,
		points*2,
		in.LensHandle, in.Focal, in.Crop, width, height, reverse, int32(step))
	if err != nil {
		return nil, err
	}

	maps := &lensfun.CorrectionMaps{
		GridWidth:  gridW,
		GridHeight: gridH,
		Step:       step,
		Geometry:   geometry,
	}

	if in.IncludeTCA {
		maps.TCA, err = native.RunFloatMap(ctx, s.mod, native.SymBuildTCAMap, s.fns.BuildTCAMap,
			points*6,
			in.LensHandle, in.Focal, in.Crop, width, height, reverse, int32(step))
		if err != nil {
			return nil, err
		}
	}

	if in.IncludeVignetting {
		distance := lensfun.DefaultVignettingDistance
		if in.Distance != nil {
			distance = *in.Distance
		}
		maps.Vignetting, err = native.RunFloatMap(ctx, s.mod, native.SymBuildVignettingMap, s.fns.BuildVignettingMap,
			points*3,
			in.LensHandle, in.Focal, in.Crop, *in.Aperture, distance, width, height, reverse, int32(step))
		if err != nil {
			return nil, err
		}
	}

	Logger().Debug("correction maps built",
		zap.Uint32("lens", in.LensHandle),
		zap.Int("gridWidth", gridW),
		zap.Int("gridHeight", gridH),
		zap.Bool("tca", in.IncludeTCA),
		zap.Bool("vignetting", in.IncludeVignetting))
	return maps, nil
}
