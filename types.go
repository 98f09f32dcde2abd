package lensfun

import (
	"strings"

	"github.com/wippyai/lensfun-runtime/errors"
)

// Modifications is a bitmask of correction categories.
type Modifications int32

// Has reports whether every bit of m2 is set in m.
func (m Modifications) Has(m2 Modifications) bool {
	return m&m2 == m2
}

var modificationNames = []struct {
	flag Modifications
	name string
}{
	{ModifyTCA, "tca"},
	{ModifyVignetting, "vignetting"},
	{ModifyDistortion, "distortion"},
	{ModifyGeometry, "geometry"},
	{ModifyScale, "scale"},
	{ModifyPerspective, "perspective"},
}

func (m Modifications) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	for _, n := range modificationNames {
		if m.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// LensMatch is one lens search hit. Handle identifies the lens in later
// correction calls and is valid until the session is disposed.
type LensMatch struct {
	Handle      uint32  `json:"handle"`
	Maker       string  `json:"maker"`
	Model       string  `json:"model"`
	Score       float64 `json:"score"`
	MinFocal    float64 `json:"minFocal"`
	MaxFocal    float64 `json:"maxFocal"`
	MinAperture float64 `json:"minAperture"`
	MaxAperture float64 `json:"maxAperture"`
	CropFactor  float64 `json:"cropFactor"`
}

// Validate rejects matches without a usable handle.
func (l LensMatch) Validate() error {
	if l.Handle == 0 {
		return errors.New(errors.PhaseDecode, errors.KindDecode).
			Field("handle").
			Detail("lens %q has a null handle", l.Model).
			Build()
	}
	return nil
}

// CameraMatch is one camera search hit.
type CameraMatch struct {
	Maker      string  `json:"maker"`
	Model      string  `json:"model"`
	Variant    string  `json:"variant"`
	Mount      string  `json:"mount"`
	CropFactor float64 `json:"cropFactor"`
	Score      float64 `json:"score"`
}

// SearchLensesInput filters a lens search. LensModel is required.
type SearchLensesInput struct {
	LensMaker   string
	LensModel   string
	CameraMaker string
	CameraModel string
	// SearchFlags defaults to SearchSortAndUniquify when nil.
	SearchFlags *int32
}

// SearchCamerasInput filters a camera search.
type SearchCamerasInput struct {
	Maker string
	Model string
	// SearchFlags defaults to 0 when nil.
	SearchFlags *int32
}

// CorrectionInput describes the correction maps to build.
type CorrectionInput struct {
	// Aperture is required when IncludeVignetting is set.
	Aperture *float32
	// Distance defaults to DefaultVignettingDistance.
	Distance   *float32
	LensHandle uint32
	Width      int
	Height     int
	Focal      float32
	Crop       float32
	// Step defaults to 1 when zero.
	Step              int
	Reverse           bool
	IncludeTCA        bool
	IncludeVignetting bool
}

// CorrectionMaps holds the sampled correction grids. Each sample slice has
// GridWidth*GridHeight*channels entries: 2 for Geometry, 6 for TCA and 3
// for Vignetting.
type CorrectionMaps struct {
	Geometry   []float32 `json:"geometry"`
	TCA        []float32 `json:"tca,omitempty"`
	Vignetting []float32 `json:"vignetting,omitempty"`
	GridWidth  int       `json:"gridWidth"`
	GridHeight int       `json:"gridHeight"`
	Step       int       `json:"step"`
}

// Flags returns a pointer to v, for the optional SearchFlags fields.
func Flags(v int32) *int32 {
	return &v
}

// Float returns a pointer to v, for the optional float fields.
func Float(v float32) *float32 {
	return &v
}
