package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/term"

	lensfun "github.com/wippyai/lensfun-runtime"
	"github.com/wippyai/lensfun-runtime/runtime"
)

type options struct {
	wasm string
	db   string
	noDB bool

	lenses      string
	lensMaker   string
	cameraMaker string
	cameraModel string
	loose       bool

	cameras bool
	maker   string
	model   string

	maps       string
	mods       string
	width      int
	height     int
	step       int
	focal      float64
	crop       float64
	aperture   float64
	distance   float64
	tca        bool
	vignetting bool
	reverse    bool

	interactive bool
	verbose     bool
}

func main() {
	var o options
	flag.StringVar(&o.wasm, "wasm", os.Getenv("LENSFUN_WASM"), "Path or URL of lensfun-core.wasm (env LENSFUN_WASM)")
	flag.StringVar(&o.db, "db", os.Getenv("LENSFUN_DB"), "Host directory holding the calibration database (env LENSFUN_DB)")
	flag.BoolVar(&o.noDB, "no-db", false, "Skip native database initialization")

	flag.StringVar(&o.lenses, "lenses", "", "Search lenses by model")
	flag.StringVar(&o.lensMaker, "lens-maker", "", "Lens maker filter")
	flag.StringVar(&o.cameraMaker, "camera-maker", "", "Camera maker filter")
	flag.StringVar(&o.cameraModel, "camera-model", "", "Camera model filter")
	flag.BoolVar(&o.loose, "loose", false, "Loose lens matching")

	flag.BoolVar(&o.cameras, "cameras", false, "Search cameras")
	flag.StringVar(&o.maker, "maker", "", "Camera maker for -cameras")
	flag.StringVar(&o.model, "model", "", "Camera model for -cameras")

	flag.StringVar(&o.maps, "maps", "", "Build correction maps for a lens handle")
	flag.StringVar(&o.mods, "mods", "", "Show available modifications for a lens handle")
	flag.IntVar(&o.width, "width", 0, "Image width in pixels")
	flag.IntVar(&o.height, "height", 0, "Image height in pixels")
	flag.IntVar(&o.step, "step", 1, "Grid step in pixels")
	flag.Float64Var(&o.focal, "focal", 0, "Focal length in mm")
	flag.Float64Var(&o.crop, "crop", 1, "Crop factor")
	flag.Float64Var(&o.aperture, "aperture", 0, "Aperture (f-number), required with -vignetting")
	flag.Float64Var(&o.distance, "distance", float64(lensfun.DefaultVignettingDistance), "Subject distance for vignetting")
	flag.BoolVar(&o.tca, "tca", false, "Include the TCA map")
	flag.BoolVar(&o.vignetting, "vignetting", false, "Include the vignetting map")
	flag.BoolVar(&o.reverse, "reverse", false, "Build reverse (distorting) maps")

	flag.BoolVar(&o.interactive, "i", false, "Interactive lens search")
	flag.BoolVar(&o.verbose, "v", false, "Verbose logging")
	flag.Parse()

	if o.wasm == "" {
		fmt.Fprintln(os.Stderr, "Usage: lensfun -wasm <lensfun-core.wasm> [-db dir] -lenses MODEL")
		fmt.Fprintln(os.Stderr, "       lensfun -wasm <lensfun-core.wasm> -cameras [-maker M] [-model M]")
		fmt.Fprintln(os.Stderr, "       lensfun -wasm <lensfun-core.wasm> -mods HANDLE [-crop C]")
		fmt.Fprintln(os.Stderr, "       lensfun -wasm <lensfun-core.wasm> -maps HANDLE -width W -height H -focal F [-tca] [-vignetting -aperture A]")
		fmt.Fprintln(os.Stderr, "       lensfun -wasm <lensfun-core.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	return zap.NewDevelopment()
}

func config(o options, logger *zap.Logger) runtime.Config {
	cfg := runtime.Config{
		ModuleURL: o.wasm,
		DataURL:   o.db,
		Stderr:    os.Stderr,
		Logger:    logger,
	}
	if o.noDB {
		cfg.AutoInitDB = runtime.Bool(false)
	}
	return cfg
}

func run(o options) error {
	ctx := context.Background()

	logger, err := newLogger(o.verbose)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	if o.interactive {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("interactive mode needs a terminal")
		}
		return runInteractive(config(o, logger))
	}

	s, err := runtime.New(ctx, config(o, logger))
	if err != nil {
		return err
	}
	defer s.Dispose(ctx)

	var out any
	switch {
	case o.lenses != "":
		in := lensfun.SearchLensesInput{
			LensMaker:   o.lensMaker,
			LensModel:   o.lenses,
			CameraMaker: o.cameraMaker,
			CameraModel: o.cameraModel,
		}
		if o.loose {
			in.SearchFlags = lensfun.Flags(lensfun.SearchLoose | lensfun.SearchSortAndUniquify)
		}
		out, err = s.SearchLenses(ctx, in)

	case o.cameras:
		out, err = s.SearchCameras(ctx, lensfun.SearchCamerasInput{Maker: o.maker, Model: o.model})

	case o.mods != "":
		handle, perr := parseHandle(o.mods)
		if perr != nil {
			return perr
		}
		mods, merr := s.AvailableModifications(ctx, handle, float32(o.crop))
		out, err = map[string]any{"mask": int32(mods), "modifications": mods.String()}, merr

	case o.maps != "":
		handle, perr := parseHandle(o.maps)
		if perr != nil {
			return perr
		}
		in := lensfun.CorrectionInput{
			LensHandle:        handle,
			Width:             o.width,
			Height:            o.height,
			Step:              o.step,
			Focal:             float32(o.focal),
			Crop:              float32(o.crop),
			Reverse:           o.reverse,
			IncludeTCA:        o.tca,
			IncludeVignetting: o.vignetting,
			Distance:          lensfun.Float(float32(o.distance)),
		}
		if o.aperture > 0 {
			in.Aperture = lensfun.Float(float32(o.aperture))
		}
		out, err = s.BuildCorrectionMaps(ctx, in)

	default:
		return fmt.Errorf("nothing to do: pass -lenses, -cameras, -mods or -maps")
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func parseHandle(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid lens handle %q: %w", s, err)
	}
	return uint32(v), nil
}
