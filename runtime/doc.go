// Package runtime provides the session API over the native lensfun module.
//
// # Quick Start
//
//	ctx := context.Background()
//	s, err := runtime.New(ctx, runtime.Config{
//	    ModuleURL: "/opt/lensfun/lensfun-core.wasm",
//	    DataURL:   "/opt/lensfun/db",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Dispose(ctx)
//
//	lenses, err := s.SearchLenses(ctx, lensfun.SearchLensesInput{LensModel: "50mm"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	maps, err := s.BuildCorrectionMaps(ctx, lensfun.CorrectionInput{
//	    LensHandle: lenses[0].Handle,
//	    Width:      6000,
//	    Height:     4000,
//	    Step:       16,
//	    Focal:      50,
//	    Crop:       1,
//	})
//
// # Module Resolution
//
// New tries, in order: Config.Factory, the factory registered in
// Config.Registry, the binary at Config.ModuleURL (falling back to
// WasmURL), and the binary at Config.ModulePath in Config.ModuleFS.
// Loaded binaries run on wazero, one runtime per session.
//
// # Lifecycle
//
// A Session moves from alive to disposed exactly once. Dispose releases
// the native database and closes the module; every later operation fails
// with errors.ErrDisposed without touching the module. Sessions never
// share a module instance.
package runtime
