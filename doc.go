// Package lensfun exposes the lensfun lens-correction library, compiled to
// WebAssembly, through a typed Go API.
//
// The native module owns every correction algorithm and the calibration
// database. This library only resolves and instantiates the module, marshals
// arguments into the primitive values its entry points accept, manages the
// native buffers used for bulk results and decodes the JSON payloads it
// returns.
//
// # Architecture Overview
//
//	lensfun/             Root package with domain types, flags and the Module interface
//	├── runtime/         Bootstrap (New) and the correction Session
//	├── native/          Binding table and marshaling helpers
//	├── resolver/        Module providers, path locator and binary loaders
//	├── engine/          wazero-backed Module implementation
//	├── errors/          Structured error types
//	└── cmd/lensfun/     Command line and interactive lens search
//
// # Quick Start
//
//	sess, err := runtime.New(ctx, runtime.Config{
//	    ModuleURL: "dist/assets/lensfun-core.wasm",
//	    DataURL:   "/usr/share/lensfun/version_1",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Dispose(ctx)
//
//	lenses, err := sess.SearchLenses(ctx, lensfun.SearchLensesInput{LensModel: "50mm"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	maps, err := sess.BuildCorrectionMaps(ctx, lensfun.CorrectionInput{
//	    LensHandle: lenses[0].Handle,
//	    Width:      6000,
//	    Height:     4000,
//	    Step:       64,
//	    Focal:      50,
//	    Crop:       1.5,
//	})
//
// # Thread Safety
//
// A Session exclusively owns one native module instance, and the native side
// keeps single-instance state (the open calibration database). A Session is
// NOT safe for concurrent use; callers must serialize access, including
// Dispose.
//
// # Memory Model
//
// Every buffer the library allocates in native linear memory is released
// before the call that allocated it returns, on success and on every error
// path. Results are always copied into Go-owned slices.
package lensfun
