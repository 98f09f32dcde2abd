// Package engine runs the native lensfun module on wazero.
//
// # Architecture
//
// The engine package provides three main types:
//
//	WazeroEngine   - Creates and manages a wazero runtime
//	WazeroModule   - A compiled module, can create instances
//	WazeroInstance - A running module; implements lensfun.Module
//
// Factory ties them together: every call compiles into a fresh runtime, so
// each session owns its native state outright.
//
// # Native ABI
//
// The module is a standalone emscripten (or wasi-sdk) reactor build:
//
//	Declared type   Core type   Passing
//	──────────────────────────────────────────────────────────
//	s32, u32        i32         by value
//	f32             f32         by value
//	string          i32         pointer to a NUL-terminated copy,
//	                            allocated with malloc and freed
//	                            after the call returns
//
// Func checks every declared signature against the export's wasm type when
// it is bound, so a mismatched binding fails before the first call.
//
// # Host Imports
//
// WASI preview1 is provided when imported; the calibration database is
// mounted read-only through it. The emscripten "env" imports of a
// standalone build are shimmed; unknown env imports trap when called.
package engine
