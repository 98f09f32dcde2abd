// Package resolver locates and instantiates the native lensfun module.
//
// Resolution is an explicit, ordered list of providers:
//
//	Factory(f)                           - a factory supplied by the caller
//	Registered(reg, name)                - a factory registered by name
//	Script(reg, name, url, loader, comp) - fetch, compile and register a binary
//	FS(fsys, path, comp)                 - load a binary from an fs.FS
//
// Resolve walks them in order. A provider with nothing configured returns
// ErrSkip and the next one is tried; any other error stops resolution.
// When every provider skips, Resolve fails with a module_not_found error.
//
// Locator answers the native module's asset lookups (the wasm binary and
// its data package) from explicit URLs or a directory prefix.
package resolver
