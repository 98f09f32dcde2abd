package resolver

import (
	"strings"

	lensfun "github.com/wippyai/lensfun-runtime"
)

// Locator maps the asset names the native module asks for to locations.
type Locator struct {
	// Override replaces every other rule when set.
	Override lensfun.LocateFunc
	WasmURL  string
	DataURL  string
}

// Locate applies the rules in order: Override, then WasmURL for .wasm
// assets and DataURL for .data assets, then prefix+path.
func (l Locator) Locate(path, prefix string) string {
	if l.Override != nil {
		return l.Override(path, prefix)
	}
	if l.WasmURL != "" && strings.HasSuffix(path, ".wasm") {
		return l.WasmURL
	}
	if l.DataURL != "" && strings.HasSuffix(path, ".data") {
		return l.DataURL
	}
	return prefix + path
}
