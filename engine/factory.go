package engine

import (
	"context"
	"io"
	"os"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	lensfun "github.com/wippyai/lensfun-runtime"
)

// Asset names passed to the locator, matching the emscripten build outputs.
const (
	WasmAsset = "lensfun-core.wasm"
	DataAsset = "lensfun-core.data"
)

// FactoryConfig configures instances created by Factory.
type FactoryConfig struct {
	Engine *Config
	Stdout io.Writer
	Stderr io.Writer
	// Prefix is the directory prefix handed to the locator for DataAsset.
	Prefix string
	// MountPoint is the guest path the located data directory is mounted
	// at. Defaults to lensfun.DefaultDBPath.
	MountPoint string
}

// Factory returns a lensfun.Factory for wasmBytes. Each call creates a
// fresh engine, so instances never share native state; the engine is
// closed with the instance.
func Factory(wasmBytes []byte, cfg FactoryConfig) lensfun.Factory {
	return func(ctx context.Context, locate lensfun.LocateFunc) (lensfun.Module, error) {
		eng, err := NewWazeroEngineWithConfig(ctx, cfg.Engine)
		if err != nil {
			return nil, err
		}

		mod, err := eng.Compile(ctx, wasmBytes)
		if err != nil {
			_ = eng.Close(ctx)
			return nil, err
		}

		instCfg := &InstanceConfig{
			Stdout:     cfg.Stdout,
			Stderr:     cfg.Stderr,
			MountPoint: cfg.MountPoint,
		}
		if instCfg.MountPoint == "" {
			instCfg.MountPoint = lensfun.DefaultDBPath
		}
		if locate != nil {
			instCfg.DataDir = dataDir(locate(DataAsset, cfg.Prefix))
		}

		inst, err := mod.Instantiate(ctx, instCfg)
		if err != nil {
			_ = eng.Close(ctx)
			return nil, err
		}
		inst.owner = eng
		return inst, nil
	}
}

// dataDir returns location when it names an existing host directory.
// Packed emscripten .data files cannot be mounted and are skipped.
func dataDir(location string) string {
	if location == "" {
		return ""
	}
	info, err := os.Stat(location)
	if err != nil {
		Logger().Debug("data location not found, skipping mount",
			zap.String("location", location))
		return ""
	}
	if !info.IsDir() {
		Logger().Warn("data location is not a directory, skipping mount",
			zap.String("location", location))
		return ""
	}
	return location
}

// CompileFactory compiles wasmBytes once to surface invalid binaries early
// and returns a Factory whose engines share the compiled code through a
// compilation cache.
func CompileFactory(ctx context.Context, wasmBytes []byte, cfg FactoryConfig) (lensfun.Factory, error) {
	var engCfg Config
	if cfg.Engine != nil {
		engCfg = *cfg.Engine
	}
	if engCfg.Cache == nil {
		engCfg.Cache = wazero.NewCompilationCache()
	}

	eng, err := NewWazeroEngineWithConfig(ctx, &engCfg)
	if err != nil {
		return nil, err
	}
	defer eng.Close(ctx)

	mod, err := eng.Compile(ctx, wasmBytes)
	if err != nil {
		return nil, err
	}
	_ = mod.Close(ctx)

	cfg.Engine = &engCfg
	return Factory(wasmBytes, cfg), nil
}
