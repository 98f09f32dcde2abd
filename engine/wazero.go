package engine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"
)

// WazeroEngine owns one wazero runtime. Modules compiled by an engine share
// it, so a session that must not share native state gets its own engine.
type WazeroEngine struct {
	runtime      wazero.Runtime
	wasiInitMu   sync.Mutex
	wasiInitDone atomic.Bool
}

// Config holds configuration for engine creation
type Config struct {
	// Cache reuses compiled machine code across engines. Optional.
	Cache wazero.CompilationCache

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// EnableThreads enables the WebAssembly threads proposal (experimental).
	// Needed for native builds made with -pthread.
	EnableThreads bool
}

// NewWazeroEngine creates a new wazero-based engine
func NewWazeroEngine(ctx context.Context) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, nil)
}

// NewWazeroEngineWithConfig creates a new engine with custom configuration
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.EnableThreads {
			runtimeCfg = runtimeCfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
		}
		if cfg.Cache != nil {
			runtimeCfg = runtimeCfg.WithCompilationCache(cfg.Cache)
		}
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	return &WazeroEngine{runtime: runtime}, nil
}

// InstanceConfig holds configuration for module instantiation
type InstanceConfig struct {
	Stdout io.Writer
	Stderr io.Writer
	// DataDir is a host directory mounted read-only at MountPoint. The
	// native module loads its calibration database from there.
	DataDir    string
	MountPoint string
	Name       string
}

// Compile compiles a core wasm module and prepares the host imports it needs.
func (e *WazeroEngine) Compile(ctx context.Context, wasmBytes []byte) (*WazeroModule, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("compile failed: %w", err)
	}

	if err := e.initHostModules(ctx, compiled); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	Logger().Debug("module compiled",
		zap.Int("size", len(wasmBytes)),
		zap.Int("exports", len(compiled.ExportedFunctions())))

	return &WazeroModule{
		engine:   e,
		compiled: compiled,
	}, nil
}

// initHostModules instantiates WASI and the emscripten env shims when the
// compiled module imports them.
func (e *WazeroEngine) initHostModules(ctx context.Context, compiled wazero.CompiledModule) error {
	var needsWASI bool
	var envImports []api.FunctionDefinition
	for _, def := range compiled.ImportedFunctions() {
		moduleName, _, _ := def.Import()
		switch moduleName {
		case wasiModuleName:
			needsWASI = true
		case envModuleName:
			envImports = append(envImports, def)
		default:
			return fmt.Errorf("unsupported import module %q", moduleName)
		}
	}

	if needsWASI {
		if err := e.InitWASI(ctx); err != nil {
			return err
		}
	}
	if len(envImports) > 0 && e.runtime.Module(envModuleName) == nil {
		if _, err := InstantiateEnv(ctx, e.runtime, envImports); err != nil {
			return fmt.Errorf("instantiate env: %w", err)
		}
	}
	return nil
}

// Close releases the runtime and every module instantiated in it.
func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// InitWASI instantiates the WASI singleton for this engine's runtime.
// Safe for concurrent calls from multiple modules sharing the same engine.
func (e *WazeroEngine) InitWASI(ctx context.Context) error {
	if e.wasiInitDone.Load() {
		return nil
	}

	e.wasiInitMu.Lock()
	defer e.wasiInitMu.Unlock()

	if e.wasiInitDone.Load() {
		return nil
	}

	if e.runtime.Module(wasiModuleName) != nil {
		e.wasiInitDone.Store(true)
		return nil
	}

	if _, err := InstantiateWASI(ctx, e.runtime); err != nil {
		if e.runtime.Module(wasiModuleName) == nil {
			return fmt.Errorf("instantiate WASI: %w", err)
		}
	}

	e.wasiInitDone.Store(true)
	return nil
}

// WazeroModule is a compiled native module
type WazeroModule struct {
	engine   *WazeroEngine
	compiled wazero.CompiledModule
}

// ExportNames lists the exported function names.
func (m *WazeroModule) ExportNames() []string {
	defs := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	return names
}

// Instantiate creates a running instance. Reactor modules have their
// _initialize export run first.
func (m *WazeroModule) Instantiate(ctx context.Context, cfg *InstanceConfig) (*WazeroInstance, error) {
	modConfig := wazero.NewModuleConfig().
		WithStartFunctions("_initialize")

	if cfg != nil && cfg.Name != "" {
		modConfig = modConfig.WithName(cfg.Name)
	} else {
		modConfig = modConfig.WithName("") // anonymous, several instances may share a runtime
	}
	if cfg != nil && cfg.Stdout != nil {
		modConfig = modConfig.WithStdout(cfg.Stdout)
	}
	if cfg != nil && cfg.Stderr != nil {
		modConfig = modConfig.WithStderr(cfg.Stderr)
	}
	if cfg != nil && cfg.DataDir != "" {
		mount := cfg.MountPoint
		if mount == "" {
			mount = defaultMountPoint
		}
		modConfig = modConfig.WithFSConfig(wazero.NewFSConfig().WithReadOnlyDirMount(cfg.DataDir, mount))
		Logger().Debug("mounted data directory",
			zap.String("host", cfg.DataDir),
			zap.String("guest", mount))
	}

	instance, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, modConfig)
	if err != nil {
		return nil, fmt.Errorf("instantiate failed: %w", err)
	}

	return newInstance(instance), nil
}

// Close releases the compiled code.
func (m *WazeroModule) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}
