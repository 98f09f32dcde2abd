package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
)

const (
	wasiModuleName    = "wasi_snapshot_preview1"
	envModuleName     = "env"
	defaultMountPoint = "/lensfun-db"
)

// InstantiateWASI instantiates WASI preview1. Standalone emscripten builds
// use it for stdio and for reading the calibration database.
func InstantiateWASI(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	builder := r.NewHostModuleBuilder(wasiModuleName)
	wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)
	return builder.Instantiate(ctx)
}

// InstantiateEnv provides the "env" imports of a standalone emscripten
// build. Known imports get real implementations; any other import traps
// when called so a missing shim shows up at the call site.
func InstantiateEnv(ctx context.Context, r wazero.Runtime, imports []api.FunctionDefinition) (api.Module, error) {
	builder := r.NewHostModuleBuilder(envModuleName)

	for _, def := range imports {
		_, name, _ := def.Import()
		params := def.ParamTypes()
		results := def.ResultTypes()

		var fn api.GoModuleFunc
		switch name {
		case "emscripten_notify_memory_growth":
			fn = func(_ context.Context, _ api.Module, _ []uint64) {}
		case "emscripten_date_now":
			fn = func(_ context.Context, _ api.Module, stack []uint64) {
				stack[0] = api.EncodeF64(float64(time.Now().UnixMilli()))
			}
		default:
			Logger().Warn("env import has no host implementation",
				zap.String("name", name))
			missing := name
			fn = func(_ context.Context, _ api.Module, _ []uint64) {
				panic(fmt.Errorf("env.%s is not implemented by the host", missing))
			}
		}

		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(fn, params, results).
			Export(name)
	}

	return builder.Instantiate(ctx)
}
