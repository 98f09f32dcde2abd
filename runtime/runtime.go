package runtime

import (
	"context"
	"io"
	"io/fs"
	"strings"

	"go.uber.org/zap"

	lensfun "github.com/wippyai/lensfun-runtime"
	"github.com/wippyai/lensfun-runtime/engine"
	"github.com/wippyai/lensfun-runtime/errors"
	"github.com/wippyai/lensfun-runtime/native"
	"github.com/wippyai/lensfun-runtime/resolver"
)

// Config configures New. The zero value resolves nothing; set at least one
// of Factory, Registry, ModuleURL, WasmURL or ModuleFS.
type Config struct {
	// Factory instantiates the native module directly. Highest precedence.
	Factory lensfun.Factory

	// Registry is searched for FactoryName (default
	// resolver.DefaultFactoryName). A module loaded from ModuleURL is
	// registered here under the same name.
	Registry    *resolver.Registry
	FactoryName string

	// ModuleURL locates the module binary: http(s)://, file:// or a path.
	// Defaults to WasmURL.
	ModuleURL string
	// Loader fetches ModuleURL. Defaults to resolver.DefaultLoader().
	Loader resolver.Loader

	// ModuleFS and ModulePath load the binary from a filesystem, such as
	// an embed.FS. Lowest precedence.
	ModuleFS   fs.FS
	ModulePath string

	// WasmURL and DataURL answer the module's asset lookups.
	WasmURL string
	DataURL string
	// LocateFile overrides every other asset rule.
	LocateFile lensfun.LocateFunc
	// AssetPrefix is the directory prefix for asset lookups. Defaults to
	// the directory of ModuleURL.
	AssetPrefix string

	// DBPath is the calibration database path inside the module. Defaults
	// to lensfun.DefaultDBPath.
	DBPath string
	// AutoInitDB runs native database initialization. nil means true.
	AutoInitDB *bool

	// Engine tunes the wazero runtime used for loaded binaries.
	Engine engine.Config
	// Stdout and Stderr receive native log output.
	Stdout io.Writer
	Stderr io.Writer

	// Logger is installed in every package of the module when set.
	Logger *zap.Logger
}

// Bool returns a pointer to v, for AutoInitDB.
func Bool(v bool) *bool {
	return &v
}

func (c *Config) moduleURL() string {
	if c.ModuleURL != "" {
		return c.ModuleURL
	}
	return c.WasmURL
}

func (c *Config) assetPrefix() string {
	if c.AssetPrefix != "" {
		return c.AssetPrefix
	}
	u := c.moduleURL()
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[:i+1]
	}
	return ""
}

func (c *Config) dbPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return lensfun.DefaultDBPath
}

func (c *Config) compiler() resolver.Compiler {
	engCfg := c.Engine
	fcfg := engine.FactoryConfig{
		Engine:     &engCfg,
		Stdout:     c.Stdout,
		Stderr:     c.Stderr,
		Prefix:     c.assetPrefix(),
		MountPoint: c.dbPath(),
	}
	return func(ctx context.Context, wasm []byte) (lensfun.Factory, error) {
		return engine.CompileFactory(ctx, wasm, fcfg)
	}
}

func (c *Config) providers() []resolver.Provider {
	compile := c.compiler()
	return []resolver.Provider{
		resolver.Factory(c.Factory),
		resolver.Registered(c.Registry, c.FactoryName),
		resolver.Script(c.Registry, c.FactoryName, c.moduleURL(), c.Loader, compile),
		resolver.FS(c.ModuleFS, c.ModulePath, compile),
	}
}

// New resolves the native module, binds its entry points and, unless
// disabled, initializes the calibration database. It is the only way to
// obtain a Session. On failure after resolution the module is closed.
func New(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Logger != nil {
		SetLogger(cfg.Logger)
		engine.SetLogger(cfg.Logger)
		native.SetLogger(cfg.Logger)
		resolver.SetLogger(cfg.Logger)
	}

	locator := resolver.Locator{
		Override: cfg.LocateFile,
		WasmURL:  cfg.WasmURL,
		DataURL:  cfg.DataURL,
	}

	mod, err := resolver.Resolve(ctx, locator.Locate, cfg.providers()...)
	if err != nil {
		return nil, err
	}

	fns, err := native.Bind(mod)
	if err != nil {
		closeModule(ctx, mod)
		return nil, err
	}

	if cfg.AutoInitDB == nil || *cfg.AutoInitDB {
		dbPath := cfg.dbPath()
		raw, err := fns.Init(ctx, dbPath)
		if err != nil {
			closeModule(ctx, mod)
			return nil, err
		}
		if code := int32(uint32(raw)); code != 0 {
			closeModule(ctx, mod)
			return nil, errors.DBInit(native.SymInit, dbPath, code)
		}
		Logger().Debug("calibration database initialized", zap.String("path", dbPath))
	}

	return newSession(mod, fns), nil
}

func closeModule(ctx context.Context, mod lensfun.Module) {
	if err := mod.Close(ctx); err != nil {
		Logger().Warn("failed to close native module", zap.Error(err))
	}
}
