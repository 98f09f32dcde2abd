package resolver

import (
	"context"
	"io/fs"

	"go.uber.org/zap"

	lensfun "github.com/wippyai/lensfun-runtime"
	"github.com/wippyai/lensfun-runtime/errors"
)

// Compiler turns a module binary into a factory.
type Compiler func(ctx context.Context, wasm []byte) (lensfun.Factory, error)

type scriptProvider struct {
	reg     *Registry
	loader  Loader
	compile Compiler
	url     string
	name    string
}

// Script fetches the module binary at url, compiles it, registers the
// factory in reg under name and then looks it up again. An empty url is
// skipped. An empty name means DefaultFactoryName. A nil reg uses a
// private registry; a nil loader uses DefaultLoader.
func Script(reg *Registry, name, url string, loader Loader, compile Compiler) Provider {
	if reg == nil {
		reg = NewRegistry()
	}
	if name == "" {
		name = DefaultFactoryName
	}
	if loader == nil {
		loader = DefaultLoader()
	}
	return scriptProvider{reg: reg, name: name, url: url, loader: loader, compile: compile}
}

func (p scriptProvider) Name() string { return "script:" + p.url }

func (p scriptProvider) Factory(ctx context.Context) (lensfun.Factory, error) {
	if p.url == "" {
		return nil, ErrSkip
	}
	if p.compile == nil {
		return nil, errors.UnsupportedEnvironment("loading a module from a location requires a compiler; supply a factory instead")
	}

	Logger().Debug("loading module binary", zap.String("url", p.url))
	wasm, err := p.loader.Load(ctx, p.url)
	if err != nil {
		return nil, err
	}

	factory, err := p.compile(ctx, wasm)
	if err != nil {
		return nil, errors.ScriptLoad(p.url, err)
	}
	p.reg.Register(p.name, factory)

	f, ok := p.reg.Lookup(p.name)
	if !ok {
		return nil, errors.ModuleNotFound("module factory not found after loading " + p.url)
	}
	return f, nil
}

type fsProvider struct {
	fsys    fs.FS
	compile Compiler
	path    string
}

// FS loads the module binary at path from fsys, such as an embed.FS.
// A nil fsys or empty path is skipped.
func FS(fsys fs.FS, path string, compile Compiler) Provider {
	return fsProvider{fsys: fsys, path: path, compile: compile}
}

func (p fsProvider) Name() string { return "fs:" + p.path }

func (p fsProvider) Factory(ctx context.Context) (lensfun.Factory, error) {
	if p.fsys == nil || p.path == "" {
		return nil, ErrSkip
	}
	if p.compile == nil {
		return nil, errors.UnsupportedEnvironment("loading a module from a filesystem requires a compiler")
	}

	wasm, err := fs.ReadFile(p.fsys, p.path)
	if err != nil {
		return nil, errors.ScriptLoad(p.path, err)
	}
	factory, err := p.compile(ctx, wasm)
	if err != nil {
		return nil, errors.ScriptLoad(p.path, err)
	}
	return factory, nil
}
