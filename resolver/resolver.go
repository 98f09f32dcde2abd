package resolver

import (
	"context"
	stderrors "errors"
	"sync"

	"go.uber.org/zap"

	lensfun "github.com/wippyai/lensfun-runtime"
	"github.com/wippyai/lensfun-runtime/errors"
)

// DefaultFactoryName is the registry name a loaded module binary is
// registered under.
const DefaultFactoryName = "createLensfunCoreModule"

// ErrSkip is returned by a provider that has nothing configured.
var ErrSkip = stderrors.New("lensfun: provider not configured")

// Provider is one module resolution strategy.
type Provider interface {
	Name() string
	// Factory returns the factory this strategy yields, or ErrSkip.
	Factory(ctx context.Context) (lensfun.Factory, error)
}

// Resolve walks providers in order and instantiates the module from the
// first one that yields a factory.
func Resolve(ctx context.Context, locate lensfun.LocateFunc, providers ...Provider) (lensfun.Module, error) {
	for _, p := range providers {
		if p == nil {
			continue
		}
		factory, err := p.Factory(ctx)
		if stderrors.Is(err, ErrSkip) {
			Logger().Debug("provider skipped", zap.String("provider", p.Name()))
			continue
		}
		if err != nil {
			return nil, err
		}
		Logger().Debug("provider selected", zap.String("provider", p.Name()))
		return factory(ctx, locate)
	}
	return nil, errors.ModuleNotFound("module factory not found; provide a factory, register one, or set a module location")
}

// Registry maps names to module factories. It replaces process-wide
// factory globals with an explicit table.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]lensfun.Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]lensfun.Factory)}
}

// Register stores f under name, replacing any previous entry.
func (r *Registry) Register(name string, f lensfun.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (lensfun.Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok && f != nil
}

type factoryProvider struct {
	f lensfun.Factory
}

// Factory yields f itself. A nil f is skipped.
func Factory(f lensfun.Factory) Provider {
	return factoryProvider{f: f}
}

func (p factoryProvider) Name() string { return "factory" }

func (p factoryProvider) Factory(context.Context) (lensfun.Factory, error) {
	if p.f == nil {
		return nil, ErrSkip
	}
	return p.f, nil
}

type registeredProvider struct {
	reg  *Registry
	name string
}

// Registered yields the factory registered under name. An empty name means
// DefaultFactoryName.
func Registered(reg *Registry, name string) Provider {
	if name == "" {
		name = DefaultFactoryName
	}
	return registeredProvider{reg: reg, name: name}
}

func (p registeredProvider) Name() string { return "registered:" + p.name }

func (p registeredProvider) Factory(context.Context) (lensfun.Factory, error) {
	if p.reg == nil {
		return nil, ErrSkip
	}
	f, ok := p.reg.Lookup(p.name)
	if !ok {
		return nil, ErrSkip
	}
	return f, nil
}
