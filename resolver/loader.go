package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/lensfun-runtime/errors"
)

// Loader fetches a module binary.
type Loader interface {
	Load(ctx context.Context, location string) ([]byte, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, location string) ([]byte, error)

func (f LoaderFunc) Load(ctx context.Context, location string) ([]byte, error) {
	return f(ctx, location)
}

// URLLoader reads http(s) URLs, file:// URLs and plain paths.
type URLLoader struct {
	// Client defaults to http.DefaultClient.
	Client *http.Client
	// MaxBytes caps remote downloads. 0 means 256MB.
	MaxBytes int64
}

const defaultMaxBytes = 256 << 20

// DefaultLoader returns a URLLoader with default settings.
func DefaultLoader() *URLLoader {
	return &URLLoader{}
}

// Load dispatches on the location scheme.
func (l *URLLoader) Load(ctx context.Context, location string) ([]byte, error) {
	scheme, rest, ok := strings.Cut(location, "://")
	if !ok {
		return readLocal(location)
	}

	switch strings.ToLower(scheme) {
	case "http", "https":
		return l.fetch(ctx, location)
	case "file":
		u, err := url.Parse(location)
		if err != nil {
			return nil, errors.ScriptLoad(location, err)
		}
		path := u.Path
		if path == "" {
			path = rest
		}
		return readLocal(path)
	default:
		return nil, errors.UnsupportedEnvironment(fmt.Sprintf("cannot load %s: unsupported scheme %q", location, scheme))
	}
}

func (l *URLLoader) fetch(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, errors.ScriptLoad(location, err)
	}

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.ScriptLoad(location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.ScriptLoad(location, fmt.Errorf("unexpected status %s", resp.Status))
	}

	limit := l.MaxBytes
	if limit <= 0 {
		limit = defaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, errors.ScriptLoad(location, err)
	}
	if int64(len(data)) > limit {
		return nil, errors.ScriptLoad(location, fmt.Errorf("module exceeds %d bytes", limit))
	}

	Logger().Debug("fetched module binary",
		zap.String("url", location),
		zap.Int("size", len(data)))
	return data, nil
}

func readLocal(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.ScriptLoad(path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.ScriptLoad(path, err)
	}
	if info.IsDir() {
		return nil, errors.ScriptLoad(path, fmt.Errorf("is a directory"))
	}
	if info.Size() == 0 {
		return nil, errors.ScriptLoad(path, fmt.Errorf("empty file"))
	}

	data, err := mapFile(f, info.Size())
	if err != nil {
		return nil, errors.ScriptLoad(path, err)
	}
	Logger().Debug("read module binary",
		zap.String("path", path),
		zap.Int("size", len(data)))
	return data, nil
}
