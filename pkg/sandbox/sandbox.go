// Package sandbox is the module-loader contract the manager drives. The
// execution engine itself lives in the host; FileLoader is the default
// loader that resolves and caches package files without executing them.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/livepkg/livepkg/pkg/pkg"
)

var (
	ErrModuleNotFound = errors.New("module not found")
	ErrNoEngine       = errors.New("no script engine configured")
)

// ModuleNotFoundError reports a require path that does not resolve to a
// file inside the package.
type ModuleNotFoundError struct {
	Package string
	Path    string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("cannot find module %q in %s", e.Path, e.Package)
}

func (e *ModuleNotFoundError) Unwrap() error { return ErrModuleNotFound }

// Template is an opaque execution-environment template registered per
// package. The manager stores it; only the engine interprets it.
type Template any

// Loader turns installed package files into module values.
type Loader interface {
	// Resolve maps a path relative to the package to an absolute file.
	// An empty path resolves to the package entry file.
	Resolve(p *pkg.Package, rel string) (string, error)
	// Load returns the module exported by the file at abs, from cache when
	// the package was loaded before.
	Load(p *pkg.Package, abs string) (any, error)
	// Unload purges every cached module of p. Files are not touched.
	Unload(p *pkg.Package)
	// SplitRequire splits "name/path" or "@scope/name/path" into the
	// package name and the path inside it.
	SplitRequire(full string) (name, path string)
	// RunScript evaluates ad-hoc code outside any package.
	RunScript(ctx context.Context, code string) (any, error)
}

// Module is what FileLoader hands back: the resolved file and its source.
type Module struct {
	Package string
	Path    string
	Source  []byte
}

// Engine evaluates code for FileLoader.RunScript.
type Engine interface {
	RunScript(ctx context.Context, code string) (any, error)
}

// FileLoader resolves require paths the way npm packages lay them out and
// caches file contents per package until Unload.
type FileLoader struct {
	Engine Engine

	mu    sync.Mutex
	cache map[string]map[string]*Module
}

var _ Loader = &FileLoader{}

func NewFileLoader() *FileLoader {
	return &FileLoader{cache: map[string]map[string]*Module{}}
}

func (l *FileLoader) Resolve(p *pkg.Package, rel string) (string, error) {
	if rel == "" {
		return p.MainFile, nil
	}

	base := filepath.Join(p.Location, filepath.FromSlash(rel))
	if !within(p.Location, base) {
		return "", &ModuleNotFoundError{Package: p.Name, Path: rel}
	}

	for _, candidate := range []string{base, base + ".js", base + ".json", filepath.Join(base, "index.js")} {
		info, err := os.Stat(candidate)
		if err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
	}
	return "", &ModuleNotFoundError{Package: p.Name, Path: rel}
}

func (l *FileLoader) Load(p *pkg.Package, abs string) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.cache[p.Name][abs]; ok {
		return m, nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ModuleNotFoundError{Package: p.Name, Path: abs}
		}
		return nil, fmt.Errorf("loading %s: %w", abs, err)
	}

	m := &Module{Package: p.Name, Path: abs, Source: data}
	if l.cache == nil {
		l.cache = map[string]map[string]*Module{}
	}
	if l.cache[p.Name] == nil {
		l.cache[p.Name] = map[string]*Module{}
	}
	l.cache[p.Name][abs] = m
	return m, nil
}

func (l *FileLoader) Unload(p *pkg.Package) {
	l.mu.Lock()
	delete(l.cache, p.Name)
	l.mu.Unlock()
}

// Loaded reports whether any module of the named package is cached.
func (l *FileLoader) Loaded(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cache[name]) > 0
}

func (l *FileLoader) SplitRequire(full string) (string, string) {
	parts := strings.SplitN(full, "/", 3)
	if strings.HasPrefix(full, "@") && len(parts) >= 2 {
		name := parts[0] + "/" + parts[1]
		if len(parts) == 3 {
			return name, parts[2]
		}
		return name, ""
	}
	name, path, _ := strings.Cut(full, "/")
	return name, path
}

func (l *FileLoader) RunScript(ctx context.Context, code string) (any, error) {
	if l.Engine == nil {
		return nil, ErrNoEngine
	}
	return l.Engine.RunScript(ctx, code)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
