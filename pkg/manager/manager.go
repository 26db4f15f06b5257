// Package manager installs, tracks and removes runtime packages. Every
// mutating operation runs under the install lock of the packages root, so
// concurrent callers in this process and in others observe whole
// operations, never interleavings.
package manager

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/livepkg/livepkg/pkg/archive"
	"github.com/livepkg/livepkg/pkg/lock"
	"github.com/livepkg/livepkg/pkg/pkg"
	"github.com/livepkg/livepkg/pkg/sandbox"
	"github.com/livepkg/livepkg/pkg/source"
	"github.com/livepkg/livepkg/pkg/store"
	"github.com/livepkg/livepkg/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/livepkg/livepkg/pkg/manager"

// CacheMode controls whether packages already present on disk are reused
// instead of fetched again.
type CacheMode string

const (
	UseCache CacheMode = "useCache"
	NoCache  CacheMode = "noCache"
)

// MatchMode selects how AlreadyInstalled compares versions.
type MatchMode int

const (
	// Satisfies requires the installed version to satisfy the range.
	Satisfies MatchMode = iota
	// SatisfiesOrGreater also accepts versions above the range.
	SatisfiesOrGreater
)

type Options struct {
	// Root is the packages directory. Defaults to <cwd>/plugin_packages.
	Root string

	// Registries default to unauthenticated clients for the public hosts.
	NPM       source.Registry
	GitHub    source.Registry
	Bitbucket source.Registry

	// Loader defaults to a sandbox.FileLoader.
	Loader sandbox.Loader
	Logger *log.Logger

	CacheMode CacheMode

	// Dependencies whose name equals one of IgnoredNames or matches one of
	// IgnoredPatterns are never installed.
	IgnoredNames    []string
	IgnoredPatterns []*regexp.Regexp

	// StaticDependencies are provided by the host. They are never installed
	// and Require returns them as-is.
	StaticDependencies map[string]any

	// HostModulesPath is probed for <name>/package.json before installing a
	// dependency. Empty disables the probe.
	HostModulesPath string

	LockWait  time.Duration
	LockStale time.Duration

	// Registerer receives the manager's metrics. Nil keeps them private.
	Registerer prometheus.Registerer
}

// Manager owns the list of installed packages. Read operations return
// copies and may observe the state before or after a concurrent mutation.
type Manager struct {
	store     store.Store
	npm       source.Registry
	github    source.Registry
	bitbucket source.Registry
	loader    sandbox.Loader
	logger    *log.Logger
	tracer    trace.Tracer
	metrics   *metrics

	cacheMode       CacheMode
	ignoredNames    []string
	ignoredPatterns []*regexp.Regexp
	static          map[string]any
	hostModulesPath string
	lockOpts        lock.Options

	// sem serializes mutations inside this process before the lock file
	// serializes them across processes.
	sem chan struct{}

	mu        sync.RWMutex
	packages  []*pkg.Package
	templates map[string]sandbox.Template
}

func New(opts Options) (*Manager, error) {
	st, err := newStore(opts.Root)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	m := &Manager{
		store:           st,
		npm:             opts.NPM,
		github:          opts.GitHub,
		bitbucket:       opts.Bitbucket,
		loader:          opts.Loader,
		logger:          logger,
		tracer:          otel.Tracer(tracerName),
		cacheMode:       opts.CacheMode,
		ignoredNames:    slices.Clone(opts.IgnoredNames),
		ignoredPatterns: slices.Clone(opts.IgnoredPatterns),
		static:          opts.StaticDependencies,
		hostModulesPath: opts.HostModulesPath,
		lockOpts: lock.Options{
			Wait:   opts.LockWait,
			Stale:  opts.LockStale,
			Logger: logger,
		},
		sem:       make(chan struct{}, 1),
		templates: map[string]sandbox.Template{},
	}

	if m.cacheMode == "" {
		m.cacheMode = UseCache
	}
	if m.lockOpts.Wait == 0 {
		m.lockOpts.Wait = lock.DefaultWait
	}
	if m.lockOpts.Stale == 0 {
		m.lockOpts.Stale = lock.DefaultStale
	}
	if m.loader == nil {
		m.loader = sandbox.NewFileLoader()
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m.metrics = newMetrics(reg)

	if err := m.defaultRegistries(); err != nil {
		return nil, err
	}
	return m, nil
}

func newStore(root string) (store.Store, error) {
	if root == "" {
		return store.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving packages root: %w", err)
	}
	return store.New(abs), nil
}

func (m *Manager) defaultRegistries() error {
	if m.npm != nil && m.github != nil && m.bitbucket != nil {
		return nil
	}

	client := transport.New()
	fetcher := archive.New(client)
	if m.npm == nil {
		r, err := source.NewNPMRegistry(source.DefaultNPMRegistryURL, transport.Auth{}, client, fetcher)
		if err != nil {
			return err
		}
		m.npm = r
	}
	if m.github == nil {
		r, err := source.NewGitHubRegistry(transport.Auth{}, client, fetcher)
		if err != nil {
			return err
		}
		m.github = r
	}
	if m.bitbucket == nil {
		r, err := source.NewBitbucketRegistry(transport.Auth{}, client, fetcher)
		if err != nil {
			return err
		}
		m.bitbucket = r
	}
	return nil
}

// Root returns the packages directory.
func (m *Manager) Root() string {
	return m.store.Root()
}

func (m *Manager) registry(kind source.Kind) source.Registry {
	switch kind {
	case source.KindGitHub:
		return m.github
	case source.KindBitbucket:
		return m.bitbucket
	default:
		return m.npm
	}
}

// call carries per-operation state through recursive dependency installs.
type call struct {
	// chain holds the packages whose dependencies are being installed,
	// outermost first.
	chain []string
}

// locked runs fn inside a span while holding the install lock.
func (m *Manager) locked(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(ctx context.Context, c *call) error) (err error) {
	ctx, span := m.tracer.Start(ctx, "manager."+op, trace.WithAttributes(attrs...))
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		m.metrics.operations.WithLabelValues(op, result).Inc()
		span.End()
	}()

	start := time.Now()
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-m.sem }()

	if err := m.store.EnsureDir(); err != nil {
		return fmt.Errorf("creating packages root: %w", err)
	}
	l, err := lock.Acquire(ctx, m.store.Path(lock.FileName), m.lockOpts)
	m.metrics.lockWait.Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	defer func() {
		if rerr := l.Release(); rerr != nil {
			m.logger.Warn("releasing install lock", "err", rerr)
		}
	}()

	return fn(ctx, &call{})
}

// List returns a snapshot of the installed packages in install order.
func (m *Manager) List() []*pkg.Package {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*pkg.Package, len(m.packages))
	for i, p := range m.packages {
		out[i] = p.Clone()
	}
	return out
}

// Info returns the installed record for name, or nil.
func (m *Manager) Info(name string) *pkg.Package {
	if p := m.find(name); p != nil {
		return p.Clone()
	}
	return nil
}

// AlreadyInstalled returns the installed record for name when its version
// matches version under mode. An empty version matches any installed
// version.
func (m *Manager) AlreadyInstalled(name, version string, mode MatchMode) *pkg.Package {
	if p := m.alreadyInstalled(name, version, mode); p != nil {
		return p.Clone()
	}
	return nil
}

func (m *Manager) find(name string) *pkg.Package {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.packages {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// register adds p, replacing any record with the same name in place.
func (m *Manager) register(p *pkg.Package) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.packages {
		if existing.Name == p.Name {
			m.packages[i] = p
			return
		}
	}
	m.packages = append(m.packages, p)
}

func (m *Manager) unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packages = slices.DeleteFunc(m.packages, func(p *pkg.Package) bool {
		return p.Name == name
	})
	delete(m.templates, name)
}

// Restore reconciles the installed list with the manifests under the
// packages root without touching the network. Records whose directory is
// gone, or now holds another version, are dropped or refreshed; new
// directories are appended. Directories without a valid manifest, or whose
// manifest names another package, are skipped.
func (m *Manager) Restore(ctx context.Context) error {
	return m.locked(ctx, "Restore", nil, func(context.Context, *call) error {
		dirs, err := m.store.PackageDirs()
		if err != nil {
			return fmt.Errorf("listing packages: %w", err)
		}

		found := make(map[string]*pkg.Package, len(dirs))
		var order []string
		for _, dir := range dirs {
			man, err := m.readManifest(dir)
			if err != nil {
				m.logger.Warn("skipping package directory", "dir", dir, "err", err)
				continue
			}
			p := pkg.FromManifest(m.location(dir), man)
			if p.Name != dir {
				m.logger.Warn("skipping package directory", "dir", dir, "name", p.Name)
				continue
			}
			found[dir] = p
			order = append(order, dir)
		}

		m.mu.Lock()
		var (
			restored []*pkg.Package
			stale    []*pkg.Package
		)
		for _, existing := range m.packages {
			p, ok := found[existing.Name]
			if !ok || p.Version != existing.Version {
				stale = append(stale, existing)
			}
			if ok {
				restored = append(restored, p)
				delete(found, existing.Name)
			}
		}
		for _, name := range order {
			if p, ok := found[name]; ok {
				restored = append(restored, p)
			}
		}
		m.packages = restored
		m.mu.Unlock()

		for _, p := range stale {
			m.logger.Debug("dropping stale record", "package", p)
			m.loader.Unload(p)
		}
		m.logger.Debug("restored packages", "count", len(restored))
		return nil
	})
}

func (m *Manager) location(name string) string {
	return m.store.Path(filepath.FromSlash(name))
}
