package manager

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/livepkg/livepkg/pkg/manifest"
	"github.com/livepkg/livepkg/pkg/pkg"
	"github.com/livepkg/livepkg/pkg/semver"
	"github.com/livepkg/livepkg/pkg/source"
	"go.opentelemetry.io/otel/attribute"
)

// devVersion is the version given to inline code installed without one.
// Such packages are always rewritten.
const devVersion = "0.0.0"

// Install installs name at versionOrRange. A version that looks like
// "owner/repo[#ref]" installs from GitHub instead of the primary registry.
func (m *Manager) Install(ctx context.Context, name, versionOrRange string) (*pkg.Package, error) {
	return m.lockedInstall(ctx, "Install", packageAttrs(name, versionOrRange), func(ctx context.Context, c *call) (*pkg.Package, error) {
		return m.install(ctx, c, name, versionOrRange)
	})
}

// InstallFromPrimary installs name from the primary registry. An empty
// version means the latest tag.
func (m *Manager) InstallFromPrimary(ctx context.Context, name, version string) (*pkg.Package, error) {
	return m.lockedInstall(ctx, "InstallFromPrimary", packageAttrs(name, version), func(ctx context.Context, c *call) (*pkg.Package, error) {
		return m.installFromPrimary(ctx, c, name, version)
	})
}

// InstallFromGitHub installs the package published at "owner/repo[#ref]".
func (m *Manager) InstallFromGitHub(ctx context.Context, repository string) (*pkg.Package, error) {
	return m.lockedInstall(ctx, "InstallFromGitHub", repoAttrs(repository), func(ctx context.Context, c *call) (*pkg.Package, error) {
		return m.installFromRepository(ctx, c, source.KindGitHub, repository)
	})
}

// InstallFromBitbucket installs the package published at "owner/repo[#ref]".
func (m *Manager) InstallFromBitbucket(ctx context.Context, repository string) (*pkg.Package, error) {
	return m.lockedInstall(ctx, "InstallFromBitbucket", repoAttrs(repository), func(ctx context.Context, c *call) (*pkg.Package, error) {
		return m.installFromRepository(ctx, c, source.KindBitbucket, repository)
	})
}

// InstallFromPath copies the package in dir into the packages root. Unless
// force is set, an installed package satisfying the manifest version is
// returned untouched.
func (m *Manager) InstallFromPath(ctx context.Context, dir string, force bool) (*pkg.Package, error) {
	attrs := []attribute.KeyValue{attribute.String("package.path", dir), attribute.Bool("force", force)}
	return m.lockedInstall(ctx, "InstallFromPath", attrs, func(ctx context.Context, c *call) (*pkg.Package, error) {
		return m.installFromPath(ctx, c, dir, force)
	})
}

// InstallFromCode installs a package whose entry file is code. Without a
// version the package is always reinstalled.
func (m *Manager) InstallFromCode(ctx context.Context, name, code, version string) (*pkg.Package, error) {
	return m.lockedInstall(ctx, "InstallFromCode", packageAttrs(name, version), func(ctx context.Context, c *call) (*pkg.Package, error) {
		return m.installFromCode(ctx, c, name, code, version)
	})
}

func (m *Manager) lockedInstall(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(context.Context, *call) (*pkg.Package, error)) (*pkg.Package, error) {
	var p *pkg.Package
	err := m.locked(ctx, op, attrs, func(ctx context.Context, c *call) error {
		var err error
		p, err = fn(ctx, c)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

func packageAttrs(name, version string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("package.name", name),
		attribute.String("package.version", version),
	}
}

func repoAttrs(repository string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("package.repository", repository)}
}

func (m *Manager) install(ctx context.Context, c *call, name, versionOrRange string) (*pkg.Package, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	spec := source.Classify(name, versionOrRange)
	if spec.Kind == source.KindGitHub {
		return m.installFromRepository(ctx, c, spec.Kind, spec.Version)
	}
	return m.installFromPrimary(ctx, c, spec.Name, spec.Version)
}

func (m *Manager) installFromPrimary(ctx context.Context, c *call, name, version string) (*pkg.Package, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if version == "" {
		version = source.LatestTag
	}

	if p := m.alreadyInstalled(name, version, Satisfies); p != nil {
		m.logger.Debug("already installed", "package", p, "requested", version)
		m.metrics.cacheHits.WithLabelValues(source.KindPrimary.String(), "memory").Inc()
		return p, nil
	}
	if err := m.replaceInstalled(ctx, name); err != nil {
		return nil, err
	}

	if m.cacheMode == UseCache && m.isDownloaded(name, version) {
		m.logger.Debug("using downloaded package", "package", name, "requested", version)
		m.metrics.cacheHits.WithLabelValues(source.KindPrimary.String(), "disk").Inc()
		return m.add(ctx, c, name)
	}

	meta, err := m.npm.Resolve(ctx, source.Specifier{Kind: source.KindPrimary, Name: name, Version: version})
	if err != nil {
		return nil, fmt.Errorf("resolving %s@%s: %w", name, version, err)
	}
	if err := m.download(ctx, m.npm, meta); err != nil {
		return nil, err
	}
	return m.add(ctx, c, meta.Name)
}

func (m *Manager) installFromRepository(ctx context.Context, c *call, kind source.Kind, repository string) (*pkg.Package, error) {
	reg := m.registry(kind)
	meta, err := reg.Resolve(ctx, source.Specifier{Kind: kind, Version: repository})
	if err != nil {
		return nil, fmt.Errorf("resolving %s repository %s: %w", kind, repository, err)
	}
	if err := validateName(meta.Name); err != nil {
		return nil, err
	}

	if p := m.alreadyInstalled(meta.Name, meta.Version, Satisfies); p != nil {
		m.logger.Debug("already installed", "package", p, "repository", repository)
		m.metrics.cacheHits.WithLabelValues(kind.String(), "memory").Inc()
		return p, nil
	}
	if err := m.replaceInstalled(ctx, meta.Name); err != nil {
		return nil, err
	}

	if err := m.download(ctx, reg, meta); err != nil {
		return nil, err
	}
	return m.add(ctx, c, meta.Name)
}

func (m *Manager) installFromPath(ctx context.Context, c *call, dir string, force bool) (*pkg.Package, error) {
	man, err := manifest.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("reading package at %s: %w", dir, err)
	}
	if err := validateName(man.Name); err != nil {
		return nil, err
	}

	if !force {
		if p := m.alreadyInstalled(man.Name, man.Version, Satisfies); p != nil {
			m.logger.Debug("already installed", "package", p, "path", dir)
			m.metrics.cacheHits.WithLabelValues(source.KindLocalPath.String(), "memory").Inc()
			return p, nil
		}
	}
	if err := m.replaceInstalled(ctx, man.Name); err != nil {
		return nil, err
	}

	if force || !m.isDownloaded(man.Name, man.Version) {
		if err := m.removeDownloaded(man.Name); err != nil {
			return nil, err
		}
		m.logger.Info("copying package", "package", man.Name, "from", dir)
		if err := m.store.CopyDir(dir, []string{"node_modules"}, filepath.FromSlash(man.Name)); err != nil {
			_ = m.removeDownloaded(man.Name)
			return nil, fmt.Errorf("copying %s: %w", dir, err)
		}
	}
	return m.add(ctx, c, man.Name)
}

func (m *Manager) installFromCode(ctx context.Context, c *call, name, code, version string) (*pkg.Package, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if version == "" {
		version = devVersion
	}
	if !semver.Valid(version) {
		return nil, &InvalidVersionError{Version: version}
	}

	if version != devVersion {
		if p := m.alreadyInstalled(name, version, Satisfies); p != nil {
			m.logger.Debug("already installed", "package", p)
			m.metrics.cacheHits.WithLabelValues(source.KindInlineCode.String(), "memory").Inc()
			return p, nil
		}
	}
	if err := m.replaceInstalled(ctx, name); err != nil {
		return nil, err
	}

	if version == devVersion || !m.isDownloaded(name, version) {
		if err := m.removeDownloaded(name); err != nil {
			return nil, err
		}
		m.logger.Info("writing package from code", "package", name, "version", version)
		if err := m.writeCode(name, code, version); err != nil {
			_ = m.removeDownloaded(name)
			return nil, err
		}
	}
	return m.add(ctx, c, name)
}

func (m *Manager) writeCode(name, code, version string) error {
	location := m.location(name)
	if err := m.store.WriteFile([]byte(code), 0o644, filepath.FromSlash(name), manifest.DefaultMain); err != nil {
		return fmt.Errorf("writing %s entry file: %w", name, err)
	}
	if err := manifest.Write(location, &manifest.Manifest{Name: name, Version: version}); err != nil {
		return fmt.Errorf("writing %s manifest: %w", name, err)
	}
	return nil
}

// replaceInstalled uninstalls name when some version of it is installed.
func (m *Manager) replaceInstalled(ctx context.Context, name string) error {
	if old := m.find(name); old != nil {
		m.logger.Info("replacing installed version", "package", old)
		return m.uninstall(ctx, name)
	}
	return nil
}

// download fetches meta unless caching is on and a matching version is
// already on disk.
func (m *Manager) download(ctx context.Context, reg source.Registry, meta *source.Metadata) error {
	if err := validateName(meta.Name); err != nil {
		return err
	}
	if m.cacheMode == UseCache && m.isDownloaded(meta.Name, meta.Version) {
		m.logger.Debug("using downloaded package", "package", meta.Name, "version", meta.Version)
		m.metrics.cacheHits.WithLabelValues(meta.Kind.String(), "disk").Inc()
		return nil
	}
	if err := m.removeDownloaded(meta.Name); err != nil {
		return err
	}

	m.logger.Info("fetching package", "package", meta.Name, "version", meta.Version, "source", meta.Kind)
	if _, err := reg.FetchAndExtract(ctx, m.store.Root(), meta); err != nil {
		return fmt.Errorf("fetching %s@%s: %w", meta.Name, meta.Version, err)
	}
	m.metrics.fetches.WithLabelValues(meta.Kind.String()).Inc()
	return nil
}

// add builds the record for the package on disk, installs its
// dependencies and registers it.
func (m *Manager) add(ctx context.Context, c *call, name string) (*pkg.Package, error) {
	man, err := m.readManifest(name)
	if err != nil {
		return nil, fmt.Errorf("loading installed package %s: %w", name, err)
	}
	p := pkg.FromManifest(m.location(name), man)
	if p.Name != name {
		return nil, fmt.Errorf("package in %s is named %q, want %q", p.Location, p.Name, name)
	}

	if err := m.installDependencies(ctx, c, p); err != nil {
		return nil, err
	}

	m.register(p)
	m.logger.Info("installed package", "package", p)
	return p, nil
}

// isDownloaded reports whether the packages root already holds name at a
// version satisfying version. The latest tag never counts.
func (m *Manager) isDownloaded(name, version string) bool {
	if version == "" {
		version = ">0.0.1"
	}
	if version == source.LatestTag {
		return false
	}

	man, err := m.readManifest(name)
	if err != nil {
		return false
	}
	return man.Name == name && semver.Satisfies(man.Version, version)
}

// readManifest reads and validates the manifest of the package installed
// under name in the packages root.
func (m *Manager) readManifest(name string) (*manifest.Manifest, error) {
	dir := filepath.FromSlash(name)
	ok, err := m.store.Exists(dir, manifest.FileName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s has no %s: %w", m.location(name), manifest.FileName, fs.ErrNotExist)
	}

	data, err := m.store.ReadFile(dir, manifest.FileName)
	if err != nil {
		return nil, fmt.Errorf("reading %s manifest: %w", name, err)
	}
	man, err := manifest.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.location(name), err)
	}
	if err := man.Validate(m.location(name)); err != nil {
		return nil, err
	}
	return man, nil
}

func (m *Manager) removeDownloaded(name string) error {
	return m.store.Remove(filepath.FromSlash(name))
}

// alreadyInstalled returns the live record; callers outside the package get
// a clone.
func (m *Manager) alreadyInstalled(name, version string, mode MatchMode) *pkg.Package {
	p := m.find(name)
	if p == nil {
		return nil
	}
	if version == "" || semver.Satisfies(p.Version, version) {
		return p
	}
	if mode == SatisfiesOrGreater && semver.GreaterThanRange(p.Version, version) {
		return p
	}
	return nil
}

// removeEmptyScope deletes the "@scope" directory left behind by the last
// scoped package in it.
func (m *Manager) removeEmptyScope(name string) {
	scope, ok := cutScope(name)
	if !ok {
		return
	}
	removed, err := m.store.RemoveEmptyDir(scope)
	if err != nil {
		m.logger.Debug("keeping scope directory", "scope", scope, "err", err)
		return
	}
	if removed {
		m.logger.Debug("removed empty scope directory", "scope", scope)
	}
}

func cutScope(name string) (string, bool) {
	if !strings.HasPrefix(name, "@") {
		return "", false
	}
	scope, _, ok := strings.Cut(name, "/")
	return scope, ok
}
