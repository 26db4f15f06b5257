package manager

import (
	"context"
	"fmt"
	"slices"

	"github.com/livepkg/livepkg/pkg/pkg"
	"go.opentelemetry.io/otel/attribute"
)

// Uninstall removes name from disk. Packages depending on it keep their
// files and records but are unloaded, as are their own dependents.
// Uninstalling a package that is not installed is a no-op.
func (m *Manager) Uninstall(ctx context.Context, name string) error {
	attrs := []attribute.KeyValue{attribute.String("package.name", name)}
	return m.locked(ctx, "Uninstall", attrs, func(ctx context.Context, _ *call) error {
		return m.uninstall(ctx, name)
	})
}

// UninstallAll uninstalls every package, most recently installed first.
func (m *Manager) UninstallAll(ctx context.Context) error {
	return m.locked(ctx, "UninstallAll", nil, func(ctx context.Context, _ *call) error {
		installed := m.List()
		slices.Reverse(installed)
		for _, p := range installed {
			if err := m.uninstall(ctx, p.Name); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *Manager) uninstall(_ context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	p := m.find(name)
	if p == nil {
		m.logger.Debug("not installed", "package", name)
		return nil
	}

	m.unregister(name)
	m.unloadWithDependents(p, map[string]bool{})

	if err := m.removeDownloaded(name); err != nil {
		return fmt.Errorf("uninstalling %s: %w", name, err)
	}
	m.removeEmptyScope(name)
	m.metrics.uninstalls.Inc()
	m.logger.Info("uninstalled package", "package", p)
	return nil
}

// unloadWithDependents unloads p and, transitively, every installed
// package that depends on it.
func (m *Manager) unloadWithDependents(p *pkg.Package, seen map[string]bool) {
	if seen[p.Name] {
		return
	}
	seen[p.Name] = true

	m.logger.Debug("unloading package", "package", p.Name)
	m.loader.Unload(p)

	for _, dependent := range m.dependents(p.Name) {
		m.unloadWithDependents(dependent, seen)
	}
}

func (m *Manager) dependents(name string) []*pkg.Package {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*pkg.Package
	for _, p := range m.packages {
		if p.DependsOn(name) {
			out = append(out, p)
		}
	}
	return out
}
