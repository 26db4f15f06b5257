package manager

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/livepkg/livepkg/pkg/manifest"
	"github.com/livepkg/livepkg/pkg/pkg"
	"github.com/livepkg/livepkg/pkg/semver"
)

// installDependencies installs the declared dependencies of p in
// declaration order. Ignored, static, host-provided and already satisfied
// dependencies are skipped. A dependency already being installed further
// up the chain is a cycle.
func (m *Manager) installDependencies(ctx context.Context, c *call, p *pkg.Package) error {
	if len(p.Dependencies) == 0 {
		return nil
	}

	chain := append(slices.Clone(c.chain), p.Name)
	for _, dep := range p.Dependencies {
		if reason := m.skipReason(dep); reason != "" {
			m.logger.Debug("skipping dependency", "package", p.Name, "dependency", dep.Name, "range", dep.Range, "reason", reason)
			continue
		}
		if slices.Contains(chain, dep.Name) {
			return &DependencyCycleError{Chain: append(chain, dep.Name)}
		}

		m.logger.Debug("installing dependency", "package", p.Name, "dependency", dep.Name, "range", dep.Range)
		if _, err := m.install(ctx, &call{chain: chain}, dep.Name, dep.Range); err != nil {
			return fmt.Errorf("installing dependency %s of %s: %w", dep.Name, p.Name, err)
		}
	}
	return nil
}

func (m *Manager) skipReason(dep manifest.Dependency) string {
	switch {
	case m.ignored(dep.Name):
		return "ignored"
	case m.isStatic(dep.Name):
		return "static"
	case m.availableFromHost(dep.Name, dep.Range):
		return "host"
	case m.alreadyInstalled(dep.Name, dep.Range, SatisfiesOrGreater) != nil:
		return "installed"
	default:
		return ""
	}
}

func (m *Manager) ignored(name string) bool {
	if slices.Contains(m.ignoredNames, name) {
		return true
	}
	for _, re := range m.ignoredPatterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func (m *Manager) isStatic(name string) bool {
	_, ok := m.static[name]
	return ok
}

// availableFromHost reports whether the host modules directory provides
// name at a version satisfying rng.
func (m *Manager) availableFromHost(name, rng string) bool {
	if m.hostModulesPath == "" {
		return false
	}
	man, err := manifest.Load(filepath.Join(m.hostModulesPath, filepath.FromSlash(name)))
	if err != nil {
		return false
	}
	return semver.Satisfies(man.Version, rng)
}
