package manager

import (
	"context"

	"github.com/livepkg/livepkg/pkg/sandbox"
)

// Require loads a module by its full specifier, "name" or "name/path".
// Static dependencies are returned as provided.
func (m *Manager) Require(fullName string) (any, error) {
	name, path := m.loader.SplitRequire(fullName)
	if v, ok := m.static[name]; ok && path == "" {
		return v, nil
	}

	p := m.find(name)
	if p == nil {
		return nil, &NotInstalledError{Name: name}
	}
	p = p.Clone()

	abs, err := m.loader.Resolve(p, path)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("loading module", "package", p.Name, "path", abs)
	return m.loader.Load(p, abs)
}

// SetSandboxTemplate registers the execution template for an installed
// package. A nil template clears it.
func (m *Manager) SetSandboxTemplate(name string, tmpl sandbox.Template) error {
	if m.find(name) == nil {
		return &NotInstalledError{Name: name}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if tmpl == nil {
		delete(m.templates, name)
		return nil
	}
	m.templates[name] = tmpl
	return nil
}

func (m *Manager) SandboxTemplate(name string) (sandbox.Template, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tmpl, ok := m.templates[name]
	return tmpl, ok
}

// RunScript evaluates code with the configured loader.
func (m *Manager) RunScript(ctx context.Context, code string) (any, error) {
	return m.loader.RunScript(ctx, code)
}
