// Package pkg defines the in-memory record of an installed package.
package pkg

import (
	"fmt"
	"path/filepath"

	"github.com/livepkg/livepkg/pkg/manifest"
)

// Package is an installed package as the manager tracks it. It can always
// be rebuilt from the manifest in Location.
type Package struct {
	Name         string                `json:"name"`
	Version      string                `json:"version"`
	Location     string                `json:"location"`
	MainFile     string                `json:"mainFile"`
	Dependencies manifest.Dependencies `json:"dependencies"`
}

// FromManifest builds a record from an already-loaded manifest.
func FromManifest(location string, m *manifest.Manifest) *Package {
	deps := m.Dependencies
	if deps == nil {
		deps = manifest.Dependencies{}
	}
	return &Package{
		Name:         m.Name,
		Version:      m.Version,
		Location:     location,
		MainFile:     filepath.Clean(filepath.Join(location, m.Entry())),
		Dependencies: deps,
	}
}

// DependsOn reports whether p declares name as a dependency.
func (p *Package) DependsOn(name string) bool {
	return p.Dependencies.Has(name)
}

// Clone returns a deep copy so callers cannot reach the manager's state.
func (p *Package) Clone() *Package {
	c := *p
	c.Dependencies = append(manifest.Dependencies{}, p.Dependencies...)
	return &c
}

func (p *Package) String() string {
	return fmt.Sprintf("%s@%s", p.Name, p.Version)
}
