// Package manifest reads and writes package.json files.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// FileName is the manifest file inside every package directory.
	FileName = "package.json"
	// DefaultMain is the entry file used when a manifest names none.
	DefaultMain = "index.js"

	filePerm = 0o644
)

// ErrMissingFields matches every MissingFieldsError.
var ErrMissingFields = errors.New("manifest is missing required fields")

// MissingFieldsError reports a manifest without a name or version.
type MissingFieldsError struct {
	Location string
	Fields   []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("invalid package %s: %s required in %s", e.Location, strings.Join(e.Fields, ", "), FileName)
}

func (e *MissingFieldsError) Unwrap() error { return ErrMissingFields }

type Manifest struct {
	Name         string       `json:"name"`
	Version      string       `json:"version"`
	Main         string       `json:"main,omitempty"`
	Dependencies Dependencies `json:"dependencies,omitempty"`
}

// Entry returns the entry file relative to the package directory.
func (m *Manifest) Entry() string {
	if m.Main == "" {
		return DefaultMain
	}
	return m.Main
}

// Validate checks that name and version are present. location is only
// used in the error.
func (m *Manifest) Validate(location string) error {
	var missing []string
	if m.Name == "" {
		missing = append(missing, "name")
	}
	if m.Version == "" {
		missing = append(missing, "version")
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Location: location, Fields: missing}
	}
	return nil
}

// Parse decodes manifest JSON without validating it.
func Parse(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	return m, nil
}

// Load reads and validates the manifest in dir.
func Load(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("reading %s in %q: %w", FileName, dir, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dir, err)
	}
	if err := m.Validate(dir); err != nil {
		return nil, err
	}
	return m, nil
}

// Write stores m as dir/package.json, replacing any previous file
// atomically.
func Write(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(dir, FileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}

// Dependency is one entry of a manifest's dependency map.
type Dependency struct {
	Name  string `json:"name"`
	Range string `json:"range"`
}

// Dependencies keeps the declaration order of the JSON object it was
// decoded from, which decides dependency install order.
type Dependencies []Dependency

// Get returns the range declared for name.
func (d Dependencies) Get(name string) (string, bool) {
	for _, dep := range d {
		if dep.Name == name {
			return dep.Range, true
		}
	}
	return "", false
}

// Has reports whether name is declared.
func (d Dependencies) Has(name string) bool {
	_, ok := d.Get(name)
	return ok
}

// Map returns the dependencies as a plain map.
func (d Dependencies) Map() map[string]string {
	m := make(map[string]string, len(d))
	for _, dep := range d {
		m[dep.Name] = dep.Range
	}
	return m
}

func (d *Dependencies) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*d = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("dependencies: expected object, got %v", tok)
	}

	var out Dependencies
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("dependencies: expected string key, got %v", keyTok)
		}
		var rng string
		if err := dec.Decode(&rng); err != nil {
			return fmt.Errorf("dependencies: %s: %w", key, err)
		}
		out = append(out, Dependency{Name: key, Range: rng})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*d = out
	return nil
}

func (d Dependencies) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, dep := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(dep.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(dep.Range)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
