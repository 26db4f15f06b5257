// Package store is the filesystem layer under the packages root.
package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	dirPerm = 0o755

	// DefaultRoot is the packages directory name under the working directory.
	DefaultRoot = "plugin_packages"
)

type Store interface {
	// Root returns the absolute packages root.
	Root() string
	// Path returns the filesystem path for the given segments joined under
	// the store root. Does not create or verify the path.
	Path(segments ...string) string
	// Exists reports whether the path at the given segments exists.
	Exists(segments ...string) (bool, error)
	// EnsureDir creates the directory at segments, including parents.
	EnsureDir(segments ...string) error
	// Remove deletes the entire tree at segments. Missing paths are not an error.
	Remove(segments ...string) error
	// RemoveEmptyDir deletes the directory at segments only if it has no
	// entries, and reports whether it did.
	RemoveEmptyDir(segments ...string) (bool, error)
	// WriteFile writes data to the file at segments, creating parent directories.
	WriteFile(data []byte, perm os.FileMode, segments ...string) error
	// ReadFile reads the file at segments.
	ReadFile(segments ...string) ([]byte, error)
	// CopyDir copies the tree at src into segments, skipping any directory
	// whose base name is listed in exclude.
	CopyDir(src string, exclude []string, segments ...string) error
	// PackageDirs lists package directory names under the root, including
	// "@scope/name" pairs. Hidden entries are skipped.
	PackageDirs() ([]string, error)
}

func New(root string) Store {
	return &store{root: root}
}

// Default returns a store rooted at <cwd>/plugin_packages.
func Default() (Store, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	return &store{root: filepath.Join(wd, DefaultRoot)}, nil
}

type store struct {
	root string
}

var _ Store = &store{}

func (s *store) Root() string {
	return s.root
}

func (s *store) Path(segments ...string) string {
	return filepath.Join(append([]string{s.root}, segments...)...)
}

func (s *store) Exists(segments ...string) (bool, error) {
	_, err := os.Stat(s.Path(segments...))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *store) EnsureDir(segments ...string) error {
	if err := os.MkdirAll(s.Path(segments...), dirPerm); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return nil
}

func (s *store) Remove(segments ...string) error {
	if err := os.RemoveAll(s.Path(segments...)); err != nil {
		return fmt.Errorf("removing %s: %w", s.Path(segments...), err)
	}
	return nil
}

func (s *store) RemoveEmptyDir(segments ...string) (bool, error) {
	path := s.Path(segments...)
	entries, err := os.ReadDir(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(entries) > 0 {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, fmt.Errorf("removing %s: %w", path, err)
	}
	return true, nil
}

func (s *store) WriteFile(data []byte, perm os.FileMode, segments ...string) error {
	path := s.Path(segments...)
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return os.WriteFile(path, data, perm)
}

func (s *store) ReadFile(segments ...string) ([]byte, error) {
	return os.ReadFile(s.Path(segments...))
}

func (s *store) CopyDir(src string, exclude []string, segments ...string) error {
	dst := s.Path(segments...)
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			if rel != "." && skip[d.Name()] {
				return filepath.SkipDir
			}
			return os.MkdirAll(target, dirPerm)
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			return copyFile(path, target, info.Mode().Perm())
		default:
			// symlinks and devices are not part of a package
			return nil
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func (s *store) PackageDirs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", s.root, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if !strings.HasPrefix(e.Name(), "@") {
			names = append(names, e.Name())
			continue
		}

		scoped, err := os.ReadDir(filepath.Join(s.root, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading scope %s: %w", e.Name(), err)
		}
		for _, se := range scoped {
			if se.IsDir() && !strings.HasPrefix(se.Name(), ".") {
				names = append(names, e.Name()+"/"+se.Name())
			}
		}
	}
	sort.Strings(names)
	return names, nil
}
