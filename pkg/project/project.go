package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/livepkg/livepkg/pkg/config"
)

// Init writes a default livepkg.toml into dir and gitignores the packages
// directory. It fails if the config file already exists.
func Init(dir string, cfg *config.Config) ([]string, error) {
	path := filepath.Join(dir, config.FileName)

	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%s already exists", config.FileName)
	}

	if cfg == nil {
		cfg = config.Default()
	}
	if err := config.Save(path, cfg); err != nil {
		return nil, err
	}

	return EnsureGitignore(dir, []string{gitignoreEntry(dir, cfg)})
}

// gitignoreEntry is the packages directory relative to dir, with a
// trailing slash.
func gitignoreEntry(dir string, cfg *config.Config) string {
	c := *cfg
	if c.Cwd == "" {
		c.Cwd = dir
	}
	rel, err := filepath.Rel(dir, c.Root())
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(c.Root())
	}
	return filepath.ToSlash(rel) + "/"
}

// EnsureGitignore ensures that each entry appears somewhere in the .gitignore
// file within dir. Only entries not already present are appended. Returns the
// list of entries that were actually added.
func EnsureGitignore(dir string, entries []string) ([]string, error) {
	path := filepath.Join(dir, ".gitignore")

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	present := make(map[string]bool)
	for _, line := range strings.Split(string(existing), "\n") {
		present[strings.TrimSpace(line)] = true
	}

	var toAdd []string
	for _, entry := range entries {
		if !present[entry] && !present[strings.TrimSuffix(entry, "/")] {
			toAdd = append(toAdd, entry)
		}
	}

	if len(toAdd) == 0 {
		return nil, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	// Ensure we start on a new line if file doesn't end with one.
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		if _, err := f.WriteString("\n"); err != nil {
			return nil, err
		}
	}

	for _, entry := range toAdd {
		if _, err := f.WriteString(entry + "\n"); err != nil {
			return nil, err
		}
	}

	return toAdd, nil
}
