package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/charmbracelet/log"
	"github.com/livepkg/livepkg/pkg/lock"
	"github.com/livepkg/livepkg/pkg/source"
	"github.com/livepkg/livepkg/pkg/store"
	"github.com/livepkg/livepkg/pkg/transport"
	"github.com/pelletier/go-toml/v2"
)

// FileName is the project-local configuration file.
const FileName = "livepkg.toml"

const (
	InstallModeUseCache = "useCache"
	InstallModeNoCache  = "noCache"
)

// DefaultIgnoredDependencies are type-only packages that never carry
// runtime code.
var DefaultIgnoredDependencies = []string{"^@types/"}

type Config struct {
	Cwd          string `toml:"cwd,omitempty" mapstructure:"cwd"`
	PackagesPath string `toml:"packages_path,omitempty" mapstructure:"packages_path"`
	InstallMode  string `toml:"install_mode" mapstructure:"install_mode"`

	// IgnoredDependencies are regular expressions matched against
	// dependency names.
	IgnoredDependencies []string `toml:"ignored_dependencies" mapstructure:"ignored_dependencies"`
	// StaticDependencies name modules the host provides itself.
	StaticDependencies []string `toml:"static_dependencies,omitempty" mapstructure:"static_dependencies"`
	HostModulesPath    string   `toml:"host_modules_path,omitempty" mapstructure:"host_modules_path"`

	LockWait  Duration `toml:"lock_wait" mapstructure:"lock_wait"`
	LockStale Duration `toml:"lock_stale" mapstructure:"lock_stale"`
	LogLevel  string   `toml:"log_level,omitempty" mapstructure:"log_level"`

	Registry  Registry `toml:"registry" mapstructure:"registry"`
	GitHub    GitHost  `toml:"github,omitempty" mapstructure:"github"`
	Bitbucket GitHost  `toml:"bitbucket,omitempty" mapstructure:"bitbucket"`
}

type Registry struct {
	URL       string         `toml:"url" mapstructure:"url"`
	UserAgent string         `toml:"user_agent,omitempty" mapstructure:"user_agent"`
	Auth      transport.Auth `toml:"auth,omitempty" mapstructure:"auth"`
}

type GitHost struct {
	Auth transport.Auth `toml:"auth,omitempty" mapstructure:"auth"`
}

// Duration is a time.Duration written as "120s" in TOML.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// Default returns the configuration used when no file sets anything.
func Default() *Config {
	return &Config{
		InstallMode:         InstallModeUseCache,
		IgnoredDependencies: append([]string(nil), DefaultIgnoredDependencies...),
		LockWait:            Duration(lock.DefaultWait),
		LockStale:           Duration(lock.DefaultStale),
		LogLevel:            "info",
		Registry: Registry{
			URL:       source.DefaultNPMRegistryURL,
			UserAgent: transport.DefaultUserAgent,
		},
	}
}

// Root returns the absolute packages directory.
func (c *Config) Root() string {
	path := c.PackagesPath
	if path == "" {
		path = store.DefaultRoot
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Cwd, path)
}

// IgnoredPatterns compiles IgnoredDependencies.
func (c *Config) IgnoredPatterns() ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(c.IgnoredDependencies))
	for _, expr := range c.IgnoredDependencies {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("ignored dependency pattern %q: %w", expr, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func (c *Config) Validate() error {
	switch c.InstallMode {
	case InstallModeUseCache, InstallModeNoCache:
	default:
		return fmt.Errorf("install_mode must be %q or %q, got %q", InstallModeUseCache, InstallModeNoCache, c.InstallMode)
	}
	if _, err := c.IgnoredPatterns(); err != nil {
		return err
	}
	if c.LogLevel != "" {
		if _, err := log.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	if c.LockWait < 0 || c.LockStale < 0 {
		return fmt.Errorf("lock_wait and lock_stale must not be negative")
	}
	return nil
}

func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

// Save writes cfg as TOML to path.
func Save(path string, cfg *Config) error {
	data, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}
