package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// GlobalFileName is the config file inside GlobalConfigDir.
const GlobalFileName = "config.toml"

// EnvPrefix prefixes environment overrides, e.g. LIVEPKG_REGISTRY_URL.
const EnvPrefix = "LIVEPKG"

// Flags are command-line overrides. Zero values leave the configured
// value alone.
type Flags struct {
	ConfigFile   string
	PackagesPath string
	Registry     string
	NoCache      bool
	Verbose      bool
}

// Load resolves configuration with Viper precedence:
// flags > LIVEPKG_* environment > livepkg.toml (or --config) >
// ~/.livepkg/config.toml > defaults.
func Load(flags Flags) (*Config, error) {
	dir, err := GlobalConfigDir()
	if err != nil {
		return nil, err
	}
	globalPath := filepath.Join(dir, GlobalFileName)

	localPath, required := FileName, false
	if flags.ConfigFile != "" {
		localPath, required = flags.ConfigFile, true
	}
	return load(flags, globalPath, localPath, required)
}

// load accepts explicit paths so tests never touch the real home directory.
func load(flags Flags, globalPath, localPath string, required bool) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v)

	// Lowest priority: global config. Ignored if missing.
	v.SetConfigFile(globalPath)
	if err := v.ReadInConfig(); err != nil && !notExist(err) {
		return nil, fmt.Errorf("reading %s: %w", globalPath, err)
	}

	if _, err := os.Stat(localPath); err == nil {
		v.SetConfigFile(localPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", localPath, err)
		}
	} else if required {
		return nil, fmt.Errorf("config file %s: %w", localPath, err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Highest priority: CLI flags
	if flags.PackagesPath != "" {
		v.Set("packages_path", flags.PackagesPath)
	}
	if flags.Registry != "" {
		v.Set("registry.url", flags.Registry)
	}
	if flags.NoCache {
		v.Set("install_mode", InstallModeNoCache)
	}
	if flags.Verbose {
		v.Set("log_level", "debug")
	}

	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		cfg.Cwd = wd
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("cwd", "")
	v.SetDefault("packages_path", "")
	v.SetDefault("install_mode", d.InstallMode)
	v.SetDefault("ignored_dependencies", d.IgnoredDependencies)
	v.SetDefault("static_dependencies", []string{})
	v.SetDefault("host_modules_path", "")
	v.SetDefault("lock_wait", d.LockWait.String())
	v.SetDefault("lock_stale", d.LockStale.String())
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("registry.url", d.Registry.URL)
	v.SetDefault("registry.user_agent", d.Registry.UserAgent)
	for _, section := range []string{"registry", "github", "bitbucket"} {
		for _, key := range []string{"type", "token", "username", "password"} {
			v.SetDefault(section+".auth."+key, "")
		}
	}
}

func notExist(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf) || errors.Is(err, os.ErrNotExist)
}

// GlobalConfigDir returns the path to ~/.livepkg. It is not created; a
// missing global config is the same as an empty one.
func GlobalConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}
	return filepath.Join(home, ".livepkg"), nil
}
