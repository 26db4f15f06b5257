package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/livepkg/livepkg/pkg/transport"
)

func writeTestConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestLoad(t *testing.T) {
	tests := map[string]struct {
		global string
		local  string
		env    map[string]string
		flags  Flags
		check  func(t *testing.T, cfg *Config)
	}{
		"defaults without files": {
			check: func(t *testing.T, cfg *Config) {
				want := Default()
				if cfg.InstallMode != want.InstallMode {
					t.Errorf("InstallMode = %q, want %q", cfg.InstallMode, want.InstallMode)
				}
				if !reflect.DeepEqual(cfg.IgnoredDependencies, want.IgnoredDependencies) {
					t.Errorf("IgnoredDependencies = %v, want %v", cfg.IgnoredDependencies, want.IgnoredDependencies)
				}
				if cfg.LockWait != want.LockWait || cfg.LockStale != want.LockStale {
					t.Errorf("lock timeouts = %s/%s, want %s/%s", cfg.LockWait, cfg.LockStale, want.LockWait, want.LockStale)
				}
				if cfg.Registry.URL != want.Registry.URL {
					t.Errorf("Registry.URL = %q, want %q", cfg.Registry.URL, want.Registry.URL)
				}
				if cfg.Cwd == "" {
					t.Error("Cwd not filled in")
				}
			},
		},
		"local overrides global": {
			global: "install_mode = \"noCache\"\nlock_wait = \"10s\"\n\n[registry]\nurl = \"https://global.example\"\n",
			local:  "lock_wait = \"30s\"\n\n[registry]\nurl = \"https://local.example\"\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.InstallMode != InstallModeNoCache {
					t.Errorf("InstallMode = %q, want global noCache", cfg.InstallMode)
				}
				if time.Duration(cfg.LockWait) != 30*time.Second {
					t.Errorf("LockWait = %s, want 30s", cfg.LockWait)
				}
				if cfg.Registry.URL != "https://local.example" {
					t.Errorf("Registry.URL = %q, want local", cfg.Registry.URL)
				}
			},
		},
		"auth sections": {
			local: "[registry.auth]\ntype = \"token\"\ntoken = \"npm-secret\"\n\n[github.auth]\ntype = \"basic\"\nusername = \"octo\"\npassword = \"pw\"\n",
			check: func(t *testing.T, cfg *Config) {
				if want := (transport.Auth{Type: "token", Token: "npm-secret"}); cfg.Registry.Auth != want {
					t.Errorf("Registry.Auth = %+v, want %+v", cfg.Registry.Auth, want)
				}
				if want := (transport.Auth{Type: "basic", Username: "octo", Password: "pw"}); cfg.GitHub.Auth != want {
					t.Errorf("GitHub.Auth = %+v, want %+v", cfg.GitHub.Auth, want)
				}
			},
		},
		"environment overrides files": {
			local: "[registry]\nurl = \"https://local.example\"\n",
			env: map[string]string{
				"LIVEPKG_REGISTRY_URL":         "https://env.example",
				"LIVEPKG_IGNORED_DEPENDENCIES": "^@types/,^fsevents$",
				"LIVEPKG_BITBUCKET_AUTH_TYPE":  "basic",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Registry.URL != "https://env.example" {
					t.Errorf("Registry.URL = %q, want env value", cfg.Registry.URL)
				}
				if want := []string{"^@types/", "^fsevents$"}; !reflect.DeepEqual(cfg.IgnoredDependencies, want) {
					t.Errorf("IgnoredDependencies = %v, want %v", cfg.IgnoredDependencies, want)
				}
				if cfg.Bitbucket.Auth.Type != "basic" {
					t.Errorf("Bitbucket.Auth.Type = %q, want basic", cfg.Bitbucket.Auth.Type)
				}
			},
		},
		"flags override everything": {
			local: "packages_path = \"from-file\"\n\n[registry]\nurl = \"https://local.example\"\n",
			env:   map[string]string{"LIVEPKG_REGISTRY_URL": "https://env.example"},
			flags: Flags{PackagesPath: "/abs/packages", Registry: "https://flag.example", NoCache: true, Verbose: true},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Root() != "/abs/packages" {
					t.Errorf("Root() = %q, want /abs/packages", cfg.Root())
				}
				if cfg.Registry.URL != "https://flag.example" {
					t.Errorf("Registry.URL = %q, want flag value", cfg.Registry.URL)
				}
				if cfg.InstallMode != InstallModeNoCache {
					t.Errorf("InstallMode = %q, want noCache", cfg.InstallMode)
				}
				if cfg.LogLevel != "debug" {
					t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
				}
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			globalPath := filepath.Join(dir, "global-config.toml")
			localPath := filepath.Join(dir, FileName)

			if tc.global != "" {
				writeTestConfig(t, globalPath, tc.global)
			}
			if tc.local != "" {
				writeTestConfig(t, localPath, tc.local)
			}
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := load(tc.flags, globalPath, localPath, false)
			if err != nil {
				t.Fatalf("load() error = %v", err)
			}
			tc.check(t, cfg)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]struct {
		local    string
		required bool
	}{
		"missing required file": {required: true},
		"bad install mode":      {local: "install_mode = \"sometimes\"\n"},
		"bad pattern":           {local: "ignored_dependencies = [\"(\"]\n"},
		"bad duration":          {local: "lock_wait = \"soon\"\n"},
		"malformed toml":        {local: "install_mode = \n"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			localPath := filepath.Join(dir, FileName)
			if tc.local != "" {
				writeTestConfig(t, localPath, tc.local)
			}

			if _, err := load(Flags{}, filepath.Join(dir, "none.toml"), localPath, tc.required); err == nil {
				t.Error("load() error = nil, want error")
			}
		})
	}
}

func TestRoot(t *testing.T) {
	tests := map[string]struct {
		cfg  Config
		want string
	}{
		"default":  {cfg: Config{Cwd: "/work"}, want: "/work/plugin_packages"},
		"relative": {cfg: Config{Cwd: "/work", PackagesPath: "vendor/pkgs"}, want: "/work/vendor/pkgs"},
		"absolute": {cfg: Config{Cwd: "/work", PackagesPath: "/opt/pkgs"}, want: "/opt/pkgs"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := tc.cfg.Root(); got != filepath.FromSlash(tc.want) {
				t.Errorf("Root() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	cfg := Default()
	cfg.LockWait = Duration(45 * time.Second)
	cfg.StaticDependencies = []string{"react"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := load(Flags{}, filepath.Join(dir, "none.toml"), path, true)
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if got.LockWait != cfg.LockWait {
		t.Errorf("LockWait = %s, want %s", got.LockWait, cfg.LockWait)
	}
	if !reflect.DeepEqual(got.StaticDependencies, cfg.StaticDependencies) {
		t.Errorf("StaticDependencies = %v, want %v", got.StaticDependencies, cfg.StaticDependencies)
	}
}

func TestLoadReadsGlobalConfigFromHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	chdir(t, t.TempDir())

	dir, err := GlobalConfigDir()
	if err != nil {
		t.Fatalf("GlobalConfigDir() error = %v", err)
	}
	if want := filepath.Join(home, ".livepkg"); dir != want {
		t.Fatalf("GlobalConfigDir() = %q, want %q", dir, want)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatal("GlobalConfigDir() created the directory")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeTestConfig(t, filepath.Join(dir, GlobalFileName), `install_mode = "noCache"`)

	cfg, err := Load(Flags{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.InstallMode != InstallModeNoCache {
		t.Errorf("InstallMode = %q, want %q from the global config", cfg.InstallMode, InstallModeNoCache)
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir(%q) error = %v", dir, err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
