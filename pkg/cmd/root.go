package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/livepkg/livepkg/pkg/archive"
	"github.com/livepkg/livepkg/pkg/config"
	"github.com/livepkg/livepkg/pkg/manager"
	"github.com/livepkg/livepkg/pkg/source"
	"github.com/livepkg/livepkg/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	flags config.Flags

	// Cfg holds the resolved configuration, available to all subcommands
	// after PersistentPreRunE completes.
	Cfg *config.Config
	// Logger is configured from Cfg.LogLevel.
	Logger *log.Logger
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "livepkg",
		Short: "Runtime package manager",
		Long:  "livepkg installs npm-style packages and their dependencies into a packages directory at runtime.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags)
			if err != nil {
				return err
			}
			Cfg = cfg
			Logger = newLogger(cfg)
			return nil
		},
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigFile, "config", "", "config file (default ./"+config.FileName+")")
	pf.StringVar(&flags.PackagesPath, "packages-path", "", "directory packages are installed into")
	pf.StringVar(&flags.Registry, "registry", "", "primary registry URL")
	pf.BoolVar(&flags.NoCache, "no-cache", false, "fetch packages even when a matching version is on disk")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newInitCmd())
	root.AddCommand(newInstallCmd())
	root.AddCommand(newUninstallCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newQueryCmd())
	root.AddCommand(newServeCmd())

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "livepkg",
		ReportTimestamp: true,
	})
	// Validate already rejected unknown levels.
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

// newManager builds a manager for cfg and restores the packages earlier
// processes installed. The returned registry holds the manager's metrics.
func newManager(ctx context.Context, cfg *config.Config, logger *log.Logger) (*manager.Manager, *prometheus.Registry, error) {
	client := transport.New(transport.WithUserAgent(cfg.Registry.UserAgent))
	fetcher := archive.New(client)

	npm, err := source.NewNPMRegistry(cfg.Registry.URL, cfg.Registry.Auth, client, fetcher)
	if err != nil {
		return nil, nil, fmt.Errorf("registry: %w", err)
	}
	github, err := source.NewGitHubRegistry(cfg.GitHub.Auth, client, fetcher)
	if err != nil {
		return nil, nil, fmt.Errorf("github: %w", err)
	}
	bitbucket, err := source.NewBitbucketRegistry(cfg.Bitbucket.Auth, client, fetcher)
	if err != nil {
		return nil, nil, fmt.Errorf("bitbucket: %w", err)
	}

	patterns, err := cfg.IgnoredPatterns()
	if err != nil {
		return nil, nil, err
	}

	// The CLI has no host modules to hand out; the names only stop those
	// dependencies from being installed.
	static := make(map[string]any, len(cfg.StaticDependencies))
	for _, name := range cfg.StaticDependencies {
		static[name] = name
	}

	reg := prometheus.NewRegistry()
	m, err := manager.New(manager.Options{
		Root:               cfg.Root(),
		NPM:                npm,
		GitHub:             github,
		Bitbucket:          bitbucket,
		Logger:             logger,
		CacheMode:          manager.CacheMode(cfg.InstallMode),
		IgnoredPatterns:    patterns,
		StaticDependencies: static,
		HostModulesPath:    cfg.HostModulesPath,
		LockWait:           time.Duration(cfg.LockWait),
		LockStale:          time.Duration(cfg.LockStale),
		Registerer:         reg,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := m.Restore(ctx); err != nil {
		return nil, nil, err
	}
	return m, reg, nil
}
