package cmd

import (
	"fmt"
	"os"

	"github.com/livepkg/livepkg/pkg/config"
	"github.com/livepkg/livepkg/pkg/project"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a livepkg project",
		Long:  "Creates a " + config.FileName + " with default settings and adds the packages directory to .gitignore.",
		Args:  cobra.NoArgs,
		RunE:  runInit,
		// init writes the config file; an existing broken one must not stop it.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	cfg := config.Default()
	cfg.PackagesPath = flags.PackagesPath
	if flags.Registry != "" {
		cfg.Registry.URL = flags.Registry
	}

	added, err := project.Init(wd, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", config.FileName)
	for _, entry := range added {
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s to .gitignore\n", entry)
	}
	return nil
}
