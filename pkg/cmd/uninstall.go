package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

func newUninstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uninstall [name]",
		Short: "Remove installed packages",
		Long: `Removes a package from the packages directory. Packages that depend on it
are unloaded but stay installed.

--all removes every installed package after a confirmation prompt.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runUninstall,
	}

	cmd.Flags().Bool("all", false, "remove every installed package")
	cmd.Flags().BoolP("yes", "y", false, "with --all, skip the confirmation prompt")

	return cmd
}

func runUninstall(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	yes, _ := cmd.Flags().GetBool("yes")

	if all == (len(args) == 1) {
		return errors.New("requires either a package name or --all")
	}

	ctx := cmd.Context()
	m, _, err := newManager(ctx, Cfg, Logger)
	if err != nil {
		return err
	}

	if !all {
		name := args[0]
		if m.Info(name) == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is not installed\n", name)
			return nil
		}
		if err := m.Uninstall(ctx, name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", name)
		return nil
	}

	installed := m.List()
	if len(installed) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to remove")
		return nil
	}

	if !yes {
		confirmed := false
		err := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Remove all %d package(s) from %s?", len(installed), m.Root())).
					Value(&confirmed),
			),
		).Run()
		if err != nil {
			return fmt.Errorf("confirmation prompt failed: %w", err)
		}
		if !confirmed {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing removed")
			return nil
		}
	}

	if err := m.UninstallAll(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d package(s)\n", len(installed))
	return nil
}
