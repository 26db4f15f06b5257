package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed packages",
		Long:  "Lists the packages in the packages directory, dependencies before the packages that need them.",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}

	cmd.Flags().StringP("output", "o", outputTable, "output format: table, json or yaml")

	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("output")
	if err := validateOutput(format); err != nil {
		return err
	}

	m, _, err := newManager(cmd.Context(), Cfg, Logger)
	if err != nil {
		return err
	}

	packages := m.List()
	if len(packages) == 0 && format == outputTable {
		fmt.Fprintf(cmd.OutOrStdout(), "No packages installed in %s\n", m.Root())
		return nil
	}
	return writePackages(cmd.OutOrStdout(), format, packages)
}
