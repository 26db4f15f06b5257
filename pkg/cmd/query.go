package cmd

import (
	"github.com/livepkg/livepkg/pkg/source"
	"github.com/spf13/cobra"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [name] [version]",
		Short: "Show what a specifier resolves to without installing",
		Long: `Resolves a package name and version, range or dist-tag against its registry
and prints the matching published version. Nothing is written to disk.

--github and --bitbucket query a repository's manifest instead.`,
		Args: cobra.RangeArgs(0, 2),
		RunE: runQuery,
	}

	cmd.Flags().StringP("output", "o", outputTable, "output format: table, json or yaml")
	cmd.Flags().String("github", "", "query a GitHub repository (owner/repo[#ref])")
	cmd.Flags().String("bitbucket", "", "query a Bitbucket repository (owner/repo[#ref])")
	cmd.MarkFlagsMutuallyExclusive("github", "bitbucket")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("output")
	if err := validateOutput(format); err != nil {
		return err
	}
	github, _ := cmd.Flags().GetString("github")
	bitbucket, _ := cmd.Flags().GetString("bitbucket")

	ctx := cmd.Context()
	m, _, err := newManager(ctx, Cfg, Logger)
	if err != nil {
		return err
	}

	var meta *source.Metadata
	switch {
	case github != "":
		meta, err = m.QueryPackageFromGitHub(ctx, github)
	case bitbucket != "":
		meta, err = m.QueryPackageFromBitbucket(ctx, bitbucket)
	default:
		if len(args) == 0 {
			return cobra.MinimumNArgs(1)(cmd, args)
		}
		version := ""
		if len(args) == 2 {
			version = args[1]
		}
		meta, err = m.QueryPackage(ctx, args[0], version)
	}
	if err != nil {
		return err
	}
	return writeMetadata(cmd.OutOrStdout(), format, meta)
}
