package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/livepkg/livepkg/pkg/pkg"
	"github.com/spf13/cobra"
)

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install [name] [version]",
		Short: "Install a package and its dependencies",
		Long: `Installs a package into the packages directory.

With a name, the version may be an exact version, a range or a dist-tag
(default "latest"). A version of the form owner/repo[#ref] installs from
GitHub instead of the primary registry.

--path installs a local directory, --github and --bitbucket install a
repository, and --code-file installs a single file as package [name].`,
		Args: cobra.RangeArgs(0, 2),
		RunE: runInstall,
	}

	cmd.Flags().String("path", "", "install the package in a local directory")
	cmd.Flags().Bool("force", false, "with --path, reinstall even if the same version is installed")
	cmd.Flags().String("github", "", "install from a GitHub repository (owner/repo[#ref])")
	cmd.Flags().String("bitbucket", "", "install from a Bitbucket repository (owner/repo[#ref])")
	cmd.Flags().String("code-file", "", "install the contents of a file as the package's entry file")
	cmd.Flags().String("version", "", "with --code-file, the version to record")
	cmd.MarkFlagsMutuallyExclusive("path", "github", "bitbucket", "code-file")

	return cmd
}

func runInstall(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("path")
	force, _ := cmd.Flags().GetBool("force")
	github, _ := cmd.Flags().GetString("github")
	bitbucket, _ := cmd.Flags().GetString("bitbucket")
	codeFile, _ := cmd.Flags().GetString("code-file")
	version, _ := cmd.Flags().GetString("version")

	ctx := cmd.Context()
	m, _, err := newManager(ctx, Cfg, Logger)
	if err != nil {
		return err
	}

	var p *pkg.Package
	switch {
	case path != "":
		if len(args) > 0 {
			return errors.New("--path takes no arguments")
		}
		p, err = m.InstallFromPath(ctx, path, force)
	case github != "":
		if len(args) > 0 {
			return errors.New("--github takes no arguments")
		}
		p, err = m.InstallFromGitHub(ctx, github)
	case bitbucket != "":
		if len(args) > 0 {
			return errors.New("--bitbucket takes no arguments")
		}
		p, err = m.InstallFromBitbucket(ctx, bitbucket)
	case codeFile != "":
		if len(args) != 1 {
			return errors.New("--code-file requires exactly one package name")
		}
		code, rerr := os.ReadFile(codeFile)
		if rerr != nil {
			return fmt.Errorf("reading %s: %w", codeFile, rerr)
		}
		p, err = m.InstallFromCode(ctx, args[0], string(code), version)
	default:
		if len(args) == 0 {
			return errors.New("requires a package name")
		}
		versionOrRange := ""
		if len(args) == 2 {
			versionOrRange = args[1]
		}
		p, err = m.Install(ctx, args[0], versionOrRange)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Installed %s into %s\n", p, p.Location)
	return nil
}
