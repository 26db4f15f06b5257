package cmd

import (
	"github.com/livepkg/livepkg/pkg/serve"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the package status server",
		Long: `Starts a read-only HTTP server describing the installed packages.

  GET /packages                 installed packages, dependencies first
  GET /packages/{name}          one package (also /packages/@scope/name)
  GET /healthz                  liveness
  GET /metrics                  Prometheus metrics

The server rereads the packages directory periodically so installs made by
other livepkg processes show up without a restart.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("addr", serve.DefaultAddr, "address to listen on")
	cmd.Flags().Duration("refresh", serve.DefaultRefreshInterval, "how often to reread the packages directory")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return err
	}
	refresh, err := cmd.Flags().GetDuration("refresh")
	if err != nil {
		return err
	}

	m, reg, err := newManager(cmd.Context(), Cfg, Logger)
	if err != nil {
		return err
	}

	srv := &serve.Server{
		Addr:            addr,
		Packages:        m,
		Gatherer:        reg,
		Logger:          Logger,
		RefreshInterval: refresh,
	}
	return srv.ListenAndServe(cmd.Context())
}
