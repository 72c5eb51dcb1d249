package main

import (
	"net"

	"github.com/RajVeer36399/tmdb-proxy/pkg/server"
	"github.com/spf13/cobra"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the cache read-only over HTTP",
		Long: `Serve GET /cache/<key> from the configured cache store, GET /ping as a
liveness probe and GET /metrics for Prometheus.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger(cfg, "server")

			store, closeStore, err := openStore(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer closeStore()

			if addr == "" {
				addr = net.JoinHostPort("", cfg.Port)
			}
			return server.New(store, logger).ListenAndServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :$PORT)")
	return cmd
}
