package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/gdopt/internal/config"
	"github.com/copyleftdev/gdopt/internal/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the optimization service",
		Long:  `Serves the REST and JSON-RPC optimization API with health and Prometheus metrics endpoints.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.HTTP.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.Run(ctx, cfg, root.logger.WithField("service", "gdopt-server"))
		},
	}

	cmd.Flags().IntVar(&port, "port", config.GetEnvAsInt("HTTP_PORT", 8080), "HTTP listen port")
	return cmd
}
