package main

import (
	"github.com/spf13/cobra"

	"github.com/copyleftdev/gdopt/internal/config"
	"github.com/copyleftdev/gdopt/internal/logging"
)

type rootOptions struct {
	logLevel  string
	logFormat string
	logger    *logging.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "gdopt",
		Short: "Gradient descent optimizer",
		Long: `gdopt minimizes differentiable objectives with plain gradient descent,
either once from the command line or as jobs behind an HTTP and JSON-RPC service.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.NewLogger(&logging.Config{
				Level:  opts.logLevel,
				Format: opts.logFormat,
				Output: "stderr",
			})
			if err != nil {
				return err
			}
			opts.logger = logger
			cmd.SetContext(logging.NewContext(cmd.Context(), logger))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", config.GetEnv("LOG_LEVEL", "warn"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", config.GetEnv("LOG_FORMAT", "text"), "Log format (json, text)")

	cmd.AddCommand(
		newRunCmd(opts),
		newObjectivesCmd(),
		newServeCmd(opts),
	)
	return cmd
}
