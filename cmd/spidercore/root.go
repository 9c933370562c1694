package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skylineware/spidercore/internal/logging"
)

type loggerKeyType string

const loggerKey loggerKeyType = "logger"

var cfgFile string

// newRootCmd builds the root command. PersistentPreRunE wires a zap
// logger into the command's context exactly once, before any
// subcommand runs, following the teacher's root-command logging setup.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "spidercore",
		Short: "Run a distributed crawler core spider process",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			development, _ := cmd.Flags().GetBool("dev")
			logger, err := logging.New(development)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), loggerKey, logger))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a spidercore config file")
	root.PersistentFlags().Bool("dev", false, "enable development logging")
	root.AddCommand(newRunCmd())
	return root
}

func loggerFromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}
