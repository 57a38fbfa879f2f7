package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peter-kozarec/tessera/internal/dbg"
)

const version = "0.1.0"

var logger = zap.NewNop()

func newRootCmd() *cobra.Command {
	var level, format string

	root := &cobra.Command{
		Use:           "tessera",
		Short:         "Deterministic event driven backtests",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := dbg.NewLogger(level, format)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	root.PersistentFlags().StringVar(&level, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&format, "log-format", dbg.FormatConsole, "log format (console, json)")

	root.AddCommand(newRunCmd(), newSweepCmd(), newStrategiesCmd(), newConvertCmd())
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger.Error("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
