// Package main is the pairs command line: one-off backtests over CSV files or ClickHouse
// bars, run history from the local store and bar ingestion.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pairs-backtest/services/config"
)

const version = "v0.4.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app is the per-invocation state shared by the subcommands.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "pairs",
		Short:         "Pairs-trading backtester",
		Long:          "Backtest a long/short stock pair from entry and exit signals, then inspect the stored runs.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv("PAIRS_CONFIG"), "path to YAML config")

	root.AddCommand(
		newRunCmd(a),
		newSummaryCmd(a),
		newRunsCmd(a),
		newScreenCmd(a),
		newIngestCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), "pairs", version)
			},
		},
	)
	return root
}

func (a *app) init() error {
	if a.cfg != nil {
		return nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := config.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.cfg, a.logger = cfg, logger
	return nil
}
