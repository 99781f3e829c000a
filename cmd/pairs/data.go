package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pairs-backtest/services/clickhouse"
	"pairs-backtest/services/cointegration"
	"pairs-backtest/services/marketdata"
)

func newScreenCmd(a *app) *cobra.Command {
	var buyCSV, shortCSV string
	cmd := &cobra.Command{
		Use:   "screen",
		Short: "Run an Engle-Granger cointegration test on two CSV price files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if buyCSV == "" || shortCSV == "" {
				return errors.New("need --buy-csv and --short-csv")
			}
			loader := marketdata.NewLoader(a.logger)
			buy, err := loader.LoadCSV(buyCSV, symbolOf("", buyCSV))
			if err != nil {
				return err
			}
			short, err := loader.LoadCSV(shortCSV, symbolOf("", shortCSV))
			if err != nil {
				return err
			}
			pair := marketdata.Align(buy, short)
			v, err := cointegration.NewEngleGranger().Screen(contextOf(cmd), pair.Buy, pair.Short)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Pair string `json:"pair"`
				cointegration.Verdict
			}{cointegration.PairKey(pair.Buy.Symbol, pair.Short.Symbol), v})
		},
	}
	cmd.Flags().StringVar(&buyCSV, "buy-csv", "", "CSV of the long leg")
	cmd.Flags().StringVar(&shortCSV, "short-csv", "", "CSV of the short leg")
	return cmd
}

func newIngestCmd(a *app) *cobra.Command {
	var path, symbol string
	var initSchema bool
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load a CSV of daily bars into ClickHouse",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				return errors.New("need --csv")
			}
			ctx := contextOf(cmd)
			if initSchema {
				client, err := clickhouse.NewClient(ctx, a.cfg.ClickHouse, a.logger)
				if err != nil {
					return err
				}
				err = client.InitSchema(ctx)
				client.Close()
				if err != nil {
					return err
				}
			}
			series, err := marketdata.NewLoader(a.logger).LoadCSV(path, symbolOf(symbol, path))
			if err != nil {
				return err
			}
			w := clickhouse.NewBatchWriter(a.cfg.ClickHouse, a.cfg.ClickHouse.BarsTable, a.logger)
			if err := clickhouse.IngestSeries(ctx, w, series); err != nil {
				return err
			}
			a.logger.Info("bars ingested", zap.String("symbol", series.Symbol), zap.Int("rows", w.Written()))
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bars\n", series.Symbol, w.Written())
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "csv", "", "CSV of daily bars")
	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol to store the bars under (default file name)")
	cmd.Flags().BoolVar(&initSchema, "init-schema", false, "create the database and tables first")
	return cmd
}
