package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pairs-backtest/services/engine"
	"pairs-backtest/services/report"
	"pairs-backtest/services/store"
)

func (a *app) openStore(path string) (*store.Store, error) {
	if path == "" {
		path = a.cfg.Storage.SQLitePath
	}
	if path == "" {
		return nil, errors.New("no run store: pass --db or set storage.sqlite_path")
	}
	return store.Open(path)
}

func newSummaryCmd(a *app) *cobra.Command {
	var db, selection string
	var curve bool
	cmd := &cobra.Command{
		Use:   "summary <run-id>",
		Short: "Recompute the summary of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := engine.ParseSelection(selection)
			if err != nil {
				return err
			}
			st, err := a.openStore(db)
			if err != nil {
				return err
			}
			defer st.Close()

			stored, err := st.LoadRun(contextOf(cmd), args[0])
			if err != nil {
				return err
			}
			res, err := stored.Result()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !curve {
				return report.WriteSummaryTable(out, res)
			}
			ec, err := res.EquityCurve(sel)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "trade\tcumulative\tnew_high")
			high := make(map[int]bool, len(ec.NewHighs))
			for _, i := range ec.NewHighs {
				high[i] = true
			}
			for i, c := range ec.Cumulative {
				mark := ""
				if high[i] {
					mark = "*"
				}
				fmt.Fprintf(tw, "%d\t%.2f\t%s\n", i+1, c, mark)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&db, "db", "", "sqlite run store (default storage.sqlite_path)")
	cmd.Flags().StringVar(&selection, "select", "total", "trade selection for the equity curve (total|buy|sellshort)")
	cmd.Flags().BoolVar(&curve, "curve", false, "print the equity curve instead of the summary table")
	return cmd
}

func newRunsCmd(a *app) *cobra.Command {
	var db string
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore(db)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(contextOf(cmd), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tBUY\tSHORT\tTRADES\tCREATED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.RunID, r.BuySymbol, r.ShortSymbol, r.Trades, r.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&db, "db", "", "sqlite run store (default storage.sqlite_path)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
