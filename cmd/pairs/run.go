package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pairs-backtest/proto"
	"pairs-backtest/services/arrowpipeline"
	"pairs-backtest/services/clickhouse"
	"pairs-backtest/services/cointegration"
	"pairs-backtest/services/engine"
	"pairs-backtest/services/marketdata"
	"pairs-backtest/services/report"
	"pairs-backtest/services/runner"
	"pairs-backtest/services/store"
)

type runOptions struct {
	buyCSV, shortCSV string
	buy, short       string
	from, to         string
	signals          string
	screen           bool
	entryK, exitK    float64
	hedge            string
	lag              int
	tradeOn          string
	capital          float64
	db               string
	csvDir           string
	arrowDir         string
	asJSON           bool
}

func newRunCmd(a *app) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Backtest one pair",
		Long: `Backtest one pair. Prices come from two CSV files (--buy-csv, --short-csv) or from
ClickHouse (--buy, --short, --from, --to). Entry and exit signals come from a CSV of
entry*/exit* columns (--signals) or from the residual band of the pair's cointegration
screen: the configured verdict, or a fresh Engle-Granger test with --screen.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runBacktest(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.buyCSV, "buy-csv", "", "CSV of the long leg")
	f.StringVar(&o.shortCSV, "short-csv", "", "CSV of the short leg")
	f.StringVar(&o.buy, "buy", "", "long leg symbol in ClickHouse")
	f.StringVar(&o.short, "short", "", "short leg symbol in ClickHouse")
	f.StringVar(&o.from, "from", "", "first date (YYYY-MM-DD)")
	f.StringVar(&o.to, "to", "", "last date (YYYY-MM-DD)")
	f.StringVar(&o.signals, "signals", "", "CSV of entry*/exit* condition columns")
	f.BoolVar(&o.screen, "screen", false, "run an Engle-Granger screen instead of using the configured verdict")
	f.Float64Var(&o.entryK, "entry-k", 2, "entry band in residual standard deviations")
	f.Float64Var(&o.exitK, "exit-k", 0, "exit band in residual standard deviations")
	f.StringVar(&o.hedge, "hedge", "auto", `hedge ratio: "auto", "buy,short" or "screen"`)
	f.IntVar(&o.lag, "lag", 1, "execution lag in bars")
	f.StringVar(&o.tradeOn, "trade-on", "close", "price field to trade on (open|high|low|close)")
	f.Float64Var(&o.capital, "capital", 1_000_000, "initial capital per leg")
	f.StringVar(&o.db, "db", "", "sqlite run store to persist into (default storage.sqlite_path)")
	f.StringVar(&o.csvDir, "csv-dir", "", "directory for pairs.csv, buy.csv and short.csv")
	f.StringVar(&o.arrowDir, "arrow-dir", "", "directory for buy.arrow and short.arrow")
	f.BoolVar(&o.asJSON, "json", false, "print the full response as JSON")
	return cmd
}

func (a *app) runBacktest(cmd *cobra.Command, o *runOptions) error {
	ctx := contextOf(cmd)

	pair, err := a.loadPair(ctx, o)
	if err != nil {
		return err
	}

	req := proto.NewBacktestRequest(a.cfg.Backtest)
	req.Buy, req.Short = proto.SeriesFrom(pair.Buy), proto.SeriesFrom(pair.Short)
	if err := o.applyConfig(cmd, &req.Config); err != nil {
		return err
	}

	var verdict *cointegration.Verdict
	needVerdict := o.signals == "" || o.hedge == "screen"
	if needVerdict {
		v, err := a.screenPair(ctx, pair, o.screen)
		if err != nil {
			return err
		}
		verdict = &v
	}

	if o.signals != "" {
		entry, exit, err := readSignals(o.signals, pair)
		if err != nil {
			return err
		}
		req.EntryConditions, req.ExitConditions = entry, exit
	} else {
		bands := verdict.BandRule(o.entryK, o.exitK)
		req.Bands = &bands
	}

	if o.hedge == "screen" {
		req.HedgeRatio, err = verdict.FixedRatio()
	} else {
		req.HedgeRatio, err = engine.ParseHedgeRatio(o.hedge)
	}
	if err != nil {
		return fmt.Errorf("hedge ratio: %w", err)
	}

	opts := runner.Options{Defaults: a.cfg.Backtest, Logger: a.logger}
	dbPath := o.db
	if dbPath == "" {
		dbPath = a.cfg.Storage.SQLitePath
	}
	if dbPath != "" {
		st, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer st.Close()
		opts.Sinks = []runner.Sink{runner.SQLiteSink(st)}
		req.Persist = true
	}

	rec, err := runner.New(opts).Run(ctx, req)
	if err != nil {
		return err
	}
	res := rec.Result

	if o.csvDir != "" {
		if err := writeCSVs(o.csvDir, res); err != nil {
			return err
		}
	}
	if o.arrowDir != "" {
		if err := a.writeArrow(o.arrowDir, res); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if o.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(runner.Response(rec))
	}
	fmt.Fprintf(out, "run %s  %s/%s  hedge %s  %d pair trades  %s\n",
		res.Manifest.RunID, res.Buy.Symbol, res.Short.Symbol, res.Manifest.HedgeRatio,
		len(res.Pairs), rec.Elapsed.Round(time.Millisecond))
	if len(res.Pairs) == 0 {
		fmt.Fprintln(out, "no trades")
		return nil
	}
	return report.WriteSummaryTable(out, res)
}

// applyConfig overlays the flags the user actually set on the configured run parameters.
func (o *runOptions) applyConfig(cmd *cobra.Command, rc *engine.RunConfig) error {
	f := cmd.Flags()
	if f.Changed("lag") {
		rc.ExecutionLag = o.lag
	}
	if f.Changed("trade-on") {
		field, err := engine.ParsePriceField(o.tradeOn)
		if err != nil {
			return err
		}
		rc.TradeOn = field
	}
	if f.Changed("capital") {
		rc.InitialCapital = o.capital
	}
	return nil
}

func (a *app) loadPair(ctx context.Context, o *runOptions) (engine.PairSeries, error) {
	from, to, err := (proto.SourceRequest{From: o.from, To: o.to}).Range()
	if err != nil {
		return engine.PairSeries{}, err
	}
	switch {
	case o.buyCSV != "" && o.shortCSV != "":
		loader := marketdata.NewLoader(a.logger)
		buy, err := loader.LoadCSV(o.buyCSV, symbolOf(o.buy, o.buyCSV))
		if err != nil {
			return engine.PairSeries{}, err
		}
		short, err := loader.LoadCSV(o.shortCSV, symbolOf(o.short, o.shortCSV))
		if err != nil {
			return engine.PairSeries{}, err
		}
		pair := marketdata.Align(marketdata.Window(buy, from, to), marketdata.Window(short, from, to))
		if gaps := marketdata.DetectGaps(pair.Buy, 7*24*time.Hour); len(gaps) > 0 {
			a.logger.Warn("calendar gaps in aligned pair", zap.Int("gaps", len(gaps)), zap.Time("first", gaps[0]))
		}
		return pair, nil
	case o.buy != "" && o.short != "":
		if !a.cfg.ClickHouse.Enabled {
			return engine.PairSeries{}, errors.New("clickhouse is disabled; pass --buy-csv and --short-csv")
		}
		client, err := clickhouse.NewClient(ctx, a.cfg.ClickHouse, a.logger)
		if err != nil {
			return engine.PairSeries{}, err
		}
		defer client.Close()
		return client.LoadPair(ctx, o.buy, o.short, from, to)
	default:
		return engine.PairSeries{}, errors.New("need --buy-csv and --short-csv, or --buy and --short")
	}
}

func symbolOf(symbol, path string) string {
	if symbol != "" {
		return symbol
	}
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

func (a *app) screenPair(ctx context.Context, pair engine.PairSeries, fresh bool) (cointegration.Verdict, error) {
	var screener cointegration.Screener = a.cfg.Screener()
	if fresh {
		screener = cointegration.NewEngleGranger()
	}
	v, err := screener.Screen(ctx, pair.Buy, pair.Short)
	if err != nil {
		return v, fmt.Errorf("screen %s: %w", cointegration.PairKey(pair.Buy.Symbol, pair.Short.Symbol), err)
	}
	if !v.Tradable {
		return v, fmt.Errorf("pair %s is not tradable", cointegration.PairKey(pair.Buy.Symbol, pair.Short.Symbol))
	}
	a.logger.Info("pair screened",
		zap.Float64("hedge_ratio", v.HedgeRatio),
		zap.Float64("sigma", v.Sigma),
		zap.Float64("adf", v.ADFStatistic),
	)
	return v, nil
}

func readSignals(path string, pair engine.PairSeries) (entry, exit [][]bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open signals: %w", err)
	}
	defer f.Close()
	sig, err := marketdata.ReadSignals(f)
	if err != nil {
		return nil, nil, err
	}
	entry, exit = sig.Conditions(pair)
	return entry, exit, nil
}

func writeCSVs(dir string, res *engine.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"pairs.csv", func(w io.Writer) error { return report.WritePairsCSV(w, res.Pairs) }},
		{"buy.csv", func(w io.Writer) error { return report.WriteTradesCSV(w, res.Buy.Trades) }},
		{"short.csv", func(w io.Writer) error { return report.WriteTradesCSV(w, res.Short.Trades) }},
	}
	for _, f := range files {
		if err := writeFile(filepath.Join(dir, f.name), f.write); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) writeArrow(dir string, res *engine.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	p := arrowpipeline.NewPipeline(arrowpipeline.Config{}, nil, a.logger)
	for _, leg := range []struct {
		name string
		leg  engine.LegResult
	}{{"buy.arrow", res.Buy}, {"short.arrow", res.Short}} {
		err := writeFile(filepath.Join(dir, leg.name), func(w io.Writer) error {
			return p.EncodeTrades(w, leg.leg.Symbol, leg.leg.Trades)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
