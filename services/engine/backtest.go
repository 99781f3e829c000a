package engine

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Input is everything one pair backtest needs.
type Input struct {
	Pair            PairSeries
	EntryConditions [][]bool
	ExitConditions  [][]bool
	Hedge           HedgeRatio
	Config          RunConfig
}

// LegResult is the position, ledger and trade table of one leg.
type LegResult struct {
	Symbol    string        `json:"symbol"`
	Direction Direction     `json:"direction"`
	Positions []float64     `json:"positions"`
	Ledger    []LedgerRow   `json:"ledger"`
	Trades    []TradeRecord `json:"trades"`
}

type Result struct {
	Manifest    Manifest          `json:"manifest"`
	Config      RunConfig         `json:"config"`
	Entry       []bool            `json:"entry"`
	Exit        []bool            `json:"exit"`
	Multipliers []Multiplier      `json:"multipliers"`
	Events      EventLog          `json:"-"`
	Buy         LegResult         `json:"buy"`
	Short       LegResult         `json:"short"`
	Pairs       []PairTradeRecord `json:"pairs"`
}

type Selection string

const (
	SelectTotal Selection = "total"
	SelectBuy   Selection = "buy"
	SelectShort Selection = "sellshort"
)

func ParseSelection(s string) (Selection, error) {
	switch sel := Selection(strings.ToLower(strings.TrimSpace(s))); sel {
	case "":
		return SelectTotal, nil
	case SelectTotal, SelectBuy, SelectShort:
		return sel, nil
	case "short":
		return SelectShort, nil
	}
	return "", newError(KindConfiguration, "unknown result selection %q", s)
}

// Outcomes returns the trade table a selection refers to.
func (r *Result) Outcomes(sel Selection) ([]Outcome, error) {
	var out []Outcome
	switch sel {
	case SelectTotal, "":
		for _, p := range r.Pairs {
			out = append(out, p.Outcome())
		}
	case SelectBuy:
		for _, t := range r.Buy.Trades {
			out = append(out, t.Outcome())
		}
	case SelectShort:
		for _, t := range r.Short.Trades {
			out = append(out, t.Outcome())
		}
	default:
		return nil, newError(KindConfiguration, "unknown result selection %q", sel)
	}
	return out, nil
}

// Summary recomputes the summary report of a selection; nothing is cached.
func (r *Result) Summary(sel Selection) (SummaryReport, error) {
	out, err := r.Outcomes(sel)
	if err != nil {
		return SummaryReport{}, err
	}
	return Summarize(out)
}

func (r *Result) EquityCurve(sel Selection) (EquityCurve, error) {
	out, err := r.Outcomes(sel)
	if err != nil {
		return EquityCurve{}, err
	}
	return NewEquityCurve(out), nil
}

type Backtester struct {
	logger *zap.Logger
}

func NewBacktester(logger *zap.Logger) *Backtester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backtester{logger: logger}
}

// Backtest runs the pipeline with a silent logger.
func Backtest(ctx context.Context, in Input) (*Result, error) {
	return NewBacktester(nil).Run(ctx, in)
}

// Run executes signal combination, sizing, positions, ledgers, trade extraction and pair
// aggregation in that order and stops at the first stage that fails.
func (b *Backtester) Run(ctx context.Context, in Input) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := in.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := in.Hedge.Validate(); err != nil {
		return nil, err
	}
	if err := in.Pair.Validate(cfg.TradeOn); err != nil {
		return nil, err
	}

	entry, err := Combine(in.EntryConditions)
	if err != nil {
		return nil, err
	}
	exit, err := Combine(in.ExitConditions)
	if err != nil {
		return nil, err
	}
	if n := in.Pair.Buy.Len(); len(entry) != n || len(exit) != n {
		return nil, newError(KindConfiguration, "signals have %d/%d bars, prices %d", len(entry), len(exit), n)
	}

	res := &Result{
		Manifest: NewManifest(in.Pair, in.Hedge, cfg),
		Config:   cfg,
		Entry:    entry,
		Exit:     exit,
	}
	log := b.logger.With(zap.String("run_id", res.Manifest.RunID))

	plan, err := PlanPositions(entry, exit, &res.Events)
	if err != nil {
		return nil, err
	}
	res.Multipliers, err = ResolveMultipliers(in.Hedge, in.Pair, cfg.TradeOn, plan.Events)
	if err != nil {
		return nil, err
	}
	log.Debug("positions planned",
		zap.Int("signal_events", len(plan.Events)),
		zap.Int("suppressed", res.Events.Count(EventSuppressed)),
		zap.String("hedge_ratio", in.Hedge.String()),
	)

	res.Buy = LegResult{Symbol: in.Pair.Buy.Symbol, Direction: Long}
	res.Short = LegResult{Symbol: in.Pair.Short.Symbol, Direction: Short}
	for _, leg := range []struct {
		res    *LegResult
		series Series
	}{{&res.Buy, in.Pair.Buy}, {&res.Short, in.Pair.Short}} {
		leg.res.Positions, err = BuildPositions(plan, leg.res.Direction, SizesFor(res.Multipliers, leg.res.Direction), cfg.ExecutionLag, &res.Events)
		if err != nil {
			return nil, err
		}
		leg.res.Ledger, err = BuildLedger(leg.res.Positions, leg.series, cfg.TradeOn, cfg.InitialCapital)
		if err != nil {
			return nil, err
		}
	}

	g, _ := errgroup.WithContext(ctx)
	for _, leg := range []*LegResult{&res.Buy, &res.Short} {
		leg := leg
		g.Go(func() error {
			trades, err := ExtractTrades(leg.Ledger, leg.Direction, cfg.Costs())
			if err != nil {
				return err
			}
			leg.Trades = trades
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.Pairs, err = Aggregate(res.Buy.Trades, res.Short.Trades)
	if err != nil {
		return nil, err
	}
	log.Info("backtest finished",
		zap.String("buy", res.Buy.Symbol),
		zap.String("short", res.Short.Symbol),
		zap.Int("bars", in.Pair.Buy.Len()),
		zap.Int("trades", len(res.Pairs)),
	)
	return res, nil
}
