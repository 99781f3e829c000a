// Package runner turns wire requests into engine runs, keeps finished runs addressable by
// id and fans batches out over a bounded worker pool.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pairs-backtest/proto"
	"pairs-backtest/services/engine"
	"pairs-backtest/services/monitoring"
	"pairs-backtest/services/store"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnknownRun     = errors.New("unknown run")
)

// BarSource loads both legs of a pair aligned on their shared dates.
type BarSource interface {
	LoadPair(ctx context.Context, buy, short string, from, to time.Time) (engine.PairSeries, error)
}

// Sink persists a finished run.
type Sink interface {
	Name() string
	Persist(ctx context.Context, res *engine.Result) error
}

// RunLoader reads runs that are no longer held in memory.
type RunLoader interface {
	LoadRun(ctx context.Context, runID string) (*store.StoredRun, error)
}

type Options struct {
	Defaults engine.RunConfig
	Source   BarSource
	Sinks    []Sink
	Archive  RunLoader
	Metrics  *monitoring.Metrics
	Planner  *engine.Planner
	Retain   int
	Logger   *zap.Logger
}

// Record is a finished run.
type Record struct {
	Result  *engine.Result
	Elapsed time.Duration
}

type Runner struct {
	opts       Options
	backtester *engine.Backtester
	validate   *validator.Validate

	mu    sync.RWMutex
	runs  map[string]*Record
	order []string
}

func New(opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Planner == nil {
		opts.Planner = engine.NewPlanner(1, 1)
	}
	if opts.Retain <= 0 {
		opts.Retain = 256
	}
	if opts.Defaults == (engine.RunConfig{}) {
		opts.Defaults = engine.DefaultRunConfig()
	}
	return &Runner{
		opts:       opts,
		backtester: engine.NewBacktester(opts.Logger),
		validate:   validator.New(),
		runs:       make(map[string]*Record),
	}
}

// NewRequest returns a request prefilled with the runner's default run parameters.
func (r *Runner) NewRequest() proto.BacktestRequest {
	return proto.NewBacktestRequest(r.opts.Defaults)
}

// Run executes one request, persists it to every sink when asked to and registers it.
func (r *Runner) Run(ctx context.Context, req proto.BacktestRequest) (*Record, error) {
	start := time.Now()
	res, err := r.execute(ctx, req)
	elapsed := time.Since(start)
	r.opts.Metrics.ObserveRun(err, elapsed, tradeCounts(res))
	if err != nil {
		r.opts.Logger.Warn("backtest failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return nil, err
	}

	if req.Persist {
		for _, sink := range r.opts.Sinks {
			if err := sink.Persist(ctx, res); err != nil {
				return nil, fmt.Errorf("persist run %s to %s: %w", res.Manifest.RunID, sink.Name(), err)
			}
			r.opts.Metrics.ObserveExport(sink.Name(), len(res.Buy.Trades)+len(res.Short.Trades))
		}
	}

	rec := &Record{Result: res, Elapsed: elapsed}
	r.remember(rec)
	return rec, nil
}

func (r *Runner) execute(ctx context.Context, req proto.BacktestRequest) (*engine.Result, error) {
	if err := r.validate.StructCtx(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	pair, err := r.resolvePair(ctx, req)
	if err != nil {
		return nil, err
	}
	in, err := req.Input(pair)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return r.backtester.Run(ctx, in)
}

func (r *Runner) resolvePair(ctx context.Context, req proto.BacktestRequest) (engine.PairSeries, error) {
	pair, inline, err := req.InlinePair()
	if err != nil {
		return engine.PairSeries{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if inline {
		return pair, nil
	}
	if req.Source == nil {
		return engine.PairSeries{}, fmt.Errorf("%w: need buy and short series or a source", ErrInvalidRequest)
	}
	if r.opts.Source == nil {
		return engine.PairSeries{}, fmt.Errorf("%w: no bar source configured", ErrInvalidRequest)
	}
	from, to, err := req.Source.Range()
	if err != nil {
		return engine.PairSeries{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return r.opts.Source.LoadPair(ctx, req.Source.Buy, req.Source.Short, from, to)
}

func tradeCounts(res *engine.Result) map[string][2]int {
	if res == nil {
		return nil
	}
	count := func(trades []engine.TradeRecord) [2]int {
		won := 0
		for _, t := range trades {
			if t.NetProfit > 0 {
				won++
			}
		}
		return [2]int{len(trades), won}
	}
	return map[string][2]int{"buy": count(res.Buy.Trades), "short": count(res.Short.Trades)}
}

func (r *Runner) remember(rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := rec.Result.Manifest.RunID
	r.runs[id] = rec
	r.order = append(r.order, id)
	for len(r.order) > r.opts.Retain {
		delete(r.runs, r.order[0])
		r.order = r.order[1:]
	}
}

// Get returns a run held in memory.
func (r *Runner) Get(runID string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.runs[runID]
	return rec, ok
}

// Lookup finds a run in memory first and then in the archive.
func (r *Runner) Lookup(ctx context.Context, runID string) (*engine.Result, error) {
	if rec, ok := r.Get(runID); ok {
		return rec.Result, nil
	}
	if r.opts.Archive == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	stored, err := r.opts.Archive.LoadRun(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	if err != nil {
		return nil, err
	}
	return stored.Result()
}

// Summary recomputes the summary and equity curve of one selection of a run.
func (r *Runner) Summary(ctx context.Context, req proto.SummaryRequest) (*proto.SummaryResponse, error) {
	sel, err := engine.ParseSelection(req.Select)
	if err != nil {
		return nil, err
	}
	res, err := r.Lookup(ctx, req.RunID)
	if err != nil {
		return nil, err
	}
	report, err := res.Summary(sel)
	if err != nil {
		return nil, err
	}
	curve, err := res.EquityCurve(sel)
	if err != nil {
		return nil, err
	}
	return &proto.SummaryResponse{RunID: req.RunID, Select: sel, Summary: report.Rounded(), EquityCurve: curve}, nil
}

// Response renders a record for the wire. Selections without trades are left out of the
// summaries map.
func Response(rec *Record) *proto.BacktestResponse {
	res := rec.Result
	out := &proto.BacktestResponse{
		RunID:       res.Manifest.RunID,
		Manifest:    res.Manifest,
		Config:      res.Config,
		Summaries:   make(map[string]engine.SummaryReport, 3),
		Pairs:       res.Pairs,
		BuyTrades:   res.Buy.Trades,
		ShortTrades: res.Short.Trades,
		Events:      len(res.Events.Events),
		ElapsedMs:   rec.Elapsed.Milliseconds(),
	}
	for _, sel := range []engine.Selection{engine.SelectTotal, engine.SelectBuy, engine.SelectShort} {
		if report, err := res.Summary(sel); err == nil {
			out.Summaries[string(sel)] = report.Rounded()
		}
	}
	return out
}

// BatchOutcome is the result of one request of a batch; exactly one field is set.
type BatchOutcome struct {
	Record *Record
	Err    error
}

// RunBatch runs requests in planner-sized chunks on at most MaxWorkers goroutines. A
// failing request does not stop the others; a cancelled context does.
func (r *Runner) RunBatch(ctx context.Context, reqs []proto.BacktestRequest) ([]BatchOutcome, error) {
	out := make([]BatchOutcome, len(reqs))
	chunks := r.opts.Planner.PlanChunks(len(reqs))
	if len(chunks) == 0 {
		return out, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Planner.Workers(len(chunks)))
	for _, chunk := range chunks {
		g.Go(func() error {
			for i := chunk.Start; i < chunk.End; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				rec, err := r.Run(ctx, reqs[i])
				out[i] = BatchOutcome{Record: rec, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	r.opts.Logger.Info("batch finished", zap.Int("requests", len(reqs)), zap.Int("chunks", len(chunks)))
	return out, nil
}
