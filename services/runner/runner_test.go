package runner

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairs-backtest/proto"
	"pairs-backtest/services/engine"
	"pairs-backtest/services/monitoring"
	"pairs-backtest/services/store"
)

var day0 = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

func payload(symbol string, closes ...float64) *proto.SeriesPayload {
	p := &proto.SeriesPayload{Symbol: symbol}
	for i, c := range closes {
		p.Bars = append(p.Bars, proto.BarPayload{Date: day0.AddDate(0, 0, i).Format(proto.DateLayout), Open: c, High: c, Low: c, Close: c})
	}
	return p
}

func flags(n int, on ...int) []bool {
	out := make([]bool, n)
	for _, i := range on {
		out[i] = true
	}
	return out
}

func request(r *Runner) proto.BacktestRequest {
	req := r.NewRequest()
	req.Buy = payload("AAA", 100, 102, 105, 101, 99, 104)
	req.Short = payload("BBB", 50, 49, 47, 50, 52, 50)
	req.EntryConditions = [][]bool{flags(6, 0, 3)}
	req.ExitConditions = [][]bool{flags(6, 2, 5)}
	return req
}

type fakeSource struct{ pair engine.PairSeries }

func (f fakeSource) LoadPair(_ context.Context, buy, short string, _, _ time.Time) (engine.PairSeries, error) {
	if buy != f.pair.Buy.Symbol || short != f.pair.Short.Symbol {
		return engine.PairSeries{}, errors.New("unknown pair")
	}
	return f.pair, nil
}

type failingSink struct{}

func (failingSink) Name() string                                  { return "broken" }
func (failingSink) Persist(context.Context, *engine.Result) error { return errors.New("disk full") }

func TestRunInlineRequest(t *testing.T) {
	m := monitoring.New()
	r := New(Options{Metrics: m})
	rec, err := r.Run(context.Background(), request(r))
	require.NoError(t, err)

	res := rec.Result
	assert.Len(t, res.Pairs, 2)
	got, ok := r.Get(res.Manifest.RunID)
	require.True(t, ok)
	assert.Same(t, rec, got)

	resp := Response(rec)
	assert.Equal(t, res.Manifest.RunID, resp.RunID)
	assert.Contains(t, resp.Summaries, "total")
	assert.Contains(t, resp.Summaries, "sellshort")
	assert.Equal(t, 2, resp.Summaries["buy"].TotalTradeNumber)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Trades.WithLabelValues("buy")))
}

func TestRunFromSource(t *testing.T) {
	base := request(New(Options{}))
	buy, _ := base.Buy.Series()
	short, _ := base.Short.Series()
	r := New(Options{Source: fakeSource{engine.PairSeries{Buy: buy, Short: short}}})

	req := r.NewRequest()
	req.Source = &proto.SourceRequest{Buy: "AAA", Short: "BBB"}
	req.EntryConditions, req.ExitConditions = base.EntryConditions, base.ExitConditions
	rec, err := r.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "BBB", rec.Result.Manifest.ShortSymbol)

	req.Source = &proto.SourceRequest{Buy: "AAA", Short: "BBB", From: "June"}
	_, err = r.Run(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRunRejectsBadRequests(t *testing.T) {
	m := monitoring.New()
	r := New(Options{Metrics: m})

	noPrices := r.NewRequest()
	_, err := r.Run(context.Background(), noPrices)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	noSource := r.NewRequest()
	noSource.Source = &proto.SourceRequest{Buy: "A", Short: "B"}
	_, err = r.Run(context.Background(), noSource)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	badConfig := request(r)
	badConfig.Config.InitialCapital = -1
	_, err = r.Run(context.Background(), badConfig)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	mismatched := request(r)
	mismatched.ExitConditions = [][]bool{flags(5)}
	_, err = r.Run(context.Background(), mismatched)
	assert.ErrorIs(t, err, engine.ErrConfiguration)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.Runs.WithLabelValues("error")))
}

func TestPersistAndArchiveLookup(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer s.Close()

	r := New(Options{Sinks: []Sink{SQLiteSink(s)}, Archive: s, Retain: 1})
	req := request(r)
	req.Persist = true
	first, err := r.Run(context.Background(), req)
	require.NoError(t, err)
	_, err = r.Run(context.Background(), request(r))
	require.NoError(t, err)

	id := first.Result.Manifest.RunID
	_, inMemory := r.Get(id)
	assert.False(t, inMemory)

	sum, err := r.Summary(context.Background(), proto.SummaryRequest{RunID: id, Select: "buy"})
	require.NoError(t, err)
	want, err := first.Result.Summary(engine.SelectBuy)
	require.NoError(t, err)
	assert.Equal(t, want.Rounded(), sum.Summary)
	assert.Len(t, sum.EquityCurve.Cumulative, 2)

	_, err = r.Summary(context.Background(), proto.SummaryRequest{RunID: "missing"})
	assert.ErrorIs(t, err, ErrUnknownRun)
	_, err = r.Summary(context.Background(), proto.SummaryRequest{RunID: id, Select: "both"})
	assert.ErrorIs(t, err, engine.ErrConfiguration)
}

func TestPersistFailureIsReported(t *testing.T) {
	r := New(Options{Sinks: []Sink{failingSink{}}})
	req := request(r)
	req.Persist = true
	_, err := r.Run(context.Background(), req)
	assert.ErrorContains(t, err, "broken")

	req.Persist = false
	_, err = r.Run(context.Background(), req)
	assert.NoError(t, err)
}

func TestRunBatch(t *testing.T) {
	r := New(Options{Planner: engine.NewPlanner(2, 3)})
	reqs := make([]proto.BacktestRequest, 5)
	for i := range reqs {
		reqs[i] = request(r)
	}
	reqs[3].HedgeRatio = engine.HedgeRatio{Mode: engine.HedgeFixed, Buy: -1, Short: 1}

	out, err := r.RunBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, out, 5)
	for i, o := range out {
		if i == 3 {
			assert.ErrorIs(t, o.Err, engine.ErrConfiguration)
			assert.Nil(t, o.Record)
			continue
		}
		require.NoError(t, o.Err, i)
		assert.Len(t, o.Record.Result.Pairs, 2)
	}

	empty, err := r.RunBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.RunBatch(ctx, reqs)
	assert.ErrorIs(t, err, context.Canceled)
}
