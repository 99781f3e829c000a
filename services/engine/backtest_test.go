package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatPairInput(n int, entry, exit []bool) Input {
	cfg := DefaultRunConfig()
	cfg.ExecutionLag = 1
	return Input{
		Pair:            PairSeries{Buy: series("2330", flat(n, 100)...), Short: series("2303", flat(n, 100)...)},
		EntryConditions: [][]bool{entry},
		ExitConditions:  [][]bool{exit},
		Hedge:           Auto(),
		Config:          cfg,
	}
}

func TestBacktestEntryExitWithLag(t *testing.T) {
	res, err := Backtest(context.Background(), flatPairInput(10, signalAt(10, 2), signalAt(10, 6)))
	require.NoError(t, err)

	require.Len(t, res.Buy.Trades, 1)
	require.Len(t, res.Short.Trades, 1)
	buy, short := res.Buy.Trades[0], res.Short.Trades[0]
	assert.Equal(t, 3, buy.EntryIndex)
	assert.Equal(t, 7, buy.ExitIndex)
	assert.Equal(t, 1000.0, buy.PositionSize)
	assert.Equal(t, 3, short.EntryIndex)
	assert.Equal(t, 7, short.ExitIndex)
	assert.Equal(t, -1000.0, short.PositionSize)
	assert.Equal(t, 4, buy.HoldingDays)

	require.Len(t, res.Pairs, 1)
	// flat prices: the pair only pays costs
	assert.InDelta(t, -(buy.TradeCost + short.TradeCost), res.Pairs[0].NetProfit, 1e-9)
	assert.NotEmpty(t, res.Manifest.RunID)
	assert.Equal(t, "auto", res.Manifest.HedgeRatio)
}

func TestBacktestSimultaneousSignalsDoNothing(t *testing.T) {
	both := signalAt(10, 4)
	res, err := Backtest(context.Background(), flatPairInput(10, both, both))
	require.NoError(t, err)

	for i := range res.Buy.Positions {
		assert.Zero(t, res.Buy.Positions[i])
		assert.Zero(t, res.Short.Positions[i])
	}
	assert.Empty(t, res.Pairs)
	assert.Equal(t, 1, res.Events.Count(EventSuppressed))

	_, err = res.Summary(SelectTotal)
	assert.True(t, errors.Is(err, ErrEmptyTradeSet))
}

func TestBacktestForcedLiquidationAtLastBar(t *testing.T) {
	res, err := Backtest(context.Background(), flatPairInput(10, signalAt(10, 7), signalAt(10)))
	require.NoError(t, err)

	assert.Zero(t, res.Buy.Positions[9])
	assert.Zero(t, res.Short.Positions[9])
	require.Len(t, res.Buy.Trades, 1)
	assert.Equal(t, 8, res.Buy.Trades[0].EntryIndex)
	assert.Equal(t, 9, res.Buy.Trades[0].ExitIndex)
	assert.Equal(t, 9, res.Short.Trades[0].ExitIndex)
	assert.Equal(t, 2, res.Events.Count(EventForcedLiquidation))
}

func TestBacktestAutoHedgeSizesCheaperLeg(t *testing.T) {
	in := flatPairInput(6, signalAt(6, 1), signalAt(6, 3))
	in.Pair.Short = series("2303", flat(6, 30)...)
	in.Config.ExecutionLag = 0
	res, err := Backtest(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, res.Pairs, 1)
	assert.Equal(t, 1000.0, res.Buy.Trades[0].PositionSize)
	// 100/30 rounds to 3 lots
	assert.Equal(t, -3000.0, res.Short.Trades[0].PositionSize)
}

func TestBacktestSummarySelections(t *testing.T) {
	in := flatPairInput(8, signalAt(8, 1), signalAt(8, 4))
	in.Pair.Buy = series("A", 100, 100, 102, 104, 106, 108, 108, 108)
	in.Pair.Short = series("B", 100, 100, 99, 98, 97, 96, 96, 96)
	res, err := Backtest(context.Background(), in)
	require.NoError(t, err)

	total, err := res.Summary(SelectTotal)
	require.NoError(t, err)
	buy, err := res.Summary(SelectBuy)
	require.NoError(t, err)
	short, err := res.Summary(SelectShort)
	require.NoError(t, err)

	assert.Equal(t, 1, total.TotalTradeNumber)
	assert.InDelta(t, buy.TotalProfit+short.TotalProfit, total.TotalProfit, 1e-9)
	assert.Greater(t, buy.TotalProfit, 0.0)
	assert.Greater(t, short.TotalProfit, 0.0)

	_, err = res.Summary(Selection("both"))
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestBacktestRejectsBadInput(t *testing.T) {
	cases := map[string]func(*Input){
		"no entry conditions": func(in *Input) { in.EntryConditions = nil },
		"negative lag":        func(in *Input) { in.Config.ExecutionLag = -1 },
		"bad price field":     func(in *Input) { in.Config.TradeOn = "vwap" },
		"bad fixed ratio":     func(in *Input) { in.Hedge = HedgeRatio{Mode: HedgeFixed, Buy: 0, Short: 1} },
		"short signal":        func(in *Input) { in.ExitConditions = [][]bool{{true}} },
		"misaligned dates":    func(in *Input) { in.Pair.Short.Bars[3].Date = in.Pair.Short.Bars[3].Date.AddDate(0, 0, 1) },
		"zero price":          func(in *Input) { in.Pair.Buy.Bars[2].Close = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := flatPairInput(6, signalAt(6, 1), signalAt(6, 3))
			mutate(&in)
			_, err := Backtest(context.Background(), in)
			assert.True(t, errors.Is(err, ErrConfiguration), "got %v", err)
		})
	}
}

func TestBacktestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Backtest(ctx, flatPairInput(4, signalAt(4, 1), signalAt(4, 2)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplayTrade(t *testing.T) {
	in := flatPairInput(8, signalAt(8, 1), signalAt(8, 4))
	in.Pair.Buy = series("A", 100, 100, 98, 104, 106, 108, 108, 108)
	res, err := Backtest(context.Background(), in)
	require.NoError(t, err)

	replay, err := ReplayTrade(res.Buy.Ledger, res.Buy.Trades[0])
	require.NoError(t, err)
	require.Len(t, replay.Path, 4)
	assert.Zero(t, replay.Path[0].PotentialProfit)
	assert.InDelta(t, 6000, replay.Path[1].PotentialProfit, 1e-9)
	assert.Equal(t, "profit", replay.Outcome)

	_, err = ReplayTrade(res.Buy.Ledger, TradeRecord{EntryIndex: 5, ExitIndex: 20})
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestPlannerChunks(t *testing.T) {
	p := NewPlanner(3, 4)
	chunks := p.PlanChunks(7)
	assert.Equal(t, []Chunk{{0, 3}, {3, 6}, {6, 7}}, chunks)
	assert.Equal(t, 3, p.Workers(len(chunks)))
	assert.Empty(t, p.PlanChunks(0))
}
