package cointegration

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairs-backtest/services/engine"
)

func fromLogs(symbol string, logs []float64) engine.Series {
	s := engine.Series{Symbol: symbol}
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	for i, l := range logs {
		px := math.Exp(l)
		s.Bars = append(s.Bars, engine.Bar{Date: start.AddDate(0, 0, i), Open: px, High: px, Low: px, Close: px})
	}
	return s
}

// trendingLogs is an increasing log-price path with iid positive increments.
func trendingLogs(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	out[0] = math.Log(50)
	for i := 1; i < n; i++ {
		out[i] = out[i-1] + 0.01 + 0.01*math.Abs(rng.NormFloat64())
	}
	return out
}

func TestEngleGrangerTradablePair(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	lx := trendingLogs(rng, 400)
	ly := make([]float64, len(lx))
	for i := range lx {
		ly[i] = 0.3 + 1.5*lx[i] + 0.005*rng.NormFloat64()
	}

	v, err := NewEngleGranger().Screen(context.Background(), fromLogs("AAA", lx), fromLogs("BBB", ly))
	require.NoError(t, err)
	require.True(t, v.Tradable)
	assert.InDelta(t, 1.5, v.HedgeRatio, 0.01)
	assert.InDelta(t, 0.3, v.Intercept, 0.1)
	assert.InDelta(t, 0.005, v.Sigma, 0.002)
	assert.Less(t, v.ADFStatistic, egTwoAssetsCritical)

	ratio, err := v.FixedRatio()
	require.NoError(t, err)
	assert.Equal(t, engine.HedgeFixed, ratio.Mode)
	assert.Equal(t, 1.0, ratio.Buy)
	assert.InDelta(t, 1.5, ratio.Short, 0.01)
}

func TestEngleGrangerRejectsStationaryLeg(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	lx := trendingLogs(rng, 300)
	ly := make([]float64, len(lx))
	for i := range ly {
		ly[i] = math.Log(20) + 0.02*rng.NormFloat64()
	}
	v, err := NewEngleGranger().Screen(context.Background(), fromLogs("AAA", lx), fromLogs("BBB", ly))
	require.NoError(t, err)
	assert.False(t, v.Tradable)

	_, err = v.FixedRatio()
	assert.Error(t, err)
}

func TestEngleGrangerInputErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	short := fromLogs("B", trendingLogs(rng, 10))
	_, err := NewEngleGranger().Screen(context.Background(), fromLogs("A", trendingLogs(rng, 10)), short)
	assert.Error(t, err, "too few bars")

	_, err = NewEngleGranger().Screen(context.Background(), fromLogs("A", trendingLogs(rng, 40)), short)
	assert.ErrorIs(t, err, engine.ErrConfiguration)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewEngleGranger().Screen(ctx, fromLogs("A", trendingLogs(rng, 40)), fromLogs("B", trendingLogs(rng, 40)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTotalLeastSquaresExactLine(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := make([]float64, len(x))
	for i := range x {
		y[i] = 2 - 0.5*x[i]
	}
	beta, alpha := totalLeastSquares(x, y)
	assert.InDelta(t, -0.5, beta, 1e-12)
	assert.InDelta(t, 2, alpha, 1e-12)
}

func TestTotalLeastSquaresIsOrthogonal(t *testing.T) {
	// Equal spreads: the orthogonal fit is the diagonal, ordinary least squares would give 0.6.
	beta, alpha := totalLeastSquares([]float64{1, 2, 3, 4}, []float64{2, 1, 4, 3})
	assert.InDelta(t, 1, beta, 1e-12)
	assert.InDelta(t, 0, alpha, 1e-12)
}

func TestDickeyFullerWhiteNoise(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	noise := make([]float64, 500)
	for i := range noise {
		noise[i] = rng.NormFloat64()
	}
	assert.Less(t, dickeyFuller(noise, false), -10.0)
	assert.True(t, math.IsNaN(dickeyFuller([]float64{1, 2}, true)))
}

func TestStaticScreener(t *testing.T) {
	s := StaticScreener{PairKey("aaa", "bbb"): {Tradable: true, HedgeRatio: -0.8}}
	v, err := s.Screen(context.Background(), engine.Series{Symbol: "AAA"}, engine.Series{Symbol: "BBB"})
	require.NoError(t, err)
	ratio, err := v.FixedRatio()
	require.NoError(t, err)
	assert.Equal(t, 0.8, ratio.Short)

	v, err = s.Screen(context.Background(), engine.Series{Symbol: "BBB"}, engine.Series{Symbol: "AAA"})
	require.NoError(t, err)
	assert.False(t, v.Tradable)
}

func TestVerdictBandRule(t *testing.T) {
	v := Verdict{Tradable: true, HedgeRatio: 1.2, Intercept: 0.1, Sigma: 0.05}
	r := v.BandRule(2, 0.5)
	assert.Equal(t, 1.2, r.HedgeRatio)
	assert.Equal(t, 0.05, r.Sigma)
	assert.Equal(t, 0.5, r.ExitK)
}
