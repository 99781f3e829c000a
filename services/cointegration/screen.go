// Package cointegration decides whether a pair is tradable and with what hedge ratio.
package cointegration

import (
	"context"
	"fmt"
	"math"
	"strings"

	"pairs-backtest/services/engine"
	"pairs-backtest/services/indicators"
)

// Verdict is the outcome of screening one pair. The fields other than Tradable are only
// meaningful when Tradable is true.
type Verdict struct {
	Tradable     bool    `json:"tradable" yaml:"tradable"`
	HedgeRatio   float64 `json:"hedge_ratio" yaml:"hedge_ratio"`
	Intercept    float64 `json:"intercept" yaml:"intercept"`
	Sigma        float64 `json:"sigma" yaml:"sigma"`
	ADFStatistic float64 `json:"adf_statistic" yaml:"adf_statistic"`
}

// FixedRatio maps a tradable verdict to one buy-leg lot against |β| short-leg lots.
func (v Verdict) FixedRatio() (engine.HedgeRatio, error) {
	if !v.Tradable {
		return engine.HedgeRatio{}, fmt.Errorf("pair is not tradable")
	}
	beta := math.Abs(v.HedgeRatio)
	if beta == 0 || math.IsNaN(beta) || math.IsInf(beta, 0) {
		return engine.HedgeRatio{}, fmt.Errorf("hedge ratio %v cannot size a position", v.HedgeRatio)
	}
	return engine.Fixed(1, beta)
}

// BandRule turns the verdict's spread parameters into a residual band signal rule.
func (v Verdict) BandRule(entryK, exitK float64) indicators.BandRule {
	return indicators.BandRule{
		HedgeRatio: v.HedgeRatio,
		Intercept:  v.Intercept,
		Sigma:      v.Sigma,
		EntryK:     entryK,
		ExitK:      exitK,
	}
}

// Screener produces a Verdict for a candidate pair.
type Screener interface {
	Screen(ctx context.Context, buy, short engine.Series) (Verdict, error)
}

// StaticScreener returns verdicts computed elsewhere, keyed by "BUY/SHORT".
type StaticScreener map[string]Verdict

func PairKey(buy, short string) string {
	return strings.ToUpper(buy) + "/" + strings.ToUpper(short)
}

func (s StaticScreener) Screen(ctx context.Context, buy, short engine.Series) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}
	v, ok := s[PairKey(buy.Symbol, short.Symbol)]
	if !ok {
		return Verdict{}, nil
	}
	return v, nil
}
