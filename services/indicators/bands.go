package indicators

import (
	"fmt"

	"pairs-backtest/services/engine"
)

// BandRule opens the pair when the residual spread rises above EntryK standard deviations
// and closes it once the spread falls back below ExitK.
type BandRule struct {
	HedgeRatio float64 `json:"hedge_ratio"`
	Intercept  float64 `json:"intercept"`
	Sigma      float64 `json:"sigma" validate:"gt=0"`
	EntryK     float64 `json:"entry_k"`
	ExitK      float64 `json:"exit_k"`
}

func (r BandRule) Conditions(pair engine.PairSeries, field engine.PriceField) (entry, exit [][]bool, err error) {
	if r.Sigma <= 0 {
		return nil, nil, fmt.Errorf("band rule needs a positive sigma, got %v", r.Sigma)
	}
	if r.ExitK >= r.EntryK {
		return nil, nil, fmt.Errorf("exit band %v must sit below entry band %v", r.ExitK, r.EntryK)
	}
	x, err := pair.Buy.Prices(field)
	if err != nil {
		return nil, nil, err
	}
	y, err := pair.Short.Prices(field)
	if err != nil {
		return nil, nil, err
	}
	spread := Residual(x, y, r.HedgeRatio, r.Intercept)
	return [][]bool{Above(spread, r.EntryK*r.Sigma)}, [][]bool{Below(spread, r.ExitK*r.Sigma)}, nil
}
