package cointegration

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"pairs-backtest/services/engine"
)

const (
	// 5% asymptotic critical values.
	dfConstCritical     = -2.86
	egTwoAssetsCritical = -3.34
)

// EngleGranger screens a pair in two steps: both log-price series must look I(1), and the
// residual of a total-least-squares fit of log(short) on log(buy) must reject a unit root.
type EngleGranger struct {
	Field    engine.PriceField
	Critical float64
	MinBars  int
}

func NewEngleGranger() *EngleGranger {
	return &EngleGranger{Field: engine.FieldClose, Critical: egTwoAssetsCritical, MinBars: 30}
}

func (e *EngleGranger) Screen(ctx context.Context, buy, short engine.Series) (Verdict, error) {
	pair := engine.PairSeries{Buy: buy, Short: short}
	if err := pair.Validate(e.Field); err != nil {
		return Verdict{}, err
	}
	if buy.Len() < e.MinBars {
		return Verdict{}, fmt.Errorf("need at least %d bars, have %d", e.MinBars, buy.Len())
	}
	x, _ := buy.Prices(e.Field)
	y, _ := short.Prices(e.Field)
	lx, ly := logs(x), logs(y)

	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}
	if !integratedOrderOne(lx) || !integratedOrderOne(ly) {
		return Verdict{}, nil
	}

	beta, alpha := totalLeastSquares(lx, ly)
	resid := make([]float64, len(lx))
	for i := range lx {
		resid[i] = ly[i] - alpha - beta*lx[i]
	}
	adf := dickeyFuller(resid, false)
	if math.IsNaN(adf) || adf >= e.Critical {
		return Verdict{ADFStatistic: adf}, nil
	}
	return Verdict{
		Tradable:     true,
		HedgeRatio:   beta,
		Intercept:    alpha,
		Sigma:        stat.PopStdDev(resid, nil),
		ADFStatistic: adf,
	}, nil
}

func integratedOrderOne(level []float64) bool {
	diff := make([]float64, len(level)-1)
	for i := 1; i < len(level); i++ {
		diff[i-1] = level[i] - level[i-1]
	}
	return dickeyFuller(level, true) >= dfConstCritical && dickeyFuller(diff, true) < dfConstCritical
}

// totalLeastSquares fits y = beta*x + alpha minimising orthogonal distance. The slope only
// depends on ratios of second moments, so sample (co)variances serve as well as raw sums.
func totalLeastSquares(x, y []float64) (beta, alpha float64) {
	mx, my := stat.Mean(x, nil), stat.Mean(y, nil)
	sxx, syy := stat.Variance(x, nil), stat.Variance(y, nil)
	sxy := stat.Covariance(x, y, nil)
	if sxy == 0 {
		return 0, my
	}
	beta = (syy - sxx + math.Sqrt((syy-sxx)*(syy-sxx)+4*sxy*sxy)) / (2 * sxy)
	return beta, my - beta*mx
}

// dickeyFuller returns the t-statistic of gamma in Δs_t = [c +] gamma*s_{t-1} + u_t.
func dickeyFuller(s []float64, constant bool) float64 {
	n := len(s) - 1
	if n < 3 {
		return math.NaN()
	}
	lag := make([]float64, n)
	d := make([]float64, n)
	for t := 1; t <= n; t++ {
		lag[t-1] = s[t-1]
		d[t-1] = s[t] - s[t-1]
	}
	ml, md := 0.0, 0.0
	params := 1
	if constant {
		ml, md = stat.Mean(lag, nil), stat.Mean(d, nil)
		params = 2
	}
	var sll, sld float64
	for i := range lag {
		sll += (lag[i] - ml) * (lag[i] - ml)
		sld += (lag[i] - ml) * (d[i] - md)
	}
	if sll == 0 {
		return math.NaN()
	}
	gamma := sld / sll
	var ssr float64
	for i := range lag {
		u := (d[i] - md) - gamma*(lag[i]-ml)
		ssr += u * u
	}
	se := math.Sqrt(ssr / float64(n-params) / sll)
	if se == 0 {
		return math.Inf(-1)
	}
	return gamma / se
}

func logs(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, p := range v {
		out[i] = math.Log(p)
	}
	return out
}
