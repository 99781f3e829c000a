// Package indicators builds boolean condition series from price series. Missing values
// (warmup bars, lagged-in bars) are NaN and every comparison against NaN is false.
package indicators

import "math"

// Lag shifts a series forward by periods bars.
func Lag(values []float64, periods int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		j := i - periods
		if j < 0 || j >= len(values) {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[j]
	}
	return out
}

// RollingMax is the maximum over the trailing window, NaN until the window is full.
func RollingMax(values []float64, window int) []float64 {
	return rolling(values, window, math.Max)
}

func RollingMin(values []float64, window int) []float64 {
	return rolling(values, window, math.Min)
}

func rolling(values []float64, window int, pick func(a, b float64) float64) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		if window <= 0 || i+1 < window {
			out[i] = math.NaN()
			continue
		}
		v := values[i-window+1]
		for _, x := range values[i-window+2 : i+1] {
			v = pick(v, x)
		}
		out[i] = v
	}
	return out
}

// Crossover is true where a moves from below b on the previous bar to above b.
func Crossover(a, b []float64) []bool {
	pa, pb := Lag(a, 1), Lag(b, 1)
	out := make([]bool, len(a))
	for i := range out {
		out[i] = pa[i] < pb[i] && a[i] > b[i]
	}
	return out
}

// Crossunder is true where a moves from above b on the previous bar to below b.
func Crossunder(a, b []float64) []bool {
	pa, pb := Lag(a, 1), Lag(b, 1)
	out := make([]bool, len(a))
	for i := range out {
		out[i] = pa[i] > pb[i] && a[i] < b[i]
	}
	return out
}

func Above(values []float64, level float64) []bool {
	out := make([]bool, len(values))
	for i, v := range values {
		out[i] = v > level
	}
	return out
}

func Below(values []float64, level float64) []bool {
	out := make([]bool, len(values))
	for i, v := range values {
		out[i] = v < level
	}
	return out
}

// Residual is the log-price spread log(y) - intercept - hedge*log(x) of a cointegrated
// pair; positive values mean y is rich against x.
func Residual(x, y []float64, hedge, intercept float64) []float64 {
	out := make([]float64, len(x))
	for i := range out {
		if i >= len(y) || x[i] <= 0 || y[i] <= 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = math.Log(y[i]) - intercept - hedge*math.Log(x[i])
	}
	return out
}

// Constant repeats v, handy as the second operand of Crossover.
func Constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
