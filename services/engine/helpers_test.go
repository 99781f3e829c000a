package engine

import (
	"time"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func series(symbol string, closes ...float64) Series {
	s := Series{Symbol: symbol, Bars: make([]Bar, len(closes))}
	for i, c := range closes {
		s.Bars[i] = Bar{Date: day0.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return s
}

func flat(n int, px float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = px
	}
	return out
}

func signalAt(n int, idx ...int) []bool {
	out := make([]bool, n)
	for _, i := range idx {
		out[i] = true
	}
	return out
}
