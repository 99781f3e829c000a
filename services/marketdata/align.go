package marketdata

import (
	"sort"
	"time"

	"pairs-backtest/services/engine"
)

// Align keeps only the dates both legs trade on, sorted, with duplicate dates collapsed
// to their first row.
func Align(buy, short engine.Series) engine.PairSeries {
	shortByDate := make(map[time.Time]engine.Bar, short.Len())
	for _, b := range short.Bars {
		if _, dup := shortByDate[b.Date]; !dup {
			shortByDate[b.Date] = b
		}
	}

	pair := engine.PairSeries{
		Buy:   engine.Series{Symbol: buy.Symbol},
		Short: engine.Series{Symbol: short.Symbol},
	}
	seen := make(map[time.Time]bool, buy.Len())
	for _, b := range buy.Bars {
		s, ok := shortByDate[b.Date]
		if !ok || seen[b.Date] {
			continue
		}
		seen[b.Date] = true
		pair.Buy.Bars = append(pair.Buy.Bars, b)
		pair.Short.Bars = append(pair.Short.Bars, s)
	}
	sort.Sort(byDate{pair.Buy.Bars, pair.Short.Bars})
	return pair
}

type byDate struct{ a, b []engine.Bar }

func (d byDate) Len() int           { return len(d.a) }
func (d byDate) Less(i, j int) bool { return d.a[i].Date.Before(d.a[j].Date) }
func (d byDate) Swap(i, j int) {
	d.a[i], d.a[j] = d.a[j], d.a[i]
	d.b[i], d.b[j] = d.b[j], d.b[i]
}

// DetectGaps returns the dates after which more than maxGap passes before the next bar.
func DetectGaps(s engine.Series, maxGap time.Duration) (gaps []time.Time) {
	for i := 1; i < len(s.Bars); i++ {
		if s.Bars[i].Date.Sub(s.Bars[i-1].Date) > maxGap {
			gaps = append(gaps, s.Bars[i-1].Date)
		}
	}
	return gaps
}

// Window trims a series to [from, to]; zero bounds are open.
func Window(s engine.Series, from, to time.Time) engine.Series {
	out := engine.Series{Symbol: s.Symbol}
	for _, b := range s.Bars {
		if !from.IsZero() && b.Date.Before(from) {
			continue
		}
		if !to.IsZero() && b.Date.After(to) {
			continue
		}
		out.Bars = append(out.Bars, b)
	}
	return out
}
