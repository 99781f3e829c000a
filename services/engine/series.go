package engine

import (
	"math"
	"strings"
	"time"
)

// Bar is one daily observation of an instrument.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Series is a chronologically ordered price series for one instrument.
type Series struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

func (s Series) Len() int { return len(s.Bars) }

func (s Series) Dates() []time.Time {
	out := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Date
	}
	return out
}

// Prices extracts the selected price field for every bar.
func (s Series) Prices(field PriceField) ([]float64, error) {
	if !field.Valid() {
		return nil, newError(KindConfiguration, "unsupported trade price field %q", field)
	}
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = field.pick(b)
	}
	return out, nil
}

// PairSeries holds the two legs of a pair after date alignment: the leg bought when the
// entry condition fires and the leg sold short.
type PairSeries struct {
	Buy   Series `json:"buy"`
	Short Series `json:"short"`
}

// Validate checks the shared date index and that every trade price is positive and finite.
func (p PairSeries) Validate(field PriceField) error {
	if p.Buy.Len() == 0 {
		return newError(KindConfiguration, "empty price series")
	}
	if p.Buy.Len() != p.Short.Len() {
		return newError(KindConfiguration, "leg lengths differ: %s has %d bars, %s has %d",
			p.Buy.Symbol, p.Buy.Len(), p.Short.Symbol, p.Short.Len())
	}
	if !field.Valid() {
		return newError(KindConfiguration, "unsupported trade price field %q", field)
	}
	for i := range p.Buy.Bars {
		b, s := p.Buy.Bars[i], p.Short.Bars[i]
		if !b.Date.Equal(s.Date) {
			return newError(KindConfiguration, "leg dates are not aligned").at(i, b.Date)
		}
		if i > 0 && !b.Date.After(p.Buy.Bars[i-1].Date) {
			return newError(KindConfiguration, "dates are not strictly increasing").at(i, b.Date)
		}
		for _, px := range []float64{field.pick(b), field.pick(s)} {
			if px <= 0 || math.IsNaN(px) || math.IsInf(px, 0) {
				return newError(KindConfiguration, "trade price must be positive, got %v", px).at(i, b.Date)
			}
		}
	}
	return nil
}

// PriceField selects which bar price trades execute at.
type PriceField string

const (
	FieldOpen  PriceField = "open"
	FieldHigh  PriceField = "high"
	FieldLow   PriceField = "low"
	FieldClose PriceField = "close"
)

func ParsePriceField(s string) (PriceField, error) {
	f := PriceField(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", newError(KindConfiguration, "unsupported trade price field %q", s)
	}
	return f, nil
}

func (f PriceField) Valid() bool {
	switch f {
	case FieldOpen, FieldHigh, FieldLow, FieldClose:
		return true
	}
	return false
}

func (f PriceField) pick(b Bar) float64 {
	switch f {
	case FieldOpen:
		return b.Open
	case FieldHigh:
		return b.High
	case FieldLow:
		return b.Low
	default:
		return b.Close
	}
}
