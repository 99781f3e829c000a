package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// LotSize is the number of shares in one board lot; every multiplier is scaled by it.
const LotSize = 1000

type HedgeMode string

const (
	HedgeAuto  HedgeMode = "auto"
	HedgeFixed HedgeMode = "fixed"
)

// HedgeRatio is either auto (sized from the leg prices at each entry) or a fixed pair of
// lot multipliers for the buy and short legs.
type HedgeRatio struct {
	Mode  HedgeMode
	Buy   float64
	Short float64
}

// Multiplier is the resolved share count per unit of raw position for each leg.
type Multiplier struct {
	Buy   float64 `json:"buy"`
	Short float64 `json:"short"`
}

func Auto() HedgeRatio { return HedgeRatio{Mode: HedgeAuto} }

func Fixed(buy, short float64) (HedgeRatio, error) {
	h := HedgeRatio{Mode: HedgeFixed, Buy: buy, Short: short}
	return h, h.Validate()
}

// FixedFromSlice accepts exactly two positive ratios, buy leg first.
func FixedFromSlice(v []float64) (HedgeRatio, error) {
	if len(v) != 2 {
		return HedgeRatio{}, newError(KindConfiguration, "fixed hedge ratio needs exactly 2 values, got %d", len(v))
	}
	return Fixed(v[0], v[1])
}

// ParseHedgeRatio reads "auto" or "buy,short" (also "buy:short").
func ParseHedgeRatio(s string) (HedgeRatio, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, string(HedgeAuto)) {
		return Auto(), nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ':' })
	vals := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return HedgeRatio{}, newError(KindConfiguration, "invalid hedge ratio %q", s)
		}
		vals = append(vals, v)
	}
	return FixedFromSlice(vals)
}

func (h HedgeRatio) Validate() error {
	switch h.Mode {
	case HedgeAuto:
		return nil
	case HedgeFixed:
		if !(h.Buy > 0) || !(h.Short > 0) || math.IsInf(h.Buy, 0) || math.IsInf(h.Short, 0) {
			return newError(KindConfiguration, "fixed hedge ratio must be positive, got [%v, %v]", h.Buy, h.Short)
		}
		return nil
	default:
		return newError(KindConfiguration, "unknown hedge ratio mode %q", h.Mode)
	}
}

func (h HedgeRatio) String() string {
	if h.Mode == HedgeFixed {
		return fmt.Sprintf("%g:%g", h.Buy, h.Short)
	}
	return string(HedgeAuto)
}

func (h HedgeRatio) MarshalJSON() ([]byte, error) {
	if h.Mode == HedgeFixed {
		return json.Marshal([]float64{h.Buy, h.Short})
	}
	return json.Marshal(string(HedgeAuto))
}

func (h *HedgeRatio) UnmarshalJSON(data []byte) error {
	var mode string
	if err := json.Unmarshal(data, &mode); err == nil {
		if !strings.EqualFold(mode, string(HedgeAuto)) {
			return newError(KindConfiguration, "unknown hedge ratio %q", mode)
		}
		*h = Auto()
		return nil
	}
	var vals []float64
	if err := json.Unmarshal(data, &vals); err != nil {
		return newError(KindConfiguration, "hedge ratio must be \"auto\" or [buy, short]")
	}
	r, err := FixedFromSlice(vals)
	if err != nil {
		return err
	}
	*h = r
	return nil
}

// ResolveMultipliers sizes both legs for every signal event. events are the bar indices
// where the position machine opened or closed, in order; entries sit at even positions
// and each exit reuses the multiplier of the entry before it.
//
// Auto mode gives the pricier leg one lot and the cheaper leg round(high/low) lots,
// rounding half to even. On equal prices the buy leg counts as the pricier one.
func ResolveMultipliers(ratio HedgeRatio, pair PairSeries, field PriceField, events []int) ([]Multiplier, error) {
	if err := ratio.Validate(); err != nil {
		return nil, err
	}
	mult := make([]Multiplier, len(events))
	if ratio.Mode == HedgeFixed {
		for k := range mult {
			mult[k] = Multiplier{Buy: ratio.Buy * LotSize, Short: ratio.Short * LotSize}
		}
		return mult, nil
	}

	buyPx, err := pair.Buy.Prices(field)
	if err != nil {
		return nil, err
	}
	shortPx, err := pair.Short.Prices(field)
	if err != nil {
		return nil, err
	}
	for k, i := range events {
		if i < 0 || i >= len(buyPx) || i >= len(shortPx) {
			return nil, newError(KindInsufficientHedgeData, "signal event %d outside price data", k).at(i, time.Time{})
		}
		if k%2 == 1 {
			mult[k] = mult[k-1]
			continue
		}
		b, s := buyPx[i], shortPx[i]
		if b <= 0 || s <= 0 {
			return nil, newError(KindConfiguration, "cannot size hedge on non-positive price").at(i, pair.Buy.Bars[i].Date)
		}
		if b >= s {
			mult[k] = Multiplier{Buy: LotSize, Short: math.RoundToEven(b/s) * LotSize}
		} else {
			mult[k] = Multiplier{Buy: math.RoundToEven(s/b) * LotSize, Short: LotSize}
		}
	}
	return mult, nil
}
