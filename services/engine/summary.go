package engine

import (
	"math"

	"github.com/shopspring/decimal"
)

// Outcome is the part of a trade the summary statistics read.
type Outcome struct {
	NetProfit   float64
	NetReturn   float64
	HoldingDays float64
}

func (t TradeRecord) Outcome() Outcome {
	return Outcome{NetProfit: t.NetProfit, NetReturn: t.NetReturn, HoldingDays: float64(t.HoldingDays)}
}

func (p PairTradeRecord) Outcome() Outcome {
	return Outcome{NetProfit: p.NetProfit, NetReturn: p.NetReturn, HoldingDays: p.HoldingDays}
}

type SummaryReport struct {
	TotalProfit        float64 `json:"total_profit"`
	AverageReturn      float64 `json:"average_return"`
	WinningRate        float64 `json:"winning_rate"`
	MaxDrawdown        float64 `json:"max_drawdown"`
	AverageHoldingDays float64 `json:"average_holding_days"`
	TotalTradeNumber   int     `json:"total_trade_number"`
}

// Summarize reduces a trade table to its headline statistics. Drawdown is measured on
// cumulative net profit in trade order.
func Summarize(outcomes []Outcome) (SummaryReport, error) {
	n := len(outcomes)
	if n == 0 {
		return SummaryReport{}, newError(KindEmptyTradeSet, "no trades to summarize")
	}
	var total, returns, holding, cum, peak, drawdown float64
	wins := 0
	for i, o := range outcomes {
		total += o.NetProfit
		returns += o.NetReturn
		holding += o.HoldingDays
		if o.NetProfit > 0 {
			wins++
		}
		cum += o.NetProfit
		if i == 0 || cum > peak {
			peak = cum
		}
		drawdown = math.Max(drawdown, peak-cum)
	}
	return SummaryReport{
		TotalProfit:        total,
		AverageReturn:      returns / float64(n),
		WinningRate:        float64(wins) / float64(n),
		MaxDrawdown:        drawdown,
		AverageHoldingDays: holding / float64(n),
		TotalTradeNumber:   n,
	}, nil
}

func SummarizeTrades(trades []TradeRecord) (SummaryReport, error) {
	out := make([]Outcome, len(trades))
	for i, t := range trades {
		out[i] = t.Outcome()
	}
	return Summarize(out)
}

func SummarizePairs(pairs []PairTradeRecord) (SummaryReport, error) {
	out := make([]Outcome, len(pairs))
	for i, p := range pairs {
		out[i] = p.Outcome()
	}
	return Summarize(out)
}

// Rounded returns the report rounded to 4 decimal places for display.
func (r SummaryReport) Rounded() SummaryReport {
	round := func(v float64) float64 {
		return decimal.NewFromFloat(v).Round(4).InexactFloat64()
	}
	return SummaryReport{
		TotalProfit:        round(r.TotalProfit),
		AverageReturn:      round(r.AverageReturn),
		WinningRate:        round(r.WinningRate),
		MaxDrawdown:        round(r.MaxDrawdown),
		AverageHoldingDays: round(r.AverageHoldingDays),
		TotalTradeNumber:   r.TotalTradeNumber,
	}
}

// EquityCurve is cumulative net profit per trade plus the trades that set a new positive high.
type EquityCurve struct {
	Cumulative []float64 `json:"cumulative"`
	NewHighs   []int     `json:"new_highs"`
}

func NewEquityCurve(outcomes []Outcome) EquityCurve {
	curve := EquityCurve{Cumulative: make([]float64, len(outcomes))}
	var cum, high float64
	for i, o := range outcomes {
		cum += o.NetProfit
		curve.Cumulative[i] = cum
		if i == 0 {
			high = cum
		}
		if cum > high && cum > 0 {
			high = cum
			curve.NewHighs = append(curve.NewHighs, i)
		}
	}
	return curve
}
