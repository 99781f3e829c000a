package engine

import (
	"math"
	"time"
)

// CostModel holds the proportional trading costs. Commission is charged on both sides,
// transaction tax on the exit only.
type CostModel struct {
	CommissionRate float64 `json:"commission_rate"`
	TaxRate        float64 `json:"tax_rate"`
}

// Cost of one round trip of size shares.
func (c CostModel) Cost(entryPrice, exitPrice, size float64) float64 {
	size = math.Abs(size)
	return entryPrice*size*c.CommissionRate +
		exitPrice*size*c.CommissionRate +
		exitPrice*size*c.TaxRate
}

// TradeRecord is one completed round trip on a single leg. MFE and MAE are net of the
// round-trip cost.
type TradeRecord struct {
	Sequence     int       `json:"sequence"`
	EntryIndex   int       `json:"entry_index"`
	ExitIndex    int       `json:"exit_index"`
	EntryDate    time.Time `json:"entry_date"`
	ExitDate     time.Time `json:"exit_date"`
	HoldingDays  int       `json:"holding_days"`
	PositionSize float64   `json:"position_size"`
	EntryPrice   float64   `json:"entry_price"`
	ExitPrice    float64   `json:"exit_price"`
	GrossProfit  float64   `json:"gross_profit"`
	GrossReturn  float64   `json:"gross_return"`
	TradeCost    float64   `json:"trade_cost"`
	NetProfit    float64   `json:"net_profit"`
	NetReturn    float64   `json:"net_return"`
	MFE          float64   `json:"mfe"`
	MAE          float64   `json:"mae"`
}

// EntryExitIndices finds the bars where a leg opens and closes, in order.
func EntryExitIndices(ledger []LedgerRow, dir Direction) (entries, exits []int) {
	for i, row := range ledger {
		v := row.EntryExit * dir.Sign()
		switch {
		case v > 0:
			entries = append(entries, i)
		case v < 0:
			exits = append(exits, i)
		}
	}
	return entries, exits
}

// ExtractTrades pairs the i-th entry with the i-th exit and measures each round trip.
func ExtractTrades(ledger []LedgerRow, dir Direction, costs CostModel) ([]TradeRecord, error) {
	entries, exits := EntryExitIndices(ledger, dir)
	if err := checkPairing(ledger, entries, exits); err != nil {
		return nil, err
	}

	trades := make([]TradeRecord, 0, len(entries))
	for k := range entries {
		trades = append(trades, measureTrade(ledger, k, entries[k], exits[k], costs))
	}
	return trades, nil
}

func checkPairing(ledger []LedgerRow, entries, exits []int) error {
	for k, in := range entries {
		if k >= len(exits) {
			return newError(KindIncompleteTrade, "entry without matching exit").at(in, ledger[in].Date)
		}
		if exits[k] <= in {
			return newError(KindIncompleteTrade, "exit before its entry").at(exits[k], ledger[exits[k]].Date)
		}
		if k+1 < len(entries) && entries[k+1] <= exits[k] {
			return newError(KindIncompleteTrade, "entry while a trade is still open").at(entries[k+1], ledger[entries[k+1]].Date)
		}
	}
	if len(exits) > len(entries) {
		out := exits[len(entries)]
		return newError(KindIncompleteTrade, "exit without matching entry").at(out, ledger[out].Date)
	}
	return nil
}

func measureTrade(ledger []LedgerRow, seq, in, out int, costs CostModel) TradeRecord {
	entry, exit := ledger[in], ledger[out]
	base := entry.CumulativeProfit
	mfe, mae := math.Inf(-1), math.Inf(1)
	for _, row := range ledger[in : out+1] {
		p := row.CumulativeProfit - base
		mfe = math.Max(mfe, p)
		mae = math.Min(mae, p)
	}

	gross := exit.CumulativeProfit - base
	notional := math.Abs(entry.Holdings)
	cost := costs.Cost(entry.Price, exit.Price, entry.Position)
	net := gross - cost
	return TradeRecord{
		Sequence:     seq,
		EntryIndex:   in,
		ExitIndex:    out,
		EntryDate:    entry.Date,
		ExitDate:     exit.Date,
		HoldingDays:  wholeDays(exit.Date.Sub(entry.Date)),
		PositionSize: entry.Position,
		EntryPrice:   entry.Price,
		ExitPrice:    exit.Price,
		GrossProfit:  gross,
		GrossReturn:  gross / notional,
		TradeCost:    cost,
		NetProfit:    net,
		NetReturn:    net / notional,
		MFE:          mfe - cost,
		MAE:          mae - cost,
	}
}

func wholeDays(d time.Duration) int {
	return int(math.Floor(d.Hours() / 24))
}
