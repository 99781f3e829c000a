package engine

// Per-trade replay of the floating P&L path

type ReplayPoint struct {
	Index           int     `json:"index"`
	Price           float64 `json:"price"`
	PotentialProfit float64 `json:"potential_profit"`
}

type TradeReplay struct {
	Sequence int           `json:"sequence"`
	Path     []ReplayPoint `json:"path"`
	Outcome  string        `json:"outcome"`
}

// ReplayTrade re-bases the ledger's cumulative profit to zero at the trade's entry bar
// and returns the path up to and including the exit bar.
func ReplayTrade(ledger []LedgerRow, trade TradeRecord) (*TradeReplay, error) {
	if trade.EntryIndex < 0 || trade.ExitIndex >= len(ledger) || trade.ExitIndex < trade.EntryIndex {
		return nil, newError(KindConfiguration, "trade %d spans [%d, %d] outside ledger of %d bars",
			trade.Sequence, trade.EntryIndex, trade.ExitIndex, len(ledger))
	}
	base := ledger[trade.EntryIndex].CumulativeProfit
	replay := &TradeReplay{Sequence: trade.Sequence, Path: make([]ReplayPoint, 0, trade.ExitIndex-trade.EntryIndex+1)}
	for i := trade.EntryIndex; i <= trade.ExitIndex; i++ {
		replay.Path = append(replay.Path, ReplayPoint{
			Index:           i,
			Price:           ledger[i].Price,
			PotentialProfit: ledger[i].CumulativeProfit - base,
		})
	}
	switch {
	case trade.NetProfit > 0:
		replay.Outcome = "profit"
	case trade.NetProfit < 0:
		replay.Outcome = "loss"
	default:
		replay.Outcome = "flat"
	}
	return replay, nil
}
