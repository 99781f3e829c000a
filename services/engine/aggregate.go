package engine

import "time"

// PairTradeRecord joins the buy-leg and short-leg trades that share a sequence number.
// Returns are summed and holding days averaged without capital weighting.
type PairTradeRecord struct {
	Sequence    int       `json:"sequence"`
	EntryDate   time.Time `json:"entry_date"`
	ExitDate    time.Time `json:"exit_date"`
	NetProfit   float64   `json:"net_profit"`
	NetReturn   float64   `json:"net_return"`
	HoldingDays float64   `json:"holding_days"`
	MFE         float64   `json:"mfe"`
	MAE         float64   `json:"mae"`
}

func Aggregate(buy, short []TradeRecord) ([]PairTradeRecord, error) {
	if len(buy) != len(short) {
		return nil, newError(KindMismatchedLegs, "buy leg has %d trades, short leg %d", len(buy), len(short))
	}
	pairs := make([]PairTradeRecord, len(buy))
	for i := range buy {
		b, s := buy[i], short[i]
		pairs[i] = PairTradeRecord{
			Sequence:    i,
			EntryDate:   b.EntryDate,
			ExitDate:    b.ExitDate,
			NetProfit:   b.NetProfit + s.NetProfit,
			NetReturn:   b.NetReturn + s.NetReturn,
			HoldingDays: float64(b.HoldingDays+s.HoldingDays) / 2,
			MFE:         b.MFE + s.MFE,
			MAE:         b.MAE + s.MAE,
		}
	}
	return pairs, nil
}
