package engine

import "time"

// LedgerRow is one bar of a leg's cash and holdings book.
type LedgerRow struct {
	Date             time.Time `json:"date"`
	Price            float64   `json:"price"`
	Position         float64   `json:"position"`
	Holdings         float64   `json:"holdings"`
	EntryExit        float64   `json:"entry_exit"`
	Cash             float64   `json:"cash"`
	TotalValue       float64   `json:"total_value"`
	CumulativeProfit float64   `json:"cumulative_profit"`
}

// BuildLedger books a leg's position series against its trade prices.
func BuildLedger(positions []float64, series Series, field PriceField, capital float64) ([]LedgerRow, error) {
	if len(positions) != series.Len() {
		return nil, newError(KindConfiguration, "%d positions for %d bars of %s", len(positions), series.Len(), series.Symbol)
	}
	prices, err := series.Prices(field)
	if err != nil {
		return nil, err
	}

	rows := make([]LedgerRow, len(positions))
	var prev, spent float64
	for t, pos := range positions {
		px := prices[t]
		delta := pos - prev
		spent += delta * px
		cash := capital - spent
		holdings := pos * px
		total := cash + holdings
		rows[t] = LedgerRow{
			Date:             series.Bars[t].Date,
			Price:            px,
			Position:         pos,
			Holdings:         holdings,
			EntryExit:        delta,
			Cash:             cash,
			TotalValue:       total,
			CumulativeProfit: total - capital,
		}
		prev = pos
	}
	return rows, nil
}
