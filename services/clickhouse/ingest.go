package clickhouse

import (
	"context"
	"fmt"

	"pairs-backtest/services/engine"
)

// BarRow is one daily bar as stored in the bars table.
type BarRow struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// TradeRow is one leg round trip as stored in the trades table.
type TradeRow struct {
	RunID        string  `json:"run_id"`
	Leg          string  `json:"leg"`
	Symbol       string  `json:"symbol"`
	Sequence     int     `json:"sequence"`
	EntryDate    string  `json:"entry_date"`
	ExitDate     string  `json:"exit_date"`
	HoldingDays  int     `json:"holding_days"`
	PositionSize float64 `json:"position_size"`
	EntryPrice   float64 `json:"entry_price"`
	ExitPrice    float64 `json:"exit_price"`
	GrossProfit  float64 `json:"gross_profit"`
	GrossReturn  float64 `json:"gross_return"`
	TradeCost    float64 `json:"trade_cost"`
	NetProfit    float64 `json:"net_profit"`
	NetReturn    float64 `json:"net_return"`
	MFE          float64 `json:"mfe"`
	MAE          float64 `json:"mae"`
}

const dateLayout = "2006-01-02"

// IngestSeries queues every bar of s for insertion and flushes the writer.
func IngestSeries(ctx context.Context, w *BatchWriter, s engine.Series) error {
	for _, b := range s.Bars {
		row := BarRow{
			Symbol: s.Symbol,
			Date:   b.Date.Format(dateLayout),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
		if err := w.Add(ctx, row); err != nil {
			return fmt.Errorf("ingest %s: %w", s.Symbol, err)
		}
	}
	return w.Flush(ctx)
}

// ExportTrades queues both legs of a run and flushes the writer.
func ExportTrades(ctx context.Context, w *BatchWriter, res *engine.Result) error {
	for _, leg := range []struct {
		name string
		res  engine.LegResult
	}{{"buy", res.Buy}, {"short", res.Short}} {
		for _, t := range leg.res.Trades {
			if err := w.Add(ctx, tradeRow(res.Manifest.RunID, leg.name, leg.res.Symbol, t)); err != nil {
				return fmt.Errorf("export %s trades: %w", leg.name, err)
			}
		}
	}
	return w.Flush(ctx)
}

func tradeRow(runID, leg, symbol string, t engine.TradeRecord) TradeRow {
	return TradeRow{
		RunID:        runID,
		Leg:          leg,
		Symbol:       symbol,
		Sequence:     t.Sequence,
		EntryDate:    t.EntryDate.Format(dateLayout),
		ExitDate:     t.ExitDate.Format(dateLayout),
		HoldingDays:  t.HoldingDays,
		PositionSize: t.PositionSize,
		EntryPrice:   t.EntryPrice,
		ExitPrice:    t.ExitPrice,
		GrossProfit:  t.GrossProfit,
		GrossReturn:  t.GrossReturn,
		TradeCost:    t.TradeCost,
		NetProfit:    t.NetProfit,
		NetReturn:    t.NetReturn,
		MFE:          t.MFE,
		MAE:          t.MAE,
	}
}
