// Package report renders backtest results as CSV files and text tables.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/shopspring/decimal"

	"pairs-backtest/services/engine"
)

const dateLayout = "2006-01-02"

func num(v float64) string {
	return decimal.NewFromFloat(v).Round(6).String()
}

// WriteTradesCSV writes one leg's trade table followed by its summary block.
func WriteTradesCSV(w io.Writer, trades []engine.TradeRecord) error {
	writer := csv.NewWriter(w)
	header := []string{
		"sequence", "entry_date", "exit_date", "holding_days", "position_size",
		"entry_price", "exit_price", "gross_profit", "gross_return", "trade_cost",
		"net_profit", "net_return", "mfe", "mae",
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	outcomes := make([]engine.Outcome, len(trades))
	for i, t := range trades {
		outcomes[i] = t.Outcome()
		record := []string{
			strconv.Itoa(t.Sequence),
			t.EntryDate.Format(dateLayout),
			t.ExitDate.Format(dateLayout),
			strconv.Itoa(t.HoldingDays),
			num(t.PositionSize),
			num(t.EntryPrice),
			num(t.ExitPrice),
			num(t.GrossProfit),
			num(t.GrossReturn),
			num(t.TradeCost),
			num(t.NetProfit),
			num(t.NetReturn),
			num(t.MFE),
			num(t.MAE),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	if err := writeSummary(writer, outcomes); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// WritePairsCSV writes the combined pair table followed by its summary block.
func WritePairsCSV(w io.Writer, pairs []engine.PairTradeRecord) error {
	writer := csv.NewWriter(w)
	header := []string{"sequence", "entry_date", "exit_date", "holding_days", "net_profit", "net_return", "mfe", "mae"}
	if err := writer.Write(header); err != nil {
		return err
	}
	outcomes := make([]engine.Outcome, len(pairs))
	for i, p := range pairs {
		outcomes[i] = p.Outcome()
		record := []string{
			strconv.Itoa(p.Sequence),
			p.EntryDate.Format(dateLayout),
			p.ExitDate.Format(dateLayout),
			num(p.HoldingDays),
			num(p.NetProfit),
			num(p.NetReturn),
			num(p.MFE),
			num(p.MAE),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	if err := writeSummary(writer, outcomes); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// writeSummary appends the rounded summary; an empty trade table gets none.
func writeSummary(writer *csv.Writer, outcomes []engine.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	s, err := engine.Summarize(outcomes)
	if err != nil {
		return err
	}
	s = s.Rounded()
	rows := [][]string{
		{""},
		{"# Summary"},
		{"total_profit", num(s.TotalProfit)},
		{"average_return", num(s.AverageReturn)},
		{"winning_rate", num(s.WinningRate)},
		{"max_drawdown", num(s.MaxDrawdown)},
		{"average_holding_days", num(s.AverageHoldingDays)},
		{"total_trade_number", strconv.Itoa(s.TotalTradeNumber)},
	}
	for _, r := range rows {
		if err := writer.Write(r); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return nil
}
