package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"pairs-backtest/services/engine"
)

func pairs() []engine.PairTradeRecord {
	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	profits := []float64{100, -50, 200, -20}
	out := make([]engine.PairTradeRecord, len(profits))
	for i, p := range profits {
		out[i] = engine.PairTradeRecord{
			Sequence: i + 1, EntryDate: d.AddDate(0, 0, 5*i), ExitDate: d.AddDate(0, 0, 5*i+3),
			NetProfit: p, NetReturn: p / 1000, HoldingDays: 3,
		}
	}
	return out
}

func TestWritePairsCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePairsCSV(&buf, pairs()); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := csv.NewReader(&buf)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if rows[1][1] != "2024-01-02" || rows[2][4] != "-50" {
		t.Fatalf("unexpected first rows %v %v", rows[1], rows[2])
	}
	want := map[string]string{"total_profit": "230", "winning_rate": "0.5", "max_drawdown": "50", "total_trade_number": "4"}
	for _, row := range rows {
		if v, ok := want[row[0]]; ok && row[1] != v {
			t.Fatalf("%s = %s, want %s", row[0], row[1], v)
		}
	}
}

func TestWriteTradesCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTradesCSV(&buf, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if strings.Contains(buf.String(), "Summary") {
		t.Fatalf("empty table should have no summary:\n%s", buf.String())
	}
}

func TestWriteSummaryTable(t *testing.T) {
	res := &engine.Result{
		Buy:   engine.LegResult{Symbol: "AAA"},
		Short: engine.LegResult{Symbol: "BBB"},
		Pairs: pairs(),
	}
	var buf bytes.Buffer
	if err := WriteSummaryTable(&buf, res); err != nil {
		t.Fatalf("table: %v", err)
	}
	out := buf.String()
	for _, s := range []string{"buy (AAA)", "total_profit", "230", "-"} {
		if !strings.Contains(out, s) {
			t.Fatalf("missing %q in\n%s", s, out)
		}
	}
}
