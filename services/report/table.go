package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"pairs-backtest/services/engine"
)

// WriteSummaryTable prints one column per selection that has trades.
func WriteSummaryTable(w io.Writer, res *engine.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "\ttotal\tbuy (%s)\tsellshort (%s)\t\n", res.Buy.Symbol, res.Short.Symbol)

	var reports [3]*engine.SummaryReport
	for i, sel := range []engine.Selection{engine.SelectTotal, engine.SelectBuy, engine.SelectShort} {
		if s, err := res.Summary(sel); err == nil {
			s = s.Rounded()
			reports[i] = &s
		}
	}
	line := func(name string, get func(engine.SummaryReport) string) {
		fmt.Fprintf(tw, "%s\t", name)
		for _, r := range reports {
			if r == nil {
				fmt.Fprint(tw, "-\t")
				continue
			}
			fmt.Fprintf(tw, "%s\t", get(*r))
		}
		fmt.Fprintln(tw)
	}
	line("total_profit", func(s engine.SummaryReport) string { return num(s.TotalProfit) })
	line("average_return", func(s engine.SummaryReport) string { return num(s.AverageReturn) })
	line("winning_rate", func(s engine.SummaryReport) string { return num(s.WinningRate) })
	line("max_drawdown", func(s engine.SummaryReport) string { return num(s.MaxDrawdown) })
	line("average_holding_days", func(s engine.SummaryReport) string { return num(s.AverageHoldingDays) })
	line("total_trade_number", func(s engine.SummaryReport) string { return fmt.Sprint(s.TotalTradeNumber) })
	return tw.Flush()
}
