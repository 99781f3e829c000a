package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"pairs-backtest/services/engine"
)

// Signals holds entry and exit condition columns keyed by date.
type Signals struct {
	Entry map[time.Time][]bool
	Exit  map[time.Time][]bool
	Names []string
}

// ReadSignals parses a header row of the form date,entry_*,exit_* followed by boolean cells
// (1/0, true/false). Column names beginning with "entry" or "exit" are collected in order.
func ReadSignals(r io.Reader) (*Signals, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read signal header: %w", err)
	}
	var entryCols, exitCols []int
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		switch {
		case strings.HasPrefix(h, "entry"):
			entryCols = append(entryCols, i)
		case strings.HasPrefix(h, "exit"):
			exitCols = append(exitCols, i)
		default:
			continue
		}
		if i == 0 {
			return nil, errors.New("first signal column must be the date")
		}
	}
	if len(entryCols) == 0 || len(exitCols) == 0 {
		return nil, errors.New("signal file needs at least one entry and one exit column")
	}

	sig := &Signals{Entry: map[time.Time][]bool{}, Exit: map[time.Time][]bool{}, Names: header}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read signal line %d: %w", line, err)
		}
		date, ok := parseDate(rec[0])
		if !ok {
			return nil, fmt.Errorf("signal line %d: bad date %q", line, rec[0])
		}
		if sig.Entry[date], err = boolCells(rec, entryCols); err != nil {
			return nil, fmt.Errorf("signal line %d: %w", line, err)
		}
		if sig.Exit[date], err = boolCells(rec, exitCols); err != nil {
			return nil, fmt.Errorf("signal line %d: %w", line, err)
		}
	}
	return sig, nil
}

// Conditions lays the signal columns over the pair's dates. A date with no signal row
// contributes false to every column.
func (s *Signals) Conditions(pair engine.PairSeries) (entry, exit [][]bool) {
	return columns(s.Entry, pair.Buy.Dates()), columns(s.Exit, pair.Buy.Dates())
}

func columns(byDate map[time.Time][]bool, dates []time.Time) [][]bool {
	width := 0
	for _, row := range byDate {
		width = len(row)
		break
	}
	out := make([][]bool, width)
	for c := range out {
		out[c] = make([]bool, len(dates))
		for i, d := range dates {
			if row, ok := byDate[d]; ok {
				out[c][i] = row[c]
			}
		}
	}
	return out
}

func boolCells(rec []string, cols []int) ([]bool, error) {
	out := make([]bool, len(cols))
	for i, c := range cols {
		if c >= len(rec) {
			return nil, fmt.Errorf("missing column %d", c+1)
		}
		v, err := strconv.ParseBool(strings.TrimSpace(rec[c]))
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", c+1, err)
		}
		out[i] = v
	}
	return out, nil
}
