// Package marketdata loads daily price series and prepares pairs for the engine.
package marketdata

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"pairs-backtest/services/engine"
)

var dateLayouts = []string{"2006-01-02", "2006/01/02", "20060102", time.RFC3339, "2006-01-02 15:04:05"}

type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger}
}

// LoadCSV reads date,open,high,low,close,volume rows from a file.
func (l *Loader) LoadCSV(path, symbol string) (engine.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return engine.Series{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return l.ReadCSV(f, symbol)
}

// ReadCSV accepts UTF-8 (with or without BOM) and UTF-16 with BOM. Rows with a missing
// or unparseable field are dropped; the result is sorted by date.
func (l *Loader) ReadCSV(r io.Reader, symbol string) (engine.Series, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if b, _ := br.Peek(2); len(b) == 2 && ((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF)) {
		src = transform.NewReader(br, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	}

	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	series := engine.Series{Symbol: symbol}
	skipped := 0
	for line := 0; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return engine.Series{}, fmt.Errorf("read csv line %d: %w", line+1, err)
		}
		if line == 0 && len(rec) > 0 && strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(rec[0], "\ufeff")), "date") {
			continue
		}
		bar, ok := parseBar(rec)
		if !ok {
			skipped++
			continue
		}
		series.Bars = append(series.Bars, bar)
	}
	sort.SliceStable(series.Bars, func(i, j int) bool { return series.Bars[i].Date.Before(series.Bars[j].Date) })

	l.logger.Debug("loaded price series",
		zap.String("symbol", symbol),
		zap.Int("bars", len(series.Bars)),
		zap.Int("skipped", skipped),
	)
	if len(series.Bars) == 0 {
		return engine.Series{}, fmt.Errorf("no usable bars for %s", symbol)
	}
	return series, nil
}

func parseBar(rec []string) (engine.Bar, bool) {
	if len(rec) < 5 {
		return engine.Bar{}, false
	}
	date, ok := parseDate(rec[0])
	if !ok {
		return engine.Bar{}, false
	}
	vals := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		if i >= len(rec) {
			break // volume is optional
		}
		d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(rec[i]), ",", ""))
		if err != nil {
			if i == 5 {
				break
			}
			return engine.Bar{}, false
		}
		vals[i-1] = d.InexactFloat64()
	}
	return engine.Bar{Date: date, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]}, true
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
