// Package proto holds the wire messages shared by the HTTP and gRPC surfaces.
package proto

import (
	"fmt"
	"time"

	"pairs-backtest/services/engine"
	"pairs-backtest/services/indicators"
)

const DateLayout = "2006-01-02"

type BarPayload struct {
	Date   string  `json:"date" validate:"required"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type SeriesPayload struct {
	Symbol string       `json:"symbol" validate:"required"`
	Bars   []BarPayload `json:"bars" validate:"required,min=1,dive"`
}

// SourceRequest asks the server to read both legs from the bar store instead of the
// request body. Empty bounds are open.
type SourceRequest struct {
	Buy   string `json:"buy" validate:"required"`
	Short string `json:"short" validate:"required"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}

func (s SourceRequest) Range() (from, to time.Time, err error) {
	if s.From != "" {
		if from, err = time.Parse(DateLayout, s.From); err != nil {
			return from, to, fmt.Errorf("from: %w", err)
		}
	}
	if s.To != "" {
		if to, err = time.Parse(DateLayout, s.To); err != nil {
			return from, to, fmt.Errorf("to: %w", err)
		}
	}
	return from, to, nil
}

// BacktestRequest describes one pair run. Prices come either inline (Buy and Short) or
// from Source; signals come either as explicit condition columns or from Bands. Config
// fields left out of the JSON keep their defaults.
type BacktestRequest struct {
	Buy             *SeriesPayload       `json:"buy,omitempty"`
	Short           *SeriesPayload       `json:"short,omitempty"`
	Source          *SourceRequest       `json:"source,omitempty"`
	EntryConditions [][]bool             `json:"entry_conditions,omitempty"`
	ExitConditions  [][]bool             `json:"exit_conditions,omitempty"`
	Bands           *indicators.BandRule `json:"bands,omitempty"`
	HedgeRatio      engine.HedgeRatio    `json:"hedge_ratio"`
	Config          engine.RunConfig     `json:"config"`
	Persist         bool                 `json:"persist"`
}

// NewBacktestRequest returns a request with run parameters prefilled, ready for decoding.
func NewBacktestRequest(defaults engine.RunConfig) BacktestRequest {
	return BacktestRequest{HedgeRatio: engine.Auto(), Config: defaults}
}

func (p *SeriesPayload) Series() (engine.Series, error) {
	s := engine.Series{Symbol: p.Symbol, Bars: make([]engine.Bar, len(p.Bars))}
	for i, b := range p.Bars {
		d, err := time.Parse(DateLayout, b.Date)
		if err != nil {
			return engine.Series{}, fmt.Errorf("%s bar %d: %w", p.Symbol, i, err)
		}
		s.Bars[i] = engine.Bar{Date: d, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
	}
	return s, nil
}

func SeriesFrom(s engine.Series) *SeriesPayload {
	p := &SeriesPayload{Symbol: s.Symbol, Bars: make([]BarPayload, len(s.Bars))}
	for i, b := range s.Bars {
		p.Bars[i] = BarPayload{Date: b.Date.Format(DateLayout), Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
	}
	return p
}

// InlinePair decodes the request's own price series. ok is false when the request points
// at a Source instead.
func (r *BacktestRequest) InlinePair() (pair engine.PairSeries, ok bool, err error) {
	if r.Buy == nil || r.Short == nil {
		return engine.PairSeries{}, false, nil
	}
	if pair.Buy, err = r.Buy.Series(); err != nil {
		return engine.PairSeries{}, true, err
	}
	if pair.Short, err = r.Short.Series(); err != nil {
		return engine.PairSeries{}, true, err
	}
	return pair, true, nil
}

// Input assembles the engine input over an already resolved pair.
func (r *BacktestRequest) Input(pair engine.PairSeries) (engine.Input, error) {
	in := engine.Input{
		Pair:            pair,
		EntryConditions: r.EntryConditions,
		ExitConditions:  r.ExitConditions,
		Hedge:           r.HedgeRatio,
		Config:          r.Config,
	}
	if in.Hedge.Mode == "" {
		in.Hedge = engine.Auto()
	}
	if len(in.EntryConditions) == 0 && len(in.ExitConditions) == 0 && r.Bands != nil {
		entry, exit, err := r.Bands.Conditions(pair, r.Config.TradeOn)
		if err != nil {
			return engine.Input{}, err
		}
		in.EntryConditions, in.ExitConditions = entry, exit
	}
	return in, nil
}

// BacktestResponse carries a run's trade tables and the summaries of every non-empty
// selection, keyed by "total", "buy" and "sellshort".
type BacktestResponse struct {
	RunID       string                          `json:"run_id"`
	Manifest    engine.Manifest                 `json:"manifest"`
	Config      engine.RunConfig                `json:"config"`
	Summaries   map[string]engine.SummaryReport `json:"summaries"`
	Pairs       []engine.PairTradeRecord        `json:"pairs"`
	BuyTrades   []engine.TradeRecord            `json:"buy_trades"`
	ShortTrades []engine.TradeRecord            `json:"short_trades"`
	Events      int                             `json:"events"`
	ElapsedMs   int64                           `json:"elapsed_ms"`
}

type BatchRequest struct {
	Requests []BacktestRequest `json:"requests" validate:"required,min=1"`
}

type BatchItem struct {
	Index    int               `json:"index"`
	Response *BacktestResponse `json:"response,omitempty"`
	Error    *ErrorPayload     `json:"error,omitempty"`
}

type BatchResponse struct {
	Results []BatchItem `json:"results"`
}

type SummaryRequest struct {
	RunID  string `json:"run_id" validate:"required"`
	Select string `json:"select"`
}

type SummaryResponse struct {
	RunID       string               `json:"run_id"`
	Select      engine.Selection     `json:"select"`
	Summary     engine.SummaryReport `json:"summary"`
	EquityCurve engine.EquityCurve   `json:"equity_curve"`
}

// ErrorPayload is the error envelope of both surfaces.
type ErrorPayload struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *ErrorPayload) Error() string { return e.Code + ": " + e.Message }
