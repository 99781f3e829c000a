// Package arrowpipeline serialises trade records as Apache Arrow IPC streams.
package arrowpipeline

import (
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"go.uber.org/zap"

	"pairs-backtest/services/engine"
)

type Config struct {
	BatchSize int `yaml:"batch_size"`
}

type Pipeline struct {
	config     Config
	memoryPool memory.Allocator
	logger     *zap.Logger
}

func NewPipeline(config Config, pool memory.Allocator, logger *zap.Logger) *Pipeline {
	if config.BatchSize <= 0 {
		config.BatchSize = 1024
	}
	if pool == nil {
		pool = memory.NewGoAllocator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{config: config, memoryPool: pool, logger: logger}
}

const symbolKey = "symbol"

var floatColumns = []string{
	"position_size", "entry_price", "exit_price", "gross_profit", "gross_return",
	"trade_cost", "net_profit", "net_return", "mfe", "mae",
}

// TradeSchema is the layout of a trade stream; the leg's symbol rides in the metadata.
func TradeSchema(symbol string) *arrow.Schema {
	fields := []arrow.Field{
		{Name: "sequence", Type: arrow.PrimitiveTypes.Int32},
		{Name: "entry_index", Type: arrow.PrimitiveTypes.Int32},
		{Name: "exit_index", Type: arrow.PrimitiveTypes.Int32},
		{Name: "entry_date", Type: arrow.FixedWidthTypes.Date32},
		{Name: "exit_date", Type: arrow.FixedWidthTypes.Date32},
		{Name: "holding_days", Type: arrow.PrimitiveTypes.Int32},
	}
	for _, name := range floatColumns {
		fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float64})
	}
	md := arrow.NewMetadata([]string{symbolKey}, []string{symbol})
	return arrow.NewSchema(fields, &md)
}

func floats(t engine.TradeRecord) []float64 {
	return []float64{
		t.PositionSize, t.EntryPrice, t.ExitPrice, t.GrossProfit, t.GrossReturn,
		t.TradeCost, t.NetProfit, t.NetReturn, t.MFE, t.MAE,
	}
}

// EncodeTrades writes trades as an IPC stream of record batches of at most BatchSize rows.
// An empty trade list still produces a valid stream carrying the schema.
func (p *Pipeline) EncodeTrades(w io.Writer, symbol string, trades []engine.TradeRecord) error {
	schema := TradeSchema(symbol)
	writer := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(p.memoryPool))

	bld := array.NewRecordBuilder(p.memoryPool, schema)
	defer bld.Release()

	for start := 0; start < len(trades); start += p.config.BatchSize {
		end := min(start+p.config.BatchSize, len(trades))
		for _, t := range trades[start:end] {
			bld.Field(0).(*array.Int32Builder).Append(int32(t.Sequence))
			bld.Field(1).(*array.Int32Builder).Append(int32(t.EntryIndex))
			bld.Field(2).(*array.Int32Builder).Append(int32(t.ExitIndex))
			bld.Field(3).(*array.Date32Builder).Append(arrow.Date32FromTime(t.EntryDate))
			bld.Field(4).(*array.Date32Builder).Append(arrow.Date32FromTime(t.ExitDate))
			bld.Field(5).(*array.Int32Builder).Append(int32(t.HoldingDays))
			for i, v := range floats(t) {
				bld.Field(6 + i).(*array.Float64Builder).Append(v)
			}
		}
		rec := bld.NewRecord()
		err := writer.Write(rec)
		rec.Release()
		if err != nil {
			_ = writer.Close()
			return fmt.Errorf("write arrow batch: %w", err)
		}
		p.logger.Debug("wrote arrow batch", zap.String("symbol", symbol), zap.Int("rows", end-start))
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close arrow stream: %w", err)
	}
	return nil
}

// DecodeTrades reads a stream written by EncodeTrades.
func (p *Pipeline) DecodeTrades(r io.Reader) (string, []engine.TradeRecord, error) {
	rdr, err := ipc.NewReader(r, ipc.WithAllocator(p.memoryPool))
	if err != nil {
		return "", nil, fmt.Errorf("open arrow stream: %w", err)
	}
	defer rdr.Release()

	md := rdr.Schema().Metadata()
	symbol := ""
	if i := md.FindKey(symbolKey); i >= 0 {
		symbol = md.Values()[i]
	}
	if rdr.Schema().NumFields() != 6+len(floatColumns) {
		return "", nil, errors.New("arrow stream is not a trade stream")
	}

	var trades []engine.TradeRecord
	for rdr.Next() {
		rec := rdr.Record()
		seq := rec.Column(0).(*array.Int32)
		entryIdx := rec.Column(1).(*array.Int32)
		exitIdx := rec.Column(2).(*array.Int32)
		entryDate := rec.Column(3).(*array.Date32)
		exitDate := rec.Column(4).(*array.Date32)
		hold := rec.Column(5).(*array.Int32)
		cols := make([]*array.Float64, len(floatColumns))
		for i := range cols {
			cols[i] = rec.Column(6 + i).(*array.Float64)
		}
		for row := 0; row < int(rec.NumRows()); row++ {
			trades = append(trades, engine.TradeRecord{
				Sequence:     int(seq.Value(row)),
				EntryIndex:   int(entryIdx.Value(row)),
				ExitIndex:    int(exitIdx.Value(row)),
				EntryDate:    entryDate.Value(row).ToTime(),
				ExitDate:     exitDate.Value(row).ToTime(),
				HoldingDays:  int(hold.Value(row)),
				PositionSize: cols[0].Value(row),
				EntryPrice:   cols[1].Value(row),
				ExitPrice:    cols[2].Value(row),
				GrossProfit:  cols[3].Value(row),
				GrossReturn:  cols[4].Value(row),
				TradeCost:    cols[5].Value(row),
				NetProfit:    cols[6].Value(row),
				NetReturn:    cols[7].Value(row),
				MFE:          cols[8].Value(row),
				MAE:          cols[9].Value(row),
			})
		}
	}
	if err := rdr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return "", nil, fmt.Errorf("read arrow stream: %w", err)
	}
	return symbol, trades, nil
}
