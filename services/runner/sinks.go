package runner

import (
	"context"

	"go.uber.org/zap"

	"pairs-backtest/services/clickhouse"
	"pairs-backtest/services/config"
	"pairs-backtest/services/engine"
	"pairs-backtest/services/store"
)

type sqliteSink struct{ store *store.Store }

// SQLiteSink persists runs to the local run store.
func SQLiteSink(s *store.Store) Sink { return sqliteSink{store: s} }

func (s sqliteSink) Name() string { return "sqlite" }

func (s sqliteSink) Persist(ctx context.Context, res *engine.Result) error {
	return s.store.SaveRun(ctx, res)
}

type clickhouseSink struct {
	cfg    config.ClickHouseConfig
	logger *zap.Logger
}

// ClickHouseSink exports leg trades over the ClickHouse HTTP interface; each run gets its
// own batch writer.
func ClickHouseSink(cfg config.ClickHouseConfig, logger *zap.Logger) Sink {
	return clickhouseSink{cfg: cfg, logger: logger}
}

func (s clickhouseSink) Name() string { return "clickhouse" }

func (s clickhouseSink) Persist(ctx context.Context, res *engine.Result) error {
	w := clickhouse.NewBatchWriter(s.cfg, s.cfg.TradesTable, s.logger)
	return clickhouse.ExportTrades(ctx, w, res)
}
