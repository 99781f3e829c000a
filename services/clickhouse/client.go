// Package clickhouse reads daily bars from and writes trade records to ClickHouse.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"pairs-backtest/services/config"
	"pairs-backtest/services/engine"
	"pairs-backtest/services/marketdata"
)

// Querier is the subset of driver.Conn the client needs.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	Exec(ctx context.Context, query string, args ...any) error
}

type Client struct {
	conn     Querier
	closer   func() error
	database string
	bars     string
	trades   string
	logger   *zap.Logger
}

func NewClient(ctx context.Context, cfg config.ClickHouseConfig, logger *zap.Logger) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout: cfg.DialTimeout,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	c := newClient(conn, cfg, logger)
	c.closer = conn.Close
	return c, nil
}

func newClient(conn Querier, cfg config.ClickHouseConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		conn:     conn,
		closer:   func() error { return nil },
		database: cfg.Database,
		bars:     cfg.BarsTable,
		trades:   cfg.TradesTable,
		logger:   logger,
	}
}

func (c *Client) Close() error { return c.closer() }

// InitSchema creates the database and both tables if they are missing.
func (c *Client) InitSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", c.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			symbol LowCardinality(String),
			date Date,
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume Float64,
			ingested_at DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = ReplacingMergeTree(ingested_at)
		ORDER BY (symbol, date)`, c.database, c.bars),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			run_id String,
			leg LowCardinality(String),
			symbol LowCardinality(String),
			sequence UInt32,
			entry_date Date,
			exit_date Date,
			holding_days Int32,
			position_size Float64,
			entry_price Float64,
			exit_price Float64,
			gross_profit Float64,
			gross_return Float64,
			trade_cost Float64,
			net_profit Float64,
			net_return Float64,
			mfe Float64,
			mae Float64
		)
		ENGINE = MergeTree
		ORDER BY (run_id, leg, sequence)`, c.database, c.trades),
	}
	for _, stmt := range stmts {
		if err := c.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// LoadSeries reads one symbol's daily bars in [from, to]; zero bounds are open.
func (c *Client) LoadSeries(ctx context.Context, symbol string, from, to time.Time) (engine.Series, error) {
	if to.IsZero() {
		to = time.Date(2999, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	query := fmt.Sprintf(`SELECT date, open, high, low, close, volume
		FROM %s.%s FINAL
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date`, c.database, c.bars)
	rows, err := c.conn.Query(ctx, query, symbol, from, to)
	if err != nil {
		return engine.Series{}, fmt.Errorf("query bars for %s: %w", symbol, err)
	}
	defer rows.Close()

	s := engine.Series{Symbol: symbol}
	for rows.Next() {
		var b engine.Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return engine.Series{}, fmt.Errorf("scan bar for %s: %w", symbol, err)
		}
		b.Date = b.Date.UTC()
		s.Bars = append(s.Bars, b)
	}
	if err := rows.Err(); err != nil {
		return engine.Series{}, fmt.Errorf("iterate bars for %s: %w", symbol, err)
	}
	c.logger.Debug("loaded bars from clickhouse", zap.String("symbol", symbol), zap.Int("bars", s.Len()))
	return s, nil
}

// LoadPair reads both legs and keeps the dates they share.
func (c *Client) LoadPair(ctx context.Context, buy, short string, from, to time.Time) (engine.PairSeries, error) {
	b, err := c.LoadSeries(ctx, buy, from, to)
	if err != nil {
		return engine.PairSeries{}, err
	}
	s, err := c.LoadSeries(ctx, short, from, to)
	if err != nil {
		return engine.PairSeries{}, err
	}
	return marketdata.Align(b, s), nil
}
