// Package store keeps finished runs and their leg trades in a local SQLite file.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"pairs-backtest/services/engine"
)

var ErrNotFound = errors.New("run not found")

const schemaDDL = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	buy_symbol   TEXT NOT NULL,
	short_symbol TEXT NOT NULL,
	hedge_ratio  TEXT NOT NULL,
	config_hash  TEXT NOT NULL,
	config_json  TEXT NOT NULL,
	bars         INTEGER NOT NULL,
	created_at   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS trades (
	run_id        TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	leg           TEXT NOT NULL,
	sequence      INTEGER NOT NULL,
	entry_index   INTEGER NOT NULL,
	exit_index    INTEGER NOT NULL,
	entry_date    TEXT NOT NULL,
	exit_date     TEXT NOT NULL,
	holding_days  INTEGER NOT NULL,
	position_size REAL NOT NULL,
	entry_price   REAL NOT NULL,
	exit_price    REAL NOT NULL,
	gross_profit  REAL NOT NULL,
	gross_return  REAL NOT NULL,
	trade_cost    REAL NOT NULL,
	net_profit    REAL NOT NULL,
	net_return    REAL NOT NULL,
	mfe           REAL NOT NULL,
	mae           REAL NOT NULL,
	PRIMARY KEY (run_id, leg, sequence)
);
`

const (
	dateLayout = "2006-01-02"
	// createdLayout is fixed width so created_at sorts as text.
	createdLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun writes the manifest and both legs' trades. Summaries are not stored; they are
// recomputed from the trades on load.
func (s *Store) SaveRun(ctx context.Context, res *engine.Result) error {
	cfg, err := json.Marshal(res.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	m := res.Manifest
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, buy_symbol, short_symbol, hedge_ratio, config_hash, config_json, bars, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.RunID, m.BuySymbol, m.ShortSymbol, m.HedgeRatio, m.ConfigHash, string(cfg), m.Bars,
		m.CreatedAt.UTC().Format(createdLayout),
	); err != nil {
		return fmt.Errorf("insert run %s: %w", m.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (run_id, leg, sequence, entry_index, exit_index, entry_date, exit_date,
			holding_days, position_size, entry_price, exit_price, gross_profit, gross_return,
			trade_cost, net_profit, net_return, mfe, mae)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare trade insert: %w", err)
	}
	defer stmt.Close()

	for leg, trades := range map[string][]engine.TradeRecord{"buy": res.Buy.Trades, "short": res.Short.Trades} {
		for _, t := range trades {
			if _, err := stmt.ExecContext(ctx,
				m.RunID, leg, t.Sequence, t.EntryIndex, t.ExitIndex,
				t.EntryDate.Format(dateLayout), t.ExitDate.Format(dateLayout), t.HoldingDays,
				t.PositionSize, t.EntryPrice, t.ExitPrice, t.GrossProfit, t.GrossReturn,
				t.TradeCost, t.NetProfit, t.NetReturn, t.MFE, t.MAE,
			); err != nil {
				return fmt.Errorf("insert %s trade %d: %w", leg, t.Sequence, err)
			}
		}
	}
	return tx.Commit()
}

// StoredRun is a run as read back from disk: manifest, parameters and leg trades.
type StoredRun struct {
	Manifest engine.Manifest
	Config   engine.RunConfig
	Buy      []engine.TradeRecord
	Short    []engine.TradeRecord
}

// Result rebuilds the trade-level view of the run, re-aggregating the pair table, so
// summaries can be recomputed for any selection.
func (r *StoredRun) Result() (*engine.Result, error) {
	pairs, err := engine.Aggregate(r.Buy, r.Short)
	if err != nil {
		return nil, err
	}
	return &engine.Result{
		Manifest: r.Manifest,
		Config:   r.Config,
		Buy:      engine.LegResult{Symbol: r.Manifest.BuySymbol, Direction: engine.Long, Trades: r.Buy},
		Short:    engine.LegResult{Symbol: r.Manifest.ShortSymbol, Direction: engine.Short, Trades: r.Short},
		Pairs:    pairs,
	}, nil
}

func (s *Store) LoadRun(ctx context.Context, runID string) (*StoredRun, error) {
	var (
		run       StoredRun
		cfg       string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, buy_symbol, short_symbol, hedge_ratio, config_hash, config_json, bars, created_at
		FROM runs WHERE run_id = ?`, runID).Scan(
		&run.Manifest.RunID, &run.Manifest.BuySymbol, &run.Manifest.ShortSymbol, &run.Manifest.HedgeRatio,
		&run.Manifest.ConfigHash, &cfg, &run.Manifest.Bars, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	if err := json.Unmarshal([]byte(cfg), &run.Config); err != nil {
		return nil, fmt.Errorf("decode config of %s: %w", runID, err)
	}
	if run.Manifest.CreatedAt, err = time.Parse(createdLayout, createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at of %s: %w", runID, err)
	}

	if run.Buy, err = s.loadTrades(ctx, runID, "buy"); err != nil {
		return nil, err
	}
	if run.Short, err = s.loadTrades(ctx, runID, "short"); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *Store) loadTrades(ctx context.Context, runID, leg string) ([]engine.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, entry_index, exit_index, entry_date, exit_date, holding_days,
			position_size, entry_price, exit_price, gross_profit, gross_return,
			trade_cost, net_profit, net_return, mfe, mae
		FROM trades WHERE run_id = ? AND leg = ? ORDER BY sequence`, runID, leg)
	if err != nil {
		return nil, fmt.Errorf("load %s trades of %s: %w", leg, runID, err)
	}
	defer rows.Close()

	var out []engine.TradeRecord
	for rows.Next() {
		var (
			t           engine.TradeRecord
			entry, exit string
		)
		if err := rows.Scan(&t.Sequence, &t.EntryIndex, &t.ExitIndex, &entry, &exit, &t.HoldingDays,
			&t.PositionSize, &t.EntryPrice, &t.ExitPrice, &t.GrossProfit, &t.GrossReturn,
			&t.TradeCost, &t.NetProfit, &t.NetReturn, &t.MFE, &t.MAE); err != nil {
			return nil, fmt.Errorf("scan %s trade of %s: %w", leg, runID, err)
		}
		if t.EntryDate, err = time.Parse(dateLayout, entry); err != nil {
			return nil, err
		}
		if t.ExitDate, err = time.Parse(dateLayout, exit); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RunInfo is one row of the run listing.
type RunInfo struct {
	RunID       string    `json:"run_id"`
	BuySymbol   string    `json:"buy_symbol"`
	ShortSymbol string    `json:"short_symbol"`
	Trades      int       `json:"trades"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.buy_symbol, r.short_symbol, r.created_at,
			(SELECT COUNT(*) FROM trades t WHERE t.run_id = r.run_id AND t.leg = 'buy')
		FROM runs r ORDER BY r.created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var (
			info    RunInfo
			created string
		)
		if err := rows.Scan(&info.RunID, &info.BuySymbol, &info.ShortSymbol, &created, &info.Trades); err != nil {
			return nil, err
		}
		if info.CreatedAt, err = time.Parse(createdLayout, created); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}
