package clickhouse

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"pairs-backtest/services/config"
)

// BatchWriter buffers rows for one table and inserts them over the HTTP interface as
// gzip-compressed JSONEachRow.
type BatchWriter struct {
	baseURL    string
	username   string
	password   string
	table      string
	httpClient *http.Client
	buffer     []any
	batchSize  int
	written    int
	logger     *zap.Logger
}

func NewBatchWriter(cfg config.ClickHouseConfig, table string, logger *zap.Logger) *BatchWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.BatchSize
	if size <= 0 {
		size = 1000
	}
	return &BatchWriter{
		baseURL:   cfg.HTTPURL,
		username:  cfg.User,
		password:  cfg.Password,
		table:     cfg.Database + "." + table,
		batchSize: size,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		buffer: make([]any, 0, size),
		logger: logger,
	}
}

func (w *BatchWriter) Add(ctx context.Context, row any) error {
	w.buffer = append(w.buffer, row)
	if len(w.buffer) >= w.batchSize {
		return w.Flush(ctx)
	}
	return nil
}

// Written reports how many rows reached ClickHouse.
func (w *BatchWriter) Written() int { return w.written }

func (w *BatchWriter) Flush(ctx context.Context) error {
	if len(w.buffer) == 0 {
		return nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, row := range w.buffer {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("gzip: %w", err)
	}

	query := fmt.Sprintf("INSERT INTO %s FORMAT JSONEachRow", w.table)
	settings := "input_format_null_as_default=1&date_time_input_format=best_effort"
	endpoint := fmt.Sprintf("%s/?query=%s&%s", w.baseURL, url.QueryEscape(query), settings)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Content-Encoding", "gzip")
	req.SetBasicAuth(w.username, w.password)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", w.table, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("clickhouse error %d: %s", resp.StatusCode, string(body))
	}

	w.logger.Debug("flushed batch", zap.String("table", w.table), zap.Int("rows", len(w.buffer)))
	w.written += len(w.buffer)
	w.buffer = w.buffer[:0]
	return nil
}

func (w *BatchWriter) Close(ctx context.Context) error {
	return w.Flush(ctx)
}
