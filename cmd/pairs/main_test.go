package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairs-backtest/proto"
)

func writeBars(t *testing.T, dir, name string, closes []float64) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("date,open,high,low,close,volume\n")
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		fmt.Fprintf(&b, "%s,%.2f,%.2f,%.2f,%.2f,1000\n", day.AddDate(0, 0, i).Format("2006-01-02"), c, c+1, c-1, c)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func writeSignals(t *testing.T, dir string, n int, entries, exits []int) string {
	t.Helper()
	on := func(set []int, i int) int {
		for _, s := range set {
			if s == i {
				return 1
			}
		}
		return 0
	}
	var b strings.Builder
	b.WriteString("date,entry_spread,exit_spread\n")
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%s,%d,%d\n", day.AddDate(0, 0, i).Format("2006-01-02"), on(entries, i), on(exits, i))
	}
	path := filepath.Join(dir, "signals.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func fixture(t *testing.T) (dir string, args []string) {
	t.Helper()
	t.Setenv("PAIRS_CONFIG", "")
	dir = t.TempDir()
	buy := writeBars(t, dir, "AAA.csv", []float64{10, 10, 11, 12, 13, 12, 12, 14, 15, 15})
	short := writeBars(t, dir, "BBB.csv", []float64{20, 20, 19, 19, 18, 18, 19, 18, 17, 17})
	signals := writeSignals(t, dir, 10, []int{1, 5}, []int{4, 7})
	return dir, []string{"run", "--buy-csv", buy, "--short-csv", short, "--signals", signals, "--hedge", "1,1"}
}

func TestRunPrintsSummary(t *testing.T) {
	dir, args := fixture(t)
	csvDir := filepath.Join(dir, "out")
	out, err := execute(t, append(args, "--csv-dir", csvDir, "--arrow-dir", csvDir)...)
	require.NoError(t, err, out)

	assert.Contains(t, out, "AAA/BBB")
	assert.Contains(t, out, "2 pair trades")
	assert.Contains(t, out, "total_profit")
	for _, name := range []string{"pairs.csv", "buy.csv", "short.csv", "buy.arrow", "short.arrow"} {
		assert.FileExists(t, filepath.Join(csvDir, name))
	}
}

func TestRunPersistsAndSummaryReloads(t *testing.T) {
	dir, args := fixture(t)
	db := filepath.Join(dir, "runs.db")
	out, err := execute(t, append(args, "--db", db, "--json")...)
	require.NoError(t, err, out)

	var resp proto.BacktestResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.RunID)
	require.Contains(t, resp.Summaries, "total")

	out, err = execute(t, "runs", "--db", db)
	require.NoError(t, err, out)
	assert.Contains(t, out, resp.RunID)

	out, err = execute(t, "summary", resp.RunID, "--db", db)
	require.NoError(t, err, out)
	assert.Contains(t, out, "winning_rate")

	out, err = execute(t, "summary", resp.RunID, "--db", db, "--curve", "--select", "buy")
	require.NoError(t, err, out)
	assert.Contains(t, out, "cumulative")
}

func TestRunNeedsPrices(t *testing.T) {
	t.Setenv("PAIRS_CONFIG", "")
	_, err := execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--buy-csv")
}

func TestRunWithoutVerdictFails(t *testing.T) {
	_, args := fixture(t)
	// Dropping --signals falls back to the configured screen, which knows nothing about AAA/BBB.
	_, err := execute(t, args[:5]...)
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	t.Setenv("PAIRS_CONFIG", "")
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "pairs "+version+"\n", out)
}
