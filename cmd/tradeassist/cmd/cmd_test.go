package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayBounds(t *testing.T) {
	start, end, err := dayBounds(time.UTC, "2026-01-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 24*time.Hour, end.Sub(start))

	_, _, err = dayBounds(time.UTC, "15/01/2026")
	assert.Error(t, err)
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "tradeassist.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ledger:\n  driver: sqlite\n  db_path: "+filepath.Join(dir, "trades.db")+"\nbroker:\n  preferred: [paper]\n"), 0o644))
	return path
}

func TestReplayCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	cycles := `{"time":"2026-01-05T15:00:00Z","symbols":[{"symbol":"AAPL","price":10,"proposal":{"entry":10,"stop":9.5,"target":11}}]}
{"time":"2026-01-05T15:05:00Z","symbols":[{"symbol":"AAPL","price":10.4,"action":{"kind":"HOLD"}}]}
{"time":"2026-01-05T15:10:00Z","symbols":[{"symbol":"AAPL","price":9.4,"action":{"kind":"HOLD"}}]}
`
	file := filepath.Join(dir, "cycles.jsonl")
	require.NoError(t, os.WriteFile(file, []byte(cycles), 0o644))

	rootCmd.SetArgs([]string{"replay", "-c", cfgPath, "-f", file, "--broker", "paper"})
	require.NoError(t, rootCmd.Execute())

	// The stop-out is persisted.
	rootCmd.SetArgs([]string{"ledger", "trade", "1", "-c", cfgPath})
	require.NoError(t, rootCmd.Execute())

	store, err := openLedger(context.Background(), cfg, "")
	require.NoError(t, err)
	defer store.Close()
	rec, err := store.GetTrade(1)
	require.NoError(t, err)
	assert.Equal(t, "CLOSED", string(rec.Status))
	assert.True(t, decimal.NewFromInt(-36).Equal(rec.ProfitLoss.Decimal), rec.ProfitLoss.Decimal.String())
}

func TestReplayBadLine(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	file := filepath.Join(dir, "cycles.jsonl")
	require.NoError(t, os.WriteFile(file, []byte("{not json}\n"), 0o644))

	rootCmd.SetArgs([]string{"replay", "-c", cfgPath, "-f", file, "--broker", "paper"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestSizeCommand(t *testing.T) {
	rootCmd.SetArgs([]string{"size", "-c", "", "--entry", "10", "--stop", "9.5", "--balance", "3000"})
	assert.NoError(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"size", "--entry", "10", "--stop", "10", "--balance", "3000"})
	assert.Error(t, rootCmd.Execute())
}
