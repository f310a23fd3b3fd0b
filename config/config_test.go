package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradeassist/ledger"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, 3000.0, cfg.Account.StartingBalance)
	assert.Equal(t, 1.0, cfg.Risk.RiskPerTradePct)
	assert.Equal(t, int64(5), cfg.Risk.ShareIncrement)
	assert.Equal(t, 0.02, cfg.Position.MaxAdverseExcursion)
	assert.Equal(t, []string{"alpaca", "robinhood", "paper"}, cfg.Broker.Preferred)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid config", func(*Config) {}, ""},
		{"zero balance", func(c *Config) { c.Account.StartingBalance = 0 }, "account.starting_balance must be positive"},
		{"risk too high", func(c *Config) { c.Risk.RiskPerTradePct = 150 }, "risk.risk_per_trade_percent"},
		{"min above max", func(c *Config) { c.Risk.MinPositionPct = 30 }, "risk.min_position_percent"},
		{"zero increment", func(c *Config) { c.Risk.ShareIncrement = 0 }, "risk.preferred_share_increment"},
		{"full reserve", func(c *Config) { c.Risk.CashReservePct = 100 }, "risk.cash_reserve_percent"},
		{"no daily loss limit", func(c *Config) { c.Risk.MaxDailyLossPct = 0 }, "risk.max_daily_loss_percent"},
		{"adverse excursion", func(c *Config) { c.Position.MaxAdverseExcursion = 2 }, "position.max_adverse_excursion"},
		{"exit fraction", func(c *Config) { c.Position.DefaultExitFraction = 0 }, "position.default_exit_fraction"},
		{"unknown driver", func(c *Config) { c.Ledger.Driver = "postgres" }, "ledger.driver"},
		{"sqlite without path", func(c *Config) { c.Ledger.DBPath = "" }, "ledger.db_path required"},
		{"memory without path", func(c *Config) { c.Ledger.Driver = DriverMemory; c.Ledger.DBPath = "" }, ""},
		{"unknown broker", func(c *Config) { c.Broker.Preferred = []string{"etrade"} }, "unknown broker: etrade"},
		{"bad timeout", func(c *Config) { c.Broker.Timeout = "soon" }, "broker.timeout"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("LOG_TRACING_ENABLED", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `account:
  starting_balance: 10000
risk:
  risk_per_trade_percent: 0.5
  min_position_percent: 3
  max_position_percent: 15
  preferred_share_increment: 1
  cash_reserve_percent: 10
  max_daily_loss_percent: 2
position:
  max_adverse_excursion: 0.03
  default_exit_fraction: 0.25
  max_hold_time: 48h
ledger:
  driver: sqlite
  db_path: /tmp/trades.db
broker:
  preferred: [paper]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, cfg.Account.StartingBalance)
	assert.Equal(t, 0.5, cfg.Risk.RiskPerTradePct)
	assert.Equal(t, 48*time.Hour, cfg.Position.MaxHoldTime)
	assert.Equal(t, ledger.DriverPure, cfg.Ledger.Driver)
	assert.Equal(t, []string{"paper"}, cfg.Broker.Preferred)

	// Sections the file leaves out keep their defaults.
	assert.Equal(t, "10s", cfg.Broker.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromFileJSON(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("LOG_TRACING_ENABLED", "")

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"account":{"starting_balance":5000},"ledger":{"driver":"memory"}}`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, cfg.Account.StartingBalance)
	assert.Equal(t, DriverMemory, cfg.Ledger.Driver)
}

func TestLoadFromFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("account: [unterminated"), 0o644))
	_, err = LoadFromFile(bad)
	assert.ErrorContains(t, err, "parse config")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("account:\n  starting_balance: -5\n"), 0o644))
	_, err = LoadFromFile(invalid)
	assert.ErrorContains(t, err, "invalid config")
}

func TestSaveToFileRoundTrip(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("LOG_TRACING_ENABLED", "")

	for _, name := range []string{"config.yaml", "config.json"} {
		path := filepath.Join(t.TempDir(), name)

		cfg := Default()
		cfg.Account.StartingBalance = 25000
		cfg.Position.MaxHoldTime = 72 * time.Hour
		require.NoError(t, cfg.SaveToFile(path))

		got, err := LoadFromFile(path)
		require.NoError(t, err, name)
		assert.Equal(t, cfg, got, name)

		entries, err := os.ReadDir(filepath.Dir(path))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temp file left behind")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("LOG_TRACING_ENABLED", "true")

	cfg := Default()
	cfg.ApplyEnv()
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.True(t, cfg.Log.Tracing)
	assert.Equal(t, "debug", cfg.Log.Logger().Level)
}

func TestLoadCredentials(t *testing.T) {
	for _, k := range []string{"ALPACA_API_KEY_ID", "ALPACA_API_SECRET_KEY", "ALPACA_ENV", "ROBINHOOD_TOKEN", "ROBINHOOD_ACCOUNT"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	env := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(env, []byte("ALPACA_API_KEY_ID=key\nALPACA_API_SECRET_KEY=secret\nALPACA_ENV=paper\n"), 0o600))

	creds := LoadCredentials(env)
	assert.Equal(t, "key", creds.AlpacaKeyID)
	assert.Equal(t, "secret", creds.AlpacaSecret)
	assert.Equal(t, "paper", creds.AlpacaEnv)
	assert.True(t, creds.HasAlpaca())
	assert.False(t, creds.HasRobinhood())
}
