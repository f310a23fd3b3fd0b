package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/tradeassist/broker"
	"github.com/rustyeddy/tradeassist/ledger"
	"github.com/rustyeddy/tradeassist/logger"
	"github.com/rustyeddy/tradeassist/position"
	"github.com/rustyeddy/tradeassist/risk"
)

// Config is the complete assistant configuration.
type Config struct {
	Account  AccountConfig   `json:"account" yaml:"account"`
	Risk     risk.Policy     `json:"risk" yaml:"risk"`
	Position position.Policy `json:"position" yaml:"position"`
	Ledger   LedgerConfig    `json:"ledger" yaml:"ledger"`
	Broker   BrokerConfig    `json:"broker" yaml:"broker"`
	Log      LogConfig       `json:"log" yaml:"log"`
}

type AccountConfig struct {
	StartingBalance float64 `json:"starting_balance" yaml:"starting_balance"`
}

// DriverMemory keeps the ledger in memory only.
const DriverMemory = "memory"

type LedgerConfig struct {
	Driver         string `json:"driver" yaml:"driver"` // sqlite3, sqlite or memory
	DBPath         string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	RequireBracket bool   `json:"require_bracket" yaml:"require_bracket"`
}

type BrokerConfig struct {
	// Preferred lists venues to try in order. Paper is always the last
	// resort whether listed or not.
	Preferred []string `json:"preferred" yaml:"preferred"`
	Timeout   string   `json:"timeout" yaml:"timeout"` // e.g. "10s"
}

// ParseTimeout converts Timeout to a duration. Empty means no limit.
func (b BrokerConfig) ParseTimeout() (time.Duration, error) {
	if b.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(b.Timeout)
}

type LogConfig struct {
	Level   string `json:"level" yaml:"level"`
	Format  string `json:"format" yaml:"format"`
	Tracing bool   `json:"tracing" yaml:"tracing"`
}

func (l LogConfig) Logger() logger.Config {
	return logger.Config{Level: l.Level, Format: l.Format}
}

// LoadFromFile loads configuration from a YAML or JSON file, applies
// environment overrides and validates the result. Sections missing from
// the file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration as YAML or JSON depending on the
// extension. The file is replaced atomically.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*")
	if err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write config file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("write config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides logging settings from LOG_LEVEL, LOG_FORMAT and
// LOG_TRACING_ENABLED.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("LOG_TRACING_ENABLED"); v != "" {
		c.Log.Tracing = v == "1" || strings.EqualFold(v, "true")
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.StartingBalance <= 0 {
		return fmt.Errorf("account.starting_balance must be positive")
	}

	r := c.Risk
	if r.RiskPerTradePct <= 0 || r.RiskPerTradePct > 100 {
		return fmt.Errorf("risk.risk_per_trade_percent must be between 0 and 100")
	}
	if r.MaxPositionPct <= 0 || r.MaxPositionPct > 100 {
		return fmt.Errorf("risk.max_position_percent must be between 0 and 100")
	}
	if r.MinPositionPct < 0 || r.MinPositionPct > r.MaxPositionPct {
		return fmt.Errorf("risk.min_position_percent must be between 0 and max_position_percent")
	}
	if r.ShareIncrement < 1 {
		return fmt.Errorf("risk.preferred_share_increment must be at least 1")
	}
	if r.CashReservePct < 0 || r.CashReservePct >= 100 {
		return fmt.Errorf("risk.cash_reserve_percent must be between 0 and 100")
	}
	if r.MaxDailyLossPct <= 0 {
		return fmt.Errorf("risk.max_daily_loss_percent must be positive")
	}

	p := c.Position
	if p.MaxAdverseExcursion <= 0 || p.MaxAdverseExcursion >= 1 {
		return fmt.Errorf("position.max_adverse_excursion must be between 0 and 1")
	}
	if p.DefaultExitFraction <= 0 || p.DefaultExitFraction > 1 {
		return fmt.Errorf("position.default_exit_fraction must be between 0 and 1")
	}
	if p.MaxHoldTime < 0 {
		return fmt.Errorf("position.max_hold_time must not be negative")
	}

	switch c.Ledger.Driver {
	case ledger.DriverCgo, ledger.DriverPure:
		if c.Ledger.DBPath == "" {
			return fmt.Errorf("ledger.db_path required for %s driver", c.Ledger.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("ledger.driver must be %q, %q or %q", ledger.DriverCgo, ledger.DriverPure, DriverMemory)
	}

	for _, name := range c.Broker.Preferred {
		switch broker.Kind(strings.ToLower(name)) {
		case broker.KindAlpaca, broker.KindRobinhood, broker.KindPaper:
		default:
			return fmt.Errorf("unknown broker: %s", name)
		}
	}
	if d, err := c.Broker.ParseTimeout(); err != nil || d < 0 {
		return fmt.Errorf("broker.timeout must be a positive duration")
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("log.format must be 'json' or 'console'")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account:  AccountConfig{StartingBalance: 3000},
		Risk:     risk.DefaultPolicy(),
		Position: position.DefaultPolicy(),
		Ledger: LedgerConfig{
			Driver:         ledger.DriverCgo,
			DBPath:         "./trades.db",
			RequireBracket: true,
		},
		Broker: BrokerConfig{
			Preferred: []string{string(broker.KindAlpaca), string(broker.KindRobinhood), string(broker.KindPaper)},
			Timeout:   "10s",
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Credentials are broker secrets. They come from the environment, never
// from the config file.
type Credentials struct {
	AlpacaKeyID      string
	AlpacaSecret     string
	AlpacaEnv        string
	RobinhoodToken   string
	RobinhoodAccount string
}

// LoadCredentials reads broker secrets from the environment after loading
// any .env files given, or ./.env when none are. Missing files are not an
// error.
func LoadCredentials(files ...string) Credentials {
	_ = godotenv.Load(files...)
	return Credentials{
		AlpacaKeyID:      os.Getenv("ALPACA_API_KEY_ID"),
		AlpacaSecret:     os.Getenv("ALPACA_API_SECRET_KEY"),
		AlpacaEnv:        os.Getenv("ALPACA_ENV"),
		RobinhoodToken:   os.Getenv("ROBINHOOD_TOKEN"),
		RobinhoodAccount: os.Getenv("ROBINHOOD_ACCOUNT"),
	}
}

func (c Credentials) HasAlpaca() bool {
	return c.AlpacaKeyID != "" && c.AlpacaSecret != ""
}

func (c Credentials) HasRobinhood() bool {
	return c.RobinhoodToken != ""
}
