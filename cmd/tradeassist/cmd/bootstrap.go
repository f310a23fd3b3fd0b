package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradeassist/account"
	"github.com/rustyeddy/tradeassist/broker"
	"github.com/rustyeddy/tradeassist/broker/alpaca"
	"github.com/rustyeddy/tradeassist/broker/brokerobs"
	"github.com/rustyeddy/tradeassist/broker/paper"
	"github.com/rustyeddy/tradeassist/broker/robinhood"
	"github.com/rustyeddy/tradeassist/config"
	"github.com/rustyeddy/tradeassist/engine"
	"github.com/rustyeddy/tradeassist/ledger"
	"github.com/rustyeddy/tradeassist/logger"
)

func openLedger(ctx context.Context, c *config.Config, path string) (*ledger.Store, error) {
	opts := []ledger.Option{ledger.WithLogger(logger.L())}
	if c.Ledger.RequireBracket {
		opts = append(opts, ledger.RequireBracket())
	}
	if path == "" {
		path = c.Ledger.DBPath
	}
	if c.Ledger.Driver == config.DriverMemory {
		return ledger.NewMemory(opts...), nil
	}

	backend, err := ledger.NewSQLiteWithDriver(c.Ledger.Driver, path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	store, err := ledger.Open(ctx, backend, opts...)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return store, nil
}

// selectBroker tries the configured venues in order, falling back to the
// paper broker. only, when set, restricts the candidates to one venue.
func selectBroker(ctx context.Context, c *config.Config, only string) (broker.Broker, error) {
	creds := config.LoadCredentials()
	timeout, err := c.Broker.ParseTimeout()
	if err != nil {
		return nil, err
	}

	names := c.Broker.Preferred
	if only != "" {
		names = []string{only}
	}

	var candidates []broker.Broker
	for _, name := range names {
		switch broker.Kind(strings.ToLower(name)) {
		case broker.KindAlpaca:
			if creds.HasAlpaca() {
				candidates = append(candidates, alpaca.NewClient(creds.AlpacaKeyID, creds.AlpacaSecret, creds.AlpacaEnv))
			}
		case broker.KindRobinhood:
			if creds.HasRobinhood() {
				candidates = append(candidates, robinhood.NewClient(creds.RobinhoodToken, creds.RobinhoodAccount))
			}
		case broker.KindPaper:
		default:
			return nil, fmt.Errorf("unknown broker: %s", name)
		}
	}
	if only == "" || broker.Kind(strings.ToLower(only)) == broker.KindPaper {
		candidates = append(candidates, paper.New(decimal.NewFromFloat(c.Account.StartingBalance)))
	}

	b, err := broker.Select(ctx, logger.L(), timeout, candidates...)
	if err != nil {
		return nil, err
	}
	return brokerobs.Wrap(b), nil
}

// buildEngine wires ledger, account, broker and position machine
// together. The returned func closes the ledger.
func buildEngine(ctx context.Context, c *config.Config, dbPath, only string) (*engine.Engine, func(), error) {
	store, err := openLedger(ctx, c, dbPath)
	if err != nil {
		return nil, nil, err
	}
	b, err := selectBroker(ctx, c, only)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	acct := account.New(decimal.NewFromFloat(c.Account.StartingBalance), c.Risk)
	e := engine.New(store, acct, b, c.Position)
	if _, err := e.Refresh(ctx); err != nil {
		logger.Warn(ctx, "initial account refresh failed", zap.Error(err))
	}
	return e, func() { store.Close() }, nil
}
