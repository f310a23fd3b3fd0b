package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradeassist/config"
	"github.com/rustyeddy/tradeassist/logger"
	"github.com/rustyeddy/tradeassist/trace"
)

var rootCmd = &cobra.Command{
	Use:   "tradeassist",
	Short: "Trade ledger and risk engine for an oracle-assisted equities trader",
	Long: `Tradeassist keeps the books for a small equities account traded on the
advice of an external oracle.

It provides tools for:
  - Sizing positions against a fixed-fractional risk budget
  - Gating new trades on buying power, position, risk and daily loss limits
  - Recording every trade in a SQLite ledger with performance metrics
  - Applying oracle actions to open positions with hard stop-loss overrides
  - Replaying recorded oracle cycles against a paper or live broker`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

var (
	cfgFile string
	cfg     *config.Config
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON); defaults are used when empty")
}

// setup loads the config and brings up logging and tracing before any
// subcommand runs.
func setup(cmd *cobra.Command, args []string) error {
	if cfgFile != "" {
		c, err := config.LoadFromFile(cfgFile)
		if err != nil {
			return err
		}
		cfg = c
	} else {
		cfg = config.Default()
		cfg.ApplyEnv()
	}

	if _, err := logger.Init(cfg.Log.Logger()); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := trace.Init(trace.Config{Enabled: cfg.Log.Tracing, Version: version}); err != nil {
		fmt.Fprintf(os.Stderr, "tracing disabled: %v\n", err)
	}
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	logger.Sync()
	return trace.Shutdown(context.Background())
}
