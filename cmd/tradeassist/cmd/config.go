package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradeassist/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage tradeassist configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  tradeassist config init -o tradeassist.yaml
  tradeassist config validate -f tradeassist.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "tradeassist.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if err := config.Default().SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("✓ Created default configuration: %s\n", configInitOutput)
	fmt.Println("\nBroker credentials are read from the environment or .env:")
	fmt.Println("  ALPACA_API_KEY_ID, ALPACA_API_SECRET_KEY, ALPACA_ENV")
	fmt.Println("  ROBINHOOD_TOKEN, ROBINHOOD_ACCOUNT")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	c, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("✓ Configuration valid: %s\n", configValidatePath)
	fmt.Printf("  Account: $%.2f starting balance\n", c.Account.StartingBalance)
	fmt.Printf("  Risk: %.2f%% per trade, %.0f-%.0f%% position, %.1f%% daily loss\n",
		c.Risk.RiskPerTradePct, c.Risk.MinPositionPct, c.Risk.MaxPositionPct, c.Risk.MaxDailyLossPct)
	fmt.Printf("  Ledger: %s %s\n", c.Ledger.Driver, c.Ledger.DBPath)
	fmt.Printf("  Brokers: %v\n", c.Broker.Preferred)
	return nil
}
