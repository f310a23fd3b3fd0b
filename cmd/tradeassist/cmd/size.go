package cmd

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradeassist/account"
)

var sizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Size a position and check it against the trade gates",
	Long: `Compute the share count for a long entry so the loss at the stop stays
within the per-trade risk budget, then run the allowance gates on it.

Example:
  tradeassist size --entry 10.00 --stop 9.50 --balance 3000`,
	Args: cobra.NoArgs,
	RunE: runSize,
}

var (
	sizeEntry   string
	sizeStop    string
	sizeBalance string
)

func init() {
	rootCmd.AddCommand(sizeCmd)

	sizeCmd.Flags().StringVar(&sizeEntry, "entry", "", "entry price (required)")
	sizeCmd.Flags().StringVar(&sizeStop, "stop", "", "stop price (required)")
	sizeCmd.Flags().StringVar(&sizeBalance, "balance", "", "account balance (default starting balance from config)")
	sizeCmd.MarkFlagRequired("entry")
	sizeCmd.MarkFlagRequired("stop")
}

func runSize(cmd *cobra.Command, args []string) error {
	entry, err := decimal.NewFromString(sizeEntry)
	if err != nil {
		return fmt.Errorf("entry: %w", err)
	}
	stop, err := decimal.NewFromString(sizeStop)
	if err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	balance := decimal.NewFromFloat(cfg.Account.StartingBalance)
	if sizeBalance != "" {
		if balance, err = decimal.NewFromString(sizeBalance); err != nil {
			return fmt.Errorf("balance: %w", err)
		}
	}

	acct := account.New(balance, cfg.Risk)
	res, err := acct.CalculatePositionSize(entry, stop)
	if err != nil {
		return err
	}
	allow := acct.CheckTradeAllowed(res.PositionValue, res.RiskAmount)

	fmt.Printf("Shares:          %d\n", res.Shares)
	fmt.Printf("Position value:  $%s (%.2f%%)\n", res.PositionValue.StringFixed(2), res.PositionPercent)
	fmt.Printf("Risk:            $%s (%.2f%%, $%s/share)\n", res.RiskAmount.StringFixed(2), res.RiskPercent, res.RiskPerShare.StringFixed(2))
	if res.BelowMinPosition {
		fmt.Printf("Note:            below the %.0f%% minimum position\n", cfg.Risk.MinPositionPct)
	}
	if allow.Allowed {
		fmt.Println("Allowed:         yes")
		return nil
	}
	fmt.Println("Allowed:         no")
	for _, v := range allow.Violations {
		fmt.Printf("  %-22s %s\n", v.Code, v.Msg)
	}
	return nil
}
