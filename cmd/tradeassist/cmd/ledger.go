package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradeassist/ledger"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Query the trade ledger",
	Long: `Query and display trade records and performance metrics.

Subcommands:
  open     - List open positions
  metrics  - Show performance metrics
  trade    - Show one trade by id
  today    - List trades closed today
  day      - List trades closed on a specific day
  export   - Write every trade as CSV

Examples:
  tradeassist ledger open
  tradeassist ledger trade 42
  tradeassist ledger day 2026-01-15
  tradeassist ledger export -o trades.csv`,
}

var ledgerOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "List open positions",
	Args:  cobra.NoArgs,
	RunE:  runLedgerOpen,
}

var ledgerMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show performance metrics",
	Args:  cobra.NoArgs,
	RunE:  runLedgerMetrics,
}

var ledgerTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Show details of a specific trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerTrade,
}

var ledgerTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List trades closed today",
	Args:  cobra.NoArgs,
	RunE:  runLedgerToday,
}

var ledgerDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades closed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerDay,
}

var ledgerExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every trade as CSV",
	Args:  cobra.NoArgs,
	RunE:  runLedgerExport,
}

var (
	ledgerDBPath       string
	ledgerExportOutput string
)

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerOpenCmd)
	ledgerCmd.AddCommand(ledgerMetricsCmd)
	ledgerCmd.AddCommand(ledgerTradeCmd)
	ledgerCmd.AddCommand(ledgerTodayCmd)
	ledgerCmd.AddCommand(ledgerDayCmd)
	ledgerCmd.AddCommand(ledgerExportCmd)

	ledgerCmd.PersistentFlags().StringVarP(&ledgerDBPath, "db", "d", "", "path to SQLite ledger (default from config)")
	ledgerExportCmd.Flags().StringVarP(&ledgerExportOutput, "output", "o", "", "output file (default stdout)")
}

func runLedgerOpen(cmd *cobra.Command, args []string) error {
	store, err := openLedger(cmd.Context(), cfg, ledgerDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Println(ledger.FormatTradesOrg(store.GetOpenPositions(cmd.Context())))
	return nil
}

func runLedgerMetrics(cmd *cobra.Command, args []string) error {
	store, err := openLedger(cmd.Context(), cfg, ledgerDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Println(ledger.FormatMetricsOrg(store.GetMetrics(cmd.Context())))
	return nil
}

func runLedgerTrade(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("trade id: %w", err)
	}

	store, err := openLedger(cmd.Context(), cfg, ledgerDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.GetTrade(id)
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}
	fmt.Println(ledger.FormatTradeOrg(rec))
	return nil
}

func runLedgerToday(cmd *cobra.Command, args []string) error {
	return listClosedOn(cmd, time.Now().In(time.Local).Format("2006-01-02"))
}

func runLedgerDay(cmd *cobra.Command, args []string) error {
	return listClosedOn(cmd, args[0])
}

func listClosedOn(cmd *cobra.Command, day string) error {
	start, end, err := dayBounds(time.Local, day)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	store, err := openLedger(cmd.Context(), cfg, ledgerDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Println(ledger.FormatTradesOrg(store.ListTradesClosedBetween(start, end)))
	return nil
}

func runLedgerExport(cmd *cobra.Command, args []string) error {
	store, err := openLedger(cmd.Context(), cfg, ledgerDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	out := os.Stdout
	if ledgerExportOutput != "" {
		f, err := os.Create(ledgerExportOutput)
		if err != nil {
			return fmt.Errorf("create %s: %w", ledgerExportOutput, err)
		}
		defer f.Close()
		out = f
	}
	if err := ledger.WriteCSV(out, store.Trades()); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1), nil
}
