package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradeassist/engine"
	"github.com/rustyeddy/tradeassist/ledger"
	"github.com/rustyeddy/tradeassist/logger"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay recorded oracle cycles through the engine",
	Long: `Feed a JSON Lines file of oracle cycles through the engine. Each line
holds a timestamp and, per symbol, a price plus an optional action for an
open position or an optional setup proposal.

Orders go to the first available broker from the config unless --broker
names one. Use --broker paper to replay without touching a real account.

Example:
  tradeassist replay -f cycles.jsonl --broker paper --db replay.db`,
	Args: cobra.NoArgs,
	RunE: runReplay,
}

var (
	replayFile   string
	replayBroker string
	replayDBPath string
	replayJSON   bool
)

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "", "JSON Lines file of cycles (required)")
	replayCmd.Flags().StringVarP(&replayBroker, "broker", "b", "", "use only this broker (alpaca, robinhood, paper)")
	replayCmd.Flags().StringVarP(&replayDBPath, "db", "d", "", "SQLite ledger path (default from config)")
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "print each cycle's results as JSON")
	replayCmd.MarkFlagRequired("file")
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	f, err := os.Open(replayFile)
	if err != nil {
		return fmt.Errorf("open %s: %w", replayFile, err)
	}
	defer f.Close()

	e, closeFn, err := buildEngine(ctx, cfg, replayDBPath, replayBroker)
	if err != nil {
		return err
	}
	defer closeFn()

	logger.Info(ctx, "replay start", zap.String("file", replayFile), zap.String("broker", string(e.Broker().Kind())))

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	enc := json.NewEncoder(os.Stdout)

	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		c, err := engine.DecodeCycle(sc.Bytes())
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		results := e.RunCycle(ctx, c)
		if replayJSON {
			if err := enc.Encode(results); err != nil {
				return err
			}
			continue
		}
		for _, r := range results {
			printResult(line, r)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", replayFile, err)
	}

	st := e.GetAccountMetrics()
	fmt.Printf("\nBalance: $%s  Realized: $%s  Unrealized: $%s  Drawdown: %.2f%%\n",
		st.CurrentBalance.StringFixed(2), st.RealizedPL.StringFixed(2), st.UnrealizedPL.StringFixed(2), st.Drawdown)
	fmt.Println(ledger.FormatMetricsOrg(e.GetPerformanceMetrics(ctx)))
	return nil
}

func printResult(line int, r engine.CycleResult) {
	switch {
	case r.Err != nil:
		fmt.Printf("%4d %-6s error: %v\n", line, r.Symbol, r.Err)
	case r.Open != nil:
		fmt.Printf("%4d %-6s OPEN %s @ %s (trade %d)\n", line, r.Symbol,
			r.Open.Evaluation.Shares, r.Open.Order.FillPrice.StringFixed(2), r.Open.TradeID)
	case r.Action != nil:
		d := r.Action.Decision
		fmt.Printf("%4d %-6s %s: %s\n", line, r.Symbol, d.Kind, d.Reason)
	}
}
