package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradeassist/logger"
	"github.com/rustyeddy/tradeassist/oracle"
	"github.com/rustyeddy/tradeassist/trace"
)

// Cycle is one pass of the orchestration loop: a price for every watched
// symbol and whatever the oracle said about it.
type Cycle struct {
	Time    time.Time     `json:"time"`
	Symbols []SymbolInput `json:"symbols"`
}

type SymbolInput struct {
	Symbol   string                `json:"symbol"`
	Price    decimal.Decimal       `json:"price"`
	Action   *oracle.Action        `json:"action,omitempty"`
	Proposal *oracle.SetupProposal `json:"proposal,omitempty"`
}

type CycleResult struct {
	Symbol string        `json:"symbol"`
	Action *ActionResult `json:"action,omitempty"`
	Open   *OpenResult   `json:"open,omitempty"`
	Err    error         `json:"-"`
	Error  string        `json:"error,omitempty"`
}

// RunCycle processes every symbol of c concurrently. A symbol with an
// open position always goes through ApplyAction, as HOLD when no action
// came with it. A proposal is tried when it has none, and otherwise the
// price is only marked. Results come back in the
// order of c.Symbols.
func (e *Engine) RunCycle(ctx context.Context, c Cycle) []CycleResult {
	ctx, span := trace.StartSpan(ctx, "engine.RunCycle")
	defer span.End()

	logger.Debug(ctx, "cycle start", zap.Int("symbols", len(c.Symbols)), zap.Time("time", c.Time))

	out := make([]CycleResult, len(c.Symbols))
	var wg sync.WaitGroup
	for i, in := range c.Symbols {
		wg.Add(1)
		go func(i int, in SymbolInput) {
			defer wg.Done()
			out[i] = e.runSymbol(ctx, in)
		}(i, in)
	}
	wg.Wait()

	failed := 0
	for _, r := range out {
		if r.Err != nil {
			failed++
		}
	}
	logger.Info(ctx, "cycle complete", zap.Int("symbols", len(out)), zap.Int("failed", failed))
	return out
}

func (e *Engine) runSymbol(ctx context.Context, in SymbolInput) CycleResult {
	ctx, span := trace.StartSpan(ctx, "engine.symbol")
	defer span.End()

	res := CycleResult{Symbol: in.Symbol}
	_, open := e.ledger.OpenPosition(in.Symbol)

	switch {
	case !in.Price.IsPositive():
		res.Err = checkPrice(in.Symbol, in.Price)
	case open:
		// No word from the oracle is a HOLD; the stop still gets checked.
		a := oracle.Action{Kind: oracle.Hold}
		if in.Action != nil {
			a = *in.Action
		}
		ar, err := e.ApplyAction(ctx, in.Symbol, a, in.Price)
		res.Action = &ar
		res.Err = err
	case in.Proposal != nil:
		opened, err := e.OpenPosition(ctx, *in.Proposal)
		res.Open = &opened
		res.Err = err
	default:
		e.positions.Mark(in.Symbol, in.Price)
	}

	if res.Err != nil {
		res.Error = res.Err.Error()
		if IsBlocked(res.Err) {
			logger.Info(ctx, "symbol skipped", zap.String("symbol", in.Symbol), zap.Error(res.Err))
		} else {
			logger.ErrorWithErr(ctx, "symbol failed", res.Err, zap.String("symbol", in.Symbol))
		}
	}
	return res
}

type rawCycle struct {
	Time    time.Time `json:"time"`
	Symbols []struct {
		Symbol   string            `json:"symbol"`
		Price    decimal.Decimal   `json:"price"`
		Action   *oracle.RawAction `json:"action"`
		Proposal map[string]any    `json:"proposal"`
	} `json:"symbols"`
}

// DecodeCycle reads one replay line. Actions and proposals go through the
// same lenient parsing as live oracle output.
func DecodeCycle(b []byte) (Cycle, error) {
	var raw rawCycle
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return Cycle{}, fmt.Errorf("decode cycle: %w", err)
	}

	c := Cycle{Time: raw.Time, Symbols: make([]SymbolInput, 0, len(raw.Symbols))}
	for _, s := range raw.Symbols {
		if s.Symbol == "" {
			return Cycle{}, fmt.Errorf("decode cycle: symbol is required")
		}
		if !s.Price.IsPositive() {
			return Cycle{}, fmt.Errorf("decode cycle: %s: price must be positive", s.Symbol)
		}
		in := SymbolInput{Symbol: s.Symbol, Price: s.Price}
		if s.Action != nil {
			a, err := oracle.ParseAction(*s.Action)
			if err != nil {
				return Cycle{}, fmt.Errorf("decode cycle: %s: %w", s.Symbol, err)
			}
			in.Action = &a
		}
		if s.Proposal != nil {
			_, hasSymbol := s.Proposal["symbol"]
			_, hasTicker := s.Proposal["ticker"]
			if !hasSymbol && !hasTicker {
				s.Proposal["symbol"] = s.Symbol
			}
			p, err := oracle.ParseProposal(s.Proposal)
			if err != nil {
				return Cycle{}, fmt.Errorf("decode cycle: %s: %w", s.Symbol, err)
			}
			in.Proposal = &p
		}
		c.Symbols = append(c.Symbols, in)
	}
	return c, nil
}
