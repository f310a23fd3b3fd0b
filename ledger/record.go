package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a TradeRecord.
type Status string

const (
	StatusOpen            Status = "OPEN"
	StatusPartiallyClosed Status = "PARTIALLY_CLOSED"
	StatusClosed          Status = "CLOSED"
)

// IsOpen reports whether a record in this state still holds shares.
func (s Status) IsOpen() bool {
	return s != StatusClosed
}

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusPartiallyClosed, StatusClosed:
		return true
	}
	return false
}

// ParseStatus accepts any casing of the three states.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidTrade, s)
	}
	return st, nil
}

var (
	ErrInvalidTrade          = errors.New("invalid trade")
	ErrDuplicateOpenPosition = fmt.Errorf("%w: duplicate open position", ErrInvalidTrade)
	ErrMissingExitPrice      = fmt.Errorf("%w: missing exit price", ErrInvalidTrade)
	ErrNotFound              = errors.New("no open trade")
	ErrPersistence           = errors.New("ledger persistence failed")
)

// TradeRecord is one row per position lifecycle event. A partial exit
// produces a separate CLOSED record for the exited slice.
type TradeRecord struct {
	ID                int64               `json:"id"`
	Symbol            string              `json:"symbol"`
	EntryPrice        decimal.Decimal     `json:"entry_price"`
	StopPrice         decimal.Decimal     `json:"stop_price"`
	TargetPrice       decimal.Decimal     `json:"target_price"`
	PositionSize      decimal.Decimal     `json:"position_size"`
	Status            Status              `json:"status"`
	EntryTime         time.Time           `json:"entry_time"`
	ExitPrice         decimal.NullDecimal `json:"exit_price"`
	ExitTime          *time.Time          `json:"exit_time,omitempty"`
	ProfitLoss        decimal.NullDecimal `json:"profit_loss"`
	ProfitLossPercent decimal.NullDecimal `json:"profit_loss_percent"`
	Confidence        decimal.NullDecimal `json:"confidence"`
	Reason            string              `json:"reason"`
	Notes             string              `json:"notes"`
	Broker            string              `json:"broker,omitempty"`
	ParentID          int64               `json:"parent_id,omitempty"`
}

// Value is the position's cost basis.
func (t TradeRecord) Value() decimal.Decimal {
	return t.PositionSize.Mul(t.EntryPrice)
}

// Patch lists the fields UpdateTrade may change. Nil pointers are left
// alone; Notes is appended to the existing notes. P&L is never patched.
type Patch struct {
	Status       *Status
	ExitPrice    *decimal.Decimal
	ExitTime     *time.Time
	StopPrice    *decimal.Decimal
	TargetPrice  *decimal.Decimal
	PositionSize *decimal.Decimal
	Reason       *string
	Notes        string
}

// Close is the patch for a full exit at price.
func Close(price decimal.Decimal, note string) Patch {
	st := StatusClosed
	return Patch{Status: &st, ExitPrice: &price, Notes: note}
}

func validate(t TradeRecord, bracketed bool) error {
	switch {
	case strings.TrimSpace(t.Symbol) == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalidTrade)
	case !t.EntryPrice.IsPositive():
		return fmt.Errorf("%w: entry_price must be positive", ErrInvalidTrade)
	case !t.PositionSize.IsPositive():
		return fmt.Errorf("%w: position_size must be positive", ErrInvalidTrade)
	case t.StopPrice.IsNegative() || t.TargetPrice.IsNegative():
		return fmt.Errorf("%w: stop and target must not be negative", ErrInvalidTrade)
	}
	if bracketed && (!t.StopPrice.IsPositive() || !t.TargetPrice.IsPositive()) {
		return fmt.Errorf("%w: bracketed trade needs stop_price and target_price", ErrInvalidTrade)
	}
	if t.Status != "" && !t.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTrade, t.Status)
	}
	return nil
}

// settle stamps exit data and computes P&L from the record's own prices.
func settle(t *TradeRecord, exit decimal.Decimal, at time.Time) {
	t.ExitPrice = decimal.NewNullDecimal(exit)
	if t.ExitTime == nil {
		at := at
		t.ExitTime = &at
	}
	pl := exit.Sub(t.EntryPrice).Mul(t.PositionSize)
	t.ProfitLoss = decimal.NewNullDecimal(pl)
	pct := exit.Div(t.EntryPrice).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100))
	t.ProfitLossPercent = decimal.NewNullDecimal(pct.Round(4))
}

func appendNote(notes, note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return notes
	}
	if notes == "" {
		return note
	}
	return notes + "; " + note
}
