package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is the single source of truth for TradeRecords. Every write holds
// the lock across validation, the durable commit and the metrics
// recompute, so readers never see metrics older than the last write.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	trades  []TradeRecord
	metrics PerformanceMetrics
	dirty   bool

	requireBracket bool
	now            func() time.Time
	log            *zap.Logger
}

type Option func(*Store)

// RequireBracket makes every LogTrade behave as if Bracketed() was passed.
func RequireBracket() Option {
	return func(s *Store) { s.requireBracket = true }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Open loads the backend's records and computes the initial metrics.
func Open(ctx context.Context, b Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend: b,
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	recs, err := b.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load: %w", ErrPersistence, err)
	}
	s.trades = recs
	s.metrics = Aggregate(recs, s.now())
	return s, nil
}

// NewMemory is a Store over a fresh MemoryBackend.
func NewMemory(opts ...Option) *Store {
	s, _ := Open(context.Background(), NewMemoryBackend(), opts...)
	return s
}

type LogOption func(*logOptions)

type logOptions struct {
	bracketed bool
}

// Bracketed requires stop_price and target_price on the record.
func Bracketed() LogOption {
	return func(o *logOptions) { o.bracketed = true }
}

// LogTrade appends rec and returns its id. An OPEN record is refused when
// the symbol already has one that is not CLOSED. A record logged as CLOSED
// must carry its exit price; P&L is computed here.
func (s *Store) LogTrade(ctx context.Context, rec TradeRecord, opts ...LogOption) (int64, error) {
	var o logOptions
	for _, opt := range opts {
		opt(&o)
	}

	rec.Symbol = NormalizeSymbol(rec.Symbol)
	if rec.Status == "" {
		rec.Status = StatusOpen
	}
	if err := validate(rec, o.bracketed || s.requireBracket); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.EntryTime.IsZero() {
		rec.EntryTime = s.now()
	}
	rec.ID = 0
	rec.ProfitLoss = decimal.NullDecimal{}
	rec.ProfitLossPercent = decimal.NullDecimal{}

	if rec.Status == StatusClosed {
		if !rec.ExitPrice.Valid || !rec.ExitPrice.Decimal.IsPositive() {
			return 0, fmt.Errorf("log trade %s: %w", rec.Symbol, ErrMissingExitPrice)
		}
		settle(&rec, rec.ExitPrice.Decimal, s.now())
	} else {
		if _, ok := s.openLocked(rec.Symbol); ok {
			return 0, fmt.Errorf("log trade %s: %w", rec.Symbol, ErrDuplicateOpenPosition)
		}
		rec.ExitPrice = decimal.NullDecimal{}
		rec.ExitTime = nil
	}

	ids, err := s.commitLocked(ctx, []TradeRecord{rec}, nil)
	if err != nil {
		return 0, err
	}
	s.log.Info("trade logged",
		zap.Int64("id", ids[0]),
		zap.String("symbol", rec.Symbol),
		zap.String("status", string(rec.Status)),
		zap.String("size", rec.PositionSize.String()),
		zap.String("entry", rec.EntryPrice.String()))
	return ids[0], nil
}

// UpdateTrade patches the most recent record for symbol that is not CLOSED.
func (s *Store) UpdateTrade(ctx context.Context, symbol string, p Patch) error {
	symbol = NormalizeSymbol(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.openLocked(symbol)
	if !ok {
		return fmt.Errorf("update trade %s: %w", symbol, ErrNotFound)
	}
	rec, err := s.applyPatchLocked(s.trades[idx], p)
	if err != nil {
		return fmt.Errorf("update trade %s: %w", symbol, err)
	}

	if _, err := s.commitLocked(ctx, nil, []TradeRecord{rec}); err != nil {
		return err
	}
	s.log.Info("trade updated",
		zap.Int64("id", rec.ID),
		zap.String("symbol", symbol),
		zap.String("status", string(rec.Status)))
	return nil
}

// SplitTrade carves exitSize shares off the open position for symbol. The
// slice is logged as a new CLOSED record at exitPrice and the remainder is
// reduced in place and marked PARTIALLY_CLOSED, in one commit.
func (s *Store) SplitTrade(ctx context.Context, symbol string, exitSize, exitPrice decimal.Decimal, note string) (int64, error) {
	symbol = NormalizeSymbol(symbol)
	if !exitSize.IsPositive() {
		return 0, fmt.Errorf("split trade %s: %w: exit size must be positive", symbol, ErrInvalidTrade)
	}
	if !exitPrice.IsPositive() {
		return 0, fmt.Errorf("split trade %s: %w", symbol, ErrMissingExitPrice)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.openLocked(symbol)
	if !ok {
		return 0, fmt.Errorf("split trade %s: %w", symbol, ErrNotFound)
	}
	parent := s.trades[idx]
	if !exitSize.LessThan(parent.PositionSize) {
		return 0, fmt.Errorf("split trade %s: %w: exit size %s leaves nothing open of %s",
			symbol, ErrInvalidTrade, exitSize, parent.PositionSize)
	}

	now := s.now()
	slice := parent
	slice.ID = 0
	slice.ParentID = parent.ID
	slice.PositionSize = exitSize
	slice.Status = StatusClosed
	slice.ExitTime = nil
	slice.Notes = appendNote("", note)
	settle(&slice, exitPrice, now)

	rest := parent
	rest.PositionSize = parent.PositionSize.Sub(exitSize)
	rest.Status = StatusPartiallyClosed
	rest.Notes = appendNote(rest.Notes, fmt.Sprintf("partial exit %s @ %s", exitSize, exitPrice))

	ids, err := s.commitLocked(ctx, []TradeRecord{slice}, []TradeRecord{rest})
	if err != nil {
		return 0, err
	}
	s.log.Info("trade split",
		zap.String("symbol", symbol),
		zap.Int64("slice_id", ids[0]),
		zap.String("exit_size", exitSize.String()),
		zap.String("remaining", rest.PositionSize.String()))
	return ids[0], nil
}

// GetOpenPositions returns every record that is not CLOSED.
func (s *Store) GetOpenPositions(ctx context.Context) []TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []TradeRecord
	for _, t := range s.trades {
		if t.Status.IsOpen() {
			out = append(out, t)
		}
	}
	return out
}

// OpenPosition returns the open record for symbol.
func (s *Store) OpenPosition(symbol string) (TradeRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.openLocked(NormalizeSymbol(symbol))
	if !ok {
		return TradeRecord{}, false
	}
	return s.trades[idx], true
}

// Trades returns a copy of every record in id order.
func (s *Store) Trades() []TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TradeRecord, len(s.trades))
	copy(out, s.trades)
	return out
}

// GetMetrics returns the latest aggregate.
func (s *Store) GetMetrics(ctx context.Context) PerformanceMetrics {
	s.mu.RLock()
	if !s.dirty {
		m := s.metrics
		s.mu.RUnlock()
		return m
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirty {
		s.metrics = Aggregate(s.trades, s.now())
		s.dirty = false
	}
	return s.metrics
}

// Invalidate forces the next GetMetrics to recompute.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) applyPatchLocked(rec TradeRecord, p Patch) (TradeRecord, error) {
	if p.StopPrice != nil {
		if p.StopPrice.IsNegative() {
			return rec, fmt.Errorf("%w: stop_price must not be negative", ErrInvalidTrade)
		}
		rec.StopPrice = *p.StopPrice
	}
	if p.TargetPrice != nil {
		if p.TargetPrice.IsNegative() {
			return rec, fmt.Errorf("%w: target_price must not be negative", ErrInvalidTrade)
		}
		rec.TargetPrice = *p.TargetPrice
	}
	if p.PositionSize != nil {
		if !p.PositionSize.IsPositive() {
			return rec, fmt.Errorf("%w: position_size must be positive", ErrInvalidTrade)
		}
		rec.PositionSize = *p.PositionSize
	}
	if p.Reason != nil {
		rec.Reason = *p.Reason
	}
	rec.Notes = appendNote(rec.Notes, p.Notes)

	if p.Status == nil {
		if p.ExitPrice != nil || p.ExitTime != nil {
			return rec, fmt.Errorf("%w: exit fields are only set on close", ErrInvalidTrade)
		}
		return rec, nil
	}
	if !p.Status.Valid() {
		return rec, fmt.Errorf("%w: unknown status %q", ErrInvalidTrade, *p.Status)
	}
	rec.Status = *p.Status
	if rec.Status != StatusClosed {
		if p.ExitPrice != nil || p.ExitTime != nil {
			return rec, fmt.Errorf("%w: exit fields are only set on close", ErrInvalidTrade)
		}
		return rec, nil
	}

	if p.ExitPrice == nil || !p.ExitPrice.IsPositive() {
		return rec, ErrMissingExitPrice
	}
	rec.ExitTime = p.ExitTime
	settle(&rec, *p.ExitPrice, s.now())
	return rec, nil
}

// commitLocked writes inserts and updates durably and only then swaps the
// in-memory state. On failure nothing in memory changes.
func (s *Store) commitLocked(ctx context.Context, inserts, updates []TradeRecord) ([]int64, error) {
	next := make([]TradeRecord, len(s.trades), len(s.trades)+len(inserts))
	copy(next, s.trades)
	for _, u := range updates {
		for i := range next {
			if next[i].ID == u.ID {
				next[i] = u
				break
			}
		}
	}
	next = append(next, inserts...)
	metrics := Aggregate(next, s.now())

	ids, err := s.backend.Commit(ctx, Batch{Inserts: inserts, Updates: updates, Metrics: metrics})
	if err != nil {
		s.log.Error("ledger commit failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if len(ids) != len(inserts) {
		return nil, fmt.Errorf("%w: backend returned %d ids for %d inserts", ErrPersistence, len(ids), len(inserts))
	}
	base := len(next) - len(inserts)
	for i, id := range ids {
		next[base+i].ID = id
	}

	s.trades = next
	s.metrics = metrics
	s.dirty = false
	return ids, nil
}

// openLocked finds the most recent record for symbol that is not CLOSED.
func (s *Store) openLocked(symbol string) (int, bool) {
	for i := len(s.trades) - 1; i >= 0; i-- {
		if s.trades[i].Symbol == symbol && s.trades[i].Status.IsOpen() {
			return i, true
		}
	}
	return -1, false
}

// NormalizeSymbol is the form symbols are stored and looked up under.
func NormalizeSymbol(sym string) string {
	return strings.ToUpper(strings.TrimSpace(sym))
}

// IsValidation reports whether err means the caller's input was rejected.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidTrade)
}
