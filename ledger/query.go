package ledger

import (
	"fmt"
	"sort"
	"time"
)

// GetTrade returns a single trade record by id.
func (s *Store) GetTrade(id int64) (TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.trades {
		if t.ID == id {
			return t, nil
		}
	}
	return TradeRecord{}, fmt.Errorf("trade %d: %w", id, ErrNotFound)
}

// ListTradesClosedBetween returns trades whose exit_time is within [start, end),
// oldest first.
func (s *Store) ListTradesClosedBetween(start, end time.Time) []TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []TradeRecord
	for _, t := range s.trades {
		if t.Status != StatusClosed || t.ExitTime == nil {
			continue
		}
		if !t.ExitTime.Before(start) && t.ExitTime.Before(end) {
			out = append(out, t)
		}
	}
	sortByExit(out)
	return out
}

func sortByExit(recs []TradeRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return exitTime(recs[i]).Before(exitTime(recs[j]))
	})
}
