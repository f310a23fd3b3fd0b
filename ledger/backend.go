package ledger

import (
	"context"
	"sync"
)

// Batch is everything one ledger mutation writes. A backend must apply it
// all or nothing.
type Batch struct {
	Inserts []TradeRecord
	Updates []TradeRecord
	Metrics PerformanceMetrics
}

// Backend is the durable side of a Store.
type Backend interface {
	// Load returns every stored record ordered by id.
	Load(ctx context.Context) ([]TradeRecord, error)
	// Commit applies the batch atomically and returns the ids assigned to
	// b.Inserts, in order.
	Commit(ctx context.Context, b Batch) ([]int64, error)
	Close() error
}

// MemoryBackend keeps records in process memory only. It is what paper
// sessions use when no database path is configured.
type MemoryBackend struct {
	mu      sync.Mutex
	rows    map[int64]TradeRecord
	order   []int64
	nextID  int64
	metrics PerformanceMetrics
	fail    error
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{rows: make(map[int64]TradeRecord)}
}

// FailWith makes every following Commit return err. Pass nil to recover.
func (m *MemoryBackend) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *MemoryBackend) Load(ctx context.Context) ([]TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]TradeRecord, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.rows[id])
	}
	return out, nil
}

func (m *MemoryBackend) Commit(ctx context.Context, b Batch) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return nil, m.fail
	}
	for _, u := range b.Updates {
		if _, ok := m.rows[u.ID]; !ok {
			return nil, ErrNotFound
		}
	}

	ids := make([]int64, 0, len(b.Inserts))
	for _, rec := range b.Inserts {
		m.nextID++
		rec.ID = m.nextID
		m.rows[rec.ID] = rec
		m.order = append(m.order, rec.ID)
		ids = append(ids, rec.ID)
	}
	for _, u := range b.Updates {
		m.rows[u.ID] = u
	}
	m.metrics = b.Metrics
	return ids, nil
}

// Metrics returns the last committed metrics snapshot.
func (m *MemoryBackend) Metrics() PerformanceMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

func (m *MemoryBackend) Close() error {
	return nil
}
