package engine

import (
	"sync"

	"github.com/rustyeddy/tradeassist/ledger"
)

// symbolLocks hands out one mutex per symbol. Work on the same symbol runs
// in lock acquisition order; different symbols never wait on each other.
type symbolLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *symbolLocks) lock(symbol string) func() {
	symbol = ledger.NormalizeSymbol(symbol)

	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	mu, ok := l.m[symbol]
	if !ok {
		mu = &sync.Mutex{}
		l.m[symbol] = mu
	}
	l.mu.Unlock()

	mu.Lock()
	return mu.Unlock
}
