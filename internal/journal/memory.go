package journal

import (
	"context"
	"strings"
	"sync"
)

// MemoryLedger is an in-memory Ledger for tests and dry runs.
type MemoryLedger struct {
	mu     sync.Mutex
	trades []Record
	events []Event

	// FailAppend forces AppendTrade to fail, for persistence failure tests.
	FailAppend bool
}

func NewMemoryLedger() *MemoryLedger { return &MemoryLedger{} }

func (l *MemoryLedger) AppendTrade(ctx context.Context, rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailAppend {
		return ErrPersistenceFailure
	}
	l.trades = append(l.trades, rec)
	return nil
}

func (l *MemoryLedger) Trades(ctx context.Context, coin string) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Record
	for _, rec := range l.trades {
		if coin == "" || strings.EqualFold(rec.Coin, coin) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (l *MemoryLedger) LogEvent(ctx context.Context, event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

// Events returns a snapshot of logged events.
func (l *MemoryLedger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}
