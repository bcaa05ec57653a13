package pricing

import (
	"fmt"
	"sync"
)

// Table is an in-process price table with the same fixed-capacity, linear
// lookup behaviour as the shared-memory segment. The replay feeder and the
// tests write into it.
type Table struct {
	mu       sync.RWMutex
	quotes   []Quote
	capacity int
}

func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = MaxSymbols
	}
	return &Table{quotes: make([]Quote, 0, capacity), capacity: capacity}
}

// Upsert updates an existing instrument in place or appends a new one.
// Once the table is full new instruments are rejected with ErrTableFull.
func (t *Table) Upsert(q Quote) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.quotes {
		if t.quotes[i].Instrument == q.Instrument {
			t.quotes[i].Bid = q.Bid
			t.quotes[i].Ask = q.Ask
			return nil
		}
	}
	if len(t.quotes) >= t.capacity {
		return fmt.Errorf("%w: cannot add %s", ErrTableFull, q.Instrument)
	}
	t.quotes = append(t.quotes, q)
	return nil
}

func (t *Table) Snapshot(dst Snapshot) (Snapshot, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append(dst[:0], t.quotes...), nil
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.quotes)
}
