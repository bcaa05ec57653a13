package hub

import (
	"sync"

	"github.com/rustyeddy/pricehub/pricing"
)

// LastValues remembers the last pair actually broadcast per instrument.
type LastValues struct {
	mu     sync.Mutex
	values map[string]pricing.Quote
}

func NewLastValues() *LastValues {
	return &LastValues{values: make(map[string]pricing.Quote)}
}

// Changed reports whether q differs from the last broadcast value for its
// instrument (or none was sent yet) and, if so, records q as sent.
func (l *LastValues) Changed(q pricing.Quote) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev, ok := l.values[q.Instrument]
	if ok && prev.Same(q) {
		return false
	}
	l.values[q.Instrument] = q
	return true
}

func (l *LastValues) Get(instrument string) (pricing.Quote, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	q, ok := l.values[instrument]
	return q, ok
}

func (l *LastValues) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.values)
}
