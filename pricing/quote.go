package pricing

import (
	"errors"
)

const (
	// MaxSymbols is the slot count of the shared price table.
	MaxSymbols = 100
	// SymbolSize is the fixed width of a symbol slot, including the NUL.
	SymbolSize = 32
)

var (
	// ErrUnavailable is returned while the price table cannot be read yet.
	ErrUnavailable = errors.New("pricing: table unavailable")
	// ErrTableFull is returned when a new instrument does not fit.
	ErrTableFull = errors.New("pricing: table full")
	// ErrSymbolTooLong is returned for identifiers wider than a symbol slot.
	ErrSymbolTooLong = errors.New("pricing: symbol too long")
	// ErrReadOnly is returned when writing through a read-only mapping.
	ErrReadOnly = errors.New("pricing: table is read-only")
)

// Side selects one half of a two-sided quote.
type Side uint8

const (
	SideBid Side = iota
	SideAsk
)

func (s Side) String() string {
	if s == SideAsk {
		return "ask"
	}
	return "bid"
}

// Quote is the top of book for one instrument.
type Quote struct {
	Instrument string
	Bid        float64
	Ask        float64
}

// Price returns the requested side.
func (q Quote) Price(s Side) float64 {
	if s == SideAsk {
		return q.Ask
	}
	return q.Bid
}

// Same reports exact equality of both sides. No epsilon is applied.
func (q Quote) Same(o Quote) bool {
	return q.Bid == o.Bid && q.Ask == o.Ask
}

// Snapshot is a point-in-time copy of a price table in slot order.
type Snapshot []Quote

// Lookup finds a quote by exact identifier match.
func (s Snapshot) Lookup(instrument string) (Quote, bool) {
	for i := range s {
		if s[i].Instrument == instrument {
			return s[i], true
		}
	}
	return Quote{}, false
}

// Reader is the hub's read-only view of a price table. Snapshot appends the
// current contents to dst[:0] and returns ErrUnavailable until the table
// exists.
type Reader interface {
	Snapshot(dst Snapshot) (Snapshot, error)
}

// Writer is the producer side of a price table.
type Writer interface {
	Upsert(q Quote) error
}
