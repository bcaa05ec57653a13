package formula

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rustyeddy/pricehub/pricing"
)

type entry struct {
	syn    Synthetic
	digits [2]int
	set    [2]bool
}

// Book holds the configured synthetic instruments. Definitions for the two
// sides of an instrument may arrive in any order and are merged into one
// entry.
type Book struct {
	mu    sync.RWMutex
	items map[string]*entry
}

func NewBook() *Book {
	return &Book{items: make(map[string]*entry)}
}

// Apply merges defs into the book, overwriting the formula of the same name
// and side. Every definition also writes the shared precision, falling back
// to DefaultPrecision when its line had no valid digits= directive, so the
// line applied last wins. Differing precisions for the two sides of one
// instrument are reported as warnings.
func (b *Book) Apply(defs []Definition) []Warning {
	b.mu.Lock()
	defer b.mu.Unlock()

	var warns []Warning
	for _, d := range defs {
		e, ok := b.items[d.Name]
		if !ok {
			e = &entry{syn: Synthetic{Name: d.Name, Precision: DefaultPrecision}}
			b.items[d.Name] = e
		}
		if d.Side == pricing.SideAsk {
			e.syn.Ask = d.Formula
		} else {
			e.syn.Bid = d.Formula
		}

		other := pricing.SideBid
		if d.Side == pricing.SideBid {
			other = pricing.SideAsk
		}
		if e.set[other] && e.digits[other] != d.Precision {
			warns = append(warns, Warning{
				Line: d.Line,
				Msg: fmt.Sprintf("%s_%s digits=%d overrides %s_%s digits=%d",
					d.Name, d.Side, d.Precision, d.Name, other, e.digits[other]),
			})
		}
		e.digits[d.Side] = d.Precision
		e.set[d.Side] = true
		e.syn.Precision = d.Precision
	}
	return warns
}

// Get returns a copy of the named instrument.
func (b *Book) Get(name string) (Synthetic, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.items[name]
	if !ok {
		return Synthetic{}, false
	}
	return e.syn, true
}

// Snapshot returns every instrument sorted by name. Formula slices are
// shared with the book; Apply replaces them rather than mutating them.
func (b *Book) Snapshot(dst []Synthetic) []Synthetic {
	b.mu.RLock()
	dst = dst[:0]
	for _, e := range b.items {
		dst = append(dst, e.syn)
	}
	b.mu.RUnlock()

	sort.Slice(dst, func(i, j int) bool { return dst[i].Name < dst[j].Name })
	return dst
}

func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}
