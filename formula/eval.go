package formula

import "github.com/rustyeddy/pricehub/pricing"

// Lookup resolves base instruments. pricing.Snapshot satisfies it.
type Lookup interface {
	Lookup(instrument string) (pricing.Quote, bool)
}

// Evaluate computes f against q. It never fails: unresolved references
// degrade as follows.
//
// If the first term references an instrument that is missing, the whole
// result is 0. A missing instrument in any later term is skipped instead.
// Consumers see this asymmetry on the wire; do not "fix" one side alone.
func Evaluate(f Formula, q Lookup) float64 {
	if len(f) == 0 {
		return 0
	}

	acc, ok := operand(f[0], q)
	if !ok {
		return 0
	}
	for _, t := range f[1:] {
		v, ok := operand(t, q)
		if !ok {
			continue
		}
		switch t.Op {
		case OpAdd:
			acc += v
		case OpSubtract:
			acc -= v
		}
	}
	return acc
}

func operand(t Term, q Lookup) (float64, bool) {
	if t.Kind == KindConstant {
		return t.Value, true
	}
	quote, ok := q.Lookup(t.Symbol)
	if !ok {
		return 0, false
	}
	return quote.Price(t.Side), true
}
