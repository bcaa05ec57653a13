// Package formula implements the synthetic-instrument configuration
// language: a linear combination of base-instrument bid/ask fields and
// constants, with a per-instrument output precision.
//
//	# comment
//	spread_bid = EURUSD.ask - EURUSD.bid, digits=5
//	gold_ask   = XAUUSD.m.ask + 0.35
package formula

import (
	"strconv"
	"strings"

	"github.com/rustyeddy/pricehub/pricing"
)

const (
	// DefaultPrecision is used when no digits= directive is given.
	DefaultPrecision = 5
	// MaxPrecision bounds digits= directives.
	MaxPrecision = 15
)

type Op uint8

const (
	OpAdd Op = iota
	OpSubtract
)

func (o Op) String() string {
	if o == OpSubtract {
		return "-"
	}
	return "+"
}

type TermKind uint8

const (
	KindConstant TermKind = iota
	KindField
)

// Term is one operand of a formula with the operator that combines it into
// the running total. The operator of the first term is never applied.
type Term struct {
	Op     Op
	Kind   TermKind
	Symbol string
	Side   pricing.Side
	Value  float64
}

func (t Term) operand() string {
	if t.Kind == KindField {
		return t.Symbol + "." + t.Side.String()
	}
	return strconv.FormatFloat(t.Value, 'f', -1, 64)
}

// Formula is an ordered list of terms evaluated left to right.
type Formula []Term

func (f Formula) String() string {
	if len(f) == 0 {
		return "0"
	}
	var sb strings.Builder
	for i, t := range f {
		if i > 0 {
			sb.WriteByte(' ')
			sb.WriteString(t.Op.String())
			sb.WriteByte(' ')
		}
		sb.WriteString(t.operand())
	}
	return sb.String()
}

// Synthetic is a derived instrument. A side that was never configured has
// an empty formula and evaluates to zero.
type Synthetic struct {
	Name      string
	Bid       Formula
	Ask       Formula
	Precision int
}

// Formula returns the formula for one side.
func (s Synthetic) Formula(side pricing.Side) Formula {
	if side == pricing.SideAsk {
		return s.Ask
	}
	return s.Bid
}

// Quote evaluates both sides and rounds them to the instrument's precision.
func (s Synthetic) Quote(q Lookup) pricing.Quote {
	return pricing.Quote{
		Instrument: s.Name,
		Bid:        Round(Evaluate(s.Bid, q), s.Precision),
		Ask:        Round(Evaluate(s.Ask, q), s.Precision),
	}
}

// Round canonicalises v by formatting it with the given number of decimals
// and parsing it back, so values that print the same compare equal.
func Round(v float64, precision int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', precision, 64), 64)
	if err != nil {
		return v
	}
	return r
}
