package formula

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/pricehub/pricing"
)

func mustFormula(t *testing.T, body string) Formula {
	t.Helper()
	defs, warns := Parse(strings.NewReader("t_bid = " + body))
	require.Empty(t, warns)
	require.Len(t, defs, 1)
	return defs[0].Formula
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	table := pricing.Snapshot{
		{Instrument: "EURUSD", Bid: 1.1, Ask: 1.1001},
		{Instrument: "B", Bid: 2, Ask: 3},
	}

	tests := []struct {
		name string
		body string
		want float64
	}{
		{name: "empty", body: "", want: 0},
		{name: "constant", body: "1.25", want: 1.25},
		{name: "field", body: "EURUSD.ask", want: 1.1001},
		{name: "add and subtract", body: "B.ask - B.bid + 10", want: 11},
		{name: "seed missing zeroes everything", body: "A.bid + 1.0 - B.ask", want: 0},
		{name: "later missing is skipped", body: "1.0 + A.bid", want: 1},
		{name: "later missing between terms", body: "B.bid - A.ask + 5", want: 7},
		{name: "negative constant", body: "B.bid + -0.5", want: 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Evaluate(mustFormula(t, tt.body), table), 1e-12)
		})
	}
}

func TestEvaluate_Nil(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.0, Evaluate(nil, pricing.Snapshot{}))
}

func TestRound(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, Round(1.000004999, 5))
	assert.Equal(t, 1.00001, Round(1.000005001, 5))
	assert.Equal(t, 0.0001, Round(1.1001-1.1, 5))
	assert.Equal(t, 3.0, Round(2.6, 0))
	assert.Equal(t, Round(1.2345678, 3), Round(1.2345679, 3))
	assert.True(t, math.IsNaN(Round(math.NaN(), 5)))
}

func TestSynthetic_Quote(t *testing.T) {
	t.Parallel()

	table := pricing.Snapshot{{Instrument: "EURUSD", Bid: 1.10000, Ask: 1.10010}}
	s := Synthetic{Name: "spread", Bid: mustFormula(t, "EURUSD.ask - EURUSD.bid"), Precision: 5}

	q := s.Quote(table)
	assert.Equal(t, "spread", q.Instrument)
	assert.Equal(t, 0.0001, q.Bid)
	assert.Equal(t, 0.0, q.Ask)
	assert.Equal(t, s.Bid, s.Formula(pricing.SideBid))
	assert.Empty(t, s.Formula(pricing.SideAsk))
}
