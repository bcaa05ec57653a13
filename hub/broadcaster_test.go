package hub

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/pricehub/formula"
	"github.com/rustyeddy/pricehub/metrics"
	"github.com/rustyeddy/pricehub/pricing"
)

type recordingSink struct {
	mu       sync.Mutex
	payloads []string
}

func (s *recordingSink) Broadcast(p []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, string(p))
	return 1
}

func (s *recordingSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.payloads...)
}

type unavailableTable struct{}

func (unavailableTable) Snapshot(dst pricing.Snapshot) (pricing.Snapshot, error) {
	return dst[:0], pricing.ErrUnavailable
}

func bookFrom(t *testing.T, src string) *formula.Book {
	t.Helper()
	defs, warns := formula.Parse(strings.NewReader(src))
	require.Empty(t, warns)
	b := formula.NewBook()
	b.Apply(defs)
	return b
}

func TestTick_EndToEndSpread(t *testing.T) {
	t.Parallel()

	table := pricing.NewTable(0)
	require.NoError(t, table.Upsert(pricing.Quote{Instrument: "EURUSD", Bid: 1.10000, Ask: 1.10010}))
	sink := &recordingSink{}
	b := New(table, bookFrom(t, "spread_bid = EURUSD.ask - EURUSD.bid\n"), sink, Options{})

	b.Tick()
	b.Tick()

	got := sink.all()
	require.Len(t, got, 1)
	assert.Equal(t, "EURUSD 1.10000 1.10010\nspread 0.00010 0.00000\n", got[0])
}

func TestCollect_UnchangedBaseNotRepeated(t *testing.T) {
	t.Parallel()

	table := pricing.NewTable(0)
	require.NoError(t, table.Upsert(pricing.Quote{Instrument: "A", Bid: 1, Ask: 2}))
	require.NoError(t, table.Upsert(pricing.Quote{Instrument: "B", Bid: 3, Ask: 4}))
	b := New(table, nil, &recordingSink{}, Options{})

	out, err := b.Collect()
	require.NoError(t, err)
	assert.Equal(t, "A 1.00000 2.00000\nB 3.00000 4.00000\n", string(out))

	require.NoError(t, table.Upsert(pricing.Quote{Instrument: "B", Bid: 3, Ask: 4.5}))
	out, err = b.Collect()
	require.NoError(t, err)
	assert.Equal(t, "B 3.00000 4.50000\n", string(out))

	out, err = b.Collect()
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCollect_BaseUsesExactEquality(t *testing.T) {
	t.Parallel()

	table := pricing.NewTable(0)
	require.NoError(t, table.Upsert(pricing.Quote{Instrument: "A", Bid: 1.0, Ask: 1.0}))
	b := New(table, nil, &recordingSink{}, Options{})
	_, err := b.Collect()
	require.NoError(t, err)

	// prints identically at 5 decimals but is a different value
	require.NoError(t, table.Upsert(pricing.Quote{Instrument: "A", Bid: 1.000000001, Ask: 1.0}))
	out, err := b.Collect()
	require.NoError(t, err)
	assert.Equal(t, "A 1.00000 1.00000\n", string(out))
}

func TestCollect_SyntheticSubPrecisionNoiseSuppressed(t *testing.T) {
	t.Parallel()

	table := pricing.NewTable(0)
	require.NoError(t, table.Upsert(pricing.Quote{Instrument: "X", Bid: 1.0, Ask: 2.0}))
	b := New(table, bookFrom(t, "s_bid = X.bid\ns_ask = X.ask, digits=5\n"), &recordingSink{}, Options{})

	out, err := b.Collect()
	require.NoError(t, err)
	assert.Contains(t, string(out), "s 1.00000 2.00000\n")

	require.NoError(t, table.Upsert(pricing.Quote{Instrument: "X", Bid: 1.000004999, Ask: 2.0}))
	out, err = b.Collect()
	require.NoError(t, err)
	// the base instrument changed, the rounded synthetic did not
	assert.Equal(t, "X 1.00000 2.00000\n", string(out))

	require.NoError(t, table.Upsert(pricing.Quote{Instrument: "X", Bid: 1.00001, Ask: 2.0}))
	out, err = b.Collect()
	require.NoError(t, err)
	assert.Equal(t, "X 1.00001 2.00000\ns 1.00001 2.00000\n", string(out))
}

func TestCollect_SyntheticPrecision(t *testing.T) {
	t.Parallel()

	table := pricing.NewTable(0)
	require.NoError(t, table.Upsert(pricing.Quote{Instrument: "EURUSD", Bid: 1.08456, Ask: 1.08471}))
	src := "foo_bid = EURUSD.bid + 0.0001, digits=4\nfoo_ask = EURUSD.ask - 0.0001, digits=4\n"
	b := New(table, bookFrom(t, src), &recordingSink{}, Options{})

	out, err := b.Collect()
	require.NoError(t, err)
	assert.Equal(t, "EURUSD 1.08456 1.08471\nfoo 1.0847 1.0846\n", string(out))

	v, ok := b.LastValues().Get("foo")
	require.True(t, ok)
	assert.Equal(t, 1.0847, v.Bid)
	assert.Equal(t, 1.0846, v.Ask)
}

func TestCollect_SyntheticWithMissingInputs(t *testing.T) {
	t.Parallel()

	table := pricing.NewTable(0)
	require.NoError(t, table.Upsert(pricing.Quote{Instrument: "B", Bid: 1, Ask: 2}))
	src := "z_bid = A.bid + 1.0 - B.ask\nz_ask = 1.0 + A.bid\n"
	b := New(table, bookFrom(t, src), &recordingSink{}, Options{})

	out, err := b.Collect()
	require.NoError(t, err)
	assert.Equal(t, "B 1.00000 2.00000\nz 0.00000 1.00000\n", string(out))
}

func TestCollect_SyntheticsSortedAfterBase(t *testing.T) {
	t.Parallel()

	table := pricing.NewTable(0)
	require.NoError(t, table.Upsert(pricing.Quote{Instrument: "Z", Bid: 1, Ask: 1}))
	b := New(table, bookFrom(t, "b_bid = 2, digits=0\na_bid = 1, digits=0\n"), &recordingSink{}, Options{})

	out, err := b.Collect()
	require.NoError(t, err)
	assert.Equal(t, "Z 1.00000 1.00000\na 1 0\nb 2 0\n", string(out))
}

func TestTick_UnavailableTableSendsNothing(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	m := metrics.New()
	b := New(unavailableTable{}, bookFrom(t, "k_bid = 1\n"), sink, Options{Metrics: m})

	_, err := b.Collect()
	assert.True(t, errors.Is(err, pricing.ErrUnavailable))
	b.Tick()
	assert.Empty(t, sink.all())
	assert.Equal(t, 0, b.LastValues().Len())
}

func TestTick_NoEmptyFrames(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	b := New(pricing.NewTable(0), nil, sink, Options{})
	b.Tick()
	b.Tick()
	assert.Empty(t, sink.all())
}

func TestTick_BecomesAvailable(t *testing.T) {
	t.Parallel()

	table := &switchTable{}
	sink := &recordingSink{}
	b := New(table, nil, sink, Options{})

	b.Tick()
	assert.Empty(t, sink.all())

	table.set(pricing.Snapshot{{Instrument: "A", Bid: 1, Ask: 2}})
	b.Tick()
	assert.Equal(t, []string{"A 1.00000 2.00000\n"}, sink.all())
}

type switchTable struct {
	mu   sync.Mutex
	snap pricing.Snapshot
}

func (s *switchTable) set(snap pricing.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

func (s *switchTable) Snapshot(dst pricing.Snapshot) (pricing.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return dst[:0], pricing.ErrUnavailable
	}
	return append(dst[:0], s.snap...), nil
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	table := pricing.NewTable(0)
	require.NoError(t, table.Upsert(pricing.Quote{Instrument: "A", Bid: 1, Ask: 2}))
	sink := &recordingSink{}
	b := New(table, nil, sink, Options{Period: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, table.Upsert(pricing.Quote{Instrument: "A", Bid: 1.5, Ask: 2}))
	require.Eventually(t, func() bool { return len(sink.all()) == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, []string{"A 1.00000 2.00000\n", "A 1.50000 2.00000\n"}, sink.all())
}

func TestLastValues(t *testing.T) {
	t.Parallel()

	l := NewLastValues()
	q := pricing.Quote{Instrument: "A", Bid: 1, Ask: 2}
	assert.True(t, l.Changed(q))
	assert.False(t, l.Changed(q))
	q.Ask = 3
	assert.True(t, l.Changed(q))
	assert.Equal(t, 1, l.Len())

	_, ok := l.Get("B")
	assert.False(t, ok)
}
