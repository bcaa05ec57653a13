// Package hub runs the change-detection loop: every tick it reads the price
// table, evaluates synthetic instruments, and hands the lines that changed
// since the previous broadcast to a Sink.
package hub

import (
	"bytes"
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/pricehub/formula"
	"github.com/rustyeddy/pricehub/metrics"
	"github.com/rustyeddy/pricehub/pkg/logging"
	"github.com/rustyeddy/pricehub/pricing"
)

const (
	// DefaultPeriod is the tick interval of the broadcast loop.
	DefaultPeriod = 100 * time.Millisecond
	// BasePrecision is the decimal count used for base instruments.
	BasePrecision = 5
)

// Sink delivers one tick's payload to every current subscriber and returns
// how many accepted it.
type Sink interface {
	Broadcast(payload []byte) int
}

type Options struct {
	Period  time.Duration
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

type Broadcaster struct {
	table   pricing.Reader
	book    *formula.Book
	sink    Sink
	last    *LastValues
	period  time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics

	snap        pricing.Snapshot
	synths      []formula.Synthetic
	buf         bytes.Buffer
	unavailable bool
}

func New(table pricing.Reader, book *formula.Book, sink Sink, opts Options) *Broadcaster {
	if book == nil {
		book = formula.NewBook()
	}
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	return &Broadcaster{
		table:   table,
		book:    book,
		sink:    sink,
		last:    NewLastValues(),
		period:  opts.Period,
		log:     logging.OrNop(opts.Logger),
		metrics: opts.Metrics,
	}
}

// LastValues exposes the change-detection state, read-only by convention.
func (b *Broadcaster) LastValues() *LastValues { return b.last }

// Run ticks until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	t := time.NewTicker(b.period)
	defer t.Stop()

	b.log.Info("broadcast loop started", zap.Duration("period", b.period))
	for {
		b.Tick()
		select {
		case <-ctx.Done():
			b.log.Info("broadcast loop stopped")
			return nil
		case <-t.C:
		}
	}
}

// Tick performs one iteration: collect the changed lines and, if there are
// any, send them as a single payload.
func (b *Broadcaster) Tick() {
	payload, err := b.Collect()
	if err != nil {
		return
	}
	if len(payload) == 0 {
		return
	}
	n := b.sink.Broadcast(payload)
	b.log.Debug("broadcast", zap.Int("bytes", len(payload)), zap.Int("subscribers", n))
}

// Collect returns the lines for every instrument whose value changed since
// it was last collected. The returned slice is reused by the next call.
// Collect returns an error wrapping pricing.ErrUnavailable while the table
// cannot be read.
func (b *Broadcaster) Collect() ([]byte, error) {
	snap, err := b.table.Snapshot(b.snap)
	b.snap = snap
	if err != nil {
		b.metrics.IncSkippedTick()
		if !b.unavailable {
			b.unavailable = true
			b.log.Warn("price table unavailable, waiting", zap.Error(err))
		}
		return nil, err
	}
	if b.unavailable {
		b.unavailable = false
		b.log.Info("price table available", zap.Int("instruments", len(snap)))
	}
	b.metrics.IncTick()

	b.buf.Reset()

	base := 0
	for _, q := range snap {
		if b.last.Changed(q) {
			b.appendLine(q, BasePrecision)
			base++
		}
	}

	synthetic := 0
	b.synths = b.book.Snapshot(b.synths)
	for _, s := range b.synths {
		q := s.Quote(snap)
		if b.last.Changed(q) {
			b.appendLine(q, s.Precision)
			synthetic++
		}
	}

	b.metrics.AddLines(metrics.KindBase, base)
	b.metrics.AddLines(metrics.KindSynthetic, synthetic)
	return b.buf.Bytes(), nil
}

// appendLine writes "<symbol> <bid> <ask>\n" with fixed decimals.
func (b *Broadcaster) appendLine(q pricing.Quote, precision int) {
	var scratch [64]byte
	b.buf.WriteString(q.Instrument)
	b.buf.WriteByte(' ')
	b.buf.Write(strconv.AppendFloat(scratch[:0], q.Bid, 'f', precision, 64))
	b.buf.WriteByte(' ')
	b.buf.Write(strconv.AppendFloat(scratch[:0], q.Ask, 'f', precision, 64))
	b.buf.WriteByte('\n')
}
