// Package replay feeds recorded ticks into a price table. It stands in for
// the live market-data producer during development and tests.
package replay

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/pricehub/pkg/logging"
	"github.com/rustyeddy/pricehub/pricing"
)

// Options controls how replay behaves.
type Options struct {
	// Interval is the pause after each row. Zero replays as fast as the
	// writer accepts quotes.
	Interval time.Duration
	// Loop restarts from the top of the file at EOF until ctx is done.
	Loop   bool
	Logger *zap.Logger
}

// CSV replays ticks from a CSV file into w and returns the number of
// quotes written.
//
// Rows are:
//
//	time,instrument,bid,ask
//
// where time is RFC3339 (or RFC3339Nano) and may be left empty. A header
// row starting with "time" is allowed. Quotes the table rejects (full, or a
// symbol too wide for a slot) are logged and skipped.
func CSV(ctx context.Context, csvPath string, w pricing.Writer, opts Options) (int, error) {
	total := 0
	for {
		n, err := replayFile(ctx, csvPath, w, opts)
		total += n
		if err != nil || !opts.Loop || n == 0 {
			return total, err
		}
		logging.OrNop(opts.Logger).Debug("replay looping", zap.String("file", csvPath), zap.Int("quotes", total))
	}
}

func replayFile(ctx context.Context, csvPath string, w pricing.Writer, opts Options) (int, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return Read(ctx, f, w, opts)
}

// Read replays one pass over r. Loop is ignored.
func Read(ctx context.Context, r io.Reader, w pricing.Writer, opts Options) (int, error) {
	log := logging.OrNop(opts.Logger)

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var timer *time.Timer
	if opts.Interval > 0 {
		timer = time.NewTimer(opts.Interval)
		timer.Stop()
		defer timer.Stop()
	}

	written := 0
	first := true
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		row, err := cr.Read()
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
		if len(row) == 0 {
			continue
		}
		if first {
			first = false
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}

		line, _ := cr.FieldPos(0)
		q, err := parseRow(row)
		if err != nil {
			return written, fmt.Errorf("line %d: %w", line, err)
		}

		if err := w.Upsert(q); err != nil {
			if errors.Is(err, pricing.ErrTableFull) || errors.Is(err, pricing.ErrSymbolTooLong) {
				log.Warn("quote dropped", zap.Int("line", line), zap.String("instrument", q.Instrument), zap.Error(err))
				continue
			}
			return written, err
		}
		written++

		if timer != nil {
			timer.Reset(opts.Interval)
			select {
			case <-ctx.Done():
				return written, ctx.Err()
			case <-timer.C:
			}
		}
	}
}

func parseRow(row []string) (pricing.Quote, error) {
	// Minimum tick columns: time,instrument,bid,ask
	if len(row) < 4 {
		return pricing.Quote{}, fmt.Errorf("bad row (need at least 4 cols time,instrument,bid,ask): %v", row)
	}

	if ts := strings.TrimSpace(row[0]); ts != "" {
		if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
			return pricing.Quote{}, fmt.Errorf("bad time %q: %w", row[0], err)
		}
	}
	inst := strings.TrimSpace(row[1])
	if inst == "" {
		return pricing.Quote{}, fmt.Errorf("instrument is empty")
	}

	bid, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
	if err != nil {
		return pricing.Quote{}, fmt.Errorf("bad bid %q: %w", row[2], err)
	}
	ask, err := strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
	if err != nil {
		return pricing.Quote{}, fmt.Errorf("bad ask %q: %w", row[3], err)
	}

	return pricing.Quote{Instrument: inst, Bid: bid, Ask: ask}, nil
}
