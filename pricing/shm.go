//go:build unix

package pricing

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// DefaultSegment is where the market-data producer publishes its table.
const DefaultSegment = "/dev/shm/market_prices"

// Segment layout written by the producer:
//
//	symbols [MaxSymbols][SymbolSize]byte   NUL terminated
//	prices  [MaxSymbols]struct{bid, ask float64}
//	count   int32
//
// Fields are little endian with natural alignment, so the struct is padded to
// a multiple of eight bytes.
const (
	pricesOffset = MaxSymbols * SymbolSize
	countOffset  = pricesOffset + MaxSymbols*16
	SegmentSize  = countOffset + 8
)

// SharedTable maps the producer's shared-memory segment. A read-only table
// is mapped lazily on the first Snapshot that finds the segment, so the hub
// can start before the producer.
type SharedTable struct {
	path     string
	writable bool

	mu  sync.Mutex
	mem []byte
	buf []byte
}

// OpenShared returns a read-only view of the segment at path.
func OpenShared(path string) *SharedTable {
	if path == "" {
		path = DefaultSegment
	}
	return &SharedTable{path: path, buf: make([]byte, SegmentSize)}
}

// CreateShared creates (or truncates) the segment at path, maps it
// read-write and resets the instrument count, the way the producer does on
// startup.
func CreateShared(path string) (*SharedTable, error) {
	if path == "" {
		path = DefaultSegment
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("create segment: %w", err)
	}
	defer f.Close()

	if err := f.Truncate(SegmentSize); err != nil {
		return nil, fmt.Errorf("size segment: %w", err)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, SegmentSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("map segment: %w", err)
	}
	binary.LittleEndian.PutUint32(mem[countOffset:], 0)

	return &SharedTable{path: path, writable: true, mem: mem, buf: make([]byte, SegmentSize)}, nil
}

func (s *SharedTable) Path() string { return s.path }

func (s *SharedTable) Snapshot(dst Snapshot) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mem == nil {
		if err := s.mapLocked(); err != nil {
			return dst[:0], err
		}
	}
	copy(s.buf, s.mem)
	return decodeSegment(s.buf, dst[:0]), nil
}

func (s *SharedTable) mapLocked() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if info.Size() < SegmentSize {
		return fmt.Errorf("%w: segment %s is %d bytes, want %d", ErrUnavailable, s.path, info.Size(), SegmentSize)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, SegmentSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	s.mem = mem
	return nil
}

// Upsert writes a quote with the producer's semantics: update in place,
// append while slots remain, reject when full. The count is published last.
func (s *SharedTable) Upsert(q Quote) error {
	if len(q.Instrument) >= SymbolSize {
		return fmt.Errorf("%w: %q", ErrSymbolTooLong, q.Instrument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.writable || s.mem == nil {
		return ErrReadOnly
	}
	count := segmentCount(s.mem)
	for i := 0; i < count; i++ {
		if symbolAt(s.mem, i) == q.Instrument {
			putPrices(s.mem, i, q)
			return nil
		}
	}
	if count >= MaxSymbols {
		return fmt.Errorf("%w: cannot add %s", ErrTableFull, q.Instrument)
	}

	slot := s.mem[count*SymbolSize : (count+1)*SymbolSize]
	clear(slot)
	copy(slot, q.Instrument)
	putPrices(s.mem, count, q)
	binary.LittleEndian.PutUint32(s.mem[countOffset:], uint32(count+1))
	return nil
}

// Close unmaps the segment. A writable table also unlinks it, matching the
// producer's shutdown.
func (s *SharedTable) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mem == nil {
		return nil
	}
	err := unix.Munmap(s.mem)
	s.mem = nil
	if s.writable {
		if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
			err = rmErr
		}
	}
	return err
}

func decodeSegment(b []byte, dst Snapshot) Snapshot {
	count := segmentCount(b)
	for i := 0; i < count; i++ {
		off := pricesOffset + i*16
		dst = append(dst, Quote{
			Instrument: symbolAt(b, i),
			Bid:        math.Float64frombits(binary.LittleEndian.Uint64(b[off:])),
			Ask:        math.Float64frombits(binary.LittleEndian.Uint64(b[off+8:])),
		})
	}
	return dst
}

func segmentCount(b []byte) int {
	n := int(int32(binary.LittleEndian.Uint32(b[countOffset:])))
	if n < 0 {
		return 0
	}
	if n > MaxSymbols {
		return MaxSymbols
	}
	return n
}

func symbolAt(b []byte, i int) string {
	slot := b[i*SymbolSize : (i+1)*SymbolSize]
	if n := bytes.IndexByte(slot, 0); n >= 0 {
		slot = slot[:n]
	}
	return string(slot)
}

func putPrices(b []byte, i int, q Quote) {
	off := pricesOffset + i*16
	binary.LittleEndian.PutUint64(b[off:], math.Float64bits(q.Bid))
	binary.LittleEndian.PutUint64(b[off+8:], math.Float64bits(q.Ask))
}
