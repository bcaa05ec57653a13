//go:build !unix

package pricing

import "errors"

const DefaultSegment = "market_prices"

// SharedTable is only available on unix platforms.
type SharedTable struct{ path string }

func OpenShared(path string) *SharedTable { return &SharedTable{path: path} }

func CreateShared(path string) (*SharedTable, error) {
	return nil, errors.ErrUnsupported
}

func (s *SharedTable) Path() string { return s.path }

func (s *SharedTable) Snapshot(dst Snapshot) (Snapshot, error) {
	return dst[:0], ErrUnavailable
}

func (s *SharedTable) Upsert(Quote) error { return ErrReadOnly }

func (s *SharedTable) Close() error { return nil }
