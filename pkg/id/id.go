package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Source hands out ULIDs that sort by creation time. IDs created within the
// same millisecond stay strictly increasing.
type Source struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewSource returns a Source using now as its clock (time.Now when nil).
func NewSource(now func() time.Time) *Source {
	// Seed a PRNG from crypto/rand so ULID entropy is unpredictable.
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if now == nil {
		now = time.Now
	}
	return &Source{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
		now:     now,
	}
}

func (s *Source) New() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(s.now().UTC()), s.entropy)
	if err != nil {
		// Only possible if the clock goes backwards past the epoch or
		// the monotonic entropy overflows within one millisecond.
		panic(err)
	}
	return id.String()
}

var std = NewSource(nil)

// New returns a subscriber/session identifier from the process-wide source.
func New() string {
	return std.New()
}
