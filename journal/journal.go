package journal

import (
	"time"
)

// Session is one subscriber connection from handshake to removal.
type Session struct {
	ID             string
	RemoteAddr     string
	ConnectedAt    time.Time
	DisconnectedAt time.Time // zero while connected
	Reason         string
	BytesSent      int64
	LinesSent      int64
}

// Open reports whether the session has not been closed yet.
func (s Session) Open() bool {
	return s.DisconnectedAt.IsZero()
}

// Duration is the connected time, measured up to now for open sessions.
func (s Session) Duration(now time.Time) time.Duration {
	if s.Open() {
		return now.Sub(s.ConnectedAt)
	}
	return s.DisconnectedAt.Sub(s.ConnectedAt)
}

// Journal records subscriber sessions. It holds connection audit data only;
// prices are never stored.
type Journal interface {
	RecordConnect(Session) error
	RecordDisconnect(Session) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordConnect(Session) error    { return nil }
func (Nop) RecordDisconnect(Session) error { return nil }
func (Nop) Close() error                   { return nil }
