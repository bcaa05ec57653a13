package server

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rustyeddy/pricehub/journal"
)

// ErrWouldBlock means a write timed out before any byte was accepted. The
// subscriber stays registered and simply misses this tick.
var ErrWouldBlock = errors.New("server: write would block")

// Subscriber is one registered downstream connection.
type Subscriber struct {
	id          string
	conn        net.Conn
	remote      string
	connectedAt time.Time

	bytesSent atomic.Int64
	linesSent atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

func newSubscriber(id string, conn net.Conn, now time.Time) *Subscriber {
	return &Subscriber{
		id:          id,
		conn:        conn,
		remote:      conn.RemoteAddr().String(),
		connectedAt: now,
	}
}

func (s *Subscriber) ID() string { return s.id }

// Send writes payload with an optional deadline. A timeout with nothing
// written returns ErrWouldBlock; any other failure, including a partial
// write, is terminal for the subscriber.
func (s *Subscriber) Send(payload []byte, timeout time.Duration) error {
	if timeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	n, err := s.conn.Write(payload)
	s.bytesSent.Add(int64(n))
	if err == nil {
		s.linesSent.Add(int64(bytes.Count(payload, []byte{'\n'})))
		return nil
	}
	var ne net.Error
	if n == 0 && errors.As(err, &ne) && ne.Timeout() {
		return ErrWouldBlock
	}
	return err
}

// session snapshots the subscriber for the journal.
func (s *Subscriber) session() journal.Session {
	return journal.Session{
		ID:          s.id,
		RemoteAddr:  s.remote,
		ConnectedAt: s.connectedAt,
		BytesSent:   s.bytesSent.Load(),
		LinesSent:   s.linesSent.Load(),
	}
}

func (s *Subscriber) close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
