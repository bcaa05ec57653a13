package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/pricehub/journal"
	"github.com/rustyeddy/pricehub/metrics"
	"github.com/rustyeddy/pricehub/pkg/id"
	"github.com/rustyeddy/pricehub/pkg/logging"
)

const (
	DefaultAddr             = ":2222"
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultWriteTimeout     = 50 * time.Millisecond

	maxAcceptBackoff = time.Second
)

var (
	// ErrClosed is returned by Listen and Serve once the server was closed.
	ErrClosed = errors.New("server: closed")
	// ErrAlreadyListening is returned when Listen is called twice.
	ErrAlreadyListening = errors.New("server: already listening")
)

type Config struct {
	Addr             string
	Handshake        Handshake
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Journal journal.Journal
	// NewID names subscribers. It must return IDs that sort in creation
	// order; the default is a monotonic ULID.
	NewID func() string
}

// Server accepts subscribers, walks them through the handshake and fans
// broadcast payloads out to every registered connection.
type Server struct {
	cfg Config
	log *zap.Logger
	reg *Registry

	mu      sync.Mutex
	ln      net.Listener
	pending map[net.Conn]struct{}
	closed  bool

	wg sync.WaitGroup
}

func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Handshake == (Handshake{}) {
		cfg.Handshake = DefaultHandshake()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.NewID == nil {
		cfg.NewID = id.New
	}
	log := logging.OrNop(cfg.Logger)
	return &Server{
		cfg:     cfg,
		log:     log,
		reg:     NewRegistry(cfg.Journal, cfg.Metrics, log),
		pending: make(map[net.Conn]struct{}),
	}
}

func (s *Server) Registry() *Registry { return s.reg }

// Listen binds the configured address. A bind failure is returned as is
// so the caller can exit with a diagnostic.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.ln != nil {
		return ErrAlreadyListening
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln
	s.log.Info("listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr is the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve runs the accept loop until ctx is cancelled or Close is called.
// It listens first if Listen has not been called. On return every
// subscriber has been disconnected and every connection goroutine has
// exited.
func (s *Server) Serve(ctx context.Context) error {
	if s.Addr() == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				break
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(2*backoff, maxAcceptBackoff)
			}
			s.log.Warn("accept failed", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-time.After(backoff):
				continue
			case <-ctx.Done():
			}
			break
		}
		backoff = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}

	_ = s.Close()
	s.wg.Wait()
	return nil
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops accepting, drops pending handshakes and disconnects every
// subscriber. It is safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	for c := range s.pending {
		_ = c.Close()
	}
	s.mu.Unlock()

	s.reg.CloseAll(ReasonShutdown)
	return err
}

func (s *Server) handle(conn net.Conn) {
	if !s.track(conn) {
		_ = conn.Close()
		return
	}
	remote := conn.RemoteAddr().String()

	br := bufio.NewReader(conn)
	if err := s.cfg.Handshake.Run(conn, br, s.cfg.HandshakeTimeout); err != nil {
		s.untrack(conn)
		_ = conn.Close()
		s.log.Debug("handshake failed", zap.String("remote", remote), zap.Error(err))
		return
	}

	sub := newSubscriber(s.cfg.NewID(), conn, time.Now())
	if !s.register(conn, sub) {
		_ = conn.Close()
		return
	}

	s.watch(sub, br)
}

// track records a connection that has not finished its handshake so
// Close can interrupt it.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.pending[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.pending, conn)
	s.mu.Unlock()
}

// register moves conn from pending into the registry. Holding mu across
// the Add keeps it ordered before any CloseAll issued by Close.
func (s *Server) register(conn net.Conn, sub *Subscriber) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, conn)
	if s.closed {
		return false
	}
	s.reg.Add(sub)
	return true
}

// watch blocks reading and discarding client input. EOF or a read error
// means the peer is gone.
func (s *Server) watch(sub *Subscriber, r io.Reader) {
	_, err := io.Copy(io.Discard, r)
	reason := ReasonPeerClosed
	if err != nil {
		reason = ReasonReadError
	}
	s.reg.Remove(sub.id, reason)
}

// Broadcast writes payload to every registered subscriber and returns
// how many received it in full. Writes run concurrently, so a tick costs
// at most one WriteTimeout however many subscribers stall. Subscribers
// whose write fails are removed; a write that would block only skips that
// subscriber. payload must not be modified until Broadcast returns.
func (s *Server) Broadcast(payload []byte) int {
	if len(payload) == 0 {
		return 0
	}
	var (
		wg        sync.WaitGroup
		delivered atomic.Int64
	)
	for _, sub := range s.reg.Snapshot() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.send(sub, payload) {
				delivered.Add(1)
			}
		}()
	}
	wg.Wait()
	return int(delivered.Load())
}

func (s *Server) send(sub *Subscriber, payload []byte) bool {
	err := sub.Send(payload, s.cfg.WriteTimeout)
	switch {
	case err == nil:
		s.cfg.Metrics.AddBytesSent(len(payload))
		return true
	case errors.Is(err, ErrWouldBlock):
		s.cfg.Metrics.IncBlockedWrite()
		s.log.Debug("subscriber not ready, skipping tick", zap.String("subscriber", sub.id))
	default:
		s.log.Warn("write failed", zap.String("subscriber", sub.id), zap.Error(err))
		s.reg.Remove(sub.id, ReasonWriteError)
	}
	return false
}
