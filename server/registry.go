package server

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/pricehub/journal"
	"github.com/rustyeddy/pricehub/metrics"
	"github.com/rustyeddy/pricehub/pkg/logging"
)

// Disconnect reasons, also used as metric labels.
const (
	ReasonPeerClosed = "peer_closed"
	ReasonReadError  = "read_error"
	ReasonWriteError = "write_error"
	ReasonShutdown   = "shutdown"
)

// Registry is the set of subscribers that receive broadcasts.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber

	journal journal.Journal
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewRegistry(j journal.Journal, m *metrics.Metrics, log *zap.Logger) *Registry {
	if j == nil {
		j = journal.Nop{}
	}
	return &Registry{
		subs:    make(map[string]*Subscriber),
		journal: j,
		metrics: m,
		log:     logging.OrNop(log),
		now:     time.Now,
	}
}

// Add registers s. The session is journaled before s becomes visible to
// Broadcast, so its disconnect can never be recorded first.
func (r *Registry) Add(s *Subscriber) {
	if err := r.journal.RecordConnect(s.session()); err != nil {
		r.log.Warn("journal connect failed", zap.String("subscriber", s.id), zap.Error(err))
	}

	r.mu.Lock()
	r.subs[s.id] = s
	n := len(r.subs)
	r.mu.Unlock()

	r.metrics.SetSubscribers(n)
	r.log.Info("subscriber registered",
		zap.String("subscriber", s.id),
		zap.String("remote", s.remote),
		zap.Int("subscribers", n))
}

// Remove closes and deregisters the subscriber. It reports false when the
// subscriber was already gone, so racing callers act only once.
func (r *Registry) Remove(id, reason string) bool {
	r.mu.Lock()
	s, ok := r.subs[id]
	if ok {
		delete(r.subs, id)
	}
	n := len(r.subs)
	r.mu.Unlock()

	if !ok {
		return false
	}
	_ = s.close()

	r.metrics.SetSubscribers(n)
	r.metrics.IncDisconnect(reason)
	r.log.Info("subscriber removed",
		zap.String("subscriber", id),
		zap.String("reason", reason),
		zap.Int64("bytes_sent", s.bytesSent.Load()),
		zap.Int("subscribers", n))

	sess := s.session()
	sess.DisconnectedAt = r.now()
	sess.Reason = reason
	if err := r.journal.RecordDisconnect(sess); err != nil {
		r.log.Warn("journal disconnect failed", zap.String("subscriber", id), zap.Error(err))
	}
	return true
}

// Snapshot returns the current subscribers in registration order.
func (r *Registry) Snapshot() []*Subscriber {
	r.mu.RLock()
	out := make([]*Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	r.mu.RUnlock()

	// IDs are ULIDs, so lexical order is creation order.
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[id]
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// CloseAll removes every subscriber with the given reason.
func (r *Registry) CloseAll(reason string) {
	for _, s := range r.Snapshot() {
		r.Remove(s.id, reason)
	}
}
