// Package app assembles the hub from a Config and runs its goroutines
// under one errgroup.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/pricehub/config"
	"github.com/rustyeddy/pricehub/formula"
	"github.com/rustyeddy/pricehub/hub"
	"github.com/rustyeddy/pricehub/journal"
	"github.com/rustyeddy/pricehub/metrics"
	"github.com/rustyeddy/pricehub/pkg/logging"
	"github.com/rustyeddy/pricehub/pricing"
	"github.com/rustyeddy/pricehub/replay"
	"github.com/rustyeddy/pricehub/server"
)

const shutdownTimeout = 5 * time.Second

// App owns every long-lived component of a running hub.
type App struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Metrics

	book    *formula.Book
	reader  pricing.Reader
	shm     *pricing.SharedTable
	memory  *pricing.Table
	journal journal.Journal

	server      *server.Server
	broadcaster *hub.Broadcaster

	closeOnce sync.Once
	closeErr  error
}

// New builds the hub and binds the listener. A bind failure is returned so
// the caller can exit non-zero; an unreadable formula file is only logged.
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log = logging.OrNop(log)

	tick, _ := cfg.TickInterval()
	handshakeTimeout, _ := cfg.Handshake.TimeoutDuration()
	writeTimeout, _ := cfg.Subscriber.WriteTimeoutDuration()

	a := &App{
		cfg:     cfg,
		log:     log,
		metrics: metrics.New(),
		book:    formula.NewBook(),
		journal: journal.Nop{},
	}

	switch cfg.Table.Source {
	case config.SourceReplay:
		a.memory = pricing.NewTable(pricing.MaxSymbols)
		a.reader = a.memory
	default:
		a.shm = pricing.OpenShared(cfg.Table.SHMPath)
		a.reader = a.shm
	}

	if cfg.Journal.DBPath != "" {
		j, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.journal = j
	}

	a.server = server.New(server.Config{
		Addr: cfg.Listen,
		Handshake: server.Handshake{
			Banner:         cfg.Handshake.Banner,
			PasswordPrompt: cfg.Handshake.PasswordPrompt,
			Granted:        cfg.Handshake.Granted,
		},
		HandshakeTimeout: handshakeTimeout,
		WriteTimeout:     writeTimeout,
		Logger:           log.Named("server"),
		Metrics:          a.metrics,
		Journal:          a.journal,
	})
	if err := a.server.Listen(); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.broadcaster = hub.New(a.reader, a.book, a.server, hub.Options{
		Period:  tick,
		Logger:  log.Named("hub"),
		Metrics: a.metrics,
	})

	a.ReloadFormulas()
	return a, nil
}

// Addr is the subscriber listener address.
func (a *App) Addr() net.Addr { return a.server.Addr() }

func (a *App) Book() *formula.Book { return a.book }

func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// ReloadFormulas re-parses the formula file and merges it into the book.
// Problems are logged and counted, never fatal.
func (a *App) ReloadFormulas() {
	path := a.cfg.Formulas
	defs, warns, err := formula.LoadFile(path)
	if err != nil {
		a.log.Warn("formula file unreadable, no synthetics loaded", zap.String("file", path), zap.Error(err))
		a.metrics.AddFormulaWarnings(1)
		a.metrics.SetSynthetics(a.book.Len())
		return
	}
	warns = append(warns, a.book.Apply(defs)...)
	for _, w := range warns {
		a.log.Warn("formula", zap.String("file", path), zap.Int("line", w.Line), zap.String("problem", w.Msg))
	}
	a.metrics.AddFormulaWarnings(len(warns))
	a.metrics.SetSynthetics(a.book.Len())
	a.log.Info("formulas loaded",
		zap.String("file", path),
		zap.Int("definitions", len(defs)),
		zap.Int("synthetics", a.book.Len()),
		zap.Int("warnings", len(warns)))
}

// Run serves until ctx is cancelled or a component fails, then shuts
// everything down.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.server.Serve(gctx) })
	g.Go(func() error { return a.broadcaster.Run(gctx) })
	g.Go(func() error { return a.reloadOnHangup(gctx) })

	if a.memory != nil {
		g.Go(func() error { return a.feed(gctx) })
	}
	if a.cfg.Metrics.Addr != "" {
		a.serveMetrics(gctx, g)
	}

	err := g.Wait()
	if cerr := a.Close(); err == nil {
		err = cerr
	}
	return err
}

func (a *App) feed(ctx context.Context) error {
	every, _ := a.cfg.Table.ReplayEvery()
	n, err := replay.CSV(ctx, a.cfg.Table.ReplayFile, a.memory, replay.Options{
		Interval: every,
		Loop:     a.cfg.Table.Loop,
		Logger:   a.log.Named("replay"),
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("replay %s: %w", a.cfg.Table.ReplayFile, err)
	}
	a.log.Info("replay finished", zap.String("file", a.cfg.Table.ReplayFile), zap.Int("quotes", n))
	return nil
}

func (a *App) serveMetrics(ctx context.Context, g *errgroup.Group) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		a.log.Info("metrics listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
}

func (a *App) reloadOnHangup(ctx context.Context) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			a.log.Info("SIGHUP received, reloading formulas")
			a.ReloadFormulas()
		}
	}
}

// Close releases the listener, the journal and the price table. Run calls
// it on exit; it is also safe to call after a failed New.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.server != nil {
			errs = append(errs, a.server.Close())
		}
		if a.shm != nil {
			errs = append(errs, a.shm.Close())
		}
		if a.journal != nil {
			errs = append(errs, a.journal.Close())
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

// Run is the serve entry point: it stops on SIGINT or SIGTERM.
func Run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := New(cfg, log)
	if err != nil {
		return err
	}
	log = logging.OrNop(log)
	log.Info("pricehub serving",
		zap.String("addr", a.Addr().String()),
		zap.String("source", cfg.Table.Source))
	return a.Run(ctx)
}
