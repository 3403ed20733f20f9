// Package server owns the process lifecycle: start everything, wait for a
// signal, stop everything in reverse.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	applogger "CoinFlow/pkg/logger"
)

// HTTPServer is satisfied by pkg/http.Server.
type HTTPServer interface {
	Start() error
	Stop(ctx context.Context) error
}

// Component is a background worker such as a broker consumer.
type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Scheduler interface {
	Start(runNow bool)
	Stop(ctx context.Context) error
}

// Stream is a long-lived connection that reconnects on its own until ctx ends.
type Stream interface {
	Run(ctx context.Context) error
	Close() error
}

type namedComponent struct {
	name string
	c    Component
}

// App encapsulates the entire application lifecycle.
type App struct {
	logger          *applogger.Logger
	http            HTTPServer
	shutdownTimeout time.Duration

	components []namedComponent
	scheduler  Scheduler
	runOnStart bool
	streams    []Stream
	drains     []func()

	stopStreams context.CancelFunc
	streamsWG   sync.WaitGroup
	started     []namedComponent
}

type Option func(*App)

// WithComponent adds a worker. Components start first and stop last, in reverse order.
func WithComponent(name string, c Component) Option {
	return func(a *App) { a.components = append(a.components, namedComponent{name: name, c: c}) }
}

func WithScheduler(s Scheduler, runOnStart bool) Option {
	return func(a *App) {
		a.scheduler = s
		a.runOnStart = runOnStart
	}
}

func WithStreams(streams ...Stream) Option {
	return func(a *App) { a.streams = append(a.streams, streams...) }
}

// WithDrain registers a blocking wait run after producers of background work have stopped.
func WithDrain(fn func()) Option {
	return func(a *App) { a.drains = append(a.drains, fn) }
}

func New(l *applogger.Logger, httpServer HTTPServer, shutdownTimeout time.Duration, opts ...Option) *App {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	a := &App{logger: l, http: httpServer, shutdownTimeout: shutdownTimeout}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until SIGINT/SIGTERM or ctx is done.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.start(ctx); err != nil {
		a.shutdown()
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) start(ctx context.Context) error {
	for _, nc := range a.components {
		if err := nc.c.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", nc.name, err)
		}
		a.started = append(a.started, nc)
		a.logger.Info("component started", applogger.String("component", nc.name))
	}

	// Streams outlive the signal context so shutdown decides when they end.
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.stopStreams = cancel
	for _, s := range a.streams {
		a.streamsWG.Add(1)
		go func() {
			defer a.streamsWG.Done()
			if err := s.Run(streamCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("stream stopped", applogger.Error(err))
			}
		}()
	}

	if a.scheduler != nil {
		a.scheduler.Start(a.runOnStart)
	}

	if err := a.http.Start(); err != nil {
		return fmt.Errorf("start http: %w", err)
	}
	return nil
}

// shutdown stops in reverse start order. It keeps going past errors and returns them joined.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.http.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if a.stopStreams != nil {
		a.stopStreams()
	}
	for _, s := range a.streams {
		if err := s.Close(); err != nil {
			a.logger.Warn("stream close", applogger.Error(err))
		}
	}
	a.streamsWG.Wait()

	for _, drain := range a.drains {
		drain()
	}

	for i := len(a.started) - 1; i >= 0; i-- {
		nc := a.started[i]
		if err := nc.c.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", nc.name, err))
			continue
		}
		a.logger.Info("component stopped", applogger.String("component", nc.name))
	}
	a.started = nil

	if err := errors.Join(errs...); err != nil {
		a.logger.Error("shutdown finished with errors", applogger.Error(err))
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}
