// Package server provides application lifecycle management: ordered
// startup, signal handling, and reverse-order graceful shutdown.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Service is a long-running component. Start returns once the service is
// running (it must not block for the service's lifetime); Stop blocks
// until shutdown is complete or ctx expires.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// FuncService adapts a start/stop function pair into the Service interface.
type FuncService struct {
	StartFn func(ctx context.Context) error
	StopFn  func(ctx context.Context) error
}

func (f FuncService) Start(ctx context.Context) error {
	if f.StartFn == nil {
		return nil
	}
	return f.StartFn(ctx)
}

func (f FuncService) Stop(ctx context.Context) error {
	if f.StopFn == nil {
		return nil
	}
	return f.StopFn(ctx)
}

// ShutdownTimeout bounds how long each service gets to stop.
const ShutdownTimeout = 10 * time.Second

// Lifecycle starts services in registration order and stops them in
// reverse order on SIGINT/SIGTERM or context cancellation.
type Lifecycle struct {
	logger   *zap.Logger
	mu       sync.Mutex
	services []namedService
}

type namedService struct {
	name    string
	service Service
}

// NewLifecycle creates a Lifecycle manager.
//
// Precondition: logger must be non-nil.
func NewLifecycle(logger *zap.Logger) *Lifecycle {
	return &Lifecycle{logger: logger}
}

// Add registers a named service. Services start in the order added.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc})
}

// Run starts every service, then blocks until SIGINT/SIGTERM or ctx
// cancellation, then stops them in reverse order.
//
// Postcondition: every service that was started has been stopped.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()

	started := 0
	for _, ns := range l.services {
		l.logger.Info("starting service", zap.String("service", ns.name))
		if err := ns.service.Start(ctx); err != nil {
			l.logger.Error("service failed to start",
				zap.String("service", ns.name), zap.Error(err))
			l.shutdown(started)
			return fmt.Errorf("starting %s: %w", ns.name, err)
		}
		started++
	}
	l.logger.Info("all services started",
		zap.Int("count", started),
		zap.Duration("startup", time.Since(start)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		l.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
		l.logger.Info("context cancelled, shutting down")
	}

	l.shutdown(started)
	l.logger.Info("shutdown complete", zap.Duration("uptime", time.Since(start)))
	return nil
}

// shutdown stops the first n registered services in reverse order, each
// under its own timeout.
func (l *Lifecycle) shutdown(n int) {
	for i := n - 1; i >= 0; i-- {
		ns := l.services[i]
		stopStart := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		if err := ns.service.Stop(ctx); err != nil {
			l.logger.Warn("service stop failed",
				zap.String("service", ns.name), zap.Error(err))
		} else {
			l.logger.Info("service stopped",
				zap.String("service", ns.name),
				zap.Duration("elapsed", time.Since(stopStart)))
		}
		cancel()
	}
}
