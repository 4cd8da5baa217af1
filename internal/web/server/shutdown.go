package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ShutdownHook is a function called during graceful shutdown
type ShutdownHook func(ctx context.Context) error

// ShutdownConfig holds graceful shutdown configuration
type ShutdownConfig struct {
	// Timeout is the maximum time to wait for shutdown
	Timeout time.Duration

	// Signals to listen for (default: SIGINT, SIGTERM)
	Signals []os.Signal

	// Logger for shutdown messages
	Logger *zap.Logger
}

// DefaultShutdownConfig returns default shutdown configuration
func DefaultShutdownConfig() *ShutdownConfig {
	return &ShutdownConfig{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		Logger:  zap.NewNop(),
	}
}

type namedHook struct {
	name string
	fn   ShutdownHook
}

// GracefulShutdown runs a server until a signal arrives, drains in-flight
// requests, then runs the registered hooks in registration order
type GracefulShutdown struct {
	server  *Server
	timeout time.Duration
	signals []os.Signal
	logger  *zap.Logger

	mu    sync.Mutex
	hooks []namedHook

	once sync.Once
	done chan struct{}
	err  error
}

// NewGracefulShutdown creates a new graceful shutdown handler
func NewGracefulShutdown(server *Server, config *ShutdownConfig) *GracefulShutdown {
	if config == nil {
		config = DefaultShutdownConfig()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if len(config.Signals) == 0 {
		config.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &GracefulShutdown{
		server:  server,
		timeout: config.Timeout,
		signals: config.Signals,
		logger:  config.Logger,
		done:    make(chan struct{}),
	}
}

// RegisterHook registers a named shutdown hook
func (gs *GracefulShutdown) RegisterHook(name string, hook ShutdownHook) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.hooks = append(gs.hooks, namedHook{name: name, fn: hook})
}

// Run serves until ctx is cancelled, a shutdown signal arrives or the server
// fails, then shuts down gracefully
func (gs *GracefulShutdown) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, gs.signals...)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		gs.logger.Info("server starting", zap.String("addr", gs.server.Addr()))
		if err := gs.server.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		gs.logger.Info("shutdown signal received")
		return gs.Shutdown()
	case err := <-errCh:
		gs.runHooks()
		return err
	}
}

// Shutdown drains the server and runs hooks. Safe to call more than once.
func (gs *GracefulShutdown) Shutdown() error {
	gs.once.Do(func() {
		gs.logger.Info("graceful shutdown", zap.Duration("timeout", gs.timeout))

		ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
		defer cancel()

		if gs.server != nil {
			if err := gs.server.Shutdown(ctx); err != nil {
				gs.err = fmt.Errorf("server shutdown error: %w", err)
				gs.logger.Error("server shutdown failed", zap.Error(err))
			}
		}
		gs.runHooksWith(ctx)

		gs.logger.Info("shutdown complete")
		close(gs.done)
	})

	<-gs.done
	return gs.err
}

// Wait blocks until shutdown is complete
func (gs *GracefulShutdown) Wait() error {
	<-gs.done
	return gs.err
}

func (gs *GracefulShutdown) runHooks() {
	ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
	defer cancel()
	gs.runHooksWith(ctx)
}

func (gs *GracefulShutdown) runHooksWith(ctx context.Context) {
	gs.mu.Lock()
	hooks := make([]namedHook, len(gs.hooks))
	copy(hooks, gs.hooks)
	gs.mu.Unlock()

	for _, h := range hooks {
		if err := h.fn(ctx); err != nil {
			// Keep going; later hooks still release their resources.
			gs.logger.Error("shutdown hook failed", zap.String("hook", h.name), zap.Error(err))
		}
	}
}
