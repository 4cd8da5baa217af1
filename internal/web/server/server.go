// Package server runs the API over net/http with graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server is an http.Server bound to its own listener
type Server struct {
	httpServer *http.Server
	address    string
	listener   net.Listener
}

// Config holds server configuration. Zero timeouts fall back to the values
// from DefaultConfig.
type Config struct {
	// Address is the listen address, e.g. "0.0.0.0:8080"
	Address string
	Handler http.Handler

	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	MaxHeaderBytes    int

	// Logger receives net/http's own errors, such as TLS handshake and
	// malformed request failures
	Logger *zap.Logger
}

// DefaultConfig returns the configuration used when serving the API
func DefaultConfig(handler http.Handler) *Config {
	return &Config{
		Address:           ":8080",
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

// New creates a server. It does not bind the address.
func New(config *Config) (*Server, error) {
	if config == nil {
		return nil, errors.New("server config cannot be nil")
	}
	if config.Handler == nil {
		return nil, errors.New("handler cannot be nil")
	}

	def := DefaultConfig(config.Handler)
	orDefault := func(d, fallback time.Duration) time.Duration {
		if d > 0 {
			return d
		}
		return fallback
	}
	maxHeader := config.MaxHeaderBytes
	if maxHeader <= 0 {
		maxHeader = def.MaxHeaderBytes
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		httpServer: &http.Server{
			Handler:           config.Handler,
			ReadTimeout:       orDefault(config.ReadTimeout, def.ReadTimeout),
			WriteTimeout:      orDefault(config.WriteTimeout, def.WriteTimeout),
			IdleTimeout:       orDefault(config.IdleTimeout, def.IdleTimeout),
			ReadHeaderTimeout: orDefault(config.ReadHeaderTimeout, def.ReadHeaderTimeout),
			MaxHeaderBytes:    maxHeader,
			ErrorLog:          zap.NewStdLog(logger.Named("http")),
		},
		address: config.Address,
	}, nil
}

// Listen binds the listen address without serving, so startup fails fast on
// a taken port
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	s.listener = listener
	return nil
}

// Serve serves on the bound listener, binding first if needed.
// It returns http.ErrServerClosed after Shutdown.
func (s *Server) Serve() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	return s.httpServer.Serve(s.listener)
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the bound address, or the configured one before Listen
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}
