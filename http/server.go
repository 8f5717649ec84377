// Package http provides the HTTP serving layer.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server wraps the standard library server with the service middleware
// chain and routes.
type Server struct {
	server *http.Server
	config ServerConfig
}

// ServerConfig holds the HTTP layer settings.
type ServerConfig struct {
	Port           int
	ReadTimeout    time.Duration
	MaxRequestSize int64
	AllowedOrigins []string
}

// DefaultServerConfig returns the settings used when the config file leaves
// the HTTP section out.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           5000,
		ReadTimeout:    30 * time.Second,
		MaxRequestSize: 1 << 20,
		AllowedOrigins: []string{"*"},
	}
}

// NewServer builds a server around the given handlers. The handlers carry
// their own dependencies; nothing is resolved from package state.
func NewServer(config ServerConfig, handlers *Handlers) *Server {
	mux := http.NewServeMux()
	handlers.Register(mux)

	chain := Chain(
		RecoveryMiddleware,
		LoggerMiddleware,
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		RequestSizeMiddleware(config.MaxRequestSize),
		GzipMiddleware,
	)

	handler := chain(mux)

	return &Server{
		server: &http.Server{
			Addr:        fmt.Sprintf(":%d", config.Port),
			Handler:     handler,
			ReadTimeout: config.ReadTimeout,
			// WriteTimeout stays zero: the response is written whenever
			// inference finishes, however long that takes.
			IdleTimeout: 120 * time.Second,
		},
		config: config,
	}
}

// Start runs the server until Stop is called.
func (s *Server) Start() error {
	zap.S().Infof("Starting HTTP server on %s", s.server.Addr)
	zap.S().Infof("Result stream: ws://localhost%s/ws/results", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop shuts the server down, waiting up to 5s for in-flight requests.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zap.S().Info("Shutting down HTTP server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}
