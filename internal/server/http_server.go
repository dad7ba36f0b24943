// Package server constructs and starts the NavyChat HTTP service with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/navychat/internal/chat"
)

// Server is the process-wide context: configuration, logger, routing core,
// hub and gateway. It is built once at startup and owns no package state.
type Server struct {
	cfg      Config
	logger   *zap.Logger
	core     *chat.Core
	hub      *Hub
	gateway  *Gateway
	origins  *originPolicy
	upgrader websocket.Upgrader
}

// NewServer builds the routing core and gateway for cfg. A nil cfg uses the
// defaults and a nil logger discards output.
func NewServer(cfg *Config, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sanitized := sanitizeConfig(*cfg)

	opts := sanitized.chatOptions()
	opts.Logger = logger
	core := chat.New(opts)
	hub := NewHub(logger)

	s := &Server{
		cfg:     sanitized,
		logger:  logger,
		core:    core,
		hub:     hub,
		gateway: NewGateway(core, hub, logger),
		origins: newOriginPolicy(sanitized.AllowedOrigins, logger),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
	return s
}

// Config returns the sanitized configuration in use.
func (s *Server) Config() Config { return s.cfg }

// Core returns the routing core.
func (s *Server) Core() *chat.Core { return s.core }

// Hub returns the hub for shutdown coordination.
func (s *Server) Hub() *Hub { return s.hub }

// Gateway returns the event dispatcher.
func (s *Server) Gateway() *Gateway { return s.gateway }

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartHub starts the hub in a separate goroutine.
// This should be called before starting the HTTP server.
func (s *Server) StartHub() {
	go s.hub.Run()
	s.logger.Info("Hub started and ready to manage WebSocket connections")
}

// StartServer starts the HTTP server and begins listening for connections.
// It returns nil when the server was closed by Shutdown.
func (s *Server) StartServer(server *http.Server) error {
	s.logger.Info("Server listening", zap.String("addr", server.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active connections to close or until the timeout is reached.
func (s *Server) ShutdownServer(server *http.Server, timeout time.Duration) error {
	s.logger.Info("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP server shutdown error", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server shutdown completed")
	return nil
}

// Shutdown stops the HTTP server first and then the hub, each bounded by
// the configured shutdown timeout.
func (s *Server) Shutdown(server *http.Server) error {
	httpErr := s.ShutdownServer(server, s.cfg.ShutdownTimeout)
	hubErr := s.hub.Shutdown(s.cfg.ShutdownTimeout)
	return errors.Join(httpErr, hubErr)
}
