// Package server exposes HTTP handlers, including WebSocket upgrades and
// health checks.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// WebSocketHandler handles WebSocket upgrade requests and manages client connections.
// It validates that the request uses the GET method, upgrades the HTTP connection
// to WebSocket, creates a new Client instance, and hands it to the hub.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(conn, s.gateway, r.RemoteAddr, s.cfg)

	// Register the client with the hub; the hub will launch the pump goroutines.
	if !s.hub.Join(client) {
		s.logger.Info("Rejected connection during shutdown", zap.String("addr", r.RemoteAddr))
		_ = conn.Close()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "NavyChat server is running!")
}

// Stats is the body of the /healthz endpoint.
type Stats struct {
	Status        string `json:"status"`
	Connections   int    `json:"connections"`
	Online        int    `json:"online"`
	Conversations int    `json:"conversations"`
}

// StatsHandler reports live connection, identity and conversation counts.
func (s *Server) StatsHandler(w http.ResponseWriter, _ *http.Request) {
	stats := Stats{
		Status:        "ok",
		Connections:   s.hub.ClientCount(),
		Online:        s.core.Registry().Count(),
		Conversations: s.core.History().Conversations(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.logger.Warn("Error writing stats response", zap.Error(err))
	}
}
