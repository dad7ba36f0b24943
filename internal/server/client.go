// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/navychat/internal/chat"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Client represents a WebSocket client connection in the chat system.
// It manages the connection state, outgoing event channel, gateway
// reference, and client address information.
type Client struct {
	id             chat.ConnID
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	gateway        *Gateway
	addr           string
	closed         bool
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
	logger         *zap.Logger

	mu   sync.RWMutex
	name string
}

// NewClient creates a new Client instance with the provided WebSocket
// connection, gateway, client address and configuration. Each client gets a
// fresh connection id and a buffered send channel.
func NewClient(conn *websocket.Conn, gateway *Gateway, addr string, cfg Config) *Client {
	cfg = sanitizeConfig(cfg)
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	limiter := newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval, nil)
	id := chat.ConnID(uuid.NewString())

	client := &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, cfg.SendBufferSize),
		gateway:        gateway,
		addr:           addr,
		closed:         false,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    limiter,
		rateLimit:      cfg.RateLimit,
		logger:         zap.NewNop(),
	}
	if gateway != nil {
		client.hub = gateway.hub
		client.logger = gateway.logger.With(zap.String("conn", string(id)), zap.String("addr", addr))
	}
	return client
}

// ID returns the connection id the core knows this client by.
func (c *Client) ID() chat.ConnID {
	return c.id
}

// Name returns the display name the client registered, if any.
func (c *Client) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

func (c *Client) setName(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("Error setting initial read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn("Error setting read deadline in pong handler", zap.Error(err))
		}
		return nil
	})
}

// handleReadError logs appropriate error messages based on the error type
// and returns true if the read loop should break
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	// Check for size limit violations
	if errors.Is(err, websocket.ErrReadLimit) {
		c.logger.Warn("Message exceeded maximum size", zap.Int64("limit", c.maxMessageSize))
		return true
	}

	// Check for expected close scenarios
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.logger.Info("Client disconnected", zap.Error(err))
		return true
	}

	// Check for network errors
	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.logger.Info("Client connection closed", zap.Error(err))
		return true
	}

	// Log unexpected errors with more context
	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		c.logger.Warn("Unexpected WebSocket error", zap.Error(err))
		return true
	}

	// Generic error case
	c.logger.Warn("WebSocket read error", zap.Error(err))
	return true
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the message should be processed
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.logger.Warn("Rate limit exceeded; discarding message",
			zap.Int("burst", c.rateLimit.Burst),
			zap.Duration("interval", c.rateLimit.RefillInterval))
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Leave(c)
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				c.logger.Warn("Error closing connection in readPump", zap.Error(err))
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if c.handleReadError(err) {
			break
		}

		if !c.checkRateLimit() {
			c.gateway.rateLimited(c)
			continue
		}

		c.gateway.HandleFrame(c, rawMessage)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		// Only log unexpected connection close errors
		if !isExpectedCloseError(err) {
			c.logger.Warn("Error closing connection in writePump", zap.Error(err))
		}
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("Error setting write deadline", zap.Error(err))
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("Error writing close message", zap.Error(err))
		}
	}
	return false
}

// writeTextMessage writes one event as one text frame. Events are never
// coalesced so every frame stays a single JSON object.
func (c *Client) writeTextMessage(message []byte) bool {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.logger.Warn("Error creating writer", zap.Error(err))
		return false
	}

	if _, err := w.Write(message); err != nil {
		c.logger.Warn("Error writing message", zap.Error(err))
		return false
	}

	if err := w.Close(); err != nil {
		c.logger.Warn("Error closing writer", zap.Error(err))
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("Error setting write deadline for ping", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Warn("Error writing ping message", zap.Error(err))
		return false
	}
	return true
}
