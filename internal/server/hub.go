// Package server coordinates client registration, targeted delivery, and
// connection cleanup for the NavyChat WebSocket gateway via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/navychat/internal/chat"
)

// Hub manages all WebSocket client connections and delivers encoded events
// to the connections the router selects. It maintains client
// registration/unregistration and ensures thread-safe operations through
// mutex protection.
type Hub struct {
	clients    map[chat.ConnID]*Client
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	logger     *zap.Logger

	// onUnregister runs on the hub goroutine after a client leaves.
	onUnregister func(*Client)
}

// NewHub creates and initializes a new Hub instance with all necessary channels
// and client map. The returned Hub is ready to manage WebSocket connections.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[chat.ConnID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		logger:     logger.Named("hub"),
	}
}

// Join hands a new client to the hub. It reports false when the hub is
// shutting down and the client was not accepted.
//
// A client with a websocket gets its read and write pumps started by the
// hub. A client without one (conn == nil) is registered for delivery only:
// its owner reads the send channel and feeds frames to the gateway itself,
// which is how in-process callers drive the gateway without a network.
func (h *Hub) Join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Leave hands a finished client to the hub for cleanup. During shutdown the
// cleanup runs on the calling goroutine instead.
func (h *Hub) Leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
		h.release(client)
	}
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Recovered from panic in safeSend", zap.Any("panic", r))
		}
	}()

	// Hold the lock during the entire send operation to prevent race conditions
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	// Check if client is still registered and not closed
	current, exists := h.clients[client.id]
	if !exists || current != client || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. This method should be called in a separate goroutine as
// it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn("Received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client.id] = client
			clientCount := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Client registered",
				zap.String("conn", string(client.id)),
				zap.String("addr", client.addr),
				zap.Int("clients", clientCount))

			// Connectionless clients are pumped by their owner; see Join.
			if client.conn == nil {
				continue
			}
			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			if client == nil {
				continue
			}
			h.release(client)
		}
	}
}

// release removes the client, closes its send channel and runs the
// unregister hook. Releasing a client twice is harmless.
func (h *Hub) release(client *Client) {
	h.mutex.Lock()
	current, ok := h.clients[client.id]
	if ok && current == client {
		delete(h.clients, client.id)
	}
	wasOpen := !client.closed
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Close the channel after releasing the lock
	if wasOpen {
		close(client.send)
		h.logger.Info("Client unregistered",
			zap.String("conn", string(client.id)),
			zap.String("addr", client.addr),
			zap.Int("clients", clientCount))
	}

	if h.onUnregister != nil {
		h.onUnregister(client)
	}
}

// Deliver enqueues payload on every target connection without blocking and
// returns how many accepted it. Connections whose send buffer is full are
// dropped and cleaned up like a disconnect.
func (h *Hub) Deliver(targets []chat.ConnID, payload []byte) int {
	if len(targets) == 0 {
		return 0
	}

	clients := h.lookup(targets)
	var clientsToRemove []*Client
	delivered := 0
	for _, client := range clients {
		if h.safeSend(client, payload) {
			delivered++
			continue
		}
		clientsToRemove = append(clientsToRemove, client)
	}
	h.removeFailedClients(clientsToRemove)
	return delivered
}

// Send enqueues payload on a single client.
func (h *Hub) Send(client *Client, payload []byte) bool {
	if h.safeSend(client, payload) {
		return true
	}
	h.removeFailedClients([]*Client{client})
	return false
}

// lookup resolves connection ids to registered clients.
func (h *Hub) lookup(targets []chat.ConnID) []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(targets))
	for _, id := range targets {
		if client, ok := h.clients[id]; ok {
			clients = append(clients, client)
		}
	}
	return clients
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// removeFailedClients removes clients that failed to receive messages and
// closes their channels. The read pump notices the closed connection and
// completes the cleanup through Leave.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if current, exists := h.clients[client.id]; exists && current == client && !client.closed {
			delete(h.clients, client.id)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			h.logger.Warn("Client removed due to full send buffer",
				zap.String("conn", string(client.id)),
				zap.String("addr", client.addr))
		}
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients gracefully closes all active client connections
func (h *Hub) shutdownClients() {
	h.logger.Info("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	// Close all client connections
	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					h.logger.Warn("Error closing client connection",
						zap.String("addr", client.addr), zap.Error(err))
				}
			}
		}
	}

	h.logger.Info("Closed client connections", zap.Int("count", len(clients)))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("Initiating hub shutdown...")

	// Signal shutdown
	h.cancel()

	// Wait for Run() to complete
	<-h.done

	// Wait for all client goroutines to finish with timeout
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

// has reports whether id is currently registered.
func (h *Hub) has(id chat.ConnID) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	_, ok := h.clients[id]
	return ok
}
