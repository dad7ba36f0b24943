// Package server implements the Session Gateway of NavyChat: the HTTP and
// WebSocket server that terminates client connections and drives the
// routing core in internal/chat.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, event dispatch, routing, and HTTP handlers.
package server
