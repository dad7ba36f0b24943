// Package testhelpers provides common utilities for the NavyChat integration
// tests.
//
// It starts fully wired servers on httptest listeners, dials WebSocket
// connections with an accepted Origin, and reads and writes protocol events
// so test files stay focused on behavior.
package testhelpers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Tyrowin/navychat/internal/server"
)

// TestOrigin is the Origin header every helper connection presents.
const TestOrigin = "http://localhost:8080"

// ReadTimeout bounds every blocking read in the helpers.
const ReadTimeout = 2 * time.Second

// Event is a decoded server frame.
type Event map[string]any

// Type returns the frame's event type.
func (e Event) Type() string {
	s, _ := e["type"].(string)
	return s
}

// String returns the string field key, or "" when absent.
func (e Event) String(key string) string {
	s, _ := e[key].(string)
	return s
}

// StartServer builds a server from the default configuration, applies
// mutate, and serves its routes on an httptest listener. Everything is torn
// down when the test ends.
func StartServer(t *testing.T, mutate func(*server.Config)) (*server.Server, *httptest.Server) {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{TestOrigin}
	if mutate != nil {
		mutate(cfg)
	}

	srv := server.NewServer(cfg, zaptest.NewLogger(t))
	srv.StartHub()
	ts := httptest.NewServer(srv.SetupRoutes())

	t.Cleanup(func() {
		ts.Close()
		if err := srv.Hub().Shutdown(5 * time.Second); err != nil {
			t.Errorf("hub shutdown: %v", err)
		}
	})
	return srv, ts
}

// WebSocketURL converts an httptest server URL to its /ws endpoint.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// ConnectWebSocket creates a WebSocket connection to the specified URL
// with the given Origin header. The response is returned so callers can
// inspect rejected handshakes.
func ConnectWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// Dial connects to ts with TestOrigin and closes the connection when the
// test ends.
func Dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := ConnectWebSocket(WebSocketURL(ts.URL), TestOrigin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendEvent writes one inbound event of the given type. Fields are merged
// into the frame alongside "type".
func SendEvent(t *testing.T, conn *websocket.Conn, eventType string, fields map[string]any) {
	t.Helper()
	frame := map[string]any{"type": eventType}
	for k, v := range fields {
		frame[k] = v
	}
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

// ReadEvent reads the next frame and decodes it.
func ReadEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(ReadTimeout)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev), "frame: %s", data)
	return ev
}

// ExpectEvent reads the next frame and requires it to have eventType.
func ExpectEvent(t *testing.T, conn *websocket.Conn, eventType string) Event {
	t.Helper()
	ev := ReadEvent(t, conn)
	require.Equal(t, eventType, ev.Type(), "event: %v", ev)
	return ev
}

// ExpectSilence requires that nothing arrives on conn for d. The connection
// cannot be read from afterwards, so call it last.
func ExpectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame: %s", data)
}

// Login claims name on conn and returns the login_success event. An empty
// session starts a new identity.
func Login(t *testing.T, conn *websocket.Conn, name, session string) Event {
	t.Helper()
	fields := map[string]any{"username": name}
	if session != "" {
		fields["session"] = session
	}
	SendEvent(t, conn, "set_username", fields)
	return ExpectEvent(t, conn, "login_success")
}

// ExpectClosed requires that the server closes conn within ReadTimeout.
// Frames queued before the close are discarded.
func ExpectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(ReadTimeout)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			t.Fatalf("connection was not closed: %v", err)
		}
		return
	}
}
