// Package integration exercises the NavyChat server end to end over real
// HTTP and WebSocket connections.
package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/navychat/internal/server"
	"github.com/Tyrowin/navychat/test/testhelpers"
)

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = resp.Body.Close()
		client.CloseIdleConnections()
	})
	return resp
}

// TestHealthEndpoint verifies the plain text liveness endpoint.
func TestHealthEndpoint(t *testing.T) {
	_, ts := testhelpers.StartServer(t, nil)

	resp := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "NavyChat server is running!", string(body))
}

// TestStatsEndpoint verifies that /healthz reflects live connections,
// identities and conversations.
func TestStatsEndpoint(t *testing.T) {
	_, ts := testhelpers.StartServer(t, nil)

	alice := testhelpers.Dial(t, ts)
	bob := testhelpers.Dial(t, ts)
	testhelpers.Login(t, alice, "alice", "")
	testhelpers.Login(t, bob, "bob", "")
	testhelpers.ExpectEvent(t, alice, "user_joined")

	testhelpers.SendEvent(t, alice, "send_message", map[string]any{"text": "hi bob", "to": "bob"})
	testhelpers.ExpectEvent(t, alice, "message_sent")
	testhelpers.ExpectEvent(t, bob, "new_message")

	resp := get(t, ts.URL+"/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var stats server.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, server.Stats{Status: "ok", Connections: 2, Online: 2, Conversations: 2}, stats)
}

// TestWebSocketEndpointRejectsNonGet verifies the method guard on /ws.
func TestWebSocketEndpointRejectsNonGet(t *testing.T) {
	_, ts := testhelpers.StartServer(t, nil)

	client := &http.Client{Timeout: 5 * time.Second}
	defer client.CloseIdleConnections()

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		req, err := http.NewRequest(method, ts.URL+"/ws", strings.NewReader("{}"))
		require.NoError(t, err)
		resp, err := client.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, method)
	}
}
