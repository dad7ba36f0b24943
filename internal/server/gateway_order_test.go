package server

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// drain returns every frame already queued for c without waiting.
func drain(t *testing.T, c *Client) []frame {
	t.Helper()
	var frames []frame
	for {
		select {
		case raw := <-c.send:
			var f frame
			require.NoError(t, json.Unmarshal(raw, &f))
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func messageIDs(t *testing.T, f frame) []uint64 {
	t.Helper()
	list, ok := f["messages"].([]any)
	require.True(t, ok, "frame: %v", f)
	ids := make([]uint64, 0, len(list))
	for _, m := range list {
		ids = append(ids, uint64(m.(map[string]any)["id"].(float64)))
	}
	return ids
}

func requireSequence(t *testing.T, ids []uint64, from, to uint64, msgAndArgs ...any) {
	t.Helper()
	require.Len(t, ids, int(to-from+1), msgAndArgs...)
	for i, id := range ids {
		require.Equal(t, from+uint64(i), id, msgAndArgs...)
	}
}

func TestGateway_LoginReplayPrecedesRoomPushes(t *testing.T) {
	srv := testServer(t, func(cfg *Config) { cfg.SendBufferSize = 8192 })
	alice := attach(t, srv)
	login(t, srv, alice, "alice")

	const posts = 25
	for round := 0; round < 20; round++ {
		guest := attach(t, srv)

		var g errgroup.Group
		g.Go(func() error {
			for i := 0; i < posts; i++ {
				send(t, srv, alice, fmt.Sprintf(`{"type":"send_message","text":"r%d m%d"}`, round, i))
			}
			return nil
		})
		send(t, srv, guest, fmt.Sprintf(`{"type":"set_username","username":"guest%d"}`, round))
		require.NoError(t, g.Wait())

		frames := drain(t, guest)
		require.NotEmpty(t, frames)
		require.Equal(t, "login_success", frames[0]["type"], "round %d", round)

		ids := messageIDs(t, frames[0])
		for _, f := range frames[1:] {
			require.Equal(t, "new_message", f["type"], "round %d", round)
			ids = append(ids, uint64(f["id"].(float64)))
		}
		requireSequence(t, ids, 1, uint64((round+1)*posts), "round %d", round)
		drain(t, alice)
	}
}

func TestGateway_ChatHistoryPrecedesLaterPushes(t *testing.T) {
	srv := testServer(t, func(cfg *Config) { cfg.SendBufferSize = 8192 })
	alice := attach(t, srv)
	bob := attach(t, srv)
	login(t, srv, alice, "alice")
	login(t, srv, bob, "bob")
	drain(t, alice)

	const posts = 25
	for round := 0; round < 20; round++ {
		var g errgroup.Group
		g.Go(func() error {
			for i := 0; i < posts; i++ {
				send(t, srv, bob, fmt.Sprintf(`{"type":"send_message","text":"r%d m%d","to":"alice"}`, round, i))
			}
			return nil
		})
		send(t, srv, alice, `{"type":"load_chat","with":"bob"}`)
		require.NoError(t, g.Wait())

		frames := drain(t, alice)
		at := -1
		for i, f := range frames {
			if f["type"] == "chat_history" {
				at = i
				break
			}
		}
		require.GreaterOrEqual(t, at, 0, "round %d: no chat_history", round)

		history := messageIDs(t, frames[at])
		last := uint64(0)
		if len(history) > 0 {
			last = history[len(history)-1]
		}
		for _, f := range frames[:at] {
			require.LessOrEqual(t, uint64(f["id"].(float64)), last, "round %d: push missing from history", round)
		}

		ids := history
		for _, f := range frames[at+1:] {
			require.Equal(t, "new_message", f["type"], "round %d", round)
			ids = append(ids, uint64(f["id"].(float64)))
		}
		requireSequence(t, ids, 1, uint64((round+1)*posts), "round %d", round)
		drain(t, bob)
	}
}
