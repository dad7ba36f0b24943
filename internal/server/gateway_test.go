package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateway_LoginAnnouncesToOthersOnly(t *testing.T) {
	srv := testServer(t, nil)
	alice := attach(t, srv)
	bob := attach(t, srv)

	f := login(t, srv, alice, "alice")
	assert.Equal(t, "alice", f["username"])
	assert.NotEmpty(t, f["session"])
	assert.Equal(t, float64(1), f["online_count"])
	assert.Empty(t, f["messages"])

	login(t, srv, bob, "bob")
	joined := expectFrame(t, alice, "user_joined")
	assert.Equal(t, "bob", joined["username"])
	expectNoFrame(t, bob)
}

func TestGateway_LoginFailures(t *testing.T) {
	srv := testServer(t, nil)
	alice := attach(t, srv)
	imposter := attach(t, srv)

	login(t, srv, alice, "alice")

	send(t, srv, imposter, `{"type":"set_username","username":"alice"}`)
	f := expectFrame(t, imposter, "login_failed")
	assert.Equal(t, "name_taken", f["code"])

	send(t, srv, imposter, `{"type":"set_username","username":"   "}`)
	f = expectFrame(t, imposter, "login_failed")
	assert.Equal(t, "invalid_name", f["code"])

	expectNoFrame(t, alice)
}

func TestGateway_RoomMessage(t *testing.T) {
	srv := testServer(t, nil)
	a, b, c := attach(t, srv), attach(t, srv), attach(t, srv)
	login(t, srv, a, "A")
	login(t, srv, b, "B")
	expectFrame(t, a, "user_joined")
	login(t, srv, c, "C")
	expectFrame(t, a, "user_joined")
	expectFrame(t, b, "user_joined")

	send(t, srv, a, `{"type":"send_message","text":"hello","to":null}`)

	sent := expectFrame(t, a, "message_sent")
	assert.Equal(t, "hello", sent["text"])
	assert.Nil(t, sent["to"])
	for _, peer := range []*Client{b, c} {
		f := expectFrame(t, peer, "new_message")
		assert.Equal(t, "A", f["sender"])
		assert.Equal(t, "hello", f["text"])
		assert.Equal(t, "general", f["chat_id"])
		assert.NotEmpty(t, f["time"])
	}
	expectNoFrame(t, a)

	late := attach(t, srv)
	f := login(t, srv, late, "D")
	msgs, ok := f["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].(map[string]any)["text"])
}

func TestGateway_PrivateMessage(t *testing.T) {
	srv := testServer(t, nil)
	alice, bob, carol := attach(t, srv), attach(t, srv), attach(t, srv)
	login(t, srv, alice, "alice")
	login(t, srv, bob, "bob")
	expectFrame(t, alice, "user_joined")
	login(t, srv, carol, "carol")
	expectFrame(t, alice, "user_joined")
	expectFrame(t, bob, "user_joined")

	send(t, srv, alice, `{"type":"send_message","text":"hi","to":"bob"}`)

	f := expectFrame(t, bob, "new_message")
	assert.Equal(t, "alice", f["sender"])
	assert.Equal(t, "bob", f["to"])
	assert.Equal(t, "private:alice:bob", f["chat_id"])
	sent := expectFrame(t, alice, "message_sent")
	assert.Equal(t, f["id"], sent["id"])
	expectNoFrame(t, alice)
	expectNoFrame(t, carol)

	send(t, srv, bob, `{"type":"load_chat","with":"alice"}`)
	h := expectFrame(t, bob, "chat_history")
	assert.Equal(t, "alice", h["with"])
	require.Len(t, h["messages"], 1)

	send(t, srv, carol, `{"type":"load_chat","with":null}`)
	h = expectFrame(t, carol, "chat_history")
	assert.Nil(t, h["with"])
	assert.Empty(t, h["messages"])
}

func TestGateway_MultiTab(t *testing.T) {
	srv := testServer(t, nil)
	tab1, tab2, bob := attach(t, srv), attach(t, srv), attach(t, srv)

	f := login(t, srv, tab1, "alice")
	session, ok := f["session"].(string)
	require.True(t, ok)

	send(t, srv, tab2, `{"type":"set_username","username":"alice","session":"`+session+`"}`)
	expectFrame(t, tab2, "login_success")
	expectNoFrame(t, tab1)

	login(t, srv, bob, "bob")
	expectFrame(t, tab1, "user_joined")
	expectFrame(t, tab2, "user_joined")

	send(t, srv, tab1, `{"type":"send_message","text":"from tab one","to":"bob"}`)
	expectFrame(t, tab1, "message_sent")
	assert.Equal(t, "from tab one", expectFrame(t, tab2, "new_message")["text"])
	assert.Equal(t, "from tab one", expectFrame(t, bob, "new_message")["text"])

	// Closing one tab keeps the identity alive.
	srv.Hub().Leave(tab1)
	expectNoFrame(t, bob)
	assert.True(t, srv.Core().Registry().IsActive("alice"))

	srv.Hub().Leave(tab2)
	left := expectFrame(t, bob, "user_left")
	assert.Equal(t, "alice", left["username"])
}

func TestGateway_RenameAnnouncesBoth(t *testing.T) {
	srv := testServer(t, nil)
	alice, bob := attach(t, srv), attach(t, srv)
	login(t, srv, alice, "alice")
	login(t, srv, bob, "bob")
	expectFrame(t, alice, "user_joined")

	login(t, srv, alice, "alicia")
	assert.Equal(t, "alice", expectFrame(t, bob, "user_left")["username"])
	assert.Equal(t, "alicia", expectFrame(t, bob, "user_joined")["username"])
	assert.True(t, srv.Core().Registry().IsActive("bob"))
	assert.False(t, srv.Core().Registry().IsActive("alice"))
}

func TestGateway_Contacts(t *testing.T) {
	srv := testServer(t, nil)
	alice := attach(t, srv)
	login(t, srv, alice, "alice")

	send(t, srv, alice, `{"type":"add_contact","username":"bob"}`)
	assert.Equal(t, "bob", expectFrame(t, alice, "contact_added")["username"])

	send(t, srv, alice, `{"type":"add_contact","username":"bob"}`)
	expectFrame(t, alice, "contact_added")

	send(t, srv, alice, `{"type":"add_contact","username":"carol"}`)
	expectFrame(t, alice, "contact_added")

	send(t, srv, alice, `{"type":"add_contact","username":"alice"}`)
	assert.Equal(t, "self_contact", expectFrame(t, alice, "contact_error")["code"])

	send(t, srv, alice, `{"type":"get_contacts"}`)
	assert.Equal(t, []any{"bob", "carol"}, expectFrame(t, alice, "user_contacts")["contacts"])

	send(t, srv, alice, `{"type":"remove_contact","username":"bob"}`)
	expectFrame(t, alice, "contact_removed")

	send(t, srv, alice, `{"type":"remove_contact","username":"bob"}`)
	assert.Equal(t, "contact_not_found", expectFrame(t, alice, "contact_error")["code"])

	send(t, srv, alice, `{"type":"get_contacts"}`)
	assert.Equal(t, []any{"carol"}, expectFrame(t, alice, "user_contacts")["contacts"])
}

func TestGateway_UnregisteredConnection(t *testing.T) {
	srv := testServer(t, nil)
	anon := attach(t, srv)

	for _, raw := range []string{
		`{"type":"add_contact","username":"bob"}`,
		`{"type":"remove_contact","username":"bob"}`,
		`{"type":"load_chat","with":null}`,
		`{"type":"send_message","text":"hi","to":null}`,
		`{"type":"get_contacts"}`,
	} {
		send(t, srv, anon, raw)
		f := expectFrame(t, anon, "error")
		assert.Equal(t, "unknown_sender", f["code"], "frame %s", raw)
	}
	assert.Equal(t, 1, srv.Core().History().Conversations())
}

func TestGateway_Queries(t *testing.T) {
	srv := testServer(t, nil)
	alice, bob := attach(t, srv), attach(t, srv)
	login(t, srv, alice, "alice")
	login(t, srv, bob, "bob")
	expectFrame(t, alice, "user_joined")

	send(t, srv, alice, `{"type":"get_online_users"}`)
	f := expectFrame(t, alice, "online_users")
	assert.Equal(t, []any{"alice", "bob"}, f["users"])
	assert.Equal(t, float64(2), f["count"])

	send(t, srv, alice, `{"type":"get_user_status","username":"bob"}`)
	f = expectFrame(t, alice, "user_status")
	assert.Equal(t, true, f["online"])

	send(t, srv, alice, `{"type":"get_user_status","username":"zed"}`)
	f = expectFrame(t, alice, "user_status")
	assert.Equal(t, false, f["online"])
}

func TestGateway_BadFramesKeepConnection(t *testing.T) {
	srv := testServer(t, nil)
	alice := attach(t, srv)

	send(t, srv, alice, `not json`)
	assert.Equal(t, "bad_request", expectFrame(t, alice, "error")["code"])

	send(t, srv, alice, `{"type":"typing"}`)
	assert.Equal(t, "bad_request", expectFrame(t, alice, "error")["code"])

	login(t, srv, alice, "alice")

	send(t, srv, alice, `{"type":"send_message","text":"   ","to":null}`)
	assert.Equal(t, "empty_text", expectFrame(t, alice, "error")["code"])

	send(t, srv, alice, `{"type":"send_message","text":"me","to":"alice"}`)
	assert.Equal(t, "self_contact", expectFrame(t, alice, "error")["code"])
}

func TestGateway_DisconnectOfNeverRegisteredClient(t *testing.T) {
	srv := testServer(t, nil)
	alice, anon := attach(t, srv), attach(t, srv)
	login(t, srv, alice, "alice")

	srv.Hub().Leave(anon)
	srv.Hub().Leave(anon)
	expectNoFrame(t, alice)

	require.Eventually(t, func() bool { return srv.Hub().ClientCount() == 1 }, time.Second, time.Millisecond)
}
