package protocol

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/navychat/internal/chat"
)

var sentAt = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func roomMessage() chat.Message {
	return chat.Message{ID: 7, Key: chat.Room, Sender: "alice", Text: "hello all", SentAt: sentAt, Time: "09:30"}
}

func privateMessage() chat.Message {
	return chat.Message{ID: 1, Key: chat.KeyFor("bob", "alice"), Sender: "alice", Text: "hi", SentAt: sentAt, Time: "09:30"}
}

func TestDecodeInbound(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  Inbound
	}{
		{"set_username", `{"type":"set_username","username":"alice"}`, SetUsername{Username: "alice"}},
		{"set_username with session", `{"type":"set_username","username":"alice","session":"tok"}`, SetUsername{Username: "alice", Session: "tok"}},
		{"add_contact", `{"type":"add_contact","username":"bob"}`, AddContact{Username: "bob"}},
		{"remove_contact", `{"type":"remove_contact","username":"bob"}`, RemoveContact{Username: "bob"}},
		{"load_chat", `{"type":"load_chat","with":"bob"}`, LoadChat{With: "bob"}},
		{"load_chat room", `{"type":"load_chat","with":null}`, LoadChat{}},
		{"send_message private", `{"type":"send_message","text":"hi","to":"bob"}`, SendMessage{Text: "hi", To: "bob"}},
		{"send_message room", `{"type":"send_message","text":"hi","to":null}`, SendMessage{Text: "hi"}},
		{"get_contacts", `{"type":"get_contacts"}`, GetContacts{}},
		{"get_online_users", `{"type":"get_online_users"}`, GetOnlineUsers{}},
		{"get_user_status", `{"type":"get_user_status","username":"bob"}`, GetUserStatus{Username: "bob"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeInbound([]byte(tc.frame))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeInbound_Rejects(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  error
	}{
		{"not json", `hello`, ErrMalformed},
		{"array", `[1,2]`, ErrMalformed},
		{"missing type", `{"username":"alice"}`, ErrUnknownEvent},
		{"unknown type", `{"type":"typing"}`, ErrUnknownEvent},
		{"wrong field type", `{"type":"send_message","text":42}`, ErrMalformed},
		{"wrong type field", `{"type":7}`, ErrMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeInbound([]byte(tc.frame))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFromChat(t *testing.T) {
	room := FromChat(roomMessage())
	assert.Nil(t, room.To)
	assert.Equal(t, "general", room.ChatID)

	priv := FromChat(privateMessage())
	require.NotNil(t, priv.To)
	assert.Equal(t, "bob", *priv.To)
	assert.Equal(t, "private:alice:bob", priv.ChatID)
	assert.Equal(t, "2024-05-01T09:30:00Z", priv.Timestamp)

	assert.NotNil(t, FromChatLog(nil))
}

func TestEncode_Golden(t *testing.T) {
	bob := "bob"
	events := map[string]Outbound{
		"new_message_room":    NewMessage{FromChat(roomMessage())},
		"new_message_private": NewMessage{FromChat(privateMessage())},
		"message_sent":        MessageSent{FromChat(privateMessage())},
		"login_success": LoginSuccess{
			Username:    "carol",
			Session:     "tok-1",
			OnlineCount: 2,
			Messages:    FromChatLog([]chat.Message{roomMessage()}),
		},
		"login_failed":      LoginFailed{Code: "name_taken", Reason: "display name is already taken"},
		"user_joined":       UserJoined{Username: "carol", Timestamp: "2024-05-01T09:30:00Z"},
		"chat_history":      ChatHistory{With: &bob, Messages: FromChatLog(nil)},
		"online_users":      OnlineUsers{Users: []string{"alice", "bob"}, Count: 2},
		"user_contacts":     UserContacts{Contacts: []string{"bob"}},
		"contact_error":     ContactError{Code: "self_contact", Reason: "cannot add yourself as a contact"},
		"error":             Error{Code: "bad_request", Reason: "unknown event type"},
		"user_status":       UserStatus{Username: "bob", Online: true},
		"chat_history_room": ChatHistory{Messages: FromChatLog(nil)},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for name, ev := range events {
		t.Run(name, func(t *testing.T) {
			frame, err := Encode(ev)
			require.NoError(t, err)
			g.Assert(t, name, frame)
		})
	}
}

func TestEncode_EmptyPayload(t *testing.T) {
	frame, err := Encode(emptyEvent{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"empty"}`, string(frame))
	assert.Equal(t, `{"type":"empty"}`, string(frame))
}

type emptyEvent struct{}

func (emptyEvent) EventType() Type { return "empty" }
