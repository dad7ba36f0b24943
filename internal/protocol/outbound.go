package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Tyrowin/navychat/internal/chat"
)

// Outbound event types.
const (
	TypeLoginSuccess   Type = "login_success"
	TypeLoginFailed    Type = "login_failed"
	TypeUserJoined     Type = "user_joined"
	TypeUserLeft       Type = "user_left"
	TypeContactAdded   Type = "contact_added"
	TypeContactRemoved Type = "contact_removed"
	TypeContactError   Type = "contact_error"
	TypeChatHistory    Type = "chat_history"
	TypeNewMessage     Type = "new_message"
	TypeMessageSent    Type = "message_sent"
	TypeUserContacts   Type = "user_contacts"
	TypeOnlineUsers    Type = "online_users"
	TypeUserStatus     Type = "user_status"
	TypeError          Type = "error"
)

// Outbound is an event the gateway sends to clients.
type Outbound interface {
	EventType() Type
}

// Message is the wire form of a chat message. To is the recipient of a
// private message and null for the room.
type Message struct {
	ID        uint64  `json:"id"`
	ChatID    string  `json:"chat_id"`
	Sender    string  `json:"sender"`
	Text      string  `json:"text"`
	Time      string  `json:"time"`
	Timestamp string  `json:"timestamp"`
	To        *string `json:"to"`
}

// FromChat converts a stored message to its wire form.
func FromChat(m chat.Message) Message {
	out := Message{
		ID:        m.ID,
		ChatID:    m.Key.String(),
		Sender:    m.Sender,
		Text:      m.Text,
		Time:      m.Time,
		Timestamp: m.SentAt.UTC().Format(time.RFC3339),
	}
	if !m.Key.IsRoom() {
		to := m.Key.Peer(m.Sender)
		out.To = &to
	}
	return out
}

// FromChatLog converts a log replay; the result is never nil.
func FromChatLog(msgs []chat.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, FromChat(m))
	}
	return out
}

// LoginSuccess confirms registration and replays the room.
type LoginSuccess struct {
	Username    string    `json:"username"`
	Session     string    `json:"session"`
	OnlineCount int       `json:"online_count"`
	Messages    []Message `json:"messages"`
}

// LoginFailed rejects a set_username.
type LoginFailed struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// UserJoined announces a new identity.
type UserJoined struct {
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

// UserLeft announces a destroyed identity.
type UserLeft struct {
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

// ContactAdded confirms add_contact.
type ContactAdded struct {
	Username string `json:"username"`
}

// ContactRemoved confirms remove_contact.
type ContactRemoved struct {
	Username string `json:"username"`
}

// ContactError rejects add_contact or remove_contact.
type ContactError struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// ChatHistory answers load_chat. With is null for the room.
type ChatHistory struct {
	With     *string   `json:"with"`
	Messages []Message `json:"messages"`
}

// NewMessage pushes a message to a recipient connection.
type NewMessage struct {
	Message
}

// MessageSent answers send_message on the originating connection.
type MessageSent struct {
	Message
}

// UserContacts answers get_contacts.
type UserContacts struct {
	Contacts []string `json:"contacts"`
}

// OnlineUsers answers get_online_users.
type OnlineUsers struct {
	Users []string `json:"users"`
	Count int      `json:"count"`
}

// UserStatus answers get_user_status.
type UserStatus struct {
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

// Error reports a rejected request to the originating connection.
type Error struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func (LoginSuccess) EventType() Type   { return TypeLoginSuccess }
func (LoginFailed) EventType() Type    { return TypeLoginFailed }
func (UserJoined) EventType() Type     { return TypeUserJoined }
func (UserLeft) EventType() Type       { return TypeUserLeft }
func (ContactAdded) EventType() Type   { return TypeContactAdded }
func (ContactRemoved) EventType() Type { return TypeContactRemoved }
func (ContactError) EventType() Type   { return TypeContactError }
func (ChatHistory) EventType() Type    { return TypeChatHistory }
func (NewMessage) EventType() Type     { return TypeNewMessage }
func (MessageSent) EventType() Type    { return TypeMessageSent }
func (UserContacts) EventType() Type   { return TypeUserContacts }
func (OnlineUsers) EventType() Type    { return TypeOnlineUsers }
func (UserStatus) EventType() Type     { return TypeUserStatus }
func (Error) EventType() Type          { return TypeError }

// Encode renders ev as a single frame with its type as the first field.
func Encode(ev Outbound) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.EventType(), err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("encode %s: payload is not an object", ev.EventType())
	}

	typ, err := json.Marshal(ev.EventType())
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.EventType(), err)
	}

	frame := make([]byte, 0, len(body)+len(typ)+10)
	frame = append(frame, `{"type":`...)
	frame = append(frame, typ...)
	if len(body) > 2 {
		frame = append(frame, ',')
	}
	frame = append(frame, body[1:]...)
	return frame, nil
}
