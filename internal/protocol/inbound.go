package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type names an event on the wire.
type Type string

// Inbound event types.
const (
	TypeSetUsername    Type = "set_username"
	TypeAddContact     Type = "add_contact"
	TypeRemoveContact  Type = "remove_contact"
	TypeLoadChat       Type = "load_chat"
	TypeSendMessage    Type = "send_message"
	TypeGetContacts    Type = "get_contacts"
	TypeGetOnlineUsers Type = "get_online_users"
	TypeGetUserStatus  Type = "get_user_status"
)

var (
	// ErrMalformed reports a frame that is not a JSON object or whose fields
	// have the wrong shape.
	ErrMalformed = errors.New("malformed frame")
	// ErrUnknownEvent reports a frame with a missing or unsupported type.
	ErrUnknownEvent = errors.New("unknown event type")
)

// Inbound is implemented only by the event types in this file.
type Inbound interface {
	inbound()
}

// SetUsername asks to register the connection under Username. Session is
// the token from a previous login_success when joining as another tab.
type SetUsername struct {
	Username string `json:"username"`
	Session  string `json:"session,omitempty"`
}

// AddContact adds Username to the caller's contacts.
type AddContact struct {
	Username string `json:"username"`
}

// RemoveContact removes Username from the caller's contacts.
type RemoveContact struct {
	Username string `json:"username"`
}

// LoadChat requests the history of the thread with With, or of the room when
// With is empty or null.
type LoadChat struct {
	With string `json:"with"`
}

// SendMessage posts Text to To, or to the room when To is empty or null.
type SendMessage struct {
	Text string `json:"text"`
	To   string `json:"to"`
}

// GetContacts requests the caller's contact list.
type GetContacts struct{}

// GetOnlineUsers requests the list of active display names.
type GetOnlineUsers struct{}

// GetUserStatus asks whether Username is online.
type GetUserStatus struct {
	Username string `json:"username"`
}

func (SetUsername) inbound()    {}
func (AddContact) inbound()     {}
func (RemoveContact) inbound()  {}
func (LoadChat) inbound()       {}
func (SendMessage) inbound()    {}
func (GetContacts) inbound()    {}
func (GetOnlineUsers) inbound() {}
func (GetUserStatus) inbound()  {}

type envelope struct {
	Type Type `json:"type"`
}

// DecodeInbound parses one inbound frame.
func DecodeInbound(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var ev Inbound
	switch env.Type {
	case TypeSetUsername:
		ev = decodeAs[SetUsername](data)
	case TypeAddContact:
		ev = decodeAs[AddContact](data)
	case TypeRemoveContact:
		ev = decodeAs[RemoveContact](data)
	case TypeLoadChat:
		ev = decodeAs[LoadChat](data)
	case TypeSendMessage:
		ev = decodeAs[SendMessage](data)
	case TypeGetContacts:
		return GetContacts{}, nil
	case TypeGetOnlineUsers:
		return GetOnlineUsers{}, nil
	case TypeGetUserStatus:
		ev = decodeAs[GetUserStatus](data)
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrUnknownEvent)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
	if ev == nil {
		return nil, fmt.Errorf("%w: bad %s payload", ErrMalformed, env.Type)
	}
	return ev, nil
}

func decodeAs[T Inbound](data []byte) Inbound {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	return v
}
