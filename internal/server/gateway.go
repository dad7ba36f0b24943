package server

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/navychat/internal/chat"
	"github.com/Tyrowin/navychat/internal/protocol"
)

const codeBadRequest = "bad_request"
const codeRateLimited = "rate_limited"

// Gateway translates inbound frames into core calls and pushes the results
// back out through the hub. Each client's frames are handled on that
// client's read goroutine, so calls for one connection never overlap.
type Gateway struct {
	core   *chat.Core
	hub    *Hub
	logger *zap.Logger
}

// NewGateway wires core and hub together: routed messages are published
// through the hub, and clients leaving the hub are released from the core.
func NewGateway(core *chat.Core, hub *Hub, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{
		core:   core,
		hub:    hub,
		logger: logger.Named("gateway"),
	}
	core.SetPublisher(g.publish)
	core.SetPresencePublisher(g.announce)
	hub.onUnregister = g.disconnect
	return g
}

// HandleFrame decodes one raw frame and dispatches it.
func (g *Gateway) HandleFrame(c *Client, raw []byte) {
	ev, err := protocol.DecodeInbound(raw)
	if err != nil {
		c.logger.Info("Rejected frame", zap.Error(err))
		g.reply(c, protocol.Error{Code: codeBadRequest, Reason: err.Error()})
		return
	}
	g.Handle(c, ev)
}

// Handle executes one decoded inbound event on behalf of c.
func (g *Gateway) Handle(c *Client, ev protocol.Inbound) {
	switch ev := ev.(type) {
	case protocol.SetUsername:
		g.setUsername(c, ev)
	case protocol.AddContact:
		g.addContact(c, ev)
	case protocol.RemoveContact:
		g.removeContact(c, ev)
	case protocol.LoadChat:
		g.loadChat(c, ev)
	case protocol.SendMessage:
		g.sendMessage(c, ev)
	case protocol.GetContacts:
		g.getContacts(c)
	case protocol.GetOnlineUsers:
		g.getOnlineUsers(c)
	case protocol.GetUserStatus:
		g.getUserStatus(c, ev)
	default:
		g.reply(c, protocol.Error{Code: codeBadRequest, Reason: "unsupported event"})
	}
}

func (g *Gateway) setUsername(c *Client, ev protocol.SetUsername) {
	// login_success is queued inside the room's critical section so that room
	// pushes for messages after the replay arrive behind it.
	login, err := g.core.RegisterFunc(c.id, ev.Username, ev.Session, func(login chat.Login) {
		c.setName(login.Identity.Name)
		g.reply(c, protocol.LoginSuccess{
			Username:    login.Identity.Name,
			Session:     login.Identity.Session,
			OnlineCount: login.OnlineCount,
			Messages:    protocol.FromChatLog(login.Messages),
		})
	})
	if err != nil {
		c.logger.Info("Login failed", zap.String("user", ev.Username), zap.Error(err))
		g.reply(c, protocol.LoginFailed{Code: chat.Code(err), Reason: err.Error()})
		return
	}

	c.logger.Info("Login succeeded",
		zap.String("user", login.Identity.Name),
		zap.Bool("joined", login.Joined),
		zap.Int("online", login.OnlineCount))
}

func (g *Gateway) addContact(c *Client, ev protocol.AddContact) {
	name, err := g.core.AddContact(c.id, ev.Username)
	if err != nil {
		g.contactFailure(c, err)
		return
	}
	g.reply(c, protocol.ContactAdded{Username: name})
}

func (g *Gateway) removeContact(c *Client, ev protocol.RemoveContact) {
	name, err := g.core.RemoveContact(c.id, ev.Username)
	if err != nil {
		g.contactFailure(c, err)
		return
	}
	g.reply(c, protocol.ContactRemoved{Username: name})
}

func (g *Gateway) loadChat(c *Client, ev protocol.LoadChat) {
	err := g.core.OpenThreadFunc(c.id, ev.With, func(key chat.Key, msgs []chat.Message) {
		history := protocol.ChatHistory{Messages: protocol.FromChatLog(msgs)}
		if !key.IsRoom() {
			peer := key.Peer(c.Name())
			history.With = &peer
		}
		g.reply(c, history)
	})
	if err != nil {
		g.fail(c, err)
	}
}

// sendMessage routes the message; the publisher delivers both the pushes and
// the origin's message_sent acknowledgement.
func (g *Gateway) sendMessage(c *Client, ev protocol.SendMessage) {
	if _, err := g.core.PostMessage(c.id, ev.Text, ev.To); err != nil {
		g.fail(c, err)
	}
}

func (g *Gateway) getContacts(c *Client) {
	contacts, err := g.core.Contacts(c.id)
	if err != nil {
		g.fail(c, err)
		return
	}
	g.reply(c, protocol.UserContacts{Contacts: contacts})
}

func (g *Gateway) getOnlineUsers(c *Client) {
	users := g.core.OnlineUsers()
	g.reply(c, protocol.OnlineUsers{Users: users, Count: len(users)})
}

func (g *Gateway) getUserStatus(c *Client, ev protocol.GetUserStatus) {
	name, online := g.core.Status(ev.Username)
	g.reply(c, protocol.UserStatus{Username: name, Online: online})
}

func (g *Gateway) rateLimited(c *Client) {
	g.reply(c, protocol.Error{Code: codeRateLimited, Reason: "too many messages"})
}

// publish runs inside the router's per-conversation critical section, so it
// only encodes and enqueues.
func (g *Gateway) publish(out chat.Outcome) {
	msg := protocol.FromChat(out.Message)
	if payload, ok := g.encode(protocol.NewMessage{Message: msg}); ok {
		g.hub.Deliver(out.Recipients, payload)
	}
	if out.Origin == "" {
		return
	}
	if payload, ok := g.encode(protocol.MessageSent{Message: msg}); ok {
		g.hub.Deliver([]chat.ConnID{out.Origin}, payload)
	}
}

// disconnect releases a departed client from the core. The core announces
// the departure through announce when it was the identity's last connection.
func (g *Gateway) disconnect(c *Client) {
	dep := g.core.Unregister(c.id)
	if dep.Left {
		g.logger.Info("User left", zap.String("user", dep.Name))
	}
}

// announce runs under the core's presence lock, so it only encodes and
// enqueues.
func (g *Gateway) announce(p chat.Presence) {
	at := presenceTime(p.At)
	if p.Online {
		g.broadcast(p.Targets, protocol.UserJoined{Username: p.Name, Timestamp: at})
		return
	}
	g.broadcast(p.Targets, protocol.UserLeft{Username: p.Name, Timestamp: at})
}

func (g *Gateway) contactFailure(c *Client, err error) {
	if errors.Is(err, chat.ErrUnknownSender) {
		g.fail(c, err)
		return
	}
	g.reply(c, protocol.ContactError{Code: chat.Code(err), Reason: err.Error()})
}

func (g *Gateway) fail(c *Client, err error) {
	g.reply(c, protocol.Error{Code: chat.Code(err), Reason: err.Error()})
}

func (g *Gateway) reply(c *Client, ev protocol.Outbound) {
	if payload, ok := g.encode(ev); ok {
		g.hub.Send(c, payload)
	}
}

func (g *Gateway) broadcast(targets []chat.ConnID, ev protocol.Outbound) {
	if payload, ok := g.encode(ev); ok {
		g.hub.Deliver(targets, payload)
	}
}

func (g *Gateway) encode(ev protocol.Outbound) ([]byte, bool) {
	payload, err := protocol.Encode(ev)
	if err != nil {
		g.logger.Error("Failed to encode event", zap.String("type", string(ev.EventType())), zap.Error(err))
		return nil, false
	}
	return payload, true
}

func presenceTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
