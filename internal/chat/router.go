package chat

import (
	"slices"

	"go.uber.org/zap"
)

// Outcome is the result of routing one message: the appended message, the
// connection it came from, and the connections that must receive it as a
// push.
type Outcome struct {
	Key        Key
	Message    Message
	Origin     ConnID
	Recipients []ConnID
}

// Publisher receives every routed outcome in per-key sequence order. It runs
// while the conversation is still locked and must only enqueue, never block.
type Publisher func(Outcome)

// Router validates inbound messages, appends them to the right log and
// resolves their delivery set.
//
// Room messages go to every live connection except the sender's own; the
// sender renders its room message from the PostMessage result instead of a
// push. Private messages go to both participants' connections except the
// originating one, so the sender's other tabs stay in sync.
type Router struct {
	registry *Registry
	history  *History
	maxText  int
	logger   *zap.Logger

	publish Publisher
}

// NewRouter creates a router over the given registry and history.
func NewRouter(registry *Registry, history *History, maxTextLength int, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry: registry,
		history:  history,
		maxText:  maxTextLength,
		logger:   logger,
	}
}

// SetPublisher installs the fan-out hook. It must be called before traffic
// starts.
func (r *Router) SetPublisher(p Publisher) {
	r.publish = p
}

// resolve maps an optional peer onto a conversation key. An empty peer means
// the shared room.
func (r *Router) resolve(self, peer string) (Key, error) {
	if peer == "" {
		return Room, nil
	}
	peer = r.registry.Normalize(peer)
	if peer == "" {
		return Room, nil
	}
	if !validName(peer) {
		return Key{}, ErrInvalidName
	}
	if peer == self {
		return Key{}, ErrSelfContact
	}
	return KeyFor(self, peer), nil
}

// PostMessage appends text from sender to the room (to == "") or to the
// private thread with to, and returns the message with its delivery set.
// origin is the connection the message arrived on; it is excluded from
// private delivery because it receives the result directly.
func (r *Router) PostMessage(origin ConnID, sender, text, to string) (Outcome, error) {
	if !r.registry.IsActive(sender) {
		return Outcome{}, ErrUnknownSender
	}
	text = normalizeText(text, r.maxText)
	if text == "" {
		return Outcome{}, ErrEmptyText
	}
	key, err := r.resolve(sender, to)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	_, err = r.history.AppendFunc(key, sender, text, func(m Message) {
		out = Outcome{
			Key:        key,
			Message:    m,
			Origin:     origin,
			Recipients: r.deliverySet(origin, sender, key),
		}
		if r.publish != nil {
			r.publish(out)
		}
	})
	if err != nil {
		return Outcome{}, err
	}

	r.logger.Debug("message routed",
		zap.String("user", sender),
		zap.Stringer("chat", key),
		zap.Uint64("id", out.Message.ID),
		zap.Int("recipients", len(out.Recipients)))
	return out, nil
}

func (r *Router) deliverySet(origin ConnID, sender string, key Key) []ConnID {
	if key.IsRoom() {
		return r.registry.ConnectionsExcept(sender)
	}

	a, b := key.Members()
	targets := append(r.registry.BroadcastTargets(a), r.registry.BroadcastTargets(b)...)
	targets = slices.DeleteFunc(targets, func(c ConnID) bool { return c == origin })
	slices.Sort(targets)
	return slices.Compact(targets)
}

// OpenThread returns the history of the room (with == "") or of the private
// thread between requester and with. It has no side effects.
func (r *Router) OpenThread(requester, with string) (Key, []Message, error) {
	var (
		key  Key
		msgs []Message
	)
	err := r.OpenThreadFunc(requester, with, func(k Key, m []Message) {
		key, msgs = k, m
	})
	return key, msgs, err
}

// OpenThreadFunc resolves the thread like OpenThread and hands its history to
// fn while the log is locked. Messages appended after the snapshot are
// published only after fn returns.
func (r *Router) OpenThreadFunc(requester, with string, fn func(Key, []Message)) error {
	if !r.registry.IsActive(requester) {
		return ErrUnknownSender
	}
	key, err := r.resolve(requester, with)
	if err != nil {
		return err
	}
	r.history.ReadFunc(key, func(msgs []Message) { fn(key, msgs) })
	return nil
}
