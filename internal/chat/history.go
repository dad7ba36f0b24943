package chat

import (
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeFormat renders message times the way the chat UI shows them.
const DefaultTimeFormat = "15:04"

// Message is one immutable entry of a conversation log.
type Message struct {
	ID     uint64
	Key    Key
	Sender string
	Text   string
	SentAt time.Time
	// Time is SentAt formatted for display, fixed at append time.
	Time string
}

type conversation struct {
	mu   sync.Mutex
	last uint64
	msgs []Message
}

// History holds one append-only log per conversation key. Appends to one key
// are serialized by that log's mutex; appends to different keys only share
// the brief map lookup.
type History struct {
	clock  Clock
	layout string
	limit  int
	logger *zap.Logger

	mu   sync.RWMutex
	logs map[Key]*conversation
}

// NewHistory creates a store with the room log already present. A positive
// limit bounds how many messages each log retains; sequence numbers keep
// counting across dropped messages.
func NewHistory(clock Clock, layout string, limit int, logger *zap.Logger) *History {
	if clock == nil {
		clock = SystemClock()
	}
	if layout == "" {
		layout = DefaultTimeFormat
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{
		clock:  clock,
		layout: layout,
		limit:  limit,
		logger: logger,
		logs:   map[Key]*conversation{Room: {}},
	}
}

func (h *History) log(key Key, create bool) *conversation {
	h.mu.RLock()
	c, ok := h.logs[key]
	h.mu.RUnlock()
	if ok || !create {
		return c
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok = h.logs[key]; !ok {
		c = &conversation{}
		h.logs[key] = c
		h.logger.Debug("conversation created", zap.Stringer("chat", key))
	}
	return c
}

// Append adds a message to key's log and returns it.
func (h *History) Append(key Key, sender, text string) (Message, error) {
	return h.AppendFunc(key, sender, text, nil)
}

// AppendFunc appends like Append and then calls fn with the new message
// before any later append to the same key can complete. fn must not block.
func (h *History) AppendFunc(key Key, sender, text string, fn func(Message)) (Message, error) {
	text = normalizeText(text, 0)
	if text == "" {
		return Message{}, ErrEmptyText
	}

	c := h.log(key, true)
	c.mu.Lock()
	defer c.mu.Unlock()

	now := h.clock.Now()
	c.last++
	msg := Message{
		ID:     c.last,
		Key:    key,
		Sender: sender,
		Text:   text,
		SentAt: now,
		Time:   now.Format(h.layout),
	}
	c.msgs = append(c.msgs, msg)
	if h.limit > 0 && len(c.msgs) > h.limit {
		c.msgs = slices.Delete(c.msgs, 0, len(c.msgs)-h.limit)
	}

	if fn != nil {
		fn(msg)
	}
	return msg, nil
}

// ReadAll returns the retained messages of key in sequence order. Unknown
// keys yield an empty slice.
func (h *History) ReadAll(key Key) []Message {
	var out []Message
	h.ReadFunc(key, func(msgs []Message) { out = msgs })
	return out
}

// ReadFunc calls fn with a copy of key's retained messages while the log is
// locked, so no append to key completes, and no publisher for key runs, until
// fn returns. fn must not block and must not append to key.
func (h *History) ReadFunc(key Key, fn func([]Message)) {
	h.mu.RLock()
	c, ok := h.logs[key]
	if !ok {
		// Creating the log takes the write lock, so holding the read lock
		// keeps a concurrent first append behind fn.
		defer h.mu.RUnlock()
		fn([]Message{})
		return
	}
	c.mu.Lock()
	h.mu.RUnlock()
	defer c.mu.Unlock()

	out := make([]Message, len(c.msgs))
	copy(out, c.msgs)
	fn(out)
}

// Conversations returns the number of logs, the room included.
func (h *History) Conversations() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.logs)
}
