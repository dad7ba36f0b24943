package chat

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Options configures a Core. Zero values select the defaults.
type Options struct {
	Clock         Clock
	MaxNameLength int
	MaxTextLength int
	HistoryLimit  int
	TimeFormat    string
	Logger        *zap.Logger
}

// Core bundles the registry, contact graph, history store and router of one
// routing node. It is built once at startup and shared by the gateway.
type Core struct {
	clock    Clock
	logger   *zap.Logger
	registry *Registry
	contacts *Contacts
	history  *History
	router   *Router

	// presenceMu orders identity transitions with their presence events.
	presenceMu sync.Mutex
	presence   PresencePublisher
}

// Login is the result of a successful registration.
type Login struct {
	Registration
	Messages    []Message
	OnlineCount int
}

// Presence announces that an identity came online or went offline. Targets
// are the live connections that must hear about it.
type Presence struct {
	Name    string
	Online  bool
	At      time.Time
	Targets []ConnID
}

// PresencePublisher receives presence events in the order the registry
// changed. It runs under the core's presence lock and must only enqueue.
type PresencePublisher func(Presence)

// Departure is the result of releasing a connection.
type Departure struct {
	Name string
	Left bool
}

// New builds a Core from opts.
func New(opts Options) *Core {
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxNameLength <= 0 {
		opts.MaxNameLength = DefaultMaxNameLength
	}
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = DefaultMaxTextLength
	}
	if opts.HistoryLimit < 0 {
		opts.HistoryLimit = 0
	}
	if opts.TimeFormat == "" {
		opts.TimeFormat = DefaultTimeFormat
	}

	logger := opts.Logger.Named("chat")
	registry := NewRegistry(opts.Clock, opts.MaxNameLength, logger)
	history := NewHistory(opts.Clock, opts.TimeFormat, opts.HistoryLimit, logger)
	return &Core{
		clock:    opts.Clock,
		logger:   logger,
		registry: registry,
		contacts: NewContacts(opts.MaxNameLength),
		history:  history,
		router:   NewRouter(registry, history, opts.MaxTextLength, logger),
	}
}

// Registry exposes the identity registry.
func (c *Core) Registry() *Registry { return c.registry }

// History exposes the history store.
func (c *Core) History() *History { return c.history }

// SetPublisher installs the router's fan-out hook.
func (c *Core) SetPublisher(p Publisher) { c.router.SetPublisher(p) }

// SetPresencePublisher installs the presence hook. It must be called before
// traffic starts.
func (c *Core) SetPresencePublisher(p PresencePublisher) { c.presence = p }

// announce must be called with presenceMu held.
func (c *Core) announce(name string, online bool, targets []ConnID) {
	if c.presence == nil {
		return
	}
	c.presence(Presence{Name: name, Online: online, At: c.clock.Now(), Targets: targets})
}

func (c *Core) owner(conn ConnID) (string, error) {
	name, ok := c.registry.NameOf(conn)
	if !ok {
		return "", ErrUnknownSender
	}
	return name, nil
}

// Register binds conn to name and returns the room history for the initial
// load. session is the token of an existing identity when conn is another
// tab of it, and empty otherwise.
func (c *Core) Register(conn ConnID, name, session string) (Login, error) {
	return c.RegisterFunc(conn, name, session, nil)
}

// RegisterFunc registers like Register and calls fn with the login while the
// room log is locked. conn is bound inside that section, so every room
// message is either in the login history or pushed after fn returns.
// Presence events for the change are published before RegisterFunc returns.
func (c *Core) RegisterFunc(conn ConnID, name, session string, fn func(Login)) (Login, error) {
	var (
		login Login
		err   error
	)
	c.history.ReadFunc(Room, func(msgs []Message) {
		c.presenceMu.Lock()
		defer c.presenceMu.Unlock()

		var reg Registration
		reg, err = c.registry.Register(conn, name, session)
		if err != nil {
			return
		}
		login = Login{
			Registration: reg,
			Messages:     msgs,
			OnlineCount:  c.registry.Count(),
		}
		if fn != nil {
			fn(login)
		}

		joined := reg.Identity.Name
		if reg.PreviousLeft {
			c.announce(reg.Previous, false, c.registry.ConnectionsExcept(joined))
		}
		if reg.Joined {
			c.announce(joined, true, c.registry.ConnectionsExcept(joined))
		}
	})
	if err != nil {
		return Login{}, err
	}
	return login, nil
}

// Unregister releases conn and announces the identity's departure when conn
// was its last connection. It is safe to call for connections that never
// registered and to call more than once.
func (c *Core) Unregister(conn ConnID) Departure {
	c.presenceMu.Lock()
	defer c.presenceMu.Unlock()

	name, left := c.registry.Unregister(conn)
	if left {
		c.announce(name, false, c.registry.ConnectionsExcept(name))
	}
	return Departure{Name: name, Left: left}
}

// AddContact adds target to the address book of conn's identity.
func (c *Core) AddContact(conn ConnID, target string) (string, error) {
	owner, err := c.owner(conn)
	if err != nil {
		return "", err
	}
	name, _, err := c.contacts.Add(owner, target)
	return name, err
}

// RemoveContact removes target from the address book of conn's identity.
func (c *Core) RemoveContact(conn ConnID, target string) (string, error) {
	owner, err := c.owner(conn)
	if err != nil {
		return "", err
	}
	return c.contacts.Remove(owner, target)
}

// Contacts lists the contacts of conn's identity in insertion order.
func (c *Core) Contacts(conn ConnID) ([]string, error) {
	owner, err := c.owner(conn)
	if err != nil {
		return nil, err
	}
	return c.contacts.Of(owner), nil
}

// OpenThread returns the history of the room or of a private thread.
func (c *Core) OpenThread(conn ConnID, with string) (Key, []Message, error) {
	requester, err := c.owner(conn)
	if err != nil {
		return Key{}, nil, err
	}
	return c.router.OpenThread(requester, with)
}

// OpenThreadFunc hands the thread's history to fn while the log is locked,
// so pushes for messages after the snapshot follow whatever fn enqueues.
func (c *Core) OpenThreadFunc(conn ConnID, with string, fn func(Key, []Message)) error {
	requester, err := c.owner(conn)
	if err != nil {
		return err
	}
	return c.router.OpenThreadFunc(requester, with, fn)
}

// PostMessage routes text from conn's identity to the room or to a peer.
func (c *Core) PostMessage(conn ConnID, text, to string) (Outcome, error) {
	sender, err := c.owner(conn)
	if err != nil {
		return Outcome{}, err
	}
	return c.router.PostMessage(conn, sender, text, to)
}

// OnlineUsers lists active display names, sorted.
func (c *Core) OnlineUsers() []string { return c.registry.Online() }

// Status reports whether name is currently online.
func (c *Core) Status(name string) (string, bool) {
	name = c.registry.Normalize(name)
	return name, name != "" && c.registry.IsActive(name)
}
