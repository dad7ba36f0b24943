package chat

import (
	"hash/maphash"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConnID identifies one live gateway connection (one browser tab).
type ConnID string

// Identity is a snapshot of a registered display name and its live
// connections. Conns is sorted. Session is the token another connection
// presents to join this identity as an extra tab.
type Identity struct {
	Name     string
	Session  string
	Conns    []ConnID
	JoinedAt time.Time
}

// Registration reports what a Register call changed.
type Registration struct {
	Identity Identity
	// Joined is true when the identity was created by this call.
	Joined bool
	// Previous is the name the connection held before a rename.
	Previous string
	// PreviousLeft is true when the rename emptied the previous identity.
	PreviousLeft bool
}

const shardCount = 32

type identity struct {
	name     string
	session  string
	conns    map[ConnID]struct{}
	joinedAt time.Time
}

func (id *identity) snapshot() Identity {
	conns := make([]ConnID, 0, len(id.conns))
	for c := range id.conns {
		conns = append(conns, c)
	}
	slices.Sort(conns)
	return Identity{Name: id.name, Session: id.session, Conns: conns, JoinedAt: id.joinedAt}
}

type nameShard struct {
	mu  sync.Mutex
	ids map[string]*identity
}

type connShard struct {
	mu    sync.RWMutex
	names map[ConnID]string
}

// Registry maps display names to their live connections and enforces that at
// most one active identity holds a name.
//
// Names and connections are striped over independent shards so that
// registrations of unrelated names never contend on one lock. Calls made on
// behalf of a single connection must not overlap; the gateway guarantees this
// by handling each connection's frames on one goroutine.
type Registry struct {
	clock   Clock
	maxName int
	seed    maphash.Seed
	names   [shardCount]nameShard
	conns   [shardCount]connShard
	logger  *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(clock Clock, maxNameLength int, logger *zap.Logger) *Registry {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		clock:   clock,
		maxName: maxNameLength,
		seed:    maphash.MakeSeed(),
		logger:  logger,
	}
	for i := range r.names {
		r.names[i].ids = make(map[string]*identity)
		r.conns[i].names = make(map[ConnID]string)
	}
	return r
}

func (r *Registry) nameShard(name string) *nameShard {
	return &r.names[maphash.String(r.seed, name)%shardCount]
}

func (r *Registry) connShard(conn ConnID) *connShard {
	return &r.conns[maphash.String(r.seed, string(conn))%shardCount]
}

// Normalize applies the registry's name rules to raw.
func (r *Registry) Normalize(raw string) string {
	return normalizeName(raw, r.maxName)
}

// Register binds conn to the identity named candidate, creating the identity
// if nobody holds the name. It fails with ErrInvalidName when the trimmed
// name is empty or contains ':', and with ErrNameTaken when another active
// identity holds it, unless session matches that identity's token, in which
// case conn joins it as another tab.
//
// A connection that already holds a different name is renamed: the new name
// is bound first, then the old binding is released.
func (r *Registry) Register(conn ConnID, candidate, session string) (Registration, error) {
	name := r.Normalize(candidate)
	if !validName(name) {
		return Registration{}, ErrInvalidName
	}

	previous, hadPrevious := r.NameOf(conn)
	if hadPrevious && previous == name {
		return Registration{Identity: r.lookup(name)}, nil
	}

	shard := r.nameShard(name)
	shard.mu.Lock()
	id, exists := shard.ids[name]
	if exists {
		_, member := id.conns[conn]
		if !member && (session == "" || session != id.session) {
			shard.mu.Unlock()
			return Registration{}, ErrNameTaken
		}
	} else {
		id = &identity{
			name:     name,
			session:  uuid.NewString(),
			conns:    make(map[ConnID]struct{}, 1),
			joinedAt: r.clock.Now(),
		}
		shard.ids[name] = id
	}
	id.conns[conn] = struct{}{}
	result := Registration{Identity: id.snapshot(), Joined: !exists}
	shard.mu.Unlock()

	cs := r.connShard(conn)
	cs.mu.Lock()
	cs.names[conn] = name
	cs.mu.Unlock()

	if hadPrevious {
		result.Previous = previous
		result.PreviousLeft = r.detach(previous, conn)
	}

	r.logger.Debug("identity registered",
		zap.String("user", name),
		zap.String("conn", string(conn)),
		zap.Bool("joined", result.Joined),
		zap.String("previous", previous))
	return result, nil
}

// Unregister removes conn from its identity. It returns the identity's name
// and whether the identity was destroyed because conn was its last
// connection. Unknown connections are a no-op.
func (r *Registry) Unregister(conn ConnID) (string, bool) {
	cs := r.connShard(conn)
	cs.mu.Lock()
	name, ok := cs.names[conn]
	delete(cs.names, conn)
	cs.mu.Unlock()
	if !ok {
		return "", false
	}

	left := r.detach(name, conn)
	r.logger.Debug("identity connection released",
		zap.String("user", name),
		zap.String("conn", string(conn)),
		zap.Bool("left", left))
	return name, left
}

func (r *Registry) detach(name string, conn ConnID) bool {
	shard := r.nameShard(name)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	id, ok := shard.ids[name]
	if !ok {
		return false
	}
	delete(id.conns, conn)
	if len(id.conns) > 0 {
		return false
	}
	delete(shard.ids, name)
	return true
}

func (r *Registry) lookup(name string) Identity {
	shard := r.nameShard(name)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if id, ok := shard.ids[name]; ok {
		return id.snapshot()
	}
	return Identity{}
}

// NameOf returns the display name conn is registered under.
func (r *Registry) NameOf(conn ConnID) (string, bool) {
	cs := r.connShard(conn)
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	name, ok := cs.names[conn]
	return name, ok
}

// IsActive reports whether an identity currently holds name.
func (r *Registry) IsActive(name string) bool {
	shard := r.nameShard(name)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	_, ok := shard.ids[name]
	return ok
}

// BroadcastTargets returns the live connections of name, sorted.
func (r *Registry) BroadcastTargets(name string) []ConnID {
	return r.lookup(name).Conns
}

// ConnectionsExcept returns every live connection whose identity is not
// name. Passing an empty name returns all connections.
func (r *Registry) ConnectionsExcept(name string) []ConnID {
	var out []ConnID
	for i := range r.names {
		shard := &r.names[i]
		shard.mu.Lock()
		for n, id := range shard.ids {
			if n == name {
				continue
			}
			for c := range id.conns {
				out = append(out, c)
			}
		}
		shard.mu.Unlock()
	}
	slices.Sort(out)
	return out
}

// Online returns the names of all active identities, sorted.
func (r *Registry) Online() []string {
	out := []string{}
	for i := range r.names {
		shard := &r.names[i]
		shard.mu.Lock()
		for n := range shard.ids {
			out = append(out, n)
		}
		shard.mu.Unlock()
	}
	slices.Sort(out)
	return out
}

// Count returns the number of active identities.
func (r *Registry) Count() int {
	total := 0
	for i := range r.names {
		shard := &r.names[i]
		shard.mu.Lock()
		total += len(shard.ids)
		shard.mu.Unlock()
	}
	return total
}
