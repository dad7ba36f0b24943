package chat

import (
	"slices"
	"sync"
)

type contactSet struct {
	mu    sync.Mutex
	order []string
	index map[string]struct{}
}

// Contacts is the per-user address book. A set belongs to its owner alone and
// does not depend on whether the owner, or the contact, is online.
type Contacts struct {
	maxName int

	mu   sync.RWMutex
	sets map[string]*contactSet
}

// NewContacts creates an empty contact graph.
func NewContacts(maxNameLength int) *Contacts {
	return &Contacts{
		maxName: maxNameLength,
		sets:    make(map[string]*contactSet),
	}
}

func (c *Contacts) set(owner string, create bool) *contactSet {
	c.mu.RLock()
	s, ok := c.sets[owner]
	c.mu.RUnlock()
	if ok || !create {
		return s
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok = c.sets[owner]; !ok {
		s = &contactSet{index: make(map[string]struct{})}
		c.sets[owner] = s
	}
	return s
}

// Add records target in owner's address book and returns the normalized
// target name. Adding an existing contact succeeds without changing the set;
// added reports whether the set grew.
func (c *Contacts) Add(owner, target string) (name string, added bool, err error) {
	name = normalizeName(target, c.maxName)
	if name == "" {
		return "", false, ErrEmptyName
	}
	if !validName(name) {
		return "", false, ErrInvalidName
	}
	if name == owner {
		return "", false, ErrSelfContact
	}

	s := c.set(owner, true)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[name]; ok {
		return name, false, nil
	}
	s.index[name] = struct{}{}
	s.order = append(s.order, name)
	return name, true, nil
}

// Remove deletes target from owner's address book.
func (c *Contacts) Remove(owner, target string) (string, error) {
	name := normalizeName(target, c.maxName)
	if name == "" {
		return "", ErrEmptyName
	}

	s := c.set(owner, false)
	if s == nil {
		return "", ErrContactNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[name]; !ok {
		return "", ErrContactNotFound
	}
	delete(s.index, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	return name, nil
}

// Of returns owner's contacts in insertion order.
func (c *Contacts) Of(owner string) []string {
	s := c.set(owner, false)
	if s == nil {
		return []string{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
