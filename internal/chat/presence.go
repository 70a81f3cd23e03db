package chat

import (
	"sync"

	"github.com/samber/lo"
)

// Registry maps an identity to its live connections. It lives as long as the
// process: nothing is persisted and a restart starts empty, clients register
// again when they reconnect.
//
// Each identity has its own entry and lock, so registrations for different
// identities never wait on each other.
type Registry struct {
	entries sync.Map // identity -> *presenceEntry
}

type presenceEntry struct {
	mu      sync.Mutex
	conns   map[*Conn]struct{}
	removed bool
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(identity string, c *Conn) {
	for {
		e := r.entry(identity)
		e.mu.Lock()
		if e.removed {
			// Lost a race with the last Unregister of this identity.
			e.mu.Unlock()
			continue
		}
		if _, ok := e.conns[c]; !ok {
			e.conns[c] = struct{}{}
			presenceConnections.Inc()
		}
		e.mu.Unlock()
		return
	}
}

// Unregister removes c and reports whether it was registered. The entry is
// dropped with its last connection.
func (r *Registry) Unregister(identity string, c *Conn) bool {
	v, ok := r.entries.Load(identity)
	if !ok {
		return false
	}
	e := v.(*presenceEntry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.conns[c]; !ok {
		return false
	}
	delete(e.conns, c)
	presenceConnections.Dec()
	if len(e.conns) == 0 {
		e.removed = true
		r.entries.CompareAndDelete(identity, e)
	}
	return true
}

// ConnectionsFor returns a snapshot of identity's connections, possibly empty.
func (r *Registry) ConnectionsFor(identity string) []*Conn {
	v, ok := r.entries.Load(identity)
	if !ok {
		return nil
	}
	e := v.(*presenceEntry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return lo.Keys(e.conns)
}

func (r *Registry) Online(identity string) bool {
	return len(r.ConnectionsFor(identity)) > 0
}

func (r *Registry) entry(identity string) *presenceEntry {
	if v, ok := r.entries.Load(identity); ok {
		return v.(*presenceEntry)
	}
	v, _ := r.entries.LoadOrStore(identity, &presenceEntry{conns: make(map[*Conn]struct{})})
	return v.(*presenceEntry)
}
