// Package registry tracks identified websocket sessions and their room
// memberships. It is the in-memory source of truth for fan-out targets;
// nothing here survives a restart, clients re-identify on reconnect.
package registry

import (
	"sync"
)

// Session is one identified connection.
type Session struct {
	ConnID  string
	UserID  string
	Name    string
	Role    string
	ShareID string
}

type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session         // conn id -> session
	rooms    map[string]map[string]bool  // room -> set of conn ids
	joined   map[string]map[string]bool  // conn id -> set of rooms
}

func New() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		rooms:    make(map[string]map[string]bool),
		joined:   make(map[string]map[string]bool),
	}
}

// Identify records who a connection is. Calling it again for the same
// connection overwrites the previous identity but keeps room memberships.
func (r *Registry) Identify(connID, userID, name, role, shareID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[connID] = &Session{
		ConnID:  connID,
		UserID:  userID,
		Name:    name,
		Role:    role,
		ShareID: shareID,
	}
}

// Lookup returns the identity of a connection, if it identified.
func (r *Registry) Lookup(connID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

func (r *Registry) Join(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]bool)
	}
	r.rooms[room][connID] = true
	if r.joined[connID] == nil {
		r.joined[connID] = make(map[string]bool)
	}
	r.joined[connID][room] = true
}

func (r *Registry) Leave(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID, room)
}

func (r *Registry) leaveLocked(connID, room string) {
	if members, ok := r.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if rooms, ok := r.joined[connID]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.joined, connID)
		}
	}
}

// MembersOf returns the connection ids currently in a room.
func (r *Registry) MembersOf(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	out := make([]string, 0, len(members))
	for connID := range members {
		out = append(out, connID)
	}
	return out
}

// Drop removes a connection from the registry and from every room it
// joined. Safe to call for connections that never identified.
func (r *Registry) Drop(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room := range r.joined[connID] {
		r.leaveLocked(connID, room)
	}
	delete(r.joined, connID)
	delete(r.sessions, connID)
}
