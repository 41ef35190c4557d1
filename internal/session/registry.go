// Package session tracks connected clients and the admin role.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for operations on an unknown session id.
var ErrNotFound = errors.New("session not found")

// Session is one connected client's server-side record. Address is captured
// at connect time and never changes for the lifetime of the connection.
type Session struct {
	ID          string    `json:"sid"`
	DisplayName string    `json:"name"`
	Address     string    `json:"ip"`
	ConnectedAt time.Time `json:"connected_at"`
	IsAdmin     bool      `json:"is_admin"`
}

// Registry is the authoritative map of connected sessions. It owns admin
// election: the first session to connect becomes admin, and when the admin
// disconnects the remaining session with the earliest ConnectedAt (ties
// broken by connection order) takes over.
//
// Registry is not safe for concurrent use on its own; the hub serializes
// all access under its mutation lock.
type Registry struct {
	sessions map[string]*Session
	order    []string // connection order
	adminID  string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Connect registers a new session and returns it. An empty displayNameHint
// gets a generated default name. The first session becomes admin.
func (r *Registry) Connect(displayNameHint, address string) *Session {
	id := uuid.NewString()
	name := displayNameHint
	if name == "" {
		name = "Device-" + id[:8]
	}

	s := &Session{
		ID:          id,
		DisplayName: name,
		Address:     address,
		ConnectedAt: time.Now(),
	}
	r.sessions[id] = s
	r.order = append(r.order, id)

	if r.adminID == "" {
		r.adminID = id
	}
	return s.withAdmin(r.adminID)
}

// Disconnect removes a session. If the admin left and sessions remain, a
// new admin is elected; if the registry empties, the admin slot clears.
func (r *Registry) Disconnect(sessionID string) error {
	if _, ok := r.sessions[sessionID]; !ok {
		return ErrNotFound
	}
	delete(r.sessions, sessionID)
	for i, id := range r.order {
		if id == sessionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if sessionID == r.adminID {
		r.adminID = r.electAdmin()
	}
	return nil
}

// electAdmin picks the session with the earliest ConnectedAt. Walking the
// order slice with a strict comparison makes ties fall to the session that
// connected first, so failover is deterministic.
func (r *Registry) electAdmin() string {
	var elected string
	var earliest time.Time
	for _, id := range r.order {
		s := r.sessions[id]
		if elected == "" || s.ConnectedAt.Before(earliest) {
			elected = id
			earliest = s.ConnectedAt
		}
	}
	return elected
}

// Get returns the session with the given id.
func (r *Registry) Get(sessionID string) (*Session, error) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.withAdmin(r.adminID), nil
}

// AdminID returns the current admin session id, or "" when the registry is
// empty.
func (r *Registry) AdminID() string {
	return r.adminID
}

// Len returns the number of connected sessions.
func (r *Registry) Len() int {
	return len(r.sessions)
}

// LiveIDs returns the set of connected session ids.
func (r *Registry) LiveIDs() map[string]bool {
	live := make(map[string]bool, len(r.sessions))
	for id := range r.sessions {
		live[id] = true
	}
	return live
}

// Snapshot returns copies of all sessions in connection order, with IsAdmin
// resolved against the current admin id.
func (r *Registry) Snapshot() []Session {
	out := make([]Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.sessions[id].withAdmin(r.adminID))
	}
	return out
}

func (s *Session) withAdmin(adminID string) *Session {
	c := *s
	c.IsAdmin = c.ID == adminID
	return &c
}
