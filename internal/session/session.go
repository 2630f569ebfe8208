package session

import (
	"context"
	"sort"
	"sync"

	"thumbnail-gallery/internal/media"
	"thumbnail-gallery/internal/metrics"
)

// Conn is an open client connection.
type Conn interface {
	ID() string
	Send(ctx context.Context, payload []byte) error
	IsClosed() bool
}

// Session is the view state of one connection: which folder, tier and page
// the client is looking at.
type Session struct {
	Conn     Conn
	Tier     media.Tier
	FolderID int64
	Page     int
}

// ID returns the connection id.
func (s Session) ID() string { return s.Conn.ID() }

// Matches reports whether s views tier in folderID.
func (s Session) Matches(folderID int64, tier media.Tier) bool {
	return s.FolderID == folderID && s.Tier == tier
}

// Defaults are applied to new sessions.
type Defaults struct {
	Tier     media.Tier
	FolderID int64
	Page     int
}

// DefaultView is the initial view of a new connection.
var DefaultView = Defaults{Tier: media.TierSmall, FolderID: 0, Page: 1}

// Registry tracks the sessions of open connections.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers conn with the default view and returns the session.
// Re-adding an id replaces its view.
func (r *Registry) Add(conn Conn, d Defaults) Session {
	s := &Session{Conn: conn, Tier: d.Tier, FolderID: d.FolderID, Page: d.Page}

	r.mu.Lock()
	r.sessions[conn.ID()] = s
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.SessionsActive.Set(float64(n))
	return *s
}

// Remove drops a session. Unknown ids are ignored.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	delete(r.sessions, connID)
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.SessionsActive.Set(float64(n))
}

// UpdateSubscription changes what a session is viewing.
func (r *Registry) UpdateSubscription(connID string, tier media.Tier, folderID int64, page int) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		return Session{}, false
	}
	s.Tier, s.FolderID, s.Page = tier, folderID, page
	return *s, true
}

// UpdatePage moves a session to another page of its current view.
func (r *Registry) UpdatePage(connID string, page int) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		return Session{}, false
	}
	s.Page = page
	return *s, true
}

// Get returns a copy of a session.
func (r *Registry) Get(connID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[connID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Snapshot returns copies of all sessions, sorted by connection id.
// Later updates do not affect the returned slice.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
