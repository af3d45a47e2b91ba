package collab

import (
	"errors"

	"docsync/internal/models"
)

var (
	// ErrAuthRequired means the authenticate payload carried no usable identity.
	// Surfaced by hard-disconnecting the connection.
	ErrAuthRequired = errors.New("authentication requires userId and userName")

	// ErrNotAuthenticated means an operation needing an authenticated session ran
	// before authenticate. Surfaced as an authError notification, not a disconnect.
	ErrNotAuthenticated = errors.New("connection is not authenticated")

	// ErrAccessDenied means the role lookup found no role for the user on the
	// requested document.
	ErrAccessDenied = errors.New("no access to document")
)

// Registry maps live connection ids to authenticated sessions. It is a plain
// map: the hub serializes every mutation, so no lock lives here. That keeps the
// registry trivially testable and the locking discipline in one place.
type Registry struct {
	sessions map[string]*models.Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*models.Session)}
}

// Authenticate creates or replaces the session for a connection. Re-authenticating
// is idempotent per connection: the prior session is overwritten, current document
// cleared.
func (r *Registry) Authenticate(connectionID, userID, userName string) (*models.Session, error) {
	if userID == "" || userName == "" {
		return nil, ErrAuthRequired
	}
	sess := models.NewSession(connectionID, userID, userName)
	r.sessions[connectionID] = sess
	return sess, nil
}

// Session returns the session for a connection, or nil when the connection never
// authenticated (or already disconnected).
func (r *Registry) Session(connectionID string) *models.Session {
	return r.sessions[connectionID]
}

// SetCurrentDocument points the session at a document, or clears it with "".
// Membership bookkeeping is the caller's job; the two structures are updated
// together inside a single hub event.
func (r *Registry) SetCurrentDocument(connectionID, documentID string) {
	if sess, ok := r.sessions[connectionID]; ok {
		sess.CurrentDocument = documentID
	}
}

// Remove deletes the session. Safe to call for unknown connections.
func (r *Registry) Remove(connectionID string) {
	delete(r.sessions, connectionID)
}

// Len reports the number of authenticated sessions.
func (r *Registry) Len() int {
	return len(r.sessions)
}

// Reset discards every session.
func (r *Registry) Reset() {
	r.sessions = make(map[string]*models.Session)
}
