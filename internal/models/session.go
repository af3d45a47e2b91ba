package models

import (
	"time"
)

// Session binds a live connection to an authenticated user identity and at most
// one active document. Owned by the connection registry: created on authenticate,
// mutated on join/leave, destroyed on disconnect.
type Session struct {
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
	UserName     string `json:"user_name"`
	// CurrentDocument is empty while the user is authenticated but not viewing
	// any document.
	CurrentDocument string    `json:"current_document,omitempty"`
	Role            Role      `json:"role,omitempty"`
	ConnectedAt     time.Time `json:"connected_at"`
	LastActiveAt    time.Time `json:"last_active_at"`
}

func NewSession(connectionID, userID, userName string) *Session {
	now := time.Now()
	return &Session{
		ConnectionID: connectionID,
		UserID:       userID,
		UserName:     userName,
		ConnectedAt:  now,
		LastActiveAt: now,
	}
}

// InDocument reports whether the session currently occupies documentID.
func (s *Session) InDocument(documentID string) bool {
	return s.CurrentDocument != "" && s.CurrentDocument == documentID
}

// ActiveUser is one entry of the activeUsers presence list. A user with two tabs
// open appears twice, with distinct connection ids.
type ActiveUser struct {
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
	ConnectionID string `json:"connectionId"`
}
