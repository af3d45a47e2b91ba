package models

import (
	"encoding/json"
	"fmt"
)

// EventType names a wire event. Inbound and outbound events share one envelope:
// {"type": "...", "payload": {...}}.
type EventType string

const (
	// Client → server
	EventAuthenticate   EventType = "authenticate"
	EventJoinDocument   EventType = "joinDocument"
	EventLeaveDocument  EventType = "leaveDocument"
	EventCursorUpdate   EventType = "cursorUpdate"
	EventDocumentChange EventType = "documentChange"
	EventAddComment     EventType = "addComment"
	EventTyping         EventType = "typing"

	// Server → client
	EventActiveUsers     EventType = "activeUsers"
	EventCursorPositions EventType = "cursorPositions"
	EventDocumentUpdate  EventType = "documentUpdate"
	EventNewComment      EventType = "newComment"
	EventUserTyping      EventType = "userTyping"
	EventAuthError       EventType = "authError"
)

// Envelope is the decoded form of an inbound frame. Payloads stay raw until the
// dispatcher knows the event type.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Event is an outbound frame ready for marshaling.
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload"`
}

// AuthenticatePayload carries the upstream identity assertion. Credentials are
// verified by the external identity provider before the socket is opened; this
// layer only checks the assertion is present.
type AuthenticatePayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

func (p *AuthenticatePayload) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("authenticate: userId is required")
	}
	if p.UserName == "" {
		return fmt.Errorf("authenticate: userName is required")
	}
	return nil
}

// JoinDocumentPayload asks to enter a document room. Clients historically also
// send userId/userName/userRole here; those fields are ignored, the session is
// authoritative.
type JoinDocumentPayload struct {
	DocumentID string `json:"documentId"`
	UserID     string `json:"userId,omitempty"`
	UserName   string `json:"userName,omitempty"`
	UserRole   string `json:"userRole,omitempty"`
}

func (p *JoinDocumentPayload) Validate() error {
	if p.DocumentID == "" {
		return fmt.Errorf("joinDocument: documentId is required")
	}
	return nil
}

type LeaveDocumentPayload struct {
	DocumentID string `json:"documentId"`
	UserID     string `json:"userId,omitempty"`
}

func (p *LeaveDocumentPayload) Validate() error {
	if p.DocumentID == "" {
		return fmt.Errorf("leaveDocument: documentId is required")
	}
	return nil
}

type CursorUpdatePayload struct {
	DocumentID string          `json:"documentId"`
	Position   json.RawMessage `json:"position,omitempty"`
	Selection  json.RawMessage `json:"selection,omitempty"`
}

func (p *CursorUpdatePayload) Validate() error {
	if p.DocumentID == "" {
		return fmt.Errorf("cursorUpdate: documentId is required")
	}
	return nil
}

// DocumentChangePayload carries an opaque change set. The server relays it
// verbatim; there is no merge logic in this layer.
type DocumentChangePayload struct {
	DocumentID string          `json:"documentId"`
	Changes    json.RawMessage `json:"changes"`
}

func (p *DocumentChangePayload) Validate() error {
	if p.DocumentID == "" {
		return fmt.Errorf("documentChange: documentId is required")
	}
	if len(p.Changes) == 0 {
		return fmt.Errorf("documentChange: changes is required")
	}
	return nil
}

// Comment is the comment object relayed between co-editors. Identity fields and
// timestamps are overwritten server-side; content and blockId pass through.
type Comment struct {
	ID        string `json:"id,omitempty"`
	Content   string `json:"content"`
	BlockID   string `json:"blockId,omitempty"`
	UserID    string `json:"userId,omitempty"`
	UserName  string `json:"userName,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	Resolved  bool   `json:"resolved"`
}

type AddCommentPayload struct {
	DocumentID string  `json:"documentId"`
	Comment    Comment `json:"comment"`
}

func (p *AddCommentPayload) Validate() error {
	if p.DocumentID == "" {
		return fmt.Errorf("addComment: documentId is required")
	}
	if p.Comment.Content == "" {
		return fmt.Errorf("addComment: comment.content is required")
	}
	return nil
}

type TypingPayload struct {
	DocumentID string `json:"documentId"`
	IsTyping   bool   `json:"isTyping"`
}

func (p *TypingPayload) Validate() error {
	if p.DocumentID == "" {
		return fmt.Errorf("typing: documentId is required")
	}
	return nil
}

// Outbound payloads.

type CursorPositionsPayload struct {
	DocumentID string        `json:"documentId"`
	Cursors    []CursorEntry `json:"cursors"`
}

type DocumentUpdatePayload struct {
	DocumentID string          `json:"documentId"`
	UserID     string          `json:"userId"`
	UserName   string          `json:"userName"`
	Changes    json.RawMessage `json:"changes"`
	Timestamp  int64           `json:"timestamp"`
}

type NewCommentPayload struct {
	DocumentID string  `json:"documentId"`
	Comment    Comment `json:"comment"`
}

type UserTypingPayload struct {
	DocumentID string `json:"documentId"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	IsTyping   bool   `json:"isTyping"`
}

type AuthErrorPayload struct {
	Message string `json:"message"`
}
