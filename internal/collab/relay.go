package collab

import (
	"log"
	"time"

	"docsync/internal/models"

	"github.com/google/uuid"
)

// EventRelay forwards document-change, comment, and typing events between room
// members. At-least-once, no persistence, no acknowledgement. Every relayed
// event is stamped with the server-known sender identity and a server
// timestamp; client-supplied identity fields are never trusted.
type EventRelay struct {
	pub Publisher
	now func() time.Time
}

func NewEventRelay(pub Publisher) *EventRelay {
	return &EventRelay{pub: pub, now: time.Now}
}

// allowed checks the sender's session occupies the event's document. A mismatch
// is dropped silently toward the client: a delayed packet racing a room switch
// is expected, not an error.
func (er *EventRelay) allowed(sess *models.Session, documentID string, event models.EventType) bool {
	if sess == nil || !sess.InDocument(documentID) {
		log.Printf("dropped %s for document %s: sender not in room", event, documentID)
		return false
	}
	return true
}

// RelayDocumentChange fans a change set out to every other room member. The
// sender already has the state and is excluded.
func (er *EventRelay) RelayDocumentChange(sess *models.Session, p *models.DocumentChangePayload) {
	if !er.allowed(sess, p.DocumentID, models.EventDocumentUpdate) {
		return
	}
	er.pub.PublishExcept(p.DocumentID, sess.ConnectionID, models.Event{
		Type: models.EventDocumentUpdate,
		Payload: models.DocumentUpdatePayload{
			DocumentID: p.DocumentID,
			UserID:     sess.UserID,
			UserName:   sess.UserName,
			Changes:    p.Changes,
			Timestamp:  er.now().UnixMilli(),
		},
	})
}

// RelayComment fans a comment out to the whole room, sender included, so the
// sender's UI replaces its optimistic copy with the canonical enriched one.
func (er *EventRelay) RelayComment(sess *models.Session, p *models.AddCommentPayload) {
	if !er.allowed(sess, p.DocumentID, models.EventNewComment) {
		return
	}
	comment := p.Comment
	comment.UserID = sess.UserID
	comment.UserName = sess.UserName
	comment.CreatedAt = er.now().UTC().Format(time.RFC3339)
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	er.pub.Publish(p.DocumentID, models.Event{
		Type: models.EventNewComment,
		Payload: models.NewCommentPayload{
			DocumentID: p.DocumentID,
			Comment:    comment,
		},
	})
}

// RelayTyping fans a typing indicator out to every other room member.
func (er *EventRelay) RelayTyping(sess *models.Session, p *models.TypingPayload) {
	if !er.allowed(sess, p.DocumentID, models.EventUserTyping) {
		return
	}
	er.pub.PublishExcept(p.DocumentID, sess.ConnectionID, models.Event{
		Type: models.EventUserTyping,
		Payload: models.UserTypingPayload{
			DocumentID: p.DocumentID,
			UserID:     sess.UserID,
			UserName:   sess.UserName,
			IsTyping:   p.IsTyping,
		},
	})
}
