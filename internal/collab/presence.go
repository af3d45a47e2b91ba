package collab

import (
	"docsync/internal/models"
)

// PresenceBroadcaster computes and emits the active-user and cursor lists for a
// room. Pure reads over registry/rooms/cursors; the only side effect is the
// outbound emission.
type PresenceBroadcaster struct {
	registry *Registry
	rooms    *RoomIndex
	cursors  *CursorStore
	pub      Publisher
}

func NewPresenceBroadcaster(registry *Registry, rooms *RoomIndex, cursors *CursorStore, pub Publisher) *PresenceBroadcaster {
	return &PresenceBroadcaster{registry: registry, rooms: rooms, cursors: cursors, pub: pub}
}

// ActiveUsers resolves a room's member connections to identity entries. Members
// whose session vanished mid-teardown are skipped. Non-nil even for an absent
// room.
func (pb *PresenceBroadcaster) ActiveUsers(documentID string) []models.ActiveUser {
	members := pb.rooms.Members(documentID)
	users := make([]models.ActiveUser, 0, len(members))
	for _, connID := range members {
		sess := pb.registry.Session(connID)
		if sess == nil {
			continue
		}
		users = append(users, models.ActiveUser{
			UserID:       sess.UserID,
			UserName:     sess.UserName,
			ConnectionID: sess.ConnectionID,
		})
	}
	return users
}

// BroadcastActiveUsers emits the active-user list to every room member,
// including whichever connection triggered the change. Presence lists are
// reflexive: users see themselves.
func (pb *PresenceBroadcaster) BroadcastActiveUsers(documentID string) {
	pb.pub.Publish(documentID, models.Event{
		Type:    models.EventActiveUsers,
		Payload: pb.ActiveUsers(documentID),
	})
}

// BroadcastCursors sends each room member the cursor snapshot minus their own
// entry. A user never needs their own cursor echoed back, and filtering per
// recipient keeps that true for every trigger: update, leave, and eviction.
// exceptConnectionID skips the connection that caused the change ("" skips
// no one).
func (pb *PresenceBroadcaster) BroadcastCursors(documentID, exceptConnectionID string) {
	for _, connID := range pb.rooms.Members(documentID) {
		if connID == exceptConnectionID {
			continue
		}
		sess := pb.registry.Session(connID)
		if sess == nil {
			continue
		}
		pb.pub.SendTo(connID, models.Event{
			Type: models.EventCursorPositions,
			Payload: models.CursorPositionsPayload{
				DocumentID: documentID,
				Cursors:    pb.cursors.Snapshot(documentID, sess.UserID),
			},
		})
	}
}

// SendCursorSnapshot sends one connection the current cursor state for a
// document, excluding the user's own prior entry. Used right after a join;
// omitted when no other cursors exist.
func (pb *PresenceBroadcaster) SendCursorSnapshot(documentID, connectionID, excludeUserID string) {
	snapshot := pb.cursors.Snapshot(documentID, excludeUserID)
	if len(snapshot) == 0 {
		return
	}
	pb.pub.SendTo(connectionID, models.Event{
		Type: models.EventCursorPositions,
		Payload: models.CursorPositionsPayload{
			DocumentID: documentID,
			Cursors:    snapshot,
		},
	})
}
