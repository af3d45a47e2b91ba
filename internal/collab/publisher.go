package collab

import (
	"log"

	"docsync/internal/models"
)

// Sender queues one outbound event on a single connection. Send reports false
// when the connection's outbound buffer is full; the event is dropped, never
// queued or retried. Close tears the underlying transport down.
type Sender interface {
	Send(evt models.Event) bool
	Close()
}

// Publisher is the fan-out capability the presence broadcaster and event relay
// depend on. Backed in-process here; a broker-backed implementation could slot
// in behind the same interface.
type Publisher interface {
	// Publish delivers an event to every member of a room.
	Publish(documentID string, evt models.Event)
	// PublishExcept delivers to every member except one connection.
	PublishExcept(documentID, exceptConnectionID string, evt models.Event)
	// SendTo delivers to a single connection.
	SendTo(connectionID string, evt models.Event)
}

// fanout implements Publisher over the room index and the hub's connection
// table. It holds no lock of its own: the hub invokes it only while serialized.
type fanout struct {
	rooms *RoomIndex
	conns map[string]Sender
}

func (f *fanout) Publish(documentID string, evt models.Event) {
	f.PublishExcept(documentID, "", evt)
}

func (f *fanout) PublishExcept(documentID, exceptConnectionID string, evt models.Event) {
	for _, connID := range f.rooms.Members(documentID) {
		if connID == exceptConnectionID {
			continue
		}
		f.SendTo(connID, evt)
	}
}

func (f *fanout) SendTo(connectionID string, evt models.Event) {
	sender, ok := f.conns[connectionID]
	if !ok {
		return
	}
	if !sender.Send(evt) {
		log.Printf("dropped %s event for connection %s: send buffer full", evt.Type, connectionID)
	}
}
