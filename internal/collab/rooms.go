package collab

// RoomIndex maps each document id to the set of connection ids currently viewing
// it. Rooms exist only while occupied: created on first join, deleted when the
// member set empties. Like the registry, it is unlocked state owned by the hub.
type RoomIndex struct {
	rooms map[string]map[string]struct{}
}

func NewRoomIndex() *RoomIndex {
	return &RoomIndex{rooms: make(map[string]map[string]struct{})}
}

// Add puts a connection into a document's member set, creating the room if
// needed.
func (ri *RoomIndex) Add(documentID, connectionID string) {
	members, ok := ri.rooms[documentID]
	if !ok {
		members = make(map[string]struct{})
		ri.rooms[documentID] = members
	}
	members[connectionID] = struct{}{}
}

// Remove takes a connection out of a room. Returns true when the room became
// empty and was deleted. Removing an absent member is a no-op.
func (ri *RoomIndex) Remove(documentID, connectionID string) bool {
	members, ok := ri.rooms[documentID]
	if !ok {
		return false
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(ri.rooms, documentID)
		return true
	}
	return false
}

// Members returns the connection ids in a room, nil for an absent room.
func (ri *RoomIndex) Members(documentID string) []string {
	members := ri.rooms[documentID]
	if len(members) == 0 {
		return nil
	}
	out := make([]string, 0, len(members))
	for connID := range members {
		out = append(out, connID)
	}
	return out
}

// Contains reports whether a connection is a member of a room.
func (ri *RoomIndex) Contains(documentID, connectionID string) bool {
	_, ok := ri.rooms[documentID][connectionID]
	return ok
}

// Documents returns the ids of all occupied rooms.
func (ri *RoomIndex) Documents() []string {
	out := make([]string, 0, len(ri.rooms))
	for docID := range ri.rooms {
		out = append(out, docID)
	}
	return out
}

// MemberCount reports the size of a room's member set, 0 for an absent room.
func (ri *RoomIndex) MemberCount(documentID string) int {
	return len(ri.rooms[documentID])
}

// Reset discards every room.
func (ri *RoomIndex) Reset() {
	ri.rooms = make(map[string]map[string]struct{})
}
