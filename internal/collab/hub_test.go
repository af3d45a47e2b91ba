package collab

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"docsync/internal/models"
)

// fakeSender records everything the hub emits to one connection. The hub
// serializes all calls, so no locking is needed here.
type fakeSender struct {
	events []models.Event
	closed bool
	full   bool
}

func (f *fakeSender) Send(evt models.Event) bool {
	if f.full {
		return false
	}
	f.events = append(f.events, evt)
	return true
}

func (f *fakeSender) Close() { f.closed = true }

func (f *fakeSender) count(et models.EventType) int {
	n := 0
	for _, evt := range f.events {
		if evt.Type == et {
			n++
		}
	}
	return n
}

func (f *fakeSender) last(et models.EventType) (models.Event, bool) {
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].Type == et {
			return f.events[i], true
		}
	}
	return models.Event{}, false
}

func (f *fakeSender) lastActiveUsers(t *testing.T) []models.ActiveUser {
	t.Helper()
	evt, ok := f.last(models.EventActiveUsers)
	if !ok {
		t.Fatal("no activeUsers event received")
	}
	users, ok := evt.Payload.([]models.ActiveUser)
	if !ok {
		t.Fatalf("unexpected activeUsers payload type %T", evt.Payload)
	}
	return users
}

func (f *fakeSender) lastCursors(t *testing.T) models.CursorPositionsPayload {
	t.Helper()
	evt, ok := f.last(models.EventCursorPositions)
	if !ok {
		t.Fatal("no cursorPositions event received")
	}
	p, ok := evt.Payload.(models.CursorPositionsPayload)
	if !ok {
		t.Fatalf("unexpected cursorPositions payload type %T", evt.Payload)
	}
	return p
}

func connect(t *testing.T, h *Hub, connID, userID, userName string) *fakeSender {
	t.Helper()
	s := &fakeSender{}
	h.Register(connID, s)
	if err := h.Authenticate(connID, userID, userName); err != nil {
		t.Fatalf("authenticate %s failed: %v", connID, err)
	}
	return s
}

func join(t *testing.T, h *Hub, connID, documentID string) {
	t.Helper()
	if err := h.Join(context.Background(), connID, documentID); err != nil {
		t.Fatalf("join %s -> %s failed: %v", connID, documentID, err)
	}
}

func hasUser(users []models.ActiveUser, userID string) bool {
	for _, u := range users {
		if u.UserID == userID {
			return true
		}
	}
	return false
}

// checkConsistency asserts the membership/session invariant: every connection
// in a room's member set has a session whose current document is that room, and
// every session's current document has a matching membership entry.
func checkConsistency(t *testing.T, h *Hub) {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, docID := range h.rooms.Documents() {
		for _, connID := range h.rooms.Members(docID) {
			sess := h.registry.Session(connID)
			if sess == nil {
				t.Errorf("room %s holds connection %s with no session", docID, connID)
				continue
			}
			if sess.CurrentDocument != docID {
				t.Errorf("room %s holds connection %s whose session points at %q", docID, connID, sess.CurrentDocument)
			}
		}
	}
	for connID, sess := range h.registry.sessions {
		if sess.CurrentDocument != "" && !h.rooms.Contains(sess.CurrentDocument, connID) {
			t.Errorf("session %s points at %s but the room has no such member", connID, sess.CurrentDocument)
		}
	}
}

func TestHub_AuthenticateRejectsMissingIdentity(t *testing.T) {
	h := NewHub(Config{})
	h.Register("c1", &fakeSender{})

	if err := h.Authenticate("c1", "", ""); !errors.Is(err, ErrAuthRequired) {
		t.Errorf("expected ErrAuthRequired, got %v", err)
	}
}

func TestHub_JoinRequiresAuthentication(t *testing.T) {
	h := NewHub(Config{})
	h.Register("c1", &fakeSender{})

	if err := h.Join(context.Background(), "c1", "doc1"); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
	checkConsistency(t, h)
}

func TestHub_TwoUsersSeeEachOther(t *testing.T) {
	h := NewHub(Config{})
	alice := connect(t, h, "cA", "alice", "Alice")
	bob := connect(t, h, "cB", "bob", "Bob")

	join(t, h, "cA", "doc1")
	join(t, h, "cB", "doc1")

	for name, s := range map[string]*fakeSender{"alice": alice, "bob": bob} {
		users := s.lastActiveUsers(t)
		if len(users) != 2 || !hasUser(users, "alice") || !hasUser(users, "bob") {
			t.Errorf("%s's activeUsers = %v, want both alice and bob", name, users)
		}
	}
	checkConsistency(t, h)
}

func TestHub_CursorUpdateFanout(t *testing.T) {
	h := NewHub(Config{})
	alice := connect(t, h, "cA", "alice", "Alice")
	bob := connect(t, h, "cB", "bob", "Bob")
	join(t, h, "cA", "doc1")
	join(t, h, "cB", "doc1")

	h.UpdateCursor("cA", &models.CursorUpdatePayload{
		DocumentID: "doc1",
		Position:   cursorAt(1, 0),
	})

	got := bob.lastCursors(t)
	if got.DocumentID != "doc1" {
		t.Errorf("cursorPositions for %q, want doc1", got.DocumentID)
	}
	if len(got.Cursors) != 1 || got.Cursors[0].UserID != "alice" {
		t.Errorf("bob should see exactly alice's cursor, got %v", got.Cursors)
	}

	// The updating connection is excluded from the fan-out entirely.
	if n := alice.count(models.EventCursorPositions); n != 0 {
		t.Errorf("alice received %d cursorPositions events, want 0", n)
	}
}

func TestHub_JoinSnapshotExcludesOwnCursor(t *testing.T) {
	h := NewHub(Config{})
	connect(t, h, "cA", "alice", "Alice")
	join(t, h, "cA", "doc1")
	h.UpdateCursor("cA", &models.CursorUpdatePayload{DocumentID: "doc1", Position: cursorAt(3, 1)})

	// A second tab of the same user joins: alice's own prior cursor must not
	// come back in the snapshot, so with no other cursors there is no snapshot
	// at all.
	tab2 := connect(t, h, "cA2", "alice", "Alice")
	join(t, h, "cA2", "doc1")
	if n := tab2.count(models.EventCursorPositions); n != 0 {
		t.Errorf("second tab received %d cursorPositions events, want 0", n)
	}

	// A different user joining does get alice's cursor.
	bob := connect(t, h, "cB", "bob", "Bob")
	join(t, h, "cB", "doc1")
	got := bob.lastCursors(t)
	if len(got.Cursors) != 1 || got.Cursors[0].UserID != "alice" {
		t.Errorf("bob's join snapshot = %v, want alice's cursor only", got.Cursors)
	}
}

func TestHub_RoomSwitchLeavesNoTrace(t *testing.T) {
	h := NewHub(Config{})
	connect(t, h, "cA", "alice", "Alice")
	bob := connect(t, h, "cB", "bob", "Bob")
	join(t, h, "cA", "doc1")
	join(t, h, "cB", "doc1")
	h.UpdateCursor("cA", &models.CursorUpdatePayload{DocumentID: "doc1", Position: cursorAt(1, 0)})

	// Direct join-to-join, no explicit leave.
	join(t, h, "cA", "doc2")

	h.mu.Lock()
	if h.rooms.Contains("doc1", "cA") {
		t.Error("doc1 still lists cA after switching rooms")
	}
	if h.cursors.Count("doc1") != 0 {
		t.Error("alice's cursor survived the room switch")
	}
	if !h.rooms.Contains("doc2", "cA") {
		t.Error("doc2 does not list cA")
	}
	h.mu.Unlock()

	users := bob.lastActiveUsers(t)
	if len(users) != 1 || users[0].UserID != "bob" {
		t.Errorf("bob's activeUsers after switch = %v, want only bob", users)
	}
	checkConsistency(t, h)
}

func TestHub_DoubleLeaveBroadcastsOnce(t *testing.T) {
	h := NewHub(Config{})
	connect(t, h, "cA", "alice", "Alice")
	bob := connect(t, h, "cB", "bob", "Bob")
	join(t, h, "cA", "doc1")
	join(t, h, "cB", "doc1")

	before := bob.count(models.EventActiveUsers)
	h.Leave("cA", "doc1")
	h.Leave("cA", "doc1")
	after := bob.count(models.EventActiveUsers)

	if after-before != 1 {
		t.Errorf("expected exactly 1 activeUsers broadcast from double leave, got %d", after-before)
	}
	checkConsistency(t, h)
}

func TestHub_DisconnectAfterLeaveIsQuiet(t *testing.T) {
	h := NewHub(Config{})
	connect(t, h, "cA", "alice", "Alice")
	bob := connect(t, h, "cB", "bob", "Bob")
	join(t, h, "cA", "doc1")
	join(t, h, "cB", "doc1")

	h.Leave("cA", "doc1")
	before := bob.count(models.EventActiveUsers)
	h.Disconnect("cA")
	h.Disconnect("cA")
	after := bob.count(models.EventActiveUsers)

	if after != before {
		t.Errorf("disconnect after leave re-broadcast doc1 presence (%d -> %d)", before, after)
	}
	if h.Session("cA") != nil {
		t.Error("session survived disconnect")
	}
	checkConsistency(t, h)
}

func TestHub_DisconnectWithoutLeaveCleansUp(t *testing.T) {
	h := NewHub(Config{})
	connect(t, h, "cA", "alice", "Alice")
	bob := connect(t, h, "cB", "bob", "Bob")
	join(t, h, "cA", "doc1")
	join(t, h, "cB", "doc1")
	h.UpdateCursor("cA", &models.CursorUpdatePayload{DocumentID: "doc1", Position: cursorAt(1, 0)})

	h.Disconnect("cA")

	users := bob.lastActiveUsers(t)
	if len(users) != 1 || users[0].UserID != "bob" {
		t.Errorf("bob's activeUsers after disconnect = %v, want only bob", users)
	}
	cursors := bob.lastCursors(t)
	if len(cursors.Cursors) != 0 {
		t.Errorf("bob still sees cursors %v after alice disconnected", cursors.Cursors)
	}
	checkConsistency(t, h)
}

func TestHub_SameUserTwoConnections(t *testing.T) {
	h := NewHub(Config{})
	tab1 := connect(t, h, "c1", "alice", "Alice")
	connect(t, h, "c2", "alice", "Alice")
	join(t, h, "c1", "doc1")
	join(t, h, "c2", "doc1")

	users := tab1.lastActiveUsers(t)
	if len(users) != 2 {
		t.Fatalf("expected 2 presence entries for 2 tabs, got %v", users)
	}
	if users[0].ConnectionID == users[1].ConnectionID {
		t.Error("both entries share one connection id")
	}
	for _, u := range users {
		if u.UserID != "alice" {
			t.Errorf("unexpected user %s", u.UserID)
		}
	}

	h.Leave("c1", "doc1")
	users = tab1.lastActiveUsers(t)
	if len(users) != 1 {
		t.Errorf("leaving one tab should keep the other, got %v", users)
	}
	checkConsistency(t, h)
}

func TestHub_StaleCursorUpdateIgnored(t *testing.T) {
	h := NewHub(Config{})
	connect(t, h, "cA", "alice", "Alice")
	bob := connect(t, h, "cB", "bob", "Bob")
	join(t, h, "cA", "doc1")
	join(t, h, "cB", "doc1")
	join(t, h, "cA", "doc2")

	// Delayed packet for the old room arrives after the switch.
	before := bob.count(models.EventCursorPositions)
	h.UpdateCursor("cA", &models.CursorUpdatePayload{DocumentID: "doc1", Position: cursorAt(1, 0)})
	if bob.count(models.EventCursorPositions) != before {
		t.Error("stale cursor update leaked into doc1")
	}
	h.mu.Lock()
	if h.cursors.Count("doc1") != 0 {
		t.Error("stale cursor update created an entry")
	}
	h.mu.Unlock()
}

func TestHub_ReaperEvictsIdleCursors(t *testing.T) {
	h := NewHub(Config{})
	base := time.Now()
	h.now = func() time.Time { return base }

	connect(t, h, "cA", "alice", "Alice")
	bob := connect(t, h, "cB", "bob", "Bob")
	join(t, h, "cA", "doc1")
	join(t, h, "cB", "doc1")
	h.UpdateCursor("cA", &models.CursorUpdatePayload{DocumentID: "doc1", Position: cursorAt(1, 0)})
	h.UpdateCursor("cB", &models.CursorUpdatePayload{DocumentID: "doc1", Position: cursorAt(2, 0)})

	// Bob stays active, alice goes idle past the timeout.
	h.now = func() time.Time { return base.Add(25 * time.Second) }
	h.UpdateCursor("cB", &models.CursorUpdatePayload{DocumentID: "doc1", Position: cursorAt(2, 1)})

	h.now = func() time.Time { return base.Add(31 * time.Second) }
	h.sweepStaleCursors()

	got := bob.lastCursors(t)
	if len(got.Cursors) != 0 {
		t.Errorf("bob still sees %v after alice's cursor went stale", got.Cursors)
	}

	// A second overlapping sweep changes nothing.
	before := bob.count(models.EventCursorPositions)
	h.sweepStaleCursors()
	if bob.count(models.EventCursorPositions) != before {
		t.Error("idempotent sweep re-broadcast")
	}
}

func TestHub_ReauthenticateLeavesCurrentRoom(t *testing.T) {
	h := NewHub(Config{})
	connect(t, h, "cA", "alice", "Alice")
	bob := connect(t, h, "cB", "bob", "Bob")
	join(t, h, "cA", "doc1")
	join(t, h, "cB", "doc1")

	if err := h.Authenticate("cA", "carol", "Carol"); err != nil {
		t.Fatalf("re-authenticate failed: %v", err)
	}

	users := bob.lastActiveUsers(t)
	if hasUser(users, "alice") || hasUser(users, "carol") {
		t.Errorf("re-authenticated connection still occupies doc1: %v", users)
	}
	checkConsistency(t, h)
}

func TestHub_FullSendBufferDropsEvent(t *testing.T) {
	h := NewHub(Config{})
	connect(t, h, "cA", "alice", "Alice")
	bob := connect(t, h, "cB", "bob", "Bob")
	join(t, h, "cA", "doc1")
	join(t, h, "cB", "doc1")

	bob.full = true
	h.UpdateCursor("cA", &models.CursorUpdatePayload{DocumentID: "doc1", Position: cursorAt(1, 0)})

	// Nothing recorded, nothing blew up: the emission is simply dropped.
	if n := bob.count(models.EventCursorPositions); n != 0 {
		t.Errorf("full buffer still recorded %d events", n)
	}
}

func TestHub_ShutdownClosesConnections(t *testing.T) {
	h := NewHub(Config{})
	alice := connect(t, h, "cA", "alice", "Alice")
	join(t, h, "cA", "doc1")

	h.Shutdown()

	if !alice.closed {
		t.Error("shutdown left connection open")
	}
	if counts := h.RoomCounts(); len(counts) != 0 {
		t.Errorf("rooms survived shutdown: %v", counts)
	}
}

// fakeResolver serves canned roles.
type fakeResolver struct {
	roles map[string]models.Role // userID -> role
	err   error
	calls int
}

func (f *fakeResolver) Resolve(ctx context.Context, documentID, userID string) (models.Role, error) {
	f.calls++
	if f.err != nil {
		return models.RoleNone, f.err
	}
	return f.roles[userID], nil
}

func TestHub_JoinDeniedWithoutRole(t *testing.T) {
	resolver := &fakeResolver{roles: map[string]models.Role{"alice": models.RoleEditor}}
	h := NewHub(Config{Roles: resolver})
	connect(t, h, "cA", "alice", "Alice")
	connect(t, h, "cB", "bob", "Bob")

	join(t, h, "cA", "doc1")
	if got := h.Session("cA").Role; got != models.RoleEditor {
		t.Errorf("alice's role = %q, want editor", got)
	}

	err := h.Join(context.Background(), "cB", "doc1")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied for bob, got %v", err)
	}
	h.mu.Lock()
	if h.rooms.Contains("doc1", "cB") {
		t.Error("denied join still mutated membership")
	}
	h.mu.Unlock()
	if resolver.calls != 2 {
		t.Errorf("expected 2 role lookups, got %d", resolver.calls)
	}
	checkConsistency(t, h)
}

func TestHub_JoinAllowedWhenRoleStoreFails(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("role store down")}
	h := NewHub(Config{Roles: resolver})
	connect(t, h, "cA", "alice", "Alice")

	join(t, h, "cA", "doc1")
	h.mu.Lock()
	if !h.rooms.Contains("doc1", "cA") {
		t.Error("resolver failure should not block the join")
	}
	h.mu.Unlock()
}

func TestHub_JoinRevalidatesAfterRoleLookup(t *testing.T) {
	h := NewHub(Config{})
	// Resolver that disconnects the connection mid-lookup, simulating the
	// interleaving the lock release allows.
	h.roles = resolverFunc(func(ctx context.Context, documentID, userID string) (models.Role, error) {
		h.Disconnect("cA")
		return models.RoleEditor, nil
	})
	connect(t, h, "cA", "alice", "Alice")

	err := h.Join(context.Background(), "cA", "doc1")
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated after mid-join disconnect, got %v", err)
	}
	h.mu.Lock()
	if h.rooms.Contains("doc1", "cA") {
		t.Error("join mutated state for a disconnected session")
	}
	h.mu.Unlock()
	checkConsistency(t, h)
}

type resolverFunc func(ctx context.Context, documentID, userID string) (models.Role, error)

func (f resolverFunc) Resolve(ctx context.Context, documentID, userID string) (models.Role, error) {
	return f(ctx, documentID, userID)
}

func TestHub_RoomPresenceInspection(t *testing.T) {
	h := NewHub(Config{})
	connect(t, h, "cA", "alice", "Alice")
	join(t, h, "cA", "doc1")
	h.UpdateCursor("cA", &models.CursorUpdatePayload{DocumentID: "doc1", Position: cursorAt(4, 2)})

	users, cursors := h.RoomPresence("doc1")
	if len(users) != 1 || users[0].UserID != "alice" {
		t.Errorf("RoomPresence users = %v", users)
	}
	if len(cursors) != 1 || cursors[0].UserID != "alice" {
		t.Errorf("RoomPresence cursors = %v", cursors)
	}
	if counts := h.RoomCounts(); counts["doc1"] != 1 {
		t.Errorf("RoomCounts = %v", counts)
	}

	var pos map[string]int
	if err := json.Unmarshal(cursors[0].Position, &pos); err != nil || pos["line"] != 4 {
		t.Errorf("cursor position not relayed verbatim: %s", cursors[0].Position)
	}
}
