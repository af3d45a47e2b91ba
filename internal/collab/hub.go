package collab

import (
	"context"
	"log"
	"sync"
	"time"

	"docsync/internal/models"
)

const (
	DefaultCursorTimeout = 30 * time.Second
	DefaultSweepInterval = 10 * time.Second
)

// RoleResolver answers "what role does this user hold on this document" against
// the editor application's document store. Resolution may block on external I/O,
// so the hub always completes it before touching shared state.
type RoleResolver interface {
	Resolve(ctx context.Context, documentID, userID string) (models.Role, error)
}

// Config carries the hub's tunables. Zero durations fall back to defaults; a
// nil Roles resolver disables the join-time role check (enforcement then lives
// entirely upstream).
type Config struct {
	CursorTimeout time.Duration
	SweepInterval time.Duration
	Roles         RoleResolver
}

// Hub is the coordination core: it owns the connection registry, the room
// membership index and the cursor store, and serializes every inbound event on
// one mutex. Within a handler the three structures mutate atomically with
// respect to other connections' events, which is what keeps the
// session/membership invariants intact without finer locking.
type Hub struct {
	mu       sync.Mutex
	registry *Registry
	rooms    *RoomIndex
	cursors  *CursorStore
	conns    map[string]Sender

	presence *PresenceBroadcaster
	relay    *EventRelay
	roles    RoleResolver

	cursorTimeout time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

func NewHub(cfg Config) *Hub {
	if cfg.CursorTimeout <= 0 {
		cfg.CursorTimeout = DefaultCursorTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	h := &Hub{
		registry:      NewRegistry(),
		rooms:         NewRoomIndex(),
		cursors:       NewCursorStore(),
		conns:         make(map[string]Sender),
		roles:         cfg.Roles,
		cursorTimeout: cfg.CursorTimeout,
		sweepInterval: cfg.SweepInterval,
		now:           time.Now,
		done:          make(chan struct{}),
	}
	pub := &fanout{rooms: h.rooms, conns: h.conns}
	h.presence = NewPresenceBroadcaster(h.registry, h.rooms, h.cursors, pub)
	h.relay = NewEventRelay(pub)
	return h
}

// Start launches the idle cursor reaper. The reaper runs on a fixed timer until
// Shutdown, independent of connection activity.
func (h *Hub) Start() {
	log.Println("🔄 Starting presence hub...")
	go h.reaperLoop()
	log.Printf("✓ Presence hub started (cursor timeout %s, sweep every %s)", h.cursorTimeout, h.sweepInterval)
}

// Shutdown stops the reaper and closes every live connection. In-memory state
// is discarded; there is nothing to persist, presence rebuilds from zero on the
// next start.
func (h *Hub) Shutdown() {
	log.Println("🛑 Shutting down presence hub...")
	h.stopOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	defer h.mu.Unlock()
	for connID, sender := range h.conns {
		sender.Close()
		delete(h.conns, connID)
	}
	h.registry.Reset()
	h.rooms.Reset()
	h.cursors.Reset()
	log.Println("✓ Presence hub shutdown complete")
}

// Register adds a connection's sender before it has authenticated. Must be
// paired with exactly one Disconnect on the connection's terminal event.
func (h *Hub) Register(connectionID string, sender Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[connectionID] = sender
}

// Authenticate creates or replaces the session for a connection. Replacing a
// session that occupies a room runs the leave protocol first so the old room's
// membership and cursor state cannot leak.
func (h *Hub) Authenticate(connectionID, userID, userName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev := h.registry.Session(connectionID); prev != nil && prev.CurrentDocument != "" {
		h.leaveLocked(prev, prev.CurrentDocument)
	}
	_, err := h.registry.Authenticate(connectionID, userID, userName)
	if err != nil {
		return err
	}
	log.Printf("  Connection %s authenticated as %s (%s)", connectionID, userName, userID)
	return nil
}

// Join moves a connection into a document room. Effects, in order: implicit
// leave of any other room, membership add, session update, activeUsers
// broadcast, and a cursor snapshot (minus the joiner's own user) back to the
// joining connection.
//
// The role lookup is external I/O, so it runs before the lock; the session is
// re-validated afterwards in case the connection disconnected or
// re-authenticated while the lookup was in flight.
func (h *Hub) Join(ctx context.Context, connectionID, documentID string) error {
	h.mu.Lock()
	sess := h.registry.Session(connectionID)
	if sess == nil {
		h.mu.Unlock()
		return ErrNotAuthenticated
	}
	userID := sess.UserID
	h.mu.Unlock()

	var role models.Role
	if h.roles != nil {
		resolved, err := h.roles.Resolve(ctx, documentID, userID)
		switch {
		case err != nil:
			// Presence is not the enforcement point; the upstream write path
			// is. Stay available when the role store is down.
			log.Printf("role lookup failed for user %s on document %s: %v (allowing)", userID, documentID, err)
		case resolved == models.RoleNone:
			return ErrAccessDenied
		default:
			role = resolved
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	sess = h.registry.Session(connectionID)
	if sess == nil || sess.UserID != userID {
		return ErrNotAuthenticated
	}

	if sess.CurrentDocument != "" && sess.CurrentDocument != documentID {
		h.leaveLocked(sess, sess.CurrentDocument)
	}

	h.rooms.Add(documentID, connectionID)
	sess.CurrentDocument = documentID
	sess.Role = role
	sess.LastActiveAt = h.now()

	h.presence.BroadcastActiveUsers(documentID)
	h.presence.SendCursorSnapshot(documentID, connectionID, sess.UserID)

	log.Printf("  User %s (%s) joined document %s (%d users)", sess.UserName, sess.UserID, documentID, h.rooms.MemberCount(documentID))
	return nil
}

// Leave takes a connection out of a document room. A stale or duplicate leave
// (current room doesn't match) is a silent no-op.
func (h *Hub) Leave(connectionID, documentID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sess := h.registry.Session(connectionID)
	if sess == nil {
		return
	}
	h.leaveLocked(sess, documentID)
}

// Disconnect handles a connection's terminal event: leave the current room if
// any, then drop the session and the sender. Safe to call after an explicit
// leave, and safe to call twice.
func (h *Hub) Disconnect(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, connectionID)
	sess := h.registry.Session(connectionID)
	if sess == nil {
		return
	}
	if sess.CurrentDocument != "" {
		h.leaveLocked(sess, sess.CurrentDocument)
	}
	h.registry.Remove(connectionID)
	log.Printf("  Connection %s disconnected", connectionID)
}

// leaveLocked is the single leave protocol, shared by explicit leave, implicit
// leave-on-switch, re-authentication, and disconnect. Caller holds h.mu.
func (h *Hub) leaveLocked(sess *models.Session, documentID string) {
	if !sess.InDocument(documentID) {
		return
	}
	emptied := h.rooms.Remove(documentID, sess.ConnectionID)
	hadCursor := h.cursors.Remove(documentID, sess.UserID)
	sess.CurrentDocument = ""
	sess.Role = models.RoleNone

	if emptied {
		h.cursors.DropDocument(documentID)
	} else if hadCursor {
		h.presence.BroadcastCursors(documentID, "")
	}
	h.presence.BroadcastActiveUsers(documentID)
}

// UpdateCursor upserts the sender's cursor entry and fans the new state out to
// the rest of the room. Silently ignored when the sender's current room doesn't
// match: a delayed cursor packet after a room switch is an expected race.
func (h *Hub) UpdateCursor(connectionID string, p *models.CursorUpdatePayload) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sess := h.registry.Session(connectionID)
	if sess == nil || !sess.InDocument(p.DocumentID) {
		return
	}
	now := h.now()
	sess.LastActiveAt = now
	h.cursors.Update(p.DocumentID, sess.UserID, sess.UserName, p.Position, p.Selection, now.UnixMilli())
	h.presence.BroadcastCursors(p.DocumentID, connectionID)
}

// RelayDocumentChange forwards a change set to the sender's co-editors.
func (h *Hub) RelayDocumentChange(connectionID string, p *models.DocumentChangePayload) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.relay.RelayDocumentChange(h.touch(connectionID), p)
}

// RelayComment forwards an enriched comment to the whole room.
func (h *Hub) RelayComment(connectionID string, p *models.AddCommentPayload) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.relay.RelayComment(h.touch(connectionID), p)
}

// RelayTyping forwards a typing indicator to the sender's co-editors.
func (h *Hub) RelayTyping(connectionID string, p *models.TypingPayload) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.relay.RelayTyping(h.touch(connectionID), p)
}

// touch returns the session for a connection, refreshing its activity
// timestamp. Caller holds h.mu.
func (h *Hub) touch(connectionID string) *models.Session {
	sess := h.registry.Session(connectionID)
	if sess != nil {
		sess.LastActiveAt = h.now()
	}
	return sess
}

// Session returns a copy of a connection's session, or nil.
func (h *Hub) Session(connectionID string) *models.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	sess := h.registry.Session(connectionID)
	if sess == nil {
		return nil
	}
	copied := *sess
	return &copied
}

// RoomCounts reports member counts per occupied room. Read-only inspection for
// the REST surface.
func (h *Hub) RoomCounts() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]int)
	for _, docID := range h.rooms.Documents() {
		out[docID] = h.rooms.MemberCount(docID)
	}
	return out
}

// RoomPresence reports a room's active users and full cursor snapshot.
func (h *Hub) RoomPresence(documentID string) ([]models.ActiveUser, []models.CursorEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.presence.ActiveUsers(documentID), h.cursors.Snapshot(documentID, "")
}

func (h *Hub) reaperLoop() {
	ticker := time.NewTicker(h.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.sweepStaleCursors()
		}
	}
}

// sweepStaleCursors evicts cursor entries not refreshed within the timeout and
// re-broadcasts cursor state for each document that changed. Overlapping with a
// concurrent leave is harmless: removing an already-removed key is a no-op.
func (h *Hub) sweepStaleCursors() {
	h.mu.Lock()
	defer h.mu.Unlock()
	changed := h.cursors.EvictStale(h.now().UnixMilli(), h.cursorTimeout.Milliseconds())
	for _, docID := range changed {
		h.presence.BroadcastCursors(docID, "")
	}
}
