package collab

import (
	"encoding/json"

	"docsync/internal/models"
)

// CursorStore holds the latest cursor/selection per (document, user). Entries
// are refreshed on every cursorUpdate, removed on leave/disconnect, and swept by
// the idle reaper when they go stale. A user with several connections shares one
// cursor entry per document: last write wins.
type CursorStore struct {
	docs map[string]map[string]models.CursorEntry
}

func NewCursorStore() *CursorStore {
	return &CursorStore{docs: make(map[string]map[string]models.CursorEntry)}
}

// Update upserts the entry for (documentID, userID) with the given timestamp
// (Unix milliseconds). The caller has already checked room membership.
func (cs *CursorStore) Update(documentID, userID, userName string, position, selection json.RawMessage, timestamp int64) {
	bucket, ok := cs.docs[documentID]
	if !ok {
		bucket = make(map[string]models.CursorEntry)
		cs.docs[documentID] = bucket
	}
	bucket[userID] = models.CursorEntry{
		UserID:    userID,
		UserName:  userName,
		Position:  position,
		Selection: selection,
		Timestamp: timestamp,
	}
}

// Snapshot returns all entries for a document except excludeUserID's, unordered.
// Always non-nil, so it marshals as [] rather than null.
func (cs *CursorStore) Snapshot(documentID, excludeUserID string) []models.CursorEntry {
	bucket := cs.docs[documentID]
	out := make([]models.CursorEntry, 0, len(bucket))
	for userID, entry := range bucket {
		if userID == excludeUserID {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// Remove deletes one user's entry, reporting whether it existed. The document
// bucket is dropped when it empties. Removing an already-removed key is a no-op,
// which is what makes reaper sweeps and concurrent leaves safe to overlap.
func (cs *CursorStore) Remove(documentID, userID string) bool {
	bucket, ok := cs.docs[documentID]
	if !ok {
		return false
	}
	if _, ok := bucket[userID]; !ok {
		return false
	}
	delete(bucket, userID)
	if len(bucket) == 0 {
		delete(cs.docs, documentID)
	}
	return true
}

// DropDocument discards a document's whole bucket. Called when its room empties.
func (cs *CursorStore) DropDocument(documentID string) {
	delete(cs.docs, documentID)
}

// EvictStale removes entries older than timeoutMillis relative to nowMillis and
// returns the ids of documents whose bucket changed, including buckets that
// became empty. An entry exactly at the timeout boundary survives.
func (cs *CursorStore) EvictStale(nowMillis, timeoutMillis int64) []string {
	var changed []string
	for docID, bucket := range cs.docs {
		dirty := false
		for userID, entry := range bucket {
			if nowMillis-entry.Timestamp > timeoutMillis {
				delete(bucket, userID)
				dirty = true
			}
		}
		if dirty {
			changed = append(changed, docID)
			if len(bucket) == 0 {
				delete(cs.docs, docID)
			}
		}
	}
	return changed
}

// Count reports the number of entries for one document.
func (cs *CursorStore) Count(documentID string) int {
	return len(cs.docs[documentID])
}

// Reset discards every bucket.
func (cs *CursorStore) Reset() {
	cs.docs = make(map[string]map[string]models.CursorEntry)
}
