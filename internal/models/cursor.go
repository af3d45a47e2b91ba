package models

import "encoding/json"

// CursorEntry is the latest cursor/selection state for one user in one document.
// Position and selection are relayed verbatim; the server never interprets
// editor-specific coordinates. Timestamp is Unix milliseconds, refreshed on every
// update and used for idle eviction.
type CursorEntry struct {
	UserID    string          `json:"userId"`
	UserName  string          `json:"userName"`
	Position  json.RawMessage `json:"position,omitempty"`
	Selection json.RawMessage `json:"selection,omitempty"`
	Timestamp int64           `json:"timestamp"`
}
