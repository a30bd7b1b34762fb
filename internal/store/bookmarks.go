package store

import "sync"

// BookmarkKind distinguishes the durable markers persisted server-side.
type BookmarkKind string

const (
	BookmarkAutojoin     BookmarkKind = "room-autojoin"
	BookmarkSubscription BookmarkKind = "subscription-request"
	BookmarkInvitation   BookmarkKind = "invitation"
)

// Bookmark is one durable marker. At most one bookmark exists per
// (kind, jid) pair.
type Bookmark struct {
	ID       string
	Kind     BookmarkKind
	JID      string
	Name     string
	Autojoin bool
	Message  string
	Inviter  string
	Reason   string
}

// BookmarkTable is the local mirror of the server-side bookmark list.
// Order is insertion order, matching what gets written back wholesale.
type BookmarkTable struct {
	mu    sync.RWMutex
	items []Bookmark
	byKey map[string]int // kind+"\x00"+jid -> index
	byID  map[string]int
}

// NewBookmarkTable creates an empty bookmark table.
func NewBookmarkTable() *BookmarkTable {
	return &BookmarkTable{
		byKey: make(map[string]int),
		byID:  make(map[string]int),
	}
}

func bookmarkKey(kind BookmarkKind, jid string) string {
	return string(kind) + "\x00" + jid
}

// ReplaceAll swaps the table wholesale for a server snapshot. Duplicate
// (kind, jid) pairs in the snapshot keep the first occurrence.
func (t *BookmarkTable) ReplaceAll(items []Bookmark) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = nil
	t.byKey = make(map[string]int)
	t.byID = make(map[string]int)
	for _, b := range items {
		t.addLocked(b)
	}
}

// Add inserts a bookmark. Adding a (kind, jid) pair that already exists is a
// no-op; the return value reports whether the set changed.
func (t *BookmarkTable) Add(b Bookmark) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addLocked(b)
}

func (t *BookmarkTable) addLocked(b Bookmark) bool {
	key := bookmarkKey(b.Kind, b.JID)
	if _, exists := t.byKey[key]; exists {
		return false
	}
	t.byKey[key] = len(t.items)
	if b.ID != "" {
		t.byID[b.ID] = len(t.items)
	}
	t.items = append(t.items, b)
	return true
}

// Remove deletes a bookmark by id and reports whether it existed.
func (t *BookmarkTable) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.byID[id]
	if !ok {
		return false
	}
	removed := t.items[i]
	t.items = append(t.items[:i], t.items[i+1:]...)
	delete(t.byID, id)
	delete(t.byKey, bookmarkKey(removed.Kind, removed.JID))
	for j := i; j < len(t.items); j++ {
		t.byID[t.items[j].ID] = j
		t.byKey[bookmarkKey(t.items[j].Kind, t.items[j].JID)] = j
	}
	return true
}

// RemoveByKey deletes the bookmark for a (kind, jid) pair if present.
func (t *BookmarkTable) RemoveByKey(kind BookmarkKind, jid string) bool {
	t.mu.RLock()
	i, ok := t.byKey[bookmarkKey(kind, jid)]
	var id string
	if ok {
		id = t.items[i].ID
	}
	t.mu.RUnlock()
	if !ok {
		return false
	}
	return t.Remove(id)
}

// Find returns the bookmark for a (kind, jid) pair.
func (t *BookmarkTable) Find(kind BookmarkKind, jid string) (Bookmark, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i, ok := t.byKey[bookmarkKey(kind, jid)]; ok {
		return t.items[i], true
	}
	return Bookmark{}, false
}

// All returns a copy of the bookmark list in insertion order.
func (t *BookmarkTable) All() []Bookmark {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Bookmark, len(t.items))
	copy(out, t.items)
	return out
}

// ByKind returns the bookmarks of one kind in insertion order.
func (t *BookmarkTable) ByKind(kind BookmarkKind) []Bookmark {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Bookmark
	for _, b := range t.items {
		if b.Kind == kind {
			out = append(out, b)
		}
	}
	return out
}

// Clear removes all bookmarks.
func (t *BookmarkTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = nil
	t.byKey = make(map[string]int)
	t.byID = make(map[string]int)
}
