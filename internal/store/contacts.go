package store

import (
	"sort"
	"strings"
	"sync"
)

// Subscription is the roster subscription state for a contact.
type Subscription string

const (
	SubscriptionNone    Subscription = "none"
	SubscriptionTo      Subscription = "to"
	SubscriptionFrom    Subscription = "from"
	SubscriptionBoth    Subscription = "both"
	SubscriptionPending Subscription = "pending"
)

// Show is the liveness state of a contact.
type Show string

const (
	ShowChat    Show = "chat"
	ShowAway    Show = "away"
	ShowDND     Show = "dnd"
	ShowXA      Show = "xa"
	ShowOffline Show = "offline"
	ShowUnknown Show = "unknown"
)

// Contact is one roster peer. Created lazily on first presence, roster
// entry, message, or explicit conversation start; never deleted except on
// full teardown.
type Contact struct {
	JID          string
	Name         string
	Subscription Subscription
	Show         Show
	Status       string
	AvatarHash   string
	Avatar       []byte
}

// ContactTable manages contacts keyed by bare jid.
type ContactTable struct {
	mu       sync.RWMutex
	contacts map[string]*Contact
}

// NewContactTable creates an empty contact table.
func NewContactTable() *ContactTable {
	return &ContactTable{contacts: make(map[string]*Contact)}
}

// Ensure returns the contact for the jid, creating it with defaults when
// absent. New contacts start offline with the jid localpart as name.
func (t *ContactTable) Ensure(jid string) Contact {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.ensureLocked(jid)
}

func (t *ContactTable) ensureLocked(jid string) *Contact {
	if c, ok := t.contacts[jid]; ok {
		return c
	}
	c := &Contact{
		JID:          jid,
		Name:         localpart(jid),
		Subscription: SubscriptionNone,
		Show:         ShowOffline,
	}
	t.contacts[jid] = c
	return c
}

// SetRosterInfo applies a roster snapshot entry: name and subscription only.
// Roster snapshots carry no liveness data, so presence fields are untouched.
func (t *ContactTable) SetRosterInfo(jid, name string, sub Subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.ensureLocked(jid)
	if name != "" {
		c.Name = name
	}
	c.Subscription = sub
}

// SetPresence updates the liveness fields of a contact.
func (t *ContactTable) SetPresence(jid string, show Show, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.ensureLocked(jid)
	c.Show = show
	c.Status = status
}

// SetAvatarHash records an announced avatar hash; the blob itself is fetched
// separately.
func (t *ContactTable) SetAvatarHash(jid, hash string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureLocked(jid).AvatarHash = hash
}

// SetAvatar stores a fetched avatar blob.
func (t *ContactTable) SetAvatar(jid string, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureLocked(jid).Avatar = data
}

// Get returns a copy of the contact and whether it exists.
func (t *ContactTable) Get(jid string) (Contact, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.contacts[jid]
	if !ok {
		return Contact{}, false
	}
	return *c, true
}

// All returns copies of all contacts ordered by jid.
func (t *ContactTable) All() []Contact {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Contact, 0, len(t.contacts))
	for _, c := range t.contacts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JID < out[j].JID })
	return out
}

// Count returns the number of contacts.
func (t *ContactTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.contacts)
}

// Clear removes all contacts.
func (t *ContactTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.contacts = make(map[string]*Contact)
}

func localpart(jid string) string {
	if i := strings.IndexByte(jid, '@'); i > 0 {
		return jid[:i]
	}
	return jid
}
