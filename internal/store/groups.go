package store

import (
	"sort"
	"sync"
)

// Group is a known multi-user room. Leaving clears the joined flag and
// participants but the record persists as a known group.
type Group struct {
	JID            string
	Name           string
	IsPublic       bool
	RequiresInvite bool
	IsJoined       bool
	Participants   []string // nicknames, sorted
}

type groupRecord struct {
	jid            string
	name           string
	isPublic       bool
	requiresInvite bool
	isJoined       bool
	participants   map[string]struct{}
}

// GroupTable manages groups keyed by bare room jid.
type GroupTable struct {
	mu     sync.RWMutex
	groups map[string]*groupRecord
}

// NewGroupTable creates an empty group table.
func NewGroupTable() *GroupTable {
	return &GroupTable{groups: make(map[string]*groupRecord)}
}

func (t *GroupTable) ensureLocked(jid string) *groupRecord {
	if g, ok := t.groups[jid]; ok {
		return g
	}
	g := &groupRecord{
		jid:          jid,
		name:         localpart(jid),
		participants: make(map[string]struct{}),
	}
	t.groups[jid] = g
	return g
}

// Ensure creates a stub for a newly discovered room if absent and reports
// whether the room was already known.
func (t *GroupTable) Ensure(jid string) (known bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, known = t.groups[jid]
	t.ensureLocked(jid)
	return known
}

// SetInfo applies room metadata from a room-info reply.
func (t *GroupTable) SetInfo(jid, name string, isPublic, requiresInvite bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g := t.ensureLocked(jid)
	if name != "" {
		g.name = name
	}
	g.isPublic = isPublic
	g.requiresInvite = requiresInvite
}

// SetName updates just the display name, as directory listings carry.
func (t *GroupTable) SetName(jid, name string) {
	if name == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureLocked(jid).name = name
}

// SetJoined marks a room joined or not. Leaving also clears participants.
func (t *GroupTable) SetJoined(jid string, joined bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g := t.ensureLocked(jid)
	g.isJoined = joined
	if !joined {
		g.participants = make(map[string]struct{})
	}
}

// AddParticipant records a nickname as present. Set union, so repeated join
// presences are idempotent.
func (t *GroupTable) AddParticipant(jid, nick string) {
	if nick == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	g := t.ensureLocked(jid)
	g.participants[nick] = struct{}{}
}

// RemoveParticipant records a nickname as gone. Removing an absent nickname
// is a no-op.
func (t *GroupTable) RemoveParticipant(jid, nick string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if g, ok := t.groups[jid]; ok {
		delete(g.participants, nick)
	}
}

// Get returns a snapshot of the group and whether it exists.
func (t *GroupTable) Get(jid string) (Group, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g, ok := t.groups[jid]
	if !ok {
		return Group{}, false
	}
	return g.snapshot(), true
}

// All returns snapshots of all known groups ordered by jid.
func (t *GroupTable) All() []Group {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Group, 0, len(t.groups))
	for _, g := range t.groups {
		out = append(out, g.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JID < out[j].JID })
	return out
}

// Joined returns snapshots of the rooms currently joined.
func (t *GroupTable) Joined() []Group {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Group
	for _, g := range t.groups {
		if g.isJoined {
			out = append(out, g.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JID < out[j].JID })
	return out
}

// Clear removes all groups.
func (t *GroupTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.groups = make(map[string]*groupRecord)
}

func (g *groupRecord) snapshot() Group {
	parts := make([]string, 0, len(g.participants))
	for nick := range g.participants {
		parts = append(parts, nick)
	}
	sort.Strings(parts)
	return Group{
		JID:            g.jid,
		Name:           g.name,
		IsPublic:       g.isPublic,
		RequiresInvite: g.requiresInvite,
		IsJoined:       g.isJoined,
		Participants:   parts,
	}
}
