package store

import (
	"sort"
	"sync"
	"time"
)

// Message is one entry of a conversation. ID is the deduplication key: no
// two messages with the same id coexist in the same conversation.
type Message struct {
	ID        string
	From      string // bare jid, or room nickname for group conversations
	To        string
	Body      string
	Timestamp time.Time
	Outgoing  bool
}

type conversation struct {
	messages []Message
	seen     map[string]struct{}
	unread   int
}

// ConversationTable manages message sequences keyed by peer jid (contact or
// room) plus the per-conversation unread counters.
type ConversationTable struct {
	mu    sync.RWMutex
	convs map[string]*conversation
}

// NewConversationTable creates an empty conversation table.
func NewConversationTable() *ConversationTable {
	return &ConversationTable{convs: make(map[string]*conversation)}
}

func (t *ConversationTable) ensureLocked(peer string) *conversation {
	if c, ok := t.convs[peer]; ok {
		return c
	}
	c := &conversation{seen: make(map[string]struct{})}
	t.convs[peer] = c
	return c
}

// Ensure creates an empty conversation for the peer if absent.
func (t *ConversationTable) Ensure(peer string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureLocked(peer)
}

// Append adds a message to the peer's conversation. Appending an id already
// present is a no-op; the return value reports whether the message was added.
// Within one conversation append order is arrival order.
func (t *ConversationTable) Append(peer string, msg Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.ensureLocked(peer)
	if msg.ID != "" {
		if _, dup := c.seen[msg.ID]; dup {
			return false
		}
		c.seen[msg.ID] = struct{}{}
	}
	c.messages = append(c.messages, msg)
	return true
}

// Messages returns a copy of the peer's messages in append order.
func (t *ConversationTable) Messages(peer string) []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.convs[peer]
	if !ok {
		return nil
	}
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Count returns the number of messages in the peer's conversation.
func (t *ConversationTable) Count(peer string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if c, ok := t.convs[peer]; ok {
		return len(c.messages)
	}
	return 0
}

// Peers returns all conversation keys ordered by jid.
func (t *ConversationTable) Peers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.convs))
	for peer := range t.convs {
		out = append(out, peer)
	}
	sort.Strings(out)
	return out
}

// IncrementUnread bumps the unread counter for a peer by one.
func (t *ConversationTable) IncrementUnread(peer string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureLocked(peer).unread++
}

// ClearUnread resets the unread counter for a peer to absent.
func (t *ConversationTable) ClearUnread(peer string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.convs[peer]; ok {
		c.unread = 0
	}
}

// Unread returns the unread count for a peer.
func (t *ConversationTable) Unread(peer string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if c, ok := t.convs[peer]; ok {
		return c.unread
	}
	return 0
}

// UnreadCounts returns the map of peers with a nonzero unread counter.
func (t *ConversationTable) UnreadCounts() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]int)
	for peer, c := range t.convs {
		if c.unread > 0 {
			out[peer] = c.unread
		}
	}
	return out
}

// Clear removes all conversations.
func (t *ConversationTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.convs = make(map[string]*conversation)
}
