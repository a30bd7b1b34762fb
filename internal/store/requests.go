package store

import (
	"sort"
	"sync"
)

// SubscriptionRequest is a transient inbound subscription offer. It exists
// only between receipt and its accept/deny resolution.
type SubscriptionRequest struct {
	From   string
	Status string
}

// GroupInvitation is a transient inbound room invite with the same lifecycle.
type GroupInvitation struct {
	Room    string
	Inviter string
	Reason  string
}

// RequestTable manages pending subscription requests and group invitations.
type RequestTable struct {
	mu            sync.RWMutex
	subscriptions map[string]SubscriptionRequest // keyed by from jid
	invitations   map[string]GroupInvitation     // keyed by room jid
}

// NewRequestTable creates an empty request table.
func NewRequestTable() *RequestTable {
	return &RequestTable{
		subscriptions: make(map[string]SubscriptionRequest),
		invitations:   make(map[string]GroupInvitation),
	}
}

// AddSubscription records an inbound offer. Idempotent per from jid; the
// return value reports whether a new entry was added.
func (t *RequestTable) AddSubscription(r SubscriptionRequest) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.subscriptions[r.From]; exists {
		return false
	}
	t.subscriptions[r.From] = r
	return true
}

// RemoveSubscription resolves an offer.
func (t *RequestTable) RemoveSubscription(from string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subscriptions, from)
}

// Subscriptions returns pending offers ordered by jid.
func (t *RequestTable) Subscriptions() []SubscriptionRequest {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]SubscriptionRequest, 0, len(t.subscriptions))
	for _, r := range t.subscriptions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].From < out[j].From })
	return out
}

// HasSubscription reports whether an offer from the jid is pending.
func (t *RequestTable) HasSubscription(from string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.subscriptions[from]
	return ok
}

// AddInvitation records an inbound room invite, idempotent per room.
func (t *RequestTable) AddInvitation(inv GroupInvitation) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.invitations[inv.Room]; exists {
		return false
	}
	t.invitations[inv.Room] = inv
	return true
}

// RemoveInvitation resolves an invite.
func (t *RequestTable) RemoveInvitation(room string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.invitations, room)
}

// Invitations returns pending invites ordered by room jid.
func (t *RequestTable) Invitations() []GroupInvitation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]GroupInvitation, 0, len(t.invitations))
	for _, inv := range t.invitations {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })
	return out
}

// HasInvitation reports whether an invite for the room is pending.
func (t *RequestTable) HasInvitation(room string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.invitations[room]
	return ok
}

// Clear removes all pending requests.
func (t *RequestTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscriptions = make(map[string]SubscriptionRequest)
	t.invitations = make(map[string]GroupInvitation)
}
