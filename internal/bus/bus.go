package bus

import (
	"strings"
	"sync"
	"time"
)

// Event is one state-change notification published by the session engine.
// Kind is a dotted name like "message.added" or "connection.changed".
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the session engine.
const (
	KindContactUpdated     = "contact.updated"
	KindMessageAdded       = "message.added"
	KindGroupUpdated       = "group.updated"
	KindGroupConfigFailed  = "group.config_failed"
	KindSubscriptionAsked  = "subscription.requested"
	KindInvitationReceived = "invitation.received"
	KindConnectionChanged  = "connection.changed"
	KindToast              = "notify.toast"
)

// Bus is an in-process publish/subscribe event bus with prefix filtering.
// It is the projection surface a UI layer consumes.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	prefix string
	ch     chan Event
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// Publish sends an event to every subscriber whose prefix matches the kind.
// Slow subscribers drop events rather than block the engine.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.prefix) {
			select {
			case sub.ch <- evt:
			default:
			}
		}
	}
}

// Subscribe returns a channel receiving events whose kind starts with the
// given prefix ("" matches everything) and an unsubscribe function.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{prefix: prefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
