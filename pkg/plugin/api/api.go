// Package api bridges the session engine to the plugin surface. Plugins see
// a read-mostly projection of the entity model plus the event stream; the
// only mutation they get is sending messages.
package api

import (
	"sync"

	"github.com/chamale-rac/xmpp/internal/bus"
	"github.com/chamale-rac/xmpp/internal/session"
	"github.com/chamale-rac/xmpp/internal/store"
	"github.com/chamale-rac/xmpp/pkg/plugin"
)

// SessionAPI implements plugin.API on top of a running session.
type SessionAPI struct {
	sess *session.Session

	mu        sync.RWMutex
	nextID    int
	msgSubs   map[int]func(plugin.Message)
	toastSubs map[int]func(string)
	connSubs  map[int]func(bool)

	stop func()
}

// New creates the plugin API bridge and subscribes it to the session's
// event stream. Call Close when the host shuts down.
func New(sess *session.Session) *SessionAPI {
	a := &SessionAPI{
		sess:      sess,
		msgSubs:   make(map[int]func(plugin.Message)),
		toastSubs: make(map[int]func(string)),
		connSubs:  make(map[int]func(bool)),
	}

	events, unsub := sess.Bus().Subscribe("", 64)
	a.stop = unsub
	go a.pump(events)
	return a
}

// Close detaches the bridge from the event stream.
func (a *SessionAPI) Close() {
	if a.stop != nil {
		a.stop()
	}
}

func (a *SessionAPI) pump(events <-chan bus.Event) {
	for evt := range events {
		switch evt.Kind {
		case bus.KindMessageAdded:
			peer, _ := evt.Payload.(string)
			a.emitLatestMessage(peer)
		case bus.KindToast:
			text, _ := evt.Payload.(string)
			a.emitToast(text)
		case bus.KindConnectionChanged:
			online, _ := evt.Payload.(bool)
			a.emitConnection(online)
		}
	}
}

func (a *SessionAPI) emitLatestMessage(peer string) {
	if peer == "" {
		return
	}
	msgs := a.sess.Conversation(peer)
	if len(msgs) == 0 {
		return
	}
	msg := toPluginMessage(msgs[len(msgs)-1])

	a.mu.RLock()
	handlers := make([]func(plugin.Message), 0, len(a.msgSubs))
	for _, h := range a.msgSubs {
		handlers = append(handlers, h)
	}
	a.mu.RUnlock()

	for _, h := range handlers {
		go h(msg)
	}
}

func (a *SessionAPI) emitToast(text string) {
	a.mu.RLock()
	handlers := make([]func(string), 0, len(a.toastSubs))
	for _, h := range a.toastSubs {
		handlers = append(handlers, h)
	}
	a.mu.RUnlock()

	for _, h := range handlers {
		go h(text)
	}
}

func (a *SessionAPI) emitConnection(online bool) {
	a.mu.RLock()
	handlers := make([]func(bool), 0, len(a.connSubs))
	for _, h := range a.connSubs {
		handlers = append(handlers, h)
	}
	a.mu.RUnlock()

	for _, h := range handlers {
		go h(online)
	}
}

// GetContacts returns all contacts
func (a *SessionAPI) GetContacts() []plugin.Contact {
	contacts := a.sess.Contacts()
	out := make([]plugin.Contact, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, plugin.Contact{
			JID:          c.JID,
			Name:         c.Name,
			Subscription: string(c.Subscription),
			Show:         string(c.Show),
			Status:       c.Status,
		})
	}
	return out
}

// GetContact returns a specific contact
func (a *SessionAPI) GetContact(jid string) *plugin.Contact {
	c, ok := a.sess.Store().Contacts.Get(jid)
	if !ok {
		return nil
	}
	return &plugin.Contact{
		JID:          c.JID,
		Name:         c.Name,
		Subscription: string(c.Subscription),
		Show:         string(c.Show),
		Status:       c.Status,
	}
}

// GetGroups returns all known rooms
func (a *SessionAPI) GetGroups() []plugin.Group {
	groups := a.sess.Groups()
	out := make([]plugin.Group, 0, len(groups))
	for _, g := range groups {
		out = append(out, plugin.Group{
			JID:          g.JID,
			Name:         g.Name,
			IsJoined:     g.IsJoined,
			Participants: g.Participants,
		})
	}
	return out
}

// SendMessage sends a one-to-one message
func (a *SessionAPI) SendMessage(to, body string) error {
	return a.sess.SendMessage(to, body)
}

// GetHistory returns conversation history
func (a *SessionAPI) GetHistory(jid string, limit int) []plugin.Message {
	msgs := a.sess.Conversation(jid)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]plugin.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toPluginMessage(m))
	}
	return out
}

// GetUnreadCount returns the unread message count
func (a *SessionAPI) GetUnreadCount(jid string) int {
	return a.sess.Store().Conversations.Unread(jid)
}

// OnMessage registers a message handler
func (a *SessionAPI) OnMessage(handler func(msg plugin.Message)) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.msgSubs[id] = handler
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.msgSubs, id)
		a.mu.Unlock()
	}
}

// OnToast registers a notification handler
func (a *SessionAPI) OnToast(handler func(text string)) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.toastSubs[id] = handler
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.toastSubs, id)
		a.mu.Unlock()
	}
}

// OnConnectionChanged registers a connectivity handler
func (a *SessionAPI) OnConnectionChanged(handler func(online bool)) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.connSubs[id] = handler
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.connSubs, id)
		a.mu.Unlock()
	}
}

func toPluginMessage(m store.Message) plugin.Message {
	return plugin.Message{
		ID:        m.ID,
		From:      m.From,
		To:        m.To,
		Body:      m.Body,
		Timestamp: m.Timestamp,
		Outgoing:  m.Outgoing,
	}
}
