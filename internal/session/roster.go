package session

import (
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"

	"github.com/chamale-rac/xmpp/internal/bus"
	"github.com/chamale-rac/xmpp/internal/store"
	"github.com/chamale-rac/xmpp/internal/wire"
)

// RequestRoster asks the server for the full contact list. The reply is
// correlated by iq id and applied as a snapshot; server pushes apply
// incrementally without a tracked id.
func (s *Session) RequestRoster() {
	id := newID()
	s.trackPending(id, pendingOp{kind: pendingRoster})
	iq := wire.New("iq", "type", "get", "id", id).
		Append(wire.NewNS(wire.NSRoster, "query"))
	s.sendQuiet(iq)
}

func (s *Session) handleRosterReply(ev wire.RosterReply) {
	if !ev.Push {
		if _, ok := s.takePending(ev.ID, pendingRoster); !ok {
			s.log.Debug("dropping uncorrelated roster reply", zap.String("id", ev.ID))
			return
		}
	}

	for _, item := range ev.Items {
		sub := mapSubscription(item.Subscription, item.Ask)
		if item.Subscription == "remove" {
			// Roster pushes use a removal marker rather than omission.
			s.store.Contacts.SetRosterInfo(item.JID, item.Name, store.SubscriptionNone)
			continue
		}
		s.store.Contacts.SetRosterInfo(item.JID, item.Name, sub)
		s.store.Conversations.Ensure(item.JID)
		if s.db != nil {
			if err := s.db.UpsertRosterEntry(item.JID, item.Name, sub); err != nil {
				s.log.Warn("failed to cache roster entry", zap.String("jid", item.JID), zap.Error(err))
			}
		}
	}
	s.bus.Publish(bus.Event{Kind: bus.KindContactUpdated})
}

func mapSubscription(sub, ask string) store.Subscription {
	switch sub {
	case "to":
		return store.SubscriptionTo
	case "from":
		return store.SubscriptionFrom
	case "both":
		return store.SubscriptionBoth
	default:
		if ask == "subscribe" {
			return store.SubscriptionPending
		}
		return store.SubscriptionNone
	}
}

// handlePresence reconciles a liveness update. Roster metadata is never
// touched here; presence and membership converge independently.
func (s *Session) handlePresence(ev wire.Presence) {
	show := store.ShowUnknown
	status := ev.Status
	switch ev.Type {
	case "subscribed", "unsubscribe":
		// Subscription bookkeeping only; the server follows up with a
		// real available presence carrying the liveness.
		return
	case "unavailable":
		show = store.ShowOffline
	case "error":
		show = store.ShowUnknown
	case "unsubscribed":
		// The peer revoked or declined; liveness is no longer observable.
		show = store.ShowUnknown
	default:
		show = mapShow(ev.Show)
	}
	s.store.Contacts.Ensure(ev.From)
	s.store.Contacts.SetPresence(ev.From, show, status)
	s.bus.Publish(bus.Event{Kind: bus.KindContactUpdated, Payload: ev.From})
}

func mapShow(show string) store.Show {
	switch show {
	case "away":
		return store.ShowAway
	case "dnd":
		return store.ShowDND
	case "xa":
		return store.ShowXA
	case "", "chat":
		return store.ShowChat
	default:
		return store.ShowUnknown
	}
}

// handleSubscribeRequest records an inbound subscription offer. The offer
// is idempotent on the requesting address and durably bookmarked so it
// survives a session restart.
func (s *Session) handleSubscribeRequest(ev wire.SubscribeRequest) {
	if !s.store.Requests.AddSubscription(store.SubscriptionRequest{From: ev.From, Status: ev.Status}) {
		return
	}
	s.enqueueBookmarkAdd(store.Bookmark{
		ID:      newID(),
		Kind:    store.BookmarkSubscription,
		JID:     ev.From,
		Message: ev.Status,
	})
	s.bus.Publish(bus.Event{Kind: bus.KindSubscriptionAsked, Payload: ev.From})
	s.notifyToast(fmt.Sprintf("%s wants to add you", ev.From))
}

// AddContact offers presence subscription to a peer and provisions the
// local entities so the conversation is usable immediately.
func (s *Session) AddContact(jid string) error {
	p := wire.New("presence", "to", jid, "type", "subscribe")
	if err := s.send(p); err != nil {
		return err
	}
	s.store.Contacts.Ensure(jid)
	s.store.Conversations.Ensure(jid)
	s.bus.Publish(bus.Event{Kind: bus.KindContactUpdated, Payload: jid})
	return nil
}

// RemoveContact removes a peer from the server-side contact list and
// revokes the mutual subscription.
func (s *Session) RemoveContact(jid string) error {
	iq := wire.New("iq", "type", "set", "id", newID()).
		Append(wire.NewNS(wire.NSRoster, "query").
			Append(wire.New("item", "jid", jid, "subscription", "remove")))
	if err := s.send(iq); err != nil {
		return err
	}
	s.store.Contacts.SetRosterInfo(jid, "", store.SubscriptionNone)
	s.bus.Publish(bus.Event{Kind: bus.KindContactUpdated, Payload: jid})
	return nil
}

// AcceptSubscription approves a pending subscription offer, clears its
// transient and durable records and refreshes the contact list.
func (s *Session) AcceptSubscription(jid string) error {
	return s.answerSubscription(jid, "subscribed")
}

// DenySubscription declines a pending subscription offer.
func (s *Session) DenySubscription(jid string) error {
	return s.answerSubscription(jid, "unsubscribed")
}

func (s *Session) answerSubscription(jid, answer string) error {
	if err := s.send(wire.New("presence", "to", jid, "type", answer)); err != nil {
		return err
	}
	s.store.Requests.RemoveSubscription(jid)
	s.enqueueBookmarkRemoveByKey(store.BookmarkSubscription, jid)
	s.RequestRoster()
	s.bus.Publish(bus.Event{Kind: bus.KindContactUpdated, Payload: jid})
	return nil
}

// handleAvatarUpdate reacts to an avatar hash announcement. A changed hash
// triggers a one-shot vCard fetch for the image bytes.
func (s *Session) handleAvatarUpdate(ev wire.AvatarUpdate) {
	if ev.Hash == "" {
		return
	}
	if c, ok := s.store.Contacts.Get(ev.From); ok && c.AvatarHash == ev.Hash {
		return
	}
	s.store.Contacts.SetAvatarHash(ev.From, ev.Hash)

	id := newID()
	s.trackPending(id, pendingOp{kind: pendingAvatar, jid: ev.From})
	iq := wire.New("iq", "type", "get", "id", id, "to", ev.From).
		Append(wire.NewNS(wire.NSVCardTemp, "vCard"))
	s.sendQuiet(iq)
}

func (s *Session) applyVCardReply(jid string, el wire.Element) {
	vcard := el.ChildNS(wire.NSVCardTemp, "vCard")
	if vcard == nil {
		return
	}
	photo := vcard.Child("PHOTO")
	if photo == nil {
		return
	}
	b64 := photo.ChildText("BINVAL")
	if b64 == "" {
		return
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		s.log.Debug("discarding malformed avatar payload", zap.String("jid", jid), zap.Error(err))
		return
	}
	s.store.Contacts.SetAvatar(jid, data)
	s.bus.Publish(bus.Event{Kind: bus.KindContactUpdated, Payload: jid})
}

func (s *Session) notifyToast(text string) {
	if s.OwnShow() != store.ShowChat {
		return
	}
	s.bus.Publish(bus.Event{Kind: bus.KindToast, Payload: text})
}
