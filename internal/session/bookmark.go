package session

import (
	"go.uber.org/zap"

	"github.com/chamale-rac/xmpp/internal/bus"
	"github.com/chamale-rac/xmpp/internal/store"
	"github.com/chamale-rac/xmpp/internal/wire"
)

// FetchBookmarks requests the server-side bookmark list. The reply replaces
// the local mirror wholesale and re-derives the transient records.
func (s *Session) FetchBookmarks() {
	id := newID()
	s.trackPending(id, pendingOp{kind: pendingBookmarks})
	iq := wire.New("iq", "type", "get", "id", id).
		Append(wire.NewNS(wire.NSPrivate, "query").
			Append(wire.NewNS(wire.NSBookmarks, "storage")))
	s.sendQuiet(iq)
}

func (s *Session) handleBookmarkSnapshot(ev wire.BookmarkSnapshot) {
	if _, ok := s.takePending(ev.ID, pendingBookmarks); !ok {
		s.log.Debug("dropping uncorrelated bookmark snapshot", zap.String("id", ev.ID))
		return
	}

	items := make([]store.Bookmark, 0, len(ev.Items))
	for _, it := range ev.Items {
		b := store.Bookmark{
			ID:       it.ID,
			Kind:     store.BookmarkKind(it.Kind),
			JID:      it.JID,
			Name:     it.Name,
			Autojoin: it.Autojoin,
			Message:  it.Message,
			Inviter:  it.Inviter,
			Reason:   it.Reason,
		}
		if b.ID == "" {
			b.ID = newID()
		}
		items = append(items, b)
	}
	s.store.Bookmarks.ReplaceAll(items)

	// Durable markers re-seed the transient request records after a
	// restart; the add paths are idempotent so repeats are harmless.
	for _, b := range s.store.Bookmarks.All() {
		switch b.Kind {
		case store.BookmarkSubscription:
			if s.store.Requests.AddSubscription(store.SubscriptionRequest{From: b.JID, Status: b.Message}) {
				s.bus.Publish(bus.Event{Kind: bus.KindSubscriptionAsked, Payload: b.JID})
			}
		case store.BookmarkInvitation:
			s.store.Groups.Ensure(b.JID)
			if s.store.Requests.AddInvitation(store.GroupInvitation{Room: b.JID, Inviter: b.Inviter, Reason: b.Reason}) {
				s.bus.Publish(bus.Event{Kind: bus.KindInvitationReceived, Payload: b.JID})
			}
		case store.BookmarkAutojoin:
			s.store.Groups.Ensure(b.JID)
			s.store.Groups.SetName(b.JID, b.Name)
		}
	}

	s.mu.Lock()
	s.bookmarksDone = true
	s.mu.Unlock()
	s.log.Info("bookmarks loaded", zap.Int("count", len(items)))
	s.maybeAutojoin()
}

// enqueueBookmarkAdd schedules an add through the serialized write queue.
// The local table decides idempotency; only an actual mutation is pushed.
func (s *Session) enqueueBookmarkAdd(b store.Bookmark) {
	s.enqueueBookmarkOp(func() {
		if s.store.Bookmarks.Add(b) {
			s.pushBookmarks()
		}
	})
}

// enqueueBookmarkRemoveByKey schedules a removal by (kind, jid).
func (s *Session) enqueueBookmarkRemoveByKey(kind store.BookmarkKind, jid string) {
	s.enqueueBookmarkOp(func() {
		if s.store.Bookmarks.RemoveByKey(kind, jid) {
			s.pushBookmarks()
		}
	})
}

// enqueueBookmarkOp hands a mutation to the single bookmark worker. Every
// write of the shared list runs strictly after the previous one, so no
// push can overwrite a concurrent mutation.
func (s *Session) enqueueBookmarkOp(op func()) {
	select {
	case s.bookmarkOps <- op:
	case <-s.done:
	}
}

func (s *Session) bookmarkWorker() {
	for {
		select {
		case op := <-s.bookmarkOps:
			op()
		case <-s.done:
			return
		}
	}
}

// pushBookmarks writes the entire local bookmark list to private storage.
// The protocol has no partial update; the list always travels whole.
func (s *Session) pushBookmarks() {
	all := s.store.Bookmarks.All()
	items := make([]wire.BookmarkItem, 0, len(all))
	for _, b := range all {
		items = append(items, wire.BookmarkItem{
			ID:       b.ID,
			Kind:     string(b.Kind),
			JID:      b.JID,
			Name:     b.Name,
			Autojoin: b.Autojoin,
			Message:  b.Message,
			Inviter:  b.Inviter,
			Reason:   b.Reason,
		})
	}

	iq := wire.New("iq", "type", "set", "id", newID()).
		Append(wire.NewNS(wire.NSPrivate, "query").
			Append(wire.EncodeBookmarks(items)))
	if err := s.send(iq); err != nil {
		s.log.Warn("failed to persist bookmarks", zap.Error(err))
	}
}

// maybeAutojoin rejoins every bookmarked room once both the room directory
// and the bookmark list have arrived for this connection. The one-shot
// guard keeps a duplicate reply from joining rooms twice.
func (s *Session) maybeAutojoin() {
	s.mu.Lock()
	if !s.directoryDone || !s.bookmarksDone || s.autojoinDone {
		s.mu.Unlock()
		return
	}
	s.autojoinDone = true
	s.mu.Unlock()

	for _, b := range s.store.Bookmarks.ByKind(store.BookmarkAutojoin) {
		if !b.Autojoin {
			continue
		}
		if g, ok := s.store.Groups.Get(b.JID); ok && g.IsJoined {
			continue
		}
		if err := s.joinRoom(b.JID); err != nil {
			s.log.Warn("autojoin failed", zap.String("room", b.JID), zap.Error(err))
			continue
		}
		s.applyLocalJoin(b.JID)
	}
}
