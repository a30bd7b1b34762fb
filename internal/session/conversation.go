package session

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chamale-rac/xmpp/internal/bus"
	"github.com/chamale-rac/xmpp/internal/store"
	"github.com/chamale-rac/xmpp/internal/wire"
)

// notifyWindow is how far in the past a live message may be stamped and
// still raise a notification. Offline deliveries replayed on connect carry
// older stamps and stay silent.
const notifyWindow = time.Minute

// SendMessage sends a one-to-one message and appends it optimistically.
// The server echo carries the same id and deduplicates against this copy.
func (s *Session) SendMessage(to, body string) error {
	if body == "" {
		return fmt.Errorf("empty message body")
	}
	id := newID()
	m := wire.New("message", "to", to, "type", "chat", "id", id).
		Append(wire.New("body").WithText(body))
	if err := s.send(m); err != nil {
		return err
	}

	msg := store.Message{
		ID:        id,
		From:      s.LocalBare(),
		To:        to,
		Body:      body,
		Timestamp: time.Now(),
		Outgoing:  true,
	}
	s.store.Conversations.Ensure(to)
	if s.store.Conversations.Append(to, msg) {
		s.persistMessage(to, msg)
		s.bus.Publish(bus.Event{Kind: bus.KindMessageAdded, Payload: to})
	}
	return nil
}

// SendGroupMessage sends a room message. The room reflects it back to every
// occupant, us included; the shared id collapses the reflection into the
// optimistic copy.
func (s *Session) SendGroupMessage(room, body string) error {
	if body == "" {
		return fmt.Errorf("empty message body")
	}
	id := newID()
	m := wire.New("message", "to", room, "type", "groupchat", "id", id).
		Append(wire.New("body").WithText(body))
	if err := s.send(m); err != nil {
		return err
	}

	msg := store.Message{
		ID:        id,
		From:      s.Nickname(),
		To:        room,
		Body:      body,
		Timestamp: time.Now(),
		Outgoing:  true,
	}
	s.store.Conversations.Ensure(room)
	if s.store.Conversations.Append(room, msg) {
		s.persistMessage(room, msg)
		s.bus.Publish(bus.Event{Kind: bus.KindMessageAdded, Payload: room})
	}
	return nil
}

// handleChatMessage reconciles a live one-to-one message. Carbon-style
// echoes of our own sends resolve to the recipient's conversation.
func (s *Session) handleChatMessage(ev wire.ChatMessage) {
	local := s.LocalBare()
	peer := ev.From
	outgoing := false
	if ev.From == local {
		peer = ev.To
		outgoing = true
	}
	if peer == "" {
		s.log.Debug("dropping message without addressable peer")
		return
	}

	stamp := ev.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}
	id := ev.ID
	if id == "" {
		// No id means no dedup handle; synthesize one so the append
		// machinery stays uniform.
		id = newID()
	}

	msg := store.Message{
		ID:        id,
		From:      ev.From,
		To:        ev.To,
		Body:      ev.Body,
		Timestamp: stamp,
		Outgoing:  outgoing,
	}

	s.store.Contacts.Ensure(peer)
	s.store.Conversations.Ensure(peer)
	if !s.store.Conversations.Append(peer, msg) {
		return
	}
	s.persistMessage(peer, msg)

	if !outgoing && peer != s.Selected() {
		s.store.Conversations.IncrementUnread(peer)
		s.persistUnread(peer)
	}
	s.bus.Publish(bus.Event{Kind: bus.KindMessageAdded, Payload: peer})

	if !outgoing && time.Since(stamp) < notifyWindow {
		s.notifyToast(fmt.Sprintf("%s: %s", peer, ev.Body))
	}
}

// handleGroupMessage reconciles a live room message keyed by the room's
// conversation. Our nickname identifies reflections of our own sends.
func (s *Session) handleGroupMessage(ev wire.GroupMessage) {
	if ev.Room == "" || ev.Body == "" {
		return
	}
	own := ev.Nick == s.Nickname()

	stamp := ev.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}
	id := ev.ID
	if id == "" {
		id = newID()
	}

	msg := store.Message{
		ID:        id,
		From:      ev.Nick,
		To:        ev.Room,
		Body:      ev.Body,
		Timestamp: stamp,
		Outgoing:  own,
	}

	s.store.Groups.Ensure(ev.Room)
	s.store.Conversations.Ensure(ev.Room)
	if !s.store.Conversations.Append(ev.Room, msg) {
		return
	}
	s.persistMessage(ev.Room, msg)

	if !own && ev.Room != s.Selected() {
		s.store.Conversations.IncrementUnread(ev.Room)
		s.persistUnread(ev.Room)
	}
	s.bus.Publish(bus.Event{Kind: bus.KindMessageAdded, Payload: ev.Room})

	if !own && time.Since(stamp) < notifyWindow {
		s.notifyToast(fmt.Sprintf("%s in %s: %s", ev.Nick, ev.Room, ev.Body))
	}
}

// handleHistoryResult folds one archived message into its conversation.
// History replays are silent: no unread accounting, no notifications.
func (s *Session) handleHistoryResult(ev wire.HistoryResult) {
	local := s.LocalBare()
	peer := ev.From
	outgoing := false
	if ev.From == local {
		peer = ev.To
		outgoing = true
	}
	if peer == "" || ev.ID == "" {
		return
	}

	msg := store.Message{
		ID:        ev.ID,
		From:      ev.From,
		To:        ev.To,
		Body:      ev.Body,
		Timestamp: ev.Stamp,
		Outgoing:  outgoing,
	}
	s.store.Conversations.Ensure(peer)
	if s.store.Conversations.Append(peer, msg) {
		s.persistMessage(peer, msg)
		s.bus.Publish(bus.Event{Kind: bus.KindMessageAdded, Payload: peer})
	}
}

// RequestHistory queries the server archive for the most recent page of
// messages exchanged with a peer. Results stream in as individual archive
// items; the closing ack is matched by correlation id and discarded.
// Unanswered requests are simply re-issued by the caller.
func (s *Session) RequestHistory(peer string) {
	id := newID()
	s.trackPending(id, pendingOp{kind: pendingHistory, jid: peer})

	form := wire.NewNS(wire.NSData, "x", "type", "submit").
		Append(
			wire.New("field", "var", "FORM_TYPE", "type", "hidden").
				Append(wire.New("value").WithText(wire.NSMAM)),
			wire.New("field", "var", "with").
				Append(wire.New("value").WithText(peer)),
		)
	set := wire.NewNS("http://jabber.org/protocol/rsm", "set").
		Append(wire.New("max").WithText(fmt.Sprintf("%d", s.historyPageSize)))

	iq := wire.New("iq", "type", "set", "id", id).
		Append(wire.NewNS(wire.NSMAM, "query", "queryid", id).Append(form, set))
	s.sendQuiet(iq)
}

// handleIQResult resolves the remaining correlated one-shot replies: room
// configuration acks, avatar vCards and history fins. Anything without a
// tracked id is dropped.
func (s *Session) handleIQResult(ev wire.IQResult) {
	kind, ok := s.pendingKindOf(ev.ID)
	if !ok {
		s.log.Debug("dropping uncorrelated reply", zap.String("id", ev.ID))
		return
	}

	switch kind {
	case pendingRoomConfig:
		op, _ := s.takePending(ev.ID, pendingRoomConfig)
		if ev.Type == "error" {
			s.log.Warn("room configuration rejected",
				zap.String("room", op.jid),
				zap.String("condition", ev.Error))
			s.bus.Publish(bus.Event{Kind: bus.KindGroupConfigFailed, Payload: op.jid})
			return
		}
		s.log.Info("room configured", zap.String("room", op.jid))
	case pendingAvatar:
		op, _ := s.takePending(ev.ID, pendingAvatar)
		if ev.Type == "error" {
			s.log.Debug("avatar fetch failed", zap.String("jid", op.jid), zap.String("condition", ev.Error))
			return
		}
		s.applyVCardReply(op.jid, ev.El)
	case pendingHistory:
		s.takePending(ev.ID, pendingHistory)
	default:
		s.log.Debug("dropping reply with unexpected shape",
			zap.String("id", ev.ID), zap.String("type", ev.Type))
	}
}
