package session

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chamale-rac/xmpp/internal/bus"
	"github.com/chamale-rac/xmpp/internal/store"
	"github.com/chamale-rac/xmpp/internal/wire"
)

// DiscoverRooms queries the group chat service for its room directory.
// Each listed room that is new locally gets a follow-up room-info query.
func (s *Session) DiscoverRooms() {
	conf := s.ConferenceDomain()
	if conf == "" {
		return
	}
	id := newID()
	s.trackPending(id, pendingOp{kind: pendingDirectory})
	iq := wire.New("iq", "type", "get", "id", id, "to", conf).
		Append(wire.NewNS(wire.NSDiscoItems, "query"))
	s.sendQuiet(iq)
}

func (s *Session) handleRoomDirectory(ev wire.RoomDirectoryReply) {
	if _, ok := s.takePending(ev.ID, pendingDirectory); !ok {
		s.log.Debug("dropping uncorrelated directory reply", zap.String("id", ev.ID))
		return
	}

	for _, item := range ev.Items {
		if item.JID == "" {
			continue
		}
		known := s.store.Groups.Ensure(item.JID)
		s.store.Groups.SetName(item.JID, item.Name)
		if !known {
			s.requestRoomInfo(item.JID)
		}
	}

	s.mu.Lock()
	s.directoryDone = true
	s.mu.Unlock()
	s.bus.Publish(bus.Event{Kind: bus.KindGroupUpdated})
	s.maybeAutojoin()
}

func (s *Session) requestRoomInfo(room string) {
	id := newID()
	s.trackPending(id, pendingOp{kind: pendingRoomInfo, jid: room})
	iq := wire.New("iq", "type", "get", "id", id, "to", room).
		Append(wire.NewNS(wire.NSDiscoInfo, "query"))
	s.sendQuiet(iq)
}

func (s *Session) handleRoomInfo(ev wire.RoomInfoReply) {
	op, ok := s.takePending(ev.ID, pendingRoomInfo)
	if !ok {
		s.log.Debug("dropping uncorrelated room info", zap.String("id", ev.ID))
		return
	}
	room := op.jid
	if room == "" {
		room = ev.From
	}

	isPublic := false
	requiresInvite := false
	for _, f := range ev.Features {
		switch f {
		case wire.FeatureMUCPublic:
			isPublic = true
		case wire.FeatureMUCMembersOnly:
			requiresInvite = true
		}
	}
	s.store.Groups.SetInfo(room, ev.Name, isPublic, requiresInvite)
	s.bus.Publish(bus.Event{Kind: bus.KindGroupUpdated, Payload: room})
}

// CreateGroupOptions carries the settings for a new room.
type CreateGroupOptions struct {
	Description   string
	IsPublic      bool
	CustomAddress string // localpart override, slugified like the name
}

// CreateGroup creates a room on the group service: join as owner, submit
// the configuration form, then bookmark the room for autojoin. The group
// exists locally regardless of whether the service accepts the
// configuration; a rejected form is surfaced as a recoverable event.
func (s *Session) CreateGroup(name string, opts CreateGroupOptions) (string, error) {
	conf := s.ConferenceDomain()
	if conf == "" {
		return "", fmt.Errorf("no group service available")
	}

	local := opts.CustomAddress
	if local == "" {
		local = name
	}
	slug := slugify(local)
	if slug == "" {
		slug = "room-" + newID()[:8]
	}
	room := slug + "@" + conf

	if err := s.joinRoom(room); err != nil {
		return "", err
	}

	id := newID()
	s.trackPending(id, pendingOp{kind: pendingRoomConfig, jid: room})
	form := wire.NewNS(wire.NSData, "x", "type", "submit").
		Append(
			formField("FORM_TYPE", "http://jabber.org/protocol/muc#roomconfig"),
			formField("muc#roomconfig_roomname", name),
			formField("muc#roomconfig_roomdesc", opts.Description),
			formField("muc#roomconfig_publicroom", boolField(opts.IsPublic)),
			formField("muc#roomconfig_membersonly", boolField(!opts.IsPublic)),
			formField("muc#roomconfig_persistentroom", "1"),
		)
	iq := wire.New("iq", "type", "set", "id", id, "to", room).
		Append(wire.NewNS(wire.NSMUCOwner, "query").Append(form))
	s.sendQuiet(iq)

	s.store.Groups.Ensure(room)
	s.store.Groups.SetInfo(room, name, opts.IsPublic, !opts.IsPublic)
	s.store.Groups.SetJoined(room, true)
	s.store.Groups.AddParticipant(room, s.Nickname())
	s.store.Conversations.Ensure(room)

	s.enqueueBookmarkAdd(store.Bookmark{
		ID:       newID(),
		Kind:     store.BookmarkAutojoin,
		JID:      room,
		Name:     name,
		Autojoin: true,
	})
	s.bus.Publish(bus.Event{Kind: bus.KindGroupUpdated, Payload: room})
	return room, nil
}

func formField(name, value string) wire.Element {
	return wire.New("field", "var", name).
		Append(wire.New("value").WithText(value))
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// slugify lowers a room name into a stable address localpart.
func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// JoinGroup joins a room, applies the optimistic membership update and
// refreshes the autojoin bookmark so the room survives a reconnect.
func (s *Session) JoinGroup(room string) error {
	if err := s.joinRoom(room); err != nil {
		return err
	}
	s.applyLocalJoin(room)
	s.enqueueBookmarkAdd(store.Bookmark{
		ID:       newID(),
		Kind:     store.BookmarkAutojoin,
		JID:      room,
		Name:     s.groupName(room),
		Autojoin: true,
	})
	return nil
}

// joinRoom sends the occupancy presence without touching bookmarks.
func (s *Session) joinRoom(room string) error {
	nick := s.Nickname()
	if nick == "" {
		return fmt.Errorf("no nickname configured")
	}
	p := wire.New("presence", "to", room+"/"+nick).
		Append(wire.NewNS(wire.NSMUC, "x"))
	return s.send(p)
}

func (s *Session) applyLocalJoin(room string) {
	s.store.Groups.Ensure(room)
	s.store.Groups.SetJoined(room, true)
	s.store.Groups.AddParticipant(room, s.Nickname())
	s.store.Conversations.Ensure(room)
	s.bus.Publish(bus.Event{Kind: bus.KindGroupUpdated, Payload: room})
}

func (s *Session) groupName(room string) string {
	if g, ok := s.store.Groups.Get(room); ok {
		return g.Name
	}
	return ""
}

// LeaveGroup leaves a room and drops its autojoin bookmark so the next
// session does not rejoin it.
func (s *Session) LeaveGroup(room string) error {
	p := wire.New("presence", "to", room+"/"+s.Nickname(), "type", "unavailable")
	if err := s.send(p); err != nil {
		return err
	}
	s.store.Groups.SetJoined(room, false)
	s.enqueueBookmarkRemoveByKey(store.BookmarkAutojoin, room)
	s.bus.Publish(bus.Event{Kind: bus.KindGroupUpdated, Payload: room})
	return nil
}

// InviteToGroup sends a mediated invitation through the room. No local
// state changes until the invitee's presence arrives.
func (s *Session) InviteToGroup(room, jid, reason string) error {
	invite := wire.New("invite", "to", jid)
	if reason != "" {
		invite = invite.Append(wire.New("reason").WithText(reason))
	}
	m := wire.New("message", "to", room).
		Append(wire.NewNS(wire.NSMUCUser, "x").Append(invite))
	return s.send(m)
}

// handleGroupPresence reconciles one occupant's join or leave into the
// room's participant set.
func (s *Session) handleGroupPresence(ev wire.GroupPresence) {
	if ev.Type == "error" {
		s.log.Warn("room rejected presence", zap.String("room", ev.Room), zap.String("nick", ev.Nick))
		return
	}

	s.store.Groups.Ensure(ev.Room)
	own := ev.Nick == s.Nickname()

	if ev.Type == "unavailable" {
		if own {
			s.store.Groups.SetJoined(ev.Room, false)
		} else {
			s.store.Groups.RemoveParticipant(ev.Room, ev.Nick)
		}
	} else {
		if own {
			s.store.Groups.SetJoined(ev.Room, true)
			s.store.Conversations.Ensure(ev.Room)
		}
		s.store.Groups.AddParticipant(ev.Room, ev.Nick)
	}
	s.bus.Publish(bus.Event{Kind: bus.KindGroupUpdated, Payload: ev.Room})
}

// handleInvitation records an inbound room invitation, idempotent on the
// room address, and bookmarks it durably.
func (s *Session) handleInvitation(ev wire.Invitation) {
	if ev.Room == "" {
		return
	}
	s.store.Groups.Ensure(ev.Room)
	if !s.store.Requests.AddInvitation(store.GroupInvitation{
		Room:    ev.Room,
		Inviter: ev.Inviter,
		Reason:  ev.Reason,
	}) {
		return
	}
	s.enqueueBookmarkAdd(store.Bookmark{
		ID:      newID(),
		Kind:    store.BookmarkInvitation,
		JID:     ev.Room,
		Inviter: ev.Inviter,
		Reason:  ev.Reason,
	})
	s.bus.Publish(bus.Event{Kind: bus.KindInvitationReceived, Payload: ev.Room})
	s.notifyToast(fmt.Sprintf("%s invited you to %s", ev.Inviter, ev.Room))
}

// AcceptGroupInvitation joins the inviting room and clears the invitation's
// transient and durable records.
func (s *Session) AcceptGroupInvitation(room string) error {
	if err := s.JoinGroup(room); err != nil {
		return err
	}
	s.store.Requests.RemoveInvitation(room)
	s.enqueueBookmarkRemoveByKey(store.BookmarkInvitation, room)
	return nil
}

// DeclineGroupInvitation declines an invitation and clears its records.
func (s *Session) DeclineGroupInvitation(room string) error {
	inviter := ""
	for _, inv := range s.store.Requests.Invitations() {
		if inv.Room == room {
			inviter = inv.Inviter
			break
		}
	}
	if inviter != "" {
		decline := wire.New("decline", "to", inviter)
		m := wire.New("message", "to", room).
			Append(wire.NewNS(wire.NSMUCUser, "x").Append(decline))
		s.sendQuiet(m)
	}
	s.store.Requests.RemoveInvitation(room)
	s.enqueueBookmarkRemoveByKey(store.BookmarkInvitation, room)
	s.bus.Publish(bus.Event{Kind: bus.KindInvitationReceived, Payload: room})
	return nil
}
