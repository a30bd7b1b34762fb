package session

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mellium.im/xmpp/jid"

	"github.com/chamale-rac/xmpp/internal/bus"
	"github.com/chamale-rac/xmpp/internal/store"
	"github.com/chamale-rac/xmpp/internal/wire"
)

type fakeTransport struct {
	mu      sync.Mutex
	sent    []wire.Element
	stanza  func(wire.Element)
	online  func()
	offline func(error)
	local   jid.JID
}

func newFakeTransport(addr string) *fakeTransport {
	return &fakeTransport{local: jid.MustParse(addr)}
}

func (f *fakeTransport) Send(el wire.Element) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, el)
	return nil
}

func (f *fakeTransport) LocalJID() jid.JID                    { return f.local }
func (f *fakeTransport) Connect() error                       { f.online(); return nil }
func (f *fakeTransport) Disconnect() error                    { return nil }
func (f *fakeTransport) SetStanzaHandler(h func(wire.Element)) { f.stanza = h }
func (f *fakeTransport) SetOnlineHandler(h func())            { f.online = h }
func (f *fakeTransport) SetOfflineHandler(h func(error))      { f.offline = h }

func (f *fakeTransport) sentElements() []wire.Element {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wire.Element, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) clearSent() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

// findSent returns the first sent element matching the predicate.
func (f *fakeTransport) findSent(match func(wire.Element) bool) (wire.Element, bool) {
	for _, el := range f.sentElements() {
		if match(el) {
			return el, true
		}
	}
	return wire.Element{}, false
}

func (f *fakeTransport) countSent(match func(wire.Element) bool) int {
	n := 0
	for _, el := range f.sentElements() {
		if match(el) {
			n++
		}
	}
	return n
}

func newTestSession(t *testing.T) (*Session, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport("alice@example.org/web")
	s := New(Options{Transport: ft, Nickname: "alice"})
	s.Start()
	t.Cleanup(s.Close)
	if err := ft.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	return s, ft
}

// waitFor polls until the condition holds or the deadline passes. Bookmark
// writes run on a worker goroutine, so tests observe them asynchronously.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached before deadline")
}

func chatStanza(id, from, to, body string) wire.Element {
	return wire.New("message", "type", "chat", "id", id, "from", from, "to", to).
		Append(wire.New("body").WithText(body))
}

func TestDuplicateLiveMessageAppendsOnce(t *testing.T) {
	s, ft := newTestSession(t)

	el := chatStanza("m1", "bob@example.org/phone", "alice@example.org/web", "hello")
	ft.stanza(el)
	ft.stanza(el)

	msgs := s.Conversation("bob@example.org")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if got := s.store.Conversations.Unread("bob@example.org"); got != 1 {
		t.Fatalf("expected unread 1, got %d", got)
	}
}

func TestHistoryAndLiveCopiesCollapse(t *testing.T) {
	s, ft := newTestSession(t)

	archived := wire.New("message", "from", "alice@example.org").
		Append(wire.NewNS(wire.NSMAM, "result", "queryid", "q1", "id", "arch-1").
			Append(wire.NewNS(wire.NSForward, "forwarded").
				Append(
					wire.NewNS(wire.NSDelay, "delay", "stamp", "2026-08-30T10:00:00Z"),
					wire.New("message", "type", "chat", "id", "m7",
						"from", "bob@example.org/phone", "to", "alice@example.org/web").
						Append(wire.New("body").WithText("archived hello")),
				)))
	ft.stanza(archived)

	if got := s.store.Conversations.Unread("bob@example.org"); got != 0 {
		t.Fatalf("history replay must not count unread, got %d", got)
	}

	ft.stanza(chatStanza("m7", "bob@example.org/phone", "alice@example.org/web", "archived hello"))

	msgs := s.Conversation("bob@example.org")
	if len(msgs) != 1 {
		t.Fatalf("expected history and live copy to collapse to 1 message, got %d", len(msgs))
	}
}

func TestOwnEchoDoesNotCountUnread(t *testing.T) {
	s, ft := newTestSession(t)

	ft.stanza(chatStanza("m2", "alice@example.org/phone", "bob@example.org", "from my other device"))

	msgs := s.Conversation("bob@example.org")
	if len(msgs) != 1 {
		t.Fatalf("expected echo routed to recipient conversation, got %d messages", len(msgs))
	}
	if !msgs[0].Outgoing {
		t.Fatalf("echo of own message must be outgoing")
	}
	if got := s.store.Conversations.Unread("bob@example.org"); got != 0 {
		t.Fatalf("own echo must not count unread, got %d", got)
	}
}

func TestSelectedConversationSkipsUnread(t *testing.T) {
	s, ft := newTestSession(t)

	s.SelectConversation("bob@example.org")
	ft.stanza(chatStanza("m3", "bob@example.org/phone", "alice@example.org/web", "hi"))

	if got := s.store.Conversations.Unread("bob@example.org"); got != 0 {
		t.Fatalf("selected conversation must not accumulate unread, got %d", got)
	}

	ft.stanza(chatStanza("m4", "carol@example.org/web", "alice@example.org/web", "hey"))
	if got := s.store.Conversations.Unread("carol@example.org"); got != 1 {
		t.Fatalf("non-selected conversation must count unread, got %d", got)
	}

	s.MarkConversationRead("carol@example.org")
	if got := s.store.Conversations.Unread("carol@example.org"); got != 0 {
		t.Fatalf("mark read must reset unread, got %d", got)
	}
}

func TestPresenceBeforeRoster(t *testing.T) {
	s, ft := newTestSession(t)

	ft.stanza(wire.New("presence", "from", "bob@example.org/phone").
		Append(wire.New("show").WithText("away")))

	c, ok := s.store.Contacts.Get("bob@example.org")
	if !ok {
		t.Fatalf("presence must create the contact")
	}
	if c.Show != store.ShowAway {
		t.Fatalf("expected away, got %s", c.Show)
	}
	if c.Subscription != store.SubscriptionNone {
		t.Fatalf("presence must not touch subscription, got %s", c.Subscription)
	}

	// Roster data arrives later and must not clobber liveness.
	rosterIQ, ok := ft.findSent(func(el wire.Element) bool {
		return el.Name() == "iq" && el.ChildNS(wire.NSRoster, "query") != nil
	})
	if !ok {
		t.Fatalf("expected roster request on connect")
	}
	ft.stanza(wire.New("iq", "type", "result", "id", rosterIQ.Attr("id")).
		Append(wire.NewNS(wire.NSRoster, "query").
			Append(wire.New("item", "jid", "bob@example.org", "name", "Bob", "subscription", "both"))))

	c, _ = s.store.Contacts.Get("bob@example.org")
	if c.Name != "Bob" || c.Subscription != store.SubscriptionBoth {
		t.Fatalf("roster info not applied: %+v", c)
	}
	if c.Show != store.ShowAway {
		t.Fatalf("roster apply clobbered presence: %s", c.Show)
	}
}

func TestUncorrelatedRosterReplyDropped(t *testing.T) {
	s, ft := newTestSession(t)

	ft.stanza(wire.New("iq", "type", "result", "id", "stale-id").
		Append(wire.NewNS(wire.NSRoster, "query").
			Append(wire.New("item", "jid", "mallory@example.org", "subscription", "both"))))

	if _, ok := s.store.Contacts.Get("mallory@example.org"); ok {
		t.Fatalf("uncorrelated roster reply must be dropped")
	}
}

func TestSubscribeRequestIdempotent(t *testing.T) {
	s, ft := newTestSession(t)

	sub := wire.New("presence", "type", "subscribe", "from", "dave@example.org").
		Append(wire.New("status").WithText("hi, it's dave"))
	ft.stanza(sub)
	ft.stanza(sub)

	reqs := s.SubscriptionRequests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 pending request, got %d", len(reqs))
	}
	waitFor(t, func() bool {
		_, ok := s.store.Bookmarks.Find(store.BookmarkSubscription, "dave@example.org")
		return ok
	})
	if got := len(s.store.Bookmarks.ByKind(store.BookmarkSubscription)); got != 1 {
		t.Fatalf("expected 1 subscription bookmark, got %d", got)
	}
}

func TestAcceptSubscriptionClearsRecords(t *testing.T) {
	s, ft := newTestSession(t)

	ft.stanza(wire.New("presence", "type", "subscribe", "from", "dave@example.org"))
	waitFor(t, func() bool {
		_, ok := s.store.Bookmarks.Find(store.BookmarkSubscription, "dave@example.org")
		return ok
	})
	ft.clearSent()

	if err := s.AcceptSubscription("dave@example.org"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	if _, ok := ft.findSent(func(el wire.Element) bool {
		return el.Name() == "presence" && el.Attr("type") == "subscribed" && el.Attr("to") == "dave@example.org"
	}); !ok {
		t.Fatalf("expected subscribed presence")
	}
	if s.store.Requests.HasSubscription("dave@example.org") {
		t.Fatalf("accepted request must be removed")
	}
	waitFor(t, func() bool {
		_, ok := s.store.Bookmarks.Find(store.BookmarkSubscription, "dave@example.org")
		return !ok
	})
	if _, ok := ft.findSent(func(el wire.Element) bool {
		return el.Name() == "iq" && el.ChildNS(wire.NSRoster, "query") != nil && el.Attr("type") == "get"
	}); !ok {
		t.Fatalf("accept must re-request the roster")
	}
}

func TestGroupParticipantSetSemantics(t *testing.T) {
	s, ft := newTestSession(t)
	room := "devs@conference.example.org"

	occupant := wire.New("presence", "from", room+"/bob").
		Append(wire.NewNS(wire.NSMUCUser, "x").
			Append(wire.New("item", "affiliation", "member", "role", "participant")))
	ft.stanza(occupant)
	ft.stanza(occupant)

	g, ok := s.store.Groups.Get(room)
	if !ok {
		t.Fatalf("occupant presence must create the group")
	}
	if len(g.Participants) != 1 || g.Participants[0] != "bob" {
		t.Fatalf("expected participants [bob], got %v", g.Participants)
	}

	ft.stanza(wire.New("presence", "from", room+"/bob", "type", "unavailable"))
	g, _ = s.store.Groups.Get(room)
	if len(g.Participants) != 0 {
		t.Fatalf("leave must remove the participant, got %v", g.Participants)
	}
}

func TestOwnRoomPresenceTogglesJoined(t *testing.T) {
	s, ft := newTestSession(t)
	room := "devs@conference.example.org"

	ft.stanza(wire.New("presence", "from", room+"/alice").
		Append(wire.NewNS(wire.NSMUCUser, "x")))
	g, _ := s.store.Groups.Get(room)
	if !g.IsJoined {
		t.Fatalf("own occupant presence must mark the room joined")
	}

	ft.stanza(wire.New("presence", "from", room+"/alice", "type", "unavailable"))
	g, _ = s.store.Groups.Get(room)
	if g.IsJoined {
		t.Fatalf("own unavailable must mark the room left")
	}
	if len(g.Participants) != 0 {
		t.Fatalf("leaving must clear participants, got %v", g.Participants)
	}
}

func TestGroupMessageReflectionCollapses(t *testing.T) {
	s, ft := newTestSession(t)
	room := "devs@conference.example.org"

	if err := s.SendGroupMessage(room, "ship it"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	sentMsg, ok := ft.findSent(func(el wire.Element) bool {
		return el.Name() == "message" && el.Attr("type") == "groupchat"
	})
	if !ok {
		t.Fatalf("expected outbound groupchat message")
	}

	// The room reflects our message back with the same id.
	ft.stanza(wire.New("message", "type", "groupchat", "id", sentMsg.Attr("id"),
		"from", room+"/alice", "to", "alice@example.org/web").
		Append(wire.New("body").WithText("ship it")))

	msgs := s.Conversation(room)
	if len(msgs) != 1 {
		t.Fatalf("reflection must collapse into the optimistic copy, got %d", len(msgs))
	}
	if got := s.store.Conversations.Unread(room); got != 0 {
		t.Fatalf("own reflection must not count unread, got %d", got)
	}
}

func TestInvitationIdempotentAndBookmarked(t *testing.T) {
	s, ft := newTestSession(t)
	room := "party@conference.example.org"

	invite := wire.New("message", "from", room).
		Append(wire.NewNS(wire.NSMUCUser, "x").
			Append(wire.New("invite", "from", "bob@example.org").
				Append(wire.New("reason").WithText("join us"))))
	ft.stanza(invite)
	ft.stanza(invite)

	invs := s.GroupInvitations()
	if len(invs) != 1 {
		t.Fatalf("expected 1 invitation, got %d", len(invs))
	}
	if invs[0].Inviter != "bob@example.org" {
		t.Fatalf("unexpected inviter %q", invs[0].Inviter)
	}
	waitFor(t, func() bool {
		_, ok := s.store.Bookmarks.Find(store.BookmarkInvitation, room)
		return ok
	})
}

func TestAcceptInvitationJoinsAndClears(t *testing.T) {
	s, ft := newTestSession(t)
	room := "party@conference.example.org"

	ft.stanza(wire.New("message", "from", room).
		Append(wire.NewNS(wire.NSMUCUser, "x").
			Append(wire.New("invite", "from", "bob@example.org"))))
	waitFor(t, func() bool {
		_, ok := s.store.Bookmarks.Find(store.BookmarkInvitation, room)
		return ok
	})
	ft.clearSent()

	if err := s.AcceptGroupInvitation(room); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	if _, ok := ft.findSent(func(el wire.Element) bool {
		return el.Name() == "presence" && el.Attr("to") == room+"/alice"
	}); !ok {
		t.Fatalf("accept must send the join presence")
	}
	if s.store.Requests.HasInvitation(room) {
		t.Fatalf("accepted invitation must be removed")
	}
	waitFor(t, func() bool {
		_, inv := s.store.Bookmarks.Find(store.BookmarkInvitation, room)
		_, auto := s.store.Bookmarks.Find(store.BookmarkAutojoin, room)
		return !inv && auto
	})
}

func TestUploadGrantCorrelation(t *testing.T) {
	s, ft := newTestSession(t)

	id, err := s.RequestUpload("photo.png", []byte{1, 2, 3}, "bob@example.org")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if _, ok := s.store.Uploads.Get(id); !ok {
		t.Fatalf("pending upload must be recorded")
	}
	if _, ok := ft.findSent(func(el wire.Element) bool {
		return el.Name() == "iq" && el.ChildNS(wire.NSUpload, "request") != nil && el.Attr("id") == id
	}); !ok {
		t.Fatalf("expected slot request correlated by the upload id")
	}

	// A grant that matches no pending upload is dropped without effect.
	ft.stanza(wire.New("iq", "type", "result", "id", "no-such-upload").
		Append(wire.NewNS(wire.NSUpload, "slot").
			Append(
				wire.New("put", "url", "https://upload.example.org/put/x"),
				wire.New("get", "url", "https://upload.example.org/get/x"),
			)))
	if _, ok := s.store.Uploads.Get(id); !ok {
		t.Fatalf("mismatched grant must leave pending uploads untouched")
	}

	s.AbandonUpload(id)
	if _, ok := s.store.Uploads.Get(id); ok {
		t.Fatalf("abandoned upload must be removed")
	}
}

func connectReplies(t *testing.T, s *Session, ft *fakeTransport, bookmarks wire.Element) {
	t.Helper()
	dirIQ, ok := ft.findSent(func(el wire.Element) bool {
		return el.Name() == "iq" && el.ChildNS(wire.NSDiscoItems, "query") != nil
	})
	if !ok {
		t.Fatalf("expected directory query on connect")
	}
	bmIQ, ok := ft.findSent(func(el wire.Element) bool {
		return el.Name() == "iq" && el.ChildNS(wire.NSPrivate, "query") != nil && el.Attr("type") == "get"
	})
	if !ok {
		t.Fatalf("expected bookmark fetch on connect")
	}

	ft.stanza(wire.New("iq", "type", "result", "id", dirIQ.Attr("id"), "from", "conference.example.org").
		Append(wire.NewNS(wire.NSDiscoItems, "query")))
	ft.stanza(wire.New("iq", "type", "result", "id", bmIQ.Attr("id")).
		Append(wire.NewNS(wire.NSPrivate, "query").Append(bookmarks)))
}

func TestAutojoinRunsOncePerConnection(t *testing.T) {
	s, ft := newTestSession(t)
	room := "devs@conference.example.org"

	bookmarks := wire.NewNS(wire.NSBookmarks, "storage").
		Append(wire.New("conference", "jid", room, "name", "Devs", "autojoin", "true"))
	connectReplies(t, s, ft, bookmarks)

	joinCount := func() int {
		return ft.countSent(func(el wire.Element) bool {
			return el.Name() == "presence" && el.Attr("to") == room+"/alice"
		})
	}
	if joinCount() != 1 {
		t.Fatalf("expected exactly one autojoin presence, got %d", joinCount())
	}

	// A reconnect resets the guard and rejoins.
	ft.offline(nil)
	g, _ := s.store.Groups.Get(room)
	if !g.IsJoined {
		t.Fatalf("entity state must survive a connection loss")
	}
	s.store.Groups.SetJoined(room, false)
	ft.clearSent()
	if err := ft.Connect(); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	connectReplies(t, s, ft, bookmarks)
	if joinCount() != 1 {
		t.Fatalf("expected one autojoin presence after reconnect, got %d", joinCount())
	}
}

func TestJoinedRoomSkippedByAutojoin(t *testing.T) {
	s, ft := newTestSession(t)
	room := "devs@conference.example.org"

	if err := s.JoinGroup(room); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	// Simulate a reconnect; the joined state survives the drop.
	ft.offline(nil)
	ft.clearSent()
	if err := ft.Connect(); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	bookmarks := wire.NewNS(wire.NSBookmarks, "storage").
		Append(wire.New("conference", "jid", room, "autojoin", "true"))
	connectReplies(t, s, ft, bookmarks)

	if n := ft.countSent(func(el wire.Element) bool {
		return el.Name() == "presence" && el.Attr("to") == room+"/alice"
	}); n != 0 {
		t.Fatalf("already joined room must not be rejoined, got %d presences", n)
	}
}

func TestBookmarkAddByKeyIsNoOp(t *testing.T) {
	s, ft := newTestSession(t)
	room := "devs@conference.example.org"

	if err := s.JoinGroup(room); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	waitFor(t, func() bool {
		_, ok := s.store.Bookmarks.Find(store.BookmarkAutojoin, room)
		return ok
	})
	pushes := func() int {
		return ft.countSent(func(el wire.Element) bool {
			return el.Name() == "iq" && el.Attr("type") == "set" && el.ChildNS(wire.NSPrivate, "query") != nil
		})
	}
	waitFor(t, func() bool { return pushes() == 1 })

	// Joining again touches the same (kind, jid) key: no second write.
	if err := s.JoinGroup(room); err != nil {
		t.Fatalf("rejoin failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := pushes(); got != 1 {
		t.Fatalf("duplicate bookmark add must not push, got %d pushes", got)
	}
	if got := len(s.store.Bookmarks.ByKind(store.BookmarkAutojoin)); got != 1 {
		t.Fatalf("expected 1 autojoin bookmark, got %d", got)
	}
}

func TestCreateGroupSlugAndConfig(t *testing.T) {
	s, ft := newTestSession(t)

	room, err := s.CreateGroup("Release Planning!", CreateGroupOptions{IsPublic: true})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if room != "release-planning@conference.example.org" {
		t.Fatalf("unexpected room address %q", room)
	}

	cfgIQ, ok := ft.findSent(func(el wire.Element) bool {
		return el.Name() == "iq" && el.ChildNS(wire.NSMUCOwner, "query") != nil
	})
	if !ok {
		t.Fatalf("expected room configuration submit")
	}

	// A rejected configuration surfaces as an event; the group stays.
	events, unsub := s.Bus().Subscribe("group.", 4)
	defer unsub()
	ft.stanza(wire.New("iq", "type", "error", "id", cfgIQ.Attr("id"), "from", room).
		Append(wire.New("error").
			Append(wire.NewNS("urn:ietf:params:xml:ns:xmpp-stanzas", "not-allowed"))))

	select {
	case evt := <-events:
		if evt.Kind != "group.config_failed" {
			t.Fatalf("expected config failure event, got %s", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected config failure event")
	}
	if g, ok := s.store.Groups.Get(room); !ok || !g.IsJoined {
		t.Fatalf("rejected configuration must not remove the group")
	}
}

func TestOfflineCommandFails(t *testing.T) {
	s, ft := newTestSession(t)
	ft.offline(nil)

	if err := s.SendMessage("bob@example.org", "hello"); err == nil {
		t.Fatalf("send while offline must fail")
	}
	if got := len(s.Conversation("bob@example.org")); got != 0 {
		t.Fatalf("failed send must not append, got %d messages", got)
	}
}

func TestToastSuppressedWhileDND(t *testing.T) {
	s, ft := newTestSession(t)

	events, unsub := s.Bus().Subscribe("notify.", 4)
	defer unsub()

	if err := s.SetPresence(store.ShowDND); err != nil {
		t.Fatalf("set presence failed: %v", err)
	}
	ft.stanza(chatStanza("m1", "bob@example.org/phone", "alice@example.org/web", "ping"))

	select {
	case evt := <-events:
		t.Fatalf("no notification expected while dnd, got %s", evt.Kind)
	case <-time.After(200 * time.Millisecond):
	}

	if err := s.SetPresence(store.ShowChat); err != nil {
		t.Fatalf("set presence failed: %v", err)
	}
	ft.stanza(chatStanza("m2", "bob@example.org/phone", "alice@example.org/web", "ping again"))

	select {
	case evt := <-events:
		if evt.Kind != bus.KindToast {
			t.Fatalf("expected toast, got %s", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a notification once available again")
	}
}

func TestSubscriptionPresenceCarriesNoLiveness(t *testing.T) {
	s, ft := newTestSession(t)

	ft.stanza(wire.New("presence", "from", "bob@example.org", "type", "unavailable"))
	if c, ok := s.store.Contacts.Get("bob@example.org"); !ok || c.Show != store.ShowOffline {
		t.Fatalf("expected bob offline, got %+v", c)
	}

	ft.stanza(wire.New("presence", "from", "bob@example.org", "type", "subscribed"))
	if c, _ := s.store.Contacts.Get("bob@example.org"); c.Show != store.ShowOffline {
		t.Fatalf("subscribed presence must not change liveness, got %s", c.Show)
	}

	ft.stanza(wire.New("presence", "from", "bob@example.org"))
	if c, _ := s.store.Contacts.Get("bob@example.org"); c.Show != store.ShowChat {
		t.Fatalf("available presence must mark the peer online, got %s", c.Show)
	}
}

func TestStaleUploadGrantIgnoredAfterReconnect(t *testing.T) {
	s, ft := newTestSession(t)

	var puts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			atomic.AddInt32(&puts, 1)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	uploadGrant := func(id string) wire.Element {
		return wire.New("iq", "type", "result", "id", id).
			Append(wire.NewNS(wire.NSUpload, "slot").Append(
				wire.New("put", "url", srv.URL+"/put/x"),
				wire.New("get", "url", srv.URL+"/get/x"),
			))
	}

	id, err := s.RequestUpload("notes.txt", []byte("hi"), "bob@example.org")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	ft.offline(nil)
	if err := ft.Connect(); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}

	// The slot was requested on the previous connection; its grant on the
	// new stream must not start a transfer, but the record survives.
	ft.stanza(uploadGrant(id))
	time.Sleep(100 * time.Millisecond)
	if n := atomic.LoadInt32(&puts); n != 0 {
		t.Fatalf("stale grant must not start a transfer, got %d puts", n)
	}
	if _, ok := s.store.Uploads.Get(id); !ok {
		t.Fatalf("pending record must survive for the caller to retry or abandon")
	}

	id2, err := s.RequestUpload("notes.txt", []byte("hi"), "bob@example.org")
	if err != nil {
		t.Fatalf("re-request failed: %v", err)
	}
	ft.stanza(uploadGrant(id2))
	waitFor(t, func() bool { return atomic.LoadInt32(&puts) == 1 })
}
