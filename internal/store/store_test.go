package store

import (
	"testing"
	"time"
)

func TestContactPresenceAndRosterIndependent(t *testing.T) {
	ct := NewContactTable()

	ct.Ensure("bob@example.org")
	ct.SetPresence("bob@example.org", ShowAway, "brb")

	c, ok := ct.Get("bob@example.org")
	if !ok {
		t.Fatalf("contact missing")
	}
	if c.Show != ShowAway || c.Status != "brb" {
		t.Fatalf("presence not applied: %+v", c)
	}
	if c.Subscription != SubscriptionNone {
		t.Fatalf("presence must not set subscription")
	}

	ct.SetRosterInfo("bob@example.org", "Bob", SubscriptionBoth)
	c, _ = ct.Get("bob@example.org")
	if c.Name != "Bob" || c.Subscription != SubscriptionBoth {
		t.Fatalf("roster info not applied: %+v", c)
	}
	if c.Show != ShowAway {
		t.Fatalf("roster info must not touch presence")
	}
}

func TestContactEnsureDefaultsToLocalpartName(t *testing.T) {
	ct := NewContactTable()

	c := ct.Ensure("carol@example.org")
	if c.Name != "carol" {
		t.Fatalf("expected localpart fallback name, got %q", c.Name)
	}
	if c.Show != ShowOffline {
		t.Fatalf("new contact must start offline, got %s", c.Show)
	}
}

func TestConversationAppendDeduplicatesByID(t *testing.T) {
	cv := NewConversationTable()
	msg := Message{ID: "m1", From: "bob@example.org", Body: "hi", Timestamp: time.Now()}

	if !cv.Append("bob@example.org", msg) {
		t.Fatalf("first append must succeed")
	}
	if cv.Append("bob@example.org", msg) {
		t.Fatalf("second append with same id must be rejected")
	}
	if got := cv.Count("bob@example.org"); got != 1 {
		t.Fatalf("expected 1 message, got %d", got)
	}

	// Same id in a different conversation is a different message.
	if !cv.Append("carol@example.org", msg) {
		t.Fatalf("dedup scope must be per conversation")
	}
}

func TestUnreadCounters(t *testing.T) {
	cv := NewConversationTable()

	cv.IncrementUnread("bob@example.org")
	cv.IncrementUnread("bob@example.org")
	if got := cv.Unread("bob@example.org"); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}

	counts := cv.UnreadCounts()
	if len(counts) != 1 || counts["bob@example.org"] != 2 {
		t.Fatalf("unexpected counts: %v", counts)
	}

	cv.ClearUnread("bob@example.org")
	if got := cv.Unread("bob@example.org"); got != 0 {
		t.Fatalf("clear must reset to zero, got %d", got)
	}
	if len(cv.UnreadCounts()) != 0 {
		t.Fatalf("cleared counters must be absent, not zero")
	}
}

func TestGroupParticipantsAreASet(t *testing.T) {
	gt := NewGroupTable()
	room := "devs@conference.example.org"

	gt.AddParticipant(room, "bob")
	gt.AddParticipant(room, "bob")
	gt.AddParticipant(room, "alice")

	g, _ := gt.Get(room)
	if len(g.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %v", g.Participants)
	}
	if g.Participants[0] != "alice" || g.Participants[1] != "bob" {
		t.Fatalf("participants must be sorted, got %v", g.Participants)
	}

	gt.RemoveParticipant(room, "bob")
	gt.RemoveParticipant(room, "bob")
	g, _ = gt.Get(room)
	if len(g.Participants) != 1 {
		t.Fatalf("expected 1 participant, got %v", g.Participants)
	}
}

func TestGroupLeaveClearsParticipantsButKeepsRecord(t *testing.T) {
	gt := NewGroupTable()
	room := "devs@conference.example.org"

	gt.SetInfo(room, "Devs", true, false)
	gt.SetJoined(room, true)
	gt.AddParticipant(room, "bob")

	gt.SetJoined(room, false)
	g, ok := gt.Get(room)
	if !ok {
		t.Fatalf("leaving must not delete the group")
	}
	if g.IsJoined || len(g.Participants) != 0 {
		t.Fatalf("leave must clear joined state and participants: %+v", g)
	}
	if g.Name != "Devs" {
		t.Fatalf("metadata must survive a leave")
	}
}

func TestBookmarkKeyUniqueness(t *testing.T) {
	bt := NewBookmarkTable()

	if !bt.Add(Bookmark{ID: "1", Kind: BookmarkAutojoin, JID: "devs@conference.example.org"}) {
		t.Fatalf("first add must succeed")
	}
	if bt.Add(Bookmark{ID: "2", Kind: BookmarkAutojoin, JID: "devs@conference.example.org"}) {
		t.Fatalf("same (kind, jid) must be a no-op")
	}
	if !bt.Add(Bookmark{ID: "3", Kind: BookmarkInvitation, JID: "devs@conference.example.org"}) {
		t.Fatalf("same jid under a different kind is a different bookmark")
	}
	if got := len(bt.All()); got != 2 {
		t.Fatalf("expected 2 bookmarks, got %d", got)
	}

	if !bt.RemoveByKey(BookmarkAutojoin, "devs@conference.example.org") {
		t.Fatalf("remove by key must find the bookmark")
	}
	if _, ok := bt.Find(BookmarkAutojoin, "devs@conference.example.org"); ok {
		t.Fatalf("removed bookmark must be gone")
	}
}

func TestBookmarkReplaceAllKeepsFirstPerKey(t *testing.T) {
	bt := NewBookmarkTable()
	bt.Add(Bookmark{ID: "old", Kind: BookmarkAutojoin, JID: "devs@conference.example.org"})

	bt.ReplaceAll([]Bookmark{
		{ID: "a", Kind: BookmarkAutojoin, JID: "devs@conference.example.org", Name: "first"},
		{ID: "b", Kind: BookmarkAutojoin, JID: "devs@conference.example.org", Name: "second"},
	})

	all := bt.All()
	if len(all) != 1 {
		t.Fatalf("duplicate keys must collapse, got %d", len(all))
	}
	if all[0].Name != "first" {
		t.Fatalf("first occurrence must win, got %q", all[0].Name)
	}
}

func TestSubscriptionRequestIdempotent(t *testing.T) {
	rt := NewRequestTable()

	if !rt.AddSubscription(SubscriptionRequest{From: "dave@example.org"}) {
		t.Fatalf("first add must succeed")
	}
	if rt.AddSubscription(SubscriptionRequest{From: "dave@example.org", Status: "again"}) {
		t.Fatalf("repeat add must be a no-op")
	}
	if got := len(rt.Subscriptions()); got != 1 {
		t.Fatalf("expected 1 request, got %d", got)
	}

	rt.RemoveSubscription("dave@example.org")
	if rt.HasSubscription("dave@example.org") {
		t.Fatalf("removed request must be gone")
	}
}

func TestStoreResetClearsEverything(t *testing.T) {
	s := New()
	s.Contacts.Ensure("bob@example.org")
	s.Groups.Ensure("devs@conference.example.org")
	s.Conversations.Append("bob@example.org", Message{ID: "m1", Body: "x"})
	s.Bookmarks.Add(Bookmark{ID: "1", Kind: BookmarkAutojoin, JID: "devs@conference.example.org"})
	s.Uploads.Add(PendingUpload{ID: "u1"})
	s.Requests.AddSubscription(SubscriptionRequest{From: "dave@example.org"})

	s.Reset()

	if s.Contacts.Count() != 0 || len(s.Groups.All()) != 0 || len(s.Conversations.Peers()) != 0 {
		t.Fatalf("reset must clear entity tables")
	}
	if len(s.Bookmarks.All()) != 0 || s.Uploads.Count() != 0 || len(s.Requests.Subscriptions()) != 0 {
		t.Fatalf("reset must clear pending state")
	}
}
