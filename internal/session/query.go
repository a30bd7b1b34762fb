package session

import "github.com/chamale-rac/xmpp/internal/store"

// Contacts returns the known contacts sorted by address.
func (s *Session) Contacts() []store.Contact {
	return s.store.Contacts.All()
}

// Groups returns every known room.
func (s *Session) Groups() []store.Group {
	return s.store.Groups.All()
}

// JoinedGroups returns the rooms currently joined.
func (s *Session) JoinedGroups() []store.Group {
	return s.store.Groups.Joined()
}

// Conversation returns the ordered messages exchanged with a peer.
func (s *Session) Conversation(peer string) []store.Message {
	return s.store.Conversations.Messages(peer)
}

// UnreadCounts returns the nonzero unread counters keyed by peer.
func (s *Session) UnreadCounts() map[string]int {
	return s.store.Conversations.UnreadCounts()
}

// SubscriptionRequests returns the pending inbound subscription offers.
func (s *Session) SubscriptionRequests() []store.SubscriptionRequest {
	return s.store.Requests.Subscriptions()
}

// GroupInvitations returns the pending room invitations.
func (s *Session) GroupInvitations() []store.GroupInvitation {
	return s.store.Requests.Invitations()
}

// Bookmarks returns the local mirror of the durable bookmark list.
func (s *Session) Bookmarks() []store.Bookmark {
	return s.store.Bookmarks.All()
}
