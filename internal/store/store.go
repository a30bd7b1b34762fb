package store

// Store owns every entity table of the session. All other components hold
// only jids and ids and mutate through these tables; nothing else keeps a
// private copy of shared state.
type Store struct {
	Contacts      *ContactTable
	Groups        *GroupTable
	Conversations *ConversationTable
	Bookmarks     *BookmarkTable
	Uploads       *UploadTable
	Requests      *RequestTable
}

// New creates an empty store.
func New() *Store {
	return &Store{
		Contacts:      NewContactTable(),
		Groups:        NewGroupTable(),
		Conversations: NewConversationTable(),
		Bookmarks:     NewBookmarkTable(),
		Uploads:       NewUploadTable(),
		Requests:      NewRequestTable(),
	}
}

// Reset clears all tables. Used on full session teardown only; a connection
// drop keeps entity state intact for display.
func (s *Store) Reset() {
	s.Contacts.Clear()
	s.Groups.Clear()
	s.Conversations.Clear()
	s.Bookmarks.Clear()
	s.Uploads.Clear()
	s.Requests.Clear()
}
