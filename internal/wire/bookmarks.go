package wire

// Bookmark kinds stored in private storage.
const (
	BookmarkAutojoin     = "room-autojoin"
	BookmarkSubscription = "subscription-request"
	BookmarkInvitation   = "invitation"
)

// decodeBookmarks reads the private-storage payload. Room bookmarks use the
// standard conference element; pending subscription requests and invitations
// ride along as sibling elements in the same storage document.
func decodeBookmarks(storage Element) []BookmarkItem {
	var items []BookmarkItem
	for _, c := range storage.Children {
		switch c.XMLName.Local {
		case "conference":
			items = append(items, BookmarkItem{
				ID:       c.Attr("id"),
				Kind:     BookmarkAutojoin,
				JID:      c.Attr("jid"),
				Name:     c.Attr("name"),
				Autojoin: c.Attr("autojoin") == "true" || c.Attr("autojoin") == "1",
			})
		case "subscription":
			items = append(items, BookmarkItem{
				ID:      c.Attr("id"),
				Kind:    BookmarkSubscription,
				JID:     c.Attr("jid"),
				Name:    c.Attr("name"),
				Message: c.Attr("message"),
			})
		case "invitation":
			items = append(items, BookmarkItem{
				ID:      c.Attr("id"),
				Kind:    BookmarkInvitation,
				JID:     c.Attr("jid"),
				Name:    c.Attr("name"),
				Inviter: c.Attr("inviter"),
				Reason:  c.Attr("reason"),
			})
		}
	}
	return items
}

// EncodeBookmarks builds the full private-storage payload for a write. The
// storage protocol has no partial update, so callers always encode the whole
// list.
func EncodeBookmarks(items []BookmarkItem) Element {
	storage := NewNS(NSBookmarks, "storage")
	for _, b := range items {
		switch b.Kind {
		case BookmarkAutojoin:
			c := New("conference", "id", b.ID, "jid", b.JID, "name", b.Name)
			if b.Autojoin {
				c.SetAttr("autojoin", "true")
			}
			storage.Children = append(storage.Children, c)
		case BookmarkSubscription:
			storage.Children = append(storage.Children, New("subscription",
				"id", b.ID, "jid", b.JID, "name", b.Name, "message", b.Message))
		case BookmarkInvitation:
			storage.Children = append(storage.Children, New("invitation",
				"id", b.ID, "jid", b.JID, "name", b.Name, "inviter", b.Inviter, "reason", b.Reason))
		}
	}
	return storage
}
