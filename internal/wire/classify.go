package wire

import (
	"strings"
	"time"

	"mellium.im/xmpp/jid"
)

// Env carries the session facts the classifier needs that are not visible in
// the document itself: whose traffic is "mine" and which domain hosts the
// group chat service.
type Env struct {
	LocalBare   string
	GroupDomain string
}

// Event is the closed set of shapes an inbound document can classify to.
// The router switches over the concrete types, so adding a variant forces
// every dispatch site to be revisited.
type Event interface {
	event()
}

// Presence is a liveness update for a contact (available, unavailable, error).
type Presence struct {
	From   string // bare jid
	Type   string // "", unavailable, error, unsubscribed, ...
	Show   string
	Status string
}

// SubscribeRequest is an inbound presence subscription offer.
type SubscribeRequest struct {
	From   string // bare jid
	Status string
}

// GroupPresence is an occupant presence from a room on the group service.
type GroupPresence struct {
	Room        string // bare room jid
	Nick        string
	Type        string // "" or unavailable or error
	Affiliation string
	Role        string
}

// ChatMessage is a live one-to-one message.
type ChatMessage struct {
	ID    string
	From  string // bare jid
	To    string // bare jid
	Body  string
	Stamp time.Time // zero unless the message carried a delay wrapper
}

// GroupMessage is a live room message; From is the room-local nickname.
type GroupMessage struct {
	Room  string // bare room jid
	Nick  string
	ID    string
	Body  string
	Stamp time.Time
}

// HistoryResult is one archived message unwrapped from a history reply.
type HistoryResult struct {
	QueryID string
	ID      string
	From    string
	To      string
	Body    string
	Stamp   time.Time
}

// AvatarUpdate announces a new avatar hash for a peer.
type AvatarUpdate struct {
	From string
	Hash string
}

// Invitation is a mediated or direct invitation to join a room.
type Invitation struct {
	Room    string
	Inviter string
	Reason  string
}

// RosterItem is one entry of a roster snapshot or push.
type RosterItem struct {
	JID          string
	Name         string
	Subscription string
	Ask          string
}

// RosterReply is a roster query result or server push.
type RosterReply struct {
	ID    string
	Push  bool
	Items []RosterItem
}

// DirectoryItem is one room listed by the room directory.
type DirectoryItem struct {
	JID  string
	Name string
}

// RoomDirectoryReply is a disco#items reply from the group service.
type RoomDirectoryReply struct {
	ID    string
	From  string
	Items []DirectoryItem
}

// RoomInfoReply is a disco#info reply describing one room.
type RoomInfoReply struct {
	ID       string
	From     string // bare room jid
	Name     string
	Features []string
}

// UploadGrant is a granted upload slot correlated by iq id.
type UploadGrant struct {
	ID      string
	PutURL  string
	GetURL  string
	Headers map[string]string
}

// BookmarkItem is one durable marker from private storage.
type BookmarkItem struct {
	ID       string
	Kind     string // room-autojoin, subscription-request, invitation
	JID      string
	Name     string
	Autojoin bool
	Message  string
	Inviter  string
	Reason   string
}

// BookmarkSnapshot is the full private-storage bookmark list.
type BookmarkSnapshot struct {
	ID    string
	Items []BookmarkItem
}

// IQResult is any other iq reply, kept for correlation-id matching
// (room configuration acks, avatar fetches, history fins).
type IQResult struct {
	ID    string
	Type  string // result or error
	From  string
	Error string // error condition local name, if any
	El    Element
}

// Unrecognized is a well-formed document the classifier has no handler for,
// or one missing a field required to route it. Dropped by the router.
type Unrecognized struct {
	Reason string
	El     Element
}

func (Presence) event()           {}
func (SubscribeRequest) event()   {}
func (GroupPresence) event()      {}
func (ChatMessage) event()        {}
func (GroupMessage) event()       {}
func (HistoryResult) event()      {}
func (AvatarUpdate) event()       {}
func (Invitation) event()         {}
func (RosterReply) event()        {}
func (RoomDirectoryReply) event() {}
func (RoomInfoReply) event()      {}
func (UploadGrant) event()        {}
func (BookmarkSnapshot) event()   {}
func (IQResult) event()           {}
func (Unrecognized) event()       {}

// Classify maps one inbound document to exactly one Event. It never returns
// nil; shapes it does not understand come back as Unrecognized so the caller
// can log and drop them.
func Classify(el Element, env Env) Event {
	switch el.Name() {
	case "presence":
		return classifyPresence(el, env)
	case "message":
		return classifyMessage(el, env)
	case "iq":
		return classifyIQ(el)
	}
	return Unrecognized{Reason: "unknown stanza kind", El: el}
}

func classifyPresence(el Element, env Env) Event {
	from := el.Attr("from")
	if from == "" {
		return Unrecognized{Reason: "presence without from", El: el}
	}
	addr, err := jid.Parse(from)
	if err != nil {
		return Unrecognized{Reason: "presence with unparsable from", El: el}
	}

	typ := el.Attr("type")
	if typ == "subscribe" {
		return SubscribeRequest{
			From:   addr.Bare().String(),
			Status: el.ChildText("status"),
		}
	}

	if env.GroupDomain != "" && addr.Domainpart() == env.GroupDomain {
		gp := GroupPresence{
			Room: addr.Bare().String(),
			Nick: addr.Resourcepart(),
			Type: typ,
		}
		if x := el.ChildNS(NSMUCUser, "x"); x != nil {
			if item := x.Child("item"); item != nil {
				gp.Affiliation = item.Attr("affiliation")
				gp.Role = item.Attr("role")
			}
		}
		return gp
	}

	return Presence{
		From:   addr.Bare().String(),
		Type:   typ,
		Show:   el.ChildText("show"),
		Status: el.ChildText("status"),
	}
}

func classifyMessage(el Element, env Env) Event {
	if res := el.ChildNS(NSMAM, "result"); res != nil {
		return classifyHistoryResult(el, *res)
	}

	if x := el.ChildNS(NSMUCUser, "x"); x != nil {
		if invite := x.Child("invite"); invite != nil {
			from := el.Attr("from")
			return Invitation{
				Room:    bareOf(from),
				Inviter: bareOf(invite.Attr("from")),
				Reason:  invite.ChildText("reason"),
			}
		}
	}
	if x := el.ChildNS(NSConference, "x"); x != nil {
		return Invitation{
			Room:    bareOf(x.Attr("jid")),
			Inviter: bareOf(el.Attr("from")),
			Reason:  x.Attr("reason"),
		}
	}

	if x := el.ChildNS(NSAvatar, "x"); x != nil && el.ChildText("body") == "" {
		from := el.Attr("from")
		if from == "" {
			return Unrecognized{Reason: "avatar update without from", El: el}
		}
		return AvatarUpdate{From: bareOf(from), Hash: x.ChildText("photo")}
	}

	body := el.ChildText("body")
	if body == "" {
		return Unrecognized{Reason: "message without body", El: el}
	}

	from := el.Attr("from")
	if from == "" {
		return Unrecognized{Reason: "message without from", El: el}
	}
	addr, err := jid.Parse(from)
	if err != nil {
		return Unrecognized{Reason: "message with unparsable from", El: el}
	}

	stamp := delayStamp(el)

	if el.Attr("type") == "groupchat" {
		return GroupMessage{
			Room:  addr.Bare().String(),
			Nick:  addr.Resourcepart(),
			ID:    el.Attr("id"),
			Body:  body,
			Stamp: stamp,
		}
	}

	return ChatMessage{
		ID:    el.Attr("id"),
		From:  addr.Bare().String(),
		To:    bareOf(el.Attr("to")),
		Body:  body,
		Stamp: stamp,
	}
}

// classifyHistoryResult unwraps forwarded/delay/message from a history
// result. A result that cannot be unwrapped is unusable and dropped.
func classifyHistoryResult(outer, res Element) Event {
	fwd := res.ChildNS(NSForward, "forwarded")
	if fwd == nil {
		return Unrecognized{Reason: "history result without forwarded wrapper", El: outer}
	}
	inner := fwd.Child("message")
	if inner == nil {
		return Unrecognized{Reason: "history result without inner message", El: outer}
	}

	h := HistoryResult{
		QueryID: res.Attr("queryid"),
		ID:      inner.Attr("id"),
		From:    bareOf(inner.Attr("from")),
		To:      bareOf(inner.Attr("to")),
		Body:    inner.ChildText("body"),
		Stamp:   delayStamp(*fwd),
	}
	if h.ID == "" {
		h.ID = res.Attr("id")
	}
	if h.From == "" || h.Body == "" {
		return Unrecognized{Reason: "history result missing sender or body", El: outer}
	}
	return h
}

func classifyIQ(el Element) Event {
	id := el.Attr("id")
	typ := el.Attr("type")
	from := el.Attr("from")

	if q := el.ChildNS(NSRoster, "query"); q != nil {
		reply := RosterReply{ID: id, Push: typ == "set"}
		for _, item := range q.Children {
			if item.XMLName.Local != "item" {
				continue
			}
			reply.Items = append(reply.Items, RosterItem{
				JID:          item.Attr("jid"),
				Name:         item.Attr("name"),
				Subscription: item.Attr("subscription"),
				Ask:          item.Attr("ask"),
			})
		}
		return reply
	}

	if q := el.ChildNS(NSDiscoItems, "query"); q != nil && typ == "result" {
		reply := RoomDirectoryReply{ID: id, From: bareOf(from)}
		for _, item := range q.Children {
			if item.XMLName.Local != "item" {
				continue
			}
			reply.Items = append(reply.Items, DirectoryItem{
				JID:  item.Attr("jid"),
				Name: item.Attr("name"),
			})
		}
		return reply
	}

	if q := el.ChildNS(NSDiscoInfo, "query"); q != nil && typ == "result" {
		reply := RoomInfoReply{ID: id, From: bareOf(from)}
		for _, c := range q.Children {
			switch c.XMLName.Local {
			case "identity":
				if reply.Name == "" {
					reply.Name = c.Attr("name")
				}
			case "feature":
				reply.Features = append(reply.Features, c.Attr("var"))
			}
		}
		return reply
	}

	if slot := el.ChildNS(NSUpload, "slot"); slot != nil && typ == "result" {
		grant := UploadGrant{ID: id, Headers: make(map[string]string)}
		if put := slot.Child("put"); put != nil {
			grant.PutURL = put.Attr("url")
			for _, h := range put.Children {
				if h.XMLName.Local == "header" {
					grant.Headers[h.Attr("name")] = h.Text
				}
			}
		}
		if get := slot.Child("get"); get != nil {
			grant.GetURL = get.Attr("url")
		}
		return grant
	}

	if q := el.ChildNS(NSPrivate, "query"); q != nil && typ == "result" {
		snap := BookmarkSnapshot{ID: id}
		if storage := q.ChildNS(NSBookmarks, "storage"); storage != nil {
			snap.Items = decodeBookmarks(*storage)
		}
		return snap
	}

	result := IQResult{ID: id, Type: typ, From: bareOf(from), El: el}
	if typ == "error" {
		if e := el.Child("error"); e != nil && len(e.Children) > 0 {
			result.Error = e.Children[0].XMLName.Local
		}
	}
	return result
}

func delayStamp(el Element) time.Time {
	d := el.ChildNS(NSDelay, "delay")
	if d == nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, d.Attr("stamp"))
	if err != nil {
		return time.Time{}
	}
	return t
}

func bareOf(addr string) string {
	if addr == "" {
		return ""
	}
	j, err := jid.Parse(addr)
	if err != nil {
		// Fall back to stripping the resource by hand.
		if i := strings.IndexByte(addr, '/'); i >= 0 {
			return addr[:i]
		}
		return addr
	}
	return j.Bare().String()
}
