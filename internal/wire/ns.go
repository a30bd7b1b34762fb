package wire

// Protocol namespaces understood by the classifier and the session engine.
const (
	NSRoster     = "jabber:iq:roster"
	NSPrivate    = "jabber:iq:private"
	NSBookmarks  = "storage:bookmarks"
	NSDiscoItems = "http://jabber.org/protocol/disco#items"
	NSDiscoInfo  = "http://jabber.org/protocol/disco#info"
	NSMUC        = "http://jabber.org/protocol/muc"
	NSMUCUser    = "http://jabber.org/protocol/muc#user"
	NSMUCOwner   = "http://jabber.org/protocol/muc#owner"
	NSConference = "jabber:x:conference"
	NSMAM        = "urn:xmpp:mam:2"
	NSForward    = "urn:xmpp:forward:0"
	NSDelay      = "urn:xmpp:delay"
	NSUpload     = "urn:xmpp:http:upload:0"
	NSVCardTemp  = "vcard-temp"
	NSAvatar     = "vcard-temp:x:update"
	NSData       = "jabber:x:data"
)

// Room metadata features reported by a disco#info reply.
const (
	FeatureMUCPublic      = "muc_public"
	FeatureMUCHidden      = "muc_hidden"
	FeatureMUCMembersOnly = "muc_membersonly"
	FeatureMUCOpen        = "muc_open"
)
