package session

import (
	"go.uber.org/zap"

	"github.com/chamale-rac/xmpp/internal/wire"
)

// HandleStanza is the single intake for inbound documents. Classification
// happens exactly once; each concrete shape dispatches to one handler.
// Replies carrying a correlation id that matches nothing are dropped
// without side effects.
func (s *Session) HandleStanza(el wire.Element) {
	env := wire.Env{LocalBare: s.LocalBare(), GroupDomain: s.ConferenceDomain()}

	switch ev := wire.Classify(el, env).(type) {
	case wire.UploadGrant:
		s.handleUploadGrant(ev)
	case wire.BookmarkSnapshot:
		s.handleBookmarkSnapshot(ev)
	case wire.RosterReply:
		s.handleRosterReply(ev)
	case wire.RoomDirectoryReply:
		s.handleRoomDirectory(ev)
	case wire.RoomInfoReply:
		s.handleRoomInfo(ev)
	case wire.IQResult:
		s.handleIQResult(ev)
	case wire.SubscribeRequest:
		s.handleSubscribeRequest(ev)
	case wire.GroupPresence:
		s.handleGroupPresence(ev)
	case wire.Presence:
		s.handlePresence(ev)
	case wire.ChatMessage:
		s.handleChatMessage(ev)
	case wire.GroupMessage:
		s.handleGroupMessage(ev)
	case wire.HistoryResult:
		s.handleHistoryResult(ev)
	case wire.AvatarUpdate:
		s.handleAvatarUpdate(ev)
	case wire.Invitation:
		s.handleInvitation(ev)
	case wire.Unrecognized:
		s.log.Debug("dropping unrecognized document",
			zap.String("name", ev.El.Name()),
			zap.String("reason", ev.Reason))
	}
}
