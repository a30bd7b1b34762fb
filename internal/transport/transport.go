package transport

import (
	"mellium.im/xmpp/jid"

	"github.com/chamale-rac/xmpp/internal/wire"
)

// Transport is the wire-level collaborator the session engine runs on. It
// frames and parses protocol documents over a single long-lived connection;
// the engine only ever sees whole documents and lifecycle events.
type Transport interface {
	// Send dispatches one outbound document, fire-and-forget.
	Send(el wire.Element) error

	// LocalJID returns the negotiated address of the local account.
	LocalJID() jid.JID

	// Connect establishes (or re-establishes) the connection. The online
	// handler fires after every successful negotiation.
	Connect() error

	// Disconnect closes the connection without tearing down handlers.
	Disconnect() error

	// SetStanzaHandler registers the callback invoked once per inbound
	// document. Invocations are serialized.
	SetStanzaHandler(func(el wire.Element))

	// SetOnlineHandler registers the connection-established callback.
	SetOnlineHandler(func())

	// SetOfflineHandler registers the connection-lost callback.
	SetOfflineHandler(func(err error))
}
