package transport

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"mellium.im/sasl"
	"mellium.im/xmpp"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"

	"github.com/chamale-rac/xmpp/internal/wire"
)

// Client is the TCP Transport implementation backed by a Mellium session.
type Client struct {
	mu        sync.RWMutex
	session   *xmpp.Session
	jid       jid.JID
	password  string
	server    string
	port      int
	connected bool

	onStanza  func(el wire.Element)
	onOnline  func()
	onOffline func(err error)

	ctx    context.Context
	cancel context.CancelFunc
}

// ClientConfig contains connection settings for the TCP transport.
type ClientConfig struct {
	JID      string
	Password string
	Server   string
	Port     int
	Resource string
}

// NewClient creates a new TCP transport.
func NewClient(cfg ClientConfig) (*Client, error) {
	j, err := jid.Parse(cfg.JID)
	if err != nil {
		return nil, fmt.Errorf("invalid JID: %w", err)
	}

	if cfg.Resource != "" {
		j, err = j.WithResource(cfg.Resource)
		if err != nil {
			return nil, fmt.Errorf("invalid resource: %w", err)
		}
	}

	if cfg.Port == 0 {
		cfg.Port = 5222
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		jid:      j,
		password: cfg.Password,
		server:   cfg.Server,
		port:     cfg.Port,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Connect establishes a connection and negotiates the stream. Safe to call
// again after a drop; each successful negotiation fires the online handler.
func (c *Client) Connect() error {
	c.mu.Lock()

	if c.connected {
		c.mu.Unlock()
		return nil
	}

	// A previous Disconnect cancelled the context; every attempt gets a
	// fresh one so reconnecting works.
	c.ctx, c.cancel = context.WithCancel(context.Background())

	server := c.server
	if server == "" {
		server = c.jid.Domain().String()
	}

	addr := fmt.Sprintf("%s:%d", server, c.port)

	conn, err := net.DialTimeout("tcp", addr, 30*time.Second)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to dial server: %w", err)
	}

	tlsConfig := &tls.Config{
		ServerName: c.jid.Domain().String(),
		MinVersion: tls.VersionTLS12,
	}

	negotiator := xmpp.NewNegotiator(func(_ *xmpp.Session, _ *xmpp.StreamConfig) xmpp.StreamConfig {
		return xmpp.StreamConfig{
			Features: []xmpp.StreamFeature{
				xmpp.StartTLS(tlsConfig),
				xmpp.SASL("", c.password, sasl.ScramSha256Plus, sasl.ScramSha256, sasl.ScramSha1Plus, sasl.ScramSha1, sasl.Plain),
				xmpp.BindResource(),
			},
		}
	})

	session, err := xmpp.NewSession(c.ctx, c.jid.Domain(), c.jid, conn, 0, negotiator)
	if err != nil {
		conn.Close()
		c.mu.Unlock()
		return fmt.Errorf("failed to negotiate session: %w", err)
	}

	c.session = session
	c.connected = true
	c.jid = session.LocalAddr()
	onOnline := c.onOnline
	c.mu.Unlock()

	go c.readLoop(session)

	// The handler runs unlocked; it is free to call back into the client.
	if onOnline != nil {
		onOnline()
	}

	return nil
}

// Disconnect closes the connection. Entity state held by callers is theirs
// to keep; this only tears down the stream.
func (c *Client) Disconnect() error {
	c.mu.Lock()

	if !c.connected {
		c.mu.Unlock()
		return nil
	}

	if c.session != nil {
		_ = c.session.Encode(c.ctx, stanza.Presence{Type: stanza.UnavailablePresence})
		_ = c.session.Close()
	}
	c.cancel()

	c.connected = false
	c.session = nil
	onOffline := c.onOffline
	c.mu.Unlock()

	if onOffline != nil {
		onOffline(nil)
	}

	return nil
}

// readLoop decodes inbound top-level elements and hands each one to the
// stanza handler, serially.
func (c *Client) readLoop(session *xmpp.Session) {
	d := xml.NewTokenDecoder(session.TokenReader())

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		tok, err := d.Token()
		if err != nil {
			if err == io.EOF {
				c.handleDrop(nil)
			} else {
				c.handleDrop(err)
			}
			return
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "message", "presence", "iq":
			var el wire.Element
			if err := d.DecodeElement(&el, &start); err != nil {
				c.handleDrop(err)
				return
			}
			if c.onStanza != nil {
				c.onStanza(el)
			}
		default:
			if err := d.Skip(); err != nil {
				c.handleDrop(err)
				return
			}
		}
	}
}

func (c *Client) handleDrop(err error) {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.session = nil
	c.mu.Unlock()

	if wasConnected && c.onOffline != nil {
		c.onOffline(err)
	}
}

// Send dispatches one outbound document.
func (c *Client) Send(el wire.Element) error {
	c.mu.RLock()
	session := c.session
	connected := c.connected
	c.mu.RUnlock()

	if !connected || session == nil {
		return fmt.Errorf("not connected")
	}

	return session.Encode(c.ctx, el)
}

// LocalJID returns the negotiated local address.
func (c *Client) LocalJID() jid.JID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jid
}

// Connected reports whether the stream is up.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetStanzaHandler sets the inbound document handler.
func (c *Client) SetStanzaHandler(handler func(el wire.Element)) {
	c.onStanza = handler
}

// SetOnlineHandler sets the connection-established handler.
func (c *Client) SetOnlineHandler(handler func()) {
	c.onOnline = handler
}

// SetOfflineHandler sets the connection-lost handler.
func (c *Client) SetOfflineHandler(handler func(err error)) {
	c.onOffline = handler
}
