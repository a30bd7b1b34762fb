package plugin

import (
	"context"
	"time"
)

// Plugin is the interface that all plugins must implement
type Plugin interface {
	// Name returns the plugin name
	Name() string

	// Version returns the plugin version
	Version() string

	// Description returns a short description
	Description() string

	// Init initializes the plugin with the API
	Init(ctx context.Context, api API) error

	// Start starts the plugin
	Start() error

	// Stop stops the plugin
	Stop() error
}

// API is the interface exposed to plugins
type API interface {
	ContactsAPI
	ChatAPI
	EventsAPI
}

// ContactsAPI provides read access to the contact and group model
type ContactsAPI interface {
	// GetContacts returns all contacts
	GetContacts() []Contact

	// GetContact returns a specific contact
	GetContact(jid string) *Contact

	// GetGroups returns all known rooms
	GetGroups() []Group
}

// ChatAPI provides access to conversation operations
type ChatAPI interface {
	// SendMessage sends a one-to-one message
	SendMessage(to, body string) error

	// GetHistory returns conversation history
	GetHistory(jid string, limit int) []Message

	// GetUnreadCount returns the unread message count
	GetUnreadCount(jid string) int
}

// EventsAPI provides access to event subscriptions
type EventsAPI interface {
	// OnMessage registers a message handler
	OnMessage(handler func(msg Message)) func()

	// OnToast registers a notification handler
	OnToast(handler func(text string)) func()

	// OnConnectionChanged registers a connectivity handler
	OnConnectionChanged(handler func(online bool)) func()
}

// Contact represents one entry of the contact model
type Contact struct {
	JID          string
	Name         string
	Subscription string
	Show         string
	Status       string
}

// Group represents one known room
type Group struct {
	JID          string
	Name         string
	IsJoined     bool
	Participants []string
}

// Message represents a conversation message
type Message struct {
	ID        string
	From      string
	To        string
	Body      string
	Timestamp time.Time
	Outgoing  bool
}

// Metadata contains plugin metadata
type Metadata struct {
	Name        string
	Version     string
	Description string
	Author      string
	Homepage    string
	License     string
	MinVersion  string // Minimum host version required
}

// Config contains plugin configuration
type Config struct {
	Enabled bool
	Options map[string]interface{}
}
