package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/chamale-rac/xmpp/internal/store"
)

// DB is the local cache for conversations, roster entries and unread
// counters so they survive a restart. The server stays authoritative; this
// cache is only ever read at startup.
type DB struct {
	db *sql.DB
}

// New opens (and migrates) the cache database inside dataDir.
func New(dataDir string) (*DB, error) {
	dbPath := filepath.Join(dataDir, "chat.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return d, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			peer TEXT NOT NULL,
			id TEXT NOT NULL,
			sender TEXT NOT NULL,
			recipient TEXT,
			body TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			outgoing INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (peer, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_peer_ts ON messages(peer, timestamp)`,

		`CREATE TABLE IF NOT EXISTS roster_cache (
			jid TEXT PRIMARY KEY,
			name TEXT,
			subscription TEXT,
			last_updated INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS unread (
			peer TEXT PRIMARY KEY,
			count INTEGER NOT NULL DEFAULT 0
		)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// SaveMessage caches one message. The (peer, id) primary key makes repeated
// saves of the same message harmless.
func (d *DB) SaveMessage(peer string, msg store.Message) error {
	outgoing := 0
	if msg.Outgoing {
		outgoing = 1
	}
	_, err := d.db.Exec(`
		INSERT OR IGNORE INTO messages (peer, id, sender, recipient, body, timestamp, outgoing)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		peer, msg.ID, msg.From, msg.To, msg.Body, msg.Timestamp.UnixMilli(), outgoing)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// LoadMessages returns the most recent cached messages for a peer in
// timestamp order. limit <= 0 loads everything.
func (d *DB) LoadMessages(peer string, limit int) ([]store.Message, error) {
	query := `SELECT id, sender, recipient, body, timestamp, outgoing
		FROM messages WHERE peer = ? ORDER BY timestamp ASC`
	args := []any{peer}
	if limit > 0 {
		query = `SELECT id, sender, recipient, body, timestamp, outgoing FROM (
			SELECT id, sender, recipient, body, timestamp, outgoing
			FROM messages WHERE peer = ? ORDER BY timestamp DESC LIMIT ?
		) ORDER BY timestamp ASC`
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		var msg store.Message
		var ts int64
		var outgoing int
		if err := rows.Scan(&msg.ID, &msg.From, &msg.To, &msg.Body, &ts, &outgoing); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Timestamp = time.UnixMilli(ts)
		msg.Outgoing = outgoing != 0
		out = append(out, msg)
	}
	return out, rows.Err()
}

// Peers returns every peer with cached messages.
func (d *DB) Peers() ([]string, error) {
	rows, err := d.db.Query(`SELECT DISTINCT peer FROM messages ORDER BY peer`)
	if err != nil {
		return nil, fmt.Errorf("failed to list peers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var peer string
		if err := rows.Scan(&peer); err != nil {
			return nil, fmt.Errorf("failed to scan peer: %w", err)
		}
		out = append(out, peer)
	}
	return out, rows.Err()
}

// UpsertRosterEntry caches one roster item.
func (d *DB) UpsertRosterEntry(jid, name string, sub store.Subscription) error {
	_, err := d.db.Exec(`
		INSERT INTO roster_cache (jid, name, subscription, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(jid) DO UPDATE SET
			name = excluded.name,
			subscription = excluded.subscription,
			last_updated = excluded.last_updated`,
		jid, name, string(sub), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert roster entry: %w", err)
	}
	return nil
}

// RosterEntry is one cached roster item.
type RosterEntry struct {
	JID          string
	Name         string
	Subscription store.Subscription
}

// LoadRoster returns all cached roster entries.
func (d *DB) LoadRoster() ([]RosterEntry, error) {
	rows, err := d.db.Query(`SELECT jid, name, subscription FROM roster_cache ORDER BY jid`)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}
	defer rows.Close()

	var out []RosterEntry
	for rows.Next() {
		var e RosterEntry
		var sub string
		if err := rows.Scan(&e.JID, &e.Name, &sub); err != nil {
			return nil, fmt.Errorf("failed to scan roster entry: %w", err)
		}
		e.Subscription = store.Subscription(sub)
		out = append(out, e)
	}
	return out, rows.Err()
}

// SetUnread records the unread count for a peer; zero removes the row.
func (d *DB) SetUnread(peer string, count int) error {
	if count <= 0 {
		_, err := d.db.Exec(`DELETE FROM unread WHERE peer = ?`, peer)
		if err != nil {
			return fmt.Errorf("failed to clear unread: %w", err)
		}
		return nil
	}
	_, err := d.db.Exec(`
		INSERT INTO unread (peer, count) VALUES (?, ?)
		ON CONFLICT(peer) DO UPDATE SET count = excluded.count`,
		peer, count)
	if err != nil {
		return fmt.Errorf("failed to set unread: %w", err)
	}
	return nil
}

// LoadUnread returns all nonzero unread counters.
func (d *DB) LoadUnread() (map[string]int, error) {
	rows, err := d.db.Query(`SELECT peer, count FROM unread`)
	if err != nil {
		return nil, fmt.Errorf("failed to load unread: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var peer string
		var count int
		if err := rows.Scan(&peer, &count); err != nil {
			return nil, fmt.Errorf("failed to scan unread: %w", err)
		}
		out[peer] = count
	}
	return out, rows.Err()
}
