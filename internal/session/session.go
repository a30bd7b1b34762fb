package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chamale-rac/xmpp/internal/bus"
	"github.com/chamale-rac/xmpp/internal/storage/sqlite"
	"github.com/chamale-rac/xmpp/internal/store"
	"github.com/chamale-rac/xmpp/internal/transport"
	"github.com/chamale-rac/xmpp/internal/upload"
	"github.com/chamale-rac/xmpp/internal/wire"
)

// queryTimeout bounds how long a correlation id for an idempotent query is
// remembered. Side-effecting sends are never retried and never tracked.
const queryTimeout = 30 * time.Second

// Session is the state-reconciliation engine. It consumes the unordered
// stream of documents from one Transport and maintains the canonical local
// model of contacts, groups, conversations and pending operations.
type Session struct {
	log   *zap.Logger
	tr    transport.Transport
	store *store.Store
	bus   *bus.Bus
	db    *sqlite.DB
	http  *upload.Client

	nickname        string
	confDomain      string
	uploadDomain    string
	historyPageSize int
	saveMessages    bool

	mu            sync.RWMutex
	connected     bool
	connGen       uint64
	localBare     string
	ownShow       store.Show
	ownStatus     string
	selected      string
	pending       map[string]pendingOp
	directoryDone bool
	bookmarksDone bool
	autojoinDone  bool

	bookmarkOps chan func()
	done        chan struct{}
	closeOnce   sync.Once
}

type pendingKind int

const (
	pendingRoster pendingKind = iota
	pendingDirectory
	pendingRoomInfo
	pendingBookmarks
	pendingRoomConfig
	pendingAvatar
	pendingHistory
)

type pendingOp struct {
	kind pendingKind
	jid  string // room or peer the reply applies to, when relevant
}

// Options configures a Session.
type Options struct {
	Transport transport.Transport
	Logger    *zap.Logger
	Bus       *bus.Bus
	DB        *sqlite.DB // optional local cache

	// Nickname used in rooms; defaults to the account localpart.
	Nickname string

	// ConferenceDomain and UploadDomain override the service domains
	// derived from the account domain.
	ConferenceDomain string
	UploadDomain     string

	HistoryPageSize int
	SaveMessages    bool
}

// New creates a session engine bound to a transport. Call Start to register
// handlers and begin consuming events.
func New(opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	b := opts.Bus
	if b == nil {
		b = bus.New()
	}
	pageSize := opts.HistoryPageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	s := &Session{
		log:             log,
		tr:              opts.Transport,
		store:           store.New(),
		bus:             b,
		db:              opts.DB,
		http:            upload.NewClient(),
		nickname:        opts.Nickname,
		confDomain:      opts.ConferenceDomain,
		uploadDomain:    opts.UploadDomain,
		historyPageSize: pageSize,
		saveMessages:    opts.SaveMessages && opts.DB != nil,
		ownShow:         store.ShowChat,
		pending:         make(map[string]pendingOp),
		bookmarkOps:     make(chan func(), 64),
		done:            make(chan struct{}),
	}
	return s
}

// Start registers the transport handlers, preloads the local cache and
// starts the bookmark write worker. It does not connect; the caller owns
// the transport lifecycle.
func (s *Session) Start() {
	s.tr.SetStanzaHandler(s.HandleStanza)
	s.tr.SetOnlineHandler(s.handleOnline)
	s.tr.SetOfflineHandler(s.handleOffline)

	s.preloadCache()

	go s.bookmarkWorker()
}

// Close tears the session down: stops the bookmark worker, disconnects the
// transport and resets all entity state atomically.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.tr.Disconnect()
		s.store.Reset()
		s.mu.Lock()
		s.connected = false
		s.pending = make(map[string]pendingOp)
		s.selected = ""
		s.directoryDone = false
		s.bookmarksDone = false
		s.autojoinDone = false
		s.mu.Unlock()
	})
}

// Store exposes the entity tables for the query surface.
func (s *Session) Store() *store.Store {
	return s.store
}

// Bus returns the event bus carrying UI-facing projections.
func (s *Session) Bus() *bus.Bus {
	return s.bus
}

// Connected reports the connection state.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// LocalBare returns the bare address of the local account.
func (s *Session) LocalBare() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localBare
}

// ConferenceDomain returns the group chat service domain.
func (s *Session) ConferenceDomain() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.confDomain
}

// Nickname returns the room nickname of the local user.
func (s *Session) Nickname() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nickname
}

// Selected returns the currently selected conversation peer.
func (s *Session) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// SelectConversation marks a peer as the selected conversation and clears
// its unread counter.
func (s *Session) SelectConversation(peer string) {
	s.mu.Lock()
	s.selected = peer
	s.mu.Unlock()
	s.MarkConversationRead(peer)
}

// MarkConversationRead resets the peer's unread counter to absent.
func (s *Session) MarkConversationRead(peer string) {
	s.store.Conversations.ClearUnread(peer)
	if s.db != nil {
		if err := s.db.SetUnread(peer, 0); err != nil {
			s.log.Warn("failed to persist unread reset", zap.String("peer", peer), zap.Error(err))
		}
	}
}

// SetPresence updates the local show state and announces it.
func (s *Session) SetPresence(show store.Show) error {
	s.mu.Lock()
	s.ownShow = show
	status := s.ownStatus
	s.mu.Unlock()
	return s.sendOwnPresence(show, status)
}

// SetStatusMessage updates the local status text and announces it.
func (s *Session) SetStatusMessage(text string) error {
	s.mu.Lock()
	s.ownStatus = text
	show := s.ownShow
	s.mu.Unlock()
	return s.sendOwnPresence(show, text)
}

// connGeneration returns the generation of the current connection. It is
// bumped on every successful (re)connect.
func (s *Session) connGeneration() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connGen
}

// OwnShow returns the local presence show state.
func (s *Session) OwnShow() store.Show {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownShow
}

func (s *Session) sendOwnPresence(show store.Show, status string) error {
	p := wire.New("presence")
	if show != store.ShowChat {
		p = p.Append(wire.New("show").WithText(string(show)))
	}
	if status != "" {
		p = p.Append(wire.New("status").WithText(status))
	}
	return s.send(p)
}

// send dispatches an outbound document for a user-initiated command; the
// transport error propagates to the caller.
func (s *Session) send(el wire.Element) error {
	if !s.Connected() {
		return fmt.Errorf("not connected")
	}
	return s.tr.Send(el)
}

// sendQuiet dispatches a reconciliation-driven document; failures are
// logged, never surfaced interactively.
func (s *Session) sendQuiet(el wire.Element) {
	if err := s.send(el); err != nil {
		s.log.Debug("outbound document dropped", zap.String("name", el.Name()), zap.Error(err))
	}
}

// handleOnline runs the post-(re)connect recovery sequence: roster refresh,
// room directory discovery and bookmark fetch. Autojoin runs once both the
// directory and the bookmarks have arrived.
func (s *Session) handleOnline() {
	local := s.tr.LocalJID()
	domain := local.Domain().String()

	s.mu.Lock()
	s.connected = true
	s.connGen++
	s.localBare = local.Bare().String()
	if s.nickname == "" {
		s.nickname = local.Localpart()
	}
	if s.confDomain == "" {
		s.confDomain = "conference." + domain
	}
	if s.uploadDomain == "" {
		s.uploadDomain = "upload." + domain
	}
	// Reconnect invalidates every outstanding correlation id.
	s.pending = make(map[string]pendingOp)
	s.directoryDone = false
	s.bookmarksDone = false
	s.autojoinDone = false
	show, status := s.ownShow, s.ownStatus
	s.mu.Unlock()

	s.log.Info("session online", zap.String("jid", s.LocalBare()))
	s.bus.Publish(bus.Event{Kind: bus.KindConnectionChanged, Payload: true})

	if err := s.sendOwnPresence(show, status); err != nil {
		s.log.Warn("failed to announce presence", zap.Error(err))
	}
	s.RequestRoster()
	s.DiscoverRooms()
	s.FetchBookmarks()
}

// handleOffline marks the connection down. Entity state stays intact for
// display; only correlation state is discarded.
func (s *Session) handleOffline(err error) {
	s.mu.Lock()
	s.connected = false
	s.pending = make(map[string]pendingOp)
	s.directoryDone = false
	s.bookmarksDone = false
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("session offline", zap.Error(err))
	} else {
		s.log.Info("session offline")
	}
	s.bus.Publish(bus.Event{Kind: bus.KindConnectionChanged, Payload: false})
}

// trackPending remembers a correlation id for an idempotent query and
// forgets it after the query timeout.
func (s *Session) trackPending(id string, op pendingOp) {
	s.mu.Lock()
	s.pending[id] = op
	s.mu.Unlock()

	time.AfterFunc(queryTimeout, func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	})
}

// takePending claims a correlation id if it matches the expected kind. The
// id is consumed on success: replies are one-shot.
func (s *Session) takePending(id string, kind pendingKind) (pendingOp, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.pending[id]
	if !ok || op.kind != kind {
		return pendingOp{}, false
	}
	delete(s.pending, id)
	return op, true
}

// pendingKindOf looks up the kind tracked for a correlation id without
// consuming it.
func (s *Session) pendingKindOf(id string) (pendingKind, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.pending[id]
	return op.kind, ok
}

// preloadCache restores cached conversations, roster entries and unread
// counters from the local database.
func (s *Session) preloadCache() {
	if s.db == nil {
		return
	}

	entries, err := s.db.LoadRoster()
	if err != nil {
		s.log.Warn("failed to preload roster cache", zap.Error(err))
	} else {
		for _, e := range entries {
			s.store.Contacts.SetRosterInfo(e.JID, e.Name, e.Subscription)
			s.store.Conversations.Ensure(e.JID)
		}
	}

	peers, err := s.db.Peers()
	if err != nil {
		s.log.Warn("failed to preload conversation cache", zap.Error(err))
		return
	}
	for _, peer := range peers {
		msgs, err := s.db.LoadMessages(peer, s.historyPageSize)
		if err != nil {
			s.log.Warn("failed to preload messages", zap.String("peer", peer), zap.Error(err))
			continue
		}
		for _, m := range msgs {
			s.store.Conversations.Append(peer, m)
		}
	}

	unread, err := s.db.LoadUnread()
	if err != nil {
		s.log.Warn("failed to preload unread counters", zap.Error(err))
		return
	}
	for peer, count := range unread {
		for i := 0; i < count; i++ {
			s.store.Conversations.IncrementUnread(peer)
		}
	}
}

func (s *Session) persistMessage(peer string, msg store.Message) {
	if !s.saveMessages {
		return
	}
	if err := s.db.SaveMessage(peer, msg); err != nil {
		s.log.Warn("failed to cache message", zap.String("peer", peer), zap.Error(err))
	}
}

func (s *Session) persistUnread(peer string) {
	if s.db == nil {
		return
	}
	if err := s.db.SetUnread(peer, s.store.Conversations.Unread(peer)); err != nil {
		s.log.Warn("failed to cache unread counter", zap.String("peer", peer), zap.Error(err))
	}
}

func newID() string {
	return uuid.NewString()
}

// isGroupJID reports whether an address belongs to the group chat service.
func (s *Session) isGroupJID(addr string) bool {
	conf := s.ConferenceDomain()
	if conf == "" {
		return false
	}
	if i := strings.IndexByte(addr, '@'); i >= 0 {
		return addr[i+1:] == conf
	}
	return false
}
