// Package session orchestrates one live chat room: the connection, the
// encryption key, the roster and the message log, and the end-of-session
// semantics.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kseli/kseli-go/internal/broadcast"
	"github.com/kseli/kseli-go/internal/config"
	"github.com/kseli/kseli-go/internal/connection"
	"github.com/kseli/kseli-go/internal/crypto"
	"github.com/kseli/kseli-go/internal/rooms"
	"github.com/kseli/kseli-go/internal/store"
	"github.com/kseli/kseli-go/pkg/protocol"
)

// sessionTTL bounds how long a refresh can resume a session.
const sessionTTL = 30 * time.Minute

var (
	// ErrNotConnected is returned by SendMessage when no live connection
	// exists.
	ErrNotConnected = errors.New("session is not connected")

	// ErrNoSession is returned by Resume when the tab has no resumable
	// session for the requested room.
	ErrNoSession = errors.New("no resumable session for this room")
)

// Message is a decrypted chat message.
type Message struct {
	Username string
	Content  string
}

// EventKind discriminates session events.
type EventKind int

const (
	EventMessage EventKind = iota
	EventJoin
	EventLeave
	EventEnd
	EventConflict
)

// Event is published on the session's event channel as roster and message
// state changes.
type Event struct {
	Kind        EventKind
	Message     *Message
	Participant *protocol.Participant
	LeftID      uint8

	// Reason is set on EventEnd.
	Reason protocol.CloseReason

	// ConflictRoomID is set on EventConflict: another session of the same
	// profile announced a different active room.
	ConflictRoomID string
}

// Session owns the single connection and key handle of one live room.
// Construct one per room; there is no package-level state.
type Session struct {
	cfg      config.Config
	log      *zap.Logger
	rooms    *rooms.Client
	tab      *store.Store
	channel  *broadcast.Channel
	unwatch  func()
	events   chan Event
	ended    atomic.Bool
	username string

	mu          sync.Mutex
	conn        *connection.Conn
	cipher      *crypto.Cipher
	keyMaterial string
	roomID      string
	token       string
	roster      map[uint8]protocol.Participant
	msgs        []Message
	endReason   protocol.CloseReason
}

// Option customizes a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithBus sets the cross-session coordination bus shared by one profile.
func WithBus(bus *broadcast.Bus) Option {
	return func(s *Session) { s.channel = bus.Open(broadcast.ActiveRoomChannel) }
}

// WithTabStore sets the tab-scoped store. Sessions sharing a store behave
// like navigations within one tab.
func WithTabStore(tab *store.Store) Option {
	return func(s *Session) { s.tab = tab }
}

// New creates an idle session. Use Create, Join, or Resume to go live.
func New(cfg config.Config, opts ...Option) (*Session, error) {
	s := &Session{
		cfg:    cfg,
		log:    zap.NewNop(),
		events: make(chan Event, 64),
		roster: make(map[uint8]protocol.Participant),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.tab == nil {
		s.tab = store.NewTabStore()
	}
	if s.channel == nil {
		s.channel = broadcast.NewBus().Open(broadcast.ActiveRoomChannel)
	}

	profile, err := store.NewProfileStore(filepath.Join(cfg.ProfileDir, "profile.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to open profile store: %w", err)
	}
	s.rooms = rooms.New(cfg, profile, s.log)

	return s, nil
}

// Rooms exposes the room management client, for moderation calls made
// with this session's token.
func (s *Session) Rooms() *rooms.Client { return s.rooms }

// Create makes a new room, generates fresh key material, and goes live
// as its admin.
func (s *Session) Create(ctx context.Context, username string, maxParticipants int) (*rooms.Room, error) {
	resp, err := s.rooms.CreateRoom(ctx, rooms.CreateRoomRequest{
		Username:        username,
		MaxParticipants: maxParticipants,
	})
	if err != nil {
		return nil, err
	}

	keyMaterial, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	s.username = username
	return s.start(ctx, resp.RoomID, resp.Token, keyMaterial)
}

// Join enters an existing room. The invite carries both the join secret
// and the symmetric key material.
func (s *Session) Join(ctx context.Context, roomID, username, secret, keyMaterial string) (*rooms.Room, error) {
	resp, err := s.rooms.JoinRoom(ctx, roomID, rooms.JoinRoomRequest{
		Username:      username,
		RoomSecretKey: secret,
	})
	if err != nil {
		return nil, err
	}
	s.username = username
	return s.start(ctx, roomID, resp.Token, keyMaterial)
}

// Resume re-enters the room after a same-tab refresh. It succeeds only
// when the tab store still holds a token, key material, and a matching
// active room id.
func (s *Session) Resume(ctx context.Context, roomID string) (*rooms.Room, error) {
	token, okToken := s.tab.Get("token")
	keyMaterial, okKey := s.tab.Get("encryptionKey")
	activeRoomID, okRoom := s.tab.Get("activeRoomId")
	if !okToken || !okKey || !okRoom || activeRoomID != roomID {
		return nil, ErrNoSession
	}
	return s.start(ctx, roomID, token, keyMaterial)
}

// start imports the key, fetches the room snapshot, persists the session
// record, and opens the real-time connection.
func (s *Session) start(ctx context.Context, roomID, token, keyMaterial string) (*rooms.Room, error) {
	cipher, err := crypto.ImportKey(keyMaterial)
	if err != nil {
		return nil, err
	}

	room, err := s.rooms.GetRoom(ctx, roomID, token)
	if err != nil {
		return nil, err
	}

	if err := s.persist(roomID, token, keyMaterial); err != nil {
		return nil, err
	}

	conn, err := connection.Dial(ctx, s.cfg.WSURL, token, s.log)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.conn = conn
	s.cipher = cipher
	s.keyMaterial = keyMaterial
	s.roomID = roomID
	s.token = token
	s.roster = make(map[uint8]protocol.Participant)
	for _, p := range room.Participants {
		s.roster[p.ID] = p
	}
	s.msgs = nil
	s.mu.Unlock()

	conn.OnMessage(s.handleEnvelope)
	conn.OnClose(s.handleClose)
	conn.Start()

	s.unwatch = s.channel.Observe(s.handleAnnouncement)
	s.channel.Announce(roomID, "")

	return room, nil
}

func (s *Session) persist(roomID, token, keyMaterial string) error {
	if err := s.tab.Set("token", token, sessionTTL); err != nil {
		return err
	}
	if err := s.tab.Set("encryptionKey", keyMaterial, sessionTTL); err != nil {
		return err
	}
	return s.tab.Set("activeRoomId", roomID, sessionTTL)
}

// SendMessage encrypts the plaintext and sends it over the live
// connection.
func (s *Session) SendMessage(plaintext string) error {
	s.mu.Lock()
	conn := s.conn
	cipher := s.cipher
	s.mu.Unlock()

	if conn == nil || cipher == nil {
		return ErrNotConnected
	}

	packed, err := cipher.Encode(plaintext)
	if err != nil {
		return err
	}
	return conn.Send(packed)
}

// Participants returns a roster snapshot ordered by id.
func (s *Session) Participants() []protocol.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]protocol.Participant, 0, len(s.roster))
	for _, p := range s.roster {
		snapshot = append(snapshot, p)
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })
	return snapshot
}

// Messages returns the decrypted message log in arrival order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.msgs...)
}

// Events returns the channel of session events. Slow consumers lose
// events rather than stalling the connection.
func (s *Session) Events() <-chan Event { return s.events }

// RoomID returns the active room id, empty when idle.
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Token returns the session's access token.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// KeyMaterial returns the transportable key material, for building
// invites. Empty after the session ends.
func (s *Session) KeyMaterial() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyMaterial
}

// Username returns the name this session joined with.
func (s *Session) Username() string { return s.username }

// EndReason reports why the session ended.
func (s *Session) EndReason() protocol.CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endReason
}

// End tears the session down on the user's initiative.
func (s *Session) End() {
	s.teardown(protocol.ReasonLeave, true)
}

// handleEnvelope processes real-time envelopes in arrival order. It runs
// on the connection's read loop goroutine.
func (s *Session) handleEnvelope(env protocol.Envelope) {
	switch env.Type {
	case protocol.EnvelopeJoin:
		s.mu.Lock()
		if _, exists := s.roster[env.Join.ID]; exists {
			s.mu.Unlock()
			return
		}
		s.roster[env.Join.ID] = *env.Join
		s.mu.Unlock()
		s.emit(Event{Kind: EventJoin, Participant: env.Join})

	case protocol.EnvelopeLeave:
		s.mu.Lock()
		if _, exists := s.roster[env.Leave.ID]; !exists {
			s.mu.Unlock()
			return
		}
		delete(s.roster, env.Leave.ID)
		s.mu.Unlock()
		s.emit(Event{Kind: EventLeave, LeftID: env.Leave.ID})

	case protocol.EnvelopeMsg:
		s.mu.Lock()
		cipher := s.cipher
		s.mu.Unlock()
		if cipher == nil {
			return
		}

		plaintext, err := cipher.Decode(env.Msg.Content)
		if err != nil {
			// Fatal to this message only, never to the session.
			s.log.Warn("dropping undecodable message", zap.Error(err))
			return
		}

		msg := Message{Username: env.Msg.Username, Content: plaintext}
		s.mu.Lock()
		s.msgs = append(s.msgs, msg)
		s.mu.Unlock()
		s.emit(Event{Kind: EventMessage, Message: &msg})
	}
}

// handleClose maps the connection's close event to a semantic end cause
// and runs teardown. Remote closes are always terminal.
func (s *Session) handleClose(event connection.CloseEvent) {
	s.teardown(protocol.ClassifyClose(event.Code, event.Reason), false)
}

// handleAnnouncement enforces the one-active-room-per-profile policy.
func (s *Session) handleAnnouncement(roomID, errMsg string) {
	if errMsg != "" {
		s.emit(Event{Kind: EventConflict, ConflictRoomID: roomID})
		return
	}
	s.mu.Lock()
	local := s.roomID
	s.mu.Unlock()
	if roomID != "" && local != "" && roomID != local {
		s.emit(Event{Kind: EventConflict, ConflictRoomID: roomID})
	}
}

// teardown runs exactly once per session, whether triggered by the user
// or by a remote close.
func (s *Session) teardown(reason protocol.CloseReason, local bool) {
	if !s.ended.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.cipher = nil
	s.keyMaterial = ""
	s.roster = make(map[uint8]protocol.Participant)
	s.msgs = nil
	s.endReason = reason
	s.mu.Unlock()

	if local && conn != nil {
		conn.Close(protocol.NormalClosure, string(protocol.ReasonLeave))
	}

	if err := s.tab.Clear(); err != nil {
		s.log.Warn("failed to clear tab store", zap.Error(err))
	}

	s.emit(Event{Kind: EventEnd, Reason: reason})

	if s.unwatch != nil {
		s.unwatch()
	}
	s.channel.Announce("", "")
	s.channel.Close()
}

// emit publishes an event without ever blocking the read loop.
func (s *Session) emit(event Event) {
	select {
	case s.events <- event:
	default:
		s.log.Warn("dropping session event", zap.Int("kind", int(event.Kind)))
	}
}
