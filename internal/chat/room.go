package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultTypingTTL = 3 * time.Second

// RoomID derives the channel identifier for a two-party conversation.
// Sorted so both sides compute the same id no matter who initiates.
func RoomID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}

// HistoryStore is the persisted-history collaborator: one fetch per room,
// records ascending by creation time.
type HistoryStore interface {
	Chats(ctx context.Context, roomID string) ([]Message, error)
}

// Cache receives every accepted live message, best effort.
type Cache interface {
	SaveMessage(m Message) error
}

// link is what a session needs from the shared connection.
type link interface {
	Emit(name string, data any) error
	Subscribe(filter func(Event) bool, fn func(Event)) func()
	State() State
}

// Session is the per-room view over the shared connection: it joins the
// room once, merges the one-time history fetch with the live stream
// (history prefix, live suffix, no re-sort) and tracks who is typing.
// Messages for other rooms on the same socket are ignored. A session is
// built per room; switching rooms means closing this one and starting a
// fresh instance, so no state bleeds across.
type Session struct {
	conn    link
	room    string
	localID string
	store   HistoryStore
	cache   Cache
	ttl     time.Duration
	log     *slog.Logger

	onMessage func(Message)
	onTyping  func(peers []string)

	mu      sync.Mutex
	joined  bool
	closed  bool
	history []Message
	live    []Message
	typing  map[string]struct{}
	cancels []func()
	typingT *time.Timer
}

type SessionOption func(*Session)

// WithHistory attaches the persisted-history collaborator; the fetch runs
// once, on Start.
func WithHistory(store HistoryStore) SessionOption {
	return func(s *Session) { s.store = store }
}

// WithCache write-throughs accepted live messages to a local store.
func WithCache(cache Cache) SessionOption {
	return func(s *Session) { s.cache = cache }
}

// WithTypingTTL overrides the quiet period after which a local typing
// broadcast auto-stops.
func WithTypingTTL(d time.Duration) SessionOption {
	return func(s *Session) { s.ttl = d }
}

func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.log = l }
}

// WithOnMessage is the rendering hook for accepted live messages.
func WithOnMessage(fn func(Message)) SessionOption {
	return func(s *Session) { s.onMessage = fn }
}

// WithOnTyping is called with the room's typing peers whenever the set
// changes.
func WithOnTyping(fn func(peers []string)) SessionOption {
	return func(s *Session) { s.onTyping = fn }
}

func NewSession(conn *Conn, roomID, localID string, opts ...SessionOption) *Session {
	return newSession(conn, roomID, localID, opts...)
}

func newSession(conn link, roomID, localID string, opts ...SessionOption) *Session {
	s := &Session{
		conn:    conn,
		room:    roomID,
		localID: localID,
		ttl:     defaultTypingTTL,
		log:     slog.Default(),
		typing:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Room() string { return s.room }

// Start joins the room and attaches the room-scoped listeners. Calling it
// again on the same session is a no-op; the join is fire-and-forget.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.joined {
		s.mu.Unlock()
		return nil
	}
	s.joined = true
	s.mu.Unlock()

	if err := s.conn.Emit(EventJoinRoom, s.room); err != nil {
		s.mu.Lock()
		s.joined = false
		s.mu.Unlock()
		return err
	}

	offMsg := s.conn.Subscribe(func(ev Event) bool { return ev.Name == EventReceiveMessage }, s.handleMessage)
	offTyp := s.conn.Subscribe(func(ev Event) bool { return ev.Name == EventTyping }, s.handleTyping)
	s.mu.Lock()
	s.cancels = append(s.cancels, offMsg, offTyp)
	s.mu.Unlock()

	if s.store != nil {
		go s.loadHistory(ctx)
	}
	return nil
}

func (s *Session) loadHistory(ctx context.Context) {
	msgs, err := s.store.Chats(ctx, s.room)
	if err != nil {
		s.log.Error("history fetch failed", "room", s.room, "err", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		// Session was abandoned while the fetch was in flight.
		return
	}
	for i := range msgs {
		msgs[i].Room = s.room
		msgs[i].IsMe = msgs[i].Sender == s.localID
	}
	s.history = msgs
}

func (s *Session) handleMessage(ev Event) {
	var p MessagePayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		s.log.Warn("dropping malformed message event", "err", err)
		return
	}
	if p.Room != s.room {
		// Some other room multiplexed on the same socket.
		return
	}
	m := Message{
		ID:     p.ID,
		Room:   p.Room,
		Sender: p.Sender,
		Text:   p.Message,
		IsMe:   p.Sender == s.localID,
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if p.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, p.Timestamp); err == nil {
			m.Timestamp = ts
		}
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.live = append(s.live, m)
	// A message from a peer implies they stopped typing.
	delete(s.typing, p.Sender)
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.SaveMessage(m); err != nil {
			s.log.Warn("cache write failed", "id", m.ID, "err", err)
		}
	}
	if s.onMessage != nil {
		s.onMessage(m)
	}
	if s.onTyping != nil {
		s.onTyping(s.TypingPeers())
	}
}

func (s *Session) handleTyping(ev Event) {
	var p TypingPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		s.log.Warn("dropping malformed typing event", "err", err)
		return
	}
	if p.Room != s.room || p.User == "" {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if p.IsTyping {
		s.typing[p.User] = struct{}{}
	} else {
		delete(s.typing, p.User)
	}
	s.mu.Unlock()
	if s.onTyping != nil {
		s.onTyping(s.TypingPeers())
	}
}

// Messages returns history followed by everything received live, in
// arrival order. No reconciliation happens across that boundary.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, 0, len(s.history)+len(s.live))
	out = append(out, s.history...)
	out = append(out, s.live...)
	return out
}

// TypingPeers lists the peers currently composing in this room.
func (s *Session) TypingPeers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.typing))
	for id := range s.typing {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Send emits the message and a typing-stopped right behind it. The local
// sequence is not touched here: the sender sees the message again via the
// room echo or the persisted history, which the caller writes separately.
func (s *Session) Send(text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.mu.Unlock()

	p := MessagePayload{
		Room:      s.room,
		Sender:    s.localID,
		Message:   text,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.conn.Emit(EventSendMessage, p); err != nil {
		return err
	}
	s.stopTypingTimer()
	return s.conn.Emit(EventTyping, TypingPayload{Room: s.room, User: s.localID, IsTyping: false})
}

// SendTyping broadcasts the local composing state. A true rearm replaces
// any pending auto-stop timer, so the quiet period is measured from the
// latest call.
func (s *Session) SendTyping(isTyping bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.mu.Unlock()

	if err := s.conn.Emit(EventTyping, TypingPayload{Room: s.room, User: s.localID, IsTyping: isTyping}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typingT != nil {
		s.typingT.Stop()
		s.typingT = nil
	}
	if isTyping {
		s.typingT = time.AfterFunc(s.ttl, s.autoStopTyping)
	}
	return nil
}

func (s *Session) autoStopTyping() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.typingT = nil
	s.mu.Unlock()
	if err := s.conn.Emit(EventTyping, TypingPayload{Room: s.room, User: s.localID, IsTyping: false}); err != nil {
		s.log.Warn("typing auto-stop emit failed", "err", err)
	}
}

func (s *Session) stopTypingTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typingT != nil {
		s.typingT.Stop()
		s.typingT = nil
	}
}

// Close detaches the room listeners and cancels the typing timer. A
// closed session never reactivates; build a new one for the next room.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancels := s.cancels
	s.cancels = nil
	if s.typingT != nil {
		s.typingT.Stop()
		s.typingT = nil
	}
	s.history = nil
	s.live = nil
	s.typing = make(map[string]struct{})
	s.mu.Unlock()

	for _, off := range cancels {
		off()
	}
}
