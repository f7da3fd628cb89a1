// Package chattest runs an in-memory stand-in for the mmchat backend:
// the authenticated websocket endpoint with its register/joinRoom/
// sendMessage/typing handling, presence broadcasts, and the graphql
// endpoint serving GetUsers, GetChats and AddChat. Tests dial it like the
// real thing.
package chattest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ageniuscoder/mmchat/client/internal/auth"
	"github.com/ageniuscoder/mmchat/client/internal/chat"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type seedUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type chatRecord struct {
	ID        string `json:"_id"`
	RoomID    string `json:"roomId"`
	SenderID  string `json:"senderId"`
	Text      string `json:"text"`
	IsRead    bool   `json:"isRead"`
	CreatedAt string `json:"createdAt"`
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	userID string
	rooms  map[string]bool
	gone   bool
}

type Server struct {
	Secret string

	ts *httptest.Server

	mu      sync.Mutex
	clients map[*client]bool
	users   []seedUser
	chats   map[string][]chatRecord
}

func New(t *testing.T, secret string) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		Secret:  secret,
		clients: make(map[*client]bool),
		chats:   make(map[string][]chatRecord),
	}

	r := gin.New()
	r.GET("/ws", s.serveWS)
	r.POST("/graphql", s.serveGraphQL)
	s.ts = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Close() {
	s.mu.Lock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()
	s.ts.Close()
}

// Token mints a credential the server will accept for userID.
func (s *Server) Token(userID string) string {
	tok, _ := auth.NewToken(s.Secret, userID, 60)
	return tok
}

// GraphQLURL is what internal/api dials.
func (s *Server) GraphQLURL() string { return s.ts.URL + "/graphql" }

// WSURL is what internal/chat dials.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws"
}

func (s *Server) SeedUser(id, name, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, seedUser{ID: id, Name: name, Email: email})
}

func (s *Server) SeedChat(roomID, senderID, text string, createdAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[roomID] = append(s.chats[roomID], chatRecord{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		SenderID:  senderID,
		Text:      text,
		CreatedAt: createdAt.UTC().Format(time.RFC3339),
	})
}

// OnlineIDs reports which user ids currently hold a registered socket.
func (s *Server) OnlineIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onlineLocked("")
}

func (s *Server) onlineLocked(skip string) []string {
	set := make(map[string]struct{})
	for c := range s.clients {
		if c.userID != "" && c.userID != skip {
			set[c.userID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Server) serveWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		h := c.GetHeader("Authorization")
		if strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	if _, err := auth.ParseToken(s.Secret, token); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	cl := &client{
		conn:  conn,
		send:  make(chan []byte, 64),
		rooms: make(map[string]bool),
	}
	s.mu.Lock()
	s.clients[cl] = true
	s.mu.Unlock()

	go cl.writePump()
	go s.readPump(cl)
}

func (cl *client) writePump() {
	for raw := range cl.send {
		if err := cl.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			return
		}
	}
}

func (s *Server) readPump(cl *client) {
	defer s.drop(cl)
	for {
		_, raw, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}
		var ev chat.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		s.handle(cl, ev)
	}
}

func (s *Server) drop(cl *client) {
	cl.conn.Close()
	s.mu.Lock()
	delete(s.clients, cl)
	cl.gone = true
	close(cl.send)
	uid := cl.userID
	stillOn := false
	for other := range s.clients {
		if other.userID == uid {
			stillOn = true
		}
	}
	s.mu.Unlock()
	if uid != "" && !stillOn {
		s.broadcast(chat.EventUserOffline, uid, nil)
	}
}

func (s *Server) handle(cl *client, ev chat.Event) {
	switch ev.Name {
	case chat.EventRegister:
		uid := ev.Str()
		s.mu.Lock()
		cl.userID = uid
		snapshot := s.onlineLocked("")
		s.mu.Unlock()
		s.sendTo(cl, chat.EventOnlineUsers, snapshot)
		s.broadcast(chat.EventUserOnline, uid, cl)
	case chat.EventJoinRoom:
		room := ev.Str()
		s.mu.Lock()
		cl.rooms[room] = true
		s.mu.Unlock()
	case chat.EventSendMessage:
		var p chat.MessagePayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.Timestamp == "" {
			p.Timestamp = time.Now().UTC().Format(time.RFC3339)
		}
		// Echo to everyone in the room, the sender included.
		s.toRoom(p.Room, chat.EventReceiveMessage, p, nil)
	case chat.EventTyping:
		var p chat.TypingPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		s.toRoom(p.Room, chat.EventTyping, p, cl)
	}
}

func (s *Server) sendTo(cl *client, name string, data any) {
	ev, err := chat.NewEvent(name, data)
	if err != nil {
		return
	}
	raw, _ := json.Marshal(ev)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cl.gone {
		return
	}
	select {
	case cl.send <- raw:
	default:
	}
}

func (s *Server) broadcast(name string, data any, except *client) {
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		if c != except {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()
	for _, c := range targets {
		s.sendTo(c, name, data)
	}
}

func (s *Server) toRoom(room, name string, data any, except *client) {
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		if c != except && c.rooms[room] {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()
	for _, c := range targets {
		s.sendTo(c, name, data)
	}
}
