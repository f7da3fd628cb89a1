package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ageniuscoder/mmchat/client/internal/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 5120

	defaultRedialWait = 3 * time.Second
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

type subscriber struct {
	filter func(Event) bool
	fn     func(Event)
}

// Conn owns the single websocket connection for an authenticated session.
// It dials when a token is set, announces the local identity with a
// register event, fans inbound events out to filtered subscribers and
// redials on a fixed interval after the transport drops. Presence is
// tracked on the same connection.
type Conn struct {
	url    string
	log    *slog.Logger
	redial time.Duration

	presence *Presence

	mu      sync.Mutex
	token   string
	localID string
	state   State
	ws      *websocket.Conn
	send    chan []byte
	subs    map[int]subscriber
	nextSub int
	closed  bool
	gen     int
}

type Option func(*Conn)

func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) { c.log = l }
}

func WithRedialWait(d time.Duration) Option {
	return func(c *Conn) { c.redial = d }
}

func New(wsURL string, opts ...Option) *Conn {
	c := &Conn{
		url:      wsURL,
		log:      slog.Default(),
		redial:   defaultRedialWait,
		presence: NewPresence(),
		state:    StateDisconnected,
		subs:     make(map[int]subscriber),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken swaps the credential the connection is keyed by. The previous
// transport is always closed first; an empty token leaves the connection
// down. The local user id is decoded from the token payload.
func (c *Conn) SetToken(token string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if token == c.token {
		c.mu.Unlock()
		return nil
	}
	c.token = token
	c.gen++
	gen := c.gen
	c.teardownLocked()
	if token == "" {
		c.localID = ""
		c.mu.Unlock()
		return nil
	}
	id, err := auth.Identity(token)
	if err != nil {
		c.token = ""
		c.localID = ""
		c.mu.Unlock()
		return fmt.Errorf("decode token: %w", err)
	}
	c.localID = id
	c.state = StateConnecting
	c.mu.Unlock()

	go c.dial(gen)
	return nil
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) LocalID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localID
}

// Online exposes the presence set tracked on this connection.
func (c *Conn) Online() *Presence {
	return c.presence
}

// Subscribe registers a filtered listener for inbound events and returns
// its cancel. Events are delivered in transport order; a nil filter
// matches everything.
func (c *Conn) Subscribe(filter func(Event) bool, fn func(Event)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = subscriber{filter: filter, fn: fn}
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Emit sends one event. Fails fast when the transport is down so callers
// can disable submission instead of queueing into the void.
func (c *Conn) Emit(name string, data any) error {
	ev, err := NewEvent(name, data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.state != StateConnected || c.send == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	send := c.send
	c.mu.Unlock()
	select {
	case send <- raw:
		return nil
	default:
		return fmt.Errorf("chat: send buffer full")
	}
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.gen++
	c.teardownLocked()
}

// teardownLocked closes the live transport and resets connection-scoped
// state. Callers hold c.mu.
func (c *Conn) teardownLocked() {
	if c.ws != nil {
		c.ws.Close()
		c.ws = nil
	}
	c.send = nil
	c.state = StateDisconnected
	c.presence.Reset()
}

func (c *Conn) dial(gen int) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	token, id := c.token, c.localID
	c.state = StateConnecting
	c.mu.Unlock()

	ws, _, err := websocket.DefaultDialer.Dial(c.url+"?token="+url.QueryEscape(token), nil)
	if err != nil {
		c.log.Error("socket dial failed", "url", c.url, "err", err)
		c.mu.Lock()
		if !c.closed && gen == c.gen {
			c.state = StateDisconnected
			time.AfterFunc(c.redial, func() { c.dial(gen) })
		}
		c.mu.Unlock()
		return
	}

	send := make(chan []byte, 256)
	done := make(chan struct{})
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		ws.Close()
		return
	}
	c.ws = ws
	c.send = send
	c.state = StateConnected
	c.mu.Unlock()

	go c.writePump(ws, send, done)
	go c.readPump(ws, done, gen)

	// Let the server map this connection to an identity.
	if err := c.Emit(EventRegister, id); err != nil {
		c.log.Error("register emit failed", "err", err)
	}
	c.log.Info("socket connected", "user", id)
}

func (c *Conn) readPump(ws *websocket.Conn, done chan struct{}, gen int) {
	defer c.lost(ws, done, gen)
	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil || ev.Name == "" {
			// One bad frame must not take the connection down.
			c.log.Warn("dropping malformed frame", "err", err)
			continue
		}
		c.dispatch(ev)
	}
}

func (c *Conn) writePump(ws *websocket.Conn, send chan []byte, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()
	for {
		select {
		case raw := <-send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// lost runs once per connection, when its read pump exits. If the token is
// still set and the connection was not replaced or closed, a redial is
// scheduled on a fixed interval.
func (c *Conn) lost(ws *websocket.Conn, done chan struct{}, gen int) {
	close(done)
	ws.Close()
	c.mu.Lock()
	current := c.ws == ws
	if current {
		c.ws = nil
		c.send = nil
		c.state = StateDisconnected
		c.presence.Reset()
	}
	redial := current && !c.closed && gen == c.gen && c.token != ""
	if redial {
		time.AfterFunc(c.redial, func() { c.dial(gen) })
	}
	c.mu.Unlock()
	if current {
		c.log.Info("socket disconnected", "redial", redial)
	}
}

func (c *Conn) dispatch(ev Event) {
	c.presence.apply(ev)
	c.mu.Lock()
	subs := make([]subscriber, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()
	for _, s := range subs {
		if s.filter == nil || s.filter(ev) {
			s.fn(ev)
		}
	}
}
