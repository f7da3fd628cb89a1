package chat

import (
	"encoding/json"
	"time"
)

// Event names on the socket. Outbound: register, joinRoom, sendMessage,
// typing. Inbound: receiveMessage, typing, userOnline, userOffline,
// onlineUsersList.
const (
	EventRegister       = "register"
	EventJoinRoom       = "joinRoom"
	EventSendMessage    = "sendMessage"
	EventReceiveMessage = "receiveMessage"
	EventTyping         = "typing"
	EventUserOnline     = "userOnline"
	EventUserOffline    = "userOffline"
	EventOnlineUsers    = "onlineUsersList"
)

// Event is the JSON envelope every frame travels in.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

func NewEvent(name string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Data: raw}, nil
}

// Str decodes a bare-string payload (register, userOnline, userOffline).
func (e Event) Str() string {
	var s string
	_ = json.Unmarshal(e.Data, &s)
	return s
}

// MessagePayload is the sendMessage/receiveMessage body. The server fills
// id and timestamp on the way back; the sender leaves id empty.
type MessagePayload struct {
	ID        string `json:"id,omitempty"`
	Room      string `json:"room"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

// TypingPayload is the typing body in both directions.
type TypingPayload struct {
	Room     string `json:"room"`
	User     string `json:"user"`
	IsTyping bool   `json:"isTyping"`
}

// Message is the merged view-model a room session hands to callers.
type Message struct {
	ID        string
	Room      string
	Sender    string
	Text      string
	Timestamp time.Time
	IsMe      bool
}
