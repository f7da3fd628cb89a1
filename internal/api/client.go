// Package api is the GraphQL-over-HTTP client for the mmchat backend: the
// paginated user directory, the per-room chat history and the history
// append mutation. The operation shapes are a fixed contract with the
// server's schema; this layer only plumbs them.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ageniuscoder/mmchat/client/internal/httpx"
)

const (
	getUsersQuery = `query GetUsers($usersInput: UsersInput!) {
  users(input: $usersInput) { items { id name email } total }
}`
	getChatsQuery = `query GetChats($roomId: String!) {
  getChats(roomId: $roomId) { _id roomId senderId text isRead createdAt }
}`
	addChatMutation = `mutation AddChat($addChatInput: CreateChatInput!) {
  addChat(input: $addChatInput) { _id roomId senderId text isRead createdAt }
}`
)

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ChatRecord struct {
	ID        string    `json:"_id"`
	RoomID    string    `json:"roomId"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

type ChatInput struct {
	RoomID   string `json:"roomId"`
	SenderID string `json:"senderId"`
	Text     string `json:"text"`
	IsRead   bool   `json:"isRead"`
}

type Client struct {
	url   string
	token string
	hc    *http.Client
}

func NewClient(url, token string) *Client {
	return &Client{
		url:   url,
		token: token,
		hc:    &http.Client{Timeout: 15 * time.Second},
	}
}

type gqlRequest struct {
	Query     string `json:"query"`
	Variables any    `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, query string, variables, out any) error {
	var resp struct {
		Data   any        `json:"data"`
		Errors []gqlError `json:"errors"`
	}
	resp.Data = out
	if err := httpx.PostJSON(ctx, c.hc, c.url, c.token, gqlRequest{Query: query, Variables: variables}, &resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("api: graphql error: %s", resp.Errors[0].Message)
	}
	return nil
}

// GetUsers fetches one page of the user directory.
func (c *Client) GetUsers(ctx context.Context, limit, skip int) ([]User, error) {
	var out struct {
		Users struct {
			Items []User `json:"items"`
			Total int    `json:"total"`
		} `json:"users"`
	}
	vars := map[string]any{"usersInput": map[string]any{"limit": limit, "skip": skip}}
	if err := c.do(ctx, getUsersQuery, vars, &out); err != nil {
		return nil, err
	}
	return out.Users.Items, nil
}

// GetChats fetches the persisted history for a room, ascending createdAt.
func (c *Client) GetChats(ctx context.Context, roomID string) ([]ChatRecord, error) {
	var out struct {
		GetChats []ChatRecord `json:"getChats"`
	}
	if err := c.do(ctx, getChatsQuery, map[string]any{"roomId": roomID}, &out); err != nil {
		return nil, err
	}
	return out.GetChats, nil
}

// AddChat persists a sent message. Runs beside the socket emit, not
// through it.
func (c *Client) AddChat(ctx context.Context, input ChatInput) (ChatRecord, error) {
	var out struct {
		AddChat ChatRecord `json:"addChat"`
	}
	if err := c.do(ctx, addChatMutation, map[string]any{"addChatInput": input}, &out); err != nil {
		return ChatRecord{}, err
	}
	return out.AddChat, nil
}
