package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ageniuscoder/mmchat/client/internal/api"
	"github.com/ageniuscoder/mmchat/client/internal/chattest"
)

const testSecret = "api-secret"

func newClient(t *testing.T) (*chattest.Server, *api.Client) {
	t.Helper()
	srv := chattest.New(t, testSecret)
	return srv, api.NewClient(srv.GraphQLURL(), srv.Token("u1"))
}

func TestGetUsersPagination(t *testing.T) {
	srv, client := newClient(t)
	srv.SeedUser("u1", "Alice", "alice@example.com")
	srv.SeedUser("u2", "Bob", "bob@example.com")
	srv.SeedUser("u3", "Cara", "cara@example.com")

	users, err := client.GetUsers(context.Background(), 2, 0)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].ID)
	assert.Equal(t, "Alice", users[0].Name)

	users, err = client.GetUsers(context.Background(), 2, 2)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u3", users[0].ID)

	users, err = client.GetUsers(context.Background(), 10, 10)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestGetChatsAscending(t *testing.T) {
	srv, client := newClient(t)
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	srv.SeedChat("u1_u2", "u1", "first", t0)
	srv.SeedChat("u1_u2", "u2", "second", t0.Add(time.Minute))
	srv.SeedChat("u1_u3", "u3", "other room", t0)

	recs, err := client.GetChats(context.Background(), "u1_u2")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "first", recs[0].Text)
	assert.Equal(t, "second", recs[1].Text)
	assert.Equal(t, t0, recs[0].CreatedAt)
}

func TestAddChatRoundTrip(t *testing.T) {
	_, client := newClient(t)

	rec, err := client.AddChat(context.Background(), api.ChatInput{
		RoomID:   "u1_u2",
		SenderID: "u1",
		Text:     "persist me",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "u1_u2", rec.RoomID)
	assert.False(t, rec.CreatedAt.IsZero())

	recs, err := client.GetChats(context.Background(), "u1_u2")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "persist me", recs[0].Text)
}

func TestUnauthorizedToken(t *testing.T) {
	srv := chattest.New(t, testSecret)
	client := api.NewClient(srv.GraphQLURL(), "bad-token")

	_, err := client.GetUsers(context.Background(), 10, 0)
	require.Error(t, err)
}

func TestHistoryAdapter(t *testing.T) {
	srv, client := newClient(t)
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	srv.SeedChat("u1_u2", "u2", "hi there", t0)

	msgs, err := api.History{Client: client}.Chats(context.Background(), "u1_u2")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "u1_u2", msgs[0].Room)
	assert.Equal(t, "u2", msgs[0].Sender)
	assert.Equal(t, "hi there", msgs[0].Text)
	assert.Equal(t, t0, msgs[0].Timestamp)
}
