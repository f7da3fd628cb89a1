package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ageniuscoder/mmchat/client/internal/chat"
	"github.com/ageniuscoder/mmchat/client/internal/chattest"
)

const testSecret = "integration-secret"

func waitConnected(t *testing.T, c *chat.Conn) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == chat.StateConnected },
		2*time.Second, 10*time.Millisecond)
}

func connect(t *testing.T, srv *chattest.Server, userID string) *chat.Conn {
	t.Helper()
	c := chat.New(srv.WSURL())
	t.Cleanup(c.Close)
	require.NoError(t, c.SetToken(srv.Token(userID)))
	waitConnected(t, c)
	return c
}

func TestConnRegistersIdentity(t *testing.T) {
	srv := chattest.New(t, testSecret)

	c := connect(t, srv, "u1")
	assert.Equal(t, "u1", c.LocalID())
	require.Eventually(t, func() bool {
		ids := srv.OnlineIDs()
		return len(ids) == 1 && ids[0] == "u1"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPresenceAcrossClients(t *testing.T) {
	srv := chattest.New(t, testSecret)

	c1 := connect(t, srv, "u1")
	c2 := connect(t, srv, "u2")

	// u1 learns about u2 via the live event, u2 via the snapshot.
	require.Eventually(t, func() bool { return c1.Online().IsOnline("u2") },
		2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return c2.Online().IsOnline("u1") },
		2*time.Second, 10*time.Millisecond)

	c2.Close()
	require.Eventually(t, func() bool { return !c1.Online().IsOnline("u2") },
		2*time.Second, 10*time.Millisecond)
}

func TestRoomExchangeOverSocket(t *testing.T) {
	srv := chattest.New(t, testSecret)
	ctx := context.Background()

	c1 := connect(t, srv, "u1")
	c2 := connect(t, srv, "u2")

	room := chat.RoomID("u2", "u1")
	s1 := chat.NewSession(c1, room, "u1")
	defer s1.Close()
	s2 := chat.NewSession(c2, room, "u2")
	defer s2.Close()
	require.NoError(t, s1.Start(ctx))
	require.NoError(t, s2.Start(ctx))

	require.NoError(t, s1.SendTyping(true))
	require.Eventually(t, func() bool {
		peers := s2.TypingPeers()
		return len(peers) == 1 && peers[0] == "u1"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s1.Send("hello"))

	require.Eventually(t, func() bool { return len(s2.Messages()) == 1 },
		2*time.Second, 10*time.Millisecond)
	got := s2.Messages()[0]
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, "u1", got.Sender)
	assert.False(t, got.IsMe)
	assert.NotEmpty(t, got.ID)

	// The send itself appended nothing; the sender sees the message only
	// through the room echo.
	require.Eventually(t, func() bool { return len(s1.Messages()) == 1 },
		2*time.Second, 10*time.Millisecond)
	assert.True(t, s1.Messages()[0].IsMe)

	// The typing-stopped that rides behind the send cleared the indicator.
	require.Eventually(t, func() bool { return len(s2.TypingPeers()) == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestRoomsMultiplexOneSocket(t *testing.T) {
	srv := chattest.New(t, testSecret)
	ctx := context.Background()

	c1 := connect(t, srv, "u1")
	c2 := connect(t, srv, "u2")
	c3 := connect(t, srv, "u3")

	s12 := chat.NewSession(c1, chat.RoomID("u1", "u2"), "u1")
	defer s12.Close()
	s2 := chat.NewSession(c2, chat.RoomID("u1", "u2"), "u2")
	defer s2.Close()
	s13 := chat.NewSession(c1, chat.RoomID("u1", "u3"), "u1")
	defer s13.Close()
	s3 := chat.NewSession(c3, chat.RoomID("u1", "u3"), "u3")
	defer s3.Close()
	for _, s := range []*chat.Session{s12, s2, s13, s3} {
		require.NoError(t, s.Start(ctx))
	}

	require.NoError(t, s2.Send("to u2 room"))
	require.NoError(t, s3.Send("to u3 room"))

	require.Eventually(t, func() bool {
		return len(s12.Messages()) == 1 && len(s13.Messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "to u2 room", s12.Messages()[0].Text)
	assert.Equal(t, "to u3 room", s13.Messages()[0].Text)
}

func TestDisconnectClearsPresenceAndBlocksSend(t *testing.T) {
	srv := chattest.New(t, testSecret)

	c1 := connect(t, srv, "u1")
	connect(t, srv, "u2")
	require.Eventually(t, func() bool { return c1.Online().IsOnline("u2") },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, c1.SetToken(""))
	assert.Equal(t, chat.StateDisconnected, c1.State())
	assert.Zero(t, c1.Online().Count())

	s := chat.NewSession(c1, chat.RoomID("u1", "u2"), "u1")
	defer s.Close()
	require.ErrorIs(t, s.Start(context.Background()), chat.ErrNotConnected)
}
