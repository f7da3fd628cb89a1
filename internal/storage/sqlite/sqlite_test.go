package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ageniuscoder/mmchat/client/internal/chat"
)

func newCache(t *testing.T) *Sqlite {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Db.Close() })
	require.NoError(t, s.Migrate())
	require.NoError(t, s.Ping(context.Background()))
	return s
}

func msg(id, room, sender, text string, at time.Time) chat.Message {
	return chat.Message{ID: id, Room: room, Sender: sender, Text: text, Timestamp: at}
}

func TestSaveMessageIdempotent(t *testing.T) {
	s := newCache(t)
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	m := msg("m1", "u1_u2", "u2", "hello", t0)
	require.NoError(t, s.SaveMessage(m))
	require.NoError(t, s.SaveMessage(m))

	got, err := s.History("u1_u2", "u1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Text)
}

func TestHistoryOrderAndScope(t *testing.T) {
	s := newCache(t)
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveMessage(msg("m2", "u1_u2", "u2", "second", t0.Add(time.Minute))))
	require.NoError(t, s.SaveMessage(msg("m1", "u1_u2", "u1", "first", t0)))
	require.NoError(t, s.SaveMessage(msg("m3", "u1_u3", "u3", "elsewhere", t0)))

	got, err := s.History("u1_u2", "u1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, "second", got[1].Text)
	assert.True(t, got[0].IsMe)
	assert.False(t, got[1].IsMe)
	assert.Equal(t, t0, got[0].Timestamp)
}

func TestHistoryLimitKeepsNewest(t *testing.T) {
	s := newCache(t)
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	for i, text := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.SaveMessage(msg(text, "r", "u2", text, t0.Add(time.Duration(i)*time.Minute))))
	}

	got, err := s.History("r", "u1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].Text)
	assert.Equal(t, "d", got[1].Text)
}

func TestHistoryEmptyRoom(t *testing.T) {
	s := newCache(t)
	got, err := s.History("nope", "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
