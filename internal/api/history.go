package api

import (
	"context"

	"github.com/ageniuscoder/mmchat/client/internal/chat"
)

// History adapts the GetChats query to the room session's history store.
type History struct {
	Client *Client
}

func (h History) Chats(ctx context.Context, roomID string) ([]chat.Message, error) {
	recs, err := h.Client.GetChats(ctx, roomID)
	if err != nil {
		return nil, err
	}
	msgs := make([]chat.Message, 0, len(recs))
	for _, r := range recs {
		msgs = append(msgs, chat.Message{
			ID:        r.ID,
			Room:      r.RoomID,
			Sender:    r.SenderID,
			Text:      r.Text,
			Timestamp: r.CreatedAt,
		})
	}
	return msgs, nil
}
