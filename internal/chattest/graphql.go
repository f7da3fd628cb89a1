package chattest

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ageniuscoder/mmchat/client/internal/auth"
)

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func gqlError(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, gin.H{"errors": []gin.H{{"message": msg}}})
}

func (s *Server) serveGraphQL(c *gin.Context) {
	h := c.GetHeader("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	if _, err := auth.ParseToken(s.Secret, strings.TrimPrefix(h, "Bearer ")); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	var req gqlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch {
	case strings.Contains(req.Query, "GetUsers"):
		s.handleGetUsers(c, req)
	case strings.Contains(req.Query, "GetChats"):
		s.handleGetChats(c, req)
	case strings.Contains(req.Query, "AddChat"):
		s.handleAddChat(c, req)
	default:
		gqlError(c, "unknown operation")
	}
}

func (s *Server) handleGetUsers(c *gin.Context, req gqlRequest) {
	limit, skip := 100, 0
	if in, ok := req.Variables["usersInput"].(map[string]any); ok {
		if v, ok := in["limit"].(float64); ok {
			limit = int(v)
		}
		if v, ok := in["skip"].(float64); ok {
			skip = int(v)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	total := len(s.users)
	page := []seedUser{}
	if skip < total {
		end := skip + limit
		if end > total {
			end = total
		}
		page = s.users[skip:end]
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"users": gin.H{"items": page, "total": total}}})
}

func (s *Server) handleGetChats(c *gin.Context, req gqlRequest) {
	roomID, _ := req.Variables["roomId"].(string)
	if roomID == "" {
		gqlError(c, "roomId is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.chats[roomID]
	if recs == nil {
		recs = []chatRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"getChats": recs}})
}

func (s *Server) handleAddChat(c *gin.Context, req gqlRequest) {
	in, ok := req.Variables["addChatInput"].(map[string]any)
	if !ok {
		gqlError(c, "addChatInput is required")
		return
	}
	roomID, _ := in["roomId"].(string)
	senderID, _ := in["senderId"].(string)
	text, _ := in["text"].(string)
	isRead, _ := in["isRead"].(bool)
	if roomID == "" || senderID == "" {
		gqlError(c, "roomId and senderId are required")
		return
	}
	rec := chatRecord{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		SenderID:  senderID,
		Text:      text,
		IsRead:    isRead,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	s.mu.Lock()
	s.chats[roomID] = append(s.chats[roomID], rec)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"addChat": rec}})
}
