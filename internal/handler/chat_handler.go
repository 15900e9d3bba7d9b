package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"legal-rag-go/internal/middleware"
	"legal-rag-go/internal/service"
)

// ChatHandler 处理基于法律知识库的问答请求。
type ChatHandler struct {
	chatService service.ChatService
}

func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

type chatQueryRequest struct {
	Query           string `json:"query" binding:"required"`
	SessionID       string `json:"session_id"`
	IncludeUserDocs bool   `json:"include_user_docs"`
	Category        string `json:"category"`
}

// Query 处理 POST /chat/query。
func (h *ChatHandler) Query(c *gin.Context) {
	var req chatQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数无效: query 不能为空")
		return
	}

	answer, err := h.chatService.Ask(c.Request.Context(), middleware.UserID(c), service.ChatRequest{
		Query:           req.Query,
		SessionID:       req.SessionID,
		IncludeUserDocs: req.IncludeUserDocs,
		Category:        req.Category,
	})
	if err != nil {
		respondError(c, "ChatQuery", err)
		return
	}
	success(c, "success", answer)
}

// EndSession 处理 DELETE /chat/sessions/:id。
func (h *ChatHandler) EndSession(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.chatService.EndSession(c.Request.Context(), middleware.UserID(c), sessionID); err != nil {
		respondError(c, "EndSession", err)
		return
	}
	success(c, "会话已清空", gin.H{"session_id": sessionID})
}
