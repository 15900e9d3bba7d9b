package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"legal-rag-go/internal/model"
	"legal-rag-go/pkg/log"
)

// ChatRequest 是一次法律问答请求。SessionID 为空时开启新会话。
type ChatRequest struct {
	Query           string
	SessionID       string
	IncludeUserDocs bool
	Category        string
}

// ChatService 在 RAG 问答外层维护会话历史。
type ChatService interface {
	Ask(ctx context.Context, userID string, req ChatRequest) (*model.RAGAnswer, error)
	EndSession(ctx context.Context, userID, sessionID string) error
}

type chatService struct {
	rag           RAGService
	conversations ConversationService
}

func NewChatService(rag RAGService, conversations ConversationService) ChatService {
	return &chatService{rag: rag, conversations: conversations}
}

// Ask 加载会话历史并回答，成功后记录本轮问答。历史读写失败不影响回答。
func (s *chatService) Ask(ctx context.Context, userID string, req ChatRequest) (*model.RAGAnswer, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, invalid("query", "query must not be empty")
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	history, err := s.conversations.History(ctx, userID, sessionID)
	if err != nil {
		log.Warnf("[Chat] 读取会话 %s 历史失败，按新会话处理: %v", sessionID, err)
		history = nil
	}

	answer, err := s.rag.AnswerGeneral(ctx, GeneralQuery{
		Query:           query,
		UserID:          userID,
		History:         history,
		IncludeUserDocs: req.IncludeUserDocs,
		Category:        req.Category,
	})
	if err != nil {
		return nil, err
	}
	answer.SessionID = sessionID

	if err := s.conversations.Record(ctx, userID, sessionID, query, answer); err != nil {
		log.Warnf("[Chat] 保存会话 %s 历史失败: %v", sessionID, err)
	}
	return answer, nil
}

// EndSession 清空会话历史，之后同一 session_id 按新会话处理。
func (s *chatService) EndSession(ctx context.Context, userID, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return invalid("session_id", "session_id must not be empty")
	}
	return s.conversations.Clear(ctx, userID, sessionID)
}
