package service

import (
	"context"
	"time"

	"legal-rag-go/internal/model"
	"legal-rag-go/internal/prompt"
	"legal-rag-go/internal/repository"
)

// ConversationService 定义了对话历史的业务逻辑接口。
type ConversationService interface {
	History(ctx context.Context, userID, sessionID string) ([]prompt.Message, error)
	Record(ctx context.Context, userID, sessionID, question string, answer *model.RAGAnswer) error
	Clear(ctx context.Context, userID, sessionID string) error
}

type conversationService struct {
	repo repository.ConversationRepository
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(repo repository.ConversationRepository) ConversationService {
	return &conversationService{repo: repo}
}

// History 返回会话的历史消息，按时间顺序。
func (s *conversationService) History(ctx context.Context, userID, sessionID string) ([]prompt.Message, error) {
	stored, err := s.repo.GetHistory(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]prompt.Message, 0, len(stored))
	for _, m := range stored {
		out = append(out, prompt.Message{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

// Record 把一问一答追加到会话历史。
func (s *conversationService) Record(ctx context.Context, userID, sessionID, question string, answer *model.RAGAnswer) error {
	now := time.Now()
	return s.repo.AppendMessages(ctx, userID, sessionID,
		model.ConversationTurn{Role: prompt.RoleUser, Content: question, Timestamp: now},
		model.ConversationTurn{Role: prompt.RoleAssistant, Content: answer.Answer, Cited: answer.CitedNames(), Timestamp: now},
	)
}

func (s *conversationService) Clear(ctx context.Context, userID, sessionID string) error {
	return s.repo.DeleteHistory(ctx, userID, sessionID)
}
