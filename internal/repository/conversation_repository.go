package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"legal-rag-go/internal/model"
)

const (
	conversationTTL           = 7 * 24 * time.Hour
	maxStoredConversationMsgs = 20
)

// ConversationRepository 定义了会话历史记录的操作接口。会话按 (用户, 会话ID) 隔离。
type ConversationRepository interface {
	GetHistory(ctx context.Context, userID, sessionID string) ([]model.ConversationTurn, error)
	AppendMessages(ctx context.Context, userID, sessionID string, messages ...model.ConversationTurn) error
	DeleteHistory(ctx context.Context, userID, sessionID string) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

func conversationKey(userID, sessionID string) string {
	return fmt.Sprintf("conversation:%s:%s", userID, sessionID)
}

// GetHistory 从 Redis 获取对话历史记录，不存在时返回空切片。
func (r *redisConversationRepository) GetHistory(ctx context.Context, userID, sessionID string) ([]model.ConversationTurn, error) {
	jsonData, err := r.redisClient.Get(ctx, conversationKey(userID, sessionID)).Result()
	if err == redis.Nil {
		return []model.ConversationTurn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	var messages []model.ConversationTurn
	if err := json.Unmarshal([]byte(jsonData), &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation history: %w", err)
	}
	return messages, nil
}

// AppendMessages 追加消息并刷新过期时间，只保留最近 20 条。
func (r *redisConversationRepository) AppendMessages(ctx context.Context, userID, sessionID string, messages ...model.ConversationTurn) error {
	history, err := r.GetHistory(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	history = append(history, messages...)
	if len(history) > maxStoredConversationMsgs {
		history = history[len(history)-maxStoredConversationMsgs:]
	}
	jsonData, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation history: %w", err)
	}
	if err := r.redisClient.Set(ctx, conversationKey(userID, sessionID), jsonData, conversationTTL).Err(); err != nil {
		return fmt.Errorf("failed to set conversation history: %w", err)
	}
	return nil
}

func (r *redisConversationRepository) DeleteHistory(ctx context.Context, userID, sessionID string) error {
	return r.redisClient.Del(ctx, conversationKey(userID, sessionID)).Err()
}
