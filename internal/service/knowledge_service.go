package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"legal-rag-go/internal/model"
	"legal-rag-go/internal/repository"
	"legal-rag-go/pkg/log"
)

// KnowledgeCreate 是管理员新增知识库条目的输入。
type KnowledgeCreate struct {
	Title       string
	Description string
	Source      string
	Category    string
	Text        string
	CreatedBy   string
}

// KnowledgeService 维护共享法律知识库。条目同步入库。
type KnowledgeService interface {
	Create(ctx context.Context, in KnowledgeCreate) (*model.KnowledgeEntry, error)
	List(ctx context.Context, category string) ([]model.KnowledgeEntry, error)
	Delete(ctx context.Context, id string) (int, error)
}

type knowledgeService struct {
	repo   repository.KnowledgeRepository
	ingest IngestService
}

func NewKnowledgeService(repo repository.KnowledgeRepository, ingest IngestService) KnowledgeService {
	return &knowledgeService{repo: repo, ingest: ingest}
}

func (s *knowledgeService) Create(ctx context.Context, in KnowledgeCreate) (*model.KnowledgeEntry, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalid("title", "title must not be empty")
	}
	if strings.TrimSpace(in.Text) == "" {
		return nil, invalid("text", "knowledge text is empty")
	}

	entry := &model.KnowledgeEntry{
		ID:          uuid.NewString(),
		Title:       title,
		Description: in.Description,
		Source:      in.Source,
		Category:    strings.TrimSpace(in.Category),
		Status:      model.StatusProcessing,
		CreatedBy:   in.CreatedBy,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("create knowledge entry: %w", err)
	}

	n, err := s.ingest.IngestKnowledge(ctx, KnowledgeInput{
		ID:       entry.ID,
		Title:    entry.Title,
		Source:   entry.Source,
		Category: entry.Category,
	}, in.Text)
	if err != nil {
		entry.Status = model.StatusFailed
		if upErr := s.repo.Update(ctx, entry); upErr != nil {
			log.Errorf("[Knowledge] 更新条目 %s 状态失败: %v", entry.ID, upErr)
		}
		return nil, err
	}

	entry.Status = model.StatusReady
	entry.ChunkCount = n
	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("update knowledge entry %s: %w", entry.ID, err)
	}
	return entry, nil
}

func (s *knowledgeService) List(ctx context.Context, category string) ([]model.KnowledgeEntry, error) {
	return s.repo.List(ctx, strings.TrimSpace(category))
}

// Delete 删除条目的全部向量和记录，返回删除的向量数。
func (s *knowledgeService) Delete(ctx context.Context, id string) (int, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, notFound("knowledge entry", id)
		}
		return 0, fmt.Errorf("load knowledge entry %s: %w", id, err)
	}
	n, err := s.ingest.DeleteKnowledge(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return n, fmt.Errorf("delete knowledge entry %s: %w", id, err)
	}
	return n, nil
}
