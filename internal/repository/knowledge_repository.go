package repository

import (
	"context"

	"gorm.io/gorm"

	"legal-rag-go/internal/model"
)

// KnowledgeRepository 知识库条目的持久化操作。
type KnowledgeRepository interface {
	Create(ctx context.Context, entry *model.KnowledgeEntry) error
	FindByID(ctx context.Context, id string) (*model.KnowledgeEntry, error)
	List(ctx context.Context, category string) ([]model.KnowledgeEntry, error)
	Update(ctx context.Context, entry *model.KnowledgeEntry) error
	Delete(ctx context.Context, id string) error
}

type knowledgeRepository struct {
	db *gorm.DB
}

func NewKnowledgeRepository(db *gorm.DB) KnowledgeRepository {
	return &knowledgeRepository{db: db}
}

func (r *knowledgeRepository) Create(ctx context.Context, entry *model.KnowledgeEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *knowledgeRepository) FindByID(ctx context.Context, id string) (*model.KnowledgeEntry, error) {
	var entry model.KnowledgeEntry
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// List 返回知识库条目，category 为空时返回全部。
func (r *knowledgeRepository) List(ctx context.Context, category string) ([]model.KnowledgeEntry, error) {
	var entries []model.KnowledgeEntry
	q := r.db.WithContext(ctx).Order("created_at desc")
	if category != "" {
		q = q.Where("category = ?", category)
	}
	err := q.Find(&entries).Error
	return entries, err
}

func (r *knowledgeRepository) Update(ctx context.Context, entry *model.KnowledgeEntry) error {
	return r.db.WithContext(ctx).Save(entry).Error
}

func (r *knowledgeRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.KnowledgeEntry{}).Error
}
