// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"legal-rag-go/internal/model"
)

// DocumentRepository 接口定义了用户文档记录的持久化操作。
// 未找到记录时返回 gorm.ErrRecordNotFound。
type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	FindByID(ctx context.Context, id string) (*model.Document, error)
	FindByUserID(ctx context.Context, userID string) ([]model.Document, error)
	UpdateStatus(ctx context.Context, id string, status model.ProcessingStatus, errMsg string) error
	MarkReady(ctx context.Context, id string, chunkCount, pageCount, charCount int) error
	FailStale(ctx context.Context, olderThan time.Time, reason string) (int64, error)
	Delete(ctx context.Context, id string) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *documentRepository) FindByID(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindByUserID 按创建时间倒序返回用户的全部文档。
func (r *documentRepository) FindByUserID(ctx context.Context, userID string) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc").Find(&docs).Error
	return docs, err
}

// UpdateStatus 更新处理状态；errMsg 只在 failed 状态下有意义，其余状态会清空。
func (r *documentRepository) UpdateStatus(ctx context.Context, id string, status model.ProcessingStatus, errMsg string) error {
	if status != model.StatusFailed {
		errMsg = ""
	}
	return r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "error_message": errMsg}).Error
}

func (r *documentRepository) MarkReady(ctx context.Context, id string, chunkCount, pageCount, charCount int) error {
	return r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        model.StatusReady,
			"chunk_count":   chunkCount,
			"page_count":    pageCount,
			"char_count":    charCount,
			"error_message": "",
		}).Error
}

// FailStale 把长时间停留在 pending/processing 的文档标记为 failed，返回受影响行数。
func (r *documentRepository) FailStale(ctx context.Context, olderThan time.Time, reason string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("status IN ? AND updated_at < ?", []model.ProcessingStatus{model.StatusPending, model.StatusProcessing}, olderThan).
		Updates(map[string]interface{}{"status": model.StatusFailed, "error_message": reason})
	return res.RowsAffected, res.Error
}

func (r *documentRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Document{}).Error
}
