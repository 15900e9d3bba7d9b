// Package model 定义了与数据库表对应的 Go 结构体以及问答接口的返回结构。
package model

import "time"

// ProcessingStatus 文档与知识条目的处理状态。
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusReady      ProcessingStatus = "ready"
	StatusFailed     ProcessingStatus = "failed"
)

// Document 定义了 documents 表的 ORM 模型。
// 记录用户上传文档的元数据与向量化处理状态，只有 ready 状态的文档可以被问答。
type Document struct {
	ID           string           `gorm:"type:char(36);primaryKey" json:"id"`
	UserID       string           `gorm:"type:varchar(64);index;not null" json:"user_id"`
	OriginalName string           `gorm:"type:varchar(255);not null" json:"original_name"`
	ContentType  string           `gorm:"type:varchar(100)" json:"content_type"`
	Status       ProcessingStatus `gorm:"type:varchar(20);index;not null;default:pending" json:"status"`
	ChunkCount   int              `gorm:"not null;default:0" json:"chunk_count"`
	PageCount    int              `gorm:"not null;default:0" json:"page_count"`
	CharCount    int              `gorm:"not null;default:0" json:"char_count"`
	ErrorMessage string           `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// IsReady 文档是否已完成向量化。
func (d *Document) IsReady() bool {
	return d.Status == StatusReady
}
