package model

import "time"

// KnowledgeEntry 定义了 knowledge_entries 表的 ORM 模型。
// 知识库条目由管理员维护，向量数据存放在 legal_knowledge 集合中。
type KnowledgeEntry struct {
	ID          string           `gorm:"type:char(36);primaryKey" json:"id"`
	Title       string           `gorm:"type:varchar(255);not null" json:"title"`
	Description string           `gorm:"type:text" json:"description,omitempty"`
	Source      string           `gorm:"type:varchar(255)" json:"source,omitempty"`
	Category    string           `gorm:"type:varchar(64);index" json:"category,omitempty"`
	Status      ProcessingStatus `gorm:"type:varchar(20);not null;default:pending" json:"status"`
	ChunkCount  int              `gorm:"not null;default:0" json:"chunk_count"`
	CreatedBy   string           `gorm:"type:varchar(64)" json:"created_by"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (KnowledgeEntry) TableName() string {
	return "knowledge_entries"
}
