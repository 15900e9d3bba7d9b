// Package vectorindex 定义向量索引的数据结构、类型化过滤条件与集合接口，并提供内存实现。
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// SourceType 标记检索结果来自哪个集合。
type SourceType string

const (
	SourceKnowledgeBase SourceType = "knowledge_base"
	SourceUserDocument  SourceType = "user_document"
)

// 元数据键。用户文档以 user_id 区分归属，知识库以 kb_id / category 区分。
const (
	KeyUserID       = "user_id"
	KeyDocumentID   = "document_id"
	KeyDocumentName = "document_name"
	KeyChunkIndex   = "chunk_index"
	KeyStartPage    = "start_page"
	KeyEndPage      = "end_page"
	KeyCharCount    = "char_count"
	KeyKnowledgeID  = "kb_id"
	KeyTitle        = "title"
	KeySource       = "source"
	KeyCategory     = "category"
)

var (
	// ErrInvalidFilter 表示过滤条件在构造时即不合法。
	ErrInvalidFilter = errors.New("invalid metadata filter")
	// ErrDimensionMismatch 表示向量维度与集合不一致。
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Metadata 只允许标量值：string、bool、整数、浮点数。
type Metadata map[string]any

// String 返回字符串类型的元数据，缺失或类型不符时返回空串。
func (m Metadata) String(key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// Int 返回数值类型的元数据。JSON 反序列化得到的 float64 也会被接受。
func (m Metadata) Int(key string) (int, bool) {
	f, ok := toFloat(m[key])
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Entry 是向量索引中的一条记录，ID 由 (归属, 块序号) 确定。
type Entry struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata Metadata
}

// Result 是一次查询返回的单条结果。
type Result struct {
	ID         string     `json:"id"`
	Content    string     `json:"content"`
	Metadata   Metadata   `json:"metadata"`
	Distance   float64    `json:"distance"`
	Similarity float64    `json:"similarity"`
	SourceType SourceType `json:"source_type,omitempty"`
}

// Collection 是一个命名的向量集合。查询空集合返回空切片而不是错误。
type Collection interface {
	Name() string
	Upsert(ctx context.Context, entries []Entry) error
	Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Result, error)
	// Delete 删除满足过滤条件的全部记录，空过滤条件会被拒绝。
	Delete(ctx context.Context, filter Filter) (int, error)
	// Count 统计满足过滤条件的记录数，空过滤条件统计全部。
	Count(ctx context.Context, filter Filter) (int, error)
}

// DocumentEntryID 返回用户文档块的稳定 ID。
func DocumentEntryID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", documentID, chunkIndex)
}

// KnowledgeEntryID 返回知识库块的稳定 ID。
func KnowledgeEntryID(kbID string, chunkIndex int) string {
	return fmt.Sprintf("kb_%s_%d", kbID, chunkIndex)
}

// SimilarityFromDistance 把余弦距离换算为 [0,1] 内的相似度。
func SimilarityFromDistance(distance float64) float64 {
	return math.Max(0, math.Min(1, 1-distance))
}

// CosineDistance 计算 1 - cos(a, b)；任一向量为零向量时距离为 1。
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
