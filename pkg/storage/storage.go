// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"context"
	"errors"
	"fmt"

	"legal-rag-go/internal/chunker"
)

// ErrObjectNotFound 表示对象不存在。
var ErrObjectNotFound = errors.New("object not found")

// ExtractedText 是文本抽取的结果：全文与每页字符数。入库任务从对象存储读取它。
type ExtractedText struct {
	Text  string         `json:"text"`
	Pages []chunker.Page `json:"pages"`
}

// PayloadStore 保存待入库文档的抽取结果。
type PayloadStore interface {
	PutExtracted(ctx context.Context, key string, payload *ExtractedText) error
	GetExtracted(ctx context.Context, key string) (*ExtractedText, error)
	Remove(ctx context.Context, key string) error
}

// ExtractedKey 返回文档抽取结果的对象路径。
func ExtractedKey(userID, documentID string) string {
	return fmt.Sprintf("extracted/%s/%s.json", userID, documentID)
}
