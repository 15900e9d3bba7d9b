package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"legal-rag-go/internal/chunker"
	"legal-rag-go/internal/model"
	"legal-rag-go/internal/vectorindex"
	"legal-rag-go/pkg/log"
)

// DocumentScope 标识一份用户文档在向量索引中的归属。
type DocumentScope struct {
	UserID       string
	DocumentID   string
	DocumentName string
}

// KnowledgeInput 是知识库条目入库时附带的元数据。
type KnowledgeInput struct {
	ID       string
	Title    string
	Source   string
	Category string
}

// IngestService 负责切块、向量化并写入向量索引，以及按归属范围删除。
// 同一文档的并发入库需要由调用方串行化（Kafka 按文档 ID 分区）。
type IngestService interface {
	IngestDocument(ctx context.Context, scope DocumentScope, text string, pages []chunker.Page) (int, error)
	DeleteDocument(ctx context.Context, userID, documentID string) (int, error)
	IngestKnowledge(ctx context.Context, in KnowledgeInput, text string) (int, error)
	DeleteKnowledge(ctx context.Context, kbID string) (int, error)
	Stats(ctx context.Context, userID string) (*model.IndexStats, error)
}

type ingestService struct {
	chunker   *chunker.Chunker
	embedder  TextEmbedder
	knowledge vectorindex.Collection
	documents vectorindex.Collection
	backend   string
}

// NewIngestService 创建入库服务。backend 仅用于统计信息展示。
func NewIngestService(ch *chunker.Chunker, embedder TextEmbedder, knowledge, documents vectorindex.Collection, backend string) IngestService {
	return &ingestService{chunker: ch, embedder: embedder, knowledge: knowledge, documents: documents, backend: backend}
}

func (s *ingestService) IngestDocument(ctx context.Context, scope DocumentScope, text string, pages []chunker.Page) (int, error) {
	if strings.TrimSpace(scope.UserID) == "" {
		return 0, invalid("user_id", "user_id must not be empty")
	}
	if strings.TrimSpace(scope.DocumentID) == "" {
		return 0, invalid("document_id", "document_id must not be empty")
	}
	if strings.TrimSpace(text) == "" {
		return 0, invalid("text", "document text is empty")
	}
	ctx, span := tracer.Start(ctx, "ingest.document")
	defer span.End()

	chunks := chunker.AssignPages(s.chunker.Split(text), pages)
	span.SetAttributes(attribute.Int("ingest.chunks", len(chunks)))
	log.Infof("[Ingest] 文档 %s 切分为 %d 个块, 共 %d 页", scope.DocumentID, len(chunks), chunker.PageCount(pages))

	vectors, err := s.embedder.EmbedMany(ctx, contents(chunks))
	if err != nil {
		return 0, fmt.Errorf("embed document %s: %w", scope.DocumentID, err)
	}

	entries := make([]vectorindex.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = vectorindex.Entry{
			ID:     vectorindex.DocumentEntryID(scope.DocumentID, c.Index),
			Vector: vectors[i],
			Text:   c.Content,
			Metadata: vectorindex.Metadata{
				vectorindex.KeyUserID:       scope.UserID,
				vectorindex.KeyDocumentID:   scope.DocumentID,
				vectorindex.KeyDocumentName: scope.DocumentName,
				vectorindex.KeyChunkIndex:   c.Index,
				vectorindex.KeyStartPage:    c.StartPage,
				vectorindex.KeyEndPage:      c.EndPage,
				vectorindex.KeyCharCount:    c.CharCount,
			},
		}
	}

	filter, err := ownerFilter(scope.UserID, scope.DocumentID)
	if err != nil {
		return 0, err
	}
	if err := s.replaceScope(ctx, s.documents, filter, entries); err != nil {
		return 0, fmt.Errorf("index document %s: %w", scope.DocumentID, err)
	}
	log.Infof("[Ingest] 文档 %s 入库完成, 块数 %d", scope.DocumentID, len(entries))
	return len(entries), nil
}

func (s *ingestService) DeleteDocument(ctx context.Context, userID, documentID string) (int, error) {
	if strings.TrimSpace(documentID) == "" {
		return 0, invalid("document_id", "document_id must not be empty")
	}
	filter, err := ownerFilter(userID, documentID)
	if err != nil {
		return 0, invalid("user_id", "user_id must not be empty")
	}
	n, err := s.documents.Delete(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete document %s: %w", documentID, err)
	}
	log.Infof("[Ingest] 已删除文档 %s 的 %d 个向量", documentID, n)
	return n, nil
}

func (s *ingestService) IngestKnowledge(ctx context.Context, in KnowledgeInput, text string) (int, error) {
	if strings.TrimSpace(in.ID) == "" {
		return 0, invalid("kb_id", "kb_id must not be empty")
	}
	if strings.TrimSpace(text) == "" {
		return 0, invalid("text", "knowledge text is empty")
	}
	ctx, span := tracer.Start(ctx, "ingest.knowledge")
	defer span.End()

	chunks := s.chunker.Split(text)
	span.SetAttributes(attribute.Int("ingest.chunks", len(chunks)))
	vectors, err := s.embedder.EmbedMany(ctx, contents(chunks))
	if err != nil {
		return 0, fmt.Errorf("embed knowledge %s: %w", in.ID, err)
	}

	entries := make([]vectorindex.Entry, len(chunks))
	for i, c := range chunks {
		md := vectorindex.Metadata{
			vectorindex.KeyKnowledgeID: in.ID,
			vectorindex.KeyTitle:       in.Title,
			vectorindex.KeyChunkIndex:  c.Index,
		}
		if in.Source != "" {
			md[vectorindex.KeySource] = in.Source
		}
		if in.Category != "" {
			md[vectorindex.KeyCategory] = in.Category
		}
		entries[i] = vectorindex.Entry{
			ID:       vectorindex.KnowledgeEntryID(in.ID, c.Index),
			Vector:   vectors[i],
			Text:     c.Content,
			Metadata: md,
		}
	}

	filter, err := vectorindex.NewFilter(vectorindex.Eq(vectorindex.KeyKnowledgeID, in.ID))
	if err != nil {
		return 0, err
	}
	if err := s.replaceScope(ctx, s.knowledge, filter, entries); err != nil {
		return 0, fmt.Errorf("index knowledge %s: %w", in.ID, err)
	}
	log.Infof("[Ingest] 知识条目 %s (%s) 入库完成, 块数 %d", in.ID, in.Title, len(entries))
	return len(entries), nil
}

func (s *ingestService) DeleteKnowledge(ctx context.Context, kbID string) (int, error) {
	filter, err := vectorindex.NewFilter(vectorindex.Eq(vectorindex.KeyKnowledgeID, kbID))
	if err != nil {
		return 0, invalid("kb_id", "kb_id must not be empty")
	}
	n, err := s.knowledge.Delete(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete knowledge %s: %w", kbID, err)
	}
	log.Infof("[Ingest] 已删除知识条目 %s 的 %d 个向量", kbID, n)
	return n, nil
}

// Stats 返回各集合的条目数。userID 非空时额外统计该用户的文档块数。
func (s *ingestService) Stats(ctx context.Context, userID string) (*model.IndexStats, error) {
	stats := &model.IndexStats{
		EmbeddingModel:     s.embedder.Model(),
		EmbeddingDimension: s.embedder.Dimension(),
		UserID:             userID,
	}
	// 用户视角只统计自己的文档，全局用户文档数仅对管理员可见
	documentFilter := vectorindex.Filter{}
	if userID != "" {
		filter, err := ownerFilter(userID, "")
		if err != nil {
			return nil, err
		}
		documentFilter = filter
	}
	scopes := []struct {
		coll   vectorindex.Collection
		filter vectorindex.Filter
		scope  string
	}{
		{s.knowledge, vectorindex.Filter{}, "shared"},
		{s.documents, documentFilter, "all"},
	}
	if userID != "" {
		scopes[1].scope = "user"
	}
	for _, sc := range scopes {
		n, err := sc.coll.Count(ctx, sc.filter)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", sc.coll.Name(), err)
		}
		stats.Collections = append(stats.Collections, model.CollectionStats{
			Name:  sc.coll.Name(),
			Count: n,
			Metadata: map[string]string{
				"backend":  s.backend,
				"distance": "cosine",
				"scope":    sc.scope,
			},
		})
		if sc.scope == "user" {
			stats.UserDocumentChunks = n
		}
	}
	return stats, nil
}

// replaceScope 先删除范围内旧数据再写入，写入失败时再次按范围删除，
// 保证外部只能观察到完整的新数据或空。
func (s *ingestService) replaceScope(ctx context.Context, coll vectorindex.Collection, filter vectorindex.Filter, entries []vectorindex.Entry) error {
	if _, err := coll.Delete(ctx, filter); err != nil {
		return fmt.Errorf("clear previous entries: %w", err)
	}
	if err := coll.Upsert(ctx, entries); err != nil {
		if _, rbErr := coll.Delete(ctx, filter); rbErr != nil {
			log.Errorf("[Ingest] 回滚 %s 失败: %v", filter, rbErr)
		}
		return err
	}
	return nil
}

func contents(chunks []chunker.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}

// runeCount 文本字符数，用于文档记录。
func runeCount(text string) int {
	return utf8.RuneCountInString(text)
}
