// Package service 包含了应用的业务逻辑层：检索、问答编排、文档入库与管理。
package service

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"legal-rag-go/internal/vectorindex"
	"legal-rag-go/pkg/log"
)

var tracer = otel.Tracer("legal-rag-go/service")

// TextEmbedder 是检索和入库依赖的向量化能力，由 embedding.Embedder 实现。
type TextEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimension() int
}

// Retriever 在知识库与用户文档两个集合上做相似度检索。
// 索引故障不会返回给调用方：记录日志后按零结果处理。
type Retriever struct {
	embedder  TextEmbedder
	knowledge vectorindex.Collection
	documents vectorindex.Collection
}

func NewRetriever(embedder TextEmbedder, knowledge, documents vectorindex.Collection) *Retriever {
	return &Retriever{embedder: embedder, knowledge: knowledge, documents: documents}
}

func (r *Retriever) collection(source vectorindex.SourceType) vectorindex.Collection {
	if source == vectorindex.SourceKnowledgeBase {
		return r.knowledge
	}
	return r.documents
}

// SearchWithin 在单个集合上按过滤条件检索。
func (r *Retriever) SearchWithin(ctx context.Context, source vectorindex.SourceType, query string, filter vectorindex.Filter, k int) []vectorindex.Result {
	ctx, span := tracer.Start(ctx, "retriever.search_within")
	defer span.End()
	span.SetAttributes(attribute.String("retriever.source", string(source)), attribute.Int("retriever.k", k))

	vec, err := r.embed(ctx, query)
	if err != nil {
		r.degraded(err)
		return []vectorindex.Result{}
	}
	results, err := r.query(ctx, source, vec, filter, k)
	if err != nil {
		r.degraded(err)
		return []vectorindex.Result{}
	}
	return results
}

// SearchKnowledge 检索共享知识库，category 为空时不按类别过滤。
func (r *Retriever) SearchKnowledge(ctx context.Context, query, category string, k int) []vectorindex.Result {
	filter, err := knowledgeFilter(category)
	if err != nil {
		r.degraded(err)
		return []vectorindex.Result{}
	}
	return r.SearchWithin(ctx, vectorindex.SourceKnowledgeBase, query, filter, k)
}

// SearchDocuments 检索某个用户的文档，documentID 非空时限定到单个文档。
// userID 为空时直接返回空结果，用户文档集合不允许无归属检索。
func (r *Retriever) SearchDocuments(ctx context.Context, query, userID, documentID string, k int) []vectorindex.Result {
	filter, err := ownerFilter(userID, documentID)
	if err != nil {
		r.degraded(err)
		return []vectorindex.Result{}
	}
	return r.SearchWithin(ctx, vectorindex.SourceUserDocument, query, filter, k)
}

// SearchCombined 查询向量只计算一次，两个子查询并发执行；category 只作用于知识库。
// 合并时知识库结果在前，再按距离稳定排序并截断到 k。
func (r *Retriever) SearchCombined(ctx context.Context, query, userID, category string, k int, includeShared, includeOwned bool) []vectorindex.Result {
	ctx, span := tracer.Start(ctx, "retriever.search_combined")
	defer span.End()
	includeOwned = includeOwned && userID != ""
	span.SetAttributes(
		attribute.Int("retriever.k", k),
		attribute.Bool("retriever.include_shared", includeShared),
		attribute.Bool("retriever.include_owned", includeOwned),
	)
	if k <= 0 || (!includeShared && !includeOwned) {
		return []vectorindex.Result{}
	}

	vec, err := r.embed(ctx, query)
	if err != nil {
		r.degraded(err)
		return []vectorindex.Result{}
	}

	var shared, owned []vectorindex.Result
	g, gctx := errgroup.WithContext(ctx)
	if includeShared {
		g.Go(func() error {
			filter, err := knowledgeFilter(category)
			var res []vectorindex.Result
			if err == nil {
				res, err = r.query(gctx, vectorindex.SourceKnowledgeBase, vec, filter, k)
			}
			if err != nil {
				r.degraded(err)
				return nil
			}
			shared = res
			return nil
		})
	}
	if includeOwned {
		g.Go(func() error {
			filter, err := ownerFilter(userID, "")
			if err == nil {
				owned, err = r.query(gctx, vectorindex.SourceUserDocument, vec, filter, k)
			}
			if err != nil {
				r.degraded(err)
				owned = nil
			}
			return nil
		})
	}
	_ = g.Wait()

	merged := make([]vectorindex.Result, 0, len(shared)+len(owned))
	merged = append(merged, shared...)
	merged = append(merged, owned...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Distance < merged[j].Distance })
	if len(merged) > k {
		merged = merged[:k]
	}
	span.SetAttributes(attribute.Int("retriever.results", len(merged)))
	return merged
}

func (r *Retriever) embed(ctx context.Context, query string) ([]float32, error) {
	vec, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrRetrievalDegraded, err)
	}
	return vec, nil
}

// query 执行一次集合查询并给结果打上来源标记。
func (r *Retriever) query(ctx context.Context, source vectorindex.SourceType, vec []float32, filter vectorindex.Filter, k int) ([]vectorindex.Result, error) {
	coll := r.collection(source)
	results, err := coll.Query(ctx, vec, k, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s %s: %v", ErrRetrievalDegraded, coll.Name(), filter, err)
	}
	for i := range results {
		results[i].SourceType = source
	}
	return results, nil
}

func (r *Retriever) degraded(err error) {
	log.Warnf("[Retriever] 检索失败，按零结果继续: %v", err)
}

// ownerFilter 构造用户文档的归属过滤条件。
func ownerFilter(userID, documentID string) (vectorindex.Filter, error) {
	if userID == "" {
		return vectorindex.Filter{}, fmt.Errorf("%w: user_id is required for user documents", vectorindex.ErrInvalidFilter)
	}
	preds := []vectorindex.Predicate{vectorindex.Eq(vectorindex.KeyUserID, userID)}
	if documentID != "" {
		preds = append(preds, vectorindex.Eq(vectorindex.KeyDocumentID, documentID))
	}
	return vectorindex.NewFilter(preds...)
}

func knowledgeFilter(category string) (vectorindex.Filter, error) {
	if category == "" {
		return vectorindex.Filter{}, nil
	}
	return vectorindex.NewFilter(vectorindex.Eq(vectorindex.KeyCategory, category))
}
