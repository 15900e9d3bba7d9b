package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"legal-rag-go/internal/config"
	"legal-rag-go/internal/model"
	"legal-rag-go/internal/prompt"
	"legal-rag-go/internal/repository"
	"legal-rag-go/internal/vectorindex"
	"legal-rag-go/pkg/llm"
	"legal-rag-go/pkg/log"
)

// NotFoundInDocumentAnswer 文档内检索不到任何片段时直接返回（附免责声明），不调用生成模型。
const NotFoundInDocumentAnswer = "I couldn't find relevant information in this document to answer your question. " +
	"Please try rephrasing your question or ask about a different topic covered in the document."

// NothingToAnalyzeAnswer 分析时文档没有任何可用片段。
const NothingToAnalyzeAnswer = "I couldn't find any indexed content in this document to analyze. " +
	"The document may be empty or its text could not be extracted."

// GeneralQuery 是 query_general 的输入。
type GeneralQuery struct {
	Query           string
	UserID          string
	History         []prompt.Message
	IncludeUserDocs bool
	Category        string // 非空时只检索该类别的知识库条目
}

// RAGService 把检索、提示词组装、生成与后处理串成单次调用。
type RAGService interface {
	AnswerGeneral(ctx context.Context, q GeneralQuery) (*model.RAGAnswer, error)
	AnswerForDocument(ctx context.Context, query, documentID, userID string) (*model.RAGAnswer, error)
	AnalyzeDocument(ctx context.Context, documentID, userID string, kind prompt.AnalysisKind, customQuery string) (*model.Analysis, error)
}

type ragService struct {
	retriever        *Retriever
	generator        llm.Generator
	docRepo          repository.DocumentRepository
	composer         *prompt.Composer
	analysisComposer *prompt.Composer
	cfg              config.RAGConfig
}

// NewRAGService 创建问答编排服务，cfg 中未设置的参数回落到默认值。
func NewRAGService(retriever *Retriever, generator llm.Generator, docRepo repository.DocumentRepository, cfg config.RAGConfig) RAGService {
	cfg = withRAGDefaults(cfg)
	return &ragService{
		retriever:        retriever,
		generator:        generator,
		docRepo:          docRepo,
		composer:         prompt.NewComposer(cfg.MaxContextChunks, cfg.HistoryTurns, cfg.Jurisdiction),
		analysisComposer: prompt.NewComposer(cfg.MaxContextChunks, 0, cfg.Jurisdiction),
		cfg:              cfg,
	}
}

func withRAGDefaults(cfg config.RAGConfig) config.RAGConfig {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.AnalysisTopK <= 0 {
		cfg.AnalysisTopK = 10
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.AnalysisMaxTokens <= 0 {
		cfg.AnalysisMaxTokens = 1500
	}
	if cfg.HistoryTurns < 0 {
		cfg.HistoryTurns = prompt.DefaultMaxHistory
	}
	if cfg.MaxContextChunks <= 0 {
		cfg.MaxContextChunks = prompt.DefaultMaxPassages
	}
	if cfg.PreviewChars <= 0 {
		cfg.PreviewChars = 200
	}
	if strings.TrimSpace(cfg.Disclaimer) == "" {
		cfg.Disclaimer = config.DefaultDisclaimer
	}
	return cfg
}

// AnswerGeneral 基于知识库（可选叠加用户文档）回答法律问题。
func (s *ragService) AnswerGeneral(ctx context.Context, q GeneralQuery) (*model.RAGAnswer, error) {
	query := strings.TrimSpace(q.Query)
	if query == "" {
		return nil, invalid("query", "query must not be empty")
	}
	ctx, span := tracer.Start(ctx, "rag.answer_general")
	defer span.End()

	passages := s.retriever.SearchCombined(ctx, query, q.UserID, strings.TrimSpace(q.Category), s.cfg.TopK, true, q.IncludeUserDocs)
	passages = capPassages(passages, s.cfg.MaxContextChunks)
	span.SetAttributes(attribute.Int("rag.passages", len(passages)))
	log.Infof("[RAG] general query, user=%s, passages=%d, include_user_docs=%t", q.UserID, len(passages), q.IncludeUserDocs)

	messages := s.composer.Build(prompt.Request{
		Query:    query,
		Passages: passages,
		History:  q.History,
		Mode:     prompt.GeneralKnowledge,
	})
	res, err := s.generator.Generate(ctx, messages, llm.Params{Temperature: s.cfg.Temperature, MaxTokens: s.cfg.MaxTokens})
	if err != nil {
		return nil, err
	}

	return &model.RAGAnswer{
		Answer:            s.withDisclaimer(res.Text),
		Sources:           s.formatSources(passages),
		TokensUsed:        res.TokensUsed,
		TokensEstimated:   res.TokensEstimated,
		Model:             res.Model,
		ElapsedMs:         res.ElapsedMs,
		ContextChunksUsed: len(passages),
	}, nil
}

// AnswerForDocument 只在指定文档内检索并回答；没有命中片段时直接返回固定文案。
func (s *ragService) AnswerForDocument(ctx context.Context, query, documentID, userID string) (*model.RAGAnswer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, invalid("query", "query must not be empty")
	}
	ctx, span := tracer.Start(ctx, "rag.answer_for_document")
	defer span.End()

	doc, err := s.readyDocument(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}

	passages := s.retriever.SearchDocuments(ctx, query, userID, documentID, s.cfg.TopK)
	passages = capPassages(passages, s.cfg.MaxContextChunks)
	span.SetAttributes(attribute.Int("rag.passages", len(passages)))
	if len(passages) == 0 {
		log.Infof("[RAG] document %s has no matching passages, skip generation", documentID)
		return &model.RAGAnswer{
			Answer:       s.withDisclaimer(NotFoundInDocumentAnswer),
			Sources:      []model.Source{},
			DocumentID:   doc.ID,
			DocumentName: doc.OriginalName,
		}, nil
	}

	messages := s.composer.Build(prompt.Request{
		Query:        query,
		Passages:     passages,
		Mode:         prompt.DocumentScoped,
		DocumentName: doc.OriginalName,
	})
	res, err := s.generator.Generate(ctx, messages, llm.Params{Temperature: s.cfg.Temperature, MaxTokens: s.cfg.MaxTokens})
	if err != nil {
		return nil, err
	}

	return &model.RAGAnswer{
		Answer:            s.withDisclaimer(res.Text),
		Sources:           s.formatSources(passages),
		TokensUsed:        res.TokensUsed,
		TokensEstimated:   res.TokensEstimated,
		Model:             res.Model,
		ElapsedMs:         res.ElapsedMs,
		ContextChunksUsed: len(passages),
		DocumentID:        doc.ID,
		DocumentName:      doc.OriginalName,
	}, nil
}

// AnalyzeDocument 用固定的分析指令代替用户问题，检索范围更大。
func (s *ragService) AnalyzeDocument(ctx context.Context, documentID, userID string, kind prompt.AnalysisKind, customQuery string) (*model.Analysis, error) {
	instruction, err := prompt.AnalysisInstruction(kind, customQuery)
	if err != nil {
		return nil, invalid("analysis_type", err.Error())
	}
	ctx, span := tracer.Start(ctx, "rag.analyze_document")
	defer span.End()
	span.SetAttributes(attribute.String("rag.analysis_type", string(kind)))

	doc, err := s.readyDocument(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}

	// 检索范围更大，但写入提示词的片段数与问答一致
	passages := s.retriever.SearchDocuments(ctx, instruction, userID, documentID, s.cfg.AnalysisTopK)
	passages = capPassages(passages, s.cfg.MaxContextChunks)
	span.SetAttributes(attribute.Int("rag.passages", len(passages)))
	out := &model.Analysis{
		DocumentID:   doc.ID,
		DocumentName: doc.OriginalName,
		AnalysisType: string(kind),
		Sources:      []model.Source{},
	}
	if len(passages) == 0 {
		out.Analysis = s.withDisclaimer(NothingToAnalyzeAnswer)
		return out, nil
	}

	messages := s.analysisComposer.Build(prompt.Request{
		Query:        instruction,
		Passages:     passages,
		Mode:         prompt.DocumentScoped,
		DocumentName: doc.OriginalName,
	})
	res, err := s.generator.Generate(ctx, messages, llm.Params{Temperature: s.cfg.Temperature, MaxTokens: s.cfg.AnalysisMaxTokens})
	if err != nil {
		return nil, err
	}

	out.Analysis = s.withDisclaimer(res.Text)
	out.Sources = s.formatSources(passages)
	out.TokensUsed = res.TokensUsed
	out.TokensEstimated = res.TokensEstimated
	out.Model = res.Model
	out.ElapsedMs = res.ElapsedMs
	out.ContextChunksUsed = len(passages)
	return out, nil
}

// readyDocument 加载文档并校验归属与状态。不属于当前用户的文档按不存在处理。
func (s *ragService) readyDocument(ctx context.Context, documentID, userID string) (*model.Document, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, invalid("document_id", "document_id must not be empty")
	}
	doc, err := s.docRepo.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("document", documentID)
		}
		return nil, fmt.Errorf("load document %s: %w", documentID, err)
	}
	if doc.UserID != userID {
		return nil, notFound("document", documentID)
	}
	if !doc.IsReady() {
		return nil, invalid("document_id", fmt.Sprintf("document is not ready for querying (status: %s)", doc.Status))
	}
	return doc, nil
}

// withDisclaimer 免责声明总是追加在回答末尾。
func (s *ragService) withDisclaimer(answer string) string {
	return strings.TrimRight(answer, "\n ") + "\n\n" + s.cfg.Disclaimer
}

func (s *ragService) formatSources(passages []vectorindex.Result) []model.Source {
	sources := make([]model.Source, 0, len(passages))
	for _, p := range passages {
		src := model.Source{
			ContentPreview: preview(p.Content, s.cfg.PreviewChars),
			Similarity:     similarityPercent(p.Similarity),
			Title:          p.Metadata.String(vectorindex.KeyTitle),
			Source:         p.Metadata.String(vectorindex.KeySource),
			Document:       p.Metadata.String(vectorindex.KeyDocumentName),
			Category:       p.Metadata.String(vectorindex.KeyCategory),
			SourceType:     string(p.SourceType),
		}
		if page, ok := p.Metadata.Int(vectorindex.KeyStartPage); ok {
			src.Page = page
		}
		sources = append(sources, src)
	}
	return sources
}

func capPassages(passages []vectorindex.Result, limit int) []vectorindex.Result {
	if len(passages) > limit {
		return passages[:limit]
	}
	return passages
}

// preview 截取前 n 个字符，截断时追加省略号。
func preview(content string, n int) string {
	runes := []rune(content)
	if len(runes) <= n {
		return content
	}
	return string(runes[:n]) + "..."
}

// similarityPercent 把 [0,1] 的相似度换算为保留一位小数的百分比。
func similarityPercent(similarity float64) float64 {
	similarity = math.Max(0, math.Min(1, similarity))
	return math.Round(similarity*1000) / 10
}
