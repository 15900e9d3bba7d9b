package model

// Source 是回答中引用的一条检索结果，供前端展示。
type Source struct {
	ContentPreview string  `json:"content_preview"`
	Similarity     float64 `json:"similarity"` // 百分比，保留一位小数
	Title          string  `json:"title,omitempty"`
	Source         string  `json:"source,omitempty"`
	Document       string  `json:"document,omitempty"`
	Page           int     `json:"page,omitempty"`
	Category       string  `json:"category,omitempty"`
	SourceType     string  `json:"source_type"`
}

// RAGAnswer 是 query_general / query_document 的返回结构。
type RAGAnswer struct {
	Answer            string   `json:"answer"`
	Sources           []Source `json:"sources"`
	TokensUsed        int      `json:"tokens_used"`
	TokensEstimated   bool     `json:"tokens_estimated"`
	Model             string   `json:"model"`
	ElapsedMs         int64    `json:"elapsed_ms"`
	ContextChunksUsed int      `json:"context_chunks_used"`
	DocumentID        string   `json:"document_id,omitempty"`
	DocumentName      string   `json:"document_name,omitempty"`
	SessionID         string   `json:"session_id,omitempty"`
}

// Analysis 是 analyze 的返回结构。
type Analysis struct {
	DocumentID        string   `json:"document_id"`
	DocumentName      string   `json:"document_name"`
	AnalysisType      string   `json:"analysis_type"`
	Analysis          string   `json:"analysis"`
	Sources           []Source `json:"sources"`
	TokensUsed        int      `json:"tokens_used"`
	TokensEstimated   bool     `json:"tokens_estimated"`
	Model             string   `json:"model"`
	ElapsedMs         int64    `json:"elapsed_ms"`
	ContextChunksUsed int      `json:"context_chunks_used"`
}

// CollectionStats 单个向量集合的统计信息。
type CollectionStats struct {
	Name     string            `json:"name"`
	Count    int               `json:"count"`
	Metadata map[string]string `json:"metadata"`
}

// IndexStats 是 stats 接口的返回结构。UserID 为空时表示全局统计。
type IndexStats struct {
	Collections        []CollectionStats `json:"collections"`
	EmbeddingModel     string            `json:"embedding_model"`
	EmbeddingDimension int               `json:"embedding_dimension"`
	UserID             string            `json:"user_id,omitempty"`
	UserDocumentChunks int               `json:"user_document_chunks,omitempty"`
}
