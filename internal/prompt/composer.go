// Package prompt 组装发送给生成模型的消息序列。纯函数，不访问网络。
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"legal-rag-go/internal/vectorindex"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	DefaultMaxPassages = 5
	DefaultMaxHistory  = 10
)

// 上下文为空时的占位文本。
const (
	NoKnowledgeContext = "No relevant information found in the knowledge base."
	NoDocumentContext  = "No relevant information found in this document."
)

const passageSeparator = "\n\n---\n\n"

// Message 是一条带角色的消息。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Mode 决定系统提示词与用户消息模板。
type Mode int

const (
	GeneralKnowledge Mode = iota
	DocumentScoped
)

func (m Mode) String() string {
	switch m {
	case GeneralKnowledge:
		return "general_knowledge"
	case DocumentScoped:
		return "document_scoped"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Request 是一次组装的全部输入。
type Request struct {
	Query        string
	Passages     []vectorindex.Result
	History      []Message
	Mode         Mode
	DocumentName string
}

// Composer 持有与请求无关的组装参数。
type Composer struct {
	maxPassages  int
	maxHistory   int
	jurisdiction string
}

func NewComposer(maxPassages, maxHistory int, jurisdiction string) *Composer {
	if maxPassages <= 0 {
		maxPassages = DefaultMaxPassages
	}
	if maxHistory < 0 {
		maxHistory = DefaultMaxHistory
	}
	if jurisdiction == "" {
		jurisdiction = "India"
	}
	return &Composer{maxPassages: maxPassages, maxHistory: maxHistory, jurisdiction: jurisdiction}
}

// Build 依次输出：系统消息、最近 N 轮历史、带上下文的用户消息。
func (c *Composer) Build(req Request) []Message {
	messages := make([]Message, 0, 2+c.maxHistory)
	messages = append(messages, Message{Role: RoleSystem, Content: c.systemPrompt(req.Mode)})
	messages = append(messages, c.trimHistory(req.History)...)

	contextText := c.ContextBlock(req.Passages, req.Mode)
	var user string
	if req.Mode == DocumentScoped {
		name := req.DocumentName
		if name == "" {
			name = "Untitled document"
		}
		user = fmt.Sprintf(documentUserTemplate, name, contextText, req.Query)
	} else {
		user = fmt.Sprintf(generalUserTemplate, contextText, req.Query)
	}
	return append(messages, Message{Role: RoleUser, Content: user})
}

func (c *Composer) systemPrompt(mode Mode) string {
	if mode == DocumentScoped {
		return documentAnalysisSystemPrompt
	}
	return legalAssistantSystemPrompt(c.jurisdiction)
}

// trimHistory 只保留 user/assistant 且非空的消息，并截取最后 maxHistory 条。
func (c *Composer) trimHistory(history []Message) []Message {
	kept := make([]Message, 0, len(history))
	for _, m := range history {
		if (m.Role == RoleUser || m.Role == RoleAssistant) && strings.TrimSpace(m.Content) != "" {
			kept = append(kept, m)
		}
	}
	if len(kept) > c.maxHistory {
		kept = kept[len(kept)-c.maxHistory:]
	}
	return kept
}

// ContextBlock 由检索结果生成上下文文本，超过上限的段落直接丢弃。
func (c *Composer) ContextBlock(passages []vectorindex.Result, mode Mode) string {
	if len(passages) == 0 {
		if mode == DocumentScoped {
			return NoDocumentContext
		}
		return NoKnowledgeContext
	}
	if len(passages) > c.maxPassages {
		passages = passages[:c.maxPassages]
	}
	parts := make([]string, len(passages))
	for i, p := range passages {
		parts[i] = Citation(p.Metadata) + "\n" + strings.TrimSpace(p.Content)
	}
	return strings.Join(parts, passageSeparator)
}

// Citation 依次取 title、source、document_name 作为出处，有页码时附上页码。
func Citation(md vectorindex.Metadata) string {
	label := firstNonEmpty(
		md.String(vectorindex.KeyTitle),
		md.String(vectorindex.KeySource),
		md.String(vectorindex.KeyDocumentName),
	)
	if label == "" {
		label = "Unknown"
	}
	start, ok := md.Int(vectorindex.KeyStartPage)
	if !ok || start <= 0 {
		return "[Source: " + label + "]"
	}
	if end, ok := md.Int(vectorindex.KeyEndPage); ok && end > start {
		return fmt.Sprintf("[Source: %s, Pages %d-%d]", label, start, end)
	}
	return fmt.Sprintf("[Source: %s, Page %d]", label, start)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// AnalysisKind 是文档分析的类型。
type AnalysisKind string

const (
	AnalysisSummary    AnalysisKind = "summary"
	AnalysisRisks      AnalysisKind = "risks"
	AnalysisKeyClauses AnalysisKind = "key_clauses"
	AnalysisCustom     AnalysisKind = "custom"
)

var ErrUnknownAnalysis = errors.New("unknown analysis kind")

// AnalysisInstruction 返回分析类型对应的固定指令；custom 类型使用调用方给出的问题。
func AnalysisInstruction(kind AnalysisKind, customQuery string) (string, error) {
	switch kind {
	case AnalysisSummary:
		return summaryInstruction, nil
	case AnalysisRisks:
		return riskInstruction, nil
	case AnalysisKeyClauses:
		return keyClausesInstruction, nil
	case AnalysisCustom:
		if strings.TrimSpace(customQuery) == "" {
			return "", fmt.Errorf("%w: custom analysis requires a query", ErrUnknownAnalysis)
		}
		return customQuery, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAnalysis, kind)
}
