package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"legal-rag-go/internal/prompt"
)

const (
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultOllamaModel   = "llama3"
)

// OllamaBackend calls a locally hosted model through Ollama's /api/chat.
type OllamaBackend struct {
	baseURL string
	model   string
	client  *http.Client
}

var _ Backend = (*OllamaBackend)(nil)

func NewOllamaBackend(baseURL, model string) *OllamaBackend {
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	// the guarding Client owns the deadline through ctx
	return &OllamaBackend{baseURL: strings.TrimRight(baseURL, "/"), model: model, client: &http.Client{}}
}

func (b *OllamaBackend) Name() string  { return "ollama" }
func (b *OllamaBackend) Model() string { return b.model }

type ollamaChatRequest struct {
	Model    string           `json:"model"`
	Messages []prompt.Message `json:"messages"`
	Stream   bool             `json:"stream"`
	Options  ollamaOptions    `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

func (b *OllamaBackend) Complete(ctx context.Context, messages []prompt.Message, params Params) (*Completion, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model:    b.model,
		Messages: messages,
		Stream:   false,
		Options:  ollamaOptions{Temperature: params.Temperature, NumPredict: params.MaxTokens},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ollama chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call ollama chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(msg)}
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode ollama chat response: %w", err)
	}
	return &Completion{
		Text:             out.Message.Content,
		Model:            out.Model,
		PromptTokens:     out.PromptEvalCount,
		CompletionTokens: out.EvalCount,
	}, nil
}
