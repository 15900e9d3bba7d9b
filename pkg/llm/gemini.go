package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"legal-rag-go/internal/prompt"
)

const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiBackend calls Google's Gemini API. System messages become the system instruction,
// earlier turns become chat history and the final user message is sent.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

var _ Backend = (*GeminiBackend)(nil)

func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, errors.New("gemini backend requires llm.api_key")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiBackend{client: client, model: model}, nil
}

func (b *GeminiBackend) Name() string  { return "gemini" }
func (b *GeminiBackend) Model() string { return b.model }

func (b *GeminiBackend) Close() error { return b.client.Close() }

func (b *GeminiBackend) Complete(ctx context.Context, messages []prompt.Message, params Params) (*Completion, error) {
	system, history, last, err := splitForGemini(messages)
	if err != nil {
		return nil, err
	}

	m := b.client.GenerativeModel(b.model)
	m.SetTemperature(float32(params.Temperature))
	if params.MaxTokens > 0 {
		m.SetMaxOutputTokens(int32(params.MaxTokens))
	}
	if system != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := m.StartChat()
	cs.History = history
	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	var sb strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
	}
	out := &Completion{Text: sb.String(), Model: b.model}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

func splitForGemini(messages []prompt.Message) (string, []*genai.Content, string, error) {
	if len(messages) == 0 || messages[len(messages)-1].Role != prompt.RoleUser {
		return "", nil, "", errors.New("gemini: last message must come from the user")
	}
	var system []string
	var history []*genai.Content
	for _, msg := range messages[:len(messages)-1] {
		switch msg.Role {
		case prompt.RoleSystem:
			system = append(system, msg.Content)
		case prompt.RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(msg.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		}
	}
	return strings.Join(system, "\n\n"), history, messages[len(messages)-1].Content, nil
}
