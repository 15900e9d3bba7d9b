// Package embedding provides embedding backends and the Embedder that normalizes their output.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"legal-rag-go/internal/config"
	"legal-rag-go/pkg/log"
)

// Client is a raw embedding backend. It returns one vector per input text, in input order.
// Vectors are not required to be normalized.
type Client interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// NewClient selects the backend once from configuration.
func NewClient(cfg config.EmbeddingConfig) (Client, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		return &openAICompatibleClient{cfg: cfg, client: httpClient}, nil
	case "ollama":
		return &ollamaClient{baseURL: strings.TrimRight(cfg.BaseURL, "/"), model: cfg.Model, client: httpClient}, nil
	case "hashing":
		return NewHashingClient(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *openAICompatibleClient) Model() string { return c.cfg.Model }

// CreateEmbeddings calls the OpenAI-compatible /embeddings API with a batch of inputs.
func (c *openAICompatibleClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	log.Debugf("[EmbeddingClient] calling embeddings API, model: %s, inputs: %d", c.cfg.Model, len(texts))
	reqBody := embeddingRequest{
		Model:      c.cfg.Model,
		Input:      texts,
		Dimensions: c.cfg.Dimensions,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] embeddings API call failed: %v", err)
		return nil, fmt.Errorf("failed to call embedding api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Errorf("[EmbeddingClient] embeddings API returned %s", resp.Status)
		return nil, fmt.Errorf("embedding api returned non-200 status: %s, body: %s", resp.Status, string(body))
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(embeddingResp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding api returned %d vectors for %d inputs", len(embeddingResp.Data), len(texts))
	}

	sort.SliceStable(embeddingResp.Data, func(i, j int) bool {
		return embeddingResp.Data[i].Index < embeddingResp.Data[j].Index
	})
	out := make([][]float32, len(embeddingResp.Data))
	for i, d := range embeddingResp.Data {
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("received empty embedding at position %d", i)
		}
		out[i] = d.Embedding
	}
	return out, nil
}
