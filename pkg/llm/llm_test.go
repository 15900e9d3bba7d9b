package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag-go/internal/config"
	"legal-rag-go/internal/prompt"
)

var testMessages = []prompt.Message{
	{Role: prompt.RoleSystem, Content: "You are a legal assistant."},
	{Role: prompt.RoleUser, Content: "What is bail?"},
}

type fakeBackend struct {
	calls int
	comp  *Completion
	err   error
	delay time.Duration
}

func (f *fakeBackend) Name() string  { return "fake" }
func (f *fakeBackend) Model() string { return "fake-model" }

func (f *fakeBackend) Complete(ctx context.Context, _ []prompt.Message, _ Params) (*Completion, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.comp, f.err
}

func testConfig() config.LLMConfig {
	return config.LLMConfig{
		TimeoutSeconds: 60,
		Breaker:        config.LLMBreakerConfig{MaxRequests: 1, OpenTimeoutSeconds: 60, ConsecutiveFailures: 3},
	}
}

func TestOllamaBackendThroughClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		assert.False(t, req.Stream)
		assert.InDelta(t, 0.3, req.Options.Temperature, 1e-9)
		assert.Equal(t, 1000, req.Options.NumPredict)
		assert.Len(t, req.Messages, 2)

		_, _ = w.Write([]byte(`{"model":"llama3","message":{"role":"assistant","content":" Bail is conditional release. "},"done":true,"prompt_eval_count":40,"eval_count":12}`))
	}))
	defer srv.Close()

	c := NewClient(NewOllamaBackend(srv.URL, ""), testConfig())
	res, err := c.Generate(context.Background(), testMessages, Params{Temperature: 0.3, MaxTokens: 1000})
	require.NoError(t, err)
	assert.Equal(t, "Bail is conditional release.", res.Text)
	assert.Equal(t, 52, res.TokensUsed)
	assert.False(t, res.TokensEstimated)
	assert.Equal(t, "llama3", res.Model)
	assert.GreaterOrEqual(t, res.ElapsedMs, int64(0))
}

func TestOpenAIBackendEstimatesTokensWithoutUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"model":"deepseek-chat","choices":[{"message":{"content":"abcdefgh"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(NewOpenAIBackend(srv.URL+"/", "sk-test", "deepseek-chat"), testConfig())
	res, err := c.Generate(context.Background(), testMessages, Params{Temperature: 0.3})
	require.NoError(t, err)
	assert.True(t, res.TokensEstimated)
	assert.Equal(t, EstimateTokens(testMessages, "abcdefgh"), res.TokensUsed)
}

func TestStatusErrorsAreClassified(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", tt.status)
			}))
			defer srv.Close()

			c := NewClient(NewOllamaBackend(srv.URL, "llama3"), testConfig())
			_, err := c.Generate(context.Background(), testMessages, Params{})

			var ge *GenerationError
			require.ErrorAs(t, err, &ge)
			assert.Equal(t, tt.retryable, ge.Retryable)
			assert.Equal(t, "ollama", ge.Backend)
			assert.Equal(t, UserSafeMessage, ge.UserMessage())
			var se *StatusError
			assert.ErrorAs(t, err, &se)
		})
	}
}

func TestGenerateTimesOutAsRetryable(t *testing.T) {
	backend := &fakeBackend{delay: time.Second, comp: &Completion{Text: "late"}}
	c := NewClient(backend, testConfig())
	c.timeout = 20 * time.Millisecond

	_, err := c.Generate(context.Background(), testMessages, Params{})
	var ge *GenerationError
	require.ErrorAs(t, err, &ge)
	assert.True(t, ge.Retryable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEmptyCompletionIsAnError(t *testing.T) {
	c := NewClient(&fakeBackend{comp: &Completion{Text: "   "}}, testConfig())
	_, err := c.Generate(context.Background(), testMessages, Params{})
	var ge *GenerationError
	require.ErrorAs(t, err, &ge)
	assert.False(t, ge.Retryable)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	backend := &fakeBackend{err: errors.New("connection refused")}
	c := NewClient(backend, testConfig())

	for i := 0; i < 3; i++ {
		_, err := c.Generate(context.Background(), testMessages, Params{})
		require.Error(t, err)
	}
	_, err := c.Generate(context.Background(), testMessages, Params{})

	var ge *GenerationError
	require.ErrorAs(t, err, &ge)
	assert.True(t, ge.Retryable)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, backend.calls)
}

func TestNewBackendSelectsProvider(t *testing.T) {
	b, err := NewBackend(context.Background(), config.LLMConfig{Provider: "ollama"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", b.Name())
	assert.Equal(t, DefaultOllamaModel, b.Model())

	b, err = NewBackend(context.Background(), config.LLMConfig{Provider: "OpenAI", BaseURL: "http://x", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "openai", b.Name())

	_, err = NewBackend(context.Background(), config.LLMConfig{Provider: "gemini"})
	assert.Error(t, err)

	_, err = NewBackend(context.Background(), config.LLMConfig{Provider: "bard"})
	assert.Error(t, err)
}

func TestSplitForGemini(t *testing.T) {
	msgs := []prompt.Message{
		{Role: prompt.RoleSystem, Content: "sys"},
		{Role: prompt.RoleUser, Content: "q1"},
		{Role: prompt.RoleAssistant, Content: "a1"},
		{Role: prompt.RoleUser, Content: "q2"},
	}
	system, history, last, err := splitForGemini(msgs)
	require.NoError(t, err)
	assert.Equal(t, "sys", system)
	assert.Equal(t, "q2", last)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)

	_, _, _, err = splitForGemini(msgs[:3])
	assert.Error(t, err)
}
