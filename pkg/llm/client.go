// Package llm provides the generation client and its model backends.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"legal-rag-go/internal/config"
	"legal-rag-go/internal/prompt"
	"legal-rag-go/pkg/log"
)

// UserSafeMessage is what end users see when generation fails. Details go to the logs.
const UserSafeMessage = "The AI service is temporarily unavailable or took too long to respond. Please try again in a moment."

var tracer = otel.Tracer("legal-rag-go/llm")

// Params controls a single generation.
type Params struct {
	Temperature float64
	MaxTokens   int
}

// Completion is what a backend returns. Token counts are zero when the backend does not report usage.
type Completion struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Backend completes a message sequence. One implementation per model provider.
type Backend interface {
	Name() string
	Model() string
	Complete(ctx context.Context, messages []prompt.Message, params Params) (*Completion, error)
}

// Result is the outcome of Generate.
type Result struct {
	Text string `json:"text"`
	// TokensUsed is exact when the backend reports usage. Otherwise it is the
	// len/4 character heuristic and TokensEstimated is true.
	TokensUsed      int    `json:"tokens_used"`
	TokensEstimated bool   `json:"tokens_estimated"`
	Model           string `json:"model"`
	ElapsedMs       int64  `json:"elapsed_ms"`
}

// Generator is the capability the orchestrator depends on.
type Generator interface {
	Generate(ctx context.Context, messages []prompt.Message, params Params) (*Result, error)
}

// GenerationError marks a failed generation. Error() is for operators; UserMessage() is for end users.
type GenerationError struct {
	Backend   string
	Retryable bool
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("[generation error] backend=%s retryable=%t: %v", e.Backend, e.Retryable, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) UserMessage() string { return UserSafeMessage }

// StatusError is returned by HTTP backends for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}

// Client guards a Backend with a hard timeout, a rate limiter and a circuit breaker.
type Client struct {
	backend Backend
	timeout time.Duration
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

var _ Generator = (*Client)(nil)

// NewClient wraps backend using the limits in cfg.
func NewClient(backend Backend, cfg config.LLMConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(config.MinGenerationTimeoutSeconds) * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	failures := cfg.Breaker.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-" + backend.Name(),
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    time.Duration(cfg.Breaker.IntervalSeconds) * time.Second,
		Timeout:     time.Duration(cfg.Breaker.OpenTimeoutSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("[LLM] circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &Client{backend: backend, timeout: timeout, limiter: limiter, breaker: breaker}
}

// Generate runs one completion. Every failure is returned as *GenerationError.
func (c *Client) Generate(ctx context.Context, messages []prompt.Message, params Params) (*Result, error) {
	ctx, span := tracer.Start(ctx, "llm.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.backend", c.backend.Name()),
		attribute.String("llm.model", c.backend.Model()),
		attribute.Int("llm.messages", len(messages)),
		attribute.Int("llm.max_tokens", params.MaxTokens),
	)

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	fail := func(err error) (*Result, error) {
		ge := c.classify(ctx, err)
		span.RecordError(ge)
		span.SetStatus(codes.Error, "generation failed")
		log.ErrorwCtx(ctx, "[LLM] generation failed",
			"backend", c.backend.Name(),
			"model", c.backend.Model(),
			"retryable", ge.Retryable,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return nil, ge
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fail(fmt.Errorf("rate limiter: %w", err))
		}
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.backend.Complete(ctx, messages, params)
	})
	if err != nil {
		return fail(err)
	}
	comp, ok := out.(*Completion)
	if !ok || comp == nil || strings.TrimSpace(comp.Text) == "" {
		return fail(errors.New("backend returned an empty completion"))
	}

	res := &Result{
		Text:       strings.TrimSpace(comp.Text),
		TokensUsed: comp.PromptTokens + comp.CompletionTokens,
		Model:      comp.Model,
		ElapsedMs:  time.Since(start).Milliseconds(),
	}
	if res.Model == "" {
		res.Model = c.backend.Model()
	}
	if res.TokensUsed == 0 {
		res.TokensUsed = EstimateTokens(messages, comp.Text)
		res.TokensEstimated = true
	}
	span.SetAttributes(
		attribute.Int("llm.tokens_used", res.TokensUsed),
		attribute.Bool("llm.tokens_estimated", res.TokensEstimated),
		attribute.Int64("llm.elapsed_ms", res.ElapsedMs),
	)
	log.Infof("[LLM] %s/%s answered in %dms, tokens=%d (estimated=%t)",
		c.backend.Name(), res.Model, res.ElapsedMs, res.TokensUsed, res.TokensEstimated)
	return res, nil
}

func (c *Client) classify(ctx context.Context, err error) *GenerationError {
	ge := &GenerationError{Backend: c.backend.Name(), Err: err}

	var se *StatusError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		ge.Err = fmt.Errorf("timed out after %s: %w", c.timeout, err)
		ge.Retryable = true
	case errors.Is(err, context.Canceled):
		ge.Retryable = false
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		ge.Retryable = true
	case errors.As(err, &se):
		ge.Retryable = se.StatusCode == 429 || se.StatusCode >= 500
	case errors.As(err, &netErr):
		ge.Retryable = true
	}
	return ge
}

// EstimateTokens approximates token usage as total characters / 4.
func EstimateTokens(messages []prompt.Message, completion string) int {
	n := len(completion)
	for _, m := range messages {
		n += len(m.Content)
	}
	return n / 4
}

// NewBackend selects the backend once at startup.
func NewBackend(ctx context.Context, cfg config.LLMConfig) (Backend, error) {
	switch strings.ToLower(cfg.Provider) {
	case "ollama", "":
		return NewOllamaBackend(cfg.BaseURL, cfg.Model), nil
	case "openai":
		return NewOpenAIBackend(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	case "gemini":
		return NewGeminiBackend(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
