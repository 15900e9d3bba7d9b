package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"legal-rag-go/pkg/log"
)

const (
	// DefaultDimension is used until the backend has returned its first vector.
	DefaultDimension = 384
	DefaultBatchSize = 64
)

var ErrDimensionChanged = errors.New("embedding dimension changed")

// Embedder turns text into L2-normalized vectors. It is built once at startup and shared.
// Empty or whitespace-only inputs become zero vectors and are never sent to the backend.
type Embedder struct {
	client    Client
	batchSize int

	mu        sync.RWMutex
	dimension int
	learned   bool
}

func NewEmbedder(client Client, defaultDimension, batchSize int) *Embedder {
	if defaultDimension <= 0 {
		defaultDimension = DefaultDimension
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Embedder{client: client, batchSize: batchSize, dimension: defaultDimension}
}

func (e *Embedder) Model() string { return e.client.Model() }

// Dimension reports the learned dimension, or the pre-load default before the first call.
func (e *Embedder) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dimension
}

// Warmup embeds a probe text so the backend loads its model and the dimension is learned.
func (e *Embedder) Warmup(ctx context.Context) error {
	if _, err := e.EmbedOne(ctx, "warmup"); err != nil {
		return fmt.Errorf("embedding warmup failed: %w", err)
	}
	log.Infof("[Embedder] model %s ready, dimension %d", e.Model(), e.Dimension())
	return nil
}

func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedMany returns exactly one vector per input, in input order.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	positions := make([]int, 0, len(texts))
	pending := make([]string, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		positions = append(positions, i)
		pending = append(pending, t)
	}

	for start := 0; start < len(pending); start += e.batchSize {
		end := min(start+e.batchSize, len(pending))
		vecs, err := e.client.CreateEmbeddings(ctx, pending[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed inputs %d-%d: %w", start, end-1, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedding backend returned %d vectors for %d inputs", len(vecs), end-start)
		}
		for j, v := range vecs {
			if err := e.observe(len(v)); err != nil {
				return nil, err
			}
			out[positions[start+j]] = Normalize(v)
		}
	}

	dim := e.Dimension()
	for i := range out {
		if out[i] == nil {
			out[i] = make([]float32, dim)
		}
	}
	return out, nil
}

func (e *Embedder) observe(n int) error {
	if n == 0 {
		return errors.New("embedding backend returned an empty vector")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.learned {
		e.dimension = n
		e.learned = true
		return nil
	}
	if n != e.dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionChanged, n, e.dimension)
	}
	return nil
}

// Normalize returns a unit-length copy of v. A zero vector stays zero.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
