package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag-go/internal/config"
)

type recordingClient struct {
	inner Client
	calls [][]string
	err   error
}

func (r *recordingClient) Model() string { return "recording" }

func (r *recordingClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	r.calls = append(r.calls, append([]string(nil), texts...))
	if r.err != nil {
		return nil, r.err
	}
	return r.inner.CreateEmbeddings(ctx, texts)
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestEmbedManySkipsEmptyInputs(t *testing.T) {
	rc := &recordingClient{inner: NewHashingClient(16)}
	e := NewEmbedder(rc, 16, 10)

	vecs, err := e.EmbedMany(context.Background(), []string{"contract breach", "", "   ", "notice period"})
	require.NoError(t, err)
	require.Len(t, vecs, 4)

	require.Len(t, rc.calls, 1)
	assert.Equal(t, []string{"contract breach", "notice period"}, rc.calls[0])

	assert.Equal(t, make([]float32, 16), vecs[1])
	assert.Equal(t, make([]float32, 16), vecs[2])
	assert.InDelta(t, 1.0, norm(vecs[0]), 1e-5)
	assert.InDelta(t, 1.0, norm(vecs[3]), 1e-5)
}

func TestEmbedOneEmptyIsZeroVector(t *testing.T) {
	rc := &recordingClient{inner: NewHashingClient(8)}
	e := NewEmbedder(rc, 8, 0)

	v, err := e.EmbedOne(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), v)
	assert.Empty(t, rc.calls)
}

func TestEmbedDeterministicAndBatchEquivalent(t *testing.T) {
	e := NewEmbedder(NewHashingClient(32), 32, 0)
	ctx := context.Background()

	a, err := e.EmbedOne(ctx, "Section 420 of the Indian Penal Code")
	require.NoError(t, err)
	b, err := e.EmbedOne(ctx, "Section 420 of the Indian Penal Code")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	many, err := e.EmbedMany(ctx, []string{"Section 420 of the Indian Penal Code"})
	require.NoError(t, err)
	assert.InDeltaSlice(t, a, many[0], 1e-6)
}

func TestEmbedManyBatches(t *testing.T) {
	rc := &recordingClient{inner: NewHashingClient(8)}
	e := NewEmbedder(rc, 8, 2)

	vecs, err := e.EmbedMany(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Len(t, vecs, 5)
	assert.Len(t, rc.calls, 3)
}

func TestDimensionLearnedFromBackend(t *testing.T) {
	e := NewEmbedder(NewHashingClient(12), 384, 0)
	assert.Equal(t, 384, e.Dimension())

	require.NoError(t, e.Warmup(context.Background()))
	assert.Equal(t, 12, e.Dimension())

	v, err := e.EmbedOne(context.Background(), " ")
	require.NoError(t, err)
	assert.Len(t, v, 12)
}

func TestEmbedPropagatesBackendError(t *testing.T) {
	rc := &recordingClient{inner: NewHashingClient(8), err: errors.New("model offline")}
	e := NewEmbedder(rc, 8, 0)

	_, err := e.EmbedMany(context.Background(), []string{"x"})
	assert.ErrorContains(t, err, "model offline")
}

func TestNormalizeZeroVector(t *testing.T) {
	assert.Equal(t, []float32{0, 0}, Normalize([]float32{0, 0}))
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, Normalize([]float32{3, 4}), 1e-6)
}

func TestOpenAICompatibleClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"first", "second"}, req.Input)

		// out of order on purpose
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(config.EmbeddingConfig{Provider: "openai", BaseURL: srv.URL, APIKey: "secret", Model: "m"})
	require.NoError(t, err)

	vecs, err := c.CreateEmbeddings(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
}

func TestOllamaClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "all-minilm", req.Model)
		_, _ = w.Write([]byte(`{"model":"all-minilm","embeddings":[[0.5,0.5,0.5]]}`))
	}))
	defer srv.Close()

	c, err := NewClient(config.EmbeddingConfig{Provider: "ollama", BaseURL: srv.URL + "/", Model: "all-minilm"})
	require.NoError(t, err)

	vecs, err := c.CreateEmbeddings(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, 0.5, 0.5}}, vecs)
}

func TestOllamaClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewClient(config.EmbeddingConfig{Provider: "ollama", BaseURL: srv.URL, Model: "x"})
	require.NoError(t, err)

	_, err = c.CreateEmbeddings(context.Background(), []string{"hello"})
	assert.ErrorContains(t, err, "404")
}

func TestNewClientUnknownProvider(t *testing.T) {
	_, err := NewClient(config.EmbeddingConfig{Provider: "word2vec"})
	assert.Error(t, err)
}

func TestVectorCodecAndKeys(t *testing.T) {
	v := []float32{0.25, -1.5, 3}
	got, ok := decodeVector(encodeVector(v))
	require.True(t, ok)
	assert.Equal(t, v, got)

	_, ok = decodeVector("abc")
	assert.False(t, ok)

	assert.NotEqual(t, cacheKey("a", "text"), cacheKey("b", "text"))
}
