package es

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag-go/internal/vectorindex"
)

func newTestCollection(t *testing.T, handler http.HandlerFunc) *Collection {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewCollection(client, "user_documents", 2)
}

func TestQueryBuildsKnnWithFilterAndParsesHits(t *testing.T) {
	c := newTestCollection(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user_documents/_search", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		knn := body["knn"].(map[string]any)
		assert.Equal(t, "vector", knn["field"])
		assert.EqualValues(t, 3, knn["k"])
		assert.EqualValues(t, 100, knn["num_candidates"])

		filter := knn["filter"].(map[string]any)["bool"].(map[string]any)["filter"].([]any)
		require.Len(t, filter, 2)
		assert.Equal(t, map[string]any{"term": map[string]any{"metadata.document_id": "d1"}}, filter[0])
		assert.Equal(t, map[string]any{"term": map[string]any{"metadata.user_id": "u1"}}, filter[1])

		_, _ = io.WriteString(w, `{"hits":{"hits":[
			{"_id":"d1_0","_score":1.0,"_source":{"text":"first","metadata":{"user_id":"u1","start_page":2}}},
			{"_id":"d1_1","_score":0.6,"_source":{"text":"second","metadata":{"user_id":"u1"}}}
		]}}`)
	})

	f := vectorindex.MustFilter(vectorindex.Eq("user_id", "u1"), vectorindex.Eq("document_id", "d1"))
	res, err := c.Query(context.Background(), []float32{1, 0}, 3, f)
	require.NoError(t, err)
	require.Len(t, res, 2)

	assert.Equal(t, "d1_0", res[0].ID)
	assert.Equal(t, "first", res[0].Content)
	assert.InDelta(t, 0.0, res[0].Distance, 1e-9)
	assert.InDelta(t, 1.0, res[0].Similarity, 1e-9)
	page, ok := res[0].Metadata.Int("start_page")
	assert.True(t, ok)
	assert.Equal(t, 2, page)

	assert.InDelta(t, 0.8, res[1].Distance, 1e-9)
	assert.InDelta(t, 0.2, res[1].Similarity, 1e-9)
}

func TestQueryMissingIndexIsEmpty(t *testing.T) {
	c := newTestCollection(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"type":"index_not_found_exception"},"status":404}`)
	})

	res, err := c.Query(context.Background(), []float32{1, 0}, 5, vectorindex.Filter{})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestQueryRejectsWrongDimension(t *testing.T) {
	c := newTestCollection(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := c.Query(context.Background(), []float32{1, 0, 0}, 5, vectorindex.Filter{})
	assert.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)
}

func TestUpsertWritesBulkNDJSON(t *testing.T) {
	c := newTestCollection(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_bulk", r.URL.Path)
		assert.Equal(t, "wait_for", r.URL.Query().Get("refresh"))

		var lines []string
		sc := bufio.NewScanner(r.Body)
		for sc.Scan() {
			lines = append(lines, sc.Text())
		}
		require.Len(t, lines, 4)
		assert.JSONEq(t, `{"index":{"_index":"user_documents","_id":"d1_0"}}`, lines[0])
		assert.Contains(t, lines[1], `"text":"chunk zero"`)
		_, _ = io.WriteString(w, `{"errors":false,"items":[]}`)
	})

	err := c.Upsert(context.Background(), []vectorindex.Entry{
		{ID: "d1_0", Vector: []float32{1, 0}, Text: "chunk zero", Metadata: vectorindex.Metadata{"user_id": "u1"}},
		{ID: "d1_1", Vector: []float32{0, 1}, Text: "chunk one", Metadata: vectorindex.Metadata{"user_id": "u1"}},
	})
	require.NoError(t, err)
}

func TestUpsertReportsItemErrors(t *testing.T) {
	c := newTestCollection(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"errors":true,"items":[
			{"index":{"_id":"d1_0","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad vector"}}}
		]}`)
	})

	err := c.Upsert(context.Background(), []vectorindex.Entry{
		{ID: "d1_0", Vector: []float32{1, 0}, Text: "x"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestDeleteByScope(t *testing.T) {
	c := newTestCollection(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user_documents/_delete_by_query", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("refresh"))
		raw, _ := io.ReadAll(r.Body)
		assert.True(t, strings.Contains(string(raw), `"metadata.document_id":"d1"`))
		_, _ = io.WriteString(w, `{"deleted":4,"failures":[]}`)
	})

	n, err := c.Delete(context.Background(), vectorindex.MustFilter(vectorindex.Eq("document_id", "d1")))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = c.Delete(context.Background(), vectorindex.Filter{})
	assert.ErrorIs(t, err, vectorindex.ErrInvalidFilter)
}

func TestCountUsesMatchAllForEmptyFilter(t *testing.T) {
	c := newTestCollection(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user_documents/_count", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(raw), "match_all")
		_, _ = io.WriteString(w, `{"count":12}`)
	})

	n, err := c.Count(context.Background(), vectorindex.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}

func TestEnsureIndexCreatesMissingIndex(t *testing.T) {
	var created bool
	c := newTestCollection(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			raw, _ := io.ReadAll(r.Body)
			assert.Contains(t, string(raw), `"similarity": "cosine"`)
			assert.Contains(t, string(raw), `"dims": 2`)
			created = true
			_, _ = io.WriteString(w, `{"acknowledged":true}`)
		}
	})

	require.NoError(t, c.EnsureIndex(context.Background()))
	assert.True(t, created)
}
