package es

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"

	"legal-rag-go/internal/vectorindex"
	"legal-rag-go/pkg/log"
)

// Collection 把一个 Elasticsearch 索引包装成向量集合。
type Collection struct {
	client *elasticsearch.Client
	index  string
	dims   int
}

var _ vectorindex.Collection = (*Collection)(nil)

// NewCollection 创建集合；dims 必须与 Embedder 的输出维度一致。
func NewCollection(client *elasticsearch.Client, index string, dims int) *Collection {
	return &Collection{client: client, index: index, dims: dims}
}

func (c *Collection) Name() string { return c.index }

type entryDocument struct {
	Text     string               `json:"text"`
	Vector   []float32            `json:"vector,omitempty"`
	Metadata vectorindex.Metadata `json:"metadata"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// Upsert 用 bulk index 按 ID 覆盖写入，wait_for 刷新后返回，写入结果立即可查。
func (c *Collection) Upsert(ctx context.Context, entries []vectorindex.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if len(e.Vector) != c.dims {
			return fmt.Errorf("upsert into %s: %w (got %d, want %d)", c.index, vectorindex.ErrDimensionMismatch, len(e.Vector), c.dims)
		}
		if err := enc.Encode(map[string]any{"index": map[string]string{"_index": c.index, "_id": e.ID}}); err != nil {
			return err
		}
		if err := enc.Encode(entryDocument{Text: e.Text, Vector: e.Vector, Metadata: e.Metadata}); err != nil {
			return err
		}
	}

	res, err := c.client.Bulk(&buf,
		c.client.Bulk.WithContext(ctx),
		c.client.Bulk.WithRefresh("wait_for"),
	)
	if err != nil {
		return fmt.Errorf("bulk upsert into %s: %w", c.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk upsert into %s: %s", c.index, res.String())
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if br.Errors {
		failed := 0
		var first string
		for _, item := range br.Items {
			for _, r := range item {
				if r.Error != nil {
					failed++
					if first == "" {
						first = fmt.Sprintf("%s: %s: %s", r.ID, r.Error.Type, r.Error.Reason)
					}
				}
			}
		}
		return fmt.Errorf("bulk upsert into %s: %d of %d entries failed, first: %s", c.index, failed, len(entries), first)
	}
	log.Debugf("[ES] 写入 %d 条记录到索引 '%s'", len(entries), c.index)
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string        `json:"_id"`
			Score  float64       `json:"_score"`
			Source entryDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Query 执行 knn 检索，过滤条件作为 knn.filter 下推。
func (c *Collection) Query(ctx context.Context, vector []float32, k int, filter vectorindex.Filter) ([]vectorindex.Result, error) {
	results := []vectorindex.Result{}
	if k <= 0 {
		return results, nil
	}
	if len(vector) != c.dims {
		return nil, fmt.Errorf("query %s: %w (got %d, want %d)", c.index, vectorindex.ErrDimensionMismatch, len(vector), c.dims)
	}

	knn := map[string]any{
		"field":          "vector",
		"query_vector":   vector,
		"k":              k,
		"num_candidates": numCandidates(k),
	}
	if !filter.IsEmpty() {
		knn["filter"] = filterQuery(filter)
	}
	body, err := json.Marshal(map[string]any{
		"knn":     knn,
		"size":    k,
		"_source": []string{"text", "metadata"},
	})
	if err != nil {
		return nil, err
	}

	res, err := c.client.Search(
		c.client.Search.WithContext(ctx),
		c.client.Search.WithIndex(c.index),
		c.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", c.index, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		// 索引尚未创建，视为空集合
		return results, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("search %s: %s", c.index, res.String())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	for _, hit := range sr.Hits.Hits {
		d := distanceFromScore(hit.Score)
		md := hit.Source.Metadata
		if md == nil {
			md = vectorindex.Metadata{}
		}
		results = append(results, vectorindex.Result{
			ID:         hit.ID,
			Content:    hit.Source.Text,
			Metadata:   md,
			Distance:   d,
			Similarity: vectorindex.SimilarityFromDistance(d),
		})
	}
	return results, nil
}

// Delete 通过 delete_by_query 一次性删除整个归属范围。
func (c *Collection) Delete(ctx context.Context, filter vectorindex.Filter) (int, error) {
	if filter.IsEmpty() {
		return 0, fmt.Errorf("delete from %s: %w: empty filter", c.index, vectorindex.ErrInvalidFilter)
	}
	body, err := json.Marshal(map[string]any{"query": filterQuery(filter)})
	if err != nil {
		return 0, err
	}

	res, err := c.client.DeleteByQuery(
		[]string{c.index},
		bytes.NewReader(body),
		c.client.DeleteByQuery.WithContext(ctx),
		c.client.DeleteByQuery.WithRefresh(true),
		c.client.DeleteByQuery.WithConflicts("proceed"),
	)
	if err != nil {
		return 0, fmt.Errorf("delete_by_query %s: %w", c.index, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if res.IsError() {
		return 0, fmt.Errorf("delete_by_query %s: %s", c.index, res.String())
	}

	var out struct {
		Deleted  int               `json:"deleted"`
		Failures []json.RawMessage `json:"failures"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode delete_by_query response: %w", err)
	}
	if len(out.Failures) > 0 {
		return out.Deleted, errors.New("delete_by_query reported failures: " + string(out.Failures[0]))
	}
	log.Infof("[ES] 从索引 '%s' 删除 %d 条记录, filter=%s", c.index, out.Deleted, filter)
	return out.Deleted, nil
}

func (c *Collection) Count(ctx context.Context, filter vectorindex.Filter) (int, error) {
	query := map[string]any{"match_all": map[string]any{}}
	if !filter.IsEmpty() {
		query = filterQuery(filter)
	}
	body, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return 0, err
	}

	res, err := c.client.Count(
		c.client.Count.WithContext(ctx),
		c.client.Count.WithIndex(c.index),
		c.client.Count.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.index, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if res.IsError() {
		return 0, fmt.Errorf("count %s: %s", c.index, res.String())
	}

	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return out.Count, nil
}

func filterQuery(f vectorindex.Filter) map[string]any {
	preds := f.Predicates()
	terms := make([]any, 0, len(preds))
	for _, p := range preds {
		terms = append(terms, map[string]any{
			"term": map[string]any{"metadata." + p.Key: p.Value},
		})
	}
	return map[string]any{"bool": map[string]any{"filter": terms}}
}

func numCandidates(k int) int {
	return max(k*10, 100)
}

// distanceFromScore 还原余弦距离。cosine 相似度下 ES 的 _score = (1 + cos) / 2。
func distanceFromScore(score float64) float64 {
	return 2 - 2*score
}
