package embedding

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/go-redis/redis/v8"

	"legal-rag-go/pkg/log"
)

// CachedClient keeps backend vectors in Redis keyed by model and text hash.
// Redis errors fall through to the backend.
type CachedClient struct {
	inner Client
	rdb   *redis.Client
	ttl   time.Duration
}

func NewCachedClient(inner Client, rdb *redis.Client, ttl time.Duration) *CachedClient {
	return &CachedClient{inner: inner, rdb: rdb, ttl: ttl}
}

func (c *CachedClient) Model() string { return c.inner.Model() }

func (c *CachedClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = cacheKey(c.inner.Model(), t)
	}

	cached, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		log.Warnf("[EmbeddingCache] redis MGET failed, bypassing cache: %v", err)
		return c.inner.CreateEmbeddings(ctx, texts)
	}

	out := make([][]float32, len(texts))
	var missPos []int
	var missTexts []string
	for i, v := range cached {
		if s, ok := v.(string); ok {
			if vec, ok := decodeVector(s); ok {
				out[i] = vec
				continue
			}
		}
		missPos = append(missPos, i)
		missTexts = append(missTexts, texts[i])
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := c.inner.CreateEmbeddings(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("embedding backend returned %d vectors for %d inputs", len(fresh), len(missTexts))
	}

	pipe := c.rdb.Pipeline()
	for j, vec := range fresh {
		out[missPos[j]] = vec
		pipe.Set(ctx, keys[missPos[j]], encodeVector(vec), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warnf("[EmbeddingCache] failed to store %d vectors: %v", len(fresh), err)
	}
	log.Debugf("[EmbeddingCache] hits=%d misses=%d", len(texts)-len(missTexts), len(missTexts))
	return out, nil
}

func cacheKey(model, text string) string {
	sum := sha1.Sum([]byte(text))
	return "emb:" + model + ":" + hex.EncodeToString(sum[:])
}

func encodeVector(v []float32) string {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return string(buf)
}

func decodeVector(s string) ([]float32, bool) {
	if len(s) == 0 || len(s)%4 != 0 {
		return nil, false
	}
	b := []byte(s)
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out, true
}
