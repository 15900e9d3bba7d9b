package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashingClient is an offline feature-hashing embedder. Each lower-cased word token is hashed
// into one of dim buckets with a hash-derived sign. It needs no model server and is fully
// deterministic, which makes it useful for development and tests.
type HashingClient struct {
	dim int
}

func NewHashingClient(dim int) *HashingClient {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &HashingClient{dim: dim}
}

func (c *HashingClient) Model() string { return "feature-hashing" }

func (c *HashingClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = c.embed(t)
	}
	return out, nil
}

func (c *HashingClient) embed(text string) []float32 {
	v := make([]float32, c.dim)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		bucket := int(sum % uint64(c.dim))
		if sum>>63 == 1 {
			v[bucket]--
		} else {
			v[bucket]++
		}
	}
	return v
}
