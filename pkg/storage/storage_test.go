package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag-go/internal/chunker"
)

func TestExtractedKey(t *testing.T) {
	assert.Equal(t, "extracted/u1/d1.json", ExtractedKey("u1", "d1"))
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	key := ExtractedKey("u1", "d1")

	_, err := s.GetExtracted(ctx, key)
	assert.ErrorIs(t, err, ErrObjectNotFound)

	in := &ExtractedText{Text: "Clause 1.", Pages: []chunker.Page{{PageNum: 1, CharCount: 9}}}
	require.NoError(t, s.PutExtracted(ctx, key, in))
	out, err := s.GetExtracted(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	require.NoError(t, s.Remove(ctx, key))
	_, err = s.GetExtracted(ctx, key)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
