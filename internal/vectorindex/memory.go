package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryCollection 是暴力余弦检索的内存集合，用于本地开发和测试。
type MemoryCollection struct {
	name string

	mu        sync.RWMutex
	dimension int
	entries   map[string]Entry
	order     []string
}

var _ Collection = (*MemoryCollection)(nil)

func NewMemoryCollection(name string) *MemoryCollection {
	return &MemoryCollection{name: name, entries: make(map[string]Entry)}
}

func (m *MemoryCollection) Name() string { return m.name }

// Upsert 按 ID 覆盖已有记录，新记录追加到末尾。
func (m *MemoryCollection) Upsert(ctx context.Context, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	dim := m.dimension
	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("upsert into %s: empty entry id", m.name)
		}
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim {
			return fmt.Errorf("upsert into %s: %w (got %d, want %d)", m.name, ErrDimensionMismatch, len(e.Vector), dim)
		}
	}
	m.dimension = dim

	for _, e := range entries {
		if _, exists := m.entries[e.ID]; !exists {
			m.order = append(m.order, e.ID)
		}
		m.entries[e.ID] = copyEntry(e)
	}
	return nil
}

func (m *MemoryCollection) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := []Result{}
	if k <= 0 || len(m.order) == 0 {
		return results, nil
	}
	if len(vector) != m.dimension {
		return nil, fmt.Errorf("query %s: %w (got %d, want %d)", m.name, ErrDimensionMismatch, len(vector), m.dimension)
	}

	for _, id := range m.order {
		e := m.entries[id]
		if !filter.Matches(e.Metadata) {
			continue
		}
		d := CosineDistance(e.Vector, vector)
		results = append(results, Result{
			ID:         e.ID,
			Content:    e.Text,
			Metadata:   copyMetadata(e.Metadata),
			Distance:   d,
			Similarity: SimilarityFromDistance(d),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *MemoryCollection) Delete(ctx context.Context, filter Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if filter.IsEmpty() {
		return 0, fmt.Errorf("delete from %s: %w: empty filter", m.name, ErrInvalidFilter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.order[:0]
	deleted := 0
	for _, id := range m.order {
		if filter.Matches(m.entries[id].Metadata) {
			delete(m.entries, id)
			deleted++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return deleted, nil
}

func (m *MemoryCollection) Count(ctx context.Context, filter Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if filter.IsEmpty() {
		return len(m.order), nil
	}
	n := 0
	for _, id := range m.order {
		if filter.Matches(m.entries[id].Metadata) {
			n++
		}
	}
	return n, nil
}

func copyEntry(e Entry) Entry {
	v := make([]float32, len(e.Vector))
	copy(v, e.Vector)
	return Entry{ID: e.ID, Vector: v, Text: e.Text, Metadata: copyMetadata(e.Metadata)}
}

func copyMetadata(md Metadata) Metadata {
	out := make(Metadata, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
