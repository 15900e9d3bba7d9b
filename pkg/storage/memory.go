package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore 是进程内的 PayloadStore，未配置 MinIO 时使用。
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ PayloadStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (s *MemoryStore) PutExtracted(_ context.Context, key string, payload *ExtractedText) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetExtracted(_ context.Context, key string) (*ExtractedText, error) {
	s.mu.RLock()
	data, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	var payload ExtractedText
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}
