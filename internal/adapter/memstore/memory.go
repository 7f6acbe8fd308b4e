package memstore

import (
	"context"
	"sync"

	"bookrag/internal/domain"
	"bookrag/internal/vecmath"
)

// MemoryIndex is a process-local port.VectorIndex. Contents are lost on exit;
// used for tests and for corpora small enough to embed at startup.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]domain.IndexEntry
}

func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{
		dimension: dimension,
		entries:   make(map[string]domain.IndexEntry),
	}
}

func (s *MemoryIndex) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	for _, e := range entries {
		if len(e.Vector) != s.dimension {
			return domain.NewIndexError("memory upsert", domain.DimensionMismatch("memory upsert", s.dimension, len(e.Vector)))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.entries[e.ID] = e
	}
	return nil
}

func (s *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]domain.IndexHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewIndexError("memory search", err)
	}
	if len(query) != s.dimension {
		return nil, domain.NewIndexError("memory search", domain.DimensionMismatch("memory search", s.dimension, len(query)))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 || len(s.entries) == 0 {
		return nil, nil
	}

	hits := make([]domain.IndexHit, 0, len(s.entries))
	for id, e := range s.entries {
		hits = append(hits, domain.IndexHit{
			ID:      id,
			Score:   vecmath.Cosine(query, e.Vector),
			Payload: e.Payload,
		})
	}
	vecmath.SortHits(hits)

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

func (s *MemoryIndex) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.entries, id)
	}
	return nil
}

func (s *MemoryIndex) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryIndex) Dimension() int {
	return s.dimension
}

func (s *MemoryIndex) Close() error {
	return nil
}
