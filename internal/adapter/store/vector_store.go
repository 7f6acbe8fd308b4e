package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"bookrag/internal/domain"
	"bookrag/internal/vecmath"
)

var (
	bucketVectors = []byte("vectors")
)

// BoltVectorIndex implements port.VectorIndex on top of BoltDB.
// Uses brute-force search; entries are mirrored in memory for scoring.
type BoltVectorIndex struct {
	db        *bbolt.DB
	dimension int
	mu        sync.RWMutex
	vectors   map[string]vectorEntry
}

type vectorEntry struct {
	vector  []float32
	payload domain.Payload
}

type storedVector struct {
	Vector   []float32         `json:"v"`
	Text     string            `json:"t"`
	Metadata map[string]string `json:"m,omitempty"`
}

// NewBoltVectorIndex opens the vectors bucket of db for the given dimension.
func NewBoltVectorIndex(db *bbolt.DB, dimension int) (*BoltVectorIndex, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketVectors)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vectors bucket: %w", err)
	}

	idx := &BoltVectorIndex{
		db:        db,
		dimension: dimension,
		vectors:   make(map[string]vectorEntry),
	}

	if err := idx.loadVectors(); err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}

	return idx, nil
}

func (s *BoltVectorIndex) loadVectors() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var stored storedVector
			if err := json.Unmarshal(v, &stored); err != nil {
				return nil // Skip corrupted entries
			}
			if len(stored.Vector) != s.dimension {
				return domain.DimensionMismatch("load vectors", s.dimension, len(stored.Vector))
			}
			s.vectors[string(k)] = vectorEntry{
				vector:  stored.Vector,
				payload: domain.Payload{Text: stored.Text, Metadata: stored.Metadata},
			}
			return nil
		})
	})
}

func (s *BoltVectorIndex) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	for _, e := range entries {
		if len(e.Vector) != s.dimension {
			return domain.NewIndexError("bolt upsert", domain.DimensionMismatch("bolt upsert", s.dimension, len(e.Vector)))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		if b == nil {
			return fmt.Errorf("vectors bucket not found")
		}

		for _, e := range entries {
			data, err := json.Marshal(storedVector{
				Vector:   e.Vector,
				Text:     e.Payload.Text,
				Metadata: e.Payload.Metadata,
			})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(e.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.NewIndexError("bolt upsert", err)
	}

	// Mirror only after the transaction committed.
	for _, e := range entries {
		s.vectors[e.ID] = vectorEntry{vector: e.Vector, payload: e.Payload}
	}
	return nil
}

// Search finds the k nearest entries by cosine similarity. Equal scores are
// ordered by ID so repeated searches return identical results.
func (s *BoltVectorIndex) Search(ctx context.Context, query []float32, k int) ([]domain.IndexHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewIndexError("bolt search", err)
	}
	if len(query) != s.dimension {
		return nil, domain.NewIndexError("bolt search", domain.DimensionMismatch("bolt search", s.dimension, len(query)))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return topK(s.vectors, query, k), nil
}

func (s *BoltVectorIndex) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		if b == nil {
			return nil
		}
		for _, id := range ids {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.NewIndexError("bolt delete", err)
	}

	for _, id := range ids {
		delete(s.vectors, id)
	}
	return nil
}

func (s *BoltVectorIndex) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors), nil
}

func (s *BoltVectorIndex) Dimension() int {
	return s.dimension
}

// Close is a no-op; the underlying DB belongs to the BoltStore.
func (s *BoltVectorIndex) Close() error {
	return nil
}

func topK(vectors map[string]vectorEntry, query []float32, k int) []domain.IndexHit {
	if k <= 0 || len(vectors) == 0 {
		return nil
	}

	hits := make([]domain.IndexHit, 0, len(vectors))
	for id, entry := range vectors {
		hits = append(hits, domain.IndexHit{
			ID:      id,
			Score:   vecmath.Cosine(query, entry.vector),
			Payload: entry.payload,
		})
	}

	vecmath.SortHits(hits)

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k]
}
