package port

import (
	"context"

	"bookrag/internal/domain"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed returns the embedding of a single text. Provider, auth and
	// network faults are reported as domain.ErrEmbedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// VectorIndex stores corpus vectors and answers nearest-neighbour queries
// under cosine similarity.
type VectorIndex interface {
	// Upsert adds or replaces entries. Every vector must have length Dimension().
	Upsert(ctx context.Context, entries []domain.IndexEntry) error

	// Search finds the k nearest entries to the query vector.
	Search(ctx context.Context, vector []float32, k int) ([]domain.IndexHit, error)

	// Delete removes entries by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Dimension returns the vector size the index was created with.
	Dimension() int

	Close() error
}
