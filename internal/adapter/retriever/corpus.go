package retriever

import (
	"context"
	"time"

	"bookrag/internal/domain"
	"bookrag/internal/port"
	"bookrag/internal/vecmath"
)

// CorpusSearcher answers queries from the persistent book index.
type CorpusSearcher struct {
	index       port.VectorIndex
	embedder    port.Embedder
	callTimeout time.Duration
}

func NewCorpusSearcher(index port.VectorIndex, embedder port.Embedder, callTimeout time.Duration) *CorpusSearcher {
	return &CorpusSearcher{
		index:       index,
		embedder:    embedder,
		callTimeout: callTimeout,
	}
}

// Search embeds the query and returns the k nearest indexed passages.
// Provider faults come back as EmbeddingError or IndexError.
func (r *CorpusSearcher) Search(ctx context.Context, q domain.Query) ([]domain.Passage, error) {
	embedCtx, cancel := withTimeout(ctx, r.callTimeout)
	vec, err := r.embedder.Embed(embedCtx, q.Text)
	cancel()
	if err != nil {
		return nil, domain.NewEmbeddingError("corpus search", err)
	}

	searchCtx, cancel := withTimeout(ctx, r.callTimeout)
	hits, err := r.index.Search(searchCtx, vec, q.TopK)
	cancel()
	if err != nil {
		return nil, domain.NewIndexError("corpus search", err)
	}

	passages := make([]domain.Passage, 0, len(hits))
	for _, hit := range hits {
		passages = append(passages, domain.Passage{
			ID:       hit.ID,
			Text:     hit.Payload.Text,
			Score:    vecmath.Clamp(hit.Score),
			Source:   domain.SourceCorpus,
			Metadata: hit.Payload.Metadata,
		})
	}
	return passages, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
