package embedding

import (
	"context"
	"fmt"
	"time"

	"bookrag/config"
	"bookrag/internal/adapter/cache"
	"bookrag/internal/port"
)

// New creates the embedder selected by cfg, wrapped in a query embedding
// cache when cfg.CacheSize > 0.
func New(ctx context.Context, cfg config.EmbeddingConfig) (port.Embedder, error) {
	var (
		embedder port.Embedder
		err      error
	)

	switch cfg.Provider {
	case "openai":
		embedder, err = NewOpenAIEmbedder(cfg.APIKeyEnv, cfg.Model, cfg.BaseURL, cfg.Dimension)
	case "gemini":
		embedder, err = NewGeminiEmbedder(ctx, cfg.APIKeyEnv, cfg.Model, cfg.Dimension)
	case "ollama":
		embedder, err = NewOllamaEmbedder(cfg.Model, cfg.BaseURL, cfg.Dimension)
	case "mock":
		embedder = NewMockEmbedder(cfg.Dimension)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	if cfg.CacheSize > 0 {
		ttl := cfg.CacheTTL
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}
		embedder = cache.NewCachedEmbedder(embedder, cache.NewEmbeddingCache(cfg.CacheSize, ttl))
	}

	return embedder, nil
}
