package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"bookrag/internal/port"
)

// EmbeddingCache is a bounded LRU of text embeddings with a TTL.
type EmbeddingCache struct {
	lru *expirable.LRU[string, []float32]
}

func NewEmbeddingCache(maxSize int, ttl time.Duration) *EmbeddingCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &EmbeddingCache{
		lru: expirable.NewLRU[string, []float32](maxSize, nil, ttl),
	}
}

func cacheKey(model, text string) string {
	hash := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(hash[:16])
}

func (c *EmbeddingCache) Get(model, text string) ([]float32, bool) {
	return c.lru.Get(cacheKey(model, text))
}

func (c *EmbeddingCache) Put(model, text string, vector []float32) {
	c.lru.Add(cacheKey(model, text), vector)
}

// Size reports the number of stored entries, expired ones not yet purged
// included.
func (c *EmbeddingCache) Size() int {
	return c.lru.Len()
}

// CachedEmbedder serves repeated texts from an EmbeddingCache. Failed
// embeddings are never cached.
type CachedEmbedder struct {
	embedder port.Embedder
	cache    *EmbeddingCache
}

func NewCachedEmbedder(embedder port.Embedder, cache *EmbeddingCache) *CachedEmbedder {
	return &CachedEmbedder{
		embedder: embedder,
		cache:    cache,
	}
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, hit := e.cache.Get(e.embedder.ModelName(), text); hit {
		return vec, nil
	}

	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	e.cache.Put(e.embedder.ModelName(), text, vec)
	return vec, nil
}

func (e *CachedEmbedder) Dimension() int {
	return e.embedder.Dimension()
}

func (e *CachedEmbedder) ModelName() string {
	return e.embedder.ModelName()
}

// Close closes the wrapped embedder if it holds resources.
func (e *CachedEmbedder) Close() error {
	if c, ok := e.embedder.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
